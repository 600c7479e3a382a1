package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomIDAcceptsNumberAndString(t *testing.T) {
	var v struct {
		A RoomID `json:"a"`
		B RoomID `json:"b"`
		C RoomID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12345, "b": " 67890 ", "c": null}`), &v))
	assert.Equal(t, RoomID("12345"), v.A)
	assert.Equal(t, RoomID("67890"), v.B)
	assert.Equal(t, RoomID(""), v.C)
}

func TestRoomIDLess(t *testing.T) {
	assert.True(t, RoomID("2").Less("10"))
	assert.False(t, RoomID("10").Less("2"))
	assert.True(t, RoomID("9").Less("abc"))
	assert.True(t, RoomID("abc").Less("abd"))
}

func TestFunnelRecordRowRendersEmptyCells(t *testing.T) {
	d := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	r := FunnelRecord{LeadsDate: d, Channel: ChannelUnknown, PhoneNumber: "cust1@x.com", RoomID: "1"}
	assert.Equal(t, []string{"2024-01-01", "Unknown", "cust1@x.com", "", "", "", "1"}, r.Row())

	b := time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC)
	zero := 0.0
	r.BookingDate = &b
	r.TransactionValue = &zero
	assert.Equal(t, []string{"2024-01-01", "Unknown", "cust1@x.com", "2025-05-27", "", "0", "1"}, r.Row())

	v := 500000.0
	r.TransactionValue = &v
	assert.Equal(t, "500000", r.Row()[5])
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2025-05-27", "2025-05-27T10:00:00Z", "2025-05-27 10:00:00"} {
		d, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, "2025-05-27", d.Format(DateLayout))
	}
	_, err := ParseDate("27/05/2025")
	assert.Error(t, err)
}

func TestParticipantIdentifier(t *testing.T) {
	assert.Equal(t, "a@x.com", Participant{Email: " a@x.com ", UserID: "u1"}.Identifier())
	assert.Equal(t, "u1", Participant{UserID: "u1"}.Identifier())
	assert.Equal(t, "", Participant{}.Identifier())
}
