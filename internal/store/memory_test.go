package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

func rec(id string, date string, ch string) models.FunnelRecord {
	d, _ := time.Parse(models.DateLayout, date)
	return models.FunnelRecord{RoomID: models.RoomID(id), LeadsDate: d, Channel: ch, PhoneNumber: "c" + id}
}

func TestConcurrentAddIsOrderedByRoom(t *testing.T) {
	st := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 20; i > 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Add(rec(fmt.Sprint(i), "2024-01-01", "WhatsApp"))
		}(i)
	}
	wg.Wait()

	all := st.All()
	assert.Len(t, all, 20)
	for i, r := range all {
		assert.Equal(t, models.RoomID(fmt.Sprint(i+1)), r.RoomID)
	}
}

func TestMarkSeen(t *testing.T) {
	st := NewMemoryStore()
	assert.True(t, st.MarkSeen("1"))
	assert.False(t, st.MarkSeen("1"))
	assert.True(t, st.MarkSeen("2"))
}

func TestQueryByDateAndFilter(t *testing.T) {
	st := NewMemoryStore()
	st.Replace([]models.FunnelRecord{
		rec("3", "2024-01-03", "Web Chat"),
		rec("1", "2024-01-01", "WhatsApp"),
		rec("2", "2024-01-02", "WhatsApp"),
	})
	from, _ := time.Parse(models.DateLayout, "2024-01-02")

	got := st.Query(from, time.Time{}, nil)
	assert.Len(t, got, 2)
	assert.Equal(t, models.RoomID("2"), got[0].RoomID)

	got = st.Query(time.Time{}, time.Time{}, func(r models.FunnelRecord) bool { return r.Channel == "WhatsApp" })
	assert.Len(t, got, 2)
	assert.Equal(t, 3, st.Len())
	assert.False(t, st.MarkSeen("1"), "replace marks rooms seen")
}

func TestEmptyStore(t *testing.T) {
	st := NewMemoryStore()
	assert.Empty(t, st.All())
	assert.Empty(t, st.Query(time.Time{}, time.Time{}, nil))
}
