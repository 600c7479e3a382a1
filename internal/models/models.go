package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const ChannelUnknown = "Unknown"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleSystem   Role = "system"
)

// RoomID is the chat platform's room identifier. The API sends it either as a
// JSON number or a string; both decode to the same textual form.
type RoomID string

func (id *RoomID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = RoomID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = RoomID(n.String())
	return nil
}

func (id RoomID) String() string { return string(id) }

// Less orders numerically when both ids are integers, lexically otherwise.
func (id RoomID) Less(other RoomID) bool {
	a, errA := strconv.ParseInt(string(id), 10, 64)
	b, errB := strconv.ParseInt(string(other), 10, 64)
	switch {
	case errA == nil && errB == nil:
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return id < other
}

type Participant struct {
	Email  string
	UserID string
	Type   string // extras.type as sent by the platform, e.g. "agent"
}

// Identifier is the participant's customer key: email, else user id.
func (p Participant) Identifier() string {
	if e := strings.TrimSpace(p.Email); e != "" {
		return e
	}
	return strings.TrimSpace(p.UserID)
}

type Room struct {
	ID           RoomID
	Name         string
	Channel      string // room_options.channel, empty when absent
	Participants []Participant
}

type Message struct {
	ID        string
	RoomID    RoomID
	Timestamp string
	Body      string
	Sender    string
	Role      Role
}

type LeadEvent struct {
	RoomID     RoomID
	LeadDate   time.Time
	CustomerID string
	Channel    string
}

// BookingRecord and TransactionRecord come from external systems; any of
// their dated or valued fields may be missing.
type BookingRecord struct {
	CustomerID  string     `json:"customer_id"`
	BookingDate *time.Time `json:"booking_date,omitempty"`
	Status      string     `json:"status,omitempty"`
}

type TransactionRecord struct {
	CustomerID      string     `json:"customer_id"`
	TransactionDate *time.Time `json:"transaction_date,omitempty"`
	Value           *float64   `json:"transaction_value,omitempty"`
}

// FunnelRecord is one report row. Nil pointers render as empty cells.
type FunnelRecord struct {
	LeadsDate        time.Time  `json:"leads_date"`
	Channel          string     `json:"channel"`
	PhoneNumber      string     `json:"phone_number"`
	BookingDate      *time.Time `json:"booking_date,omitempty"`
	TransactionDate  *time.Time `json:"transaction_date,omitempty"`
	TransactionValue *float64   `json:"transaction_value,omitempty"`
	RoomID           RoomID     `json:"room_id"`
}

const DateLayout = "2006-01-02"

var Columns = []string{"leads_date", "channel", "phone_number", "booking_date", "transaction_date", "transaction_value", "room_id"}

// Row renders the record in Columns order.
func (r FunnelRecord) Row() []string {
	return []string{
		r.LeadsDate.Format(DateLayout),
		r.Channel,
		r.PhoneNumber,
		fmtDate(r.BookingDate),
		fmtDate(r.TransactionDate),
		fmtValue(r.TransactionValue),
		r.RoomID.String(),
	}
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

func fmtValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ParseDate accepts a bare calendar date or an RFC3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: DateLayout, Value: s, Message: ": unrecognized date"}
}

// Metrics is one day and channel of the funnel summary.
type Metrics struct {
	Date             string  `json:"date"`
	Channel          string  `json:"channel"`
	Leads            int     `json:"leads"`
	Bookings         int     `json:"bookings"`
	Transactions     int     `json:"transactions"`
	Revenue          float64 `json:"revenue"`
	CVRLeadToBooking float64 `json:"cvr_lead_to_booking"`
	CVRBookingToTx   float64 `json:"cvr_booking_to_transaction"`
}
