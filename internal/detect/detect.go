// Package detect finds the opening message of a conversation: the earliest
// customer-authored message that contains one of the trigger keywords.
package detect

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AngelCh415/leadfunnel/internal/keywords"
	"github.com/AngelCh415/leadfunnel/internal/models"
)

var ErrBadTimestamp = errors.New("unparseable timestamp")

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 instant. Values without an offset are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty: %w", ErrBadTimestamp)
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q: %w", s, ErrBadTimestamp)
}

// Order returns msgs stably sorted by timestamp. If any timestamp fails to
// parse the input order is returned unchanged and sorted is false.
func Order(msgs []models.Message) (out []models.Message, sorted bool) {
	type keyed struct {
		t time.Time
		m models.Message
	}
	ks := make([]keyed, len(msgs))
	for i, m := range msgs {
		t, err := ParseTimestamp(m.Timestamp)
		if err != nil {
			return append([]models.Message(nil), msgs...), false
		}
		ks[i] = keyed{t: t, m: m}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].t.Before(ks[j].t) })
	out = make([]models.Message, len(ks))
	for i, k := range ks {
		out[i] = k.m
	}
	return out, true
}

// Result describes a detection pass.
type Result struct {
	Message models.Message
	Keyword string
	Found   bool
	// Unsorted is set when timestamps could not be parsed and detection ran
	// over the original order.
	Unsorted bool
}

// FindOpening scans msgs in time order, skipping agent and system messages,
// and returns the first one whose body contains a keyword.
func FindOpening(msgs []models.Message, kw *keywords.Set) Result {
	var res Result
	if len(msgs) == 0 || kw.Len() == 0 {
		return res
	}
	ordered, sorted := Order(msgs)
	res.Unsorted = !sorted
	for _, m := range ordered {
		if m.Role == models.RoleAgent || m.Role == models.RoleSystem {
			continue
		}
		if w, ok := kw.Match(m.Body); ok {
			res.Message, res.Keyword, res.Found = m, w, true
			return res
		}
	}
	return res
}

// LeadDate converts the lead message timestamp into a calendar date. A nil
// loc keeps the timestamp's own offset.
func LeadDate(m models.Message, loc *time.Location) (time.Time, error) {
	t, err := ParseTimestamp(m.Timestamp)
	if err != nil {
		return time.Time{}, err
	}
	if loc != nil {
		t = t.In(loc)
	}
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC), nil
}
