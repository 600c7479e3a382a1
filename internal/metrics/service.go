package metrics

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/leadfunnel/internal/models"
	"github.com/AngelCh415/leadfunnel/internal/store"
)

// Service answers summary queries over the records of the last run.
type Service struct{ st *store.MemoryStore }

func NewService(st *store.MemoryStore) *Service { return &Service{st: st} }
func norm(s string) string                      { return strings.ToLower(strings.TrimSpace(s)) }

func csvSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = norm(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// QuerySummary groups records by lead date and channel. Filters: from, to
// (YYYY-MM-DD, inclusive), channel (comma list), limit, offset.
func (s *Service) QuerySummary(v url.Values) ([]models.Metrics, error) {
	from, err := optDate(v.Get("from"))
	if err != nil {
		return nil, err
	}
	to, err := optDate(v.Get("to"))
	if err != nil {
		return nil, err
	}
	chSet := csvSet(v.Get("channel"))
	limit := atoiDef(v.Get("limit"), 100)
	offset := atoiDef(v.Get("offset"), 0)

	recs := s.st.Query(from, to, func(r models.FunnelRecord) bool {
		if len(chSet) > 0 {
			if _, ok := chSet[norm(r.Channel)]; !ok {
				return false
			}
		}
		return true
	})

	rows := Summarize(recs)
	limit, offset = clampLimitOffset(limit, offset, len(rows))
	return paginate(rows, limit, offset), nil
}

type summaryKey struct {
	date    string
	channel string
}

// Summarize aggregates records per date and channel, ordered by date then
// channel.
func Summarize(recs []models.FunnelRecord) []models.Metrics {
	agg := map[summaryKey]*models.Metrics{}
	for _, r := range recs {
		k := summaryKey{date: r.LeadsDate.Format(models.DateLayout), channel: r.Channel}
		m, ok := agg[k]
		if !ok {
			m = &models.Metrics{Date: k.date, Channel: k.channel}
			agg[k] = m
		}
		m.Leads++
		if r.BookingDate != nil {
			m.Bookings++
		}
		if r.TransactionDate != nil || r.TransactionValue != nil {
			m.Transactions++
		}
		if r.TransactionValue != nil {
			m.Revenue += *r.TransactionValue
		}
	}

	rows := make([]models.Metrics, 0, len(agg))
	for _, m := range agg {
		m.Revenue = round2(m.Revenue)
		if m.Leads > 0 {
			m.CVRLeadToBooking = round3(float64(m.Bookings) / float64(m.Leads))
		}
		if m.Bookings > 0 {
			m.CVRBookingToTx = round3(float64(m.Transactions) / float64(m.Bookings))
		}
		rows = append(rows, *m)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Channel < rows[j].Channel
	})
	return rows
}

func optDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return time.Parse(models.DateLayout, strings.TrimSpace(s))
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

func clampLimitOffset(limit, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = n
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset > n {
		offset = n
	}
	return limit, offset
}

func round2(f float64) float64 { return float64(int64(f*100+0.5)) / 100 }
func round3(f float64) float64 { return float64(int64(f*1000+0.5)) / 1000 }
