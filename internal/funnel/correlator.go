// Package funnel joins a detected lead to its downstream booking and
// transaction records.
package funnel

import (
	"context"
	"fmt"
	"time"

	"github.com/AngelCh415/leadfunnel/internal/lookup"
	"github.com/AngelCh415/leadfunnel/internal/metrics"
	"github.com/AngelCh415/leadfunnel/internal/models"
)

// LookupError is a booking or transaction lookup that failed outright, as
// opposed to finding nothing.
type LookupError struct {
	Kind string
	Err  error
}

func (e *LookupError) Error() string { return fmt.Sprintf("%s lookup: %v", e.Kind, e.Err) }
func (e *LookupError) Unwrap() error { return e.Err }

type Correlator struct {
	bookings     lookup.Bookings
	transactions lookup.Transactions
	timeout      time.Duration
	m            *metrics.Collectors
}

func NewCorrelator(b lookup.Bookings, t lookup.Transactions, timeout time.Duration, m *metrics.Collectors) *Correlator {
	return &Correlator{bookings: b, transactions: t, timeout: timeout, m: m}
}

// Correlate builds the funnel row for lead. A miss leaves the matching
// fields nil; a failed lookup returns a *LookupError.
func (c *Correlator) Correlate(ctx context.Context, lead models.LeadEvent) (models.FunnelRecord, error) {
	rec := models.FunnelRecord{
		LeadsDate:   lead.LeadDate,
		Channel:     lead.Channel,
		PhoneNumber: lead.CustomerID,
		RoomID:      lead.RoomID,
	}

	b, err := timed(ctx, c, "booking", func(ctx context.Context) (models.BookingRecord, error) {
		return c.bookings.Booking(ctx, lead.CustomerID)
	})
	switch lookup.StatusOf(err) {
	case lookup.Found:
		rec.BookingDate = b.BookingDate
	case lookup.Failed:
		return rec, &LookupError{Kind: "booking", Err: err}
	}

	t, err := timed(ctx, c, "transaction", func(ctx context.Context) (models.TransactionRecord, error) {
		return c.transactions.Transaction(ctx, lead.CustomerID)
	})
	switch lookup.StatusOf(err) {
	case lookup.Found:
		rec.TransactionDate = t.TransactionDate
		rec.TransactionValue = t.Value
	case lookup.Failed:
		return rec, &LookupError{Kind: "transaction", Err: err}
	}
	return rec, nil
}

func timed[T any](ctx context.Context, c *Correlator, kind string, fn func(context.Context) (T, error)) (T, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	v, err := fn(ctx)
	c.m.Lookup(kind, string(lookup.StatusOf(err)), time.Since(start))
	return v, err
}
