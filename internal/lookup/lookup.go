// Package lookup finds downstream booking and transaction records for a
// customer identifier. Implementations talk HTTP, SQL or MongoDB; callers
// only see the Bookings and Transactions interfaces.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

var (
	// ErrNotFound is a miss: the customer has no such record.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidRecord means the upstream returned something unusable.
	ErrInvalidRecord = errors.New("invalid record")
)

type Bookings interface {
	Booking(ctx context.Context, customerID string) (models.BookingRecord, error)
}

type Transactions interface {
	Transaction(ctx context.Context, customerID string) (models.TransactionRecord, error)
}

// Status separates a miss from a failure.
type Status string

const (
	Found    Status = "found"
	NotFound Status = "not_found"
	Failed   Status = "failed"
)

func StatusOf(err error) Status {
	switch {
	case err == nil:
		return Found
	case errors.Is(err, ErrNotFound):
		return NotFound
	}
	return Failed
}

// None never finds anything. It stands in for an unconfigured system.
type None struct{}

func (None) Booking(context.Context, string) (models.BookingRecord, error) {
	return models.BookingRecord{}, ErrNotFound
}

func (None) Transaction(context.Context, string) (models.TransactionRecord, error) {
	return models.TransactionRecord{}, ErrNotFound
}

// toTime normalizes the date shapes drivers and APIs hand back.
func toTime(v any) (*time.Time, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if x.IsZero() {
			return nil, nil
		}
		return &x, nil
	case *time.Time:
		return x, nil
	case []byte:
		return toTime(string(x))
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
		t, err := models.ParseDate(x)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("%w: unsupported date %T", ErrInvalidRecord, v)
}

func toFloat(v any) (*float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case []byte:
		return toFloat(string(x))
	case fmt.Stringer:
		return toFloat(x.String())
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %q", ErrInvalidRecord, x)
		}
		f = p
	default:
		return nil, fmt.Errorf("%w: unsupported value %T", ErrInvalidRecord, v)
	}
	return &f, nil
}
