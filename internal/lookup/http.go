package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP queries an internal API: GET {endpoint}?customer_id={id}. A 404 or an
// empty body (null, {}, []) is a miss. The body may be the record itself, an
// array of records (first wins) or either wrapped in {"data": ...}.
type HTTP struct {
	c        HTTPClient
	endpoint string
	token    string
}

func NewHTTP(c HTTPClient, endpoint, token string) *HTTP {
	return &HTTP{c: c, endpoint: endpoint, token: token}
}

func (h *HTTP) fetch(ctx context.Context, customerID string) (map[string]any, error) {
	u, err := url.Parse(h.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("customer_id", customerID)
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("non-2xx: %d body=%s", resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	return firstObject(b)
}

func firstObject(b []byte) (map[string]any, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, ErrNotFound
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	for depth := 0; depth < 3; depth++ {
		switch x := v.(type) {
		case nil:
			return nil, ErrNotFound
		case []any:
			if len(x) == 0 {
				return nil, ErrNotFound
			}
			v = x[0]
			continue
		case map[string]any:
			if inner, ok := x["data"]; ok && len(x) <= 2 {
				v = inner
				continue
			}
			if len(x) == 0 {
				return nil, ErrNotFound
			}
			return x, nil
		default:
			return nil, fmt.Errorf("%w: unexpected %T", ErrInvalidRecord, v)
		}
	}
	return nil, fmt.Errorf("%w: nested too deep", ErrInvalidRecord)
}

func (h *HTTP) Booking(ctx context.Context, customerID string) (models.BookingRecord, error) {
	obj, err := h.fetch(ctx, customerID)
	if err != nil {
		return models.BookingRecord{}, err
	}
	return bookingFrom(customerID, obj["booking_date"], obj["status"])
}

func (h *HTTP) Transaction(ctx context.Context, customerID string) (models.TransactionRecord, error) {
	obj, err := h.fetch(ctx, customerID)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	return transactionFrom(customerID, obj["transaction_date"], obj["transaction_value"])
}

func bookingFrom(customerID string, date, status any) (models.BookingRecord, error) {
	d, err := toTime(date)
	if err != nil {
		return models.BookingRecord{}, err
	}
	rec := models.BookingRecord{CustomerID: customerID, BookingDate: d}
	if s, ok := status.(string); ok {
		rec.Status = strings.TrimSpace(s)
	}
	return rec, nil
}

func transactionFrom(customerID string, date, value any) (models.TransactionRecord, error) {
	d, err := toTime(date)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	v, err := toFloat(value)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	return models.TransactionRecord{CustomerID: customerID, TransactionDate: d, Value: v}, nil
}
