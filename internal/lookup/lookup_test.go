package lookup

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

func TestHTTPBookingFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "cust1@x.com", r.URL.Query().Get("customer_id"))
		w.Write([]byte(`{"booking_date": "2025-05-27", "status": "confirmed"}`))
	}))
	defer srv.Close()

	rec, err := NewHTTP(srv.Client(), srv.URL+"/bookings", "tok").Booking(context.Background(), "cust1@x.com")
	require.NoError(t, err)
	require.NotNil(t, rec.BookingDate)
	assert.Equal(t, "2025-05-27", rec.BookingDate.Format(models.DateLayout))
	assert.Equal(t, "confirmed", rec.Status)
}

func TestHTTPTransactionShapes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Status
		value  *float64
	}{
		{"object", 200, `{"transaction_date":"2025-05-28","transaction_value":500000}`, Found, ptr(500000)},
		{"wrapped array", 200, `{"data":[{"transaction_date":"2025-05-28","transaction_value":"0"}]}`, Found, ptr(0)},
		{"value missing", 200, `{"transaction_date":"2025-05-28"}`, Found, nil},
		{"null", 200, `null`, NotFound, nil},
		{"empty array", 200, `[]`, NotFound, nil},
		{"empty object", 200, `{}`, NotFound, nil},
		{"empty body", 200, ``, NotFound, nil},
		{"data null", 200, `{"data":null}`, NotFound, nil},
		{"404", 404, `{"error":"nope"}`, NotFound, nil},
		{"500", 500, `boom`, Failed, nil},
		{"bad date", 200, `{"transaction_date":"28/05/2025"}`, Failed, nil},
		{"bad json", 200, `{`, Failed, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			rec, err := NewHTTP(srv.Client(), srv.URL, "").Transaction(context.Background(), "c")
			assert.Equal(t, tc.want, StatusOf(err), "err=%v", err)
			if tc.want == Found {
				assert.Equal(t, tc.value, rec.Value)
				require.NotNil(t, rec.TransactionDate)
			}
		})
	}
}

func ptr(f float64) *float64 { return &f }

func TestHTTPTimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTP(srv.Client(), srv.URL, "").Booking(ctx, "c")
	assert.Equal(t, Failed, StatusOf(err))
}

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	p := filepath.Join(t.TempDir(), "lookup.db")
	db, driver, err := OpenSQL(context.Background(), "sqlite://"+p)
	require.NoError(t, err)
	require.Equal(t, "sqlite", driver)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
		CREATE TABLE bookings (customer_id TEXT, booking_date TEXT, status TEXT);
		CREATE TABLE transactions (customer_id TEXT, transaction_date TEXT, transaction_value REAL);
		INSERT INTO bookings VALUES ('cust1@x.com', '2025-06-01', 'cancelled');
		INSERT INTO bookings VALUES ('cust1@x.com', '2025-05-27', 'confirmed');
		INSERT INTO bookings VALUES ('nodate@x.com', NULL, 'pending');
		INSERT INTO bookings VALUES ('mixed@x.com', NULL, 'pending');
		INSERT INTO bookings VALUES ('mixed@x.com', '2025-05-30', 'confirmed');
		INSERT INTO transactions VALUES ('cust1@x.com', '2025-05-28', 500000);
		INSERT INTO transactions VALUES ('free@x.com', '2025-05-29', 0);
		INSERT INTO transactions VALUES ('cust1@x.com', NULL, 123);
	`)
	require.NoError(t, err)
	return db
}

func TestSQLBooking(t *testing.T) {
	db := openSQLite(t)
	s, err := NewSQL(db, "sqlite", "bookings")
	require.NoError(t, err)

	rec, err := s.Booking(context.Background(), "cust1@x.com")
	require.NoError(t, err)
	require.NotNil(t, rec.BookingDate)
	assert.Equal(t, "2025-05-27", rec.BookingDate.Format(models.DateLayout), "earliest booking wins")
	assert.Equal(t, "confirmed", rec.Status)

	rec, err = s.Booking(context.Background(), "nodate@x.com")
	require.NoError(t, err)
	assert.Nil(t, rec.BookingDate)

	rec, err = s.Booking(context.Background(), "mixed@x.com")
	require.NoError(t, err)
	require.NotNil(t, rec.BookingDate, "an undated row must not hide a dated one")
	assert.Equal(t, "2025-05-30", rec.BookingDate.Format(models.DateLayout))
	assert.Equal(t, "confirmed", rec.Status)

	_, err = s.Booking(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLTransaction(t *testing.T) {
	db := openSQLite(t)
	s, err := NewSQL(db, "sqlite", "transactions")
	require.NoError(t, err)

	rec, err := s.Transaction(context.Background(), "cust1@x.com")
	require.NoError(t, err)
	require.NotNil(t, rec.Value)
	assert.Equal(t, 500000.0, *rec.Value, "dated transaction wins over an undated one")
	require.NotNil(t, rec.TransactionDate)
	assert.Equal(t, "2025-05-28", rec.TransactionDate.Format(models.DateLayout))

	rec, err = s.Transaction(context.Background(), "free@x.com")
	require.NoError(t, err)
	require.NotNil(t, rec.Value, "zero is a value, not a miss")
	assert.Equal(t, 0.0, *rec.Value)

	_, err = s.Transaction(context.Background(), "ghost@x.com")
	assert.Equal(t, NotFound, StatusOf(err))
}

func TestNewSQLRejectsInjection(t *testing.T) {
	_, err := NewSQL(nil, "sqlite", "bookings; DROP TABLE x")
	assert.Error(t, err)
	_, err = NewSQL(nil, "postgres", "public.bookings")
	assert.NoError(t, err)
}

func TestKind(t *testing.T) {
	for endpoint, want := range map[string]string{
		"":                                  "none",
		"none":                              "none",
		"http://internal.api/bookings":      "http",
		"HTTPS://x/y":                       "http",
		"postgres://u:p@db/funnel":          "postgres",
		"postgresql://u:p@db/funnel":        "postgres",
		"mysql://u:p@tcp(db:3306)/funnel":   "mysql",
		"sqlite:///var/lib/funnel.db":       "sqlite",
		"mongodb://db:27017":                "mongo",
		"mongodb+srv://cluster.example.net": "mongo",
		"ftp://nope":                        "unknown",
	} {
		assert.Equal(t, want, Kind(endpoint), endpoint)
	}
}

func TestSQLDSN(t *testing.T) {
	d, dsn, ok := sqlDSN("mysql://u:p@tcp(db:3306)/funnel?parseTime=true")
	require.True(t, ok)
	assert.Equal(t, "mysql", d)
	assert.Equal(t, "u:p@tcp(db:3306)/funnel?parseTime=true", dsn)

	_, dsn, _ = sqlDSN("sqlite:///tmp/f.db")
	assert.Equal(t, "/tmp/f.db", dsn)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://***@db/funnel", redact("postgres://user:secret@db/funnel"))
	assert.Equal(t, "sqlite:///tmp/f.db", redact("sqlite:///tmp/f.db"))
}

func TestOpenNone(t *testing.T) {
	c, closer, err := Open(context.Background(), "none", Options{})
	require.NoError(t, err)
	defer closer.Close()
	_, err = c.Booking(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Transaction(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenSQLite(t *testing.T) {
	p := filepath.Join(t.TempDir(), "other.db")
	c, closer, err := Open(context.Background(), "sqlite://"+p, Options{Table: "bookings"})
	require.NoError(t, err)
	defer closer.Close()
	_, err = c.Booking(context.Background(), "x")
	assert.Equal(t, Failed, StatusOf(err), "missing table is a failure")
}

func TestOpenRejectsUnknown(t *testing.T) {
	_, _, err := Open(context.Background(), "ftp://nope", Options{})
	assert.Error(t, err)
}

func TestMongoDocumentConversion(t *testing.T) {
	when := time.Date(2025, 5, 28, 3, 0, 0, 0, time.UTC)
	dec, err := primitive.ParseDecimal128("500000.50")
	require.NoError(t, err)

	rec, err := transactionFromBSON("c", bson.M{
		"transaction_date":  primitive.NewDateTimeFromTime(when),
		"transaction_value": dec,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-05-28", rec.TransactionDate.Format(models.DateLayout))
	assert.Equal(t, 500000.5, *rec.Value)

	rec, err = transactionFromBSON("c", bson.M{"transaction_date": "2025-05-28", "transaction_value": int32(7)})
	require.NoError(t, err)
	assert.Equal(t, 7.0, *rec.Value)

	b, err := bookingFromBSON("c", bson.M{"booking_date": "2025-05-27", "status": "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", b.Status)
	assert.Equal(t, "2025-05-27", b.BookingDate.Format(models.DateLayout))

	_, err = bookingFromBSON("c", bson.M{"booking_date": true})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestMongoTriesDatedDocumentsFirst(t *testing.T) {
	filters := datedFirst("c@x.com", "booking_date")
	require.Len(t, filters, 2)
	assert.Equal(t, bson.M{"customer_id": "c@x.com", "booking_date": bson.M{"$ne": nil}}, filters[0])
	assert.Equal(t, bson.M{"customer_id": "c@x.com"}, filters[1])
}

type memCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func (m *memCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (m *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

type countingBookings struct {
	calls int
	rec   models.BookingRecord
	err   error
}

func (c *countingBookings) Booking(context.Context, string) (models.BookingRecord, error) {
	c.calls++
	return c.rec, c.err
}

func TestCachedBookingsHitAndMiss(t *testing.T) {
	d := time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC)
	next := &countingBookings{rec: models.BookingRecord{CustomerID: "c", BookingDate: &d, Status: "confirmed"}}
	cache := &memCache{data: map[string]string{}}
	cb := NewCachedBookings(next, cache, time.Minute)

	for i := 0; i < 3; i++ {
		rec, err := cb.Booking(context.Background(), "c")
		require.NoError(t, err)
		assert.True(t, rec.BookingDate.Equal(d))
		assert.Equal(t, "confirmed", rec.Status)
	}
	assert.Equal(t, 1, next.calls)

	miss := &countingBookings{err: ErrNotFound}
	cm := NewCachedBookings(miss, cache, time.Minute)
	for i := 0; i < 2; i++ {
		_, err := cm.Booking(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, miss.calls)
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	failing := &countingBookings{err: errors.New("db down")}
	cache := &memCache{data: map[string]string{}}
	cb := NewCachedBookings(failing, cache, time.Minute)
	for i := 0; i < 2; i++ {
		_, err := cb.Booking(context.Background(), "c")
		assert.Equal(t, Failed, StatusOf(err))
	}
	assert.Equal(t, 2, failing.calls)
	assert.Equal(t, 0, cache.sets)
}

type stubTransactions struct{ rec models.TransactionRecord }

func (s stubTransactions) Transaction(context.Context, string) (models.TransactionRecord, error) {
	return s.rec, nil
}

func TestCachedTransactionsKeepsZeroValue(t *testing.T) {
	zero := 0.0
	cache := &memCache{data: map[string]string{}}
	ct := NewCachedTransactions(stubTransactions{rec: models.TransactionRecord{CustomerID: "c", Value: &zero}}, cache, time.Minute)
	_, err := ct.Transaction(context.Background(), "c")
	require.NoError(t, err)

	again := NewCachedTransactions(stubTransactions{}, cache, time.Minute)
	rec, err := again.Transaction(context.Background(), "c")
	require.NoError(t, err)
	require.NotNil(t, rec.Value)
	assert.Equal(t, 0.0, *rec.Value)
}
