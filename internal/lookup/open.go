package lookup

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Options configure Open. Table names the SQL table; Collection the Mongo
// collection, which defaults to Table.
type Options struct {
	HTTP          HTTPClient
	Token         string
	Table         string
	MongoDatabase string
	Collection    string
}

// Kind describes the transport an endpoint selects.
func Kind(endpoint string) string {
	lower := strings.ToLower(strings.TrimSpace(endpoint))
	switch {
	case lower == "" || lower == "none":
		return "none"
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return "http"
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return "mongo"
	}
	if d, _, ok := sqlDSN(endpoint); ok {
		return d
	}
	return "unknown"
}

// Client serves both lookups.
type Client interface {
	Bookings
	Transactions
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// Open builds a lookup for endpoint. The returned Closer releases any pool
// or connection it opened.
func Open(ctx context.Context, endpoint string, o Options) (Client, io.Closer, error) {
	switch Kind(endpoint) {
	case "none":
		return None{}, nopCloser, nil
	case "http":
		if o.HTTP == nil {
			return nil, nil, fmt.Errorf("http lookup %s: no client", endpoint)
		}
		return NewHTTP(o.HTTP, endpoint, o.Token), nopCloser, nil
	case "mongo":
		cl, err := ConnectMongo(ctx, endpoint)
		if err != nil {
			return nil, nil, err
		}
		coll := o.Collection
		if coll == "" {
			coll = o.Table
		}
		m := NewMongo(cl.Database(o.MongoDatabase).Collection(coll))
		return m, closerFunc(func() error { return cl.Disconnect(context.Background()) }), nil
	case "postgres", "mysql", "sqlite":
		db, driver, err := OpenSQL(ctx, endpoint)
		if err != nil {
			return nil, nil, err
		}
		s, err := NewSQL(db, driver, o.Table)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, db, nil
	}
	return nil, nil, fmt.Errorf("unsupported lookup endpoint %q", redact(endpoint))
}
