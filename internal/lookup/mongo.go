package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AngelCh415/leadfunnel/internal/models"
)

// Mongo reads the earliest document for a customer from a collection shaped
// like the SQL tables: customer_id plus the dated/valued fields.
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(coll *mongo.Collection) *Mongo { return &Mongo{coll: coll} }

func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	cl, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cl.Ping(ctx, nil); err != nil {
		_ = cl.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return cl, nil
}

func (m *Mongo) first(ctx context.Context, customerID, sortField string) (bson.M, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: sortField, Value: 1}})
	for _, filter := range datedFirst(customerID, sortField) {
		var doc bson.M
		err := m.coll.FindOne(ctx, filter, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
	return nil, ErrNotFound
}

// datedFirst lists the filters tried in order. Null and missing fields sort
// first in ascending order, so dated documents are asked for separately.
func datedFirst(customerID, dateField string) []bson.M {
	return []bson.M{
		{"customer_id": customerID, dateField: bson.M{"$ne": nil}},
		{"customer_id": customerID},
	}
}

func (m *Mongo) Booking(ctx context.Context, customerID string) (models.BookingRecord, error) {
	doc, err := m.first(ctx, customerID, "booking_date")
	if err != nil {
		return models.BookingRecord{}, err
	}
	return bookingFromBSON(customerID, doc)
}

func (m *Mongo) Transaction(ctx context.Context, customerID string) (models.TransactionRecord, error) {
	doc, err := m.first(ctx, customerID, "transaction_date")
	if err != nil {
		return models.TransactionRecord{}, err
	}
	return transactionFromBSON(customerID, doc)
}

func bookingFromBSON(customerID string, doc bson.M) (models.BookingRecord, error) {
	return bookingFrom(customerID, bsonValue(doc["booking_date"]), doc["status"])
}

func transactionFromBSON(customerID string, doc bson.M) (models.TransactionRecord, error) {
	return transactionFrom(customerID, bsonValue(doc["transaction_date"]), bsonValue(doc["transaction_value"]))
}

func bsonValue(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC()
	case primitive.Decimal128:
		return x.String()
	}
	return v
}
