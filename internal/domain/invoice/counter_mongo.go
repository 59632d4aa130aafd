package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clinicdesk/clinic/internal/platform/docstore"
)

const countersCollection = "invoice_counters"

type counterDoc struct {
	DoctorID  string    `bson:"_id"`
	Seq       int64     `bson:"seq"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoCounter keeps one document per doctor, incremented with $inc.
type MongoCounter struct {
	store *docstore.Store
}

func NewCounterMongo(store *docstore.Store) *MongoCounter {
	return &MongoCounter{store: store}
}

func (c *MongoCounter) Next(ctx context.Context, doctorID string) (int64, error) {
	return c.upsert(ctx, doctorID, bson.M{
		"$inc": bson.M{"seq": int64(1)},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
}

func (c *MongoCounter) EnsureAtLeast(ctx context.Context, doctorID string, n int64) (int64, error) {
	return c.upsert(ctx, doctorID, bson.M{
		"$max": bson.M{"seq": n},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
}

func (c *MongoCounter) Current(ctx context.Context, doctorID string) (int64, error) {
	coll, err := c.store.Collection(ctx, countersCollection)
	if err != nil {
		return 0, err
	}
	var doc counterDoc
	err = coll.FindOne(ctx, bson.M{"_id": doctorID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter for %s: %w", doctorID, err)
	}
	return doc.Seq, nil
}

// upsert applies update atomically and returns the post-update value. Two
// concurrent upserts creating the same document can race on _id; the loser
// retries once and then finds the document present.
func (c *MongoCounter) upsert(ctx context.Context, doctorID string, update bson.M) (int64, error) {
	coll, err := c.store.Collection(ctx, countersCollection)
	if err != nil {
		return 0, err
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc counterDoc
	for attempt := 0; attempt < 2; attempt++ {
		err = coll.FindOneAndUpdate(ctx, bson.M{"_id": doctorID}, update, opts).Decode(&doc)
		if err == nil {
			return doc.Seq, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	return 0, fmt.Errorf("update counter for %s: %w", doctorID, err)
}
