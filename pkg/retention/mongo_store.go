package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// defaultBatchSize bounds one cursor page. Very large histories span
// several pages instead of one unbounded scan.
const defaultBatchSize = 500

// MongoStore implements Store over the chat-history collection.
type MongoStore struct {
	coll      *mongo.Collection
	batchSize int
}

// MongoStoreOption configures a MongoStore.
type MongoStoreOption func(*MongoStore)

func WithBatchSize(n int) MongoStoreOption {
	return func(s *MongoStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewMongoStore creates a retention store over the given collection.
func NewMongoStore(coll *mongo.Collection, opts ...MongoStoreOption) (*MongoStore, error) {
	if coll == nil {
		return nil, errors.New("collection cannot be nil")
	}

	s := &MongoStore{
		coll:      coll,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BulkSetExpiry pages through the user's records by _id cursor and
// rewrites expires_at to created_at + days. Records already at the
// target are skipped by the filter, which is what makes reruns no-ops.
// Failures are collected per record; the batch never aborts as a whole.
func (s *MongoStore) BulkSetExpiry(ctx context.Context, userID uuid.UUID, days int) (Result, error) {
	if days <= 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidRetentionDays, days)
	}

	var result Result
	lastID := ""

	for {
		filter := bson.M{"user_id": userID.String()}
		if lastID != "" {
			filter["_id"] = bson.M{"$gt": lastID}
		}

		cursor, err := s.coll.Find(ctx, filter,
			options.Find().
				SetSort(bson.D{{Key: "_id", Value: 1}}).
				SetLimit(int64(s.batchSize)).
				SetProjection(bson.M{"_id": 1, "created_at": 1, "expires_at": 1}),
		)
		if err != nil {
			return result, fmt.Errorf("list retention records for user %s: %w", userID, err)
		}

		var page []Record
		if err := cursor.All(ctx, &page); err != nil {
			return result, fmt.Errorf("decode retention records for user %s: %w", userID, err)
		}
		if len(page) == 0 {
			break
		}
		lastID = page[len(page)-1].RecordID

		for _, rec := range page {
			target := rec.CreatedAt.Add(time.Duration(days) * 24 * time.Hour)
			if rec.ExpiresAt.Equal(target) {
				continue
			}
			if err := s.setExpiry(ctx, rec.RecordID, target); err != nil {
				result.Failed = append(result.Failed, rec.RecordID)
				continue
			}
			result.Updated++
		}

		if len(page) < s.batchSize {
			break
		}
	}

	return result, nil
}

// setExpiry updates one record. The update is conditioned on the record
// still existing; a record that vanished concurrently counts as failed
// and is resolved by the caller's retry, which will no longer find it.
func (s *MongoStore) setExpiry(ctx context.Context, recordID string, target time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": recordID},
		bson.M{"$set": bson.M{"expires_at": target}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
