package notifications

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoStorage implements Storage over a mongo collection. The _id
// unique index gives the conditional write for free.
type MongoStorage struct {
	coll *mongo.Collection
}

// NewMongoStorage creates a mongo-backed notification storage.
func NewMongoStorage(coll *mongo.Collection) (*MongoStorage, error) {
	if coll == nil {
		return nil, errors.New("collection cannot be nil")
	}
	return &MongoStorage{coll: coll}, nil
}

func (s *MongoStorage) Create(ctx context.Context, n Notification) error {
	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrNotificationAlreadyExists
		}
		return fmt.Errorf("insert notification %s: %w", n.ID, errors.Join(ErrStorageUnavailable, err))
	}
	return nil
}
