package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
)

// NotificationsStore persists notification feeds.
type NotificationsStore struct {
	coll *mongo.Collection
}

// NewNotificationsStore returns a NotificationsStore using coll.
func NewNotificationsStore(coll *mongo.Collection) *NotificationsStore {
	return &NotificationsStore{coll: coll}
}

// Create stores a notification and fills in its id and timestamp.
func (s *NotificationsStore) Create(ctx context.Context, n *Notification) (*Notification, error) {
	n.Message = normalize.Text(n.Message)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	result, err := s.coll.InsertOne(ctx, n)
	if err != nil {
		return nil, err
	}
	n.ID = result.InsertedID.(bson.ObjectID)
	return n, nil
}

// ListForUser returns the user's feed, newest first.
func (s *NotificationsStore) ListForUser(ctx context.Context, user bson.ObjectID, limit int64) ([]*Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.coll.Find(ctx, bson.M{"receiver": user}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []*Notification{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
