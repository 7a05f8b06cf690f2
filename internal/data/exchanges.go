package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ExchangesStore persists skill exchange proposals.
type ExchangesStore struct {
	coll *mongo.Collection
}

// NewExchangesStore returns an ExchangesStore using coll.
func NewExchangesStore(coll *mongo.Collection) *ExchangesStore {
	return &ExchangesStore{coll: coll}
}

// Create stores a new Pending exchange.
func (s *ExchangesStore) Create(ctx context.Context, requester, provider bson.ObjectID, skill string) (*Exchange, error) {
	now := time.Now().UTC()
	ex := &Exchange{
		Requester: requester,
		Provider:  provider,
		Skill:     skill,
		Status:    ExchangePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	result, err := s.coll.InsertOne(ctx, ex)
	if err != nil {
		return nil, err
	}
	ex.ID = result.InsertedID.(bson.ObjectID)
	return ex, nil
}

// Get finds an exchange by id.
func (s *ExchangesStore) Get(ctx context.Context, id bson.ObjectID) (*Exchange, error) {
	var ex Exchange
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&ex); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrExchangeNotFound
		}
		return nil, err
	}
	return &ex, nil
}

// ListForUser returns exchanges where user is requester or provider,
// newest first.
func (s *ExchangesStore) ListForUser(ctx context.Context, user bson.ObjectID, limit int64) ([]*Exchange, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	filter := bson.M{"$or": bson.A{bson.M{"requester": user}, bson.M{"provider": user}}}

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []*Exchange{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decide moves a Pending exchange to status. The filter makes the
// transition atomic: only the provider, and only once.
func (s *ExchangesStore) Decide(ctx context.Context, id, provider bson.ObjectID, status string) (*Exchange, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var ex Exchange
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "provider": provider, "status": ExchangePending},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
		opts,
	).Decode(&ex)
	if err == nil {
		return &ex, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	// work out which condition failed
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Provider != provider {
		return nil, ErrForbidden
	}
	return nil, ErrExchangeNotPending
}
