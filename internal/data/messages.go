package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/normalize"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	// coll is the "messages" collection
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// SaveMessage stores a message. When the sender already stored a message
// with the same clientID, that message is returned instead, so a retried
// POST does not duplicate.
func (m *MessagesStore) SaveMessage(ctx context.Context, sender, receiver bson.ObjectID, text, clientID string) (*Message, error) {
	if clientID != "" {
		var existing Message
		err := m.coll.FindOne(ctx, bson.M{"sender": sender, "client_id": clientID}).Decode(&existing)
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
	}

	msg := &Message{
		Sender:    sender,
		Receiver:  receiver,
		Text:      normalize.Text(text),
		ClientID:  clientID,
		CreatedAt: time.Now().UTC(), // server clock orders history
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// GetMessage finds a message by id.
func (m *MessagesStore) GetMessage(ctx context.Context, id bson.ObjectID) (*Message, error) {
	var msg Message
	if err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// GetMessageHistory returns the latest limit messages between two users,
// oldest first.
func (m *MessagesStore) GetMessageHistory(ctx context.Context, user, peer bson.ObjectID, limit int64) ([]*Message, error) {
	// newest first so the limit keeps the most recent messages
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	// both directions of the conversation
	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender": user, "receiver": peer},
			bson.M{"sender": peer, "receiver": user},
		},
	}

	messages, err := m.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	// reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListForUser returns every message the user sent or received, oldest first.
func (m *MessagesStore) ListForUser(ctx context.Context, user bson.ObjectID, limit int64) ([]*Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(limit)
	filter := bson.M{"$or": bson.A{bson.M{"sender": user}, bson.M{"receiver": user}}}
	return m.find(ctx, filter, opts)
}

// MarkRead sets the read flag. Only the receiver may do so; a sender gets
// ErrForbidden.
func (m *MessagesStore) MarkRead(ctx context.Context, id, reader bson.ObjectID) (*Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var msg Message
	err := m.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "receiver": reader},
		bson.M{"$set": bson.M{"read": true}},
		opts,
	).Decode(&msg)
	if err == nil {
		return &msg, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	// no match: tell a missing message apart from someone else's
	if _, err := m.GetMessage(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrForbidden
}

func (m *MessagesStore) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*Message, error) {
	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []*Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
