// Package db manages the MongoDB connection, collections and indexes.
package db

import (
	"context" // connect and ping deadlines
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "skillswap"

// Collection names.
const (
	UsersCollection         = "users"
	MessagesCollection      = "messages"
	NotificationsCollection = "notifications"
	ExchangesCollection     = "exchanges"
)

// Client wraps mongo.Client and exposes the SkillSwap collections.
type Client struct {
	// client is safe for concurrent use and shared by every store
	client *mongo.Client

	// db holds the four collections
	db *mongo.Database
}

// New connects to MongoDB, verifies the connection with a ping and selects
// database (DefaultDatabase when empty).
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second) // fail fast if MongoDB is unreachable

	// Connect only builds the client; the ping below is the real connection test.
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if database == "" {
		database = DefaultDatabase
	}

	// The database is created lazily on first write.
	return &Client{client: client, db: client.Database(database)}, nil
}

// Ping checks the primary is reachable. The health endpoint reports it.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Users returns the users collection.
func (c *Client) Users() *mongo.Collection { return c.db.Collection(UsersCollection) }

// Messages returns the messages collection.
func (c *Client) Messages() *mongo.Collection { return c.db.Collection(MessagesCollection) }

// Notifications returns the notifications collection.
func (c *Client) Notifications() *mongo.Collection {
	return c.db.Collection(NotificationsCollection)
}

// Exchanges returns the exchanges collection.
func (c *Client) Exchanges() *mongo.Collection { return c.db.Collection(ExchangesCollection) }

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes every store query relies on.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== USERS =====
	// Unique email: GetUserByEmail lookups and duplicate registration.
	_, err := c.Users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	// ===== MESSAGES =====
	_, err = c.Messages().Indexes().CreateMany(ctx, []mongo.IndexModel{
		// Conversation history in either direction, oldest first.
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "created_at", Value: 1}}},
		// Everything a user received, for the unfiltered listing.
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "created_at", Value: 1}}},
		// Echo lookups when a client retries a send with the same correlation id.
		{
			Keys:    bson.D{{Key: "sender", Value: 1}, {Key: "client_id", Value: 1}},
			Options: options.Index().SetPartialFilterExpression(bson.M{"client_id": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	// ===== NOTIFICATIONS =====
	// Feed listing, newest first.
	_, err = c.Notifications().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}

	// ===== EXCHANGES =====
	_, err = c.Exchanges().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "requester", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create exchange indexes: %w", err)
	}
	return nil
}
