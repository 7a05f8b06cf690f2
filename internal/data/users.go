// Package data provides the MongoDB models and stores.
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

// UsersStore performs user DB operations.
type UsersStore struct {
	// coll is the "users" collection, shared by all methods below
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// CreateUser inserts a new user. u.Password must already be hashed.
func (u *UsersStore) CreateUser(ctx context.Context, user *User) (*User, error) {
	now := time.Now().UTC()
	user.Email = normalize.Email(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.SkillsOffered == nil {
		user.SkillsOffered = []string{}
	}
	if user.SkillsWanted == nil {
		user.SkillsWanted = []string{}
	}

	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		// unique index on email
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	// MongoDB generated the _id; the handler signs it into the token.
	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByEmail finds a user by email.
func (u *UsersStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User
	err := u.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		// deleted, or never existed
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UserExists checks if a user exists by email.
func (u *UsersStore) UserExists(ctx context.Context, email string) (bool, error) {
	// CountDocuments avoids decoding a whole document
	count, err := u.coll.CountDocuments(ctx, bson.M{"email": normalize.Email(email)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUsers returns up to limit users, newest first. Password hashes are
// projected out.
func (u *UsersStore) ListUsers(ctx context.Context, limit int64) ([]*User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(bson.M{"password": 0}).
		SetLimit(limit)

	cursor, err := u.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []*User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateProfile applies changes and returns the updated user.
func (u *UsersStore) UpdateProfile(ctx context.Context, id bson.ObjectID, changes ProfileChanges) (*User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	strs := map[string]*string{
		"name":         changes.Name,
		"bio":          changes.Bio,
		"location":     changes.Location,
		"city":         changes.City,
		"country":      changes.Country,
		"phone":        changes.Phone,
		"availability": changes.Availability,
		"profile_pic":  changes.ProfilePic,
	}
	for field, v := range strs {
		if v != nil {
			set[field] = *v
		}
	}
	if changes.Age != nil {
		set["age"] = *changes.Age
	}
	if changes.SkillsOffered != nil {
		set["skills_offered"] = changes.SkillsOffered
	}
	if changes.SkillsWanted != nil {
		set["skills_wanted"] = changes.SkillsWanted
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user User
	err := u.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Names resolves display names for ids in one query. Unknown ids are absent
// from the result.
func (u *UsersStore) Names(ctx context.Context, ids ...bson.ObjectID) (map[bson.ObjectID]string, error) {
	opts := options.Find().SetProjection(bson.M{"name": 1})
	cursor, err := u.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID   bson.ObjectID `bson:"_id"`
		Name string        `bson:"name"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	names := make(map[bson.ObjectID]string, len(rows))
	for _, r := range rows {
		names[r.ID] = r.Name
	}
	return names, nil
}
