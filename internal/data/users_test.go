package data

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/db"
)

func setupDB(t *testing.T) *db.Client {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := db.New(ctx, uri, "skillswap_data_test")
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}

	// start clean in case previous runs left data
	_ = c.Users().Drop(ctx)
	_ = c.Messages().Drop(ctx)
	_ = c.Notifications().Drop(ctx)
	_ = c.Exchanges().Drop(ctx)
	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestUsersCreateAndGet(t *testing.T) {
	c := setupDB(t)
	users := NewUsersStore(c.Users())

	ctx := context.Background()
	email := time.Now().UTC().Format("20060102-150405") + "-integration@example.com"

	user, err := users.CreateUser(ctx, &User{Name: "Ada", Email: "  " + email, Password: "hashed-password"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Email != email {
		t.Fatalf("expected email %s got %s", email, user.Email)
	}

	if _, err := users.CreateUser(ctx, &User{Name: "Copy", Email: email, Password: "x"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	ok, err := users.UserExists(ctx, email)
	if err != nil || !ok {
		t.Fatalf("UserExists failed: ok=%v err=%v", ok, err)
	}

	u2, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if u2.Password != "hashed-password" {
		t.Fatalf("GetUserByEmail must return the hash for login")
	}

	got, err := users.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if got.Name != "Ada" {
		t.Fatalf("GetUserByID returned wrong user: %s", got.Name)
	}

	if _, err := users.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUsersProfileAndListing(t *testing.T) {
	c := setupDB(t)
	users := NewUsersStore(c.Users())
	ctx := context.Background()

	a, err := users.CreateUser(ctx, &User{Name: "Ada", Email: "ada@example.com", Password: "h"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	b, err := users.CreateUser(ctx, &User{Name: "Bob", Email: "bob@example.com", Password: "h"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	bio, age := "teaches go", 31
	updated, err := users.UpdateProfile(ctx, a.ID, ProfileChanges{Bio: &bio, Age: &age, SkillsOffered: []string{"go", "sql"}})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.Bio != bio || updated.Age != 31 || len(updated.SkillsOffered) != 2 || updated.Name != "Ada" {
		t.Fatalf("unexpected profile after update: %+v", updated)
	}

	list, err := users.ListUsers(ctx, 10)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 users, got %d", len(list))
	}
	for _, u := range list {
		if u.Password != "" {
			t.Fatalf("ListUsers leaked a password hash")
		}
	}

	names, err := users.Names(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if names[a.ID] != "Ada" || names[b.ID] != "Bob" {
		t.Fatalf("unexpected names: %v", names)
	}
}
