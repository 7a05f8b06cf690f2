package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProfileKey(t *testing.T) {
	key, err := ProfileKey("u1", "Me.JPG")
	if err != nil {
		t.Fatalf("ProfileKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "profiles/u1/") || !strings.HasSuffix(key, ".jpg") {
		t.Fatalf("unexpected key %q", key)
	}
	if ContentType(key) != "image/jpeg" {
		t.Fatalf("content type = %s", ContentType(key))
	}

	if _, err := ProfileKey("u1", "script.sh"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestLocalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "profiles/u1/a.png", strings.NewReader("png-bytes"), 9, "image/png"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	rc, err := s.Open(ctx, "profiles/u1/a.png")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "png-bytes" {
		t.Fatalf("read back %q", body)
	}

	if err := s.Delete(ctx, "profiles/u1/a.png"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Open(ctx, "profiles/u1/a.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "profiles/u1/a.png"); err != nil {
		t.Fatalf("deleting a missing key should succeed: %v", err)
	}
}

func TestLocalKeysStayInsideBase(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "uploads")
	s, err := NewLocal(base)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	if err := s.Put(context.Background(), "../escape.txt", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err == nil {
		t.Fatal("key escaped the base directory")
	}
	if _, err := os.Stat(filepath.Join(base, "escape.txt")); err != nil {
		t.Fatalf("expected the file inside base: %v", err)
	}
}
