package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	sess := Session{ID: "s1", Token: "tok", ExpiresAt: now.Add(time.Minute)}
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(context.Background(), "s1")
	if err != nil || got.Token != "tok" {
		t.Fatalf("Load: %+v %v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Load(context.Background(), "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestMemoryStoreRequiresID(t *testing.T) {
	if err := NewMemoryStore().Save(context.Background(), Session{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestRedisKey(t *testing.T) {
	if got := redisKey("abc"); got != "session:abc" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestRedisStoreRejectsExpiredSession(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	store := NewRedisStore(client)

	err := store.Save(context.Background(), Session{ID: "s1", ExpiresAt: time.Now().Add(-time.Second)})
	if err == nil {
		t.Fatalf("expected error for expired session")
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	store := NewRedisStore(client)

	_, err := store.Load(context.Background(), "s1")
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
}
