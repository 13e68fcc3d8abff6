package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedis(client, time.Minute), mr
}

func TestRedisSetGetInvalidate(t *testing.T) {
	store, mr := newTestRedis(t)

	store.Set("u1", "2024-00", 0, []byte(`{"runs_count":1}`))
	store.Set("u1", "2024-03", 0, []byte(`{"runs_count":2}`))
	store.Set("u2", "2024-00", 0, []byte(`{"runs_count":3}`))

	got, ok := store.Get("u1", "2024-03")
	if !ok || string(got) != `{"runs_count":2}` {
		t.Fatalf("unexpected cached value: %q (hit=%v)", got, ok)
	}

	if ttl := mr.TTL(keyPrefix + "u1"); ttl <= 0 {
		t.Fatalf("expected user key to carry a ttl, got %v", ttl)
	}

	if err := store.Invalidate("u1"); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}

	if _, ok := store.Get("u1", "2024-00"); ok {
		t.Fatal("expected u1 fields to be gone after invalidation")
	}
	if _, ok := store.Get("u1", "2024-03"); ok {
		t.Fatal("expected u1 fields to be gone after invalidation")
	}
	if _, ok := store.Get("u2", "2024-00"); !ok {
		t.Fatal("invalidating u1 must not touch u2")
	}
}

func TestRedisInvalidateReportsFailure(t *testing.T) {
	store, mr := newTestRedis(t)
	mr.Close()

	if err := store.Invalidate("u1"); err == nil {
		t.Fatal("expected error when redis is unavailable")
	}
	if _, ok := store.Get("u1", "x"); ok {
		t.Fatal("expected miss when redis is unavailable")
	}
}

func TestMemoryExpiresAndInvalidates(t *testing.T) {
	store := NewMemory(time.Minute)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set("u1", "f", 0, []byte("v"))
	if got, ok := store.Get("u1", "f"); !ok || string(got) != "v" {
		t.Fatalf("expected hit, got %q (hit=%v)", got, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := store.Get("u1", "f"); ok {
		t.Fatal("expected entry to expire")
	}

	store.Set("u1", "f", 0, []byte("v2"))
	if err := store.Invalidate("u1"); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}
	if _, ok := store.Get("u1", "f"); ok {
		t.Fatal("expected miss after invalidation")
	}
}

func TestDisabledNeverHits(t *testing.T) {
	var store Store = Disabled{}
	store.Set("u1", "f", 0, []byte("v"))
	if _, ok := store.Get("u1", "f"); ok {
		t.Fatal("disabled cache must never hit")
	}
}

func TestRedisSetRejectsStaleGeneration(t *testing.T) {
	store, mr := newTestRedis(t)

	gen, err := store.Generation("u1")
	if err != nil || gen != 0 {
		t.Fatalf("expected generation 0, got %d (err=%v)", gen, err)
	}

	// 读方取到代数后，写方提交并失效
	if err := store.Invalidate("u1"); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}
	if store.Set("u1", "f", gen, []byte("old")) {
		t.Fatal("expected write with outdated generation to be rejected")
	}
	if mr.Exists(keyPrefix + "u1") {
		t.Fatal("rejected write must not create the user hash")
	}

	current, err := store.Generation("u1")
	if err != nil || current != 1 {
		t.Fatalf("expected generation 1 after invalidation, got %d (err=%v)", current, err)
	}
	if !store.Set("u1", "f", current, []byte("new")) {
		t.Fatal("expected write with current generation to be stored")
	}
	if got, ok := store.Get("u1", "f"); !ok || string(got) != "new" {
		t.Fatalf("unexpected cached value %q (hit=%v)", got, ok)
	}
	if ttl := mr.TTL(keyPrefix + "u1"); ttl <= 0 {
		t.Fatalf("expected user key to carry a ttl, got %v", ttl)
	}
	if ttl := mr.TTL(genPrefix + "u1"); ttl != 0 {
		t.Fatalf("generation key must not expire, got ttl %v", ttl)
	}
}

func TestMemorySetRejectsStaleGeneration(t *testing.T) {
	store := NewMemory(time.Minute)

	gen, _ := store.Generation("u1")
	if err := store.Invalidate("u1"); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}
	if store.Set("u1", "f", gen, []byte("old")) {
		t.Fatal("expected write with outdated generation to be rejected")
	}
	if _, ok := store.Get("u1", "f"); ok {
		t.Fatal("rejected write must not be readable")
	}

	current, _ := store.Generation("u1")
	if current != gen+1 {
		t.Fatalf("expected generation %d, got %d", gen+1, current)
	}
	if !store.Set("u1", "f", current, []byte("new")) {
		t.Fatal("expected write with current generation to be stored")
	}
	if other, _ := store.Generation("u2"); other != 0 {
		t.Fatalf("invalidating u1 must not advance u2, got %d", other)
	}
}
