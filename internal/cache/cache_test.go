package cache

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLookupFreshThenExpired(t *testing.T) {
	store := openTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	key := Key("relay.chains")
	if err := store.Put(ctx, key, []byte(`{"chains":[]}`), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entry, ok, err := store.Lookup(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if entry.Expired || string(entry.Value) != `{"chains":[]}` {
		t.Fatalf("unexpected fresh entry: %+v", entry)
	}

	now = now.Add(2 * time.Minute)
	entry, ok, err = store.Lookup(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected expired entry to remain readable, got ok=%v err=%v", ok, err)
	}
	if !entry.Expired || entry.Age != 2*time.Minute {
		t.Fatalf("unexpected expired entry: %+v", entry)
	}

	if err := store.Prune(ctx); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if _, ok, _ := store.Lookup(ctx, key); ok {
		t.Fatal("expected pruned entry to be gone")
	}
}

func TestLookupMiss(t *testing.T) {
	store := openTestStore(t)
	if _, ok, err := store.Lookup(context.Background(), Key("relay.price", "0x0", "1")); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestKeyIsStableAndNamespaced(t *testing.T) {
	a := Key("relay.price", "0xabc", "8453")
	b := Key("relay.price", "0xabc", "8453")
	c := Key("relay.price", "0xabc", "1")
	if a != b || a == c {
		t.Fatalf("unexpected keys %s %s %s", a, b, c)
	}
	if !strings.HasPrefix(a, "relay.price:") {
		t.Fatalf("expected namespace prefix, got %s", a)
	}
}
