package intel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type fakeSetStore struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
	err  error
}

func newFakeSetStore() *fakeSetStore {
	return &fakeSetStore{sets: make(map[string]map[string]struct{})}
}

func (f *fakeSetStore) IsMember(_ context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.sets[key][member]
	return ok, nil
}

func (f *fakeSetStore) Add(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]struct{})
	}
	for _, m := range members {
		f.sets[key][m] = struct{}{}
	}
	return nil
}

func (f *fakeSetStore) Members(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBlocklistBlockThenContains(t *testing.T) {
	store := newFakeSetStore()
	bl := NewBlocklist(store, "soar:blocklist")
	ctx := context.Background()

	blocked, err := bl.Contains(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if blocked {
		t.Fatal("expected IP to start unblocked")
	}

	if err := bl.Block(ctx, "203.0.113.7"); err != nil {
		t.Fatalf("Block: %v", err)
	}

	blocked, err = bl.Contains(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("Contains after Block: %v", err)
	}
	if !blocked {
		t.Fatal("expected IP to be blocked after Block")
	}
}

func TestBlocklistEmptyIP(t *testing.T) {
	bl := NewBlocklist(newFakeSetStore(), "soar:blocklist")

	blocked, err := bl.Contains(context.Background(), "")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if blocked {
		t.Fatal("empty IP must never be blocked")
	}
}

func TestIPSetStaticSeed(t *testing.T) {
	set := NewIPSet(nil, "soar:malicious_ips", []string{"198.51.100.1"}, discardLogger())

	if !set.Contains("198.51.100.1") {
		t.Fatal("expected static seed to be present")
	}
	if set.Contains("198.51.100.2") {
		t.Fatal("unexpected member")
	}
	if err := set.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh with nil store should be a no-op, got %v", err)
	}
}

func TestIPSetRefreshMergesRemote(t *testing.T) {
	store := newFakeSetStore()
	ctx := context.Background()
	if err := store.Add(ctx, "soar:malicious_ips", "198.51.100.2"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	set := NewIPSet(store, "soar:malicious_ips", []string{"198.51.100.1"}, discardLogger())

	if set.Contains("198.51.100.2") {
		t.Fatal("remote member must not appear before Refresh")
	}
	if err := set.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !set.Contains("198.51.100.1") || !set.Contains("198.51.100.2") {
		t.Fatal("snapshot must be the union of static and remote members")
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}
}

func TestIPSetRefreshFailureKeepsSnapshot(t *testing.T) {
	store := newFakeSetStore()
	ctx := context.Background()
	if err := store.Add(ctx, "soar:malicious_ips", "198.51.100.2"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	set := NewIPSet(store, "soar:malicious_ips", nil, discardLogger())
	if err := set.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	store.mu.Lock()
	store.err = errors.New("connection reset")
	store.mu.Unlock()

	if err := set.Refresh(ctx); err == nil {
		t.Fatal("expected Refresh error")
	}
	if !set.Contains("198.51.100.2") {
		t.Fatal("failed refresh must keep the previous snapshot")
	}
}
