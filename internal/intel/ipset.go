package intel

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IPSet is a read-mostly set of known-malicious IPs. Lookups hit an
// in-memory snapshot so the risk engine never blocks on Redis mid-batch.
// The snapshot is the union of the static seed from configuration and the
// Redis set, refreshed on an interval. A failed refresh keeps the previous
// snapshot.
type IPSet struct {
	store  SetStore
	key    string
	static []string
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot map[string]struct{}
}

// NewIPSet builds an IPSet seeded from static. The store may be nil, in
// which case the set is static only and Refresh is a no-op.
func NewIPSet(store SetStore, key string, static []string, logger *slog.Logger) *IPSet {
	s := &IPSet{
		store:  store,
		key:    key,
		static: static,
		logger: logger,
	}
	s.mu.Lock()
	s.snapshot = s.build(nil)
	s.mu.Unlock()
	return s
}

func (s *IPSet) build(remote []string) map[string]struct{} {
	m := make(map[string]struct{}, len(s.static)+len(remote))
	for _, ip := range s.static {
		m[ip] = struct{}{}
	}
	for _, ip := range remote {
		m[ip] = struct{}{}
	}
	return m
}

// Contains reports whether ip is in the current snapshot. No I/O.
func (s *IPSet) Contains(ip string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snapshot[ip]
	return ok
}

// Len returns the snapshot size.
func (s *IPSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot)
}

// Refresh reloads the snapshot from Redis.
func (s *IPSet) Refresh(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	remote, err := s.store.Members(ctx, s.key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = s.build(remote)
	s.mu.Unlock()
	return nil
}

// StartRefresher refreshes the snapshot every interval until ctx is
// cancelled. Refresh failures are logged and the stale snapshot stays in
// service.
func (s *IPSet) StartRefresher(ctx context.Context, interval time.Duration) {
	if s.store == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(ctx); err != nil {
					s.logger.Warn("malicious IP set refresh failed, keeping stale snapshot",
						"key", s.key,
						"error", err)
				}
			}
		}
	}()
}
