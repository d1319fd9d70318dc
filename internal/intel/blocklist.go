package intel

import "context"

// Blocklist is the set of source IPs the ingress must reject. The remediator
// adds to it when executing BLOCK_IP, so writes and reads go straight to
// Redis rather than through a cached snapshot.
type Blocklist struct {
	store SetStore
	key   string
}

// NewBlocklist builds a blocklist over the given set store.
func NewBlocklist(store SetStore, key string) *Blocklist {
	return &Blocklist{store: store, key: key}
}

// Contains reports whether ip is blocked.
func (b *Blocklist) Contains(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}
	return b.store.IsMember(ctx, b.key, ip)
}

// Block adds ip to the blocklist.
func (b *Blocklist) Block(ctx context.Context, ip string) error {
	return b.store.Add(ctx, b.key, ip)
}
