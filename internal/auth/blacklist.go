package auth

import (
	"context"
	"sync"
	"time"
)

// Blacklist is the token revocation set, keyed by jti. Entries expire
// with the token they revoke, so the set stays bounded. Production
// deployments use the redis implementation; the in-memory one is for
// tests and single-process development only.
type Blacklist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// MemoryBlacklist is a process-local revocation set. Not safe across
// processes: a token revoked here stays valid on other workers.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryBlacklist returns an empty in-memory blacklist.
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Add records jti as revoked until ttl elapses. A non-positive ttl still
// revokes briefly to cover clock skew around the expiry boundary.
func (b *MemoryBlacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	b.mu.Lock()
	b.entries[jti] = b.now().Add(ttl)
	b.mu.Unlock()
	return nil
}

// Contains reports whether jti is revoked, dropping expired entries as
// it finds them.
func (b *MemoryBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	b.mu.RLock()
	expiry, ok := b.entries[jti]
	b.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if b.now().After(expiry) {
		b.mu.Lock()
		delete(b.entries, jti)
		b.mu.Unlock()
		return false, nil
	}
	return true, nil
}
