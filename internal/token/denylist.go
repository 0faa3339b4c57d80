package token

import (
	"context"
	"sync"
	"time"
)

// Denylist retires individual tokens, keyed by their ID, until their natural
// expiry. It is off by default; bearer tokens otherwise live until exp.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

var _ Denylist = (*MemoryDenylist)(nil)

// MemoryDenylist keeps revoked IDs in process memory with lazy expiration.
// Suitable for single-instance deployments.
type MemoryDenylist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     Clock
}

func NewMemoryDenylist(now Clock) *MemoryDenylist {
	if now == nil {
		now = SystemClock
	}
	return &MemoryDenylist{entries: make(map[string]time.Time), now: now}
}

func (d *MemoryDenylist) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" || !until.After(d.now()) {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.entries[tokenID]; !ok || until.After(current) {
		d.entries[tokenID] = until
	}
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	until, ok := d.entries[tokenID]
	if !ok {
		return false, nil
	}
	return d.now().Before(until), nil
}

// Sweep drops entries whose tokens have expired anyway.
func (d *MemoryDenylist) Sweep(_ context.Context) (int64, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	var removed int64
	for id, until := range d.entries {
		if !now.Before(until) {
			delete(d.entries, id)
			removed++
		}
	}
	return removed, nil
}
