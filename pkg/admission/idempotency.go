package admission

import (
	"sync"
	"time"
)

type idemRecord struct {
	jobID string
}

// IdempotencyGuard maps client idempotency keys to the job they first
// created, so a retried request returns the original job instead of
// spawning a duplicate. Keys expire after the TTL.
type IdempotencyGuard struct {
	mu    sync.Mutex
	store *Store[idemRecord]
}

// NewIdempotencyGuard creates a guard whose keys expire after ttl.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		store: NewStore(ttl, func() *idemRecord { return &idemRecord{} }),
	}
}

// Claim reserves key for the caller. The first claimant wins and must
// follow up with Fulfill once its job exists, or Release if no job was
// created. Later claimants get duplicate=true and the winner's job ID,
// which is empty while the winner is still between Claim and Fulfill.
func (g *IdempotencyGuard) Claim(key string) (existingJobID string, duplicate bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rec := g.store.Peek(key); rec != nil {
		return rec.jobID, true
	}
	g.store.Get(key)
	return "", false
}

// Fulfill records the job created for a previously claimed key.
func (g *IdempotencyGuard) Fulfill(key, jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rec := g.store.Peek(key); rec != nil {
		rec.jobID = jobID
	}
}

// Release frees a claimed key so a later request may retry it. Called when
// the claimant's request was rejected before a job existed.
func (g *IdempotencyGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store.Delete(key)
}

// Lookup returns the job ID fulfilled under key, if any. It does not
// refresh or create the entry.
func (g *IdempotencyGuard) Lookup(key string) (jobID string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rec := g.store.Peek(key); rec != nil && rec.jobID != "" {
		return rec.jobID, true
	}
	return "", false
}

// Cleanup evicts expired keys.
func (g *IdempotencyGuard) Cleanup() {
	g.store.Cleanup()
}
