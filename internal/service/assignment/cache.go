package assignment

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/opinion-api/internal/model"
)

const rosterKey = "roster"

// CandidateCache holds a short-lived snapshot of the professional roster.
// A stale roster is harmless: the ledger re-checks exclusivity on create.
type CandidateCache struct {
	ttl   time.Duration
	store *gocache.Cache
}

// NewCandidateCache returns a cache that keeps the roster for ttl. A ttl of
// zero disables caching.
func NewCandidateCache(ttl time.Duration) *CandidateCache {
	return &CandidateCache{
		ttl:   ttl,
		store: gocache.New(ttl, 2*ttl+time.Minute),
	}
}

// Roster returns the cached roster or calls load and caches its result.
// Callers must not mutate the returned professionals.
func (c *CandidateCache) Roster(ctx context.Context, load func(context.Context) ([]*model.MedicalProfessional, error)) ([]*model.MedicalProfessional, error) {
	if c.ttl > 0 {
		if v, ok := c.store.Get(rosterKey); ok {
			return v.([]*model.MedicalProfessional), nil
		}
	}

	pros, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		c.store.Set(rosterKey, pros, c.ttl)
	}
	return pros, nil
}

// invalidate drops the snapshot so the next Roster call reloads.
func (c *CandidateCache) invalidate() {
	c.store.Delete(rosterKey)
}
