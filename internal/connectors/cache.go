package connectors

import (
	"context"
	"sync"
	"time"

	"github.com/cwoolley/mangafind/internal/logger"
	"golang.org/x/sync/singleflight"
)

// CachedRegistry keeps the connector listing for a TTL so repeated searches
// do not re-fetch it. Failed fetches are not cached. A zero TTL disables
// caching. Concurrent misses share one fetch.
type CachedRegistry struct {
	lister Lister
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu      sync.Mutex
	cached  []Descriptor
	fetched time.Time
}

// NewCachedRegistry wraps lister with a cache.
func NewCachedRegistry(lister Lister, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{lister: lister, ttl: ttl, now: time.Now}
}

// List returns the cached listing, refreshing it when expired.
// The returned slice is shared; callers must not modify it.
//
// A caller whose ctx ends while a refresh is running returns ctx.Err();
// the refresh itself continues for the remaining callers.
func (r *CachedRegistry) List(ctx context.Context) ([]Descriptor, error) {
	if ds, ok := r.fresh(); ok {
		return ds, nil
	}

	ch := r.group.DoChan("list", func() (any, error) {
		ds, err := r.lister.List(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		logger.Debug("connector listing refreshed: %d connectors", len(ds))
		if r.ttl > 0 {
			r.mu.Lock()
			r.cached = ds
			r.fetched = r.now()
			r.mu.Unlock()
		}
		return ds, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Descriptor), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *CachedRegistry) fresh() ([]Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil && r.ttl > 0 && r.now().Sub(r.fetched) < r.ttl {
		return r.cached, true
	}
	return nil, false
}

// ListEnabled returns enabled connector names from the cached listing.
func (r *CachedRegistry) ListEnabled(ctx context.Context) ([]string, error) {
	ds, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return EnabledNames(ds), nil
}

// Invalidate drops the cached listing.
func (r *CachedRegistry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}
