package country

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CatalogEntry is one country as listed by a provider.
type CatalogEntry struct {
	Code     string
	Name     string
	Currency string
}

// Catalog lists the countries a provider knows about, in provider order.
type Catalog interface {
	Countries(ctx context.Context) ([]CatalogEntry, error)
}

// CachedCatalog memoizes a Catalog process-wide and refreshes it after ttl.
// A failed refresh keeps serving the previous copy.
type CachedCatalog struct {
	source      Catalog
	ttl         time.Duration
	loadTimeout time.Duration
	now         func() time.Time

	mu        sync.RWMutex
	entries   []CatalogEntry
	fetchedAt time.Time

	group singleflight.Group
}

// DefaultLoadTimeout bounds one shared catalog load.
const DefaultLoadTimeout = 30 * time.Second

// NewCachedCatalog wraps source. A ttl of zero never refreshes once loaded.
func NewCachedCatalog(source Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{source: source, ttl: ttl, loadTimeout: DefaultLoadTimeout, now: time.Now}
}

// Countries returns the cached list, loading it on first use or when stale.
func (c *CachedCatalog) Countries(ctx context.Context) ([]CatalogEntry, error) {
	c.mu.RLock()
	entries, fetchedAt := c.entries, c.fetchedAt
	c.mu.RUnlock()

	if entries != nil && (c.ttl == 0 || c.now().Sub(fetchedAt) < c.ttl) {
		return entries, nil
	}

	// The load is shared by every waiting caller, so it must not inherit the
	// cancellation of whichever caller happened to start it.
	ch := c.group.DoChan("catalog", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		fresh, err := c.source.Countries(loadCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries = fresh
		c.fetchedAt = c.now()
		c.mu.Unlock()
		return fresh, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if entries != nil {
				return entries, nil
			}
			return nil, res.Err
		}
		return res.Val.([]CatalogEntry), nil
	case <-ctx.Done():
		if entries != nil {
			return entries, nil
		}
		return nil, ctx.Err()
	}
}

// MatchFirst returns the first entry whose name contains the input or is
// contained by it, ignoring case. Ties go to provider order.
func MatchFirst(entries []CatalogEntry, input string) (CatalogEntry, bool) {
	needle := normalize(input)
	if needle == "" {
		return CatalogEntry{}, false
	}
	for _, e := range entries {
		name := normalize(e.Name)
		if name == "" {
			continue
		}
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
