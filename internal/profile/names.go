// Package profile resolves member display names and owns profile updates.
package profile

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"techcomm/internal/config"
	"techcomm/internal/metrics"
	"techcomm/internal/store"
)

// Fetcher loads display names for a batch of ids in one call. Ids without
// a stored name are left out of the result.
type Fetcher interface {
	FetchNames(ctx context.Context, ids []string) (map[string]string, error)
}

// StoreFetcher reads names from the students collection.
type StoreFetcher struct {
	Students store.StudentStore
}

func (f StoreFetcher) FetchNames(ctx context.Context, ids []string) (map[string]string, error) {
	found, err := f.Students.Query(ctx, store.OneOf(store.StudentIDField, ids...))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(found))
	for _, s := range found {
		if name := strings.TrimSpace(s.Name); name != "" {
			out[s.UID] = name
		}
	}
	return out, nil
}

// NameCache maps member ids to display names, keeping each entry for a
// fixed TTL.
type NameCache struct {
	fetcher Fetcher
	timeout time.Duration
	lru     *expirable.LRU[string, string]
	group   singleflight.Group
}

func NewNameCache(f Fetcher, cfg config.Profile) *NameCache {
	size := cfg.Size
	if size < 1 {
		size = 4096
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &NameCache{
		fetcher: f,
		timeout: cfg.FetchTimeout,
		lru:     expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// Placeholder is the name shown for ids without a stored name.
func Placeholder(id string) string {
	short := id
	if len(short) > 5 {
		short = short[:5]
	}
	return "User (" + short + ")"
}

// FetchNamesBatch resolves every id. Cached ids are served without a fetch;
// the rest are loaded in one batch shared by identical concurrent calls.
// On a fetch error the names resolved so far are returned with the error.
func (c *NameCache) FetchNamesBatch(ctx context.Context, ids []string) (map[string]string, error) {
	names := map[string]string{}
	var missing []string
	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if name, ok := c.lru.Get(id); ok {
			metrics.NameCacheLookups.WithLabelValues("hit").Inc()
			names[id] = name
			continue
		}
		metrics.NameCacheLookups.WithLabelValues("miss").Inc()
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return names, nil
	}
	sort.Strings(missing)
	v, err, _ := c.group.Do(strings.Join(missing, "\x00"), func() (any, error) {
		fctx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		return c.fetcher.FetchNames(fctx, missing)
	})
	if err != nil {
		return names, err
	}
	fetched, ok := v.(map[string]string)
	if !ok {
		return names, errors.New("profile: unexpected fetch result")
	}
	for _, id := range missing {
		name, ok := fetched[id]
		if !ok {
			name = Placeholder(id)
		}
		c.lru.Add(id, name)
		names[id] = name
	}
	return names, nil
}

// Name resolves a single id.
func (c *NameCache) Name(ctx context.Context, id string) (string, error) {
	names, err := c.FetchNamesBatch(ctx, []string{id})
	if err != nil {
		return Placeholder(id), err
	}
	return names[id], nil
}

// Invalidate drops a cached name.
func (c *NameCache) Invalidate(id string) {
	c.lru.Remove(id)
}
