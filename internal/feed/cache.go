// Package feed holds the client-side listing state: a paginated cache of raw
// listing pages with view-level filtering, and the optimistic vote
// coordinator. Neither knows anything about rendering; the UI layer observes
// state through plain callbacks.
package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/lurkd/lurkd/internal/domain/listing"
)

// Key identifies one cached listing. TimeFilter is only meaningful for
// time-windowed sorts (top, controversial) and stays empty otherwise.
type Key struct {
	Resource   string
	Sort       string
	TimeFilter string
}

func (k Key) String() string {
	return k.Resource + "|" + k.Sort + "|" + k.TimeFilter
}

// Tags returns the invalidation tags this key subscribes to. Invalidating
// "SubredditPosts:golang" drops every sort/time variant of that resource.
func (k Key) Tags() []string {
	return []string{"SubredditPosts:" + strings.ToLower(k.Resource)}
}

// Fetcher loads one listing page. An empty after cursor requests page one.
type Fetcher interface {
	FetchPage(ctx context.Context, key Key, after string) (*listing.Page, error)
}

// View is the filtered read-model handed to the UI layer.
type View struct {
	Things      []listing.Thing
	HasNextPage bool
}

type entry struct {
	pages     []*listing.Page
	after     string
	exhausted bool
	fetchedAt time.Time
	seen      map[string]struct{}
}

// Cache is the paginated feed cache. Raw pages are append-only per key; the
// NSFW filter is applied when reading, so toggling it never refetches.
type Cache struct {
	fetcher Fetcher
	logger  *zap.Logger
	ttl     time.Duration

	mu       sync.Mutex
	entries  *lru.Cache[Key, *entry]
	inFlight map[Key]struct{}
}

// NewCache builds a cache holding at most size keys. A zero ttl disables the
// expiry safety net; tag invalidation remains the primary mechanism.
func NewCache(size int, ttl time.Duration, fetcher Fetcher, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := lru.New[Key, *entry](size)
	if err != nil {
		return nil, fmt.Errorf("create feed cache: %w", err)
	}
	return &Cache{
		fetcher:  fetcher,
		logger:   logger,
		ttl:      ttl,
		entries:  entries,
		inFlight: make(map[Key]struct{}),
	}, nil
}

// Query returns the cached, filtered view for key without network access.
// The second return is false when nothing is cached yet.
func (c *Cache) Query(key Key, showNSFW bool) (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.lookupLocked(key)
	if !ok {
		return View{}, false
	}

	view := View{HasNextPage: !ent.exhausted}
	for _, page := range ent.pages {
		for _, thing := range page.Things {
			if !showNSFW && thing.Over18() {
				continue
			}
			view.Things = append(view.Things, thing)
		}
	}
	return view, true
}

// FetchNextPage loads the next page for key and appends it. It is a no-op
// when the listing is exhausted or a fetch for the same key is already in
// flight; page one is fetched when the key is not cached yet. A cancelled
// context discards the fetched page instead of merging it.
func (c *Cache) FetchNextPage(ctx context.Context, key Key) error {
	c.mu.Lock()
	if _, busy := c.inFlight[key]; busy {
		c.mu.Unlock()
		return nil
	}
	after := ""
	if ent, ok := c.lookupLocked(key); ok {
		if ent.exhausted {
			c.mu.Unlock()
			return nil
		}
		after = ent.after
	}
	c.inFlight[key] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, key)
		c.mu.Unlock()
	}()

	page, err := c.fetcher.FetchPage(ctx, key, after)
	if err != nil {
		return fmt.Errorf("fetch page for %s: %w", key, err)
	}
	if ctx.Err() != nil {
		// The initiating context was torn down mid-flight; nobody observes
		// this key anymore.
		c.logger.Debug("discarding abandoned page fetch", zap.String("key", key.String()))
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.lookupLocked(key)
	if !ok {
		ent = &entry{seen: make(map[string]struct{}), fetchedAt: time.Now()}
		c.entries.Add(key, ent)
	}
	c.appendLocked(ent, page)
	return nil
}

// Invalidate drops every entry subscribed to tag. The next Query misses and
// the caller refetches from upstream.
func (c *Cache) Invalidate(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		for _, candidate := range key.Tags() {
			if candidate == tag {
				c.entries.Remove(key)
				break
			}
		}
	}
}

// lookupLocked returns the live entry for key, evicting it when the TTL
// safety net has lapsed.
func (c *Cache) lookupLocked(key Key) (*entry, bool) {
	ent, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(ent.fetchedAt) > c.ttl {
		c.entries.Remove(key)
		return nil, false
	}
	return ent, true
}

// appendLocked merges one fetched page, de-duplicating by fullname in case
// the provider returns overlapping pages.
func (c *Cache) appendLocked(ent *entry, page *listing.Page) {
	kept := &listing.Page{After: page.After}
	for _, thing := range page.Things {
		name := thing.Fullname()
		if _, dup := ent.seen[name]; dup {
			continue
		}
		ent.seen[name] = struct{}{}
		kept.Things = append(kept.Things, thing)
	}
	ent.pages = append(ent.pages, kept)
	ent.after = page.After
	ent.exhausted = page.After == ""
	ent.fetchedAt = time.Now()
}
