package fetch

import (
	"context"
	"encoding/json"
	"log"

	"github.com/galois26/event-feed/internal/cache"
	"github.com/galois26/event-feed/internal/model"
)

// Cached serves pages fetched inside the cache TTL without a new request.
// Cache failures are logged and never fail the fetch.
type Cached struct {
	next  PageFetcher
	cache cache.Cache
}

// WithCache returns next unchanged when c is nil.
func WithCache(next PageFetcher, c cache.Cache) PageFetcher {
	if c == nil {
		return next
	}
	return &Cached{next: next, cache: c}
}

func (c *Cached) Name() string { return c.next.Name() + "+" + c.cache.Name() }

func (c *Cached) Fetch(ctx context.Context, url string) (Page, error) {
	key := model.CanonicalURL(url)
	if b, ok, err := c.cache.Get(ctx, key); err != nil {
		log.Printf("page cache get %s: %v", url, err)
	} else if ok {
		var p Page
		if err := json.Unmarshal(b, &p); err == nil {
			p.Cached = true
			return p, nil
		}
	}

	p, err := c.next.Fetch(ctx, url)
	if err != nil {
		return Page{}, err
	}
	if b, err := json.Marshal(p); err == nil {
		if err := c.cache.Set(ctx, key, b); err != nil {
			log.Printf("page cache set %s: %v", url, err)
		}
	}
	return p, nil
}
