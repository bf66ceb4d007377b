// Package fetch retrieves event detail pages for the enrichment passes.
//
// The capability is chosen by configuration: a static HTTP client, a colly
// collector, or firecrawl for pages that only render in a browser.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/galois26/event-feed/internal/cache"
	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/config"
)

// ErrStatus wraps non-2xx responses.
var ErrStatus = errors.New("unexpected http status")

// Page is a fetched document.
type Page struct {
	URL       string    `json:"url"`
	FinalURL  string    `json:"finalUrl,omitempty"`
	Status    int       `json:"status"`
	HTML      string    `json:"html"`
	Fetcher   string    `json:"fetcher"`
	FetchedAt time.Time `json:"fetchedAt"`
	Cached    bool      `json:"-"`
}

type PageFetcher interface {
	Name() string
	Fetch(ctx context.Context, url string) (Page, error)
}

func statusError(code int) error {
	return fmt.Errorf("%w: %d", ErrStatus, code)
}

// NewFromConfig builds the configured fetcher and wraps it with the page
// cache when one is given.
func NewFromConfig(cfg config.FetchConfig, pages cache.Cache, c clock.Clock) (PageFetcher, error) {
	var f PageFetcher
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "http":
		f = NewHTTP(cfg, c)
	case "colly":
		f = NewColly(cfg, c)
	case "firecrawl":
		fc, err := NewFirecrawl(cfg, c)
		if err != nil {
			return nil, err
		}
		f = fc
	default:
		return nil, fmt.Errorf("unknown fetch mode: %s", cfg.Mode)
	}
	return WithCache(f, pages), nil
}
