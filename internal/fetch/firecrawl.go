package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mendableai/firecrawl-go"
	"golang.org/x/time/rate"

	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/config"
)

const defaultFirecrawlURL = "https://api.firecrawl.dev"

// Firecrawl renders pages through the Firecrawl scrape API, for listings
// whose event data only appears after client-side rendering.
type Firecrawl struct {
	app     *firecrawl.FirecrawlApp
	limiter *rate.Limiter
	clock   clock.Clock
}

func NewFirecrawl(cfg config.FetchConfig, c clock.Clock) (*Firecrawl, error) {
	key := strings.TrimSpace(cfg.Firecrawl.APIKey)
	if key == "" {
		return nil, errors.New("fetch.firecrawl.api_key is required")
	}
	apiURL := strings.TrimRight(cfg.Firecrawl.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultFirecrawlURL
	}
	app, err := firecrawl.NewFirecrawlApp(key, apiURL)
	if err != nil {
		return nil, fmt.Errorf("init firecrawl: %w", err)
	}
	return &Firecrawl{
		app:     app,
		limiter: newLimiter(cfg.RatePerSecond, cfg.Burst),
		clock:   clock.OrSystem(c),
	}, nil
}

func (f *Firecrawl) Name() string { return "firecrawl" }

type scrapeResult struct {
	doc *firecrawl.FirecrawlDocument
	err error
}

// Fetch waits for the scrape or for ctx; the client call itself cannot be
// cancelled.
func (f *Firecrawl) Fetch(ctx context.Context, url string) (Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}
	done := make(chan scrapeResult, 1)
	go func() {
		doc, err := f.app.ScrapeURL(url, &firecrawl.ScrapeParams{Formats: []string{"html"}})
		done <- scrapeResult{doc: doc, err: err}
	}()

	var res scrapeResult
	select {
	case <-ctx.Done():
		return Page{}, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return Page{}, fmt.Errorf("firecrawl scrape: %w", res.err)
	}
	if res.doc == nil || strings.TrimSpace(res.doc.HTML) == "" {
		return Page{}, fmt.Errorf("firecrawl scrape %s: empty document", url)
	}
	return Page{
		URL:       url,
		FinalURL:  url,
		Status:    200,
		HTML:      res.doc.HTML,
		Fetcher:   f.Name(),
		FetchedAt: f.clock.Now(),
	}, nil
}
