package fetch

import (
	"context"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/config"
)

// Colly fetches through a colly collector. A fresh collector per page keeps
// callbacks of concurrent fetches apart.
type Colly struct {
	limiter *rate.Limiter
	timeout time.Duration
	ua      string
	maxBody int
	clock   clock.Clock
}

func NewColly(cfg config.FetchConfig, c clock.Clock) *Colly {
	to := cfg.Timeout
	if to == 0 {
		to = 20 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	maxBody := int(cfg.MaxBodyBytes)
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Colly{
		limiter: newLimiter(cfg.RatePerSecond, cfg.Burst),
		timeout: to,
		ua:      ua,
		maxBody: maxBody,
		clock:   clock.OrSystem(c),
	}
}

func (f *Colly) Name() string { return "colly" }

func (f *Colly) collector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.ua),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.timeout)
	c.MaxBodySize = f.maxBody
	return c
}

func (f *Colly) Fetch(ctx context.Context, url string) (Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}
	c := f.collector(ctx)

	var (
		page    Page
		got     bool
		failure error
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})
	c.OnResponse(func(r *colly.Response) {
		got = true
		page = Page{
			URL:       url,
			FinalURL:  r.Request.URL.String(),
			Status:    r.StatusCode,
			HTML:      string(r.Body),
			Fetcher:   f.Name(),
			FetchedAt: f.clock.Now(),
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			failure = statusError(r.StatusCode)
			return
		}
		failure = err
	})

	err := c.Visit(url)
	c.Wait()
	switch {
	case failure != nil:
		return Page{}, failure
	case err != nil:
		return Page{}, err
	case !got:
		return Page{}, statusError(0)
	}
	return page, nil
}
