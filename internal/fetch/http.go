package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/config"
)

const (
	defaultUserAgent = "eventfeed/1.0 (+https://github.com/galois26/event-feed)"
	defaultMaxBody   = 4 << 20
)

// HTTP fetches static pages with pacing, retries and a body cap.
type HTTP struct {
	client     *http.Client
	limiter    *rate.Limiter
	userAgent  string
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
	maxBody    int64
	clock      clock.Clock
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func NewHTTP(cfg config.FetchConfig, c clock.Clock) *HTTP {
	to := cfg.Timeout
	if to == 0 {
		to = 20 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &HTTP{
		client:     NewHTTPClient(to),
		limiter:    newLimiter(cfg.RatePerSecond, cfg.Burst),
		userAgent:  ua,
		attempts:   cfg.MaxRetries + 1,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		maxBody:    maxBody,
		clock:      clock.OrSystem(c),
	}
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Fetch(ctx context.Context, url string) (Page, error) {
	var page Page
	err := Retry(ctx, h.attempts, h.backoff, h.maxBackoff, func() error {
		if err := h.limiter.Wait(ctx); err != nil {
			return permanent{err}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return permanent{err}
		}
		req.Header.Set("User-Agent", h.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		req.Header.Set("Accept-Language", "en-CA,en;q=0.9")

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return permanent{ctx.Err()}
			}
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody))
		if err != nil {
			return err
		}
		if resp.StatusCode/100 != 2 {
			if retryable(resp.StatusCode) {
				return waitHint{err: statusError(resp.StatusCode), wait: parseRetryAfter(resp.Header, h.clock.Now())}
			}
			return permanent{statusError(resp.StatusCode)}
		}
		page = Page{
			URL:       url,
			FinalURL:  resp.Request.URL.String(),
			Status:    resp.StatusCode,
			HTML:      string(body),
			Fetcher:   h.Name(),
			FetchedAt: h.clock.Now(),
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}
