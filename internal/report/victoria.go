package report

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/fetch"
)

type victoriaSink struct {
	cfg    config.VictoriaConfig
	client *http.Client
}

func NewVictoria(cfg config.VictoriaConfig) Sink {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &victoriaSink{cfg: cfg, client: fetch.NewHTTPClient(to)}
}

func (v *victoriaSink) Name() string { return "victoria" }

// Push imports the run counts as Prometheus text samples stamped with the
// run's finish time.
func (v *victoriaSink) Push(ctx context.Context, r *Report) error {
	at := r.FinishedAt
	if at.IsZero() {
		at = r.StartedAt
	}
	ms := at.UnixMilli()
	op := escape(r.Op)

	var buf bytes.Buffer
	summary := r.Summary()
	for _, k := range summaryKeys() {
		fmt.Fprintf(&buf, "eventfeed_report_items{op=\"%s\",outcome=\"%s\"} %d %d\n", op, k, summary[k], ms)
	}
	for _, k := range r.ReasonKeys() {
		fmt.Fprintf(&buf, "eventfeed_report_reasons{op=\"%s\",reason=\"%s\"} %d %d\n", op, escape(k), r.Reasons[k], ms)
	}
	fmt.Fprintf(&buf, "eventfeed_report_duration_seconds{op=\"%s\"} %g %d\n", op, r.Duration().Seconds(), ms)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.URL+"/api/v1/import/prometheus", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if ua := v.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("victoria push failed: %s", resp.Status)
	}
	return nil
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}
