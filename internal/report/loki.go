package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/fetch"
)

type lokiSink struct {
	cfg    config.LokiConfig
	client *http.Client
}

func NewLoki(cfg config.LokiConfig) Sink {
	to := cfg.Timeout
	if to == 0 {
		to = 10 * time.Second
	}
	if cfg.Job == "" {
		cfg.Job = "eventfeed"
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &lokiSink{cfg: cfg, client: fetch.NewHTTPClient(to)}
}

func (l *lokiSink) Name() string { return "loki" }

// Push sends the summary as one log line; every item error follows as its
// own line in an "errors" stream so they can be grepped by URL.
func (l *lokiSink) Push(ctx context.Context, r *Report) error {
	type stream struct {
		Stream map[string]string `json:"stream"`
		Values [][2]string       `json:"values"`
	}
	payload := struct {
		Streams []stream `json:"streams"`
	}{}

	at := r.FinishedAt
	if at.IsZero() {
		at = r.StartedAt
	}
	ts := at.UnixNano()

	line, _ := json.Marshal(map[string]any{
		"run_id":   r.RunID,
		"op":       r.Op,
		"duration": r.Duration().String(),
		"counts":   r.Counts,
		"reasons":  r.Reasons,
		"diag":     r.Diag,
	})
	payload.Streams = append(payload.Streams, stream{
		Stream: map[string]string{"job": l.cfg.Job, "op": r.Op, "kind": "summary"},
		Values: [][2]string{{fmt.Sprintf("%d", ts), string(line)}},
	})

	if len(r.Errors) > 0 {
		errStream := stream{Stream: map[string]string{"job": l.cfg.Job, "op": r.Op, "kind": "errors"}}
		for i, e := range r.Errors {
			b, _ := json.Marshal(map[string]string{"run_id": r.RunID, "id": e.ID, "url": e.URL, "message": e.Message})
			// nanosecond offsets keep lines distinct inside one stream
			errStream.Values = append(errStream.Values, [2]string{fmt.Sprintf("%d", ts+int64(i)+1), string(b)})
		}
		payload.Streams = append(payload.Streams, errStream)
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL+"/loki/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", l.cfg.TenantID)
	}
	if ua := l.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("loki push failed http %d", resp.StatusCode)
	}
	return nil
}
