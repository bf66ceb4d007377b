package report

import (
	"context"
	"encoding/json"
	"log"
)

type logSink struct {
	l *log.Logger
}

// NewLog writes each report as one JSON line. A nil logger means log.Default().
func NewLog(l *log.Logger) Sink {
	if l == nil {
		l = log.Default()
	}
	return &logSink{l: l}
}

func (s *logSink) Name() string { return "log" }

func (s *logSink) Push(_ context.Context, r *Report) error {
	line, err := json.Marshal(struct {
		RunID    string         `json:"run_id"`
		Op       string         `json:"op"`
		Duration string         `json:"duration"`
		Counts   Counts         `json:"counts"`
		Reasons  map[string]int `json:"reasons,omitempty"`
		Errors   int            `json:"errors"`
		Diag     map[string]int `json:"diag,omitempty"`
	}{r.RunID, r.Op, r.Duration().String(), r.Counts, r.Reasons, len(r.Errors), r.Diag})
	if err != nil {
		return err
	}
	s.l.Printf("[report] %s", line)
	return nil
}
