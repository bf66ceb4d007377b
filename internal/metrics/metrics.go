// Package metrics exposes run and fetch instrumentation on a private
// Prometheus registry. A nil *Metrics is a valid no-op.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/galois26/event-feed/internal/model"
)

const namespace = "eventfeed"

type Metrics struct {
	reg *prometheus.Registry

	items         *prometheus.CounterVec
	fetchDur      *prometheus.HistogramVec
	runDur        *prometheus.SummaryVec
	lastSuccessTS *prometheus.GaugeVec
	collection    *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.items = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_total",
		Help:      "Processed events by operation and outcome",
	}, []string{"op", "outcome"})
	m.fetchDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Time spent fetching a listing page",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"fetcher", "outcome"})
	m.runDur = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a maintenance run",
	}, []string{"op"})
	m.lastSuccessTS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last run that saved without error",
	}, []string{"op"})
	m.collection = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "collection_events",
		Help:      "Events in the persisted collection by status",
	}, []string{"status"})

	m.reg.MustRegister(
		m.items, m.fetchDur, m.runDur, m.lastSuccessTS, m.collection,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveItem(op, outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveFetch(fetcher string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.fetchDur.WithLabelValues(fetcher, outcome).Observe(d.Seconds())
}

// ObserveRun records a finished run. lastSuccess only moves when ok.
func (m *Metrics) ObserveRun(op string, d time.Duration, ok bool, at time.Time) {
	if m == nil {
		return
	}
	m.runDur.WithLabelValues(op).Observe(d.Seconds())
	if ok {
		m.lastSuccessTS.WithLabelValues(op).Set(float64(at.Unix()))
	}
}

// SetCollection replaces the per-status gauge with the counts in events.
func (m *Metrics) SetCollection(events []model.Event) {
	if m == nil {
		return
	}
	m.collection.Reset()
	for _, s := range []model.Status{model.StatusUpcoming, model.StatusCancelled, model.StatusMoved} {
		m.collection.WithLabelValues(string(s)).Set(0)
	}
	for _, ev := range events {
		status := ev.Status
		if status == "" {
			status = model.StatusUpcoming
		}
		m.collection.WithLabelValues(string(status)).Inc()
	}
}

// Server is a standalone /metrics + /healthz listener for the batch modes.
func (m *Metrics) Server(addr string, readTO, writeTO time.Duration) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
	}
}

// Dump returns a human-readable snapshot of the eventfeed counters and
// gauges (for logging). Histograms and summaries report their sample count.
func (m *Metrics) Dump() string {
	if m == nil {
		return ""
	}
	mfs, err := m.reg.Gather()
	if err != nil {
		return ""
	}
	var out []string
	for _, mf := range mfs {
		name := mf.GetName()
		if !strings.HasPrefix(name, namespace+"_") {
			continue
		}
		for _, mt := range mf.GetMetric() {
			pairs := make([]string, 0, len(mt.GetLabel()))
			for _, lp := range mt.GetLabel() {
				pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
			}
			var v float64
			switch {
			case mt.GetCounter() != nil:
				v = mt.GetCounter().GetValue()
			case mt.GetGauge() != nil:
				v = mt.GetGauge().GetValue()
			case mt.GetHistogram() != nil:
				v = float64(mt.GetHistogram().GetSampleCount())
			case mt.GetSummary() != nil:
				v = float64(mt.GetSummary().GetSampleCount())
			}
			out = append(out, fmt.Sprintf(" %s{%s} %g", name, strings.Join(pairs, ","), v))
		}
	}
	sort.Strings(out)
	return strings.Join(out, "")
}
