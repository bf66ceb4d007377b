package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/galois26/event-feed/internal/categorize"
	"github.com/galois26/event-feed/internal/clock"
	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/dates"
	"github.com/galois26/event-feed/internal/diag"
	"github.com/galois26/event-feed/internal/enrich"
	"github.com/galois26/event-feed/internal/extract"
	"github.com/galois26/event-feed/internal/fetch"
	"github.com/galois26/event-feed/internal/model"
	"github.com/galois26/event-feed/internal/pipeline"
	"github.com/galois26/event-feed/internal/quality"
	"github.com/galois26/event-feed/internal/report"
	"github.com/galois26/event-feed/internal/sanitize"
	"github.com/galois26/event-feed/internal/store"
)

var now = time.Date(2025, 1, 15, 12, 0, 0, 0, dates.Civil())

type memStore struct {
	mu     sync.Mutex
	events []model.Event
	saves  int
}

func (s *memStore) Name() string { return "mem" }

func (s *memStore) Load(context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...), nil
}

func (s *memStore) Save(_ context.Context, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.events = append([]model.Event(nil), events...)
	return nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(_ context.Context, url string) (fetch.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return fetch.Page{}, err
	}
	html, ok := f.pages[url]
	if !ok {
		return fetch.Page{}, fmt.Errorf("%w: 404", fetch.ErrStatus)
	}
	return fetch.Page{URL: url, Status: 200, HTML: html, Fetcher: "fake"}, nil
}

type captureSink struct{ reports []*report.Report }

func (c *captureSink) Name() string { return "capture" }
func (c *captureSink) Push(_ context.Context, r *report.Report) error {
	c.reports = append(c.reports, r)
	return nil
}

type harness struct {
	runner *Runner
	store  *memStore
	fetch  *fakeFetcher
	sink   *captureSink
	sleeps []time.Duration
}

func newHarness(t *testing.T, opts Options, events ...model.Event) *harness {
	t.Helper()
	c := clock.NewFixed(now)
	d := diag.New(100)
	n := dates.New(c, dates.WithDiag(d))
	s := sanitize.New(config.SanitizeConfig{})
	cats, err := categorize.New(config.CategoriesConfig{})
	if err != nil {
		t.Fatal(err)
	}
	gate := quality.New(config.GateConfig{
		PriceCeiling: 120,
		PriceMode:    "reject",
		MaxPast:      24 * time.Hour,
		MaxFuture:    365 * 24 * time.Hour,
	}, c, n)
	h := &harness{
		store: &memStore{events: events},
		fetch: &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}},
		sink:  &captureSink{},
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 5
	}
	h.runner = New(Deps{
		Store:     h.store,
		Fetcher:   h.fetch,
		Extractor: extract.New(d),
		Engine:    enrich.New(n, s, c, enrich.DefaultPolicies(gate, s, config.PolicyConfig{})...),
		Gate:      gate,
		Builder:   pipeline.NewBuilder(n, s, cats, c, d),
		Sanitizer: s,
		Sinks:     []report.Sink{h.sink},
		Diag:      d,
		Clock:     c,
	}, opts)
	h.runner.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func url(id string) string { return "https://tickets.test/e/" + id }

// stub is a freshly scraped event with nothing but a title and a date.
func stub(id string) model.Event {
	return model.Event{
		ID:            model.EventID(url(id)),
		URL:           url(id),
		Title:         "Event " + id,
		Description:   sanitize.DefaultFallbackDescription,
		Image:         sanitize.DefaultFallbackImage,
		Date:          "2025-01-27T23:00:00-05:00",
		Price:         model.PriceUnavailable,
		Location:      "Toronto",
		Categories:    []string{"Nightlife"},
		Status:        model.StatusUpcoming,
		GenderSoldOut: model.GenderNone,
	}
}

func full(id string) model.Event {
	ev := stub(id)
	ev.Description = "A long evening of readings from local poets upstairs."
	ev.Image = "https://cdn.tickets.test/img/" + id + ".jpg"
	ev.EndDate = "2025-01-28T02:00:00-05:00"
	ev.PriceAmount = model.Float(20)
	ev.Price = "$20"
	return ev
}

func ldPage(amount string) string {
	return `<html><head><script type="application/ld+json">{
		"@context": "https://schema.org",
		"@type": "Event",
		"name": "Warehouse Night",
		"description": "An all-night warehouse party with three rooms of techno and house.",
		"startDate": "2025-01-27T23:00:00-05:00",
		"endDate": "2025-01-28T04:00:00-05:00",
		"offers": {"@type": "Offer", "price": "` + amount + `", "priceCurrency": "CAD", "availability": "https://schema.org/InStock"}
	}</script></head><body><p>Tickets on sale now.</p></body></html>`
}

func TestEnrichMergesAndCountsFailures(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "run-state.json")
	h := newHarness(t, Options{Scope: ScopeIncomplete, StatePath: statePath}, stub("a"), stub("b"), full("c"))
	h.fetch.pages[url("a")] = ldPage("25")
	h.fetch.errs[url("b")] = fmt.Errorf("%w: 503", fetch.ErrStatus)

	rep, err := h.runner.Enrich(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := report.Counts{Total: 2, Fixed: 1, Errored: 1}
	if rep.Counts != want {
		t.Fatalf("counts=%+v want %+v", rep.Counts, want)
	}
	if len(rep.Errors) != 1 || rep.Errors[0].URL != url("b") || !strings.Contains(rep.Errors[0].Message, "503") {
		t.Fatalf("errors=%+v", rep.Errors)
	}
	for _, u := range h.fetch.calls {
		if u == url("c") {
			t.Fatal("complete event must not be re-fetched")
		}
	}

	if h.store.saves != 1 {
		t.Fatalf("saves=%d", h.store.saves)
	}
	a := h.store.events[0]
	if a.PriceAmount == nil || *a.PriceAmount != 25 {
		t.Fatalf("a price=%v %q", a.PriceAmount, a.Price)
	}
	if a.EndDate != "2025-01-28T04:00:00-05:00" || !strings.HasPrefix(a.Description, "An all-night") {
		t.Fatalf("a not merged: %+v", a)
	}
	if a.LastUpdated != "2025-01-15T12:00:00-05:00" {
		t.Fatalf("lastUpdated=%q", a.LastUpdated)
	}
	if b := h.store.events[1]; b.Price != model.PriceUnavailable || b.LastUpdated != "" {
		t.Fatalf("failed fetch must leave the event alone: %+v", b)
	}

	if len(h.sink.reports) != 1 || h.sink.reports[0] != rep {
		t.Fatalf("sink reports=%d", len(h.sink.reports))
	}
	st, err := store.LoadRunState(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if got := st.LastRun["enrich"]; got.RunID != rep.RunID || got.Counts["fixed"] != 1 || got.Errors != 1 {
		t.Fatalf("run state=%+v", got)
	}
}

func TestEnrichOverCeilingCancelsAndRetains(t *testing.T) {
	h := newHarness(t, Options{Scope: ScopeAll}, stub("a"))
	h.fetch.pages[url("a")] = ldPage("699")

	rep, err := h.runner.Enrich(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Counts.Cancelled != 1 || rep.Counts.Rejected != 1 {
		t.Fatalf("counts=%+v", rep.Counts)
	}
	if rep.Reasons[model.ReasonPriceOverCeiling] != 1 {
		t.Fatalf("reasons=%v", rep.Reasons)
	}
	if len(h.store.events) != 1 {
		t.Fatal("cancelled event must stay in the collection")
	}
	ev := h.store.events[0]
	if ev.Status != model.StatusCancelled || ev.StatusReason != model.ReasonPriceOverCeiling || *ev.PriceAmount != 699 {
		t.Fatalf("event=%+v", ev)
	}
}

func TestEnrichBatchesAndDelays(t *testing.T) {
	var events []model.Event
	h := newHarness(t, Options{
		Scope:      ScopeAll,
		BatchSize:  2,
		ItemDelay:  10 * time.Millisecond,
		BatchDelay: time.Second,
	})
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		events = append(events, stub(id))
		h.fetch.pages[url(id)] = ldPage("30")
	}
	h.store.events = events

	rep, err := h.runner.Enrich(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Counts.Total != 5 || rep.Counts.Fixed != 5 {
		t.Fatalf("counts=%+v", rep.Counts)
	}
	want := []time.Duration{10 * time.Millisecond, time.Second, 10 * time.Millisecond, time.Second}
	if fmt.Sprint(h.sleeps) != fmt.Sprint(want) {
		t.Fatalf("sleeps=%v want %v", h.sleeps, want)
	}
	// merges are applied in candidate order
	for i, ev := range h.store.events {
		if ev.ID != events[i].ID {
			t.Fatalf("order changed at %d", i)
		}
	}
}

func TestEnrichStopsBetweenBatchesAndKeepsProgress(t *testing.T) {
	h := newHarness(t, Options{Scope: ScopeAll, BatchSize: 2, BatchDelay: time.Minute})
	for _, id := range []string{"1", "2", "3"} {
		h.store.events = append(h.store.events, stub(id))
		h.fetch.pages[url(id)] = ldPage("30")
	}
	h.runner.sleep = func(_ context.Context, d time.Duration) error {
		if d == time.Minute {
			return context.Canceled
		}
		return nil
	}

	rep, err := h.runner.Enrich(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if rep.Counts.Total != 2 || h.store.saves != 1 {
		t.Fatalf("total=%d saves=%d", rep.Counts.Total, h.store.saves)
	}
	if h.store.events[2].PriceAmount != nil {
		t.Fatal("third event was never fetched")
	}
}

func TestSelectCandidates(t *testing.T) {
	noURL := stub("x")
	noURL.URL = ""
	cancelled := stub("y")
	cancelled.Status = model.StatusCancelled
	old := full("old")
	old.Date, old.EndDate = "2025-01-01T20:00:00-05:00", "2025-01-01T23:00:00-05:00"
	events := []model.Event{noURL, cancelled, stub("a"), full("b"), old, stub("c")}

	cases := []struct {
		scope Scope
		limit int
		want  []int
	}{
		{ScopeIncomplete, 0, []int{2, 5}},
		{ScopeIncomplete, 1, []int{2}},
		{ScopeAll, 0, []int{1, 2, 3, 4, 5}},
		{ScopeAll, 2, []int{1, 2}},
		{ScopeUpcoming, 0, []int{2, 3, 5}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s-%d", tc.scope, tc.limit), func(t *testing.T) {
			h := newHarness(t, Options{Scope: tc.scope, Limit: tc.limit})
			got := h.runner.selectCandidates(events)
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestAuditNeverWrites(t *testing.T) {
	undated := stub("u")
	undated.Date = ""
	h := newHarness(t, Options{}, stub("a"), stub("a"), undated, full("b"))

	rep, err := h.runner.Audit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h.store.saves != 0 {
		t.Fatal("audit must not save")
	}
	if rep.Counts.Total != 4 || rep.Counts.Rejected != 1 || rep.Counts.Valid != 3 || rep.Counts.Deduped != 1 {
		t.Fatalf("counts=%+v", rep.Counts)
	}
	for reason, n := range map[string]int{
		ReasonDuplicateID:            1,
		ReasonPriceUnavailable:       3,
		ReasonDescriptionStub:        3,
		ReasonImageFallback:          3,
		model.ReasonDateUnresolvable: 1,
	} {
		if rep.Reasons[reason] != n {
			t.Fatalf("reason %s=%d want %d (%v)", reason, rep.Reasons[reason], n, rep.Reasons)
		}
	}
}

func TestRenormalizeFixesLegacyRecords(t *testing.T) {
	legacy := stub("old")
	legacy.Date = "Jan 27 | 11:00 PM"
	legacy.Price = "CA$23.50"
	h := newHarness(t, Options{}, legacy, full("ok"))

	rep, err := h.runner.Renormalize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Counts.Fixed != 1 || rep.Counts.Valid != 1 {
		t.Fatalf("counts=%+v changes=%+v", rep.Counts, rep.Changes)
	}
	got := h.store.events[0]
	if got.Date != "2025-01-27T23:00:00-05:00" || got.Price != "$23.50" || *got.PriceAmount != 23.5 {
		t.Fatalf("legacy=%+v", got)
	}
	if got.LastUpdated != "2025-01-15T12:00:00-05:00" {
		t.Fatalf("lastUpdated=%q", got.LastUpdated)
	}
	if h.store.events[1].LastUpdated != "" {
		t.Fatal("unchanged record must keep its lastUpdated")
	}

	// a second pass has nothing left to fix
	rep, err = h.runner.Renormalize(context.Background())
	if err != nil || rep.Counts.Fixed != 0 {
		t.Fatalf("second pass fixed=%d err=%v", rep.Counts.Fixed, err)
	}
}

func TestPrune(t *testing.T) {
	p1 := stub("p1")
	p2 := stub("p2")
	p2.Status, p2.StatusReason = model.StatusCancelled, model.ReasonSoldOut
	p2.Date = "2025-01-10T20:00:00-05:00"
	p3 := stub("p3")
	p3.Status, p3.StatusReason = model.StatusCancelled, model.ReasonSoldOut
	p3.Date = "2025-02-01T20:00:00-05:00"
	p4 := stub("p4")
	p4.Date = ""
	p5 := stub("p5")
	p5.PriceAmount, p5.Price = model.Float(699), "$699"

	h := newHarness(t, Options{Keep: quality.KeepLatest}, p1, p2, p1, p3, p4, p5)
	rep, err := h.runner.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Counts.Deduped != 1 || rep.Counts.Removed != 2 || rep.Counts.Total != 5 || rep.Counts.Valid != 3 {
		t.Fatalf("counts=%+v", rep.Counts)
	}
	if rep.Reasons[ReasonCancelledPast] != 1 || rep.Reasons[model.ReasonDateUnresolvable] != 1 {
		t.Fatalf("reasons=%v", rep.Reasons)
	}
	var ids []string
	for _, ev := range h.store.events {
		ids = append(ids, strings.TrimPrefix(ev.URL, url("")))
	}
	if strings.Join(ids, ",") != "p1,p3,p5" {
		t.Fatalf("kept=%v", ids)
	}
}

func TestIngestUpsertsAndKeepsTerminalStatus(t *testing.T) {
	existing := stub("a")
	existing.Status, existing.StatusReason = model.StatusCancelled, model.ReasonSoldOut
	h := newHarness(t, Options{}, existing)

	records := []pipeline.RawRecord{
		{URL: url("a"), Title: "Event a", Date: "2025-01-27T23:00:00-05:00", Price: "$25"},
		{URL: url("b"), Title: "Poetry Night", Date: "2025-01-30T20:00:00-05:00", Price: "Free"},
		{URL: url("c"), Title: "Mystery", Date: "TBA"},
		{Title: "No URL"},
		{URL: url("b") + "?utm_source=feed", Title: "Poetry Night", Date: "2025-01-30T20:00:00-05:00", Price: "Free"},
	}
	rep, err := h.runner.Ingest(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	want := report.Counts{Total: 5, Valid: 2, Fixed: 1, Rejected: 1, Errored: 1, Added: 1, Deduped: 1}
	if rep.Counts != want {
		t.Fatalf("counts=%+v want %+v", rep.Counts, want)
	}
	if len(h.store.events) != 2 {
		t.Fatalf("stored=%d", len(h.store.events))
	}
	a := h.store.events[0]
	if a.Status != model.StatusCancelled || a.StatusReason != model.ReasonSoldOut {
		t.Fatalf("cancelled must be sticky: %s %s", a.Status, a.StatusReason)
	}
	if a.PriceAmount == nil || *a.PriceAmount != 25 {
		t.Fatalf("fresh fields must still land: %v", a.PriceAmount)
	}
	if b := h.store.events[1]; b.Price != model.PriceFree || b.ID != model.EventID(url("b")) {
		t.Fatalf("b=%+v", b)
	}
	if len(rep.Errors) != 1 || !strings.Contains(rep.Errors[0].Message, "no url") {
		t.Fatalf("error=%+v", rep.Errors[0])
	}
}

func TestIngestKeepsEnrichedFields(t *testing.T) {
	stored := full("a")
	stored.Description = strings.Repeat("Three rooms of techno and house until sunrise. ", 10)
	stored.TicketTypes = []model.TicketType{{Name: "General", Price: "$25"}}
	stored.PriceAmount, stored.Price = model.Float(25), "$25"
	stored.Location = "Rebel, 11 Polson St"
	h := newHarness(t, Options{}, stored)

	records := []pipeline.RawRecord{{
		URL:      url("a"),
		Title:    "Event a",
		Date:     "2025-01-27T23:00:00-05:00",
		Price:    "See tickets",
		Location: "Toronto",
	}}
	rep, err := h.runner.Ingest(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Counts.Valid != 1 || rep.Counts.Fixed != 0 {
		t.Fatalf("counts=%+v", rep.Counts)
	}
	got := h.store.events[0]
	if got.Description != stored.Description {
		t.Fatalf("description=%q", enrich.Clip(got.Description))
	}
	if got.EndDate != stored.EndDate {
		t.Fatalf("endDate=%q", got.EndDate)
	}
	if len(got.TicketTypes) != 1 {
		t.Fatalf("tickets=%+v", got.TicketTypes)
	}
	if got.PriceAmount == nil || *got.PriceAmount != 25 || got.Price != "$25" {
		t.Fatalf("price=%q %v", got.Price, got.PriceAmount)
	}
	if got.Location != stored.Location || got.Image != stored.Image {
		t.Fatalf("location=%q image=%q", got.Location, got.Image)
	}
}

func TestIngestFoldsFreshValues(t *testing.T) {
	stored := stub("a")
	stored.Location = model.LocationUnknown
	h := newHarness(t, Options{}, stored)

	records := []pipeline.RawRecord{{
		URL:         url("a"),
		Title:       "Warehouse Night",
		Description: "An all-night warehouse party with three rooms of techno and house.",
		Date:        "2025-01-27T23:00:00-05:00",
		EndDate:     "2025-01-28T04:00:00-05:00",
		Price:       "$30",
		Location:    "Rebel, 11 Polson St",
	}}
	rep, err := h.runner.Ingest(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Counts.Fixed != 1 {
		t.Fatalf("counts=%+v", rep.Counts)
	}
	got := h.store.events[0]
	if got.Title != "Warehouse Night" || got.Location != "Rebel, 11 Polson St" {
		t.Fatalf("title=%q location=%q", got.Title, got.Location)
	}
	if got.EndDate != "2025-01-28T04:00:00-05:00" || got.PriceAmount == nil || *got.PriceAmount != 30 {
		t.Fatalf("endDate=%q price=%v", got.EndDate, got.PriceAmount)
	}
	if !strings.HasPrefix(got.Description, "An all-night") {
		t.Fatalf("description=%q", got.Description)
	}
	if !got.HasCategory("Nightlife") {
		t.Fatalf("stored categories dropped: %v", got.Categories)
	}
}

func TestFoldStatus(t *testing.T) {
	h := newHarness(t, Options{})
	cases := []struct {
		old, fresh model.Status
		want       model.Status
	}{
		{model.StatusUpcoming, model.StatusUpcoming, model.StatusUpcoming},
		{model.StatusCancelled, model.StatusUpcoming, model.StatusCancelled},
		{model.StatusMoved, model.StatusUpcoming, model.StatusMoved},
		{model.StatusUpcoming, model.StatusMoved, model.StatusMoved},
		{model.StatusMoved, model.StatusCancelled, model.StatusCancelled},
		{model.StatusUpcoming, model.StatusCancelled, model.StatusCancelled},
	}
	for _, tc := range cases {
		old := stub("a")
		old.Status = tc.old
		f := stub("a")
		f.Status = tc.fresh
		if tc.fresh == model.StatusCancelled {
			f.StatusReason = model.ReasonSoldOut
		}
		if got, _ := h.runner.fold(old, f); got.Status != tc.want {
			t.Fatalf("%s + %s = %s want %s", tc.old, tc.fresh, got.Status, tc.want)
		}
	}
}

func TestRunDispatch(t *testing.T) {
	if _, err := ParseOp("serve"); err == nil {
		t.Fatal("serve is not a runner operation")
	}
	op, err := ParseOp("audit")
	if err != nil || op != OpAudit {
		t.Fatalf("op=%v err=%v", op, err)
	}
	h := newHarness(t, Options{}, full("a"))
	rep, err := h.runner.Run(context.Background(), op, nil)
	if err != nil || rep.Op != "audit" || rep.Counts.Valid != 1 {
		t.Fatalf("rep=%+v err=%v", rep, err)
	}
}
