package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/galois26/event-feed/internal/config"
	"github.com/galois26/event-feed/internal/model"
)

func ev(id, title string) model.Event {
	return model.Event{
		ID:         id,
		URL:        "https://example.com/e/" + id,
		Title:      title,
		Date:       "2025-01-27T23:00:00-05:00",
		Price:      model.PriceUnavailable,
		Location:   model.LocationUnknown,
		Categories: []string{model.CategoryOther},
		Status:     model.StatusUpcoming,
	}
}

func TestJSONFileMissingIsEmpty(t *testing.T) {
	s := NewJSONFile(filepath.Join(t.TempDir(), "nope", "events.json"))
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestJSONFileRoundTripKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "events.json")
	s := NewJSONFile(path)
	ctx := context.Background()

	in := []model.Event{ev("b", "Second"), ev("a", "First"), ev("c", "Third")}
	in[1].PriceAmount = model.Float(0)
	in[1].Price = model.PriceFree
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len=%d", len(out))
	}
	for i, id := range []string{"b", "a", "c"} {
		if out[i].ID != id {
			t.Fatalf("order[%d]=%s want %s", i, out[i].ID, id)
		}
	}
	if out[1].PriceAmount == nil || *out[1].PriceAmount != 0 {
		t.Fatalf("zero amount must survive: %#v", out[1].PriceAmount)
	}

	// no temp files left next to the collection
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("want only the collection file, got %d entries", len(entries))
	}
}

func TestJSONFileRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	s := NewJSONFile(path)
	err := s.Save(context.Background(), []model.Event{ev("a", "x"), ev("a", "y")})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("want ErrDuplicateID, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("failed save must not create the file")
	}
}

func TestJSONFileEmptyAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	_ = os.WriteFile(empty, []byte("  \n"), 0o644)
	got, err := NewJSONFile(empty).Load(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("empty file: %v %v", got, err)
	}

	bad := filepath.Join(dir, "bad.json")
	_ = os.WriteFile(bad, []byte("{not json"), 0o644)
	if _, err := NewJSONFile(bad).Load(context.Background()); err == nil {
		t.Fatalf("want decode error")
	}
}

func TestFindAndUpsert(t *testing.T) {
	events := []model.Event{ev("a", "A"), ev("b", "B")}
	if _, err := Find(events, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	got, err := Find(events, "b")
	if err != nil || got.Title != "B" {
		t.Fatalf("find b: %v %v", got, err)
	}

	out, added, replaced := Upsert(events, ev("b", "B2"), ev("c", "C"), ev("c", "C2"))
	if added != 1 || replaced != 2 {
		t.Fatalf("added=%d replaced=%d", added, replaced)
	}
	if len(out) != 3 || out[1].Title != "B2" || out[2].Title != "C2" {
		t.Fatalf("unexpected collection: %+v", out)
	}
	if err := checkUnique(out); err != nil {
		t.Fatalf("upsert must keep ids unique: %v", err)
	}
}

func TestRunStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "run-state.json")
	s, err := LoadRunState(path)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if len(s.LastRun) != 0 {
		t.Fatalf("want empty state")
	}
	s.LastRun["enrich"] = RunSummary{
		RunID:      "r1",
		FinishedAt: "2025-01-15T12:00:00-05:00",
		Counts:     map[string]int{"total": 3, "fixed": 1},
	}
	if err := SaveRunState(path, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	back, err := LoadRunState(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if back.LastRun["enrich"].Counts["fixed"] != 1 || back.LastRun["enrich"].RunID != "r1" {
		t.Fatalf("unexpected: %+v", back)
	}
}

func TestNewFromConfig(t *testing.T) {
	s, err := NewFromConfig(context.Background(), config.StoreConfig{Type: "json", Path: "x/events.json"})
	if err != nil || s.Name() != "json:x/events.json" {
		t.Fatalf("json store: %v %v", s, err)
	}
	if _, err := NewFromConfig(context.Background(), config.StoreConfig{Type: "postgres"}); err == nil {
		t.Fatalf("postgres without dsn must fail")
	}
	if _, err := NewFromConfig(context.Background(), config.StoreConfig{Type: "mongo"}); err == nil {
		t.Fatalf("unknown type must fail")
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("EVENTFEED_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("EVENTFEED_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, dsn, "events_test")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer p.Close()

	in := []model.Event{ev("z", "Z"), ev("y", "Y")}
	if err := p.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 2 || out[0].ID != "z" || out[1].ID != "y" {
		t.Fatalf("unexpected rows: %+v", out)
	}
}
