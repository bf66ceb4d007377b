package diag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCollector_RingBuffer(t *testing.T) {
	t.Parallel()

	c := New(3)
	for i := 0; i < 5; i++ {
		c.Error("dates", fmt.Sprintf("in-%d", i), "unparseable")
	}

	if c.Len() != 3 {
		t.Fatalf("expected 3 retained entries, got %d", c.Len())
	}
	if c.Dropped() != 2 {
		t.Fatalf("expected 2 dropped entries, got %d", c.Dropped())
	}
	got := c.Entries()
	for i, want := range []string{"in-2", "in-3", "in-4"} {
		if got[i].Input != want {
			t.Fatalf("entry %d: expected %q, got %q", i, want, got[i].Input)
		}
	}

	c.Reset()
	if c.Len() != 0 || c.Dropped() != 0 {
		t.Fatalf("expected empty collector after reset")
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.Error("price", "x", "boom")
	c.Raw("price", "x", "sample")
	if c.Len() != 0 || c.Entries() != nil {
		t.Fatalf("nil collector must stay empty")
	}
}

func TestCollector_Counts(t *testing.T) {
	t.Parallel()

	c := New(10)
	c.Error("dates", "a", "m")
	c.Error("dates", "b", "m")
	c.Raw("extract", "c", "m")

	counts := c.Counts()
	if counts["dates/error"] != 2 || counts["extract/raw"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	comps := c.Components()
	if len(comps) != 2 || comps[0] != "dates" || comps[1] != "extract" {
		t.Fatalf("unexpected components: %v", comps)
	}
}

func TestCollector_TruncatesInput(t *testing.T) {
	t.Parallel()

	c := New(1)
	long := make([]byte, maxInputLen+50)
	for i := range long {
		long[i] = 'x'
	}
	c.Raw("extract", string(long), "sample")
	if got := len(c.Entries()[0].Input); got != maxInputLen {
		t.Fatalf("expected input truncated to %d, got %d", maxInputLen, got)
	}
}

func TestCollector_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	c := New(1)
	// 'é' is two bytes, so the byte limit falls inside a rune
	long := "x" + strings.Repeat("é", maxInputLen)
	c.Raw("extract", long, "sample")
	got := c.Entries()[0].Input
	if !utf8.ValidString(got) {
		t.Fatalf("truncated input is not valid UTF-8: %q", got[len(got)-4:])
	}
	if len(got) > maxInputLen || len(got) < maxInputLen-3 {
		t.Fatalf("len = %d", len(got))
	}
}
