// Package diag collects normalization telemetry (unparseable inputs, raw
// payload samples) in a bounded ring buffer that callers inject where needed.
package diag

import (
	"sort"
	"sync"
	"time"
	"unicode/utf8"
)

type Kind string

const (
	KindError Kind = "error"
	KindRaw   Kind = "raw"
)

// Entry is one recorded observation.
type Entry struct {
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Component string    `json:"component"`
	Input     string    `json:"input,omitempty"`
	Message   string    `json:"message"`
}

// Collector is a capacity-bounded ring buffer of entries. A nil *Collector
// accepts and discards everything.
type Collector struct {
	mu      sync.Mutex
	buf     []Entry
	next    int
	full    bool
	dropped int
	now     func() time.Time
}

const defaultCapacity = 500

func New(capacity int) *Collector {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Collector{buf: make([]Entry, capacity), now: time.Now}
}

// maxInputLen bounds how much of a raw input is retained per entry.
const maxInputLen = 256

func (c *Collector) Record(kind Kind, component, input, message string) {
	if c == nil {
		return
	}
	if len(input) > maxInputLen {
		cut := maxInputLen
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		c.dropped++
	}
	c.buf[c.next] = Entry{Time: c.now().UTC(), Kind: kind, Component: component, Input: input, Message: message}
	c.next = (c.next + 1) % len(c.buf)
	if c.next == 0 {
		c.full = true
	}
}

// Error is shorthand for an error entry.
func (c *Collector) Error(component, input, message string) {
	c.Record(KindError, component, input, message)
}

// Raw stores a raw payload sample.
func (c *Collector) Raw(component, input, message string) {
	c.Record(KindRaw, component, input, message)
}

// Entries returns the retained entries, oldest first.
func (c *Collector) Entries() []Entry {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.full {
		out := make([]Entry, c.next)
		copy(out, c.buf[:c.next])
		return out
	}
	out := make([]Entry, 0, len(c.buf))
	out = append(out, c.buf[c.next:]...)
	out = append(out, c.buf[:c.next]...)
	return out
}

func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return len(c.buf)
	}
	return c.next
}

// Dropped reports how many entries were overwritten since the last Reset.
func (c *Collector) Dropped() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next, c.full, c.dropped = 0, false, 0
}

// Counts groups retained entries by "component/kind".
func (c *Collector) Counts() map[string]int {
	out := map[string]int{}
	for _, e := range c.Entries() {
		out[e.Component+"/"+string(e.Kind)]++
	}
	return out
}

// Components lists the components seen in the buffer, sorted.
func (c *Collector) Components() []string {
	seen := map[string]struct{}{}
	for _, e := range c.Entries() {
		seen[e.Component] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
