package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/galois26/event-feed/internal/clock"
)

// Memory is a TTL-bound LRU held in process.
type Memory struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	clock clock.Clock
	ll    *list.List               // most-recent at front
	items map[string]*list.Element // key -> element
}

type entry struct {
	key string
	val []byte
	exp time.Time
}

func NewMemory(maxKeys int, ttl time.Duration, c clock.Clock) *Memory {
	if maxKeys <= 0 {
		maxKeys = 5000
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Memory{
		cap:   maxKeys,
		ttl:   ttl,
		clock: clock.OrSystem(c),
		ll:    list.New(),
		items: make(map[string]*list.Element, maxKeys),
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	en := el.Value.(entry)
	if !m.clock.Now().Before(en.exp) {
		m.ll.Remove(el)
		delete(m.items, key)
		return nil, false, nil
	}
	m.ll.MoveToFront(el)
	return en.val, true, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	exp := now.Add(m.ttl)
	if el, ok := m.items[key]; ok {
		el.Value = entry{key: key, val: val, exp: exp}
		m.ll.MoveToFront(el)
		return nil
	}
	m.items[key] = m.ll.PushFront(entry{key: key, val: val, exp: exp})

	for m.ll.Len() > m.cap {
		m.removeBack()
	}
	// expired entries collect at the tail
	for t := m.ll.Back(); t != nil && !now.Before(t.Value.(entry).exp); t = m.ll.Back() {
		m.removeBack()
	}
	return nil
}

func (m *Memory) removeBack() {
	t := m.ll.Back()
	if t == nil {
		return
	}
	m.ll.Remove(t)
	delete(m.items, t.Value.(entry).key)
}

// Len counts live and not yet collected entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

func (m *Memory) Close() error { return nil }
