package status

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/storepulse/storepulse/exporter/internal/orchestrator"
)

// Entry is what is known about one store.
type Entry struct {
	StoreID   string                    `json:"store_id"`
	Up        *bool                     `json:"up,omitempty"`
	ProbedAt  time.Time                 `json:"probed_at,omitzero"`
	Last      *orchestrator.CycleResult `json:"last_cycle,omitempty"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Store is a thread-safe map of Entry keyed by store id. It implements
// orchestrator.Observer.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time
}

var _ orchestrator.Observer = (*Store)(nil)

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *Store) entry(id string) *Entry {
	e, ok := s.data[id]
	if !ok {
		e = &Entry{StoreID: id}
		s.data[id] = e
	}
	e.UpdatedAt = s.now()
	return e
}

// ObserveCycle records the latest collection result of a store.
func (s *Store) ObserveCycle(res orchestrator.CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(res.StoreID)
	e.Last = &res
	up := res.Success
	e.Up = &up
}

// ObserveProbe records the latest probe outcome of a store.
func (s *Store) ObserveProbe(storeID string, up bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(storeID)
	e.Up = &up
	e.ProbedAt = at
}

// Get returns a copy of the entry for id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns copies of the entries updated within the TTL, by store id.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out
}

// Count returns the number of entries held, stale ones included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries not updated since now minus TTL and returns how
// many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every half TTL (at least once a second) until
// ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("status: evicted stale entries", "count", n)
			}
		}
	}
}
