package status

import (
	"sync"
	"testing"
	"time"

	"github.com/storepulse/storepulse/exporter/internal/orchestrator"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestObserveCycle(t *testing.T) {
	st := New(5 * time.Minute)
	st.ObserveCycle(orchestrator.CycleResult{StoreID: "a", Success: false, ErrorKind: "orders"})

	e, ok := st.Get("a")
	if !ok {
		t.Fatal("Get: expected entry")
	}
	if e.Last == nil || e.Last.ErrorKind != "orders" {
		t.Errorf("Last: got %+v", e.Last)
	}
	if e.Up == nil || *e.Up {
		t.Errorf("Up: got %v, want false", e.Up)
	}
}

func TestObserveProbe_ThenCycle(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	st := New(5 * time.Minute)

	st.ObserveProbe("a", false, at)
	st.ObserveCycle(orchestrator.CycleResult{StoreID: "a", Success: true})

	e, _ := st.Get("a")
	if !e.ProbedAt.Equal(at) {
		t.Errorf("ProbedAt: got %v", e.ProbedAt)
	}
	if e.Up == nil || !*e.Up {
		t.Error("a successful cycle should mark the store up")
	}
}

func TestGet_Missing(t *testing.T) {
	st := New(5 * time.Minute)
	if _, ok := st.Get("unknown"); ok {
		t.Fatal("Get on empty store: expected false")
	}
}

func TestList_ExcludesStaleAndSorts(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.ObserveProbe("old", true, base)

	st.now = fixedClock(base)
	st.ObserveProbe("zeta", true, base)
	st.ObserveProbe("alpha", true, base)

	entries := st.List()
	if len(entries) != 2 {
		t.Fatalf("List: got %d entries, want 2", len(entries))
	}
	if entries[0].StoreID != "alpha" || entries[1].StoreID != "zeta" {
		t.Errorf("order: got %s, %s", entries[0].StoreID, entries[1].StoreID)
	}
	if st.Count() != 3 {
		t.Errorf("Count: got %d, want 3 (stale not yet evicted)", st.Count())
	}
}

func TestEvict_RemovesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.ObserveProbe("old1", true, base)
	st.ObserveProbe("old2", true, base)

	st.now = fixedClock(base)
	st.ObserveProbe("live", true, base)

	if removed := st.Evict(base); removed != 2 {
		t.Errorf("Evict: removed %d, want 2", removed)
	}
	if st.Count() != 1 {
		t.Errorf("Count after evict: got %d, want 1", st.Count())
	}
}

func TestConcurrentObservers(t *testing.T) {
	st := New(5 * time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.ObserveCycle(orchestrator.CycleResult{StoreID: "a", Success: true})
			st.ObserveProbe("b", true, time.Now())
			_ = st.List()
		}()
	}
	wg.Wait()
	if st.Count() != 2 {
		t.Errorf("Count: got %d, want 2", st.Count())
	}
}
