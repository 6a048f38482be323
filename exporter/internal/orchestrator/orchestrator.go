package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/storepulse/storepulse/exporter/internal/aggregate"
	"github.com/storepulse/storepulse/exporter/internal/config"
	"github.com/storepulse/storepulse/exporter/internal/registry"
	"github.com/storepulse/storepulse/exporter/internal/storeclient"
)

var (
	// ErrNoActiveStores is returned by Initialize when no store client could
	// be built. It is fatal at startup.
	ErrNoActiveStores = errors.New("orchestrator: no active stores")
	// ErrUnknownStore is returned for ids that are not in the active set.
	ErrUnknownStore = errors.New("orchestrator: unknown store")
	// ErrStopped is returned for work requested once shutdown has begun.
	ErrStopped = errors.New("orchestrator: shutting down")
)

const defaultProbeBackoff = time.Second

// State is the lifecycle state of the process.
type State int32

const (
	Idle State = iota
	Initializing
	SteadyState
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case SteadyState:
		return "steady"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Client is what the orchestrator needs from a store client.
type Client interface {
	aggregate.Source
	Probe(ctx context.Context) bool
}

// ClientFactory builds the client for one store.
type ClientFactory func(config.Store) (Client, error)

// CycleResult is the outcome of collecting one store.
type CycleResult struct {
	CycleID    string            `json:"cycle_id"`
	StoreID    string            `json:"store_id"`
	Success    bool              `json:"success"`
	Duration   time.Duration     `json:"duration_ns"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	Branches   map[string]string `json:"branches,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}

// CycleSummary is the outcome of one full cycle. Completed and Failed are
// for logging and operators only.
type CycleSummary struct {
	CycleID   string        `json:"cycle_id"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration_ns"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Results   []CycleResult `json:"results"`
}

// Observer is told about every store collection and probe. Calls come from
// collection goroutines and must not block.
type Observer interface {
	ObserveCycle(CycleResult)
	ObserveProbe(storeID string, up bool, at time.Time)
}

// Orchestrator fans collection cycles out across the active stores.
// All exported methods are safe for concurrent use.
type Orchestrator struct {
	reg       *registry.Registry
	agg       *aggregate.Aggregator
	logger    *slog.Logger
	now       func() time.Time
	limit     int
	backoff   time.Duration
	factory   ClientFactory
	observers []Observer

	mu      sync.RWMutex
	state   State
	clients []Client
	byID    map[string]Client

	inflight sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver adds an observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithConcurrency caps the number of stores collected at once. Zero or
// less means no limit.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.limit = n }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithProbeBackoff sets the delay before the first probe retry. It doubles
// on every further retry.
func WithProbeBackoff(d time.Duration) Option {
	return func(o *Orchestrator) { o.backoff = d }
}

// WithClientFactory replaces storeclient.New as the client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// New returns an Idle orchestrator that collects through agg into reg.
func New(reg *registry.Registry, agg *aggregate.Aggregator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg:     reg,
		agg:     agg,
		logger:  slog.Default(),
		now:     time.Now,
		backoff: defaultProbeBackoff,
		byID:    make(map[string]Client),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.factory == nil {
		o.factory = o.newStoreClient
	}
	return o
}

func (o *Orchestrator) newStoreClient(s config.Store) (Client, error) {
	c, err := storeclient.New(s, storeclient.WithLogger(o.logger.With("store", s.ID)))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	o.logger.Info("orchestrator: state change", "from", prev.String(), "to", s.String())
}

// Stores returns the descriptors of the active stores in configuration order.
func (o *Orchestrator) Stores() []config.Store {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]config.Store, len(o.clients))
	for i, c := range o.clients {
		out[i] = c.Store()
	}
	return out
}

// Initialize builds one client per enabled store and probes each. A store
// whose client cannot be built is left out for the lifetime of the process.
// Probe failures are only logged. It fails with ErrNoActiveStores when no
// client was built.
func (o *Orchestrator) Initialize(ctx context.Context, stores []config.Store) error {
	o.mu.Lock()
	if o.state != Idle {
		st := o.state
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: initialize: state is %s", st)
	}
	o.mu.Unlock()
	o.setState(Initializing)

	var active []Client
	for _, s := range stores {
		if !s.Enabled {
			o.logger.Info("orchestrator: store disabled", "store", s.ID)
			continue
		}
		c, err := o.factory(s)
		if err != nil {
			o.logger.Error("orchestrator: store excluded", "store", s.ID, "err", err)
			continue
		}
		active = append(active, c)
	}
	if len(active) == 0 {
		o.setState(Stopped)
		return ErrNoActiveStores
	}

	o.mu.Lock()
	o.clients = active
	for _, c := range active {
		o.byID[c.Store().ID] = c
	}
	o.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}
	for _, c := range active {
		s := c.Store()
		o.reg.Set(registry.StoreInfo, registry.StoreLabels(s.ID, s.DisplayName(),
			registry.LabelURL, s.URL, registry.LabelCurrency, s.Currency), 1)
		g.Go(func() error {
			o.probeWithRetry(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	o.setState(SteadyState)
	o.logger.Info("orchestrator: initialized", "active_stores", len(active), "configured", len(stores))
	return nil
}

// probeWithRetry probes c up to MaxRetries+1 times, doubling the wait
// between attempts.
func (o *Orchestrator) probeWithRetry(ctx context.Context, c Client) bool {
	s := c.Store()
	wait := o.backoff
	for attempt := 0; ; attempt++ {
		up := c.Probe(ctx)
		if up || attempt >= s.MaxRetries {
			o.recordProbe(s, up)
			if !up {
				o.logger.Warn("orchestrator: store unreachable at startup, collecting anyway",
					"store", s.ID, "attempts", attempt+1)
			}
			return up
		}
		select {
		case <-ctx.Done():
			o.recordProbe(s, false)
			return false
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func (o *Orchestrator) recordProbe(s config.Store, up bool) {
	o.reg.Set(registry.StoreUp, registry.StoreLabels(s.ID, s.DisplayName()), boolGauge(up))
	at := o.now()
	for _, obs := range o.observers {
		obs.ObserveProbe(s.ID, up, at)
	}
}

// begin registers an in-flight collection. It fails once shutdown started.
func (o *Orchestrator) begin() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state == ShuttingDown || o.state == Stopped {
		return false
	}
	o.inflight.Add(1)
	return true
}

// RunCycle collects every active store concurrently and waits for all of
// them. One store failing never affects the others. With no active stores
// it returns at once without touching the registry.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleSummary {
	o.mu.RLock()
	clients := append([]Client(nil), o.clients...)
	o.mu.RUnlock()

	started := o.now()
	sum := CycleSummary{CycleID: uuid.NewString(), Started: started}
	if len(clients) == 0 {
		return sum
	}
	if !o.begin() {
		o.logger.Warn("orchestrator: cycle skipped, shutting down", "cycle", sum.CycleID)
		return sum
	}
	defer o.inflight.Done()

	// Collections are not cancelled mid-flight; per-request timeouts apply.
	ctx = context.WithoutCancel(ctx)

	results := make([]CycleResult, len(clients))
	var g errgroup.Group
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}
	for i, c := range clients {
		g.Go(func() error {
			results[i] = o.collect(ctx, sum.CycleID, c)
			return nil
		})
	}
	_ = g.Wait()

	sum.Results = results
	sum.Duration = o.now().Sub(started)
	for _, r := range results {
		if r.Success {
			sum.Completed++
		} else {
			sum.Failed++
		}
	}
	o.logger.Info("orchestrator: cycle finished",
		"cycle", sum.CycleID, "completed", sum.Completed, "failed", sum.Failed,
		"duration", sum.Duration)
	return sum
}

// RunStore collects a single active store.
func (o *Orchestrator) RunStore(ctx context.Context, id string) (CycleResult, error) {
	c, err := o.client(id)
	if err != nil {
		return CycleResult{}, err
	}
	if !o.begin() {
		return CycleResult{}, ErrStopped
	}
	defer o.inflight.Done()
	return o.collect(context.WithoutCancel(ctx), uuid.NewString(), c), nil
}

// Probe runs one connection probe against an active store and records the
// outcome in the store_up series.
func (o *Orchestrator) Probe(ctx context.Context, id string) (bool, error) {
	c, err := o.client(id)
	if err != nil {
		return false, err
	}
	up := c.Probe(ctx)
	o.recordProbe(c.Store(), up)
	return up, nil
}

func (o *Orchestrator) client(id string) (Client, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, id)
	}
	return c, nil
}

func (o *Orchestrator) collect(ctx context.Context, cycleID string, c Client) CycleResult {
	s := c.Store()
	report := o.agg.CollectStore(ctx, c)

	o.reg.Set(registry.StoreUp, registry.StoreLabels(s.ID, s.DisplayName()), boolGauge(report.OK()))

	res := CycleResult{
		CycleID:    cycleID,
		StoreID:    s.ID,
		Success:    report.OK(),
		Duration:   report.Duration,
		ErrorKind:  string(report.ErrorKind()),
		FinishedAt: report.Started.Add(report.Duration),
	}
	if !report.OK() {
		res.Branches = make(map[string]string, len(report.Errors))
		kinds := make([]string, 0, len(report.Errors))
		for b, err := range report.Errors {
			res.Branches[string(b)] = err.Error()
			kinds = append(kinds, string(b))
		}
		sort.Strings(kinds)
		o.logger.Warn("orchestrator: store collection failed",
			"store", s.ID, "cycle", cycleID, "type", kinds)
	} else {
		o.logger.Debug("orchestrator: store collected",
			"store", s.ID, "cycle", cycleID, "duration", report.Duration)
	}

	for _, obs := range o.observers {
		obs.ObserveCycle(res)
	}
	return res
}

// Run is the scheduler: one cycle right away, then one per interval until
// ctx is cancelled. On cancellation it stops taking new work, waits for
// every in-flight collection (manual ones included) and returns.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("orchestrator: run: interval must be positive, got %s", interval)
	}
	if st := o.State(); st != SteadyState {
		return fmt.Errorf("orchestrator: run: state is %s", st)
	}

	work := context.WithoutCancel(ctx)
	o.RunCycle(work)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.drain()
			return nil
		case <-ticker.C:
			o.RunCycle(work)
		}
	}
}

// Shutdown stops accepting work and waits for in-flight collections. It is
// for callers that never started Run.
func (o *Orchestrator) Shutdown() {
	if st := o.State(); st == ShuttingDown || st == Stopped {
		return
	}
	o.drain()
}

func (o *Orchestrator) drain() {
	o.setState(ShuttingDown)
	o.inflight.Wait()
	o.setState(Stopped)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
