package aggregate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/storepulse/storepulse/exporter/internal/config"
	"github.com/storepulse/storepulse/exporter/internal/registry"
	"github.com/storepulse/storepulse/exporter/internal/storeclient"
)

// Branch names one reduction of a store collection. It is also the value of
// the type label on the scrape error counter.
type Branch string

const (
	BranchOrders    Branch = "orders"
	BranchProducts  Branch = "products"
	BranchCustomers Branch = "customers"
	// BranchGeneral covers failures outside a single reduction, such as a
	// recovered panic.
	BranchGeneral Branch = "general"
)

var branchOrder = []Branch{BranchOrders, BranchProducts, BranchCustomers, BranchGeneral}

// Source is the read side of a store client. *storeclient.Client
// implements it.
type Source interface {
	Store() config.Store
	FetchPage(ctx context.Context, recordType storeclient.RecordType, page, pageSize int, filter url.Values) (storeclient.RecordPage, error)
	FetchAll(ctx context.Context, recordType storeclient.RecordType, filter url.Values) iter.Seq2[storeclient.RecordPage, error]
	FetchPages(ctx context.Context, recordType storeclient.RecordType, filter url.Values, maxPages int) iter.Seq2[storeclient.RecordPage, error]
}

// StoreReport is the outcome of one CollectStore call.
type StoreReport struct {
	StoreID   string
	Started   time.Time
	Duration  time.Duration
	Customers CustomerCount
	// Errors holds one entry per failed branch; nil when all succeeded.
	Errors map[Branch]error
}

// OK reports whether every branch succeeded.
func (r StoreReport) OK() bool { return len(r.Errors) == 0 }

// ErrorKind returns the first failed branch in orders, products, customers,
// general order, or "" when none failed.
func (r StoreReport) ErrorKind() Branch {
	for _, b := range branchOrder {
		if _, ok := r.Errors[b]; ok {
			return b
		}
	}
	return ""
}

// Aggregator reduces store records into registry series.
type Aggregator struct {
	reg    *registry.Registry
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now as the observation clock.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLocation sets the location order dates are interpreted in and the
// today/this-month buckets are computed for. Default time.Local.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) { a.loc = loc }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New returns an Aggregator writing into reg, which must declare
// registry.Schema.
func New(reg *registry.Registry, opts ...Option) *Aggregator {
	a := &Aggregator{
		reg:    reg,
		now:    time.Now,
		loc:    time.Local,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CollectStore runs the order, product and customer reductions for one store
// concurrently and waits for all three. A failed branch only increments the
// error counter for its type; the others still write their series. Duration
// and the last-scrape timestamp are written whatever the outcome.
func (a *Aggregator) CollectStore(ctx context.Context, src Source) StoreReport {
	store := src.Store()
	logger := a.logger.With("store", store.ID)
	started := a.now()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs map[Branch]error
		cc   CustomerCount
	)
	fail := func(b Branch, err error) {
		mu.Lock()
		defer mu.Unlock()
		if errs == nil {
			errs = make(map[Branch]error)
		}
		errs[b] = err
	}
	run := func(b Branch, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			branch, err := guard(b, fn)
			if err == nil {
				return
			}
			logger.Warn("aggregate: branch failed", "type", branch, "err", err)
			a.reg.Inc(registry.ScrapeErrors, registry.StoreLabels(store.ID, store.DisplayName(),
				registry.LabelType, string(branch)))
			fail(branch, err)
		}()
	}

	run(BranchOrders, func() error {
		_, err := a.CollectOrders(ctx, src, started)
		return err
	})
	run(BranchProducts, func() error {
		_, err := a.CollectProducts(ctx, src)
		return err
	})
	run(BranchCustomers, func() error {
		c, err := a.CollectCustomers(ctx, src)
		mu.Lock()
		cc = c
		mu.Unlock()
		return err
	})
	wg.Wait()

	finished := a.now()
	labels := registry.StoreLabels(store.ID, store.DisplayName())
	a.reg.Set(registry.ScrapeDuration, labels, finished.Sub(started).Seconds())
	a.reg.Set(registry.LastScrapeSuccess, labels, float64(finished.Unix()))

	report := StoreReport{
		StoreID:   store.ID,
		Started:   started,
		Duration:  finished.Sub(started),
		Customers: cc,
		Errors:    errs,
	}
	logger.Debug("aggregate: store collected",
		"duration", report.Duration, "failed_branches", len(errs))
	return report
}

// guard runs fn and turns a panic into a BranchGeneral error. Schema errors
// are code defects and keep panicking.
func guard(b Branch, fn func() error) (branch Branch, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			var se *registry.SchemaError
			if errors.As(e, &se) {
				panic(r)
			}
		}
		branch = BranchGeneral
		err = fmt.Errorf("aggregate: %s reduction panicked: %v", b, r)
	}()
	return b, fn()
}
