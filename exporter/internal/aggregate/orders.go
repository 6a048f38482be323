package aggregate

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/storepulse/storepulse/exporter/internal/registry"
	"github.com/storepulse/storepulse/exporter/internal/storeclient"
)

const (
	// LookBack bounds the orders considered by the order reduction.
	LookBack = 90 * 24 * time.Hour
	// TopN is the number of ranked products written per store.
	TopN = 10

	afterLayout = "2006-01-02T15:04:05"
)

// ProductSales is the quantity of one product sold in completed orders.
type ProductSales struct {
	ProductID int64
	Name      string
	Quantity  int
}

// OrderStats is the reduction of one store's recent orders.
type OrderStats struct {
	ByStatus     map[string]int
	Completed    int
	Revenue      float64
	RevenueToday float64
	RevenueMonth float64
	// Top holds at most TopN products by descending quantity. Equal
	// quantities keep the order in which the products were first seen.
	Top []ProductSales
}

// AverageOrderValue is completed revenue over completed orders, 0 when
// there are none.
func (s OrderStats) AverageOrderValue() float64 {
	if s.Completed == 0 {
		return 0
	}
	return s.Revenue / float64(s.Completed)
}

// CollectOrders walks the orders created in the LookBack window before now
// and writes the order series for the store. Nothing is written unless the
// whole walk succeeds.
func (a *Aggregator) CollectOrders(ctx context.Context, src Source, now time.Time) (OrderStats, error) {
	now = now.In(a.loc)
	filter := url.Values{"after": {now.Add(-LookBack).Format(afterLayout)}}

	t := newOrderTally(now, a.loc)
	for page, err := range src.FetchAll(ctx, storeclient.Orders, filter) {
		if err != nil {
			return OrderStats{}, err
		}
		orders, err := storeclient.Decode[storeclient.Order](page)
		if err != nil {
			return OrderStats{}, err
		}
		for _, o := range orders {
			t.add(o)
		}
	}

	stats := t.stats()
	a.writeOrders(src, stats)
	return stats, nil
}

func (a *Aggregator) writeOrders(src Source, s OrderStats) {
	store := src.Store()
	id, name := store.ID, store.DisplayName()

	a.reg.DeletePartial(registry.OrdersTotal, registry.StoreLabels(id, name))
	for status, n := range s.ByStatus {
		a.reg.Set(registry.OrdersTotal, registry.StoreLabels(id, name, registry.LabelStatus, status), float64(n))
	}

	money := registry.StoreLabels(id, name, registry.LabelCurrency, store.Currency)
	a.reg.Set(registry.RevenueTotal, money, s.Revenue)
	a.reg.Set(registry.RevenueToday, money, s.RevenueToday)
	a.reg.Set(registry.RevenueMonth, money, s.RevenueMonth)
	a.reg.Set(registry.AverageOrderValue, money, s.AverageOrderValue())

	// Products that dropped out of the ranking must not linger.
	a.reg.DeletePartial(registry.TopProductsSold, registry.StoreLabels(id, name))
	for i, p := range s.Top {
		a.reg.Set(registry.TopProductsSold, registry.StoreLabels(id, name,
			registry.LabelRank, strconv.Itoa(i+1),
			registry.LabelProductID, strconv.FormatInt(p.ProductID, 10),
			registry.LabelProductName, p.Name,
		), float64(p.Quantity))
	}
}

type orderTally struct {
	now   time.Time
	loc   *time.Location
	out   OrderStats
	sales []ProductSales
	index map[string]int
}

func newOrderTally(now time.Time, loc *time.Location) *orderTally {
	return &orderTally{
		now:   now,
		loc:   loc,
		out:   OrderStats{ByStatus: make(map[string]int)},
		index: make(map[string]int),
	}
}

func (t *orderTally) add(o storeclient.Order) {
	t.out.ByStatus[o.Status]++
	if o.Status != storeclient.StatusCompleted {
		return
	}

	total := float64(o.Total)
	t.out.Completed++
	t.out.Revenue += total

	if created, ok := o.CreatedAt(t.loc); ok {
		y, m, d := created.Date()
		ny, nm, nd := t.now.Date()
		if y == ny && m == nm {
			t.out.RevenueMonth += total
			if d == nd {
				t.out.RevenueToday += total
			}
		}
	}

	for _, li := range o.LineItems {
		key := productKey(li)
		i, ok := t.index[key]
		if !ok {
			i = len(t.sales)
			t.index[key] = i
			t.sales = append(t.sales, ProductSales{ProductID: li.ProductID, Name: li.Name})
		}
		t.sales[i].Quantity += li.Quantity
	}
}

func (t *orderTally) stats() OrderStats {
	ranked := append([]ProductSales(nil), t.sales...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Quantity > ranked[j].Quantity
	})
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}
	t.out.Top = ranked
	return t.out
}

// productKey identifies a line item's product. Deleted products come back
// with id 0 and are told apart by name.
func productKey(li storeclient.LineItem) string {
	if li.ProductID != 0 {
		return strconv.FormatInt(li.ProductID, 10)
	}
	return "name:" + li.Name
}
