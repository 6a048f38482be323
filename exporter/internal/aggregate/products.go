package aggregate

import (
	"context"

	"github.com/storepulse/storepulse/exporter/internal/registry"
	"github.com/storepulse/storepulse/exporter/internal/storeclient"
)

// LowStockThreshold is the highest tracked quantity counted as low stock.
const LowStockThreshold = 10

// ProductStats is the reduction of one store's catalogue.
type ProductStats struct {
	ByStatus   map[string]int
	OutOfStock int
	LowStock   int
}

func (s *ProductStats) add(p storeclient.Product) {
	s.ByStatus[p.Status]++

	qty, tracked := 0, p.StockQuantity != nil
	if tracked {
		qty = *p.StockQuantity
	}

	// Out-of-stock is decided first; a product in that bucket is never
	// also low on stock.
	if p.StockStatus == storeclient.StockOutOfStock || (tracked && qty == 0) {
		s.OutOfStock++
	} else if p.ManageStock && tracked && qty <= LowStockThreshold {
		s.LowStock++
	}
}

// CollectProducts walks every product and writes the product series for the
// store. Nothing is written unless the whole walk succeeds.
func (a *Aggregator) CollectProducts(ctx context.Context, src Source) (ProductStats, error) {
	stats := ProductStats{ByStatus: make(map[string]int)}
	for page, err := range src.FetchAll(ctx, storeclient.Products, nil) {
		if err != nil {
			return ProductStats{}, err
		}
		products, err := storeclient.Decode[storeclient.Product](page)
		if err != nil {
			return ProductStats{}, err
		}
		for _, p := range products {
			stats.add(p)
		}
	}

	store := src.Store()
	id, name := store.ID, store.DisplayName()
	a.reg.DeletePartial(registry.ProductsTotal, registry.StoreLabels(id, name))
	for status, n := range stats.ByStatus {
		a.reg.Set(registry.ProductsTotal, registry.StoreLabels(id, name, registry.LabelStatus, status), float64(n))
	}
	a.reg.Set(registry.ProductsOutOfStock, registry.StoreLabels(id, name), float64(stats.OutOfStock))
	a.reg.Set(registry.ProductsLowStock, registry.StoreLabels(id, name), float64(stats.LowStock))
	return stats, nil
}
