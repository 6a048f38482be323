package aggregate

import (
	"context"
	"fmt"

	"github.com/storepulse/storepulse/exporter/internal/registry"
	"github.com/storepulse/storepulse/exporter/internal/storeclient"
)

// CustomerPageLimit caps the customer walk at 10 pages of 100.
const CustomerPageLimit = 10

// CustomerCount is the number of registered customers. Complete is false
// when Count is an estimate: the walk hit CustomerPageLimit, or it failed
// and Count came from a single first-page fetch.
type CustomerCount struct {
	Count    int
	Complete bool
}

// CollectCustomers counts customers and writes the customer series. It only
// fails when both the capped walk and the first-page fallback fail.
func (a *Aggregator) CollectCustomers(ctx context.Context, src Source) (CustomerCount, error) {
	cc, err := a.countCustomers(ctx, src)
	if err != nil {
		return CustomerCount{}, err
	}

	store := src.Store()
	labels := registry.StoreLabels(store.ID, store.DisplayName())
	a.reg.Set(registry.CustomersTotal, labels, float64(cc.Count))
	complete := 0.0
	if cc.Complete {
		complete = 1
	}
	a.reg.Set(registry.CustomersCountComplete, labels, complete)
	return cc, nil
}

func (a *Aggregator) countCustomers(ctx context.Context, src Source) (CustomerCount, error) {
	var (
		count, pages int
		lastFull     bool
		walkErr      error
	)
	for page, err := range src.FetchPages(ctx, storeclient.Customers, nil, CustomerPageLimit) {
		if err != nil {
			walkErr = err
			break
		}
		pages++
		count += page.Len()
		lastFull = page.Len() >= storeclient.PageSize
	}
	if walkErr == nil {
		return CustomerCount{
			Count:    count,
			Complete: !(pages == CustomerPageLimit && lastFull),
		}, nil
	}

	a.logger.Warn("aggregate: customer walk failed, falling back to first page",
		"store", src.Store().ID, "err", walkErr)
	first, err := src.FetchPage(ctx, storeclient.Customers, 1, storeclient.PageSize, nil)
	if err != nil {
		return CustomerCount{}, fmt.Errorf("aggregate: customers: fallback after %v: %w", walkErr, err)
	}
	return CustomerCount{Count: first.Len()}, nil
}
