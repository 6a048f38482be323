// Package aggregate reduces a store's orders, products and customers into
// the exported series.
//
// CollectStore runs three reductions concurrently for one store:
//
//   - orders: the last 90 days, counted by status; completed orders feed
//     total, today and this-month revenue, the average order value and the
//     top 10 product ranking
//   - products: counted by status, plus out-of-stock and low-stock buckets
//     that never overlap
//   - customers: a walk capped at 10 pages, falling back to one page
//
// A reduction writes only after its whole walk succeeded. A failed reduction
// increments woocommerce_scrape_errors_total for its type and does not stop
// the other two. A panic inside a reduction is recovered and counted under
// the general type.
//
// The observation time is taken once, when CollectStore starts, and all
// calendar comparisons use the Aggregator's location.
package aggregate
