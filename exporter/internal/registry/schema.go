package registry

import "github.com/prometheus/client_golang/prometheus"

// Label names shared by the exported series.
const (
	LabelStoreID     = "store_id"
	LabelStoreName   = "store_name"
	LabelStatus      = "status"
	LabelCurrency    = "currency"
	LabelRank        = "rank"
	LabelProductID   = "product_id"
	LabelProductName = "product_name"
	LabelType        = "type"
	LabelURL         = "url"
)

// Series names.
const (
	OrdersTotal            = "woocommerce_orders_total"
	RevenueTotal           = "woocommerce_revenue_total"
	RevenueToday           = "woocommerce_revenue_today"
	RevenueMonth           = "woocommerce_revenue_month"
	AverageOrderValue      = "woocommerce_average_order_value"
	TopProductsSold        = "woocommerce_top_products_sold"
	ProductsTotal          = "woocommerce_products_total"
	ProductsOutOfStock     = "woocommerce_products_out_of_stock"
	ProductsLowStock       = "woocommerce_products_low_stock"
	CustomersTotal         = "woocommerce_customers_total"
	CustomersCountComplete = "woocommerce_customers_count_complete"
	ScrapeDuration         = "woocommerce_scrape_duration_seconds"
	ScrapeErrors           = "woocommerce_scrape_errors_total"
	LastScrapeSuccess      = "woocommerce_last_scrape_success_timestamp_seconds"
	StoreUp                = "woocommerce_store_up"
	StoreInfo              = "woocommerce_store_info"
)

var (
	storeLabels    = []string{LabelStoreID, LabelStoreName}
	currencyLabels = []string{LabelStoreID, LabelStoreName, LabelCurrency}
)

// Schema is every series the exporter publishes.
var Schema = []Series{
	{Name: OrdersTotal, Kind: Gauge, Labels: []string{LabelStoreID, LabelStoreName, LabelStatus},
		Help: "Orders created in the last 90 days, by status."},
	{Name: RevenueTotal, Kind: Gauge, Labels: currencyLabels,
		Help: "Sum of completed order totals in the last 90 days."},
	{Name: RevenueToday, Kind: Gauge, Labels: currencyLabels,
		Help: "Sum of completed order totals created today."},
	{Name: RevenueMonth, Kind: Gauge, Labels: currencyLabels,
		Help: "Sum of completed order totals created this calendar month."},
	{Name: AverageOrderValue, Kind: Gauge, Labels: currencyLabels,
		Help: "Mean completed order total over the last 90 days."},
	{Name: TopProductsSold, Kind: Gauge,
		Labels: []string{LabelStoreID, LabelStoreName, LabelRank, LabelProductID, LabelProductName},
		Help:   "Units sold in completed orders for the best selling products, by rank."},
	{Name: ProductsTotal, Kind: Gauge, Labels: []string{LabelStoreID, LabelStoreName, LabelStatus},
		Help: "Products by publication status."},
	{Name: ProductsOutOfStock, Kind: Gauge, Labels: storeLabels,
		Help: "Products flagged outofstock or with a tracked quantity of 0."},
	{Name: ProductsLowStock, Kind: Gauge, Labels: storeLabels,
		Help: "Stock-managed products with a quantity of at most 10 that are not out of stock."},
	{Name: CustomersTotal, Kind: Gauge, Labels: storeLabels,
		Help: "Registered customers counted across at most 10 pages."},
	{Name: CustomersCountComplete, Kind: Gauge, Labels: storeLabels,
		Help: "1 when customers_total is an exact count, 0 when it is a capped or first-page estimate."},
	{Name: ScrapeDuration, Kind: Gauge, Labels: storeLabels,
		Help: "Wall time of the last collection for the store."},
	{Name: ScrapeErrors, Kind: Counter, Labels: []string{LabelStoreID, LabelStoreName, LabelType},
		Help: "Failed collection branches, by record type."},
	{Name: LastScrapeSuccess, Kind: Gauge, Labels: storeLabels,
		Help: "Unix time the last collection for the store finished, whatever its branches reported."},
	{Name: StoreUp, Kind: Gauge, Labels: storeLabels,
		Help: "1 when the last probe or collection of the store succeeded, 0 otherwise."},
	{Name: StoreInfo, Kind: Gauge, Labels: []string{LabelStoreID, LabelStoreName, LabelURL, LabelCurrency},
		Help: "Constant 1 carrying descriptive store labels."},
}

// StoreLabels returns the identifying labels of a store followed by the
// extra name/value pairs in kv.
func StoreLabels(id, name string, kv ...string) prometheus.Labels {
	l := prometheus.Labels{LabelStoreID: id, LabelStoreName: name}
	for i := 0; i+1 < len(kv); i += 2 {
		l[kv[i]] = kv[i+1]
	}
	return l
}
