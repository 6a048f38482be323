package storeclient

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Order status and stock status values of the REST dialect.
const (
	StatusCompleted = "completed"
	StockOutOfStock = "outofstock"
)

// Layouts accepted for date_created. The API emits site-local wall-clock
// time without a zone.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Order is the subset of an order record used by the aggregator.
type Order struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	Currency    string     `json:"currency"`
	Total       Amount     `json:"total"`
	DateCreated string     `json:"date_created"`
	LineItems   []LineItem `json:"line_items"`
}

// LineItem is one product line of an order.
type LineItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// Product is the subset of a product record used by the aggregator.
type Product struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	StockStatus   string `json:"stock_status"`
	ManageStock   bool   `json:"manage_stock"`
	StockQuantity *int   `json:"stock_quantity"`
}

// Customer is the subset of a customer record used by the aggregator.
type Customer struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// CreatedAt parses DateCreated as wall-clock time in loc.
func (o Order) CreatedAt(loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(o.DateCreated)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// Amount is a monetary value. The API encodes totals as decimal strings;
// anything that does not parse as a finite number decodes to zero.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	*a = 0
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*a = Amount(f)
	return nil
}

// Decode unmarshals every record of p into T. A malformed record aborts
// the page with a *FetchError.
func Decode[T any](p RecordPage) ([]T, error) {
	out := make([]T, 0, len(p.Records))
	for i, raw := range p.Records {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &FetchError{
				RecordType: p.Type,
				Message:    fmt.Sprintf("decode record %d of page %d", i, p.Number),
				Err:        err,
			}
		}
		out = append(out, v)
	}
	return out, nil
}
