// Package storeclient talks to one store's WooCommerce REST v3 API.
//
// A Client is built once per store by New(config.Store). It owns no
// aggregation logic; it only retrieves pages of orders, products or
// customers:
//
//   - FetchPage fetches one page (per_page capped at 100).
//   - FetchAll / FetchPages return a lazy iter.Seq2 that walks pages from 1
//     until the first empty page, stopping after MaxPages (100) with an
//     advisory log rather than an error.
//   - Probe issues GET /wp-json/wc/v3/system_status and returns a bool.
//
// Every failure during a page fetch surfaces as a *FetchError carrying the
// record type and HTTP status. There is no retry loop here; a failed walk is
// simply tried again on the next collection cycle.
//
// Credentials are injected by authRoundTripper: HTTP basic auth by default,
// or consumer_key/consumer_secret query parameters for auth_mode "query".
package storeclient
