// Package status keeps the latest collection and probe outcome per store
// for the operator endpoints and the websocket stream. Entries not refreshed
// within the TTL are evicted by Run.
package status
