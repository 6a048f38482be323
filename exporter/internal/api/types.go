package api

import (
	"github.com/storepulse/storepulse/exporter/internal/orchestrator"
	"github.com/storepulse/storepulse/exporter/internal/status"
	"github.com/storepulse/storepulse/exporter/internal/tlscheck"
)

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	State        string `json:"state"`
	ActiveStores int    `json:"active_stores"`
	UpStores     int    `json:"up_stores"`
	DownStores   int    `json:"down_stores"`
}

// CollectStoreResponse is the payload for POST /api/v1/collect/{id}.
type CollectStoreResponse struct {
	Result orchestrator.CycleResult `json:"result"`
	Error  string                   `json:"error,omitempty"`
}

// StoreResponse is one entry of GET /api/v1/stores. Credentials are never
// included.
type StoreResponse struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	URL            string           `json:"url"`
	Currency       string           `json:"currency"`
	ScrapeInterval string           `json:"scrape_interval"`
	Status         *status.Entry    `json:"status,omitempty"`
	Diagnostics    []DiagnosticHint `json:"diagnostics"`
}

// ConnectionTestResponse is the payload for GET /api/v1/stores/{id}/test.
type ConnectionTestResponse struct {
	StoreID   string               `json:"store_id"`
	Connected bool                 `json:"connected"`
	TLS       *tlscheck.CertStatus `json:"tls,omitempty"`
	CheckedAt string               `json:"checked_at"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
