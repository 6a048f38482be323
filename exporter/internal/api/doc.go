// Package api is the HTTP front-end of the exporter.
//
// New returns an http.Handler that serves:
//
//	GET  /metrics                  current series, Prometheus text format
//	GET  /health                   lifecycle state and store counts
//	POST /api/v1/collect           run a full cycle now
//	POST /api/v1/collect/{id}      collect one store now; 404 if unknown
//	GET  /api/v1/stores            active stores with their last outcome
//	GET  /api/v1/stores/{id}/test  connection probe plus certificate status
//	GET  /ws/stream                status stream, when a stream handler is set
//
// JSON bodies use the types in types.go. Wrong methods get 405 from the mux.
// In production mode a failing /metrics render answers with a generic
// message; manual collection failures always carry the store's error.
package api
