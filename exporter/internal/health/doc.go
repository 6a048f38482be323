// Package health exposes the standard grpc.health.v1 service.
//
// The overall service ("") is SERVING while the orchestrator is in steady
// state. Each active store has its own service, "store/<id>", which follows
// the latest probe or collection of that store.
package health
