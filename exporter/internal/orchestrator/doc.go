// Package orchestrator drives collection cycles across the active stores
// and owns the process lifecycle:
//
//	Idle -> Initializing -> SteadyState -> ShuttingDown -> Stopped
//
// Initialize builds one storeclient per enabled store. A store whose client
// cannot be built is excluded until restart; if none can be built the
// process cannot start (ErrNoActiveStores). Every active store is probed at
// startup, with retries, but a failed probe is advisory only.
//
// RunCycle collects all active stores concurrently through the aggregate
// package and waits for all of them. RunStore and Probe serve the manual
// endpoints. Run is the scheduler loop; when its context is cancelled it
// waits for every in-flight collection before returning.
//
// Collections run on a context detached from the caller's cancellation, so
// they are never cut off mid-flight. The per-request timeout of each store
// is the only bound.
package orchestrator
