// Package registry is the in-memory table of exported series.
//
// Every series is declared once, at construction, with a name, a kind
// (Gauge or Counter) and its label names. Writes name a series and give a
// complete label set; the value lands in the cell for that label set.
// Writing an undeclared series, the wrong kind, or a label set whose keys do
// not match the declaration is a programming error and panics with
// *SchemaError.
//
// The table is backed by a private prometheus.Registry, so Render produces
// the standard text exposition format and the Registry itself can be handed
// to promhttp as a Gatherer. Reset swaps in a freshly declared table.
package registry
