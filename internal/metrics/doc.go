// Package metrics records counters, gauges, and timers keyed by name and
// label set, and periodically flushes the metrics that changed to a
// pluggable backend (a JSON snapshot file or a Prometheus registry).
//
// A single Registry is created per process and passed explicitly to the
// components that record metrics.
package metrics
