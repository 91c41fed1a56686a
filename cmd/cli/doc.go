// Package cli constructs the buildtool command-line interface, wiring the
// Cobra command hierarchy, the configuration loader, the per-process metrics
// registry, and structured logging. Release commands are registered once from
// a static name-to-factory table.
package cli
