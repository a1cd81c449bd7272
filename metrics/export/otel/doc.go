// Package otel publishes engine counters and histograms through an
// OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter family.
// Login and refresh outcomes share an instrument and carry an "outcome"
// attribute. Each latency histogram becomes a bucket gauge keyed by "le" and
// a count gauge. A single callback reads [goSession.Engine.MetricsSnapshot]
// on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
