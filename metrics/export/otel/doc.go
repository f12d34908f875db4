// Package otel publishes credguard metrics through an OpenTelemetry Meter.
//
// Counters become Int64ObservableCounter instruments. The validation latency
// histogram is exported as one cumulative gauge per bucket plus a count gauge.
// A single callback reads the engine snapshot per collection; callers own the
// MeterProvider.
package otel
