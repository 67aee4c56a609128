// Package otel publishes credauth metrics through an OpenTelemetry Meter.
//
// Each counter becomes an Int64ObservableCounter; the latency histogram is
// published as one cumulative gauge per bucket plus a count gauge. A single
// callback reads the snapshot per collection. The caller owns the
// MeterProvider.
package otel
