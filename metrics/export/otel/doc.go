// Package otel publishes authsession metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per manager counter, one
// Int64ObservableGauge per latency bucket and an authsession_logged_in gauge. A single
// callback reads the manager snapshot on each collection. The caller owns the
// MeterProvider.
package otel
