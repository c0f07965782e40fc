// Package otel publishes broker counters through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per broker counter
// and, per latency histogram, one Int64ObservableGauge per cumulative bucket
// plus count and sum gauges. A single callback reads
// [ssoBroker.Broker.MetricsSnapshot] on each collection. The caller owns the
// MeterProvider.
package otel
