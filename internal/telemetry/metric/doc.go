// Package metric provides Prometheus metrics for the routemesh engine.
//
//   - prometheus.go: Registry with connection, intake and dispatch metrics
//   - collector.go: Collector reporting registry sizes of a dispatcher
//
// Metrics are rendered in the Prometheus text exposition format by
// WriteText, which the metrics service serves over the engine itself.
package metric
