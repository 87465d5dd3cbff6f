// Package metric provides Prometheus metrics for sockhttp.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: registry, per-endpoint counters and the /metrics handler
//   - collector.go: scrape-time collector over endpoint snapshots
//
// Metrics include accepted and rejected connections, accept errors by kind,
// socket recreations, route lookup hits and misses, and registered routes.
package metric
