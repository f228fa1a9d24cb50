// Package metrics exposes Prometheus metrics for monitoring.
//
// Key metrics:
//   - Link state, reconnects, and frame/drop counters
//   - Dispatcher fan-out and queue utilization
//   - Journal insert/conflict/flush counters
//   - Engine reachability from the probe
//
// Components are read on scrape through their Stats accessors; nothing
// here is incremented on the hot path.
package metrics
