// Package probe implements the engine reachability probe.
//
// The probe:
//   - Calls the engine REST API on a fixed interval
//   - Tracks reachability transitions and consecutive failures
//   - Feeds the /health endpoint and the metrics collector
package probe
