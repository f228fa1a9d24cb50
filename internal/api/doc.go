// Package api provides the engine REST client used for preflight checks
// and reachability probes.
//
// Endpoints:
//   - GET /status       engine liveness, version, and clock
//   - GET /servers/{id} registration record for a configured server
//
// Requests carry the X-Api-Key / X-Api-Secret header pair.
package api
