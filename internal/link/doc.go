// Package link implements the resilient duplex connection to the engine.
//
// A Link owns the full connection lifecycle:
//   - dial and authenticated handshake (connected / connectedAck)
//   - heartbeat keep-alive while a session is open
//   - envelope decoding with timestamp freshness filtering
//   - exponential-backoff reconnection with a bounded attempt ceiling
//   - scoped timer tracking so teardown never leaks timers
//
// Consumers receive decoded, name-mapped events from Events() and learn of
// retry exhaustion from Fatal(). The Link never terminates the process on
// its own; that decision belongs to the caller.
package link
