// Package dispatch fans decoded engine events out to subscribers and feeds
// the journal queue.
//
// Handlers run synchronously on the dispatch goroutine in registration
// order, wildcard subscribers first, so every handler observes events in
// arrival order. Slow handlers therefore delay everything behind them;
// hand off to a goroutine inside the handler if that matters.
package dispatch
