package link

import (
	"errors"
	"time"

	"github.com/emberworks/enginelink/internal/event"
)

// Errors returned by link operations.
var (
	// ErrNotConnected indicates an operation that requires an open session.
	ErrNotConnected = errors.New("link not connected")

	// ErrClosed indicates the link was closed manually and will not retry.
	ErrClosed = errors.New("link closed")

	// ErrRetriesExhausted indicates the attempt ceiling was crossed.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")

	// ErrHandshakeTimeout indicates the engine never sent its connected
	// event within the handshake window.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrClosedBeforeHandshake indicates the transport dropped before the
	// handshake completed.
	ErrClosedBeforeHandshake = errors.New("transport closed before handshake")

	// ErrStaleMessage indicates a frame stamped before the connection was
	// established. Stale frames are dropped, never surfaced as failures.
	ErrStaleMessage = errors.New("stale message")

	// ErrUnknownEvent indicates an event name absent from the name map.
	ErrUnknownEvent = errors.New("event not in name map")
)

// State identifies the supervisor's position in the connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateOpen
	StateClosing
	StateClosed
)

// String returns the lowercase state name for logs and metrics labels.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a decoded, name-mapped inbound envelope delivered to consumers.
type Event struct {
	// Name is the internal dotted name from the event map.
	Name event.Name

	// Wire is the engine-side event name as received.
	Wire string

	// Data is the envelope payload.
	Data map[string]any

	// Headers carries the envelope metadata, including messageId.
	Headers map[string]string

	// EventTime is data.timestamp as a time. Zero when the envelope
	// carried no timestamp.
	EventTime time.Time

	// ReceivedAt is when the frame was read off the socket.
	ReceivedAt time.Time
}

// Config configures a Link. Zero fields fall back to DefaultConfig values.
type Config struct {
	// URL is the engine socket URL including the auth query parameters.
	URL string

	// DialTimeout bounds the WebSocket dial and upgrade.
	DialTimeout time.Duration

	// HandshakeTimeout bounds the wait for the engine's connected event.
	HandshakeTimeout time.Duration

	// HeartbeatInterval is the gap between liveness probes on an open
	// session.
	HeartbeatInterval time.Duration

	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration

	// RetryBaseDelay is the first reconnect delay. Subsequent delays
	// double per attempt.
	RetryBaseDelay time.Duration

	// RetryMaxAttempts is the retry ceiling. Crossing it makes the link
	// unrecoverable.
	RetryMaxAttempts int

	// EventBuffer is the capacity of the Events() channel.
	EventBuffer int
}

// DefaultConfig returns the standard link configuration.
func DefaultConfig() Config {
	return Config{
		DialTimeout:       10 * time.Second,
		HandshakeTimeout:  60 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      5 * time.Second,
		RetryBaseDelay:    time.Second,
		RetryMaxAttempts:  20,
		EventBuffer:       256,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

// Stats is a point-in-time snapshot of link counters.
type Stats struct {
	State           string
	Attempt         int
	Received        int64
	Dispatched      int64
	DecodeErrors    int64
	StaleDropped    int64
	UnmappedDropped int64
	OverflowDropped int64
	Sent            int64
	PingsSent       int64
	PongsReceived   int64
	Reconnects      int64
	LastEstablished time.Time
}
