package event

import "time"

// Envelope is the structured wire unit exchanged over the engine socket.
type Envelope struct {
	Event   string            `json:"event"`
	Data    map[string]any    `json:"data"`
	Headers map[string]string `json:"headers"`
}

// TimestampKey is the data field carrying the envelope's embedded timestamp.
const TimestampKey = "timestamp"

// MessageIDHeader is the header carrying the outbound message UUID.
const MessageIDHeader = "messageId"

// Timestamp returns the embedded data timestamp, if present and numeric.
// JSON decoding yields float64; locally stamped envelopes hold int64.
func (e *Envelope) Timestamp() (time.Time, bool) {
	v, ok := e.Data[TimestampKey]
	if !ok {
		return time.Time{}, false
	}
	switch ms := v.(type) {
	case float64:
		return time.UnixMilli(int64(ms)), true
	case int64:
		return time.UnixMilli(ms), true
	case int:
		return time.UnixMilli(int64(ms)), true
	default:
		return time.Time{}, false
	}
}

// HasTimestamp reports whether the data object carries a timestamp field,
// numeric or not.
func (e *Envelope) HasTimestamp() bool {
	_, ok := e.Data[TimestampKey]
	return ok
}
