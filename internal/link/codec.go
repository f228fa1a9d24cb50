package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emberworks/enginelink/internal/event"
)

// Codec encodes and decodes wire envelopes for one established connection.
// Decode enforces freshness against the instant the connection came up;
// Encode stamps the outbound timestamp and message ID. A new connection
// gets a new codec.
type Codec struct {
	establishedAt time.Time
	now           func() time.Time
}

// NewCodec returns a codec bound to a connection established at the given
// instant.
func NewCodec(establishedAt time.Time) *Codec {
	return &Codec{establishedAt: establishedAt, now: time.Now}
}

// Decode parses and validates a raw inbound frame. Malformed frames return
// a descriptive error. Frames stamped before the connection was established
// return ErrStaleMessage so the caller can drop them without logging a
// failure. Frames without a timestamp pass through.
func (c *Codec) Decode(raw []byte) (event.Envelope, error) {
	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return event.Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Event == "" {
		return event.Envelope{}, errors.New("frame missing event name")
	}
	if env.Data == nil {
		return event.Envelope{}, errors.New("frame data missing or null")
	}
	if env.HasTimestamp() {
		ts, ok := env.Timestamp()
		if !ok {
			return event.Envelope{}, errors.New("frame timestamp not numeric")
		}
		if ts.UnixMilli() < c.establishedAt.UnixMilli() {
			return event.Envelope{}, ErrStaleMessage
		}
	}
	return env, nil
}

// Encode builds a raw outbound frame for a wire event. The payload is
// stamped with the current epoch-millisecond timestamp, overwriting any
// timestamp the caller set, and the headers carry a fresh message ID.
func (c *Codec) Encode(wireEvent string, data map[string]any) ([]byte, error) {
	if wireEvent == "" {
		return nil, errors.New("empty event name")
	}
	if data == nil {
		data = make(map[string]any, 1)
	}
	data[event.TimestampKey] = c.now().UnixMilli()
	env := event.Envelope{
		Event:   wireEvent,
		Data:    data,
		Headers: map[string]string{event.MessageIDHeader: uuid.NewString()},
	}
	return json.Marshal(env)
}
