package link

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/emberworks/enginelink/internal/event"
)

// ProtocolVersion is the marker sent in the handshake acknowledgement.
const ProtocolVersion = "1.0"

// awaitHandshake runs the bounded wait for the engine's connected event on
// a freshly dialed transport and answers it with the acknowledgement. The
// timeout timer lives in the link's registry so Close cancels it with
// everything else. Frames other than connected are ignored until the
// handshake completes; they are not buffered for later delivery.
func (l *Link) awaitHandshake(tr *transport, codec *Codec) error {
	timeout := make(chan struct{})
	h := l.timers.Schedule(l.cfg.HandshakeTimeout, func() { close(timeout) })
	defer l.timers.Cancel(h)

	for {
		select {
		case <-timeout:
			return ErrHandshakeTimeout
		case f, ok := <-tr.frames:
			if !ok {
				return ErrClosedBeforeHandshake
			}
			env, err := codec.Decode(f.data)
			if err != nil {
				l.logger.Debug("ignoring undecodable frame before handshake", "error", err)
				continue
			}
			if env.Event != event.WireConnected {
				l.logger.Debug("ignoring frame before handshake", "event", env.Event)
				continue
			}
			return l.sendHandshakeAck(tr, codec)
		}
	}
}

// sendHandshakeAck emits connectedAck carrying the protocol version and the
// local connect timestamp. The envelope is built directly rather than
// through Encode so the timestamp reflects when the connection came up, not
// when the engine got around to greeting us.
func (l *Link) sendHandshakeAck(tr *transport, codec *Codec) error {
	env := event.Envelope{
		Event: event.WireConnectedAck,
		Data: map[string]any{
			"version":          ProtocolVersion,
			event.TimestampKey: codec.establishedAt.UnixMilli(),
		},
		Headers: map[string]string{event.MessageIDHeader: uuid.NewString()},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return tr.send(data)
}
