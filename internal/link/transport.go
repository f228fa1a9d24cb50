package link

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// frame is a raw inbound frame paired with its receive instant.
type frame struct {
	data       []byte
	receivedAt time.Time
}

// transport wraps a single WebSocket connection to the engine. It owns the
// read goroutine and serializes writes. Lifecycle decisions stay with the
// Link; the transport only reports that the connection died.
type transport struct {
	cfg    Config
	logger *slog.Logger

	frames chan frame
	errs   chan error
	done   chan struct{}

	writeMu sync.Mutex

	// Ping/pong callbacks are swapped after the read loop is already
	// running, so the gorilla handlers installed at dial time only ever
	// dereference these under the lock.
	handlerMu sync.RWMutex
	pingFn    func(payload string)
	pongFn    func(payload string)

	mu     sync.RWMutex
	conn   *websocket.Conn
	open   bool
	closed bool
}

func newTransport(cfg Config, logger *slog.Logger) *transport {
	return &transport{
		cfg:    cfg,
		logger: logger,
		frames: make(chan frame, cfg.EventBuffer),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// dial opens the WebSocket connection and starts the read loop.
func (t *transport) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return err
	}

	conn.SetPingHandler(func(appData string) error {
		t.handlerMu.RLock()
		fn := t.pingFn
		t.handlerMu.RUnlock()
		if fn != nil {
			fn(appData)
			return nil
		}
		// No handler installed yet; answer like gorilla's default would.
		return t.writeControl(websocket.PongMessage, []byte(appData))
	})
	conn.SetPongHandler(func(appData string) error {
		t.handlerMu.RLock()
		fn := t.pongFn
		t.handlerMu.RUnlock()
		if fn != nil {
			fn(appData)
		}
		return nil
	})

	t.mu.Lock()
	t.conn = conn
	t.open = true
	t.mu.Unlock()

	go t.readLoop()

	t.logger.Debug("transport connected")
	return nil
}

// onPing installs fn for inbound pings, replacing the answer-with-pong
// default. The installed fn becomes responsible for answering.
func (t *transport) onPing(fn func(payload string)) {
	t.handlerMu.Lock()
	t.pingFn = fn
	t.handlerMu.Unlock()
}

// onPong installs fn for inbound pongs.
func (t *transport) onPong(fn func(payload string)) {
	t.handlerMu.Lock()
	t.pongFn = fn
	t.handlerMu.Unlock()
}

// send writes one text frame, serialized against other writers.
func (t *transport) send(data []byte) error {
	t.mu.RLock()
	conn, open := t.conn, t.open
	t.mu.RUnlock()
	if !open || conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *transport) writePing(payload []byte) error {
	return t.writeControl(websocket.PingMessage, payload)
}

func (t *transport) writePong(payload []byte) error {
	return t.writeControl(websocket.PongMessage, payload)
}

func (t *transport) writeControl(messageType int, payload []byte) error {
	t.mu.RLock()
	conn, open := t.conn, t.open
	t.mu.RUnlock()
	if !open || conn == nil {
		return ErrNotConnected
	}
	return conn.WriteControl(messageType, payload, time.Now().Add(t.cfg.WriteTimeout))
}

func (t *transport) isOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open
}

// close sends a close frame with the given status and tears the connection
// down. Safe to call more than once.
func (t *transport) close(code int, text string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.open = false
	conn := t.conn
	t.mu.Unlock()

	close(t.done)

	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(time.Second))
	return conn.Close()
}

// readLoop delivers inbound frames in arrival order until the connection
// dies. The frames channel closes on exit so consumers see a clean end.
func (t *transport) readLoop() {
	defer func() {
		t.mu.Lock()
		t.open = false
		t.mu.Unlock()
		close(t.frames)
	}()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			select {
			case <-t.done:
				// deliberate close, not an error
			default:
				select {
				case t.errs <- err:
				default:
				}
			}
			return
		}

		select {
		case t.frames <- frame{data: data, receivedAt: receivedAt}:
		case <-t.done:
			return
		}
	}
}
