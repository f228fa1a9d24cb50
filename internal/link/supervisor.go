package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberworks/enginelink/internal/event"
)

var errConnectionLost = errors.New("connection lost")

// Link supervises the connection to the engine: it dials, handshakes, pumps
// events, and reconnects with backoff when the session drops. One
// supervision goroutine runs the attempt loop; shared state sits behind a
// single mutex, so the exported surface is safe for concurrent use.
type Link struct {
	cfg    Config
	logger *slog.Logger
	names  *event.Map
	policy RetryPolicy
	timers *TimerRegistry

	events chan Event
	fatal  chan error

	wg sync.WaitGroup

	mu          sync.Mutex
	state       State
	connecting  bool
	connected   bool
	manualClose bool
	attempt     int
	tr          *transport
	codec       *Codec
	hb          *heartbeatMonitor
	stop        chan struct{}

	received        atomic.Int64
	dispatched      atomic.Int64
	decodeErrors    atomic.Int64
	staleDropped    atomic.Int64
	unmappedDropped atomic.Int64
	overflowDropped atomic.Int64
	sent            atomic.Int64
	pingsTotal      atomic.Int64
	pongsTotal      atomic.Int64
	reconnects      atomic.Int64
	establishedMs   atomic.Int64
}

// New builds a Link from cfg. A nil names map selects the standard table
// and a nil logger selects slog's default.
func New(cfg Config, names *event.Map, logger *slog.Logger) *Link {
	cfg = cfg.withDefaults()
	if names == nil {
		names = event.Standard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		cfg:    cfg,
		logger: logger,
		names:  names,
		policy: RetryPolicy{BaseDelay: cfg.RetryBaseDelay, MaxAttempts: cfg.RetryMaxAttempts},
		timers: NewTimerRegistry(),
		events: make(chan Event, cfg.EventBuffer),
		fatal:  make(chan error, 1),
	}
}

// Start begins the connection sequence and blocks until the first handshake
// completes or the sequence terminates. A call while a connection is in
// flight or open is a logged no-op. After a manual Close, Start begins a
// fresh lifecycle.
func (l *Link) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.connecting || l.connected {
		l.mu.Unlock()
		l.logger.Warn("start ignored: link already connecting or connected")
		return nil
	}
	l.mu.Unlock()

	// Let a finishing supervision run drain before starting a new one.
	l.wg.Wait()

	l.mu.Lock()
	if l.connecting || l.connected {
		l.mu.Unlock()
		l.logger.Warn("start ignored: link already connecting or connected")
		return nil
	}
	l.connecting = true
	l.manualClose = false
	l.attempt = 0
	l.stop = make(chan struct{})
	l.state = StateConnecting
	stop := l.stop
	l.mu.Unlock()

	l.logger.Info("starting engine link")

	ready := make(chan error, 1)
	l.wg.Add(1)
	go l.supervise(ctx, stop, ready)

	return <-ready
}

// supervise runs the attempt loop for one Start lifecycle. The first
// handshake resolves ready; afterwards the loop keeps the session alive
// until close, cancellation, or retry exhaustion.
func (l *Link) supervise(ctx context.Context, stop chan struct{}, ready chan<- error) {
	defer l.wg.Done()

	resolved := false
	resolve := func(err error) {
		if !resolved {
			resolved = true
			ready <- err
		}
	}

	for {
		if err := l.abortErr(ctx); err != nil {
			l.finalize()
			resolve(err)
			return
		}

		tr, codec, err := l.connect(ctx)
		if err != nil {
			if abortErr := l.abortErr(ctx); abortErr != nil {
				l.finalize()
				resolve(abortErr)
				return
			}
			if termErr := l.backoff(ctx, stop, err); termErr != nil {
				if !errors.Is(termErr, ErrRetriesExhausted) {
					l.finalize()
				}
				resolve(termErr)
				return
			}
			continue
		}

		resolve(nil)

		cause := l.session(ctx, stop, tr, codec)

		l.mu.Lock()
		manual := l.manualClose
		l.connected = false
		l.mu.Unlock()

		if manual || ctx.Err() != nil {
			l.finalize()
			return
		}

		// A drop after a completed handshake starts a fresh backoff
		// sequence from the base delay.
		l.mu.Lock()
		l.connecting = true
		l.attempt = 0
		l.state = StateConnecting
		l.mu.Unlock()
		l.reconnects.Add(1)
		l.logger.Warn("connection lost after handshake, reconnecting", "error", cause)

		if termErr := l.backoff(ctx, stop, cause); termErr != nil {
			if !errors.Is(termErr, ErrRetriesExhausted) {
				l.finalize()
			}
			return
		}
	}
}

// connect runs one physical attempt: dial plus handshake. Any timer left
// over from a previous attempt is cancelled before dialing.
func (l *Link) connect(ctx context.Context) (*transport, *Codec, error) {
	l.timers.CancelAll()
	l.setState(StateConnecting)

	tr := newTransport(l.cfg, l.logger)
	if err := tr.dial(ctx); err != nil {
		return nil, nil, fmt.Errorf("dial engine: %w", err)
	}
	establishedAt := time.Now()
	codec := NewCodec(establishedAt)

	l.mu.Lock()
	if l.manualClose {
		l.mu.Unlock()
		tr.close(websocket.CloseNormalClosure, "closing")
		return nil, nil, ErrClosed
	}
	l.tr = tr
	l.state = StateHandshaking
	l.mu.Unlock()

	if err := l.awaitHandshake(tr, codec); err != nil {
		tr.close(websocket.CloseNormalClosure, "handshake failed")
		l.mu.Lock()
		l.tr = nil
		l.mu.Unlock()
		return nil, nil, err
	}

	l.mu.Lock()
	l.connecting = false
	l.connected = true
	l.attempt = 0
	l.codec = codec
	l.state = StateOpen
	l.mu.Unlock()
	l.establishedMs.Store(establishedAt.UnixMilli())

	l.logger.Info("engine link established",
		"handshake", time.Since(establishedAt).Round(time.Millisecond).String())
	return tr, codec, nil
}

// session pumps decoded frames to consumers until the transport dies, the
// link closes, or the context ends. The heartbeat monitor runs for exactly
// this window. Returns the cause of the session's end.
func (l *Link) session(ctx context.Context, stop chan struct{}, tr *transport, codec *Codec) error {
	hb := newHeartbeatMonitor(l.cfg.HeartbeatInterval, tr, l.timers, l.logger)
	l.mu.Lock()
	l.hb = hb
	l.mu.Unlock()
	hb.start()

	defer func() {
		hb.stop()
		l.timers.CancelAll()
		tr.close(websocket.CloseNormalClosure, "")
		l.mu.Lock()
		l.hb = nil
		l.tr = nil
		l.codec = nil
		l.mu.Unlock()
		l.pingsTotal.Add(hb.pingsSent.Load())
		l.pongsTotal.Add(hb.pongsReceived.Load())
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return ErrClosed
		case f, ok := <-tr.frames:
			if !ok {
				select {
				case err := <-tr.errs:
					return err
				default:
					return errConnectionLost
				}
			}
			l.handleFrame(codec, f)
		}
	}
}

// handleFrame decodes one inbound frame and publishes it to consumers.
// Stale frames are dropped without a log line, malformed ones with a
// warning, unmapped ones with a debug line.
func (l *Link) handleFrame(codec *Codec, f frame) {
	l.received.Add(1)

	env, err := codec.Decode(f.data)
	if err != nil {
		if errors.Is(err, ErrStaleMessage) {
			l.staleDropped.Add(1)
			return
		}
		l.decodeErrors.Add(1)
		l.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	name, ok := l.names.Internal(env.Event)
	if !ok {
		l.unmappedDropped.Add(1)
		l.logger.Debug("dropping unmapped event", "event", env.Event)
		return
	}

	eventTime, _ := env.Timestamp()
	evt := Event{
		Name:       name,
		Wire:       env.Event,
		Data:       env.Data,
		Headers:    env.Headers,
		EventTime:  eventTime,
		ReceivedAt: f.receivedAt,
	}

	select {
	case l.events <- evt:
		l.dispatched.Add(1)
	default:
		l.overflowDropped.Add(1)
		l.logger.Warn("event buffer full, dropping event", "event", env.Event)
	}
}

// backoff advances the attempt counter and waits out the policy delay
// before the next attempt. Returns a terminal error on exhaustion, close,
// or cancellation; nil means try again.
func (l *Link) backoff(ctx context.Context, stop chan struct{}, cause error) error {
	l.mu.Lock()
	l.attempt++
	attempt := l.attempt
	l.mu.Unlock()

	if !l.policy.HasAttemptsRemaining(attempt) {
		return l.escalate(cause)
	}

	delay := l.policy.NextDelay(attempt)
	l.logger.Warn("reconnect scheduled",
		"attempt", attempt,
		"max_attempts", l.policy.MaxAttempts,
		"backoff", delay,
		"error", cause,
	)

	fire := make(chan struct{})
	h := l.timers.Schedule(delay, func() { close(fire) })

	select {
	case <-fire:
	case <-stop:
		l.timers.Cancel(h)
		return ErrClosed
	case <-ctx.Done():
		l.timers.Cancel(h)
		return ctx.Err()
	}

	// Close may have raced the timer.
	if l.isManualClosed() {
		return ErrClosed
	}
	return nil
}

// escalate reports retry exhaustion exactly once per supervision run and
// leaves the link closed. Whether the process survives is the listener's
// call, not ours.
func (l *Link) escalate(cause error) error {
	l.logger.Error("retry attempts exhausted, link unrecoverable",
		"max_attempts", l.policy.MaxAttempts,
		"error", cause,
	)
	l.finalize()

	err := fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, l.policy.MaxAttempts, cause)
	select {
	case l.fatal <- err:
	default:
	}
	return err
}

func (l *Link) finalize() {
	l.timers.CancelAll()
	l.mu.Lock()
	l.connecting = false
	l.connected = false
	l.state = StateClosed
	l.mu.Unlock()
}

// Close permanently stops the link: every pending timer is cancelled, the
// transport is torn down, and no reconnect follows. Blocks until the
// supervision goroutine has drained. Safe to call from any state, more
// than once.
func (l *Link) Close() error {
	return l.CloseWithStatus(websocket.CloseNormalClosure, "client closing")
}

// CloseWithStatus is Close with an explicit WebSocket status code and
// reason sent in the close frame.
func (l *Link) CloseWithStatus(code int, text string) error {
	l.mu.Lock()
	if l.manualClose {
		l.mu.Unlock()
		return nil
	}
	l.manualClose = true
	l.state = StateClosing
	l.connecting = false
	l.connected = false
	tr := l.tr
	stop := l.stop
	l.mu.Unlock()

	l.logger.Info("closing engine link")

	if stop != nil {
		close(stop)
	}
	l.timers.CancelAll()
	if tr != nil {
		tr.close(code, text)
	}

	l.wg.Wait()

	l.mu.Lock()
	l.state = StateClosed
	l.mu.Unlock()
	return nil
}

// Emit sends an internal event to the engine. The name is translated
// through the map and the payload stamped by the codec.
func (l *Link) Emit(name event.Name, data map[string]any) error {
	wire, ok := l.names.Wire(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}

	l.mu.Lock()
	tr := l.tr
	codec := l.codec
	connected := l.connected
	l.mu.Unlock()

	if !connected || tr == nil || codec == nil {
		return ErrNotConnected
	}

	raw, err := codec.Encode(wire, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", wire, err)
	}
	if err := tr.send(raw); err != nil {
		return fmt.Errorf("send %s: %w", wire, err)
	}
	l.sent.Add(1)
	return nil
}

// Events returns the channel of decoded inbound events. The channel is
// never closed; it persists across reconnects.
func (l *Link) Events() <-chan Event {
	return l.events
}

// Fatal returns the channel that reports retry exhaustion. At most one
// error is delivered per exhausted supervision run.
func (l *Link) Fatal() <-chan error {
	return l.fatal
}

// State returns the current lifecycle state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connected reports whether a handshaken session is open.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	st := l.state
	attempt := l.attempt
	hb := l.hb
	l.mu.Unlock()

	pings := l.pingsTotal.Load()
	pongs := l.pongsTotal.Load()
	if hb != nil {
		pings += hb.pingsSent.Load()
		pongs += hb.pongsReceived.Load()
	}

	var established time.Time
	if ms := l.establishedMs.Load(); ms != 0 {
		established = time.UnixMilli(ms)
	}

	return Stats{
		State:           st.String(),
		Attempt:         attempt,
		Received:        l.received.Load(),
		Dispatched:      l.dispatched.Load(),
		DecodeErrors:    l.decodeErrors.Load(),
		StaleDropped:    l.staleDropped.Load(),
		UnmappedDropped: l.unmappedDropped.Load(),
		OverflowDropped: l.overflowDropped.Load(),
		Sent:            l.sent.Load(),
		PingsSent:       pings,
		PongsReceived:   pongs,
		Reconnects:      l.reconnects.Load(),
		LastEstablished: established,
	}
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Link) isManualClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.manualClose
}

func (l *Link) abortErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.isManualClosed() {
		return ErrClosed
	}
	return nil
}
