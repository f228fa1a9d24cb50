package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/emberworks/enginelink/internal/event"
)

// engineServer is a WebSocket server standing in for the engine.
type engineServer struct {
	*httptest.Server
	conns atomic.Int32
}

func newEngineServer(t *testing.T, handler func(conn *websocket.Conn)) *engineServer {
	t.Helper()

	es := &engineServer{}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	es.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		es.conns.Add(1)
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(es.Close)
	return es
}

func (es *engineServer) url() string {
	return "ws" + strings.TrimPrefix(es.URL, "http")
}

// greet sends the connected event and reads back the acknowledgement.
func greet(t *testing.T, conn *websocket.Conn) event.Envelope {
	t.Helper()

	msg := fmt.Sprintf(`{"event":"connected","data":{"timestamp":%d},"headers":{}}`, time.Now().UnixMilli())
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Errorf("send connected: %v", err)
		return event.Envelope{}
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("read handshake ack: %v", err)
		return event.Envelope{}
	}
	conn.SetReadDeadline(time.Time{})

	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Errorf("decode handshake ack: %v", err)
	}
	return env
}

func keepReading(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.DialTimeout = 2 * time.Second
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.WriteTimeout = time.Second
	cfg.RetryBaseDelay = 20 * time.Millisecond
	cfg.RetryMaxAttempts = 3
	return cfg
}

func newTestLink(t *testing.T, cfg Config) *Link {
	t.Helper()
	l := New(cfg, nil, quietLogger())
	t.Cleanup(func() { l.Close() })
	return l
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLinkStartAndHandshake(t *testing.T) {
	startMs := time.Now().UnixMilli()
	ackCh := make(chan event.Envelope, 1)

	es := newEngineServer(t, func(conn *websocket.Conn) {
		// Frames before connected must be ignored, not buffered.
		early := `{"event":"playerJoin","data":{"playerId":"early"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(early)); err != nil {
			t.Errorf("send early frame: %v", err)
			return
		}
		ackCh <- greet(t, conn)
		keepReading(conn)
	})

	l := newTestLink(t, testConfig(es.url()))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if got := l.State(); got != StateOpen {
		t.Errorf("State() = %v, want open", got)
	}
	if !l.Connected() {
		t.Error("Connected() = false after handshake")
	}

	var ack event.Envelope
	select {
	case ack = <-ackCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received handshake ack")
	}

	if ack.Event != event.WireConnectedAck {
		t.Errorf("ack event = %q, want %q", ack.Event, event.WireConnectedAck)
	}
	if got := ack.Data["version"]; got != ProtocolVersion {
		t.Errorf("ack version = %v, want %q", got, ProtocolVersion)
	}
	ts, ok := ack.Timestamp()
	if !ok {
		t.Fatal("ack carries no numeric timestamp")
	}
	if ts.UnixMilli() < startMs {
		t.Errorf("ack timestamp %d predates the test start %d", ts.UnixMilli(), startMs)
	}
	if _, err := uuid.Parse(ack.Headers[event.MessageIDHeader]); err != nil {
		t.Errorf("ack messageId %q is not a UUID: %v", ack.Headers[event.MessageIDHeader], err)
	}

	// The early frame was ignored during the handshake window.
	select {
	case evt := <-l.Events():
		t.Errorf("unexpected event delivered: %v", evt.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLinkStartWhileActive(t *testing.T) {
	es := newEngineServer(t, func(conn *websocket.Conn) {
		greet(t, conn)
		keepReading(conn)
	})

	l := newTestLink(t, testConfig(es.url()))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("second Start() errored: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if n := es.conns.Load(); n != 1 {
		t.Errorf("server saw %d connections, want 1", n)
	}
}

func TestLinkEventDelivery(t *testing.T) {
	sentMs := make(chan int64, 1)

	es := newEngineServer(t, func(conn *websocket.Conn) {
		greet(t, conn)
		// Timestamps are taken after the greeting so fresh frames postdate
		// the connection and the stale one predates it by a clear margin.
		now := time.Now().UnixMilli()
		stale := time.Now().Add(-time.Hour).UnixMilli()
		sentMs <- now
		frames := []string{
			fmt.Sprintf(`{"event":"playerJoin","data":{"timestamp":%d,"playerId":"p0"}}`, stale),
			`{"event":"playerJoin","data":null}`,
			fmt.Sprintf(`{"event":"mysteryEvent","data":{"timestamp":%d}}`, now),
			fmt.Sprintf(`{"event":"playerJoin","data":{"timestamp":%d,"playerId":"p1"},"headers":{"messageId":"m-1"}}`, now),
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				t.Errorf("send frame: %v", err)
				return
			}
		}
		keepReading(conn)
	})

	l := newTestLink(t, testConfig(es.url()))
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	var evt Event
	select {
	case evt = <-l.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	now := <-sentMs

	if evt.Name != event.PlayerJoin {
		t.Errorf("Name = %q, want %q", evt.Name, event.PlayerJoin)
	}
	if evt.Wire != "playerJoin" {
		t.Errorf("Wire = %q, want playerJoin", evt.Wire)
	}
	if got := evt.Data["playerId"]; got != "p1" {
		t.Errorf("Data[playerId] = %v, want p1 (stale frame leaked through?)", got)
	}
	if got := evt.Headers[event.MessageIDHeader]; got != "m-1" {
		t.Errorf("Headers[messageId] = %v, want m-1", got)
	}
	if evt.EventTime.UnixMilli() != now {
		t.Errorf("EventTime = %d, want %d", evt.EventTime.UnixMilli(), now)
	}
	if evt.ReceivedAt.IsZero() {
		t.Error("ReceivedAt is zero")
	}

	select {
	case extra := <-l.Events():
		t.Errorf("unexpected second event: %v", extra.Name)
	case <-time.After(100 * time.Millisecond):
	}

	waitFor(t, 2*time.Second, "frame counters", func() bool {
		return l.Stats().Received == 4
	})
	st := l.Stats()
	if st.StaleDropped != 1 {
		t.Errorf("StaleDropped = %d, want 1", st.StaleDropped)
	}
	if st.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", st.DecodeErrors)
	}
	if st.UnmappedDropped != 1 {
		t.Errorf("UnmappedDropped = %d, want 1", st.UnmappedDropped)
	}
	if st.Dispatched != 1 {
		t.Errorf("Dispatched = %d, want 1", st.Dispatched)
	}
}

func TestLinkEmit(t *testing.T) {
	msgs := make(chan []byte, 4)

	es := newEngineServer(t, func(conn *websocket.Conn) {
		greet(t, conn)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- raw
		}
	})

	l := newTestLink(t, testConfig(es.url()))

	if err := l.Emit(event.ChatBroadcast, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit before Start = %v, want ErrNotConnected", err)
	}

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	before := time.Now().UnixMilli()
	if err := l.Emit(event.ChatBroadcast, map[string]any{"channel": "global", "body": "hello"}); err != nil {
		t.Fatalf("Emit() failed: %v", err)
	}

	var raw []byte
	select {
	case raw = <-msgs:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received emitted frame")
	}

	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode emitted frame: %v", err)
	}
	if env.Event != "broadcast" {
		t.Errorf("wire event = %q, want broadcast", env.Event)
	}
	if got := env.Data["channel"]; got != "global" {
		t.Errorf("data.channel = %v, want global", got)
	}
	ts, ok := env.Timestamp()
	if !ok {
		t.Fatal("emitted frame has no numeric timestamp")
	}
	if ts.UnixMilli() < before {
		t.Errorf("timestamp %d predates Emit call %d", ts.UnixMilli(), before)
	}
	if _, err := uuid.Parse(env.Headers[event.MessageIDHeader]); err != nil {
		t.Errorf("messageId %q is not a UUID: %v", env.Headers[event.MessageIDHeader], err)
	}

	if err := l.Emit(event.Name("no.such.name"), nil); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Emit(unknown) = %v, want ErrUnknownEvent", err)
	}

	if st := l.Stats(); st.Sent != 1 {
		t.Errorf("Sent = %d, want 1", st.Sent)
	}

	l.Close()
	if err := l.Emit(event.ChatBroadcast, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit after Close = %v, want ErrNotConnected", err)
	}
}

func TestLinkReconnectAfterDrop(t *testing.T) {
	var es *engineServer
	es = newEngineServer(t, func(conn *websocket.Conn) {
		if es.conns.Load() == 1 {
			greet(t, conn)
			time.Sleep(30 * time.Millisecond)
			conn.Close()
			return
		}
		greet(t, conn)
		keepReading(conn)
	})

	l := newTestLink(t, testConfig(es.url()))
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	waitFor(t, 3*time.Second, "reconnect", func() bool {
		return l.Stats().Reconnects == 1 && l.Connected()
	})

	if n := es.conns.Load(); n != 2 {
		t.Errorf("server saw %d connections, want 2", n)
	}
	if got := l.State(); got != StateOpen {
		t.Errorf("State() = %v after reconnect, want open", got)
	}
}

func TestLinkHandshakeTimeoutExhaustsRetries(t *testing.T) {
	es := newEngineServer(t, func(conn *websocket.Conn) {
		// Never greet; the handshake window must expire.
		keepReading(conn)
	})

	cfg := testConfig(es.url())
	cfg.HandshakeTimeout = 40 * time.Millisecond
	cfg.RetryBaseDelay = 15 * time.Millisecond
	cfg.RetryMaxAttempts = 2

	l := newTestLink(t, cfg)

	err := l.Start(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Start() = %v, want ErrRetriesExhausted", err)
	}

	select {
	case fatalErr := <-l.Fatal():
		if !errors.Is(fatalErr, ErrRetriesExhausted) {
			t.Errorf("Fatal() delivered %v, want ErrRetriesExhausted", fatalErr)
		}
	case <-time.After(time.Second):
		t.Fatal("Fatal() delivered nothing")
	}

	select {
	case extra := <-l.Fatal():
		t.Errorf("Fatal() delivered a second error: %v", extra)
	default:
	}

	// Initial attempt plus two retries.
	if n := es.conns.Load(); n != 3 {
		t.Errorf("server saw %d connections, want 3", n)
	}
	if got := l.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestLinkDialFailureExhaustsRetries(t *testing.T) {
	var reqs atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs.Add(1)
		http.Error(w, "no upgrade here", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	cfg.RetryBaseDelay = 10 * time.Millisecond
	cfg.RetryMaxAttempts = 2

	l := newTestLink(t, cfg)

	err := l.Start(context.Background())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Start() = %v, want ErrRetriesExhausted", err)
	}
	if n := reqs.Load(); n != 3 {
		t.Errorf("server saw %d dial attempts, want 3", n)
	}

	select {
	case fatalErr := <-l.Fatal():
		if !errors.Is(fatalErr, ErrRetriesExhausted) {
			t.Errorf("Fatal() delivered %v, want ErrRetriesExhausted", fatalErr)
		}
	case <-time.After(time.Second):
		t.Fatal("Fatal() delivered nothing")
	}
}

func TestLinkCloseStopsRetrying(t *testing.T) {
	var reqs atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs.Add(1)
		http.Error(w, "no upgrade here", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	cfg.RetryBaseDelay = 50 * time.Millisecond
	cfg.RetryMaxAttempts = 10

	l := newTestLink(t, cfg)

	startErr := make(chan error, 1)
	go func() { startErr <- l.Start(context.Background()) }()

	waitFor(t, 2*time.Second, "first dial attempt", func() bool {
		return reqs.Load() >= 1
	})
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	select {
	case err := <-startErr:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Start() = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Close")
	}

	frozen := reqs.Load()
	time.Sleep(150 * time.Millisecond)
	if n := reqs.Load(); n != frozen {
		t.Errorf("dial attempts kept growing after Close: %d -> %d", frozen, n)
	}
	if n := l.timers.Len(); n != 0 {
		t.Errorf("%d timers still pending after Close", n)
	}
}

func TestLinkCloseOpenSession(t *testing.T) {
	es := newEngineServer(t, func(conn *websocket.Conn) {
		greet(t, conn)
		keepReading(conn)
	})

	l := newTestLink(t, testConfig(es.url()))
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if got := l.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
	if l.Connected() {
		t.Error("Connected() = true after Close")
	}
	if n := l.timers.Len(); n != 0 {
		t.Errorf("%d timers still pending after Close", n)
	}

	// No reconnect follows a manual close.
	time.Sleep(80 * time.Millisecond)
	if n := es.conns.Load(); n != 1 {
		t.Errorf("server saw %d connections after Close, want 1", n)
	}

	if err := l.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestLinkRestartAfterClose(t *testing.T) {
	es := newEngineServer(t, func(conn *websocket.Conn) {
		greet(t, conn)
		keepReading(conn)
	})

	l := newTestLink(t, testConfig(es.url()))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("first Start() failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Close failed: %v", err)
	}
	if !l.Connected() {
		t.Error("Connected() = false after restart")
	}
	if n := es.conns.Load(); n != 2 {
		t.Errorf("server saw %d connections, want 2", n)
	}
}

func TestLinkHeartbeat(t *testing.T) {
	var serverPings, serverPongs atomic.Int32

	es := newEngineServer(t, func(conn *websocket.Conn) {
		conn.SetPingHandler(func(data string) error {
			serverPings.Add(1)
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		conn.SetPongHandler(func(string) error {
			serverPongs.Add(1)
			return nil
		})
		greet(t, conn)
		conn.WriteControl(websocket.PingMessage, []byte("probe"), time.Now().Add(time.Second))
		keepReading(conn)
	})

	cfg := testConfig(es.url())
	cfg.HeartbeatInterval = 25 * time.Millisecond

	l := newTestLink(t, cfg)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	waitFor(t, 3*time.Second, "heartbeat traffic", func() bool {
		st := l.Stats()
		return serverPings.Load() >= 2 && serverPongs.Load() >= 1 &&
			st.PingsSent >= 2 && st.PongsReceived >= 1
	})
}

func TestLinkContextCancelDuringRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no upgrade here", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	cfg.RetryBaseDelay = 500 * time.Millisecond
	cfg.RetryMaxAttempts = 10

	l := newTestLink(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() { startErr <- l.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-startErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancel")
	}
}
