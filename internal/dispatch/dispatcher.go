package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/emberworks/enginelink/internal/event"
	"github.com/emberworks/enginelink/internal/link"
)

// Handler consumes one decoded event. Handlers run on the dispatch
// goroutine; returning is what lets the next event through.
type Handler func(evt link.Event)

// Config holds dispatcher configuration.
type Config struct {
	// QueueSize is the initial capacity of the journal queue. Zero
	// disables the queue entirely for deployments without a journal.
	QueueSize int
}

// DefaultConfig returns the standard dispatcher configuration.
func DefaultConfig() Config {
	return Config{QueueSize: 1000}
}

// Stats contains dispatcher runtime counters.
type Stats struct {
	Received int64
	Handled  int64
	Queued   int64
	Queue    QueueStats
}

// Dispatcher routes decoded engine events to subscribers and the journal
// queue.
type Dispatcher interface {
	// Start begins consuming the source channel.
	Start(ctx context.Context) error

	// Stop shuts the dispatcher down, bounded by ctx.
	Stop(ctx context.Context) error

	// Subscribe registers a handler for one event name. Registration
	// order is invocation order.
	Subscribe(name event.Name, h Handler)

	// SubscribeAll registers a handler for every event. Wildcard
	// handlers run before named ones.
	SubscribeAll(h Handler)

	// Queue returns the journal feed, or nil when disabled.
	Queue() *Queue[link.Event]

	// Stats returns current dispatcher statistics.
	Stats() Stats
}

type dispatcher struct {
	cfg    Config
	logger *slog.Logger
	source <-chan link.Event
	queue  *Queue[link.Event]

	mu       sync.RWMutex
	handlers map[event.Name][]Handler
	all      []Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu  sync.RWMutex
	received int64
	handled  int64
	queued   int64
}

// New creates a dispatcher reading from source, normally a Link's Events()
// channel.
func New(cfg Config, source <-chan link.Event, logger *slog.Logger) Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &dispatcher{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		handlers: make(map[event.Name][]Handler),
	}
	if cfg.QueueSize > 0 {
		d.queue = NewQueue[link.Event](cfg.QueueSize)
	}
	return d
}

func (d *dispatcher) Subscribe(name event.Name, h Handler) {
	d.mu.Lock()
	d.handlers[name] = append(d.handlers[name], h)
	d.mu.Unlock()
}

func (d *dispatcher) SubscribeAll(h Handler) {
	d.mu.Lock()
	d.all = append(d.all, h)
	d.mu.Unlock()
}

func (d *dispatcher) Queue() *Queue[link.Event] {
	return d.queue
}

// Start begins dispatching.
func (d *dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.dispatchLoop()

	d.logger.Info("dispatcher started", "journal_queue", d.cfg.QueueSize)
	return nil
}

// Stop shuts the dispatcher down and closes the journal queue. Items
// already queued stay drainable by the journal.
func (d *dispatcher) Stop(ctx context.Context) error {
	d.logger.Info("stopping dispatcher")

	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out")
	}

	if d.queue != nil {
		d.queue.Close()
	}
	return nil
}

func (d *dispatcher) Stats() Stats {
	d.statsMu.RLock()
	st := Stats{
		Received: d.received,
		Handled:  d.handled,
		Queued:   d.queued,
	}
	d.statsMu.RUnlock()

	if d.queue != nil {
		st.Queue = d.queue.Stats()
	}
	return st
}

func (d *dispatcher) dispatchLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case evt, ok := <-d.source:
			if !ok {
				d.logger.Info("event source closed")
				return
			}
			d.dispatch(evt)
		}
	}
}

// dispatch runs every matching handler in order, then queues the event for
// the journal.
func (d *dispatcher) dispatch(evt link.Event) {
	d.statsMu.Lock()
	d.received++
	d.statsMu.Unlock()

	d.mu.RLock()
	all := d.all
	named := d.handlers[evt.Name]
	d.mu.RUnlock()

	for _, h := range all {
		h(evt)
	}
	for _, h := range named {
		h(evt)
	}

	if n := len(all) + len(named); n > 0 {
		d.statsMu.Lock()
		d.handled++
		d.statsMu.Unlock()
	}

	if d.queue != nil {
		if d.queue.Enqueue(evt) {
			d.statsMu.Lock()
			d.queued++
			d.statsMu.Unlock()
		}
	}
}
