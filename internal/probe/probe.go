package probe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emberworks/enginelink/internal/api"
)

// StatusHandler receives the snapshot after every probe cycle.
type StatusHandler interface {
	HandleStatus(snapshot Snapshot) error
}

// StatusHandlerFunc is a function adapter for StatusHandler.
type StatusHandlerFunc func(Snapshot) error

func (f StatusHandlerFunc) HandleStatus(s Snapshot) error {
	return f(s)
}

// Config holds probe configuration.
type Config struct {
	Interval time.Duration // Probe interval (default: 60s)
	Timeout  time.Duration // Per-cycle timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		Timeout:  10 * time.Second,
	}
}

// Snapshot is the result of the most recent probe cycle.
type Snapshot struct {
	Reachable           bool
	EngineActive        bool
	EngineVersion       string
	ServerName          string
	ServerCapacity      int
	ServerOnline        int
	CheckedAt           time.Time
	LastSuccess         time.Time
	LastError           string
	ConsecutiveFailures int
	Checks              int64
	Failures            int64
}

// Probe periodically checks engine reachability via the REST API.
type Probe struct {
	cfg      Config
	client   *api.Client
	serverID string
	handler  StatusHandler
	logger   *slog.Logger

	mu       sync.Mutex
	snapshot Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Probe. handler may be nil.
func New(cfg Config, client *api.Client, serverID string, handler StatusHandler, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Probe{
		cfg:      cfg,
		client:   client,
		serverID: serverID,
		handler:  handler,
		logger:   logger,
	}
}

// Start begins the probe loop.
func (p *Probe) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("engine probe started",
		"interval", p.cfg.Interval,
		"server_id", p.serverID,
	)

	return nil
}

// Stop gracefully shuts down the probe.
func (p *Probe) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("engine probe stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the result of the most recent cycle.
func (p *Probe) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// run is the main probe loop.
func (p *Probe) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Probe immediately on start.
	p.check()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.check()
		}
	}
}

// check runs one probe cycle and updates the snapshot.
func (p *Probe) check() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	now := time.Now()

	status, err := p.client.GetStatus(ctx)
	var info *api.ServerInfo
	if err == nil && p.serverID != "" {
		info, err = p.client.GetServerInfo(ctx, p.serverID)
	}

	p.mu.Lock()
	wasReachable := p.snapshot.Reachable
	hadChecked := p.snapshot.Checks > 0

	p.snapshot.Checks++
	p.snapshot.CheckedAt = now

	if err != nil {
		p.snapshot.Reachable = false
		p.snapshot.LastError = err.Error()
		p.snapshot.ConsecutiveFailures++
		p.snapshot.Failures++
	} else {
		p.snapshot.Reachable = true
		p.snapshot.EngineActive = status.Active
		p.snapshot.EngineVersion = status.Version
		if info != nil {
			p.snapshot.ServerName = info.Name
			p.snapshot.ServerCapacity = info.Capacity
			p.snapshot.ServerOnline = info.Online
		}
		p.snapshot.LastSuccess = now
		p.snapshot.LastError = ""
		p.snapshot.ConsecutiveFailures = 0
	}
	current := p.snapshot
	p.mu.Unlock()

	switch {
	case err != nil && (wasReachable || !hadChecked):
		p.logger.Warn("engine unreachable",
			"error", err,
			"consecutive_failures", current.ConsecutiveFailures,
		)
	case err == nil && !wasReachable && hadChecked:
		p.logger.Info("engine reachable again",
			"version", current.EngineVersion,
			"active", current.EngineActive,
		)
	case err == nil:
		p.logger.Debug("engine probe ok",
			"version", current.EngineVersion,
			"active", current.EngineActive,
			"online", current.ServerOnline,
		)
	}

	if p.handler != nil {
		if herr := p.handler.HandleStatus(current); herr != nil {
			p.logger.Warn("probe status handler failed", "error", herr)
		}
	}
}
