package link

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// heartbeatPayload is the probe body. Matching it in pong replies is not
// required; any pong counts as an acknowledgement.
var heartbeatPayload = []byte("keepalive")

// heartbeatMonitor sends the periodic liveness probe on an open session and
// answers the engine's own probes. Acknowledgements are logged and counted,
// nothing more. The interval timer lives in the link's registry so
// disconnect teardown cancels it with everything else.
type heartbeatMonitor struct {
	interval time.Duration
	tr       *transport
	timers   *TimerRegistry
	logger   *slog.Logger

	stopped atomic.Bool
	handle  atomic.Uint64

	pingsSent     atomic.Int64
	pongsReceived atomic.Int64
}

func newHeartbeatMonitor(interval time.Duration, tr *transport, timers *TimerRegistry, logger *slog.Logger) *heartbeatMonitor {
	return &heartbeatMonitor{
		interval: interval,
		tr:       tr,
		timers:   timers,
		logger:   logger,
	}
}

// start installs the probe handlers and schedules the first probe.
func (m *heartbeatMonitor) start() {
	m.tr.onPing(m.handlePing)
	m.tr.onPong(m.handlePong)
	m.schedule()
}

// stop halts probing. Called first in disconnect teardown so no probe goes
// out on a dying transport.
func (m *heartbeatMonitor) stop() {
	m.stopped.Store(true)
	m.timers.Cancel(TimerHandle(m.handle.Load()))
}

func (m *heartbeatMonitor) schedule() {
	h := m.timers.Schedule(m.interval, m.tick)
	m.handle.Store(uint64(h))
}

// tick sends one probe and schedules the next. An unwritable transport is
// skipped without comment; the read side notices dead connections.
func (m *heartbeatMonitor) tick() {
	if m.stopped.Load() {
		return
	}
	if m.tr.isOpen() {
		if err := m.tr.writePing(heartbeatPayload); err != nil {
			m.logger.Debug("heartbeat ping failed", "error", err)
		} else {
			m.pingsSent.Add(1)
			m.logger.Debug("heartbeat ping sent")
		}
	}
	if m.stopped.Load() {
		return
	}
	m.schedule()
}

func (m *heartbeatMonitor) handlePing(payload string) {
	if err := m.tr.writePong([]byte(payload)); err != nil {
		m.logger.Debug("heartbeat pong failed", "error", err)
		return
	}
	m.logger.Debug("heartbeat probe answered")
}

func (m *heartbeatMonitor) handlePong(string) {
	m.pongsReceived.Add(1)
	m.logger.Debug("heartbeat ack received")
}
