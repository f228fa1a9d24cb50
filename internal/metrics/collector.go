package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/emberworks/enginelink/internal/dispatch"
	"github.com/emberworks/enginelink/internal/journal"
	"github.com/emberworks/enginelink/internal/link"
	"github.com/emberworks/enginelink/internal/probe"
	"github.com/emberworks/enginelink/internal/version"
)

const namespace = "enginelink"

var (
	buildInfoDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "build_info"),
		"Build information for the running relay.",
		[]string{"version", "commit"}, nil,
	)

	linkUpDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "up"),
		"Whether the engine link is open (1=open).",
		nil, nil,
	)
	linkStateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "state"),
		"Current link lifecycle state (value is always 1 for the active state).",
		[]string{"state"}, nil,
	)
	linkAttemptDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "retry_attempt"),
		"Current retry attempt number, 0 while connected.",
		nil, nil,
	)
	linkReconnectsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "reconnects_total"),
		"Total reconnections after an established session was lost.",
		nil, nil,
	)
	linkReceivedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "frames_received_total"),
		"Total frames received from the engine socket.",
		nil, nil,
	)
	linkDispatchedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "events_dispatched_total"),
		"Total decoded events delivered to the consumer channel.",
		nil, nil,
	)
	linkDecodeErrorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "decode_errors_total"),
		"Total frames dropped as malformed.",
		nil, nil,
	)
	linkStaleDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "stale_dropped_total"),
		"Total frames dropped for predating the connection.",
		nil, nil,
	)
	linkUnmappedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "unmapped_dropped_total"),
		"Total frames dropped for carrying an unmapped event name.",
		nil, nil,
	)
	linkOverflowDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "overflow_dropped_total"),
		"Total events dropped because the consumer channel was full.",
		nil, nil,
	)
	linkSentDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "messages_sent_total"),
		"Total messages emitted to the engine.",
		nil, nil,
	)
	linkPingsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "pings_sent_total"),
		"Total heartbeat pings sent.",
		nil, nil,
	)
	linkPongsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "pongs_received_total"),
		"Total heartbeat acknowledgements received.",
		nil, nil,
	)
	linkEstablishedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "link", "established_timestamp_seconds"),
		"Unix time the current or last session was established, 0 if never.",
		nil, nil,
	)

	dispatchReceivedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dispatch", "events_received_total"),
		"Total events taken from the link.",
		nil, nil,
	)
	dispatchHandledDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dispatch", "events_handled_total"),
		"Total events that reached at least one subscriber.",
		nil, nil,
	)
	dispatchQueuedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dispatch", "events_queued_total"),
		"Total events enqueued for the journal.",
		nil, nil,
	)
	queueDepthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dispatch", "queue_depth"),
		"Events currently waiting in the journal queue.",
		nil, nil,
	)
	queueCapacityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dispatch", "queue_capacity"),
		"Current capacity of the journal queue.",
		nil, nil,
	)
	queueHighWaterDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "dispatch", "queue_high_water"),
		"Deepest the journal queue has been.",
		nil, nil,
	)

	journalInsertsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "journal", "events_inserted_total"),
		"Total events written to the journal.",
		nil, nil,
	)
	journalConflictsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "journal", "insert_conflicts_total"),
		"Total events skipped as already journaled.",
		nil, nil,
	)
	journalFlushesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "journal", "flushes_total"),
		"Total batch flushes.",
		nil, nil,
	)
	journalErrorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "journal", "flush_errors_total"),
		"Total batch flushes that failed.",
		nil, nil,
	)
	journalSkippedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "journal", "events_skipped_total"),
		"Total events dropped as unjournalable.",
		nil, nil,
	)

	engineReachableDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "engine", "reachable"),
		"Whether the last REST probe reached the engine (1=reachable).",
		nil, nil,
	)
	engineActiveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "engine", "active"),
		"Whether the engine reported itself active on the last probe.",
		nil, nil,
	)
	probeChecksDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "engine", "probe_checks_total"),
		"Total probe cycles run.",
		nil, nil,
	)
	probeFailuresDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "engine", "probe_failures_total"),
		"Total probe cycles that failed.",
		nil, nil,
	)
	probeConsecutiveDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "engine", "probe_consecutive_failures"),
		"Probe failures since the last success.",
		nil, nil,
	)
	enginePlayersDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "engine", "players_online"),
		"Players online on the configured server at the last probe.",
		nil, nil,
	)
	engineCapacityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "engine", "server_capacity"),
		"Player capacity of the configured server.",
		nil, nil,
	)
)

// Sources supplies component stats to the collector. Any nil field skips
// that component's metric family.
type Sources struct {
	Link     func() link.Stats
	Dispatch func() dispatch.Stats
	Journal  func() journal.Metrics
	Probe    func() probe.Snapshot
}

// Collector reads component stats on scrape and converts them to
// Prometheus metrics.
type Collector struct {
	sources Sources
}

// NewCollector creates a collector over the given sources.
func NewCollector(sources Sources) *Collector {
	return &Collector{sources: sources}
}

// NewRegistry builds the relay registry: the component collector plus the
// standard go and process collectors.
func NewRegistry(sources Sources) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewCollector(sources),
	)
	return registry
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- buildInfoDesc

	ch <- linkUpDesc
	ch <- linkStateDesc
	ch <- linkAttemptDesc
	ch <- linkReconnectsDesc
	ch <- linkReceivedDesc
	ch <- linkDispatchedDesc
	ch <- linkDecodeErrorsDesc
	ch <- linkStaleDesc
	ch <- linkUnmappedDesc
	ch <- linkOverflowDesc
	ch <- linkSentDesc
	ch <- linkPingsDesc
	ch <- linkPongsDesc
	ch <- linkEstablishedDesc

	ch <- dispatchReceivedDesc
	ch <- dispatchHandledDesc
	ch <- dispatchQueuedDesc
	ch <- queueDepthDesc
	ch <- queueCapacityDesc
	ch <- queueHighWaterDesc

	ch <- journalInsertsDesc
	ch <- journalConflictsDesc
	ch <- journalFlushesDesc
	ch <- journalErrorsDesc
	ch <- journalSkippedDesc

	ch <- engineReachableDesc
	ch <- engineActiveDesc
	ch <- probeChecksDesc
	ch <- probeFailuresDesc
	ch <- probeConsecutiveDesc
	ch <- enginePlayersDesc
	ch <- engineCapacityDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(buildInfoDesc, prometheus.GaugeValue, 1,
		version.Version, version.Commit)

	if c.sources.Link != nil {
		s := c.sources.Link()
		ch <- prometheus.MustNewConstMetric(linkUpDesc, prometheus.GaugeValue, boolValue(s.State == "open"))
		ch <- prometheus.MustNewConstMetric(linkStateDesc, prometheus.GaugeValue, 1, s.State)
		ch <- prometheus.MustNewConstMetric(linkAttemptDesc, prometheus.GaugeValue, float64(s.Attempt))
		ch <- prometheus.MustNewConstMetric(linkReconnectsDesc, prometheus.CounterValue, float64(s.Reconnects))
		ch <- prometheus.MustNewConstMetric(linkReceivedDesc, prometheus.CounterValue, float64(s.Received))
		ch <- prometheus.MustNewConstMetric(linkDispatchedDesc, prometheus.CounterValue, float64(s.Dispatched))
		ch <- prometheus.MustNewConstMetric(linkDecodeErrorsDesc, prometheus.CounterValue, float64(s.DecodeErrors))
		ch <- prometheus.MustNewConstMetric(linkStaleDesc, prometheus.CounterValue, float64(s.StaleDropped))
		ch <- prometheus.MustNewConstMetric(linkUnmappedDesc, prometheus.CounterValue, float64(s.UnmappedDropped))
		ch <- prometheus.MustNewConstMetric(linkOverflowDesc, prometheus.CounterValue, float64(s.OverflowDropped))
		ch <- prometheus.MustNewConstMetric(linkSentDesc, prometheus.CounterValue, float64(s.Sent))
		ch <- prometheus.MustNewConstMetric(linkPingsDesc, prometheus.CounterValue, float64(s.PingsSent))
		ch <- prometheus.MustNewConstMetric(linkPongsDesc, prometheus.CounterValue, float64(s.PongsReceived))

		var established float64
		if !s.LastEstablished.IsZero() {
			established = float64(s.LastEstablished.Unix())
		}
		ch <- prometheus.MustNewConstMetric(linkEstablishedDesc, prometheus.GaugeValue, established)
	}

	if c.sources.Dispatch != nil {
		s := c.sources.Dispatch()
		ch <- prometheus.MustNewConstMetric(dispatchReceivedDesc, prometheus.CounterValue, float64(s.Received))
		ch <- prometheus.MustNewConstMetric(dispatchHandledDesc, prometheus.CounterValue, float64(s.Handled))
		ch <- prometheus.MustNewConstMetric(dispatchQueuedDesc, prometheus.CounterValue, float64(s.Queued))
		ch <- prometheus.MustNewConstMetric(queueDepthDesc, prometheus.GaugeValue, float64(s.Queue.Depth))
		ch <- prometheus.MustNewConstMetric(queueCapacityDesc, prometheus.GaugeValue, float64(s.Queue.Capacity))
		ch <- prometheus.MustNewConstMetric(queueHighWaterDesc, prometheus.GaugeValue, float64(s.Queue.HighWater))
	}

	if c.sources.Journal != nil {
		s := c.sources.Journal()
		ch <- prometheus.MustNewConstMetric(journalInsertsDesc, prometheus.CounterValue, float64(s.Inserts))
		ch <- prometheus.MustNewConstMetric(journalConflictsDesc, prometheus.CounterValue, float64(s.Conflicts))
		ch <- prometheus.MustNewConstMetric(journalFlushesDesc, prometheus.CounterValue, float64(s.Flushes))
		ch <- prometheus.MustNewConstMetric(journalErrorsDesc, prometheus.CounterValue, float64(s.Errors))
		ch <- prometheus.MustNewConstMetric(journalSkippedDesc, prometheus.CounterValue, float64(s.Skipped))
	}

	if c.sources.Probe != nil {
		s := c.sources.Probe()
		ch <- prometheus.MustNewConstMetric(engineReachableDesc, prometheus.GaugeValue, boolValue(s.Reachable))
		ch <- prometheus.MustNewConstMetric(engineActiveDesc, prometheus.GaugeValue, boolValue(s.EngineActive))
		ch <- prometheus.MustNewConstMetric(probeChecksDesc, prometheus.CounterValue, float64(s.Checks))
		ch <- prometheus.MustNewConstMetric(probeFailuresDesc, prometheus.CounterValue, float64(s.Failures))
		ch <- prometheus.MustNewConstMetric(probeConsecutiveDesc, prometheus.GaugeValue, float64(s.ConsecutiveFailures))
		ch <- prometheus.MustNewConstMetric(enginePlayersDesc, prometheus.GaugeValue, float64(s.ServerOnline))
		ch <- prometheus.MustNewConstMetric(engineCapacityDesc, prometheus.GaugeValue, float64(s.ServerCapacity))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
