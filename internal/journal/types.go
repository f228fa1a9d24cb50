package journal

import "time"

// Config holds configuration for the journal writer.
type Config struct {
	// BatchSize is the row count that triggers an immediate flush.
	BatchSize int

	// FlushInterval flushes partial batches on a timer.
	FlushInterval time.Duration
}

// DefaultConfig returns the standard journal configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics contains journal writer counters.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Skipped   int64
}

// eventRow is the engine_events row shape.
type eventRow struct {
	MessageID  string
	Event      string
	Name       string
	Payload    []byte
	Headers    []byte
	EventTs    *time.Time
	ReceivedAt time.Time
}
