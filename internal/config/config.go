package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Engine   EngineConfig   `yaml:"engine"`
	Link     LinkConfig     `yaml:"link"`
	Journal  JournalConfig  `yaml:"journal"`
	Probe    ProbeConfig    `yaml:"probe"`
	Health   HealthConfig   `yaml:"health"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID     string `yaml:"id" env:"RELAY_INSTANCE_ID"`
	Region string `yaml:"region" env:"RELAY_REGION"`
}

// EngineConfig holds engine endpoints and credentials.
type EngineConfig struct {
	RestURL      string        `yaml:"rest_url" env:"ENGINE_REST_URL"`
	SocketURL    string        `yaml:"socket_url" env:"ENGINE_SOCKET_URL"`
	APIKeyID     string        `yaml:"api_key_id" env:"ENGINE_API_KEY_ID"`
	APIKeySecret string        `yaml:"api_key_secret" env:"ENGINE_API_KEY_SECRET"`
	ServerID     string        `yaml:"server_id" env:"ENGINE_SERVER_ID"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

// LinkConfig holds socket connection settings.
type LinkConfig struct {
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxAttempts  int           `yaml:"retry_max_attempts"`
	EventBuffer       int           `yaml:"event_buffer"`
}

// JournalConfig holds event journal settings. The journal is optional; a
// relay without a database runs dispatch-only.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	QueueSize     int           `yaml:"queue_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" env:"JOURNAL_DB_HOST"`
	Port     int    `yaml:"port" env:"JOURNAL_DB_PORT"`
	Name     string `yaml:"name" env:"JOURNAL_DB_NAME"`
	User     string `yaml:"user" env:"JOURNAL_DB_USER"`
	Password string `yaml:"password" env:"JOURNAL_DB_PASSWORD"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ProbeConfig holds REST reachability probe settings.
type ProbeConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
