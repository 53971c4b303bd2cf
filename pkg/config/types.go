package config

import (
	"fmt"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Duration is a time.Duration that unmarshals from human-friendly YAML
// strings ("30s", "5m", "1h30m") via str2duration instead of Go's strict
// time.ParseDuration, matching the looser syntax operators write by hand.
type Duration struct {
	Value string `yaml:"-"`
	ns    int64
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := str2duration.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Value = s
	d.ns = int64(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Value, nil
}

// Nanoseconds returns the parsed duration in nanoseconds.
func (d Duration) Nanoseconds() int64 { return d.ns }

// Config is the umbrella sensor configuration, loaded from a YAML document
// (optionally split across config.yaml + environment overrides) and returned
// by Initialize. Every component reads its own sub-section; nothing reaches
// into another component's config directly.
type Config struct {
	configDir string

	Capture   CaptureConfig   `yaml:"capture"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Redaction RedactionConfig `yaml:"redaction"`
	Policy    PolicyConfig    `yaml:"policy"`
	Exporters ExportersConfig `yaml:"exporters"`
	Cloud     CloudConfig     `yaml:"cloud"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// CaptureConfig configures the capture stage's external producer interface.
type CaptureConfig struct {
	// SocketPath is the Unix domain socket the reference NDJSON capturer
	// listens on for externally-produced raw events.
	SocketPath string `yaml:"socket_path"`
	// MaxConnections bounds concurrent capture-socket clients.
	MaxConnections int `yaml:"max_connections"`
	// ReadBufferBytes sizes the per-connection NDJSON line scanner buffer.
	ReadBufferBytes int `yaml:"read_buffer_bytes"`
}

// PipelineConfig configures the bounded-channel stage graph.
type PipelineConfig struct {
	CaptureBuffer int      `yaml:"capture_buffer"`
	DecodeBuffer  int      `yaml:"decode_buffer"`
	EnrichBuffer  int      `yaml:"enrich_buffer"`
	ActionBuffer  int      `yaml:"action_buffer"`
	ExportBuffer  int      `yaml:"export_buffer"`
	ShutdownGrace Duration `yaml:"shutdown_grace"`
}

// RedactionConfig mirrors the original's RedactionConfig 1:1.
type RedactionConfig struct {
	Mode                string          `yaml:"mode"` // safe | full | minimal
	RedactAPIKeys       bool            `yaml:"redact_api_keys"`
	RedactEmails        bool            `yaml:"redact_emails"`
	RedactCreditCards   bool            `yaml:"redact_credit_cards"`
	RedactSSN           bool            `yaml:"redact_ssn"`
	RedactPhoneNumbers  bool            `yaml:"redact_phone_numbers"`
	CustomPatterns      []CustomPattern `yaml:"custom_patterns"`
}

// CustomPattern is a user-supplied redaction regex + replacement token.
type CustomPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// PolicyConfig locates and governs reload of the policy document.
type PolicyConfig struct {
	DocumentPath   string   `yaml:"document_path"`
	ReloadInterval Duration `yaml:"reload_interval"`
	DefaultAction  string   `yaml:"default_action"` // allow | block | log
}

// ExportersConfig toggles each export sink.
type ExportersConfig struct {
	JSONL     JSONLExporterConfig     `yaml:"jsonl"`
	WebSocket WebSocketExporterConfig `yaml:"websocket"`
}

// JSONLExporterConfig configures the append-only JSONL file sink.
type JSONLExporterConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WebSocketExporterConfig configures the local WS/UI fan-out sink.
type WebSocketExporterConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// CloudConfig configures the Cloud Connector.
type CloudConfig struct {
	Enabled        bool               `yaml:"enabled"`
	BaseURL        string             `yaml:"base_url"`
	APIKey         string             `yaml:"api_key"`
	EnrollmentToken string            `yaml:"enrollment_token"`
	CredentialsPath string            `yaml:"credentials_path"`
	Device         DeviceConfig       `yaml:"device"`
	Heartbeat      HeartbeatConfig    `yaml:"heartbeat"`
	OfflineQueue   OfflineQueueConfig `yaml:"offline_queue"`
	Batch          BatchConfig        `yaml:"batch"`
	// ReconnectEnabled governs what happens when initial enrollment fails:
	// true keeps the sensor running capture-only and retries enrollment in
	// the background; false makes the driving process exit 3 immediately,
	// per the exit code table.
	ReconnectEnabled  bool     `yaml:"reconnect_enabled"`
	ReconnectMaxDelay Duration `yaml:"reconnect_max_delay"`
}

// DeviceConfig seeds the DeviceInfo sent during enrollment.
type DeviceConfig struct {
	Name string            `yaml:"name"`
	Tags map[string]string `yaml:"tags"`
}

// HeartbeatConfig governs the heartbeat ticker and failure thresholds.
type HeartbeatConfig struct {
	Interval    Duration `yaml:"interval"`
	Timeout     Duration `yaml:"timeout"`
	MaxFailures int      `yaml:"max_failures"`
}

// OfflineQueueConfig configures the SQLite-backed offline event queue.
type OfflineQueueConfig struct {
	DBPath    string `yaml:"db_path"`
	MaxEvents int    `yaml:"max_events"`
}

// BatchConfig governs the cloud batch exporter.
type BatchConfig struct {
	Size          int      `yaml:"size"`
	FlushInterval Duration `yaml:"flush_interval"`
	RatePerSecond float64  `yaml:"rate_per_second"`
}
