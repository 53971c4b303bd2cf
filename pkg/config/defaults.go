package config

// Defaults returns the built-in configuration applied before any YAML
// document or environment override is merged on top: a code-level baseline
// merged with dario.cat/mergo rather than zero-value checks scattered
// through every consumer.
func Defaults() *Config {
	return &Config{
		Capture: CaptureConfig{
			SocketPath:      "/var/run/oisp-sensor/capture.sock",
			MaxConnections:  16,
			ReadBufferBytes: 1 << 20,
		},
		Pipeline: PipelineConfig{
			CaptureBuffer: 4096,
			DecodeBuffer:  4096,
			EnrichBuffer:  2048,
			ActionBuffer:  2048,
			ExportBuffer:  2048,
			ShutdownGrace: mustDuration("5s"),
		},
		Redaction: RedactionConfig{
			Mode:               "safe",
			RedactAPIKeys:      true,
			RedactEmails:       true,
			RedactCreditCards:  true,
			RedactSSN:          true,
			RedactPhoneNumbers: false,
		},
		Policy: PolicyConfig{
			DocumentPath:   "/etc/oisp-sensor/policies.yaml",
			ReloadInterval: mustDuration("30s"),
			DefaultAction:  "allow",
		},
		Exporters: ExportersConfig{
			JSONL: JSONLExporterConfig{
				Enabled: true,
				Path:    "/var/log/oisp-sensor/events.jsonl",
			},
			WebSocket: WebSocketExporterConfig{
				Enabled:    false,
				ListenAddr: "127.0.0.1:9460",
			},
		},
		Cloud: CloudConfig{
			Enabled:           false,
			CredentialsPath:   "/var/lib/oisp-sensor/credentials.json",
			ReconnectEnabled:  true,
			ReconnectMaxDelay: mustDuration("5m"),
			Heartbeat: HeartbeatConfig{
				Interval:    mustDuration("30s"),
				Timeout:     mustDuration("10s"),
				MaxFailures: 5,
			},
			OfflineQueue: OfflineQueueConfig{
				DBPath:    "/var/lib/oisp-sensor/offline-queue.db",
				MaxEvents: 100000,
			},
			Batch: BatchConfig{
				Size:          100,
				FlushInterval: mustDuration("5s"),
				RatePerSecond: 50,
			},
		},
	}
}

func mustDuration(s string) Duration {
	d := Duration{}
	if err := d.UnmarshalYAML(func(v interface{}) error {
		*(v.(*string)) = s
		return nil
	}); err != nil {
		panic(err)
	}
	return d
}
