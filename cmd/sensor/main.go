// oisp-sensor is the on-device process that captures AI network traffic,
// decodes it into the OISP event schema, applies redaction and policy, and
// exports it locally and (optionally) to the cloud.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oisp-sensor/core/pkg/cloud"
	"github.com/oisp-sensor/core/pkg/config"
	"github.com/oisp-sensor/core/pkg/decoder"
	"github.com/oisp-sensor/core/pkg/event"
	"github.com/oisp-sensor/core/pkg/pipeline"
	"github.com/oisp-sensor/core/pkg/policy"
	"github.com/oisp-sensor/core/pkg/provider"
	"github.com/oisp-sensor/core/pkg/redaction"
	"github.com/oisp-sensor/core/pkg/version"
)

const (
	exitOK               = 0
	exitConfigError      = 1
	exitCapturePrereqs   = 2
	exitCloudEnrollFatal = 3
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "/etc/oisp-sensor"), "Path to configuration directory")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Minimum log level (debug|info|warn|error)")
	flag.Parse()

	log := newLogger(*logLevel)

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Debug("no .env file loaded", "path", envPath, "error", err)
	}

	log.Info("starting", "app", version.AppName, "version", version.Full(), "config_dir", *configDir)

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		log.Error("configuration failed to load", "error", err)
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	evCtx, err := event.NewContext(version.AppName)
	if err != nil {
		log.Error("failed to load event spec bundle", "error", err)
		return exitConfigError
	}

	registry := provider.NewRegistry(provider.DefaultConfigs(), provider.DefaultWebApps())
	registryStore := provider.NewStore(registry)

	redactor := redaction.NewEngine(toRedactionConfig(cfg.Redaction), log)

	dec := decoder.New(evCtx, registryStore, redactor, cfg.Redaction.Mode == string(redaction.ModeFull))

	doc, err := policy.Load(cfg.Policy.DocumentPath)
	if err != nil {
		log.Warn("policy document not loaded, falling back to default action only", "path", cfg.Policy.DocumentPath, "error", err)
		doc = policy.Document{Version: "0", Settings: policy.Settings{DefaultAction: cfg.Policy.DefaultAction}}
	}
	evaluator := policy.NewEvaluator(doc)
	executor := policy.NewExecutor(redactor, log, nil)

	actions := []pipeline.Action{
		&pipeline.RedactionAction{Engine: redactor},
		&pipeline.PolicyAction{Evaluator: evaluator, Executor: executor, Log: log},
	}

	enrichers := []pipeline.Enricher{
		&pipeline.HostEnricher{},
		&pipeline.ProcessTreeEnricher{},
		&pipeline.AppEnricher{Known: pipeline.DefaultKnownApps()},
	}

	capturer := &pipeline.UnixSocketCapturer{
		SocketPath:      cfg.Capture.SocketPath,
		MaxConnections:  cfg.Capture.MaxConnections,
		ReadBufferBytes: cfg.Capture.ReadBufferBytes,
		Log:             log,
	}

	var exporters []pipeline.Exporter
	if cfg.Exporters.JSONL.Enabled {
		exporters = append(exporters, &pipeline.JSONLExporter{Path: cfg.Exporters.JSONL.Path})
	}

	var wsExporter *pipeline.WebSocketExporter
	if cfg.Exporters.WebSocket.Enabled {
		wsExporter = &pipeline.WebSocketExporter{ListenAddr: cfg.Exporters.WebSocket.ListenAddr, Log: log}
		exporters = append(exporters, wsExporter)
	}

	var connector *cloud.Connector
	if cfg.Cloud.Enabled {
		connector, err = cloud.New(toCloudConfig(cfg.Cloud), cloud.NewFileCredentialStore(cfg.Cloud.CredentialsPath), evaluator, log)
		if err != nil {
			log.Error("cloud connector construction failed", "error", err)
			return exitConfigError
		}
		connector.Heartbeat.Stats = func() cloud.HeartbeatStats {
			return cloud.HeartbeatStats{
				SensorVersion: version.Full(),
				PolicyVersion: evaluator.Version(),
			}
		}

		if err := connector.Bootstrap(ctx); err != nil {
			if cfg.Cloud.ReconnectEnabled {
				log.Warn("cloud enrollment failed, continuing capture-only", "error", err)
			} else {
				log.Error("cloud enrollment failed, reconnect disabled", "error", err)
				return exitCloudEnrollFatal
			}
		} else {
			exporters = append(exporters, connector.Exporter)
			connector.OnRestart = func(ctx context.Context) {
				log.Warn("server requested restart; exiting for the supervisor to relaunch")
				stop()
			}
		}
	}

	kernel := pipeline.New(pipeline.Config{
		CaptureBuffer: cfg.Pipeline.CaptureBuffer,
		DecodeBuffer:  cfg.Pipeline.DecodeBuffer,
		EnrichBuffer:  cfg.Pipeline.EnrichBuffer,
		ActionBuffer:  cfg.Pipeline.ActionBuffer,
		ExportBuffer:  cfg.Pipeline.ExportBuffer,
		ShutdownGrace: time.Duration(cfg.Pipeline.ShutdownGrace.Nanoseconds()),
	}, capturer, dec, enrichers, actions, exporters, log)

	if wsExporter != nil {
		wsExporter.Counters = kernel.Counters
		go func() {
			if err := wsExporter.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("websocket exporter stopped", "error", err)
			}
		}()
	}

	kernel.Start(ctx)
	log.Info("pipeline started", "socket", cfg.Capture.SocketPath)

	exitCode := exitOK
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, draining pipeline")
	case err := <-kernel.Err():
		log.Error("capture prerequisites unmet, shutting down", "error", err)
		exitCode = exitCapturePrereqs
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Pipeline.ShutdownGrace.Nanoseconds())+5*time.Second)
	defer cancel()

	if err := kernel.Shutdown(shutdownCtx); err != nil {
		log.Warn("pipeline shutdown did not drain cleanly", "error", err)
	}
	if connector != nil {
		if err := connector.Shutdown(shutdownCtx); err != nil {
			log.Warn("cloud connector shutdown failed", "error", err)
		}
	}

	log.Info("stopped")
	return exitCode
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

func toRedactionConfig(c config.RedactionConfig) redaction.Config {
	patterns := make([]redaction.CustomPattern, len(c.CustomPatterns))
	for i, p := range c.CustomPatterns {
		patterns[i] = redaction.CustomPattern{Name: p.Name, Pattern: p.Pattern, Replacement: p.Replacement}
	}
	return redaction.Config{
		Mode:               redaction.Mode(c.Mode),
		RedactAPIKeys:      c.RedactAPIKeys,
		RedactEmails:       c.RedactEmails,
		RedactCreditCards:  c.RedactCreditCards,
		RedactSSN:          c.RedactSSN,
		RedactPhoneNumbers: c.RedactPhoneNumbers,
		CustomPatterns:     patterns,
	}
}

func toCloudConfig(c config.CloudConfig) cloud.Config {
	return cloud.Config{
		BaseURL:           c.BaseURL,
		APIKey:            c.APIKey,
		EnrollmentToken:   c.EnrollmentToken,
		DeviceName:        c.Device.Name,
		DeviceTags:        c.Device.Tags,
		HeartbeatInterval:    time.Duration(c.Heartbeat.Interval.Nanoseconds()),
		HeartbeatMaxFailures: c.Heartbeat.MaxFailures,
		BatchSize:         c.Batch.Size,
		FlushInterval:     time.Duration(c.Batch.FlushInterval.Nanoseconds()),
		RatePerSecond:     c.Batch.RatePerSecond,
		MaxOfflineEvents:  c.OfflineQueue.MaxEvents,
		OfflineQueuePath:  c.OfflineQueue.DBPath,
	}
}
