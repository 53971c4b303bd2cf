package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/oisp-sensor/core/pkg/policy"
	"github.com/oisp-sensor/core/pkg/version"
)

// Config governs enrollment and the connector's sub-services.
type Config struct {
	BaseURL         string
	APIKey          string // prefix oxm_
	EnrollmentToken string // prefix enroll_
	DeviceName      string
	DeviceTags      map[string]string

	HeartbeatInterval    time.Duration
	HeartbeatMaxFailures int
	BatchSize         int
	FlushInterval     time.Duration
	RatePerSecond     float64
	MaxOfflineEvents  int
	OfflineQueuePath  string
}

// Connector wires enrollment, the HTTP client, the offline queue, the
// batch exporter, the heartbeat service, and policy sync into the single
// Cloud Connector.
type Connector struct {
	cfg   Config
	store CredentialStore
	log   *slog.Logger

	client    *Client
	queue     *OfflineQueue
	Exporter  *Exporter
	Heartbeat *HeartbeatService
	policies  *policy.Evaluator

	creds Credentials

	// OnRestart/OnUpdate surface server-issued lifecycle commands to the
	// driving process; the connector never exits the process itself
	// Both may be left nil, in which case the command is
	// only logged.
	OnRestart func(ctx context.Context)
	OnUpdate  func(ctx context.Context, version string)
}

// New constructs a Connector. policies is the pipeline's live Evaluator —
// policy sync swaps it atomically via policy.Evaluator.Replace.
func New(cfg Config, store CredentialStore, policies *policy.Evaluator, log *slog.Logger) (*Connector, error) {
	if log == nil {
		log = slog.Default()
	}

	queue, err := OpenOfflineQueue(cfg.OfflineQueuePath, cfg.MaxOfflineEvents, log)
	if err != nil {
		return nil, fmt.Errorf("cloud: open offline queue: %w", err)
	}

	client := NewClient(cfg.BaseURL, store)

	c := &Connector{
		cfg:      cfg,
		store:    store,
		log:      log,
		client:   client,
		queue:    queue,
		policies: policies,
	}

	client.OnRotate(func(next Credentials) {
		c.creds = next
		if err := store.Save(next); err != nil {
			log.Error("cloud: persist rotated credentials failed", "error", err)
		}
	})

	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1)
	if cfg.RatePerSecond <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	c.Exporter = &Exporter{
		Client:        client,
		Queue:         queue,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Limiter:       limiter,
		Log:           log,
	}
	c.Heartbeat = &HeartbeatService{
		Client:      client,
		Handler:     c,
		Interval:    cfg.HeartbeatInterval,
		MaxFailures: cfg.HeartbeatMaxFailures,
		Log:         log,
	}

	return c, nil
}

// Bootstrap loads persisted credentials or enrolls fresh ones, then starts
// the exporter and heartbeat loops. Expired-but-present credentials are
// kept and flagged for re-enrollment rather than discarded.
func (c *Connector) Bootstrap(ctx context.Context) error {
	existing, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("cloud: load credentials: %w", err)
	}

	if existing != nil {
		c.creds = *existing
		c.client.SetCredentials(*existing)
		if existing.Expired() {
			c.log.Warn("cloud: stored credentials expired, re-enrollment required", "device_id", existing.DeviceID)
		}
	} else {
		if err := c.enroll(ctx); err != nil {
			return err
		}
	}

	c.Exporter.SetDeviceID(c.creds.DeviceID)
	c.Heartbeat.SetDeviceID(c.creds.DeviceID)
	c.Exporter.Start(ctx)
	c.Heartbeat.Start(ctx)
	return nil
}

func (c *Connector) enroll(ctx context.Context) error {
	info := c.deviceInfo()

	var (
		device Device
		creds  Credentials
		err    error
	)
	switch {
	case strings.HasPrefix(c.cfg.APIKey, "oxm_"):
		device, creds, err = c.client.Register(ctx, c.cfg.APIKey, info)
	case strings.HasPrefix(c.cfg.EnrollmentToken, "enroll_"):
		device, creds, err = c.client.Enroll(ctx, c.cfg.EnrollmentToken, info)
	case c.cfg.APIKey != "":
		device, creds, err = c.client.Register(ctx, c.cfg.APIKey, info)
	case c.cfg.EnrollmentToken != "":
		device, creds, err = c.client.Enroll(ctx, c.cfg.EnrollmentToken, info)
	default:
		return errors.New("cloud: neither api_key nor enrollment_token configured")
	}
	if err != nil {
		return fmt.Errorf("cloud: enrollment failed: %w", err)
	}

	c.log.Info("cloud: enrolled", "device_id", device.ID, "org_id", device.OrganizationID)
	c.creds = creds
	c.client.SetCredentials(creds)
	return c.store.Save(creds)
}

func (c *Connector) deviceInfo() DeviceInfo {
	hostname, _ := os.Hostname()
	return DeviceInfo{
		Hostname:      hostname,
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		SensorVersion: version.Full(),
		CPUs:          runtime.NumCPU(),
		Tags:          c.cfg.DeviceTags,
	}
}

// Shutdown stops the exporter and heartbeat, flushing buffered events
// first, and closes the offline queue.
func (c *Connector) Shutdown(ctx context.Context) error {
	_ = c.Exporter.Flush(ctx)
	c.Exporter.Stop()
	c.Heartbeat.Stop()
	return c.queue.Close()
}

// --- CommandHandler ---

// RotateToken forces an immediate token rotation, invoked either by a
// server-issued RotateToken command or the heartbeat's own overdue check.
func (c *Connector) RotateToken(ctx context.Context) error {
	next, err := c.client.rotateToken(ctx, c.creds)
	if err != nil {
		return err
	}
	c.creds = next
	c.client.SetCredentials(next)
	return c.store.Save(next)
}

// FetchPolicies pulls the current policy document and swaps it into the
// live Evaluator if its version changed.
func (c *Connector) FetchPolicies(ctx context.Context) error {
	doc, err := c.client.FetchPolicies(ctx, c.creds.DeviceID)
	if err != nil {
		return err
	}
	if c.policies != nil && doc.Version != c.policies.Version() {
		c.policies.Replace(doc)
		c.log.Info("cloud: policy document updated", "version", doc.Version)
	}
	return nil
}

var _ CommandHandler = (*Connector)(nil)

func (c *Connector) Restart(ctx context.Context) {
	c.log.Warn("cloud: server requested restart")
	if c.OnRestart != nil {
		c.OnRestart(ctx)
	}
}

func (c *Connector) Update(ctx context.Context, targetVersion string) {
	c.log.Warn("cloud: server requested update", "version", targetVersion)
	if c.OnUpdate != nil {
		c.OnUpdate(ctx, targetVersion)
	}
}
