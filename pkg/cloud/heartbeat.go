package cloud

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// StatsSource supplies the live counters a heartbeat reports, decoupling
// the heartbeat service from the pipeline package.
type StatsSource func() HeartbeatStats

// CommandHandler reacts to a single server-issued command. Restart/Update
// are surfaced to the driving process rather than acted on here — the
// Cloud Connector itself never exits the process.
type CommandHandler interface {
	RotateToken(ctx context.Context) error
	FetchPolicies(ctx context.Context) error
	Restart(ctx context.Context)
	Update(ctx context.Context, version string)
}

// HeartbeatService posts status/stats on a fixed interval and dispatches
// whatever ServerCommands come back.
type HeartbeatService struct {
	Client   *Client
	Handler  CommandHandler
	Interval time.Duration
	// MaxFailures is the consecutive-failure count at which the service
	// escalates its logging; it never exits the process.
	MaxFailures int
	Stats       StatsSource
	Log         *slog.Logger

	deviceID atomic.Pointer[string]

	mu              sync.Mutex
	lastSuccess     time.Time
	consecutiveFail int

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// SetDeviceID sets the device this heartbeat reports for.
func (h *HeartbeatService) SetDeviceID(id string) {
	idCopy := id
	h.deviceID.Store(&idCopy)
}

// Start begins the heartbeat ticker loop.
func (h *HeartbeatService) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	interval := h.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.beat(ctx)
			}
		}
	}()
}

// Stop halts the heartbeat loop and waits for it to exit.
func (h *HeartbeatService) Stop() {
	h.stopOnce.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
	h.wg.Wait()
}

// IsOverdue reports whether more than 2x the configured interval has
// elapsed since the last successful heartbeat.
func (h *HeartbeatService) IsOverdue() bool {
	h.mu.Lock()
	last := h.lastSuccess
	h.mu.Unlock()
	if last.IsZero() {
		return false
	}
	interval := h.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return time.Since(last) > 2*interval
}

// ConsecutiveFailures returns the current run of failed heartbeat attempts.
func (h *HeartbeatService) ConsecutiveFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFail
}

func (h *HeartbeatService) beat(ctx context.Context) {
	log := h.logger()
	deviceID := ""
	if p := h.deviceID.Load(); p != nil {
		deviceID = *p
	}
	if deviceID == "" {
		return
	}

	var stats HeartbeatStats
	if h.Stats != nil {
		stats = h.Stats()
	}

	ok, commands, _, err := h.Client.Heartbeat(ctx, deviceID, StatusActive, stats)
	if err != nil || !ok {
		h.mu.Lock()
		h.consecutiveFail++
		fails := h.consecutiveFail
		h.mu.Unlock()

		maxFails := h.MaxFailures
		if maxFails <= 0 {
			maxFails = 5
		}
		if fails >= maxFails {
			log.Error("cloud: heartbeat failure threshold reached, cloud connectivity degraded",
				"error", err, "consecutive_failures", fails, "max_failures", maxFails)
		} else {
			log.Warn("cloud: heartbeat failed", "error", err, "consecutive_failures", fails)
		}
		return
	}

	h.mu.Lock()
	h.lastSuccess = time.Now()
	h.consecutiveFail = 0
	h.mu.Unlock()

	if h.Handler == nil {
		return
	}
	for _, cmd := range commands {
		h.dispatch(ctx, cmd)
	}
}

func (h *HeartbeatService) dispatch(ctx context.Context, cmd ServerCommand) {
	log := h.logger()
	switch cmd.Type {
	case CommandRotateToken:
		if err := h.Handler.RotateToken(ctx); err != nil {
			log.Warn("cloud: server-commanded token rotation failed", "error", err)
		}
	case CommandFetchPolicies:
		if err := h.Handler.FetchPolicies(ctx); err != nil {
			log.Warn("cloud: server-commanded policy fetch failed", "error", err)
		}
	case CommandRestart:
		h.Handler.Restart(ctx)
	case CommandUpdate:
		h.Handler.Update(ctx, cmd.Version)
	default:
		log.Debug("cloud: unrecognized server command", "type", cmd.Type)
	}
}

func (h *HeartbeatService) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}
