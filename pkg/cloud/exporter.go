package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/oisp-sensor/core/pkg/event"
)

// Exporter is the Cloud Connector's pipeline.Exporter: it buffers events up
// to BatchSize or FlushInterval and ships them via Client.PostBatch. On a
// network-class or server error the buffered batch is enqueued to the
// OfflineQueue instead of being lost. It also runs a
// background drainer that opportunistically empties the offline queue once
// the connector is exporting successfully again.
type Exporter struct {
	Client        *Client
	Queue         *OfflineQueue
	BatchSize     int
	FlushInterval time.Duration
	Limiter       *rate.Limiter
	Log           *slog.Logger

	deviceID atomic.Pointer[string]
	exported atomic.Int64
	authDown atomic.Bool

	mu  sync.Mutex
	buf []json.RawMessage

	// retryInterval overrides the delivery retry backoff's initial
	// interval; zero keeps the library default. Tests shrink it.
	retryInterval time.Duration

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func (e *Exporter) Name() string { return "export.cloud" }

// SetDeviceID updates the device id used on outbound batch/drain requests,
// called once enrollment completes.
func (e *Exporter) SetDeviceID(id string) {
	idCopy := id
	e.deviceID.Store(&idCopy)
	e.authDown.Store(false)
}

func (e *Exporter) currentDeviceID() string {
	if p := e.deviceID.Load(); p != nil {
		return *p
	}
	return ""
}

// Start launches the periodic flush ticker and the offline-queue drainer.
func (e *Exporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	interval := e.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.flushLocked(ctx)
			}
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval * 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.drainOffline(ctx)
			}
		}
	}()
}

// Stop cancels the background goroutines and waits for them to exit.
func (e *Exporter) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
	})
	e.wg.Wait()
}

// Export buffers ev, flushing synchronously once BatchSize is reached.
func (e *Exporter) Export(ctx context.Context, ev event.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("cloud: marshal event for export: %w", err)
	}

	e.mu.Lock()
	e.buf = append(e.buf, raw)
	full := e.BatchSize > 0 && len(e.buf) >= e.BatchSize
	e.mu.Unlock()

	if full {
		e.flushLocked(ctx)
	}
	return nil
}

// Flush sends whatever is currently buffered. Implements pipeline.Exporter.
func (e *Exporter) Flush(ctx context.Context) error {
	e.flushLocked(ctx)
	return nil
}

// ExportedCount returns the running total of successfully delivered events.
func (e *Exporter) ExportedCount() int64 { return e.exported.Load() }

func (e *Exporter) flushLocked(ctx context.Context) {
	e.mu.Lock()
	if len(e.buf) == 0 {
		e.mu.Unlock()
		return
	}
	batch := e.buf
	e.buf = nil
	e.mu.Unlock()

	e.sendOrQueue(ctx, batch)
}

// sendOrQueue attempts delivery with bounded retry; on persistent or
// auth failure the batch is durably queued instead of dropped.
func (e *Exporter) sendOrQueue(ctx context.Context, batch []json.RawMessage) {
	log := e.logger()
	deviceID := e.currentDeviceID()
	if deviceID == "" || e.authDown.Load() {
		e.enqueue(ctx, batch)
		return
	}

	if e.Limiter != nil {
		_ = e.Limiter.Wait(ctx)
	}

	ebo := backoff.NewExponentialBackOff()
	if e.retryInterval > 0 {
		ebo.InitialInterval = e.retryInterval
	}
	bo := backoff.WithMaxRetries(ebo, 3)
	err := backoff.Retry(func() error {
		_, err := e.Client.PostBatch(ctx, deviceID, batch)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Kind {
			case KindAuth:
				e.authDown.Store(true)
				return backoff.Permanent(err)
			case KindRateLimited:
				if apiErr.RetryAfter > 0 {
					time.Sleep(apiErr.RetryAfter)
				}
				return err
			case KindTokenExpired:
				// The server rejected a token the clock still believed
				// valid; rotate before retrying. A failed rotation means
				// the credentials are truly gone.
				if rerr := e.Client.ForceRotate(ctx); rerr != nil {
					e.authDown.Store(true)
					return backoff.Permanent(err)
				}
				return err
			case KindNetwork, KindServer:
				return err
			default:
				return backoff.Permanent(err)
			}
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		log.Warn("cloud: batch delivery failed, queuing offline", "count", len(batch), "error", err)
		e.enqueue(ctx, batch)
		return
	}

	e.exported.Add(int64(len(batch)))
}

func (e *Exporter) enqueue(ctx context.Context, batch []json.RawMessage) {
	if e.Queue == nil {
		e.logger().Error("cloud: offline queue unavailable, events lost", "count", len(batch))
		return
	}
	if err := e.Queue.Enqueue(ctx, batch); err != nil {
		e.logger().Error("cloud: enqueue offline failed, events lost", "count", len(batch), "error", err)
	}
}

// drainOffline opportunistically drains the offline queue in batches once
// the connector appears healthy again.
func (e *Exporter) drainOffline(ctx context.Context) {
	if e.Queue == nil || e.authDown.Load() {
		return
	}
	deviceID := e.currentDeviceID()
	if deviceID == "" {
		return
	}

	size := e.BatchSize
	if size <= 0 {
		size = 100
	}

	for {
		batch, err := e.Queue.Dequeue(ctx, size)
		if err != nil {
			e.logger().Error("cloud: drain dequeue failed", "error", err)
			return
		}
		if len(batch) == 0 {
			return
		}

		raws := make([]json.RawMessage, len(batch))
		for i, qe := range batch {
			raws[i] = qe.EventJSON
		}

		if e.Limiter != nil {
			_ = e.Limiter.Wait(ctx)
		}
		if _, err := e.Client.PostBatch(ctx, deviceID, raws); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Kind == KindAuth {
				e.authDown.Store(true)
			}
			// Delivery failed: put the batch back for the next attempt.
			e.enqueue(ctx, raws)
			return
		}
		e.exported.Add(int64(len(raws)))
		if len(batch) < size {
			return
		}
	}
}

func (e *Exporter) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}
