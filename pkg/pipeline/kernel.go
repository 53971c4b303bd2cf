package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oisp-sensor/core/pkg/decoder"
	"github.com/oisp-sensor/core/pkg/event"
)

// Config sizes the bounded channels between stages and bounds how long
// Shutdown waits for in-flight work to drain.
type Config struct {
	CaptureBuffer int
	DecodeBuffer  int
	EnrichBuffer  int
	ActionBuffer  int
	ExportBuffer  int
	ShutdownGrace time.Duration
}

// Kernel runs the Capture -> Decode -> Enrich -> Action -> Export stage
// graph, each stage its own goroutine reading from a bounded channel and
// writing to the next, draining to completion on shutdown rather than
// discarding whatever is mid-flight.
type Kernel struct {
	cfg      Config
	capturer Capturer
	decoder  *decoder.Decoder
	enrichers []Enricher
	actions   []Action
	exporters []Exporter
	log      *slog.Logger

	counters StageCounters

	rawCh    chan event.RawCaptureEvent
	decodedCh chan event.Event
	enrichedCh chan event.Event
	keptCh   chan event.Event
	exportChs []chan event.Event // one per exporter, so a slow sink only loses its own tail

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	captureErr chan error
}

// New constructs a Kernel. Any zero-valued buffer size in cfg falls back to
// a small built-in default so a misconfigured deployment degrades rather
// than blocking forever on an unbuffered channel.
func New(cfg Config, capturer Capturer, dec *decoder.Decoder, enrichers []Enricher, actions []Action, exporters []Exporter, log *slog.Logger) *Kernel {
	if log == nil {
		log = slog.Default()
	}
	exportChs := make([]chan event.Event, len(exporters))
	for i := range exportChs {
		exportChs[i] = make(chan event.Event, bufOr(cfg.ExportBuffer, 1024))
	}
	return &Kernel{
		cfg:        cfg,
		capturer:   capturer,
		decoder:    dec,
		enrichers:  enrichers,
		actions:    actions,
		exporters:  exporters,
		log:        log,
		rawCh:      make(chan event.RawCaptureEvent, bufOr(cfg.CaptureBuffer, 1024)),
		decodedCh:  make(chan event.Event, bufOr(cfg.DecodeBuffer, 1024)),
		enrichedCh: make(chan event.Event, bufOr(cfg.EnrichBuffer, 512)),
		keptCh:     make(chan event.Event, bufOr(cfg.ActionBuffer, 512)),
		exportChs:  exportChs,
		captureErr: make(chan error, 1),
	}
}

func bufOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

// Counters exposes a live snapshot of per-stage throughput.
func (k *Kernel) Counters() Snapshot { return k.counters.Snapshot() }

// Err returns the channel the capturer's terminal error (if any) is
// delivered on, so a driving process can distinguish "capturer exited early"
// from a normal shutdown signal instead of idling forever on a dead pipeline.
func (k *Kernel) Err() <-chan error { return k.captureErr }

// Start spawns every stage's goroutine and returns immediately. Capture
// failures surface asynchronously through Wait or Shutdown's return value.
func (k *Kernel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	k.cancel = cancel

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer close(k.rawCh)
		if err := k.capturer.Run(ctx, k.rawCh); err != nil {
			k.log.Error("pipeline: capturer exited with error", "capturer", k.capturer.Name(), "error", err)
			select {
			case k.captureErr <- err:
			default:
			}
		}
	}()

	k.wg.Add(1)
	go k.runDecode()

	k.wg.Add(1)
	go k.runEnrich()

	k.wg.Add(1)
	go k.runAction()

	k.wg.Add(1)
	go k.runFanout()

	for i := range k.exporters {
		k.wg.Add(1)
		go k.runExporter(i)
	}
}

func (k *Kernel) runDecode() {
	defer k.wg.Done()
	defer close(k.decodedCh)
	for raw := range k.rawCh {
		k.counters.Captured.Add(1)
		k.counters.Bytes.Add(int64(len(raw.Data)))

		ev, err := k.decoder.Decode(raw)
		if err != nil {
			k.counters.Errors.Add(1)
			k.log.Debug("pipeline: decode failed", "error", err)
			continue
		}
		if ev == nil {
			k.counters.Dropped.Add(1)
			continue
		}
		k.counters.Decoded.Add(1)
		select {
		case k.decodedCh <- *ev:
		default:
			// Downstream is full; drop here rather than backing up into
			// the capture channel. At-most-once per in-memory hop.
			k.counters.Dropped.Add(1)
		}
	}
}

func (k *Kernel) runEnrich() {
	defer k.wg.Done()
	defer close(k.enrichedCh)
	for ev := range k.decodedCh {
		for _, e := range k.enrichers {
			e.Enrich(context.Background(), &ev)
		}
		select {
		case k.enrichedCh <- ev:
		default:
			k.counters.Dropped.Add(1)
		}
	}
}

func (k *Kernel) runAction() {
	defer k.wg.Done()
	defer close(k.keptCh)
	for ev := range k.enrichedCh {
		keep := true
		for _, a := range k.actions {
			if !a.Apply(context.Background(), &ev) {
				keep = false
				break
			}
		}
		if !keep {
			k.counters.Dropped.Add(1)
			continue
		}
		select {
		case k.keptCh <- ev:
		default:
			k.counters.Dropped.Add(1)
		}
	}
}

// runFanout copies each surviving event into every exporter's own channel.
// A full exporter channel loses that event for that exporter only — slow
// sinks drop tail, they never back-pressure the pipeline.
func (k *Kernel) runFanout() {
	defer k.wg.Done()
	defer func() {
		for _, ch := range k.exportChs {
			close(ch)
		}
	}()
	for ev := range k.keptCh {
		for i, ch := range k.exportChs {
			select {
			case ch <- ev:
			default:
				k.counters.Dropped.Add(1)
				k.log.Debug("pipeline: exporter channel full, dropping event", "exporter", k.exporters[i].Name())
			}
		}
	}
}

// runExporter is one exporter's dedicated task: a stuck sink blocks only
// itself, never decode or its sibling exporters.
func (k *Kernel) runExporter(i int) {
	defer k.wg.Done()
	exp := k.exporters[i]
	for ev := range k.exportChs[i] {
		if err := exp.Export(context.Background(), ev); err != nil {
			k.counters.Errors.Add(1)
			k.log.Warn("pipeline: export failed", "exporter", exp.Name(), "error", err)
			continue
		}
		k.counters.Exported.Add(1)
	}
}

// Shutdown stops the capturer, lets every downstream stage drain whatever
// is already in the channels, flushes every exporter, and returns once all
// of that has happened or the grace deadline elapses first.
func (k *Kernel) Shutdown(ctx context.Context) error {
	if k.cancel == nil {
		return nil
	}

	grace := k.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	deadline, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	k.stopOnce.Do(k.cancel)

	drained := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(drained)
	}()

	var runErr error
	select {
	case <-drained:
	case <-deadline.Done():
		k.log.Warn("pipeline: shutdown grace period elapsed with stages still draining")
		runErr = deadline.Err()
	}

	select {
	case err := <-k.captureErr:
		runErr = err
	default:
	}

	for _, exp := range k.exporters {
		if err := exp.Flush(ctx); err != nil {
			k.log.Error("pipeline: exporter flush failed", "exporter", exp.Name(), "error", err)
		}
	}

	return runErr
}
