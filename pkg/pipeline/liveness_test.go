package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oisp-sensor/core/pkg/decoder"
	"github.com/oisp-sensor/core/pkg/event"
	"github.com/oisp-sensor/core/pkg/pipeline"
	"github.com/oisp-sensor/core/pkg/provider"
	"github.com/oisp-sensor/core/pkg/redaction"
)

// stuckExporter blocks every Export call until released, simulating a sink
// that has wedged entirely.
type stuckExporter struct {
	release chan struct{}
}

func (s *stuckExporter) Name() string { return "stuck" }

func (s *stuckExporter) Export(ctx context.Context, ev event.Event) error {
	<-s.release
	return nil
}

func (s *stuckExporter) Flush(ctx context.Context) error { return nil }

func newKernelWithExporter(t *testing.T, cfg pipeline.Config, capturer pipeline.Capturer, exps ...pipeline.Exporter) *pipeline.Kernel {
	t.Helper()
	evCtx, err := event.NewContext("test-collector")
	require.NoError(t, err)

	providers := provider.NewStore(provider.NewDefaultRegistry())
	redactor := redaction.NewEngine(redaction.Config{Mode: redaction.ModeSafe}, nil)
	dec := decoder.New(evCtx, providers, redactor, false)

	return pipeline.New(cfg, capturer, dec, nil, nil, exps, nil)
}

func TestStuckExporterDoesNotStallDecode(t *testing.T) {
	const n = 40

	events := make([]event.RawCaptureEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, event.RawCaptureEvent{ID: "x", Kind: event.KindSslWrite, PID: 1, Data: []byte(chatCompletionRequest)})
	}
	capturer := &fakeCapturer{events: events}
	stuck := &stuckExporter{release: make(chan struct{})}

	k := newKernelWithExporter(t, pipeline.Config{ShutdownGrace: 2 * time.Second}, capturer, stuck)

	k.Start(context.Background())

	// Decode keeps up with capture even though the export stage is wedged
	// on its first event: only the export channel's capacity is consumed.
	require.Eventually(t, func() bool {
		snap := k.Counters()
		return snap.Decoded == n
	}, 2*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 0, k.Counters().Exported)

	close(stuck.release)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, k.Shutdown(shutdownCtx))

	assert.EqualValues(t, n, k.Counters().Exported)
}

// With every channel sized 1 and the exporter wedged, the channels really do
// fill: decode must keep consuming capture and account the overflow as
// drops instead of stalling.
func TestFullChannelsDropInsteadOfStall(t *testing.T) {
	const n = 40

	events := make([]event.RawCaptureEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, event.RawCaptureEvent{ID: "x", Kind: event.KindSslWrite, PID: 1, Data: []byte(chatCompletionRequest)})
	}
	capturer := &fakeCapturer{events: events}
	stuck := &stuckExporter{release: make(chan struct{})}

	k := newKernelWithExporter(t, pipeline.Config{
		CaptureBuffer: 1,
		DecodeBuffer:  1,
		EnrichBuffer:  1,
		ActionBuffer:  1,
		ExportBuffer:  1,
		ShutdownGrace: 2 * time.Second,
	}, capturer, stuck)

	k.Start(context.Background())

	// Every captured event is consumed by decode; anything the saturated
	// downstream could not take shows up in the drop counter, not as a hang.
	require.Eventually(t, func() bool {
		snap := k.Counters()
		return snap.Captured == n
	}, 2*time.Second, 10*time.Millisecond)

	snap := k.Counters()
	assert.EqualValues(t, n, snap.Decoded)
	assert.Positive(t, snap.Dropped)

	close(stuck.release)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, k.Shutdown(shutdownCtx))
}

// A sink wedged on its very first event must not starve its sibling, which
// still sees every event.
func TestSlowExporterDoesNotStarveSiblings(t *testing.T) {
	const n = 20

	events := make([]event.RawCaptureEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, event.RawCaptureEvent{ID: "x", Kind: event.KindSslWrite, PID: 1, Data: []byte(chatCompletionRequest)})
	}
	capturer := &fakeCapturer{events: events}
	stuck := &stuckExporter{release: make(chan struct{})}
	healthy := &recordingExporter{}

	k := newKernelWithExporter(t, pipeline.Config{ShutdownGrace: 2 * time.Second}, capturer, stuck, healthy)

	k.Start(context.Background())

	require.Eventually(t, func() bool { return healthy.count() == n }, 2*time.Second, 10*time.Millisecond)

	close(stuck.release)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, k.Shutdown(shutdownCtx))
}
