// Package pipeline drives the Capture→Decode→Enrich→Action→Export stage
// graph over bounded channels: the kernel that ties every other component
// together into a running sensor.
package pipeline

import (
	"context"

	"github.com/oisp-sensor/core/pkg/event"
)

// Capturer produces RawCaptureEvents onto out until ctx is cancelled. It
// owns its own lifetime (e.g. a listening socket) and must return promptly
// when ctx is done.
type Capturer interface {
	Run(ctx context.Context, out chan<- event.RawCaptureEvent) error
	Name() string
}

// Enricher sets optional fields on an event in place. It must never fail
// fatally: errors are logged and the event passes through unchanged.
type Enricher interface {
	Enrich(ctx context.Context, ev *event.Event)
	Name() string
}

// Exporter receives a copy of every event that survives the Action chain.
// Export must not block indefinitely; a slow exporter only affects its own
// channel's backpressure, never the pipeline at large.
type Exporter interface {
	Export(ctx context.Context, ev event.Event) error
	Flush(ctx context.Context) error
	Name() string
}
