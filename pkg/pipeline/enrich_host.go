package pipeline

import (
	"context"
	"os"
	"sync"

	"github.com/oisp-sensor/core/pkg/event"
)

// HostEnricher sets the envelope's Source.Host field from the local
// hostname, resolved once and cached for the process lifetime.
type HostEnricher struct {
	once     sync.Once
	hostname string
}

func (h *HostEnricher) Name() string { return "host" }

func (h *HostEnricher) Enrich(ctx context.Context, ev *event.Event) {
	h.once.Do(func() {
		name, err := os.Hostname()
		if err != nil {
			name = "unknown"
		}
		h.hostname = name
	})
	ev.Source.Host = &h.hostname
}
