package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/oisp-sensor/core/pkg/event"
)

// KnownApp is a statically-profiled application identity, keyed by
// executable basename or bundle id.
type KnownApp struct {
	Match    string // exe basename or bundle id to match against
	AppID    string
	Name     string
	Vendor   string
	Category string
	IsAIApp  bool
	IsAIHost bool
}

// AppEnricher resolves process/bundle identity into the AppIdentity
// enrichment slot: Profiled for an exact known-app match, Identified for a
// partial heuristic match (process name suggests a known pattern), else
// Unknown.
type AppEnricher struct {
	Known []KnownApp
}

func (a *AppEnricher) Name() string { return "app" }

// DefaultKnownApps seeds a handful of common AI-adjacent desktop/CLI apps.
func DefaultKnownApps() []KnownApp {
	t := true
	return []KnownApp{
		{Match: "Claude", AppID: "com.anthropic.claude", Name: "Claude Desktop", Vendor: "Anthropic", Category: "ai-client", IsAIApp: t, IsAIHost: false},
		{Match: "ChatGPT", AppID: "com.openai.chat", Name: "ChatGPT Desktop", Vendor: "OpenAI", Category: "ai-client", IsAIApp: t, IsAIHost: false},
		{Match: "cursor", AppID: "com.cursor.ide", Name: "Cursor", Vendor: "Anysphere", Category: "ide", IsAIApp: t, IsAIHost: true},
		{Match: "code", AppID: "com.microsoft.vscode", Name: "Visual Studio Code", Vendor: "Microsoft", Category: "ide", IsAIApp: false, IsAIHost: true},
	}
}

func (a *AppEnricher) Enrich(ctx context.Context, ev *event.Event) {
	if ev.App != nil {
		return // an earlier, more specific enricher already identified it
	}
	if ev.Process == nil || ev.Process.Exe == nil {
		ev.App = &event.AppIdentity{Tier: event.AppTierUnknown}
		return
	}

	base := strings.ToLower(filepath.Base(*ev.Process.Exe))
	for _, known := range a.Known {
		m := strings.ToLower(known.Match)
		if base == m {
			ev.App = &event.AppIdentity{
				Tier:     event.AppTierProfiled,
				AppID:    strPtr(known.AppID),
				Name:     strPtr(known.Name),
				Vendor:   strPtr(known.Vendor),
				Category: strPtr(known.Category),
				IsAIApp:  boolPtr(known.IsAIApp),
				IsAIHost: boolPtr(known.IsAIHost),
			}
			return
		}
		if strings.Contains(base, m) {
			ev.App = &event.AppIdentity{
				Tier:   event.AppTierIdentified,
				Name:   strPtr(known.Name),
				Vendor: strPtr(known.Vendor),
			}
			return
		}
	}
	ev.App = &event.AppIdentity{Tier: event.AppTierUnknown}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
