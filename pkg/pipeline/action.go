package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/oisp-sensor/core/pkg/event"
	"github.com/oisp-sensor/core/pkg/policy"
	"github.com/oisp-sensor/core/pkg/redaction"
)

// Action receives an owned event and decides whether it survives: pass it
// through, drop it, or replace it with a modified value. Replace is
// expressed here as an in-place mutation of *ev rather than a wrapper type,
// since Go lets a pointer receiver do that directly.
type Action interface {
	Apply(ctx context.Context, ev *event.Event) (keep bool)
	Name() string
}

// RedactionAction applies the configured redaction mode to any inline
// message content an upstream stage left in place (only present at all when
// redaction.mode = Full). It never drops an event.
type RedactionAction struct {
	Engine *redaction.Engine
}

func (a *RedactionAction) Name() string { return "redaction" }

func (a *RedactionAction) Apply(ctx context.Context, ev *event.Event) bool {
	switch d := ev.Data.(type) {
	case *event.AIRequestData:
		for i := range d.Messages {
			redactMessageContent(a.Engine, &d.Messages[i])
		}
	case *event.AIResponseData:
		for i := range d.Messages {
			redactMessageContent(a.Engine, &d.Messages[i])
		}
	case *event.AIStreamingChunkData:
		if d.Delta != nil {
			res := a.Engine.Redact(*d.Delta)
			d.Delta = &res.Content
		}
	}
	return true
}

func redactMessageContent(e *redaction.Engine, m *event.Message) {
	if m.Content == nil {
		return
	}
	res := e.Redact(*m.Content)
	m.Content = &res.Content
}

// PolicyAction evaluates the hot-reloadable policy set against the event
// and executes whichever action matched (or the document's default_action
// when nothing did).
type PolicyAction struct {
	Evaluator *policy.Evaluator
	Executor  *policy.Executor
	Log       *slog.Logger
}

func (a *PolicyAction) Name() string { return "policy" }

func (a *PolicyAction) Apply(ctx context.Context, ev *event.Event) bool {
	raw, err := json.Marshal(*ev)
	if err != nil {
		if a.Log != nil {
			a.Log.Error("policy: failed to marshal event for evaluation", "error", err)
		}
		return true
	}

	match := a.Evaluator.Evaluate(ev.EventType, raw)

	var act policy.Action
	var policyID string
	if match.Policy != nil {
		act = match.Policy.Action
		policyID = match.Policy.ID
	} else {
		act = policy.Action{Kind: policy.ActionKind(a.Evaluator.DefaultAction())}
		policyID = "default"
	}

	res := a.Executor.Execute(ctx, policyID, act, raw)
	switch res.Disposition {
	case policy.DispositionDrop:
		return false
	case policy.DispositionReplace:
		var replaced event.Event
		if err := json.Unmarshal(res.EventJSON, &replaced); err != nil {
			if a.Log != nil {
				a.Log.Error("policy: failed to unmarshal redacted event, keeping original", "error", err)
			}
			return true
		}
		*ev = replaced
		return true
	default:
		return true
	}
}
