package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/oisp-sensor/core/pkg/redaction"
)

// Disposition is what the pipeline's Action stage should do with an event
// after a policy action ran.
type Disposition string

const (
	DispositionPass    Disposition = "pass"
	DispositionDrop    Disposition = "drop"
	DispositionReplace Disposition = "replace"
)

// ExecResult is the outcome of executing one Action against one event.
type ExecResult struct {
	Disposition Disposition
	EventJSON   []byte // set when Disposition == DispositionReplace
	AuditRecord map[string]any
}

// Executor applies matched Actions to events: redaction via the shared
// redaction engine, alert webhook dispatch with bounded retry and rate
// limiting, and structured audit logging for Block/Log.
type Executor struct {
	redactor *redaction.Engine
	log      *slog.Logger
	client   *http.Client
	limiter  *rate.Limiter
}

// NewExecutor constructs an Executor. limiter bounds the rate of outbound
// alert webhook calls so a noisy policy can't flood a downstream receiver.
func NewExecutor(redactor *redaction.Engine, log *slog.Logger, limiter *rate.Limiter) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(10), 10)
	}
	return &Executor{
		redactor: redactor,
		log:      log,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  limiter,
	}
}

// Execute applies action to the event (serialized as eventJSON) identified
// by policyID/eventType, used for both audit logging and the block record.
func (ex *Executor) Execute(ctx context.Context, policyID string, action Action, eventJSON []byte) ExecResult {
	switch action.Kind {
	case ActionBlock:
		ex.log.Info("policy.block", "policy_id", policyID, "reason", action.Reason)
		return ExecResult{
			Disposition: DispositionDrop,
			AuditRecord: map[string]any{
				"type":      "policy.block",
				"policy_id": policyID,
				"reason":    action.Reason,
			},
		}

	case ActionRedact:
		updated, findings, err := redaction.ApplyScoped(eventJSON, redactFieldPaths(action.Fields), ex.redactor)
		if err != nil {
			ex.log.Warn("policy.redact failed, passing event through unmodified", "policy_id", policyID, "error", err)
			return ExecResult{Disposition: DispositionPass}
		}
		return ExecResult{
			Disposition: DispositionReplace,
			EventJSON:   updated,
			AuditRecord: map[string]any{"type": "policy.redact", "policy_id": policyID, "findings": findings},
		}

	case ActionAlert:
		ex.dispatchAlert(ctx, policyID, action, eventJSON)
		return ExecResult{Disposition: DispositionPass}

	case ActionLog:
		ex.log.Info("policy.log", "policy_id", policyID)
		return ExecResult{Disposition: DispositionPass}

	default: // ActionAllow and anything unrecognized passes through
		return ExecResult{Disposition: DispositionPass}
	}
}

// redactFieldPaths maps a Redact action's documented "envelope.x"/"data.x"
// field notation onto the flattened wire form the same way condition
// evaluation does: each path is kept as written, plus a prefix-stripped
// variant — ApplyScoped skips whichever one doesn't resolve.
func redactFieldPaths(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f)
		if flat, ok := stripNotationPrefix(f); ok {
			out = append(out, flat)
		}
	}
	return out
}

// alertPayload is what gets posted to an Alert action's webhook.
type alertPayload struct {
	Severity  Severity        `json:"severity"`
	Message   string          `json:"message"`
	PolicyID  string          `json:"policy_id"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// dispatchAlert fires the webhook fire-and-forget with a bounded retry;
// delivery failure never affects the event's pipeline disposition.
func (ex *Executor) dispatchAlert(ctx context.Context, policyID string, action Action, eventJSON []byte) {
	if action.WebhookURL == "" {
		ex.log.Warn("policy.alert", "severity", action.Severity, "message", action.Message, "policy_id", policyID)
		return
	}

	payload := alertPayload{Severity: action.Severity, Message: action.Message, PolicyID: policyID}
	if action.IncludeEvent {
		payload.Event = eventJSON
	}
	body, err := json.Marshal(payload)
	if err != nil {
		ex.log.Error("policy.alert: marshal failed", "error", err)
		return
	}

	go func() {
		if err := ex.limiter.Wait(ctx); err != nil {
			return
		}
		bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
		err := backoff.Retry(func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.WebhookURL, bytes.NewReader(body))
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := ex.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
			}
			return nil
		}, bo)
		if err != nil {
			ex.log.Warn("policy.alert: webhook delivery failed", "policy_id", policyID, "error", err)
		}
	}()
}
