package policy

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// snapshot is the immutable, pre-sorted state a single Evaluate call reads,
// so in-flight evaluations never observe a mixed policy set across a reload.
type snapshot struct {
	version  string
	policies []Policy // sorted descending by priority, ties broken by id ascending
	settings Settings
}

// Evaluator matches events against a hot-reloadable policy set.
type Evaluator struct {
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex // serializes Replace calls; reads never block on it
}

// NewEvaluator constructs an Evaluator seeded with doc.
func NewEvaluator(doc Document) *Evaluator {
	e := &Evaluator{}
	e.Replace(doc)
	return e
}

// Replace atomically swaps in a new policy document. Readers mid-Evaluate
// continue to see the snapshot they started with.
func (e *Evaluator) Replace(doc Document) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	sorted := append([]Policy(nil), doc.Policies...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	e.current.Store(&snapshot{version: doc.Version, policies: sorted, settings: doc.Settings})
}

// Version returns the currently loaded document's version string.
func (e *Evaluator) Version() string {
	s := e.current.Load()
	if s == nil {
		return ""
	}
	return s.version
}

// Match is the result of evaluating a policy set against one event.
type Match struct {
	Policy  *Policy // nil when no policy matched (default_action applies)
	Elapsed int64   // microseconds
}

// Evaluate returns the first matching policy for eventType/eventJSON in
// priority order, or a nil Policy if none match (caller applies
// default_action).
func (e *Evaluator) Evaluate(eventType string, eventJSON []byte) Match {
	start := time.Now()
	snap := e.current.Load()
	if snap == nil {
		return Match{Elapsed: time.Since(start).Microseconds()}
	}

	for i := range snap.policies {
		p := &snap.policies[i]
		if !p.Enabled || !p.MatchesEventType(eventType) {
			continue
		}
		if Evaluate(p.Conditions, eventJSON) {
			return Match{Policy: p, Elapsed: time.Since(start).Microseconds()}
		}
	}
	return Match{Elapsed: time.Since(start).Microseconds()}
}

// EvaluateEvent is a convenience wrapper that marshals v to JSON first.
func (e *Evaluator) EvaluateEvent(eventType string, v any) (Match, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Match{}, err
	}
	return e.Evaluate(eventType, raw), nil
}

// DefaultAction returns the document's configured fallback action kind.
func (e *Evaluator) DefaultAction() string {
	snap := e.current.Load()
	if snap == nil {
		return string(ActionAllow)
	}
	if snap.settings.DefaultAction == "" {
		return string(ActionAllow)
	}
	return snap.settings.DefaultAction
}
