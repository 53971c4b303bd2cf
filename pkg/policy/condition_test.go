package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The wire form flattens envelope and payload fields into one object, while
// policies are written against the documented "envelope.x"/"data.x"
// notation; both spellings must resolve.
func TestConditionResolvesNotationAgainstFlatWireForm(t *testing.T) {
	flat := []byte(`{"event_type":"ai.request","app":{"tier":"unknown"},"messages":[{"content":"leak sk"},{"content":"ok"}],"usage":{"total_tokens":900}}`)

	assert.True(t, Evaluate(Condition{Field: "envelope.app.tier", Op: OpEq, Value: "unknown"}, flat))
	assert.True(t, Evaluate(Condition{Field: "app.tier", Op: OpEq, Value: "unknown"}, flat))
	assert.True(t, Evaluate(Condition{Field: "data.messages.*.content", Op: OpContains, Value: "leak"}, flat))
	assert.True(t, Evaluate(Condition{Field: "data.usage.total_tokens", Op: OpGt, Value: 500}, flat))
	assert.False(t, Evaluate(Condition{Field: "envelope.app.vendor", Op: OpEq, Value: "x"}, flat))
}

func TestConditionNumericOps(t *testing.T) {
	doc := []byte(`{"usage":{"total_tokens":1000}}`)

	cases := []struct {
		op   Op
		val  any
		want bool
	}{
		{OpGt, 999, true},
		{OpGt, 1000, false},
		{OpGe, 1000, true},
		{OpLt, 1001, true},
		{OpLe, 999, false},
		{OpEq, float64(1000), true},
		{OpNe, float64(1000), false},
	}
	for _, c := range cases {
		got := Evaluate(Condition{Field: "usage.total_tokens", Op: c.op, Value: c.val}, doc)
		assert.Equal(t, c.want, got, "%s %v", c.op, c.val)
	}
}

func TestConditionNumericCoercionFromString(t *testing.T) {
	doc := []byte(`{"count":"42"}`)
	assert.True(t, Evaluate(Condition{Field: "count", Op: OpGt, Value: 40}, doc),
		"both sides coerce to number when comparable")
	assert.False(t, Evaluate(Condition{Field: "count", Op: OpGt, Value: "not-a-number"}, doc))
}

func TestConditionStringOps(t *testing.T) {
	doc := []byte(`{"model":{"id":"gpt-4-turbo"}}`)

	assert.True(t, Evaluate(Condition{Field: "model.id", Op: OpStartsWith, Value: "gpt-4"}, doc))
	assert.True(t, Evaluate(Condition{Field: "model.id", Op: OpContains, Value: "turbo"}, doc))
	assert.True(t, Evaluate(Condition{Field: "model.id", Op: OpMatchesRegex, Value: `^gpt-\d`}, doc))
	assert.False(t, Evaluate(Condition{Field: "model.id", Op: OpMatchesRegex, Value: `^claude`}, doc))
}

func TestConditionBadRegexIsNonMatch(t *testing.T) {
	doc := []byte(`{"model":{"id":"gpt-4"}}`)
	assert.False(t, Evaluate(Condition{Field: "model.id", Op: OpMatchesRegex, Value: "(unclosed"}, doc))
}

func TestConditionInNotIn(t *testing.T) {
	doc := []byte(`{"provider":{"name":"openai"}}`)

	in := Condition{Field: "provider.name", Op: OpIn, Value: []any{"openai", "anthropic"}}
	assert.True(t, Evaluate(in, doc))

	notIn := Condition{Field: "provider.name", Op: OpNotIn, Value: []any{"ollama", "vllm"}}
	assert.True(t, Evaluate(notIn, doc))

	notIn.Value = []any{"openai"}
	assert.False(t, Evaluate(notIn, doc))
}

func TestConditionMissingFieldIsNonMatch(t *testing.T) {
	doc := []byte(`{"present":"yes"}`)
	assert.False(t, Evaluate(Condition{Field: "absent", Op: OpEq, Value: "yes"}, doc))
	assert.False(t, Evaluate(Condition{Field: "absent.*.deep", Op: OpEq, Value: "yes"}, doc))
}

func TestConditionWildcardOnNonArrayIsNonMatch(t *testing.T) {
	doc := []byte(`{"messages":"not-an-array"}`)
	assert.False(t, Evaluate(Condition{Field: "messages.*.content", Op: OpEq, Value: "x"}, doc))
}

func TestRedactFieldPathsAddsFlatVariants(t *testing.T) {
	got := redactFieldPaths([]string{"data.messages.*.content", "summary"})
	assert.Equal(t, []string{"data.messages.*.content", "messages.*.content", "summary"}, got)
}
