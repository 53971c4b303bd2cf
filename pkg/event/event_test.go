package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := NewContext("test-collector")
	require.NoError(t, err)
	return ctx
}

func TestNewEventStampsEnvelope(t *testing.T) {
	ctx := testContext(t)
	ev := ctx.NewEvent(&AIRequestData{RequestID: "r1", Model: Model{ID: "gpt-4"}})

	assert.Equal(t, ctx.Bundle.SchemaVersion, ev.SchemaVersion)
	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, EventTypeAIRequest, ev.EventType)
	assert.True(t, ev.IsAIEvent())
}

func TestEventRoundTripsThroughJSON(t *testing.T) {
	ctx := testContext(t)
	content := "hello"
	ev := ctx.NewEvent(&AIRequestData{
		RequestID: "r1",
		Provider:  ProviderRef{Name: "openai"},
		Model:     Model{ID: "gpt-4"},
		Messages: []Message{
			{Role: RoleUser, Content: &content},
		},
		MessagesCount: 1,
	})

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, ev.SchemaVersion, decoded.SchemaVersion)
	data, ok := decoded.Data.(*AIRequestData)
	require.True(t, ok)
	assert.Equal(t, "r1", data.RequestID)
	assert.Equal(t, 1, data.MessagesCount)
}

func TestUnknownEventTypeRoundTripsAsOther(t *testing.T) {
	raw := []byte(`{"schema_version":"0.1","event_id":"x","event_type":"future.thing","timestamp":"2026-01-01T00:00:00Z","source":{"collector":"c"},"confidence":{"level":"high","completeness":"full"},"widget":"present"}`)

	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))

	other, ok := ev.Data.(*OtherData)
	require.True(t, ok)
	assert.Equal(t, "future.thing", other.EventType())

	reencoded, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(reencoded), `"widget":"present"`)
}

func TestEnvelopeFieldsSurviveEnrichment(t *testing.T) {
	ctx := testContext(t)
	ev := ctx.NewEvent(&ProcessExecData{PID: 42, Exe: "/bin/sh"})
	before := ev.Envelope

	// Enrichment only adds optional fields; everything present before must
	// remain equal after.
	pid := 7
	ev.Process = &ProcessInfo{PID: pid}

	assert.Equal(t, before.EventID, ev.EventID)
	assert.Equal(t, before.SchemaVersion, ev.SchemaVersion)
	assert.Equal(t, before.EventType, ev.EventType)
	assert.Equal(t, before.Timestamp, ev.Timestamp)
}
