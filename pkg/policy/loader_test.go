package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPolicyDocument(t *testing.T) {
	path := writePolicyFile(t, `
version: "3"
settings:
  default_action: log
policies:
  - id: block-unknown
    name: Block unidentified apps
    priority: 100
    event_types: [ai.request]
    conditions:
      all:
        - field: envelope.app.tier
          op: eq
          value: unknown
    action:
      kind: block
      reason: unidentified app
  - id: audit-all
    name: Audit everything
    enabled: false
    conditions:
      field: event_type
      op: starts_with
      value: ai.
    action:
      kind: log
`)

	doc, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "3", doc.Version)
	assert.Equal(t, "log", doc.Settings.DefaultAction)
	require.Len(t, doc.Policies, 2)

	first := doc.Policies[0]
	assert.True(t, first.Enabled, "enabled defaults to true when omitted")
	assert.Equal(t, 100, first.Priority)
	assert.Equal(t, ActionBlock, first.Action.Kind)
	require.Len(t, first.Conditions.All, 1)
	assert.Equal(t, OpEq, first.Conditions.All[0].Op)

	assert.False(t, doc.Policies[1].Enabled, "explicit enabled: false survives the default")
}

func TestLoadAppliesDocumentDefaults(t *testing.T) {
	path := writePolicyFile(t, "policies: []\n")
	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Version)
	assert.Equal(t, string(ActionAllow), doc.Settings.DefaultAction)
}

func TestLoadRejectsPolicyWithoutID(t *testing.T) {
	path := writePolicyFile(t, `
policies:
  - name: nameless
    conditions:
      field: x
      op: eq
      value: y
    action:
      kind: allow
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing id")
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
