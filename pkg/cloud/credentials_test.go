package cloud

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCredentialStoreSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileCredentialStore(filepath.Join(dir, "nested", "credentials.json"))

	assert.False(t, store.Exists())

	want := Credentials{
		DeviceID:       "dev-1",
		DeviceToken:    "token-abc",
		TokenExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		OrgID:          "org-1",
		APIEndpoint:    "https://api.example.com",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(want))
	assert.True(t, store.Exists())

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.DeviceID, got.DeviceID)
	assert.Equal(t, want.DeviceToken, got.DeviceToken)
	assert.True(t, want.TokenExpiresAt.Equal(got.TokenExpiresAt))
}

func TestFileCredentialStorePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	store := NewFileCredentialStore(path)
	require.NoError(t, store.Save(Credentials{DeviceID: "dev-1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileCredentialStoreLoadMissingReturnsNilNotError(t *testing.T) {
	store := NewFileCredentialStore(filepath.Join(t.TempDir(), "missing.json"))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileCredentialStoreDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := NewFileCredentialStore(filepath.Join(dir, "credentials.json"))
	require.NoError(t, store.Save(Credentials{DeviceID: "dev-1"}))
	require.NoError(t, store.Delete())
	assert.False(t, store.Exists())
	require.NoError(t, store.Delete())
}

func TestCredentialsExpired(t *testing.T) {
	c := Credentials{TokenExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, c.Expired())

	c.TokenExpiresAt = time.Now().Add(time.Minute)
	assert.False(t, c.Expired())

	c.TokenExpiresAt = time.Time{}
	assert.False(t, c.Expired(), "zero expiry means never expires")
}

func TestCredentialsNeedsRotation(t *testing.T) {
	issued := time.Now().Add(-90 * time.Minute)
	c := Credentials{TokenExpiresAt: issued.Add(2 * time.Hour)}
	assert.True(t, c.NeedsRotation(issued), "past half of a 2h lifetime issued 90m ago")

	c.TokenExpiresAt = issued.Add(4 * time.Hour)
	assert.False(t, c.NeedsRotation(issued), "only 90m into a 4h lifetime")
}
