package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ydns/accounts/client"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	s, err := Open(path)
	require.NoError(t, err)

	got, err := s.GetCredential("https://ydns.io")
	require.NoError(t, err)
	assert.Nil(t, got)

	cred := &client.Credential{
		Token:     "jwt",
		AccountID: "acc-1",
		Alias:     "AbCdEfGh12345678",
		Email:     "alice@example.com",
		ExpiresAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SetCredential("https://YDNS.io/accounts/login", cred))
	require.NoError(t, s.SetCredential("http://localhost:8080", &client.Credential{Token: "dev"}))
	require.NoError(t, s.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := Open(path)
	require.NoError(t, err)
	got, err = reopened.GetCredential("ydns.io")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cred.Token, got.Token)
	assert.True(t, cred.ExpiresAt.Equal(got.ExpiresAt))

	servers, err := reopened.ListServers()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:8080", "https://ydns.io"}, servers)

	require.NoError(t, reopened.RemoveCredential("https://ydns.io"))
	require.NoError(t, reopened.Save())
	again, err := Open(path)
	require.NoError(t, err)
	servers, _ = again.ListServers()
	assert.Equal(t, []string{"http://localhost:8080"}, servers)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestSaveWithoutChangesWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RemoveCredential("https://ydns.io"))
	require.NoError(t, s.Save())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o600))
	_, err := Open(garbage)
	assert.Error(t, err)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version": 99, "servers": {}}`), 0o600))
	_, err = Open(future)
	assert.ErrorContains(t, err, "unsupported version")
}

func TestInvalidServerURL(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "c.json"))
	require.NoError(t, err)
	assert.Error(t, s.SetCredential("https://", &client.Credential{}))
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "credentials.json", filepath.Base(path))
	assert.Equal(t, "ydns", filepath.Base(filepath.Dir(path)))
}
