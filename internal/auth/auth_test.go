package auth

import (
	"os"
	"path/filepath"
	"testing"

	"go-tube-download/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadClear(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	_, err = m.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)

	creds := models.Credentials{
		AccessToken:  "tok",
		RefreshToken: "ref",
		Cookies:      "SID=abc",
	}
	require.NoError(t, m.Save(creds))

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.AccessToken)
	assert.Equal(t, "ref", loaded.RefreshToken)
	assert.Equal(t, "SID=abc", loaded.Cookies)
	assert.NotZero(t, loaded.SavedAt)

	require.NoError(t, m.Clear())
	_, err = m.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)

	// Clearing twice is fine
	require.NoError(t, m.Clear())
}

func TestCredentialsFilePermissions(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	require.NoError(t, m.Save(models.Credentials{AccessToken: "secret"}))

	info, err := os.Stat(filepath.Join(m.DataDir(), "credentials.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestCookiesPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	m, err := NewManager(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "cookies.txt"), m.CookiesPath())
	assert.False(t, m.HasCookies())

	require.NoError(t, os.WriteFile(m.CookiesPath(), []byte("# Netscape HTTP Cookie File\n"), 0600))
	assert.True(t, m.HasCookies())

	require.NoError(t, m.Clear())
	assert.False(t, m.HasCookies(), "Clear should remove the cookie jar")
}
