package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-tube-download/internal/models"

	log "github.com/sirupsen/logrus"
)

// ErrNoCredentials is returned when no credentials have been saved yet.
var ErrNoCredentials = errors.New("no saved credentials")

const (
	credentialsFile = "credentials.json"
	cookiesFile     = "cookies.txt"
)

// Manager persists credentials and locates the cookie jar under the app data
// directory.
type Manager struct {
	dataDir string
}

// NewManager returns a Manager rooted at dataDir. An empty dataDir resolves
// to ~/.tube-downloader.
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".tube-downloader")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	return &Manager{dataDir: dataDir}, nil
}

// DataDir returns the app data directory.
func (m *Manager) DataDir() string {
	return m.dataDir
}

// CookiesPath returns where the yt-dlp cookie jar lives. The file may not
// exist yet.
func (m *Manager) CookiesPath() string {
	return filepath.Join(m.dataDir, cookiesFile)
}

// HasCookies reports whether a cookie jar is present.
func (m *Manager) HasCookies() bool {
	_, err := os.Stat(m.CookiesPath())
	return err == nil
}

// Save writes credentials to disk with owner-only permissions.
func (m *Manager) Save(creds models.Credentials) error {
	creds.SavedAt = time.Now().Unix()
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling credentials: %w", err)
	}
	path := filepath.Join(m.dataDir, credentialsFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	log.Debug("Credentials saved")
	return nil
}

// Load reads the saved credentials. Returns ErrNoCredentials if none exist.
func (m *Manager) Load() (models.Credentials, error) {
	path := filepath.Join(m.dataDir, credentialsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Credentials{}, ErrNoCredentials
		}
		return models.Credentials{}, fmt.Errorf("reading credentials file: %w", err)
	}
	var creds models.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return models.Credentials{}, fmt.Errorf("parsing credentials file: %w", err)
	}
	return creds, nil
}

// Clear removes saved credentials and the cookie jar. Clearing when none
// exist is not an error.
func (m *Manager) Clear() error {
	for _, path := range []string{
		filepath.Join(m.dataDir, credentialsFile),
		m.CookiesPath(),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	log.Debug("Credentials cleared")
	return nil
}
