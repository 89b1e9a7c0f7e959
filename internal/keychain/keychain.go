// Package keychain stores database secrets in the OS credential store so the
// CLI does not need them in config files or shell history.
package keychain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "rtdb"

// envFilePassword unlocks the encrypted file backend on hosts without a
// native credential store.
const envFilePassword = "RTDB_KEYRING_PASSWORD"

// ErrNotFound is returned when no secret is stored for a database.
var ErrNotFound = errors.New("keychain: no secret stored for database")

// Manager provides thread-safe secret storage keyed by database URL.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// Open opens the platform keyring, falling back to an encrypted file under
// the user config directory.
func Open() (*Manager, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: ServiceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.SecretServiceBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		PassPrefix:       ServiceName,
		WinCredPrefix:    ServiceName,
		FileDir:          filepath.Join(dir, ServiceName, "keyring"),
		FilePasswordFunc: filePassword,
	})
	if err != nil {
		return nil, fmt.Errorf("keychain: open: %w", err)
	}
	return New(ring), nil
}

func filePassword(prompt string) (string, error) {
	if pw := os.Getenv(envFilePassword); pw != "" {
		return pw, nil
	}
	return keyring.TerminalPrompt(prompt)
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// key normalizes the database URL so trailing slashes do not split entries.
func key(dbURL string) string {
	return "secret:" + strings.TrimRight(strings.TrimSpace(dbURL), "/")
}

// SaveSecret stores secret for dbURL, replacing any previous value.
func (m *Manager) SaveSecret(dbURL, secret string) error {
	if strings.TrimSpace(dbURL) == "" {
		return errors.New("keychain: database URL is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Set(keyring.Item{
		Key:   key(dbURL),
		Data:  []byte(secret),
		Label: "rtdb secret for " + dbURL,
	})
}

// LoadSecret returns the secret stored for dbURL or ErrNotFound.
func (m *Manager) LoadSecret(dbURL string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, err := m.ring.Get(key(dbURL))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// DeleteSecret removes the secret for dbURL. Deleting a missing entry is not
// an error.
func (m *Manager) DeleteSecret(dbURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.ring.Remove(key(dbURL))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}
