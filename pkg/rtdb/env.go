package rtdb

import (
	"fmt"
	"os"
	"strings"

	"github.com/Ratio1/rtdb_sdk_go/internal/devseed"
	"github.com/Ratio1/rtdb_sdk_go/internal/httpx"
	"github.com/Ratio1/rtdb_sdk_go/pkg/rtdb/mock"
)

const (
	envMode     = "RTDB_RUNTIME_MODE"
	envURL      = "RTDB_URL"
	envSecret   = "RTDB_SECRET"
	envMockSeed = "RTDB_MOCK_SEED"

	modeAuto = "auto"
	modeHTTP = "http"
	modeMock = "mock"

	// MockURL is the base URL reported by databases backed by the in-process mock.
	MockURL = "http://mock.rtdb.local/"
)

// NewFromEnv initialises a Database from environment variables and returns
// the resolved mode ("http" or "mock"). In auto mode (the default) RTDB_URL
// selects HTTP; without it an in-process mock is used.
func NewFromEnv(opts ...Option) (db *Database, mode string, err error) {
	mode = strings.ToLower(strings.TrimSpace(os.Getenv(envMode)))
	baseURL := strings.TrimSpace(os.Getenv(envURL))
	secret := os.Getenv(envSecret)

	switch mode {
	case "", modeAuto:
		if baseURL != "" {
			return newHTTPDatabase(baseURL, secret, opts)
		}
		return newMockDatabase(secret, opts)
	case modeHTTP:
		if baseURL == "" {
			return nil, "", fmt.Errorf("rtdb: HTTP mode requires %s", envURL)
		}
		return newHTTPDatabase(baseURL, secret, opts)
	case modeMock:
		return newMockDatabase(secret, opts)
	default:
		return nil, "", fmt.Errorf("rtdb: unsupported %s value %q", envMode, mode)
	}
}

func newHTTPDatabase(baseURL, secret string, opts []Option) (*Database, string, error) {
	db, err := New(baseURL, secret, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("rtdb: init HTTP database: %w", err)
	}
	return db, modeHTTP, nil
}

func newMockDatabase(secret string, opts []Option) (*Database, string, error) {
	m := mock.New(mock.WithSecret(secret))
	if path := strings.TrimSpace(os.Getenv(envMockSeed)); path != "" {
		entries, err := devseed.LoadSeed(path)
		if err != nil {
			return nil, "", fmt.Errorf("rtdb: load mock seed: %w", err)
		}
		if err := m.Seed(entries); err != nil {
			return nil, "", fmt.Errorf("rtdb: apply mock seed: %w", err)
		}
	}
	opts = append(opts, WithHTTPClient(httpx.NewHandlerClient(m)))
	db, err := New(MockURL, secret, opts...)
	if err != nil {
		return nil, "", err
	}
	return db, modeMock, nil
}
