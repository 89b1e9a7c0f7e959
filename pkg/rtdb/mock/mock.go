// Package mock provides an in-memory stand-in for the database REST service.
// A Mock is an http.Handler; serve it with httptest or route a client to it
// through httpx.NewHandlerClient.
package mock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Ratio1/rtdb_sdk_go/internal/devseed"
)

// Messages returned in {"error": ...} bodies, matching the live service.
const (
	msgPermissionDenied = "Permission denied"
	msgInvalidData      = "Invalid data; couldn't parse JSON object. Are you sending a JSON object with valid key names?"
	msgInvalidPath      = "Invalid path: Invalid token in path"
	msgOrderBy          = "orderBy must be defined when other query parameters are defined"
	msgOrderByKey       = "Index not defined, only orderBy=\"$key\" is supported"
	msgMethod           = "Method not allowed"
)

// Mock is a concurrency-safe fake database.
type Mock struct {
	mu     sync.RWMutex
	data   tree
	secret string
	newKey func() string
}

// Option configures the mock instance.
type Option func(*Mock)

// WithSecret requires every request to authenticate with secret, either as
// the auth query parameter or as a bearer token.
func WithSecret(secret string) Option {
	return func(m *Mock) {
		m.secret = secret
	}
}

// WithKeyGenerator overrides push key generation (useful in tests).
func WithKeyGenerator(fn func() string) Option {
	return func(m *Mock) {
		if fn != nil {
			m.newKey = fn
		}
	}
}

// New creates an empty mock database.
func New(opts ...Option) *Mock {
	m := &Mock{newKey: pushKey}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// pushKey returns a time-ordered key so pushed children sort by creation.
func pushKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "-" + strings.ReplaceAll(id.String(), "-", "")
}

// Seed writes each entry's value at its path.
func (m *Mock) Seed(entries []devseed.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if strings.TrimSpace(e.Path) == "" {
			return fmt.Errorf("mock rtdb: seed entry missing path")
		}
		var value any
		if len(e.Value) > 0 {
			if err := json.Unmarshal(e.Value, &value); err != nil {
				return fmt.Errorf("mock rtdb: seed %s: %w", e.Path, err)
			}
		}
		m.data.set(splitPath(e.Path), value)
	}
	return nil
}

// Value returns a copy of the data stored at path, or nil.
func (m *Mock) Value(path string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return render(m.data.get(splitPath(path)))
}

// ServeHTTP implements the REST surface: GET, PUT, POST (push), POST with
// X-HTTP-Method-Override: PATCH (update) and DELETE on <path>.json.
func (m *Mock) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/")
	if !strings.HasSuffix(raw, ".json") {
		writeError(w, http.StatusBadRequest, msgInvalidPath)
		return
	}
	segs := splitPath(strings.TrimSuffix(raw, ".json"))
	query := r.URL.Query()

	if !m.authorized(r, query) {
		writeError(w, http.StatusUnauthorized, msgPermissionDenied)
		return
	}

	method := r.Method
	if method == http.MethodPost && strings.EqualFold(r.Header.Get("X-HTTP-Method-Override"), http.MethodPatch) {
		method = http.MethodPatch
	}

	var (
		status = http.StatusOK
		body   any
		msg    string
	)
	switch method {
	case http.MethodGet:
		status, body, msg = m.read(segs, query)
	case http.MethodPut:
		status, body, msg = m.write(r, func(value any) (any, error) {
			m.data.set(segs, value)
			return value, nil
		})
	case http.MethodPost:
		status, body, msg = m.write(r, func(value any) (any, error) {
			key := m.newKey()
			m.data.set(append(segs[:len(segs):len(segs)], key), value)
			return map[string]any{"name": key}, nil
		})
	case http.MethodPatch:
		status, body, msg = m.write(r, func(value any) (any, error) {
			children, ok := value.(map[string]any)
			if !ok {
				return nil, errInvalidData
			}
			for k, v := range children {
				m.data.set(append(segs[:len(segs):len(segs)], splitPath(k)...), v)
			}
			return value, nil
		})
	case http.MethodDelete:
		m.mu.Lock()
		m.data.set(segs, nil)
		m.mu.Unlock()
	default:
		status, msg = http.StatusMethodNotAllowed, msgMethod
	}

	if msg != "" {
		writeError(w, status, msg)
		return
	}
	if query.Get("print") == "silent" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, status, body)
}

func (m *Mock) authorized(r *http.Request, query url.Values) bool {
	if m.secret == "" {
		return true
	}
	if query.Get("auth") == m.secret {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+m.secret
}

func (m *Mock) read(segs []string, query url.Values) (int, any, string) {
	first, last, err := limits(query)
	if err != nil {
		return http.StatusBadRequest, nil, err.Error()
	}

	m.mu.RLock()
	value := m.data.get(segs)
	m.mu.RUnlock()

	if first > 0 || last > 0 {
		value = limitByKey(value, first, last)
	}
	if query.Get("shallow") == "true" {
		value = shallow(value)
	}
	return http.StatusOK, render(value), ""
}

var errInvalidData = errors.New(msgInvalidData)

func (m *Mock) write(r *http.Request, apply func(value any) (any, error)) (int, any, string) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return http.StatusBadRequest, nil, msgInvalidData
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return http.StatusBadRequest, nil, msgInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := apply(value)
	if err != nil {
		return http.StatusBadRequest, nil, err.Error()
	}
	return http.StatusOK, out, ""
}

// limits parses limitToFirst/limitToLast, which require orderBy="$key".
func limits(query url.Values) (first, last int, err error) {
	rawFirst, rawLast := query.Get("limitToFirst"), query.Get("limitToLast")
	if rawFirst == "" && rawLast == "" {
		return 0, 0, nil
	}
	switch query.Get("orderBy") {
	case "":
		return 0, 0, errors.New(msgOrderBy)
	case `"$key"`:
	default:
		return 0, 0, errors.New(msgOrderByKey)
	}
	if rawFirst != "" {
		if first, err = strconv.Atoi(rawFirst); err != nil || first < 0 {
			return 0, 0, errors.New("limitToFirst must be a positive integer")
		}
	}
	if rawLast != "" {
		if last, err = strconv.Atoi(rawLast); err != nil || last < 0 {
			return 0, 0, errors.New("limitToLast must be a positive integer")
		}
	}
	return first, last, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
