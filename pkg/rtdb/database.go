package rtdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Ratio1/rtdb_sdk_go/internal/httpx"
	"github.com/Ratio1/rtdb_sdk_go/internal/metrics"
)

// Option configures a Database.
type Option func(*options)

type options struct {
	httpOpts []httpx.Option
	logger   *slog.Logger
	metrics  *metrics.Collector
	policy   RetryPolicy
}

// WithHTTPClient overrides the HTTP client used for every request.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, httpx.WithHTTPClient(h))
	}
}

// WithTimeout sets the per-request transport timeout (default 60s).
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, httpx.WithTimeout(d))
	}
}

// WithConcurrency caps in-flight requests within one batch.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, httpx.WithConcurrency(n))
	}
}

// WithRateLimit throttles outbound requests to limit per second.
func WithRateLimit(limit float64, burst int) Option {
	return func(o *options) {
		o.httpOpts = append(o.httpOpts, httpx.WithRateLimit(limit, burst))
	}
}

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics registers Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.metrics = metrics.New(reg)
	}
}

// WithRetryPolicy overrides the default retry configuration.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// Database is a connection to one database: its base URL, optional secret
// (legacy database secret or OAuth2 access token) and transport.
type Database struct {
	url     string
	secret  string
	client  *httpx.Client
	logger  *slog.Logger
	metrics *metrics.Collector
	policy  RetryPolicy
	backoff *httpx.Backoff
	sleep   func(context.Context, time.Duration) error
}

// New constructs a Database for baseURL. The URL is normalized to end in "/".
func New(baseURL, secret string, opts ...Option) (*Database, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("rtdb: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("rtdb: invalid base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("rtdb: invalid base URL %q", baseURL)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	o := options{
		logger: slog.Default(),
		policy: DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy.MaxGenerations < 0 {
		o.policy.MaxGenerations = 0
	}

	return &Database{
		url:     baseURL,
		secret:  secret,
		client:  httpx.NewClient(o.httpOpts...),
		logger:  o.logger,
		metrics: o.metrics,
		policy:  o.policy,
		backoff: httpx.NewBackoff(o.policy.BaseDelay, o.policy.Jitter),
		sleep:   sleepContext,
	}, nil
}

// URL returns the normalized base URL.
func (db *Database) URL() string {
	return db.url
}

// Close releases idle connections.
func (db *Database) Close() error {
	db.client.CloseIdleConnections()
	return nil
}

// GetAll executes requests as one batch and returns one Result per request in
// input order. The error is non-nil only when the whole batch failed in
// transport (ErrGlobalCrash) or ctx ended. When a rate limit is set and the
// limiter cannot admit a request before ctx's deadline, the error wraps
// context.DeadlineExceeded.
func (db *Database) GetAll(ctx context.Context, requests ...Request) ([]Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := db.logger.With("batch", uuid.NewString())

	recs := normalize(requests)
	creds := resolveCredentials(db.secret)

	reqs := make([]*httpx.Request, 0, len(recs))
	live := make([]*record, 0, len(recs))
	for _, rec := range recs {
		if rec.err != nil {
			continue
		}
		reqs = append(reqs, buildRequest(db.url, rec, creds))
		live = append(live, rec)
	}

	logger.Debug("dispatching batch", "requests", len(reqs), "rejected", len(recs)-len(reqs))
	if len(reqs) > 0 {
		if err := db.sendAll(ctx, logger, reqs, live); err != nil {
			return nil, err
		}
	}

	results := make([]Result, len(recs))
	for i, rec := range recs {
		results[i] = rec.result()
	}
	return results, nil
}

// GetAllPaths reads every path in one batch.
func (db *Database) GetAllPaths(ctx context.Context, paths ...string) ([]Result, error) {
	requests := make([]Request, len(paths))
	for i, p := range paths {
		requests[i] = Path(p)
	}
	return db.GetAll(ctx, requests...)
}

// Get returns the data stored at path.
func (db *Database) Get(ctx context.Context, path string, query Query) (any, error) {
	return db.one(ctx, Request{Method: MethodGet, Path: path, Query: query})
}

// Set writes data at path, replacing what was there, and returns the data written.
// A nil data sends no body, which the service rejects as invalid data; pass
// json.RawMessage("null") to write null (the same as Remove).
func (db *Database) Set(ctx context.Context, path string, data any, query Query) (any, error) {
	return db.one(ctx, Request{Method: MethodPut, Path: path, Data: data, Query: query})
}

// Push creates a child of path under a generated key and returns that key.
func (db *Database) Push(ctx context.Context, path string, data any, query Query) (string, error) {
	value, err := db.one(ctx, Request{Method: MethodPost, Path: path, Data: data, Query: query})
	if err != nil {
		return "", err
	}
	key, _ := value.(string)
	return key, nil
}

// Update writes the given children of path without touching the others.
// data must encode to a JSON object; a nil data sends no body and is rejected
// as invalid data.
func (db *Database) Update(ctx context.Context, path string, data any, query Query) (any, error) {
	return db.one(ctx, Request{Method: MethodPatch, Path: path, Data: data, Query: query})
}

// Remove deletes the data at path.
func (db *Database) Remove(ctx context.Context, path string, query Query) error {
	_, err := db.one(ctx, Request{Method: MethodDelete, Path: path, Query: query})
	return err
}

func (db *Database) one(ctx context.Context, req Request) (any, error) {
	results, err := db.GetAll(ctx, req)
	if err != nil {
		return nil, err
	}
	return results[0].Value, results[0].Err
}

// GetAs reads path and decodes the data into T.
func GetAs[T any](ctx context.Context, db *Database, path string, query Query) (T, error) {
	value, err := db.Get(ctx, path, query)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](value)
}

// Decode converts a Result value (generic JSON) into T.
func Decode[T any](value any) (T, error) {
	var out T
	if value == nil {
		return out, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return out, fmt.Errorf("rtdb: encode value: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("rtdb: decode value: %w", err)
	}
	return out, nil
}
