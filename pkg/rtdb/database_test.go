package rtdb_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Ratio1/rtdb_sdk_go/internal/httpx"
	"github.com/Ratio1/rtdb_sdk_go/pkg/rtdb"
	"github.com/Ratio1/rtdb_sdk_go/pkg/rtdb/mock"
)

var fastRetries = rtdb.RetryPolicy{
	MaxGenerations: rtdb.DefaultMaxGenerations,
	BaseDelay:      time.Millisecond,
	Jitter:         time.Millisecond,
}

// hits counts requests per URL path.
type hits struct {
	mu     sync.Mutex
	counts map[string]int
}

func (h *hits) add(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.counts == nil {
		h.counts = make(map[string]int)
	}
	h.counts[path]++
	return h.counts[path]
}

func (h *hits) get(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[path]
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newDatabase(t *testing.T, baseURL, secret string, opts ...rtdb.Option) *rtdb.Database {
	t.Helper()
	opts = append([]rtdb.Option{rtdb.WithRetryPolicy(fastRetries)}, opts...)
	db, err := rtdb.New(baseURL, secret, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMockDatabase(t *testing.T, m *mock.Mock, secret string) *rtdb.Database {
	t.Helper()
	return newDatabase(t, rtdb.MockURL, secret, rtdb.WithHTTPClient(httpx.NewHandlerClient(m)))
}

func paths(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item%d", i)
	}
	return out
}

func TestNewValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "://bad", "no-scheme"} {
		if _, err := rtdb.New(raw, ""); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
	db, err := rtdb.New("https://db.example.com", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if db.URL() != "https://db.example.com/" {
		t.Fatalf("URL %s", db.URL())
	}
}

func TestGetAllPreservesOrder(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".json")
		_ = json.NewEncoder(w).Encode(name)
	})
	db := newDatabase(t, srv.URL, "")

	ps := paths(20)
	results, err := db.GetAllPaths(context.Background(), ps...)
	if err != nil {
		t.Fatalf("GetAllPaths: %v", err)
	}
	if len(results) != len(ps) {
		t.Fatalf("got %d results", len(results))
	}
	for i, res := range results {
		if !res.OK() || res.Value != ps[i] {
			t.Fatalf("result %d: %+v", i, res)
		}
	}
}

func TestGetAllRetriesSmallFailingSubset(t *testing.T) {
	var h hits
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := h.add(r.URL.Path)
		if (r.URL.Path == "/item3.json" || r.URL.Path == "/item7.json") && n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":"boom"}`)
			return
		}
		io.WriteString(w, `"ok"`)
	})
	db := newDatabase(t, srv.URL, "")

	results, err := db.GetAllPaths(context.Background(), paths(10)...)
	if err != nil {
		t.Fatalf("GetAllPaths: %v", err)
	}
	for i, res := range results {
		if !res.OK() || res.Value != "ok" {
			t.Fatalf("result %d: %+v", i, res)
		}
	}
	if h.get("/item3.json") != 2 || h.get("/item0.json") != 1 {
		t.Fatalf("unexpected hit counts: %v", h.counts)
	}
}

func TestGetAllSkipsRetryWhenTooManyFail(t *testing.T) {
	var h hits
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		h.add(r.URL.Path)
		var idx int
		fmt.Sscanf(r.URL.Path, "/item%d.json", &idx)
		if idx%2 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":"boom"}`)
			return
		}
		io.WriteString(w, `1`)
	})
	db := newDatabase(t, srv.URL, "")

	results, err := db.GetAllPaths(context.Background(), paths(10)...)
	if err != nil {
		t.Fatalf("GetAllPaths: %v", err)
	}
	for i, res := range results {
		if i%2 == 0 {
			if res.OK() || res.Err.Error() != "500 - boom" {
				t.Fatalf("result %d: %+v", i, res)
			}
			continue
		}
		if !res.OK() {
			t.Fatalf("result %d: %v", i, res.Err)
		}
	}
	for _, p := range paths(10) {
		if got := h.get("/" + p + ".json"); got != 1 {
			t.Fatalf("%s dispatched %d times", p, got)
		}
	}
}

func TestSingleRequestIsNotRetried(t *testing.T) {
	var h hits
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		h.add(r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	})
	db := newDatabase(t, srv.URL, "")

	_, err := db.Get(context.Background(), "solo", nil)
	if err == nil || err.Error() != "500 - boom" {
		t.Fatalf("Get error %v", err)
	}
	if got := h.get("/solo.json"); got != 1 {
		t.Fatalf("dispatched %d times", got)
	}
}

func TestPersistentFailureStopsAfterMaxGenerations(t *testing.T) {
	var h hits
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		h.add(r.URL.Path)
		if r.URL.Path == "/item0.json" {
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, `{}`)
			return
		}
		io.WriteString(w, `true`)
	})
	reg := prometheus.NewRegistry()
	db := newDatabase(t, srv.URL, "", rtdb.WithMetrics(reg))

	results, err := db.GetAllPaths(context.Background(), paths(10)...)
	if err != nil {
		t.Fatalf("GetAllPaths: %v", err)
	}
	if !errors.Is(results[0].Err, rtdb.ErrTryAgain) {
		t.Fatalf("result 0: %+v", results[0])
	}
	if got := h.get("/item0.json"); got != rtdb.DefaultMaxGenerations+1 {
		t.Fatalf("dispatched %d times", got)
	}
	n, err := testutil.GatherAndCount(reg, "rtdb_generations_total")
	if err != nil || n != rtdb.DefaultMaxGenerations+1 {
		t.Fatalf("generation series %d: %v", n, err)
	}
}

func TestPermissionDeniedIsFinal(t *testing.T) {
	var h hits
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		h.add(r.URL.Path)
		if r.URL.Path == "/private.json" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"Permission denied"}`)
			return
		}
		io.WriteString(w, `1`)
	})
	db := newDatabase(t, srv.URL, "")

	results, err := db.GetAllPaths(context.Background(), "private", "a", "b", "c", "d", "e")
	if err != nil {
		t.Fatalf("GetAllPaths: %v", err)
	}
	if !errors.Is(results[0].Err, rtdb.ErrPermissionDenied) {
		t.Fatalf("result 0: %+v", results[0])
	}
	if h.get("/private.json") != 1 {
		t.Fatalf("permission failure was retried")
	}
}

func TestSecretNeverSurfaces(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"error":"bad url %s"}`, r.URL.String())
	})
	db := newDatabase(t, srv.URL, "hunter2")

	_, err := db.Get(context.Background(), "x", nil)
	if !errors.Is(err, rtdb.ErrTryAgain) {
		t.Fatalf("expected ErrTryAgain, got %v", err)
	}
	if strings.Contains(err.Error(), "hunter2") {
		t.Fatalf("secret leaked: %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func failingClient(failPath string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == failPath {
			return nil, errors.New("connection reset")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`1`)),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})}
}

func TestBatchTransportFailureIsGlobalCrash(t *testing.T) {
	db := newDatabase(t, "https://db.example.com", "s3cret", rtdb.WithHTTPClient(failingClient("/b.json")))

	results, err := db.GetAllPaths(context.Background(), "a", "b", "c")
	if !errors.Is(err, rtdb.ErrGlobalCrash) {
		t.Fatalf("expected ErrGlobalCrash, got %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results, got %+v", results)
	}
	if strings.Contains(err.Error(), "s3cret") {
		t.Fatalf("secret leaked: %v", err)
	}
}

func TestSingleTransportFailureIsSynthesized(t *testing.T) {
	db := newDatabase(t, "https://db.example.com", "", rtdb.WithHTTPClient(failingClient("/a.json")))

	if _, err := db.Get(context.Background(), "a", nil); !errors.Is(err, rtdb.ErrTryAgain) {
		t.Fatalf("GET: expected ErrTryAgain, got %v", err)
	}
	if _, err := db.Set(context.Background(), "a", 1, nil); !errors.Is(err, rtdb.ErrTryAgain) {
		t.Fatalf("PUT: expected ErrTryAgain, got %v", err)
	}
}

func TestInvalidDataIsNotDispatched(t *testing.T) {
	var h hits
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		h.add(r.URL.Path)
		io.WriteString(w, `1`)
	})
	db := newDatabase(t, srv.URL, "")

	results, err := db.GetAll(context.Background(),
		rtdb.Request{Path: "bad", Method: rtdb.MethodPut, Data: make(chan int)},
		rtdb.Path("good"),
	)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if !errors.Is(results[0].Err, rtdb.ErrInvalidData) || !results[1].OK() {
		t.Fatalf("results %+v", results)
	}
	if h.get("/bad.json") != 0 {
		t.Fatalf("invalid request was dispatched")
	}
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/item0.json" {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{}`)
			return
		}
		io.WriteString(w, `1`)
	})
	db := newDatabase(t, srv.URL, "", rtdb.WithRetryPolicy(rtdb.RetryPolicy{
		MaxGenerations: 6,
		BaseDelay:      time.Hour,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := db.GetAllPaths(ctx, paths(10)...); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestAuthTransport(t *testing.T) {
	var gotQuery, gotAuth string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery, gotAuth = r.URL.RawQuery, r.Header.Get("Authorization")
		if r.Header.Get("X-Firebase-Decoding") != "1" {
			w.WriteHeader(http.StatusBadRequest)
		}
		io.WriteString(w, `1`)
	})

	legacy := newDatabase(t, srv.URL, "legacy")
	if _, err := legacy.Get(context.Background(), "x", rtdb.Query{"shallow": "true"}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotQuery != "auth=legacy&shallow=true" || gotAuth != "" {
		t.Fatalf("legacy secret: query %q auth %q", gotQuery, gotAuth)
	}

	oauth := newDatabase(t, srv.URL, "ya29.token")
	if _, err := oauth.Get(context.Background(), "x", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotQuery != "" || gotAuth != "Bearer ya29.token" {
		t.Fatalf("oauth token: query %q auth %q", gotQuery, gotAuth)
	}
}

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestOperationsAgainstMock(t *testing.T) {
	m := mock.New(mock.WithSecret("s3cret"), mock.WithKeyGenerator(func() string { return "k1" }))
	db := newMockDatabase(t, m, "s3cret")
	ctx := context.Background()

	written, err := db.Set(ctx, "users/ada", profile{Name: "Ada", Age: 36}, nil)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if obj, _ := written.(map[string]any); obj["name"] != "Ada" {
		t.Fatalf("Set returned %#v", written)
	}

	got, err := rtdb.GetAs[profile](ctx, db, "users/ada", nil)
	if err != nil || got != (profile{Name: "Ada", Age: 36}) {
		t.Fatalf("GetAs: %+v %v", got, err)
	}

	if _, err := db.Update(ctx, "users/ada", map[string]any{"age": 37}, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := rtdb.GetAs[profile](ctx, db, "users/ada", nil); got.Age != 37 || got.Name != "Ada" {
		t.Fatalf("after Update: %+v", got)
	}

	key, err := db.Push(ctx, "log", "entry", nil)
	if err != nil || key != "k1" {
		t.Fatalf("Push: %q %v", key, err)
	}
	if m.Value("log/k1") != "entry" {
		t.Fatalf("pushed value missing: %#v", m.Value("log"))
	}

	if err := db.Remove(ctx, "users/ada", nil); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if v, err := db.Get(ctx, "users/ada", nil); err != nil || v != nil {
		t.Fatalf("after Remove: %#v %v", v, err)
	}
}

func TestSilentWriteReturnsNil(t *testing.T) {
	m := mock.New()
	db := newMockDatabase(t, m, "")

	v, err := db.Set(context.Background(), "n", 5, rtdb.Query{"print": "silent"})
	if err != nil || v != nil {
		t.Fatalf("Set silent: %#v %v", v, err)
	}
	if m.Value("n") != float64(5) {
		t.Fatalf("value not written")
	}
}

func TestWrongSecretAgainstMock(t *testing.T) {
	m := mock.New(mock.WithSecret("right"))
	db := newMockDatabase(t, m, "wrong")

	if _, err := db.Get(context.Background(), "x", nil); !errors.Is(err, rtdb.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestBatchMixedOperations(t *testing.T) {
	m := mock.New()
	db := newMockDatabase(t, m, "")
	ctx := context.Background()

	results, err := db.GetAll(ctx,
		rtdb.Request{Path: "a", Method: rtdb.MethodPut, Data: 1},
		rtdb.Request{Path: "b", Method: "put", Data: json.RawMessage(`{"x":true}`)},
		rtdb.Request{Path: "c", Method: rtdb.MethodPut},
		rtdb.Path("missing"),
	)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if !results[0].OK() || !results[1].OK() || !results[3].OK() || results[3].Value != nil {
		t.Fatalf("results %+v", results)
	}
	// PUT without a body is refused with 400, a retryable status, so the
	// service message comes back prefixed with the status.
	if results[2].OK() || results[2].Err.Error() != "400 - "+rtdb.InvalidDataMessage {
		t.Fatalf("bodiless PUT: %v", results[2].Err)
	}
}

func TestSetNilDataIsRejected(t *testing.T) {
	m := mock.New()
	db := newMockDatabase(t, m, "")
	ctx := context.Background()

	if _, err := db.Set(ctx, "n", 5, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, err := db.Set(ctx, "n", nil, nil)
	var rerr *rtdb.Error
	if !errors.As(err, &rerr) || rerr.Status != http.StatusBadRequest || rerr.Kind != rtdb.KindServer {
		t.Fatalf("Set nil: %v", err)
	}
	if m.Value("n") != float64(5) {
		t.Fatalf("rejected write changed the value: %#v", m.Value("n"))
	}
	if _, err := db.Update(ctx, "n", nil, nil); err == nil {
		t.Fatal("Update nil: expected error")
	}

	if v, err := db.Set(ctx, "n", json.RawMessage("null"), nil); err != nil || v != nil {
		t.Fatalf("Set null: %#v %v", v, err)
	}
	if m.Value("n") != nil {
		t.Fatalf("null write kept the value: %#v", m.Value("n"))
	}
}

func TestDatabasesShareMetricsRegistry(t *testing.T) {
	m := mock.New()
	reg := prometheus.NewRegistry()
	client := rtdb.WithHTTPClient(httpx.NewHandlerClient(m))

	first := newDatabase(t, rtdb.MockURL, "", client, rtdb.WithMetrics(reg))
	second := newDatabase(t, "https://other.example.com", "", client, rtdb.WithMetrics(reg))

	if _, err := first.Get(context.Background(), "a", nil); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if _, err := second.Get(context.Background(), "b", nil); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	want := `
# HELP rtdb_requests_total Total number of classified responses
# TYPE rtdb_requests_total counter
rtdb_requests_total{method="GET",outcome="success"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "rtdb_requests_total"); err != nil {
		t.Fatalf("shared request counter: %v", err)
	}
}

func TestRateLimitedBatchIsNotGlobalCrash(t *testing.T) {
	var h hits
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		h.add(r.URL.Path)
		io.WriteString(w, `1`)
	})
	reg := prometheus.NewRegistry()
	db := newDatabase(t, srv.URL, "", rtdb.WithRateLimit(0.01, 1), rtdb.WithMetrics(reg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := db.GetAllPaths(ctx, "a", "b", "c")
	if errors.Is(err, rtdb.ErrGlobalCrash) {
		t.Fatalf("limiter refusal reported as global crash: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	want := `
# HELP rtdb_global_crashes_total Total number of batch-wide transport failures
# TYPE rtdb_global_crashes_total counter
rtdb_global_crashes_total 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "rtdb_global_crashes_total"); err != nil {
		t.Fatalf("global crash counted for a limiter refusal: %v", err)
	}
	if got := h.get("/b.json") + h.get("/c.json"); got > 1 {
		t.Fatalf("limiter let %d extra requests through", got)
	}
}

func TestDecode(t *testing.T) {
	got, err := rtdb.Decode[[]string]([]any{"a", "b"})
	if err != nil || len(got) != 2 || got[1] != "b" {
		t.Fatalf("Decode: %v %v", got, err)
	}
	if _, err := rtdb.Decode[int]("nope"); err == nil {
		t.Fatal("expected decode error")
	}
	if v, err := rtdb.Decode[*profile](nil); err != nil || v != nil {
		t.Fatalf("nil decode: %v %v", v, err)
	}
}
