package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchReturnsNon2xxAsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "1" {
			t.Errorf("missing default header")
		}
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	}))
	defer srv.Close()

	c := NewClient(WithHeaders(http.Header{"X-Test": {"1"}}))
	resp, err := c.Fetch(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL + "/a.json"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"error":"boom"}` {
		t.Fatalf("unexpected body %q", resp.Body)
	}
}

func TestFetchSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		w.Write(data)
	}))
	defer srv.Close()

	c := NewClient()
	resp, err := c.Fetch(context.Background(), &Request{Method: http.MethodPut, URL: srv.URL, Body: []byte(`{"a":1}`)})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(resp.Body) != `{"a":1}` {
		t.Fatalf("unexpected echo %q", resp.Body)
	}
}

func TestFetchAllPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/0" {
			time.Sleep(20 * time.Millisecond)
		}
		io.WriteString(w, r.URL.Path)
	}))
	defer srv.Close()

	c := NewClient(WithConcurrency(4))
	reqs := make([]*Request, 5)
	for i := range reqs {
		reqs[i] = &Request{Method: http.MethodGet, URL: srv.URL + "/" + string(rune('0'+i))}
	}
	resps, err := c.FetchAll(context.Background(), reqs)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	for i, resp := range resps {
		want := "/" + string(rune('0'+i))
		if string(resp.Body) != want {
			t.Fatalf("response %d: expected %q, got %q", i, want, resp.Body)
		}
	}
}

func TestFetchAllTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "null")
	}))
	defer srv.Close()

	c := NewClient()
	reqs := []*Request{
		{Method: http.MethodGet, URL: srv.URL + "/ok"},
		{Method: http.MethodGet, URL: "http://127.0.0.1:1/unreachable"},
	}
	_, err := c.FetchAll(context.Background(), reqs)
	if err == nil {
		t.Fatalf("expected transport error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(20 * time.Millisecond))
	_, err := c.Fetch(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	if err == nil {
		t.Fatalf("expected timeout")
	}
	if !IsTimeout(err) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := NewClient(WithRateLimit(1, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := c.Fetch(ctx, &Request{Method: http.MethodGet, URL: srv.URL}); err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	_, err := c.Fetch(ctx, &Request{Method: http.MethodGet, URL: srv.URL})
	if err == nil {
		t.Fatalf("expected limiter to reject second request within deadline")
	}
	if !IsRateLimited(err) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	var te *TransportError
	if errors.As(err, &te) {
		t.Fatalf("limiter refusal reported as transport failure: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
}

func TestFetchAllRateLimited(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := NewClient(WithRateLimit(0.01, 1))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reqs := []*Request{
		{Method: http.MethodGet, URL: srv.URL + "/a"},
		{Method: http.MethodGet, URL: srv.URL + "/b"},
		{Method: http.MethodGet, URL: srv.URL + "/c"},
	}
	if _, err := c.FetchAll(ctx, reqs); !IsRateLimited(err) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got > 1 {
		t.Fatalf("expected at most 1 hit, got %d", got)
	}
}

func TestHandlerTransport(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := NewClient(WithHTTPClient(NewHandlerClient(h)))
	resp, err := c.Fetch(context.Background(), &Request{Method: http.MethodDelete, URL: "http://mock.local/a.json"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestBackoffForAttempt(t *testing.T) {
	b := NewBackoff(time.Second, time.Second)
	for attempt := 0; attempt < 4; attempt++ {
		base := time.Second << uint(attempt)
		for i := 0; i < 20; i++ {
			d := b.ForAttempt(attempt)
			if d < base || d >= base+time.Second {
				t.Fatalf("attempt %d: delay %v outside [%v, %v)", attempt, d, base, base+time.Second)
			}
		}
	}

	noJitter := NewBackoff(10*time.Millisecond, 0)
	if got := noJitter.ForAttempt(2); got != 40*time.Millisecond {
		t.Fatalf("expected 40ms, got %v", got)
	}
}
