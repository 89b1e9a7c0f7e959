package httpx

import (
	"net/http"
	"net/http/httptest"
)

// HandlerTransport serves requests in-process with h instead of the network.
// It backs mock mode, where the remote service is an in-memory http.Handler.
type HandlerTransport struct {
	Handler http.Handler
}

// RoundTrip implements http.RoundTripper.
func (t *HandlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	t.Handler.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// NewHandlerClient returns an *http.Client whose requests are served by h.
func NewHandlerClient(h http.Handler) *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: &HandlerTransport{Handler: h},
	}
}
