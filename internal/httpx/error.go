package httpx

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNilRequest is returned when a nil request descriptor is fetched.
var ErrNilRequest = errors.New("httpx: request is nil")

// TransportError reports a request that never produced an HTTP response
// (dial failure, timeout, reset). The wrapped error may embed the request URL.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("httpx: %s request failed: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	if e == nil || e.Err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(e.Err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// RateLimitError reports a request the limiter refused to admit before the
// context deadline. Nothing was sent.
type RateLimitError struct {
	Method string
	Err    error
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("httpx: %s request not sent: %v", e.Method, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRateLimited reports whether err comes from the client's rate limiter.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}
