package rtdb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ratio1/rtdb_sdk_go/internal/httpx"
)

const timeoutBody = "Bad request or Time-out"

// fireAndForget lists wire methods whose lost responses are assumed to have
// landed on the service.
var fireAndForget = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// dispatch sends reqs and returns one response per request, index-aligned.
func (db *Database) dispatch(ctx context.Context, logger *slog.Logger, reqs []*httpx.Request) ([]*httpx.Response, error) {
	start := time.Now()
	if len(reqs) == 1 {
		resp, err := db.client.Fetch(ctx, reqs[0])
		db.metrics.ObserveDispatch("single", time.Since(start))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if httpx.IsRateLimited(err) {
				return nil, rateLimited(logger, len(reqs))
			}
			logger.Warn("request failed in transport",
				"method", reqs[0].Method,
				"timeout", httpx.IsTimeout(err),
			)
			return []*httpx.Response{transportFailureResponse(reqs[0].Method)}, nil
		}
		return []*httpx.Response{resp}, nil
	}

	resps, err := db.client.FetchAll(ctx, reqs)
	db.metrics.ObserveDispatch("batch", time.Since(start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if httpx.IsRateLimited(err) {
			return nil, rateLimited(logger, len(reqs))
		}
		// The transport error names one failing URL, auth parameter included,
		// and cannot be mapped back to a request: drop it.
		db.metrics.ObserveGlobalCrash()
		logger.Error("batch failed in transport", "requests", len(reqs), "timeout", httpx.IsTimeout(err))
		return nil, ErrGlobalCrash
	}
	return resps, nil
}

// rateLimited reports a round the limiter could not admit before the deadline.
// Nothing reached the service, so it is neither a transport failure nor a crash.
func rateLimited(logger *slog.Logger, n int) error {
	logger.Warn("rate limiter cannot admit requests before deadline", "requests", n)
	return fmt.Errorf("rtdb: requests not sent: %w", context.DeadlineExceeded)
}

func transportFailureResponse(method string) *httpx.Response {
	if fireAndForget[method] {
		return &httpx.Response{StatusCode: http.StatusOK}
	}
	return &httpx.Response{StatusCode: http.StatusBadRequest, Body: []byte(timeoutBody)}
}
