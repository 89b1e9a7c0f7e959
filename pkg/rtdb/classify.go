package rtdb

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Ratio1/rtdb_sdk_go/internal/httpx"
	"github.com/Ratio1/rtdb_sdk_go/internal/metrics"
	"github.com/Ratio1/rtdb_sdk_go/internal/rtdbapi"
)

const (
	// DefaultMaxGenerations is the last generation that may be dispatched;
	// generations are numbered from 0, so a request is sent at most 7 times.
	DefaultMaxGenerations = 6

	// A first generation with more failures than this is not retried.
	firstGenerationMaxFailures = 100
)

// retryableStatus lists statuses retried whatever the response message.
var retryableStatus = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
}

type verdict int

const (
	verdictSuccess verdict = iota
	verdictRetry
	verdictTerminal
)

func (v verdict) String() string {
	switch v {
	case verdictSuccess:
		return metrics.OutcomeSuccess
	case verdictRetry:
		return metrics.OutcomeRetry
	default:
		return metrics.OutcomeTerminal
	}
}

// RetryPolicy controls the generation loop.
type RetryPolicy struct {
	// MaxGenerations is the highest generation number dispatched.
	MaxGenerations int
	// BaseDelay is the wait before generation 1; it doubles per generation.
	BaseDelay time.Duration
	// Jitter is the upper bound of the random delay added to each wait.
	Jitter time.Duration
}

// DefaultRetryPolicy waits 2^n seconds plus up to one second before
// generation n+1.
var DefaultRetryPolicy = RetryPolicy{
	MaxGenerations: DefaultMaxGenerations,
	BaseDelay:      time.Second,
	Jitter:         time.Second,
}

// shouldRetry gates the next generation. The first generation only retries
// when the failing share is small, so a systemic outage fails fast instead of
// burning request quota.
func (p RetryPolicy) shouldRetry(generation, failures, total int) bool {
	if failures == 0 || generation >= p.MaxGenerations {
		return false
	}
	if generation > 0 {
		return true
	}
	return failures <= firstGenerationMaxFailures && failures*4 < total
}

// sendAll runs generations until nothing is left to retry. Outcomes are
// written into recs; reqs[i] always belongs to recs[i].
func (db *Database) sendAll(ctx context.Context, logger *slog.Logger, reqs []*httpx.Request, recs []*record) error {
	for generation := 0; ; generation++ {
		resps, err := db.dispatch(ctx, logger, reqs)
		if err != nil {
			return err
		}

		var (
			retryReqs []*httpx.Request
			retryRecs []*record
		)
		for i, resp := range resps {
			v := db.classify(reqs[i], recs[i], resp)
			db.metrics.ObserveRequest(reqs[i].Method, v.String())
			if v == verdictRetry {
				retryReqs = append(retryReqs, reqs[i])
				retryRecs = append(retryRecs, recs[i])
			}
		}
		db.metrics.ObserveGeneration(strconv.Itoa(generation), len(retryRecs))

		if !db.policy.shouldRetry(generation, len(retryRecs), len(recs)) {
			if len(retryRecs) > 0 {
				logger.Warn("giving up on failed requests",
					"generation", generation,
					"failed", len(retryRecs),
					"total", len(recs),
				)
			}
			return nil
		}

		delay := db.backoff.ForAttempt(generation)
		logger.Info("retrying failed requests",
			"generation", generation+1,
			"failed", len(retryRecs),
			"delay", delay,
		)
		if err := db.sleep(ctx, delay); err != nil {
			return err
		}
		reqs, recs = retryReqs, retryRecs
	}
}

// classify records the outcome of resp on rec and reports whether the
// request goes to the next generation.
func (db *Database) classify(req *httpx.Request, rec *record, resp *httpx.Response) verdict {
	if resp == nil {
		rec.fail(ErrTryAgain)
		return verdictRetry
	}

	// print=silent writes answer 204 No Content.
	if resp.StatusCode == http.StatusNoContent {
		rec.succeed(nil)
		return verdictSuccess
	}

	// A body echoing the secret is an error page; never hand it back.
	if db.secret != "" && bytes.Contains(resp.Body, []byte(db.secret)) {
		rec.fail(ErrTryAgain)
		return verdictRetry
	}

	parsed, err := rtdbapi.ParseBody(resp.Body)
	if err != nil {
		rec.fail(ErrTryAgain)
		return verdictRetry
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if req.Method == http.MethodPost && req.Header.Get(headerMethodOverride) != "PATCH" {
			rec.succeed(rtdbapi.PushKey(parsed))
		} else {
			rec.succeed(parsed)
		}
		return verdictSuccess
	case http.StatusUnauthorized:
		rec.fail(permissionError(rtdbapi.ErrorMessage(parsed)))
		return verdictTerminal
	}

	msg := rtdbapi.ErrorMessage(parsed)
	final, noRetry := noRetryMessages[msg]
	if retryableStatus[resp.StatusCode] || (msg != "" && !noRetry) {
		if msg != "" {
			rec.fail(serverError(resp.StatusCode, msg))
		} else {
			rec.fail(ErrTryAgain)
		}
		return verdictRetry
	}
	if noRetry {
		rec.fail(final)
		return verdictTerminal
	}
	rec.fail(ErrTryAgain)
	return verdictTerminal
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
