// Every outbound request funnels through one Controller.
// It paces the global request cadence and retries transient failures with
// exponential backoff; permanent failures and session expiry are never
// retried here.

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrSessionExpired marks a response the session layer flagged as an auth
// expiry. The caller decides whether a refresh can rescue the run.
var ErrSessionExpired = errors.New("session expired")

// Cause classifies a fetch failure.
type Cause string

const (
	CauseTimeout     Cause = "timeout"
	CauseRateLimited Cause = "rate_limited"
	CauseServerError Cause = "server_error"
	CauseNetwork     Cause = "network"
	CauseNotFound    Cause = "not_found"
	CauseForbidden   Cause = "forbidden"
	CauseBadRequest  Cause = "bad_request"
)

// transient reports whether a cause is worth another attempt.
func (c Cause) transient() bool {
	switch c {
	case CauseTimeout, CauseRateLimited, CauseServerError, CauseNetwork:
		return true
	}
	return false
}

// FetchError is the terminal error for a request, tagged with the last
// observed cause.
type FetchError struct {
	Cause    Cause
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%s, status %d, %d attempts): %v",
			e.Cause, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s, status %d, %d attempts)", e.Cause, e.Status, e.Attempts)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a terminal 404/410 fetch failure.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Cause == CauseNotFound
}

// Options tunes a Controller. Zero values get sane defaults.
type Options struct {
	MinDelay    time.Duration // minimum gap between dispatched requests
	Jitter      time.Duration // random extra added to the gap, breaks fixed cadence
	BaseBackoff time.Duration // first retry wait, doubled per attempt
	MaxBackoff  time.Duration // backoff cap
	MaxAttempts int
	// IsExpired lets the session layer veto a response as an auth expiry.
	IsExpired func(*http.Response) bool
}

// Controller owns the pacing clock. One instance is shared by all callers in
// a run so the cadence holds across concurrent queries; tests create their
// own independent instances.
type Controller struct {
	opts Options

	mu          sync.Mutex
	lastRequest time.Time
}

func New(opts Options) *Controller {
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = 5 * time.Second
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 2 * time.Minute
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	return &Controller{opts: opts}
}

// RequestFunc issues one HTTP request. It is called once per attempt.
type RequestFunc func(ctx context.Context) (*http.Response, error)

// Execute runs fn with pacing and bounded retry. On success the caller owns
// the response body. On exhausted retries the returned error carries the
// last observed cause.
func (c *Controller) Execute(ctx context.Context, fn RequestFunc) (*http.Response, error) {
	var lastErr *FetchError

	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if err := c.pace(ctx); err != nil {
			return nil, err
		}

		resp, err := fn(ctx)
		cause, status, cerr := c.classify(resp, err)
		if cause == "" {
			return resp, nil
		}
		if errors.Is(cerr, ErrSessionExpired) {
			drain(resp)
			return nil, cerr
		}

		drain(resp)
		lastErr = &FetchError{Cause: cause, Status: status, Attempts: attempt + 1, Err: cerr}

		if !cause.transient() {
			return nil, lastErr
		}
		if attempt == c.opts.MaxAttempts-1 {
			break
		}

		wait := c.backoff(attempt)
		log.Warnf("Request failed (%s, status %d), attempt %d/%d, retrying in %v",
			cause, status, attempt+1, c.opts.MaxAttempts, wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// pace enforces the minimum inter-request delay and stamps the dispatch
// time. Holding the lock across the wait keeps the gap global, not
// per-caller.
func (c *Controller) pace(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gap := c.opts.MinDelay
	if c.opts.Jitter > 0 {
		gap += time.Duration(rand.Int64N(int64(c.opts.Jitter)))
	}
	if !c.lastRequest.IsZero() {
		if elapsed := time.Since(c.lastRequest); elapsed < gap {
			if err := sleepCtx(ctx, gap-elapsed); err != nil {
				return err
			}
		}
	}
	c.lastRequest = time.Now()
	return nil
}

func (c *Controller) backoff(attempt int) time.Duration {
	wait := c.opts.BaseBackoff << uint(attempt)
	if wait > c.opts.MaxBackoff {
		wait = c.opts.MaxBackoff
	}
	return wait
}

// classify maps a response/error pair to a failure cause. An empty cause
// means success.
func (c *Controller) classify(resp *http.Response, err error) (Cause, int, error) {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return CauseTimeout, 0, err
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return CauseTimeout, 0, err
		}
		return CauseNetwork, 0, err
	}

	if c.opts.IsExpired != nil && c.opts.IsExpired(resp) {
		return CauseForbidden, resp.StatusCode,
			fmt.Errorf("%w (status %d)", ErrSessionExpired, resp.StatusCode)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return "", resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return CauseRateLimited, resp.StatusCode, fmt.Errorf("too many requests")
	case resp.StatusCode >= 500:
		return CauseServerError, resp.StatusCode, fmt.Errorf("server error")
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return CauseNotFound, resp.StatusCode, fmt.Errorf("job page gone")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return CauseForbidden, resp.StatusCode, fmt.Errorf("request rejected")
	default:
		return CauseBadRequest, resp.StatusCode, fmt.Errorf("unexpected status")
	}
}

func drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
