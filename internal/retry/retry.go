// Package retry implements the gateway's bounded-exponential-backoff
// upstream dispatcher (spec.md §4.A). It is deliberately tiny: one
// function that takes a request factory and sends it with retries on a
// specific, closed set of transport and status conditions.
package retry

import (
	"net/http"
	"time"
)

// Policy is an immutable retry configuration, constructed once at startup
// and shared by every adapter.
type Policy struct {
	MaxRetries  uint
	BaseDelayMS uint
}

// delay returns the backoff before attempt n+1 (0-indexed), saturating on
// overflow: base_delay_ms * 2^min(n,5).
func (p Policy) delay(attempt uint) time.Duration {
	shift := attempt
	if shift > 5 {
		shift = 5
	}
	factor := uint64(1) << shift

	ms := uint64(p.BaseDelayMS) * factor
	if p.BaseDelayMS != 0 && ms/uint64(p.BaseDelayMS) != factor {
		// overflow: saturate.
		ms = ^uint64(0)
	}
	return time.Duration(ms) * time.Millisecond
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Sleeper abstracts time.Sleep so tests can drive the backoff without
// actually waiting.
type Sleeper func(time.Duration)

// Send performs up to Policy.MaxRetries+1 send attempts, calling factory
// fresh for every attempt (builders with single-use bodies must be
// rebuilt, not reused). It returns the first non-retryable *http.Response,
// or the last attempt's outcome once retries are exhausted.
//
// onRetry, if non-nil, is invoked once per retry (after a retryable
// failure, before the backoff sleep) — the gateway's metrics package
// hooks this to count retry attempts.
func Send(factory func() (*http.Request, error), client *http.Client, policy Policy, sleep Sleeper, onRetry func()) (*http.Response, error) {
	if sleep == nil {
		sleep = time.Sleep
	}

	var attempt uint
	var lastErr error

	for {
		req, err := factory()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < policy.MaxRetries {
				if onRetry != nil {
					onRetry()
				}
				sleep(policy.delay(attempt))
				attempt++
				continue
			}
			return nil, lastErr
		}

		if retryableStatus(resp.StatusCode) && attempt < policy.MaxRetries {
			resp.Body.Close()
			if onRetry != nil {
				onRetry()
			}
			sleep(policy.delay(attempt))
			attempt++
			continue
		}

		return resp, nil
	}
}
