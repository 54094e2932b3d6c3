package source

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts     = 4
	defaultInitialInterval = time.Second
	defaultMultiplier      = 2
	maxBackoffInterval     = 30 * time.Second
)

// Retrier runs an operation until it succeeds or MaxAttempts is reached.
// Waits follow an exponential schedule starting at InitialInterval; a
// Retry-After carried by a FetchError replaces the computed wait.
type Retrier struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64

	// Sleep blocks for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier returns a Retrier with 4 attempts waiting 1s, 2s, 4s
func NewRetrier() *Retrier {
	return &Retrier{
		MaxAttempts:     defaultMaxAttempts,
		InitialInterval: defaultInitialInterval,
		Multiplier:      defaultMultiplier,
		Sleep:           sleepContext,
	}
}

func (r *Retrier) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.Multiplier = r.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoffInterval
	b.MaxElapsedTime = 0 // Bounded by MaxAttempts instead
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultInitialInterval
	}
	if b.Multiplier < 1 {
		b.Multiplier = defaultMultiplier
	}
	b.Reset()
	return b
}

// Do calls op until it returns nil. Errors wrapped with backoff.Permanent stop
// the loop immediately. After the last attempt the last error is returned.
func (r *Retrier) Do(ctx context.Context, name string, op func(attempt int) error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	b := r.newBackOff()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}

		var permanent *backoff.PermanentError
		if errors.As(lastErr, &permanent) {
			return permanent.Err
		}

		// Advance the schedule on every failure so waits stay tied to the attempt count
		delay := b.NextBackOff()
		var fe *FetchError
		if errors.As(lastErr, &fe) && fe.RetryAfter > 0 {
			delay = fe.RetryAfter
		}

		if attempt == attempts {
			break
		}

		log.WithFields(log.Fields{
			"source":  name,
			"attempt": attempt,
			"delay":   delay,
			"error":   lastErr,
		}).Warn("Upstream request failed, retrying")
		upstreamRetries.WithLabelValues(name).Inc()

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter reads a Retry-After header given either as delta seconds or
// as an HTTP date. Missing or invalid values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
