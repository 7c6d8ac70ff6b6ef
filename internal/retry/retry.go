/*
Copyright 2024 DuoTale Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package retry wraps remote calls with per-attempt timeouts and
// exponential-backoff retries. It does not classify errors itself: call
// sites mark errors that are not worth retrying with Permanent, and
// cancellation always propagates immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// Policy bounds a retried operation: at most MaxAttempts runs, starting at
// InitialDelay between failures and growing by Factor up to MaxInterval.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64
	MaxInterval  time.Duration
}

// DefaultPolicy matches the configured retry defaults for upstream model
// calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		Factor:       2,
		MaxInterval:  30 * time.Second,
	}
}

// Permanent marks err as not worth retrying. Do re-raises it without
// running further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// WithTimeout races op against a timer. If the timer fires first the
// operation's context is cancelled and a timeout error is returned; op is
// expected to honor its context so the losing goroutine unwinds.
//
// Parameters:
// - ctx context.Context: The parent context.
// - timeout time.Duration: How long op may run.
// - op func(ctx context.Context) error: The operation to bound.
//
// Returns:
// - error: op's error, or a wrapped context.DeadlineExceeded on timeout.
func WithTimeout(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return errors.Wrapf(context.DeadlineExceeded, "operation timed out after %s", timeout)
		}
		return opCtx.Err()
	}
}

// Do runs op under the given policy, backing off exponentially between
// failed attempts. Errors wrapped with Permanent and context cancellations
// stop the loop immediately; everything else is retried until the attempt
// budget runs out, in which case the last error is returned.
//
// Parameters:
// - ctx context.Context: Cancelling it aborts the wait between attempts.
// - policy Policy: The attempt and delay bounds.
// - op func(ctx context.Context) error: The operation to retry.
//
// Returns:
// - error: nil on success, otherwise the terminal error.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialDelay
	b.Multiplier = policy.Factor
	b.MaxInterval = policy.MaxInterval
	b.MaxElapsedTime = 0 // bounded by attempts, not wall time

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	operation := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}
