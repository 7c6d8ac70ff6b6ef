package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/duotale/duotale/internal/retry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Factor:       2,
		MaxInterval:  5 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset")
	err := retry.Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	rejected := errors.New("upstream rejected request")
	err := retry.Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return retry.Permanent(rejected)
	})
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, calls)
}

func TestDo_CancellationNeverRetried(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastPolicy(), func(ctx context.Context) error {
		calls++
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithTimeout_OpWins(t *testing.T) {
	err := retry.WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestWithTimeout_TimerWins(t *testing.T) {
	err := retry.WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeout_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry.WithTimeout(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
