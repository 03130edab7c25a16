package errors

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(context.Context) error { return stderrors.New("503 from provider") }
func passing(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker for the drive provider with max 3 failures
	cb := NewCircuitBreaker("google_drive", WithMaxFailures(3), WithResetTimeout(time.Second))
	ctx := context.Background()

	// When: three calls fail
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failing)
	}

	// Then: the circuit is open and the next call never runs
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, stderrors.Is(err, ErrCircuitOpen))
	assert.Equal(t, CategoryNetwork, GetCategory(err))
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name      string
		probe     func(context.Context) error
		wantState State
	}{
		{"probe succeeds closes", passing, StateClosed},
		{"probe fails reopens", failing, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a tripped breaker past its reset timeout
			cb := NewCircuitBreaker("dropbox", WithMaxFailures(1), WithResetTimeout(20*time.Millisecond))
			_ = cb.Execute(context.Background(), failing)
			require.Equal(t, StateOpen, cb.State())
			time.Sleep(30 * time.Millisecond)
			require.Equal(t, StateHalfOpen, cb.State())

			// When: the probe runs
			_ = cb.Execute(context.Background(), tt.probe)

			// Then: the breaker settles accordingly
			assert.Equal(t, tt.wantState, cb.State())
		})
	}
}

func TestCircuitBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	// Given: a breaker and a cancelled context
	cb := NewCircuitBreaker("google_drive", WithMaxFailures(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When: the call returns the cancellation
	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })

	// Then: the breaker stays closed
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitExecute_ReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("dropbox")

	n, err := CircuitExecute(context.Background(), cb, func(context.Context) (int, error) {
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	// Given: two failures below the limit
	cb := NewCircuitBreaker("google_drive", WithMaxFailures(5))
	ctx := context.Background()
	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)
	require.Equal(t, 2, cb.Failures())
	require.Equal(t, StateClosed, cb.State())

	// When: a call succeeds
	require.NoError(t, cb.Execute(ctx, passing))

	// Then: the count starts over
	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker("dropbox", WithMaxFailures(10))

	var wg sync.WaitGroup
	var done atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(context.Background(), passing)
			} else {
				_ = cb.Execute(context.Background(), failing)
			}
			done.Add(1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(20), done.Load())
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("google_drive")

	assert.Equal(t, "google_drive", cb.Name())
	assert.Equal(t, 5, cb.maxFailures)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
	assert.Equal(t, "closed", cb.State().String())
}
