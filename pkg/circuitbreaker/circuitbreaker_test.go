package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errStore = errors.New("store unavailable")

func failingCall(ctx context.Context) error { return errStore }
func okCall(ctx context.Context) error      { return nil }

func tripped(t *testing.T, opts ...Option) *CircuitBreaker {
	t.Helper()
	cb := New("test", append([]Option{WithFailureThreshold(3)}, opts...)...)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, failingCall), errStore)
	}
	assert.Equal(t, StateOpen, cb.State())
	return cb
}

func TestExecute_ClosedPassesThrough(t *testing.T) {
	cb := New("test")
	ctx := context.Background()

	assert.NoError(t, cb.Execute(ctx, okCall))
	assert.ErrorIs(t, cb.Execute(ctx, failingCall), errStore)
	assert.Equal(t, StateClosed, cb.State())

	counts := cb.Counts()
	assert.Equal(t, 2, counts.Requests)
	assert.Equal(t, 1, counts.TotalSuccesses)
	assert.Equal(t, 1, counts.TotalFailures)
}

func TestExecute_OpensAfterThreshold(t *testing.T) {
	cb := tripped(t)

	err := cb.Execute(context.Background(), okCall)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, cb.IsOpen())
}

func TestExecute_SuccessResetsFailureStreak(t *testing.T) {
	cb := New("test", WithFailureThreshold(3))
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, failingCall))
	assert.Error(t, cb.Execute(ctx, failingCall))
	assert.NoError(t, cb.Execute(ctx, okCall))
	assert.Error(t, cb.Execute(ctx, failingCall))
	assert.Error(t, cb.Execute(ctx, failingCall))

	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_HalfOpenRecovers(t *testing.T) {
	cb := tripped(t, WithTimeout(10*time.Millisecond), WithSuccessThreshold(1))

	time.Sleep(15 * time.Millisecond)

	assert.NoError(t, cb.Execute(context.Background(), okCall))
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb := tripped(t, WithTimeout(10*time.Millisecond))

	time.Sleep(15 * time.Millisecond)

	assert.ErrorIs(t, cb.Execute(context.Background(), failingCall), errStore)
	assert.Equal(t, StateOpen, cb.State())
}

func TestExecute_SuccessThresholdSpansRequests(t *testing.T) {
	cb := tripped(t, WithTimeout(10*time.Millisecond), WithSuccessThreshold(2), WithMaxHalfOpenRequests(2))

	time.Sleep(15 * time.Millisecond)
	ctx := context.Background()

	assert.NoError(t, cb.Execute(ctx, okCall))
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Execute(ctx, okCall))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBeforeRequest_HalfOpenLimitsConcurrency(t *testing.T) {
	cb := tripped(t, WithTimeout(10*time.Millisecond), WithMaxHalfOpenRequests(1))

	time.Sleep(15 * time.Millisecond)

	// First admission flips the breaker to half-open and takes the only slot.
	assert.NoError(t, cb.beforeRequest())
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.ErrorIs(t, cb.beforeRequest(), ErrTooManyRequests)
}

func TestExecuteWithFallback(t *testing.T) {
	cb := tripped(t)

	called := false
	err := cb.ExecuteWithFallback(context.Background(), okCall, func(err error) error {
		called = true
		assert.ErrorIs(t, err, ErrCircuitOpen)
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
}

func TestExecuteWithFallback_RealErrorNotSwallowed(t *testing.T) {
	cb := New("test")

	err := cb.ExecuteWithFallback(context.Background(), failingCall, func(err error) error {
		t.Fatal("fallback must not run for a plain call failure")
		return nil
	})
	assert.ErrorIs(t, err, errStore)
}

func TestWithIsFailure(t *testing.T) {
	benign := errors.New("not found")
	cb := New("test",
		WithFailureThreshold(2),
		WithIsFailure(func(err error) bool { return !errors.Is(err, benign) }),
	)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func(ctx context.Context) error { return benign }), benign)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.Error(t, cb.Execute(ctx, failingCall))
	assert.Error(t, cb.Execute(ctx, failingCall))
	assert.Equal(t, StateOpen, cb.State())
}

func TestOnStateChange(t *testing.T) {
	type transition struct{ from, to State }
	var seen []transition

	cb := New("ranking",
		WithFailureThreshold(1),
		WithTimeout(10*time.Millisecond),
		WithSuccessThreshold(1),
		WithOnStateChange(func(name string, from, to State) {
			assert.Equal(t, "ranking", name)
			seen = append(seen, transition{from, to})
		}),
	)
	ctx := context.Background()

	assert.Error(t, cb.Execute(ctx, failingCall))
	time.Sleep(15 * time.Millisecond)
	assert.NoError(t, cb.Execute(ctx, okCall))

	assert.Equal(t, []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, seen)
}

func TestReset(t *testing.T) {
	cb := tripped(t)

	cb.Reset()

	assert.True(t, cb.IsClosed())
	assert.Equal(t, Counts{}, cb.Counts())
	assert.NoError(t, cb.Execute(context.Background(), okCall))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
