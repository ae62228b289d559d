package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream 503")

func fail() error { return errUpstream }
func ok() error   { return nil }

func TestBreaker_TripsAfterExactlyFailureThreshold(t *testing.T) {
	b := New("sentiment", Settings{FailureThreshold: 3, SuccessThreshold: 2, Timeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Call(fail), errUpstream)
		assert.Equal(t, StateClosed, b.State())
	}
	assert.ErrorIs(t, b.Call(fail), errUpstream)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not invoke fn")
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := New("technical", Settings{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}, nil)

	_ = b.Call(fail)
	require.NoError(t, b.Call(ok))
	_ = b.Call(fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b := New("ai_model", Settings{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 30 * time.Millisecond}, nil)

	_ = b.Call(fail)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State(), "state is observable without a call")

	require.NoError(t, b.Call(ok))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Call(ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("ai_model", Settings{FailureThreshold: 1, SuccessThreshold: 3, Timeout: 30 * time.Millisecond}, nil)

	_ = b.Call(fail)
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Call(ok))
	assert.ErrorIs(t, b.Call(fail), errUpstream)
	assert.Equal(t, StateOpen, b.State())
}

func cancelled() error { return context.Canceled }

func TestBreaker_CancellationDoesNotCount(t *testing.T) {
	b := New("sentiment", Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, nil)

	assert.ErrorIs(t, b.Call(cancelled), context.Canceled)
	assert.Equal(t, StateClosed, b.State())

	// nor does it break a failure streak
	b = New("sentiment", Settings{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}, nil)
	_ = b.Call(fail)
	_ = b.Call(cancelled)
	_ = b.Call(fail)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_CancelledTrialsNeverClose(t *testing.T) {
	b := New("ai_model", Settings{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 30 * time.Millisecond}, nil)

	_ = b.Call(fail)
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	assert.ErrorIs(t, b.Call(cancelled), context.Canceled)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Call(cancelled), ErrCircuitOpen)
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, b.Call(ok))
	require.NoError(t, b.Call(ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAdmitsOneTrialAtATime(t *testing.T) {
	b := New("sentiment", Settings{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 30 * time.Millisecond}, nil)
	_ = b.Call(fail)
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	entered := make(chan struct{})
	release := make(chan struct{})
	firstErr := make(chan error, 1)
	go func() {
		firstErr <- b.Call(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	called := false
	assert.ErrorIs(t, b.Call(func() error { called = true; return nil }), ErrCircuitOpen)
	assert.False(t, called)

	close(release)
	require.NoError(t, <-firstErr)
	require.NoError(t, b.Call(ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	b := New("technical", Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, nil)
	assert.Panics(t, func() { _ = b.Call(func() error { panic("boom") }) })
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_ReportsTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	b := New("market_data", Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 20 * time.Millisecond},
		func(_ string, _, to State) {
			mu.Lock()
			seen = append(seen, to)
			mu.Unlock()
		})

	_ = b.Call(fail)
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Call(ok))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, seen)
}

func TestDo_ReturnsTypedResult(t *testing.T) {
	b := New("prices", Settings{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}, nil)
	v, err := Do(b, func() (float64, error) { return 101.5, nil })
	require.NoError(t, err)
	assert.Equal(t, 101.5, v)
}

func TestRegistry_IndependentBreakers(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, nil, nil)

	_ = r.Get("sentiment").Call(fail)
	assert.Equal(t, StateOpen, r.Get("sentiment").State())
	assert.Equal(t, StateClosed, r.Get("technical").State())
	assert.Same(t, r.Get("sentiment"), r.Get("sentiment"))
	assert.Equal(t, []string{"sentiment", "technical"}, r.Names())
	assert.Equal(t, map[string]State{"sentiment": StateOpen, "technical": StateClosed}, r.States())
}
