package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEngine = errors.New("engine down")

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures uint32, openFor time.Duration, opts ...BreakerOption) (*CircuitBreaker, *clock) {
	c := &clock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(maxFailures, openFor, opts...)
	cb.now = c.now
	return cb, c
}

func fail() error { return errEngine }

func succeed() error { return nil }

func TestCircuitBreaker_Closed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	assert.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errEngine)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	calls := 0
	err := cb.Execute(func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)

	assert.Error(t, cb.Execute(fail))
	assert.NoError(t, cb.Execute(succeed))
	assert.Error(t, cb.Execute(fail))

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_TrialSuccessCloses(t *testing.T) {
	cb, c := newTestBreaker(2, time.Minute)

	cb.Execute(fail)
	cb.Execute(fail)
	require.Equal(t, StateOpen, cb.GetState())

	c.advance(time.Minute)

	assert.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_TrialFailureReopensAtOnce(t *testing.T) {
	cb, c := newTestBreaker(5, 20*time.Millisecond)

	for i := 0; i < 5; i++ {
		cb.Execute(fail)
	}
	require.Equal(t, StateOpen, cb.GetState())

	c.advance(30 * time.Millisecond)

	calls := 0
	for i := 0; i < 5; i++ {
		cb.Execute(func() error {
			calls++
			return errEngine
		})
	}

	assert.Equal(t, 1, calls)
	assert.Equal(t, StateOpen, cb.GetState())

	// The open period restarts from the failed trial.
	c.advance(10 * time.Millisecond)
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_SingleTrialInFlight(t *testing.T) {
	cb, c := newTestBreaker(1, time.Minute)

	cb.Execute(fail)
	c.advance(time.Minute)

	started := make(chan struct{})
	finish := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cb.Execute(func() error {
			close(started)
			<-finish
			return nil
		})
	}()

	<-started
	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)

	close(finish)
	wg.Wait()

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_StateChangeHook(t *testing.T) {
	var transitions []string
	cb, c := newTestBreaker(1, time.Minute, WithStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}))

	cb.Execute(fail)
	c.advance(time.Minute)
	cb.Execute(fail)
	c.advance(time.Minute)
	cb.Execute(succeed)

	assert.Equal(t, []string{
		"closed->open",
		"open->half-open",
		"half-open->open",
		"open->half-open",
		"half-open->closed",
	}, transitions)
}
