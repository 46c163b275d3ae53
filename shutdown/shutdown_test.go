package shutdown_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/netserve/shutdown"
)

func TestPerformAllStepsSucceed(t *testing.T) {
	o := shutdown.New()

	var ran []string
	steps := []shutdown.Step{
		{Name: "stop_accepting_connections", Timeout: time.Second, Execute: func(string) error {
			ran = append(ran, "a")
			return nil
		}},
		{Name: "wait_connections_completion", Timeout: time.Second, Execute: func(string) error {
			ran = append(ran, "b")
			return nil
		}},
	}

	r := o.Perform("trace-1", steps, shutdown.Options{TotalTimeout: 5 * time.Second, StepTimeout: time.Second})
	assert.Equal(t, shutdown.StatusCompleted, r.Status)
	assert.Equal(t, []string{"stop_accepting_connections", "wait_connections_completion"}, r.CompletedSteps)
	assert.Empty(t, r.FailedSteps)
	assert.NoError(t, r.Err)
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestPerformRequiredStepFailsAbortsSequence(t *testing.T) {
	o := shutdown.New()

	var secondRan atomic.Bool
	steps := []shutdown.Step{
		{Name: "first", Timeout: 50 * time.Millisecond, Execute: func(string) error {
			return errors.New("boom")
		}},
		{Name: "second", Timeout: 50 * time.Millisecond, Execute: func(string) error {
			secondRan.Store(true)
			return nil
		}},
	}

	r := o.Perform("trace-2", steps, shutdown.Options{TotalTimeout: 5 * time.Second, StepTimeout: time.Second})
	assert.Equal(t, shutdown.StatusFailed, r.Status)
	require.Len(t, r.FailedSteps, 1)
	assert.Equal(t, "first", r.FailedSteps[0].Name)
	assert.Error(t, r.Err)
	assert.False(t, secondRan.Load())
}

func TestPerformOptionalStepFailureContinues(t *testing.T) {
	o := shutdown.New()

	steps := []shutdown.Step{
		{Name: "optional", Optional: true, Timeout: 50 * time.Millisecond, Execute: func(string) error {
			return errors.New("meh")
		}},
		{Name: "required", Timeout: 50 * time.Millisecond, Execute: func(string) error { return nil }},
	}

	r := o.Perform("trace-3", steps, shutdown.Options{TotalTimeout: 5 * time.Second, StepTimeout: time.Second})
	assert.Equal(t, shutdown.StatusFailed, r.Status)
	assert.Equal(t, []string{"required"}, r.CompletedSteps)
	require.Len(t, r.FailedSteps, 1)
	assert.Equal(t, "optional", r.FailedSteps[0].Name)
}

func TestPerformRetriesBeforeFailing(t *testing.T) {
	o := shutdown.New()

	var attempts int32
	steps := []shutdown.Step{
		{Name: "flaky", RetryCount: 2, Timeout: 50 * time.Millisecond, Execute: func(string) error {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return errors.New("not yet")
			}
			return nil
		}},
	}

	r := o.Perform("trace-4", steps, shutdown.Options{TotalTimeout: 10 * time.Second, StepTimeout: time.Second})
	assert.Equal(t, shutdown.StatusCompleted, r.Status)
	assert.EqualValues(t, 3, attempts)
}

func TestPerformStepTimeout(t *testing.T) {
	o := shutdown.New()

	steps := []shutdown.Step{
		{Name: "slow", Timeout: 10 * time.Millisecond, Execute: func(string) error {
			time.Sleep(200 * time.Millisecond)
			return nil
		}},
	}

	r := o.Perform("trace-5", steps, shutdown.Options{TotalTimeout: 5 * time.Second, StepTimeout: time.Second})
	assert.Equal(t, shutdown.StatusFailed, r.Status)
	require.Len(t, r.FailedSteps, 1)
}

func TestPerformRejectsConcurrentCall(t *testing.T) {
	o := shutdown.New()

	block := make(chan struct{})
	steps := []shutdown.Step{
		{Name: "blocking", Timeout: time.Second, Execute: func(string) error {
			<-block
			return nil
		}},
	}

	go func() {
		o.Perform("trace-6a", steps, shutdown.Options{TotalTimeout: 5 * time.Second, StepTimeout: 2 * time.Second})
	}()

	time.Sleep(20 * time.Millisecond)
	r := o.Perform("trace-6b", nil, shutdown.Options{TotalTimeout: time.Second, StepTimeout: time.Second})
	assert.Equal(t, shutdown.StatusFailed, r.Status)
	require.Len(t, r.FailedSteps, 1)
	assert.Equal(t, "perform", r.FailedSteps[0].Name)

	close(block)
}

func TestPerformGlobalDeadlineForces(t *testing.T) {
	o := shutdown.New()

	steps := []shutdown.Step{
		{Name: "one", Timeout: time.Second, Execute: func(string) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		}},
		{Name: "two", Timeout: time.Second, Execute: func(string) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		}},
	}

	r := o.Perform("trace-7", steps, shutdown.Options{TotalTimeout: 10 * time.Millisecond, StepTimeout: time.Second})
	assert.True(t, r.Forced)
	assert.Equal(t, shutdown.StatusForced, r.Status)
}

// TestPerformGlobalDeadlineForcesMidStep is spec §8 scenario 4: a required
// step whose Execute never returns must not fail the run at its 800ms
// StepTimeout; it is still in flight when the 1s global TotalTimeout fires.
// Expected: Status=FORCED, Forced=true, TotalTime≈1000ms (±200ms), and the
// step recorded in FailedSteps.
func TestPerformGlobalDeadlineForcesMidStep(t *testing.T) {
	o := shutdown.New()

	block := make(chan struct{})
	steps := []shutdown.Step{
		{Name: "stuck", Execute: func(string) error {
			<-block
			return nil
		}},
	}

	r := o.Perform("trace-8", steps, shutdown.Options{
		TotalTimeout: time.Second,
		StepTimeout:  800 * time.Millisecond,
	})
	close(block)

	assert.True(t, r.Forced)
	assert.Equal(t, shutdown.StatusForced, r.Status)
	assert.InDelta(t, time.Second, r.TotalTime, float64(200*time.Millisecond))
	require.Len(t, r.FailedSteps, 1)
	assert.Equal(t, "stuck", r.FailedSteps[0].Name)
}
