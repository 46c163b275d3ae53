/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package shutdown implements the Graceful Shutdown Orchestrator
// (component C5): it runs a provided ordered step list under a global
// hard deadline, retrying each step with linear backoff, and records a
// ShutdownResult. Grounded on nabbar-golib/httpserver/run/server.go's
// staged stop (a context-timeout-bounded Close vs graceful Shutdown) and
// nabbar-golib/runner/startStop's start/stop state bookkeeping, combined
// into the step-sequence model spec §4.2 asks for.
package shutdown

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/nabbar/netserve/errors"
)

const (
	ErrorAlreadyRunning errors.CodeError = iota + errors.MinPkgShutdown
)

func init() {
	errors.RegisterIdFctMessage(errors.MinPkgShutdown, func(code errors.CodeError) string {
		switch code {
		case ErrorAlreadyRunning:
			return "shutdown already in progress"
		}
		return ""
	})
}

// Status is the ShutdownResult's monotonic state (spec §3), except FORCED
// which may override any non-COMPLETED state.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDraining   Status = "DRAINING"
	StatusCompleting Status = "COMPLETING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusForced     Status = "FORCED"
)

// Step is one ordered shutdown action (spec §3's Shutdown Step). Required
// defaults to true (spec §4.2); set Optional to opt a step out of
// aborting the whole sequence on exhausted retries.
type Step struct {
	Name        string
	Description string
	Timeout     time.Duration
	Optional    bool
	RetryCount  int
	Execute     func(traceID string) error
}

// FailedStep records one step's exhausted-retries failure.
type FailedStep struct {
	Name     string
	Err      error
	Attempts int
}

// Result is the ShutdownResult value (spec §3), returned by Perform. Err
// aggregates every FailedStep's error via hashicorp/go-multierror so
// callers can log or wrap a single error instead of walking FailedSteps.
type Result struct {
	Status         Status
	TotalTime      time.Duration
	CompletedSteps []string
	FailedSteps    []FailedStep
	Forced         bool
	Err            error
}

// Options configures one Perform call (spec §4.2's perform contract).
type Options struct {
	TotalTimeout time.Duration
	StepTimeout  time.Duration
	DrainDelay   time.Duration
}

// Orchestrator runs a step list at most once concurrently; a second
// Perform call while one is running returns a FAILED result immediately
// (spec §4.2 step 1) rather than queuing or racing a second pass.
type Orchestrator struct {
	mu      sync.Mutex
	running bool
}

func New() *Orchestrator {
	return &Orchestrator{}
}

// Perform runs steps in order under opt's layered deadlines (spec §4.2).
func (o *Orchestrator) Perform(traceID string, steps []Step, opt Options) Result {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		err := ErrorAlreadyRunning.Error(nil)
		return Result{Status: StatusFailed, FailedSteps: []FailedStep{{Name: "perform", Err: err}}, Err: err}
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	start := time.Now()
	result := Result{Status: StatusInProgress}

	var forced atomic.Bool
	forcedCh := make(chan struct{})
	globalDeadline := time.AfterFunc(opt.TotalTimeout, func() {
		forced.Store(true)
		close(forcedCh)
	})
	defer globalDeadline.Stop()

	var aggErr *multierror.Error

stepLoop:
	for _, step := range steps {
		if forced.Load() {
			result.Forced = true
			result.Status = StatusForced
			break stepLoop
		}

		timeout := step.Timeout
		if timeout <= 0 {
			timeout = opt.StepTimeout
		}

		attempts := 1 + step.RetryCount
		var lastErr error
		ok := false
		forcedMidStep := false

	attemptLoop:
		for attempt := 1; attempt <= attempts; attempt++ {
			if attempt > 1 {
				select {
				case <-time.After(time.Duration(attempt-1) * time.Second):
				case <-forcedCh:
					forcedMidStep = true
					break attemptLoop
				}
			}

			lastErr, forcedMidStep = runStepWithTimeout(step, traceID, timeout, forcedCh, attempt == attempts)
			if lastErr == nil {
				ok = true
				break
			}
			if forcedMidStep {
				break
			}
		}

		if forcedMidStep {
			fs := FailedStep{Name: step.Name, Err: lastErr, Attempts: attempts}
			result.FailedSteps = append(result.FailedSteps, fs)
			if lastErr != nil {
				aggErr = multierror.Append(aggErr, lastErr)
			}
			result.Forced = true
			result.Status = StatusForced
			break stepLoop
		}

		if ok {
			result.CompletedSteps = append(result.CompletedSteps, step.Name)
			continue
		}

		fs := FailedStep{Name: step.Name, Err: lastErr, Attempts: attempts}
		result.FailedSteps = append(result.FailedSteps, fs)
		if lastErr != nil {
			aggErr = multierror.Append(aggErr, lastErr)
		}

		if !step.Optional {
			result.Status = StatusFailed
			break stepLoop
		}
	}

	if result.Status == StatusInProgress {
		if opt.DrainDelay > 0 {
			result.Status = StatusDraining
			time.Sleep(opt.DrainDelay)
		}
		result.Status = StatusCompleting
		if len(result.FailedSteps) == 0 {
			result.Status = StatusCompleted
		} else {
			result.Status = StatusFailed
		}
	}

	if forced.Load() {
		result.Forced = true
		result.Status = StatusForced
	}

	result.TotalTime = time.Since(start)
	if aggErr != nil {
		result.Err = aggErr.ErrorOrNil()
	}
	return result
}

// runStepWithTimeout races step.Execute against both its own per-step
// timeout and forcedCh, the global hard-deadline signal (spec §5: "in-flight
// step futures receive a best-effort cancel"). A step blocked past its own
// timeout on an attempt that is not its last fails that attempt and
// retries. On its last attempt a step still running past its own timeout
// is waited for until it returns (the attempt still fails with a timeout)
// or the global deadline fires. A step still blocked when the global
// deadline fires is abandoned immediately and reported as forced,
// regardless of where in its retry loop it was.
func runStepWithTimeout(step Step, traceID string, timeout time.Duration, forcedCh <-chan struct{}, last bool) (error, bool) {
	if step.Execute == nil {
		return nil, false
	}

	done := make(chan error, 1)
	go func() {
		done <- step.Execute(traceID)
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case err := <-done:
		return err, false
	case <-forcedCh:
		return errTimeout{step: step.Name}, true
	case <-timeoutCh:
		if last {
			select {
			case <-done:
			case <-forcedCh:
				return errTimeout{step: step.Name}, true
			}
		}
		return errTimeout{step: step.Name}, false
	}
}

type errTimeout struct{ step string }

func (e errTimeout) Error() string { return "step " + e.step + " timed out" }
