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

// Package runner provides goroutine lifecycle helpers: a start/stop
// supervisor for a long-lived background loop, and a Ticker for periodic
// work. No other package of this module uses them.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FuncStart is run in its own goroutine; it should block until ctx is
// cancelled or the work is naturally done.
type FuncStart func(ctx context.Context) error

// FuncStop runs synchronously from Stop to tear down whatever FuncStart set
// up; it receives a fresh context bounding how long teardown may take.
type FuncStop func(ctx context.Context) error

// Runner supervises one FuncStart/FuncStop pair. Grounded on
// nabbar-golib/runner/startStop's New(start, stop)/Start/Stop/IsRunning/
// Uptime contract (observed via its test suite; this subpackage also has
// no retrievable non-test source).
type Runner struct {
	start FuncStart
	stop  FuncStop

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Int64 // unix nano; 0 when not running
}

func New(start FuncStart, stop FuncStop) *Runner {
	return &Runner{start: start, stop: stop}
}

// Start launches the FuncStart in a new goroutine. Returns immediately;
// a second Start call while already running is a no-op.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return nil
	}

	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running.Store(true)
	r.started.Store(time.Now().UnixNano())

	done := r.done
	go func() {
		defer close(done)
		defer r.running.Store(false)
		defer r.started.Store(0)
		_ = r.start(cctx)
	}()

	return nil
}

// Stop cancels the running FuncStart's context, waits for it to return,
// then invokes FuncStop with the given ctx. A Stop call while not running,
// or a second Stop call once the first has already torn down, is a no-op.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
	}

	if r.stop != nil {
		return r.stop(ctx)
	}
	return nil
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Uptime returns the duration since Start, or 0 if not running.
func (r *Runner) Uptime() time.Duration {
	s := r.started.Load()
	if s == 0 {
		return 0
	}
	return time.Since(time.Unix(0, s))
}
