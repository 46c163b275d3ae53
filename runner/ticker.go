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

package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickInterval is used by NewTicker when the requested duration is too
// small to be useful (teacher's ticker applies the same floor).
const DefaultTickInterval = 1 * time.Second

const minTickInterval = 10 * time.Millisecond

// FuncTick is invoked on every tick; a returned error is swallowed (logged
// by the caller if it wants) rather than stopping the ticker.
type FuncTick func(ctx context.Context, tck *time.Ticker) error

// Ticker runs fn periodically until Stop or its parent context is done.
// Grounded on nabbar-golib/runner/ticker's New(duration, fn)/Start/Stop/
// Restart/IsRunning/Uptime contract (observed via its test suite).
type Ticker struct {
	d  time.Duration
	fn FuncTick

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Int64
}

func NewTicker(d time.Duration, fn FuncTick) *Ticker {
	if d < minTickInterval {
		d = DefaultTickInterval
	}
	return &Ticker{d: d, fn: fn}
}

func (t *Ticker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return nil
	}

	cctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running.Store(true)
	t.started.Store(time.Now().UnixNano())

	done := t.done
	go func() {
		defer close(done)
		defer t.running.Store(false)
		defer t.started.Store(0)

		tck := time.NewTicker(t.d)
		defer tck.Stop()

		for {
			select {
			case <-cctx.Done():
				return
			case <-tck.C:
				if t.fn != nil {
					_ = t.fn(cctx, tck)
				}
			}
		}
	}()

	return nil
}

func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

// Restart stops then starts the ticker atomically from the caller's view.
func (t *Ticker) Restart(ctx context.Context) error {
	if err := t.Stop(ctx); err != nil {
		return err
	}
	return t.Start(ctx)
}

func (t *Ticker) IsRunning() bool {
	return t.running.Load()
}

func (t *Ticker) Uptime() time.Duration {
	s := t.started.Load()
	if s == 0 {
		return 0
	}
	return time.Since(time.Unix(0, s))
}
