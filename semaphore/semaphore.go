/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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

// Package semaphore bounds the number of goroutines concurrently releasing
// connections during closeAll (spec §4.1) and starting protocol servers
// during the supervisor's start() fan-out (spec §4.4). A negative limit
// means unbounded (every caller proceeds immediately); a zero limit uses
// MaxSimultaneous.
package semaphore

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// MaxSimultaneous is the default concurrency cap used when New is called
// with n == 0, matching the teacher's "0 means a sane default, not
// unlimited" convention (nabbar-golib/semaphore/sem.MaxSimultaneous).
func MaxSimultaneous() int {
	return 64
}

// Semaphore bounds concurrent work. A nil *Semaphore is unbounded: every
// NewWorker/NewWorkerTry call succeeds immediately.
type Semaphore struct {
	w   *semaphore.Weighted
	cap int64
}

// New returns a Semaphore allowing up to n concurrent workers. n == 0 uses
// MaxSimultaneous; n < 0 returns an unbounded Semaphore.
func New(n int) *Semaphore {
	if n < 0 {
		return &Semaphore{}
	}
	if n == 0 {
		n = MaxSimultaneous()
	}
	return &Semaphore{w: semaphore.NewWeighted(int64(n)), cap: int64(n)}
}

// Weighted returns the configured concurrency cap, or 0 if unbounded.
func (s *Semaphore) Weighted() int64 {
	if s == nil || s.w == nil {
		return 0
	}
	return s.cap
}

// NewWorker blocks until a slot is available or ctx is done.
func (s *Semaphore) NewWorker(ctx context.Context) error {
	if s == nil || s.w == nil {
		return nil
	}
	return s.w.Acquire(ctx, 1)
}

// NewWorkerTry acquires a slot without blocking; returns false if none free.
func (s *Semaphore) NewWorkerTry() bool {
	if s == nil || s.w == nil {
		return true
	}
	return s.w.TryAcquire(1)
}

// DeferWorker releases one previously acquired slot.
func (s *Semaphore) DeferWorker() {
	if s == nil || s.w == nil {
		return
	}
	s.w.Release(1)
}

// WaitAll blocks until every outstanding slot has been released, by
// acquiring the whole capacity and immediately releasing it back.
func (s *Semaphore) WaitAll(ctx context.Context) error {
	if s == nil || s.w == nil {
		return nil
	}
	if err := s.w.Acquire(ctx, s.cap); err != nil {
		return err
	}
	s.w.Release(s.cap)
	return nil
}

// Run bounds fn's execution to the semaphore's concurrency cap; used by
// closeAll and the supervisor's start() fan-out to launch goroutines
// without unbounded parallelism.
func (s *Semaphore) Run(ctx context.Context, fn func()) error {
	if err := s.NewWorker(ctx); err != nil {
		return err
	}
	go func() {
		defer s.DeferWorker()
		fn()
	}()
	return nil
}
