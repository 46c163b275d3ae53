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

package connpool

import (
	"context"
	"sync"
	"time"

	"github.com/nabbar/netserve/errors"
	"github.com/nabbar/netserve/metrics"
	"github.com/nabbar/netserve/semaphore"
)

const (
	ErrorPoolFull errors.CodeError = iota + errors.MinPkgConnPool
	ErrorInvalidHandle
	ErrorDuplicateHandle
)

func init() {
	errors.RegisterIdFctMessage(errors.MinPkgConnPool, func(code errors.CodeError) string {
		switch code {
		case ErrorPoolFull:
			return "connection pool is full"
		case ErrorInvalidHandle:
			return "handle failed protocol validation"
		case ErrorDuplicateHandle:
			return "handle is already tracked"
		}
		return ""
	})
}

// AdmitReason is why tryAdmit was rejected.
type AdmitReason string

const (
	ReasonPoolFull  AdmitReason = "POOL_FULL"
	ReasonInvalid   AdmitReason = "INVALID"
	ReasonDuplicate AdmitReason = "DUPLICATE"
)

// AdmitResult is tryAdmit's return value (spec §4.1).
type AdmitResult[H comparable] struct {
	Admitted bool
	Entry    *Entry[H]
	Reason   AdmitReason
}

// Options configures a Pool at construction (bound from Listening Options,
// spec §3).
type Options struct {
	Name                string
	MaxConnections      int
	KeepAliveTimeout    time.Duration
	CloseAllConcurrency int
}

// Pool owns every Connection Entry for a single protocol server instance
// (spec §4.1). All mutations are serialized behind mu, which is the
// pool's single-writer domain (spec §5): listener callbacks may run on any
// goroutine and must call through tryAdmit/release/touch, which themselves
// take the lock.
type Pool[H comparable] struct {
	opt Options
	met *metrics.PoolMetrics
	sem *semaphore.Semaphore

	mu      sync.Mutex
	entries map[H]*Entry[H]
	subs    map[EventKind][]Listener[H]

	closeOnce sync.Once
	closeDone chan struct{}
}

// Validator reports whether a handle is acceptable for admission
// (protocol-specific, e.g. reject a handle with no remote address).
type Validator[H comparable] func(handle H) bool

// New constructs a Pool bound to reg's metrics for opt.Name.
func New[H comparable](opt Options, reg *metrics.Registry) *Pool[H] {
	if opt.CloseAllConcurrency <= 0 {
		opt.CloseAllConcurrency = 16
	}
	return &Pool[H]{
		opt:     opt,
		met:     reg.For(opt.Name),
		sem:     semaphore.New(opt.CloseAllConcurrency),
		entries: make(map[H]*Entry[H]),
		subs:    make(map[EventKind][]Listener[H]),
	}
}

// Subscribe registers listener for events of kind. Fan-out is synchronous
// on the caller's goroutine (spec §4.1): listener must not block.
func (p *Pool[H]) Subscribe(kind EventKind, listener Listener[H]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[kind] = append(p.subs[kind], listener)
}

func (p *Pool[H]) emit(ev Event[H]) {
	p.mu.Lock()
	subs := p.subs[ev.Kind]
	p.mu.Unlock()

	for _, l := range subs {
		l(ev)
	}
}

// TryAdmit attempts to admit handle (spec §4.1). validate is the
// protocol-specific admission predicate; nil always passes. Like
// release()/ReleaseError(), every event is emitted after mu is released so
// a subscriber that calls back into another Pool method (e.g. Release, as
// spec §4.1 explicitly permits) cannot deadlock on the non-reentrant mutex.
func (p *Pool[H]) TryAdmit(handle H, remotePeer string, validate Validator[H]) AdmitResult[H] {
	p.mu.Lock()

	if validate != nil && !validate(handle) {
		p.met.Rejected(string(ReasonInvalid))
		snap := p.met.Snapshot()
		p.mu.Unlock()
		p.emit(Event[H]{Kind: EventError, Handle: handle, Metrics: snap})
		return AdmitResult[H]{Reason: ReasonInvalid}
	}

	if _, dup := p.entries[handle]; dup {
		p.met.Rejected(string(ReasonDuplicate))
		p.mu.Unlock()
		return AdmitResult[H]{Reason: ReasonDuplicate}
	}

	if p.opt.MaxConnections > 0 && len(p.entries) >= p.opt.MaxConnections {
		p.met.Rejected(string(ReasonPoolFull))
		snap := p.met.Snapshot()
		p.mu.Unlock()
		p.emit(Event[H]{Kind: EventLimitReached, Handle: handle, Metrics: snap})
		return AdmitResult[H]{Reason: ReasonPoolFull}
	}

	now := time.Now()
	e := newEntry[H](handle, remotePeer, now)
	e.State = StateActive
	p.entries[handle] = e
	p.armTimer(e)

	p.met.Admitted()
	snap := p.met.Snapshot()
	p.mu.Unlock()

	p.emit(Event[H]{Kind: EventAdded, Handle: handle, Metrics: snap})

	return AdmitResult[H]{Admitted: true, Entry: e}
}

// armTimer starts (or restarts) the keep-alive timer for e, lazily: it
// fires once at the full keepAliveTimeoutMs window, and on firing checks
// whether lastActivity has moved since — if so, it rearms for the
// remainder instead of releasing immediately (spec §4.1 algorithmic
// notes). This keeps exactly one live timer per entry (I1).
func (p *Pool[H]) armTimer(e *Entry[H]) {
	if p.opt.KeepAliveTimeout <= 0 {
		return
	}
	handle := e.Handle
	e.timer = time.AfterFunc(p.opt.KeepAliveTimeout, func() {
		p.onTimerFire(handle)
	})
}

func (p *Pool[H]) onTimerFire(handle H) {
	p.mu.Lock()

	e, ok := p.entries[handle]
	if !ok {
		p.mu.Unlock()
		return
	}

	idle := time.Since(e.LastActivity)
	if idle < p.opt.KeepAliveTimeout {
		remaining := p.opt.KeepAliveTimeout - idle
		e.timer = time.AfterFunc(remaining, func() {
			p.onTimerFire(handle)
		})
		p.mu.Unlock()
		return
	}

	p.mu.Unlock()
	p.release(handle, ReasonKeepAliveTimeout)
}

// Touch advances lastActivity/requestCount for handle (spec §4.1); no-op
// if absent.
func (p *Pool[H]) Touch(handle H, attrUpdates map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[handle]
	if !ok {
		return
	}
	e.touch(time.Now(), attrUpdates)
}

// IsHealthy reports whether handle is tracked and within its keep-alive
// window (spec §4.1).
func (p *Pool[H]) IsHealthy(handle H) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[handle]
	if !ok {
		return false
	}
	if p.opt.KeepAliveTimeout <= 0 {
		return true
	}
	return time.Since(e.LastActivity) <= p.opt.KeepAliveTimeout
}

// Release is idempotent (spec §4.1/P6): a second call for the same handle
// is a no-op, metrics unchanged.
func (p *Pool[H]) Release(handle H, reason ReleaseReason) {
	p.release(handle, reason)
}

func (p *Pool[H]) release(handle H, reason ReleaseReason) {
	p.mu.Lock()

	e, ok := p.entries[handle]
	if !ok {
		p.mu.Unlock()
		return
	}

	e.State = StateReleasing
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(p.entries, handle)
	dur := time.Since(e.ConnectTime)

	p.met.Released(string(reason))
	snap := p.met.Snapshot()
	p.mu.Unlock()

	e.State = StateGone
	p.emit(Event[H]{Kind: EventRemoved, Handle: handle, Metrics: snap, Duration: dur, Reason: reason, Cause: nil})
	if reason == ReasonKeepAliveTimeout {
		p.emit(Event[H]{Kind: EventTimeout, Handle: handle, Metrics: snap, Duration: dur, Reason: reason})
	}
}

// ReleaseError releases handle and tags the error on the emitted events.
func (p *Pool[H]) ReleaseError(handle H, cause error) {
	p.mu.Lock()
	e, ok := p.entries[handle]
	if !ok {
		p.mu.Unlock()
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(p.entries, handle)
	dur := time.Since(e.ConnectTime)
	p.met.Released(string(ReasonError))
	p.met.Errored()
	snap := p.met.Snapshot()
	p.mu.Unlock()

	p.emit(Event[H]{Kind: EventError, Handle: handle, Metrics: snap, Duration: dur, Reason: ReasonError, Cause: cause})
	p.emit(Event[H]{Kind: EventRemoved, Handle: handle, Metrics: snap, Duration: dur, Reason: ReasonError, Cause: cause})
}

// SweepStale releases every entry whose keep-alive window has elapsed,
// tagged stale_connection, and returns the count released (spec §4.1).
func (p *Pool[H]) SweepStale() int {
	p.mu.Lock()
	var stale []H
	now := time.Now()
	for h, e := range p.entries {
		if p.opt.KeepAliveTimeout > 0 && now.Sub(e.LastActivity) > p.opt.KeepAliveTimeout {
			stale = append(stale, h)
		}
	}
	p.mu.Unlock()

	for _, h := range stale {
		p.release(h, ReasonStaleConnection)
	}
	return len(stale)
}

// CloseAll releases every entry with reason pool_shutdown, fanning the
// releases out over at most CloseAllConcurrency goroutines. It does not
// wait for connections to close on their own first: every tracked entry is
// released as soon as a fan-out slot is free. deadline bounds only the wait
// for a free slot (past it, the remaining entries are released inline);
// ctx bounds how long this call waits for the pass to finish. Idempotent: a
// concurrent second call observes the same in-flight completion instead of
// starting a second release pass (Open Question decision #2).
func (p *Pool[H]) CloseAll(ctx context.Context, deadline time.Duration) {
	p.mu.Lock()
	if p.closeDone == nil {
		p.closeDone = make(chan struct{})
	}
	done := p.closeDone
	p.mu.Unlock()

	started := false
	p.closeOnce.Do(func() {
		started = true
		go p.runCloseAll(done, deadline)
	})

	if !started {
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (p *Pool[H]) runCloseAll(done chan struct{}, deadline time.Duration) {
	defer close(done)

	cctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	p.mu.Lock()
	handles := make([]H, 0, len(p.entries))
	for h := range p.entries {
		handles = append(handles, h)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		h := h
		wg.Add(1)
		if err := p.sem.Run(cctx, func() {
			defer wg.Done()
			p.release(h, ReasonPoolShutdown)
		}); err != nil {
			wg.Done()
			p.release(h, ReasonPoolShutdown)
		}
	}
	wg.Wait()

	// Release any entry still tracked, i.e. one admitted while the pass
	// above was running (release removes an entry from the map before its
	// protocol cleanup runs, so a slow cleanup leaves nothing behind here).
	p.mu.Lock()
	survivors := make([]H, 0, len(p.entries))
	for h := range p.entries {
		survivors = append(survivors, h)
	}
	p.mu.Unlock()

	for _, h := range survivors {
		p.release(h, ReasonPoolShutdown)
	}
}

// Metrics returns a snapshot (spec §4.1's metrics()).
func (p *Pool[H]) Metrics() metrics.Snapshot {
	return p.met.Snapshot()
}

// ActiveConnections returns the current live entry count.
func (p *Pool[H]) ActiveConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
