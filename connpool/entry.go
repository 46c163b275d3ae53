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

// Package connpool is the protocol-agnostic connection pool (component C3):
// it tracks one Entry per live connection handle, enforces an admission
// cap, expires idle connections via a lazily-rearmed keep-alive timer, and
// emits a typed event stream. It is generic over the handle type so each
// protocol adapter (connpool/httpconn, connpool/grpcconn, connpool/wsconn)
// can bind it to its own connection identity without reflection.
package connpool

import (
	"time"
)

// State is a Connection Entry's position in the admitted→gone lifecycle
// (spec §4.1 state machine).
type State uint8

const (
	StateAdmitted State = iota
	StateActive
	StateIdle
	StateReleasing
	StateGone
)

func (s State) String() string {
	switch s {
	case StateAdmitted:
		return "ADMITTED"
	case StateActive:
		return "ACTIVE"
	case StateIdle:
		return "IDLE"
	case StateReleasing:
		return "RELEASING"
	case StateGone:
		return "GONE"
	default:
		return "UNKNOWN"
	}
}

// ReleaseReason tags why an entry was released; carried on the REMOVED
// event and as the release() argument.
type ReleaseReason string

const (
	ReasonNormalClose     ReleaseReason = "normal_close"
	ReasonError           ReleaseReason = "error"
	ReasonKeepAliveTimeout ReleaseReason = "keep_alive_timeout"
	ReasonStaleConnection ReleaseReason = "stale_connection"
	ReasonPoolShutdown    ReleaseReason = "pool_shutdown"
)

// Entry is one live connection's bookkeeping record (spec §3's Connection
// Entry), generic over the protocol's own handle type H. Mutated only by
// the owning Pool's single-writer loop (spec §5 scheduling model).
type Entry[H comparable] struct {
	Handle       H
	RemotePeer   string
	ConnectTime  time.Time
	LastActivity time.Time
	RequestCount uint64
	Attributes   map[string]interface{}
	State        State

	timer *time.Timer
}

func newEntry[H comparable](handle H, remotePeer string, now time.Time) *Entry[H] {
	return &Entry[H]{
		Handle:       handle,
		RemotePeer:   remotePeer,
		ConnectTime:  now,
		LastActivity: now,
		State:        StateAdmitted,
		Attributes:   make(map[string]interface{}),
	}
}

// touch advances lastActivity and requestCount (I2/I3), and moves the
// entry back to ACTIVE if it had gone IDLE.
func (e *Entry[H]) touch(now time.Time, attrUpdates map[string]interface{}) {
	if now.After(e.LastActivity) {
		e.LastActivity = now
	}
	e.RequestCount++
	e.State = StateActive

	for k, v := range attrUpdates {
		e.Attributes[k] = v
	}
}
