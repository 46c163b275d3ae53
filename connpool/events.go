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
	"time"

	"github.com/nabbar/netserve/metrics"
)

// EventKind is the tagged discriminator of a Pool Event (spec §3).
type EventKind string

const (
	EventAdded         EventKind = "ADDED"
	EventRemoved       EventKind = "REMOVED"
	EventLimitReached  EventKind = "LIMIT_REACHED"
	EventTimeout       EventKind = "TIMEOUT"
	EventError         EventKind = "ERROR"
)

// Event is delivered to subscribers synchronously on the caller's
// goroutine (spec §4.1's subscribe contract): listeners must not block.
type Event[H comparable] struct {
	Kind     EventKind
	Handle   H
	Metadata map[string]interface{}
	Metrics  metrics.Snapshot
	Duration time.Duration
	Reason   ReleaseReason
	Cause    error
}

// Listener receives Pool Events. Must not block. The Pool dispatches every
// event after releasing its lock, so a listener may call back into the Pool
// that dispatched it (e.g. Release from an ADDED listener).
type Listener[H comparable] func(Event[H])
