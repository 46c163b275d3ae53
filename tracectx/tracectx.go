/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

// Package tracectx carries the per-request Trace Context (requestId, span,
// terminated flag, encoding, timeout) alongside a context.Context, and
// supports the async-context propagation mode of the tracing/dispatch
// wrapper: handlers resumed from a suspended continuation still observe the
// same trace id.
package tracectx

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Encoding is the wire format the protocol-specific dispatcher used to read
// the request, surfaced so handlers can make encoding-aware decisions.
type Encoding string

const (
	EncodingJSON     Encoding = "json"
	EncodingProtobuf Encoding = "protobuf"
	EncodingText     Encoding = "text"
	EncodingBinary   Encoding = "binary"
)

// Trace is the immutable-after-construction Trace Context value attached to
// every inbound call (spec §3).
type Trace struct {
	RequestID  string
	Span       trace.Span
	Terminated bool
	Encoding   Encoding
	TimeoutMS  int64
}

type ctxKey struct{}

// WithTrace returns a context carrying t, retrievable via FromContext.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the Trace stored in ctx, or nil if none was attached.
func FromContext(ctx context.Context) *Trace {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(ctxKey{}).(*Trace)
	return t
}

// RequestID is a convenience accessor returning "" when ctx carries no Trace.
func RequestID(ctx context.Context) string {
	if t := FromContext(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// Store is a concurrency-safe map[string]*Trace keyed by request id, used to
// implement async-context propagation (spec §4.3/§9): a suspended
// continuation that has lost its context.Context can still look its trace up
// by id. Grounded on nabbar-golib/context's Config[T] map semantics
// (Store/Load/Delete under a single lock), narrowed to the one key type and
// one value type this module actually needs.
type Store struct {
	mu sync.RWMutex
	m  map[string]*Trace
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{m: make(map[string]*Trace)}
}

func (s *Store) Bind(t *Trace) {
	if t == nil || t.RequestID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[t.RequestID] = t
}

func (s *Store) Lookup(requestID string) (*Trace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.m[requestID]
	return t, ok
}

func (s *Store) Release(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, requestID)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
