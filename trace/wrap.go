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

// Package trace is the Tracing/Dispatch Wrapper (component C6): for every
// inbound call it produces a Trace Context, enforces the server-draining
// gate, races the downstream handler against a per-call timeout, and
// optionally starts an otel span and/or binds the trace id into an
// async-context store for suspended continuations.
package trace

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nabbar/netserve/tracectx"
)

const (
	DefaultRequestIDHeader = "X-Request-Id"
	DefaultRequestIDName   = "requestId"
	DefaultTimeout         = 10 * time.Second
)

// IDFactory mints a fresh request id when none was supplied; defaults to
// UUIDv4 (spec §3/§4.3).
type IDFactory func() string

func defaultIDFactory() string { return uuid.NewString() }

// Options configures one Wrapper (spec §4.3's "merges default options
// with configured ..." clause).
type Options struct {
	RequestIDHeader string
	RequestIDName   string
	IDFactory       IDFactory
	Timeout         time.Duration
	TracingEnabled  bool
	Tracer          trace.Tracer

	// AsyncPropagation binds the Trace to Store so suspended
	// continuations can recover it by request id (spec §4.3/§9).
	AsyncPropagation bool
	Store            *tracectx.Store
}

func (o Options) withDefaults() Options {
	if o.RequestIDHeader == "" {
		o.RequestIDHeader = DefaultRequestIDHeader
	}
	if o.RequestIDName == "" {
		o.RequestIDName = DefaultRequestIDName
	}
	if o.IDFactory == nil {
		o.IDFactory = defaultIDFactory
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("github.com/nabbar/netserve/trace")
	}
	return o
}

// DrainChecker reports whether the owning server is currently draining
// (spec §6's drain code); Wrapper consults it on every call.
type DrainChecker func() bool

// Wrapper is the per-protocol-server instance of the tracing/dispatch
// wrapper, grounded on nabbar-golib/httpserver/types/handler.go's
// gin-context request adapter pattern (threading a context.Context with
// fields through the handler chain) generalized across HTTP, gRPC, and WS.
type Wrapper struct {
	opt   Options
	drain DrainChecker
}

func New(opt Options, drain DrainChecker) *Wrapper {
	return &Wrapper{opt: opt.withDefaults(), drain: drain}
}

// Options returns the effective (defaulted) Options this Wrapper runs
// with, so protocol servers can echo the configured request-id header
// name on their responses (spec §6's outbound echo requirement).
func (w *Wrapper) Options() Options { return w.opt }

// Next is the downstream handler invoked once the Trace Context and
// draining/timeout machinery are set up.
type Next func(ctx context.Context, t *tracectx.Trace) error

// WrapHTTP extracts the request id from header then query (spec §4.3),
// applies the drain gate and per-call timeout, and invokes next. The
// caller (the HTTP protocol server) is responsible for translating a
// returned context.DeadlineExceeded into a 408/504 response.
func (w *Wrapper) WrapHTTP(ctx context.Context, r *http.Request, next Next) error {
	id := r.Header.Get(w.opt.RequestIDHeader)
	if id == "" {
		id = r.URL.Query().Get(w.opt.RequestIDName)
	}
	return w.run(ctx, id, tracectx.EncodingJSON, next)
}

// WrapGRPCMetadata extracts the request id from gRPC metadata then a
// caller-supplied body value (spec §4.3's gRPC extraction order — metadata
// always wins when present; this order is mandated by §4.3 directly, not
// the Open Question #1 collision rule, so it is not configurable here),
// applies the drain gate and per-call timeout, and invokes next.
func (w *Wrapper) WrapGRPCMetadata(ctx context.Context, metadataID, bodyID string, next Next) error {
	id := metadataID
	if id == "" {
		id = bodyID
	}
	return w.run(ctx, id, tracectx.EncodingProtobuf, next)
}

// WrapWS extracts the request id the same way as HTTP (header then query
// on the upgrade request), applies the drain gate and per-call timeout,
// and invokes next.
func (w *Wrapper) WrapWS(ctx context.Context, headerID, queryID string, next Next) error {
	id := headerID
	if id == "" {
		id = queryID
	}
	return w.run(ctx, id, tracectx.EncodingBinary, next)
}

func (w *Wrapper) run(ctx context.Context, id string, enc tracectx.Encoding, next Next) error {
	id = strings.TrimSpace(id)
	if id == "" {
		id = w.opt.IDFactory()
	}

	terminated := w.drain != nil && w.drain()

	t := &tracectx.Trace{
		RequestID:  id,
		Terminated: terminated,
		Encoding:   enc,
		TimeoutMS:  w.opt.Timeout.Milliseconds(),
	}

	if w.opt.TracingEnabled {
		var span trace.Span
		ctx, span = w.opt.Tracer.Start(ctx, "netserve.dispatch")
		span.SetAttributes(requestIDAttr(id))
		defer span.End()
		t.Span = span
	}

	if w.opt.AsyncPropagation && w.opt.Store != nil {
		w.opt.Store.Bind(t)
		defer w.opt.Store.Release(id)
	}

	ctx = tracectx.WithTrace(ctx, t)

	cctx, cancel := context.WithTimeout(ctx, w.opt.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- next(cctx, t)
	}()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return cctx.Err()
	}
}
