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

// Package grpcconn binds the generic connpool.Pool to a gRPC stream id
// (component C4). A stream has no single comparable handle the way a
// net.Conn does, so this adapter keys entries by a string id minted per
// call and tracks a context.CancelFunc alongside so closeAll can actually
// unblock an in-flight stream instead of merely bookkeeping it.
package grpcconn

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nabbar/netserve/connpool"
	"github.com/nabbar/netserve/metrics"
)

// Adapter owns a connpool.Pool[string] keyed by stream id, plus the
// cancel funcs needed to unblock in-flight streams on release.
type Adapter struct {
	pool *connpool.Pool[string]

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func New(opt connpool.Options, reg *metrics.Registry) *Adapter {
	p := connpool.New[string](opt, reg)
	a := &Adapter{pool: p, cancels: make(map[string]context.CancelFunc)}

	p.Subscribe(connpool.EventRemoved, func(ev connpool.Event[string]) {
		a.mu.Lock()
		cancel, ok := a.cancels[ev.Handle]
		delete(a.cancels, ev.Handle)
		a.mu.Unlock()
		if ok {
			cancel()
		}
	})

	return a
}

func (a *Adapter) Pool() *connpool.Pool[string] { return a.pool }

// Admit tries to admit streamID, arming ctx's cancel as the protocol-
// specific cleanup invoked when the pool releases this entry. Returns the
// (possibly pool-scoped) context the handler should run under, and
// whether admission succeeded; on failure the caller returns
// codes.ResourceExhausted per spec §6.
func (a *Adapter) Admit(ctx context.Context, streamID, remotePeer string) (context.Context, bool) {
	cctx, cancel := context.WithCancel(ctx)

	res := a.pool.TryAdmit(streamID, remotePeer, nil)
	if !res.Admitted {
		cancel()
		return ctx, false
	}

	a.mu.Lock()
	a.cancels[streamID] = cancel
	a.mu.Unlock()

	return cctx, true
}

// Release releases streamID with the normal-close reason; the server
// interceptor calls this when the stream handler returns.
func (a *Adapter) Release(streamID string) {
	a.pool.Release(streamID, connpool.ReasonNormalClose)
}

// StreamInterceptor admits the stream, runs handler under the pool-scoped
// context, touches the entry on every message in, and releases on return.
func (a *Adapter) StreamInterceptor(id IDFactory) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		streamID := id()

		cctx, ok := a.Admit(ss.Context(), streamID, "")
		if !ok {
			return status.Error(codes.ResourceExhausted, "connection pool is full")
		}
		defer a.Release(streamID)

		wrapped := &serverStream{ServerStream: ss, ctx: cctx, onRecv: func() {
			a.pool.Touch(streamID, nil)
		}}

		return handler(srv, wrapped)
	}
}

// IDFactory mints a per-stream identifier; callers typically supply
// github.com/google/uuid.NewString.
type IDFactory func() string

// CloseAll releases every tracked stream, unblocking its handler via the
// associated cancel func, within deadline (spec §4.5's
// protocol_force_shutdown for gRPC, layered under the pool's own
// closeAll).
func (a *Adapter) CloseAll(deadline time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	a.pool.CloseAll(ctx, deadline)
}

type serverStream struct {
	grpc.ServerStream
	ctx    context.Context
	onRecv func()
}

func (s *serverStream) Context() context.Context { return s.ctx }

func (s *serverStream) RecvMsg(m interface{}) error {
	err := s.ServerStream.RecvMsg(m)
	if err == nil {
		s.onRecv()
	}
	return err
}
