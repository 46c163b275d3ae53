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

// Package httpconn binds the generic connpool.Pool to net.Conn, the
// handle type for plain HTTP/1.1, HTTPS, and HTTP/2 listeners (component
// C4). A net.Conn is comparable by interface identity, so it works
// directly as the pool's H type parameter.
package httpconn

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/nabbar/netserve/connpool"
	"github.com/nabbar/netserve/metrics"
)

// Adapter owns a connpool.Pool[net.Conn] plus the net/http ConnState
// hook that feeds it, and closes the underlying socket once the pool
// emits REMOVED (spec §4.1's protocol-specific cleanup(handle)).
type Adapter struct {
	pool *connpool.Pool[net.Conn]
}

// New constructs an Adapter, registering the close-on-REMOVED cleanup.
func New(opt connpool.Options, reg *metrics.Registry) *Adapter {
	p := connpool.New[net.Conn](opt, reg)
	a := &Adapter{pool: p}
	p.Subscribe(connpool.EventRemoved, func(ev connpool.Event[net.Conn]) {
		if ev.Handle != nil {
			_ = ev.Handle.Close()
		}
	})
	return a
}

func (a *Adapter) Pool() *connpool.Pool[net.Conn] { return a.pool }

// ConnState is installed as an *http.Server's ConnState hook: it admits on
// StateNew, touches on StateActive, and releases on StateClosed/
// StateHijacked (the net/http lifecycle's own "this connection is gone"
// signals).
func (a *Adapter) ConnState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		a.pool.TryAdmit(conn, conn.RemoteAddr().String(), nil)
	case http.StateActive:
		a.pool.Touch(conn, nil)
	case http.StateClosed:
		a.pool.Release(conn, connpool.ReasonNormalClose)
	case http.StateHijacked:
		a.pool.Release(conn, connpool.ReasonNormalClose)
	}
}

// CloseAll releases every tracked connection (spec §4.5 step
// force_close_connections).
func (a *Adapter) CloseAll(deadline time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	a.pool.CloseAll(ctx, deadline)
}
