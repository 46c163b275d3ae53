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

// Package wsconn binds the generic connpool.Pool to *websocket.Conn
// (component C4). Release sends the close frame the spec's per-protocol
// shutdown step mandates before destroying the underlying socket.
package wsconn

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nabbar/netserve/connpool"
	"github.com/nabbar/netserve/metrics"
)

// ServerShuttingDownCode/Message are the WS close frame sent on drain
// (spec §6: close code 1001) and on pool-full rejection (spec §6: close
// code 1013).
const (
	ServerShuttingDownCode    = websocket.CloseGoingAway
	ServerShuttingDownMessage = "Server shutting down"
	PoolFullCode              = 1013
	PoolFullMessage           = "connection pool is full"
)

// Adapter owns a connpool.Pool[*websocket.Conn] and closes the socket
// (after best-effort sending a close frame) once the pool emits REMOVED.
type Adapter struct {
	pool *connpool.Pool[*websocket.Conn]
}

func New(opt connpool.Options, reg *metrics.Registry) *Adapter {
	p := connpool.New[*websocket.Conn](opt, reg)
	a := &Adapter{pool: p}

	p.Subscribe(connpool.EventRemoved, func(ev connpool.Event[*websocket.Conn]) {
		if ev.Handle == nil {
			return
		}
		code := websocket.CloseNormalClosure
		msg := ""
		switch {
		case ev.Reason == connpool.ReasonPoolShutdown:
			code = ServerShuttingDownCode
			msg = ServerShuttingDownMessage
		case ev.Cause != nil:
			code = websocket.CloseInternalServerErr
			msg = ev.Cause.Error()
		}
		_ = ev.Handle.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, msg),
			time.Now().Add(time.Second),
		)
		_ = ev.Handle.Close()
	})

	return a
}

func (a *Adapter) Pool() *connpool.Pool[*websocket.Conn] { return a.pool }

// Admit tracks conn, rejecting with PoolFullCode/PoolFullMessage when the
// pool is at capacity (spec §6's admission-rejection sentinel for WS).
func (a *Adapter) Admit(conn *websocket.Conn) bool {
	res := a.pool.TryAdmit(conn, conn.RemoteAddr().String(), nil)
	if !res.Admitted {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(PoolFullCode, PoolFullMessage),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		return false
	}
	return true
}

func (a *Adapter) Touch(conn *websocket.Conn) {
	a.pool.Touch(conn, nil)
}

func (a *Adapter) Release(conn *websocket.Conn) {
	a.pool.Release(conn, connpool.ReasonNormalClose)
}

// CloseAll releases every tracked connection through the pool's CloseAll,
// which sends ServerShuttingDownCode and then closes the socket; it does
// not wait for clients to close on their own first (spec §4.5 step
// protocol_force_shutdown for WS).
func (a *Adapter) CloseAll(deadline time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()
	a.pool.CloseAll(ctx, deadline)
}
