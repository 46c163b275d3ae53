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

package protoserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nabbar/netserve/connpool"
	"github.com/nabbar/netserve/connpool/wsconn"
	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/metrics"
	"github.com/nabbar/netserve/shutdown"
	"github.com/nabbar/netserve/trace"
	"github.com/nabbar/netserve/tracectx"
)

// WSHandler processes one accepted, admitted WS connection; wsconn owns
// the close/cleanup sequence once WSHandler returns.
type WSHandler func(ctx context.Context, conn *websocket.Conn, t *tracectx.Trace)

// WSServer serves ws and wss (spec §6): the HTTP upgrade request is
// wrapped through the tracing wrapper exactly like HTTPServer's handler,
// then handed to a WSHandler running under the pool's admitted entry.
type WSServer struct {
	opt      Options
	pool     *wsconn.Adapter
	wrap     *trace.Wrapper
	orch     *shutdown.Orchestrator
	drain    drainFlag
	log      logger.Logger
	upgrader websocket.Upgrader
	handler  WSHandler

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

func NewWS(opt Options, handler WSHandler, reg *metrics.Registry, log logger.Logger) *WSServer {
	opt = opt.withDefaults()

	s := &WSServer{
		opt:     opt,
		handler: handler,
		orch:    shutdown.New(),
		log:     log,
	}

	s.pool = wsconn.New(connpool.Options{
		Name:             string(opt.Protocol),
		MaxConnections:   opt.MaxConnections,
		KeepAliveTimeout: opt.KeepAliveTimeout,
	}, reg)

	s.wrap = trace.New(trace.Options{Timeout: opt.ConnectionTimeout}, s.drain.isDraining)

	return s
}

func (s *WSServer) Options() Options    { return s.opt }
func (s *WSServer) Native() interface{} { s.mu.Lock(); defer s.mu.Unlock(); return s.srv }

func (s *WSServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.opt.Hostname, s.opt.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.upgradeHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	if s.opt.Protocol == ProtocolWSS {
		if s.opt.TLSMaterial.IsEmpty() {
			_ = ln.Close()
			return fmt.Errorf("wss listener %s requires tls material", addr)
		}
		tlsCfg, e := s.opt.TLSMaterial.TLSConfig()
		if e != nil {
			_ = ln.Close()
			return e
		}
		srv.TLSConfig = tlsCfg
	}

	s.srv = srv
	s.listener = ln

	s.log.Entry(logger.InfoLevel, "protocol server starting").FieldAdd("protocol", string(s.opt.Protocol)).FieldAdd("addr", addr).Log()

	go func() {
		var serveErr error
		if srv.TLSConfig != nil {
			serveErr = srv.ServeTLS(ln, "", "")
		} else {
			serveErr = srv.Serve(ln)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			s.log.Entry(logger.ErrorLevel, "protocol server stopped with error").ErrorAdd(true, serveErr).Check(logger.NilLevel)
		}
	}()

	return nil
}

func (s *WSServer) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	_ = s.wrap.WrapWS(r.Context(), r.Header.Get(s.wrap.Options().RequestIDHeader), r.URL.Query().Get(s.wrap.Options().RequestIDName), func(ctx context.Context, t *tracectx.Trace) error {
		if t.Terminated {
			w.Header().Set("Connection", "close")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Server is in the process of shutting down"))
			return nil
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return err
		}

		if !s.pool.Admit(conn) {
			return nil
		}

		conn.SetPongHandler(func(string) error {
			s.pool.Touch(conn)
			return nil
		})

		if s.handler != nil {
			s.handler(ctx, conn, t)
		}

		s.pool.Release(conn)
		return nil
	})
}

// Stop runs the standard shutdown step sequence (spec §4.5); the WS
// protocol_force_shutdown step is the pool's own CloseAll, which already
// sends the 1001 close frame before destroying each socket.
func (s *WSServer) Stop() error {
	steps := []shutdown.Step{
		{
			Name:    "stop_accepting_connections",
			Timeout: 5 * time.Second,
			Execute: func(string) error {
				s.drain.set()
				s.mu.Lock()
				ln := s.listener
				s.mu.Unlock()
				if ln == nil {
					return nil
				}
				return ln.Close()
			},
		},
		{
			Name:       "wait_connections_completion",
			Timeout:    15 * time.Second,
			RetryCount: 1,
			Execute: func(string) error {
				if s.pool.Pool().ActiveConnections() == 0 {
					return nil
				}
				return errTimeout
			},
		},
		{
			Name:    "force_close_connections",
			Timeout: 5 * time.Second,
			Execute: func(string) error {
				s.pool.CloseAll(5 * time.Second)
				return nil
			},
		},
		{
			Name:    "protocol_force_shutdown",
			Timeout: 3 * time.Second,
			Execute: func(string) error {
				s.pool.CloseAll(time.Second)
				return nil
			},
		},
		{
			Name:     "stop_monitoring_cleanup",
			Timeout:  3 * time.Second,
			Optional: true,
			Execute: func(string) error {
				return nil
			},
		},
	}

	result := s.orch.Perform("", steps, shutdown.Options{TotalTimeout: 30 * time.Second, StepTimeout: 5 * time.Second})
	if result.Status != shutdown.StatusCompleted {
		return result.Err
	}
	return nil
}
