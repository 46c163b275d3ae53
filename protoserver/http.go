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
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/nabbar/netserve/connpool"
	"github.com/nabbar/netserve/connpool/httpconn"
	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/metrics"
	"github.com/nabbar/netserve/shutdown"
	"github.com/nabbar/netserve/trace"
	"github.com/nabbar/netserve/tracectx"
)

// HTTPServer serves http, https, and http2 (spec §6): the only
// differences between the three are whether TLS material is attached and
// whether golang.org/x/net/http2.ConfigureServer runs, grounded on
// nabbar-golib/httpserver/server.go's Listen method which does exactly
// this for its own single "http/http2" server type.
type HTTPServer struct {
	opt     Options
	handler http.Handler
	pool    *httpconn.Adapter
	wrap    *trace.Wrapper
	orch    *shutdown.Orchestrator
	drain   drainFlag
	log     logger.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewHTTP constructs an HTTPServer for opt.Protocol ∈ {http, https, http2}.
// handler is the external application handler (spec §1's black-box
// callable); reg collects this server's pool metrics; log is this
// module's structured logging capability (component C1).
func NewHTTP(opt Options, handler http.Handler, reg *metrics.Registry, log logger.Logger) *HTTPServer {
	opt = opt.withDefaults()

	s := &HTTPServer{
		opt:     opt,
		handler: handler,
		orch:    shutdown.New(),
		log:     log,
	}

	s.pool = httpconn.New(connpool.Options{
		Name:             string(opt.Protocol),
		MaxConnections:   opt.MaxConnections,
		KeepAliveTimeout: opt.KeepAliveTimeout,
	}, reg)

	s.wrap = trace.New(trace.Options{Timeout: opt.ConnectionTimeout}, s.drain.isDraining)

	return s
}

func (s *HTTPServer) Options() Options    { return s.opt }
func (s *HTTPServer) Native() interface{} { s.mu.Lock(); defer s.mu.Unlock(); return s.srv }

// Start binds the listener and begins serving (spec §4.4's "resolves when
// all listeners are bound").
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.opt.Hostname, s.opt.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:      addr,
		Handler:   s.wrapHandler(),
		ConnState: s.pool.ConnState,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return context.WithValue(ctx, connCtxKey{}, c)
		},
	}

	if s.opt.Protocol == ProtocolHTTPS {
		if s.opt.TLSMaterial.IsEmpty() {
			_ = ln.Close()
			return fmt.Errorf("https listener %s requires tls material", addr)
		}
	}

	if s.opt.Protocol == ProtocolHTTPS || s.opt.Protocol == ProtocolHTTP2 {
		tlsCfg, e := s.opt.TLSMaterial.TLSConfig()
		if e != nil {
			_ = ln.Close()
			return e
		}
		srv.TLSConfig = tlsCfg
	}

	if s.opt.Protocol == ProtocolHTTP2 {
		h2s := &http2.Server{}
		if srv.TLSConfig == nil {
			srv.Handler = h2c.NewHandler(srv.Handler, h2s)
		} else if e := http2.ConfigureServer(srv, h2s); e != nil {
			_ = ln.Close()
			return e
		}
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
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.log.Entry(logger.ErrorLevel, "protocol server stopped with error").ErrorAdd(true, serveErr).Check(logger.NilLevel)
		}
	}()

	return nil
}

func (s *HTTPServer) wrapHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.wrap.WrapHTTP(r.Context(), r, func(ctx context.Context, t *tracectx.Trace) error {
			w.Header().Set(s.wrap.Options().RequestIDHeader, t.RequestID)

			if t.Terminated {
				w.Header().Set("Connection", "close")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("Server is in the process of shutting down"))
				return nil
			}

			s.pool.Pool().Touch(connFromRequest(r), nil)
			s.handler.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})

		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusGatewayTimeout)
		}
	})
}

// connFromRequest recovers the net.Conn backing r, stashed by the
// server's ConnContext hook at accept time. The pool keys its entries by
// net.Conn identity (not by string), so Touch needs the same value
// ConnState admitted under, not a reconstruction from r.RemoteAddr.
func connFromRequest(r *http.Request) net.Conn {
	if c, ok := r.Context().Value(connCtxKey{}).(net.Conn); ok {
		return c
	}
	return nil
}

type connCtxKey struct{}

// Stop runs the standard per-protocol shutdown step sequence (spec §4.5)
// against this server's listener and pool.
func (s *HTTPServer) Stop() error {
	steps := []shutdown.Step{
		{
			Name:     "stop_accepting_connections",
			Timeout:  5 * time.Second,
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
				s.mu.Lock()
				srv := s.srv
				s.mu.Unlock()
				if srv != nil {
					// Idle keep-alive connections close now, busy ones
					// after their current response.
					srv.SetKeepAlivesEnabled(false)
				}
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
				s.mu.Lock()
				srv := s.srv
				s.mu.Unlock()
				if srv == nil {
					return nil
				}
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
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

var errTimeout = errors.New("connections still active")
