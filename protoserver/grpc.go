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
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nabbar/netserve/connpool"
	"github.com/nabbar/netserve/connpool/grpcconn"
	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/metrics"
	"github.com/nabbar/netserve/shutdown"
	"github.com/nabbar/netserve/trace"
	"github.com/nabbar/netserve/tracectx"
)

const grpcRequestIDMetadataKey = "requestId"

func requestIDFromIncomingContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vs := md.Get(grpcRequestIDMetadataKey)
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// GRPCServer serves the gRPC protocol (spec §6/§4.5): admission and
// keep-alive tracking run through grpcconn's stream interceptor; shutdown
// uses grpc's own tryShutdown→forceShutdown escalation as the
// protocol_force_shutdown step.
type GRPCServer struct {
	opt   Options
	pool  *grpcconn.Adapter
	wrap  *trace.Wrapper
	orch  *shutdown.Orchestrator
	drain drainFlag
	log   logger.Logger

	register func(*grpc.Server)

	mu       sync.Mutex
	srv      *grpc.Server
	listener net.Listener
}

// NewGRPC constructs a GRPCServer. register is invoked with the
// underlying *grpc.Server at Start time so the caller can attach its own
// service implementations (spec §1's external handler pipeline, here one
// gRPC service registration per protocol server).
func NewGRPC(opt Options, register func(*grpc.Server), reg *metrics.Registry, log logger.Logger) *GRPCServer {
	opt = opt.withDefaults()

	s := &GRPCServer{
		opt:      opt,
		register: register,
		orch:     shutdown.New(),
		log:      log,
	}

	s.pool = grpcconn.New(connpool.Options{
		Name:             string(opt.Protocol),
		MaxConnections:   opt.MaxConnections,
		KeepAliveTimeout: opt.KeepAliveTimeout,
	}, reg)

	s.wrap = trace.New(trace.Options{Timeout: opt.ConnectionTimeout}, s.drain.isDraining)

	return s
}

func (s *GRPCServer) Options() Options    { return s.opt }
func (s *GRPCServer) Native() interface{} { s.mu.Lock(); defer s.mu.Unlock(); return s.srv }

func (s *GRPCServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.opt.Hostname, s.opt.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	var opts []grpc.ServerOption
	opts = append(opts, grpc.StreamInterceptor(s.pool.StreamInterceptor(uuid.NewString)))
	opts = append(opts, grpc.UnaryInterceptor(s.unaryInterceptor))

	if s.opt.Protocol == ProtocolGRPC && s.opt.TLSMaterial != nil && !s.opt.TLSMaterial.IsEmpty() {
		tlsCfg, e := s.opt.TLSMaterial.TLSConfig()
		if e != nil {
			_ = ln.Close()
			return e
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	srv := grpc.NewServer(opts...)
	if s.register != nil {
		s.register(srv)
	}

	s.srv = srv
	s.listener = ln

	s.log.Entry(logger.InfoLevel, "protocol server starting").FieldAdd("protocol", string(s.opt.Protocol)).FieldAdd("addr", addr).Log()

	go func() {
		if e := srv.Serve(ln); e != nil {
			s.log.Entry(logger.ErrorLevel, "protocol server stopped with error").ErrorAdd(true, e).Check(logger.NilLevel)
		}
	}()

	return nil
}

// unaryInterceptor enforces the drain gate for unary calls, answering
// Unavailable while the server drains. Stream calls are not drain-gated:
// grpcconn's stream interceptor rejects them only when the pool is full.
func (s *GRPCServer) unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	var resp interface{}
	var err error

	werr := s.wrap.WrapGRPCMetadata(ctx, requestIDFromIncomingContext(ctx), "", func(cctx context.Context, t *tracectx.Trace) error {
		if t.Terminated {
			err = status.Error(codes.Unavailable, "Server is in the process of shutting down")
			return err
		}
		resp, err = handler(cctx, req)
		return err
	})
	if werr != nil {
		return nil, werr
	}
	return resp, err
}

// Stop runs the standard shutdown step sequence (spec §4.5), using grpc's
// native tryShutdown→forceShutdown escalation for
// protocol_force_shutdown.
func (s *GRPCServer) Stop() error {
	steps := []shutdown.Step{
		{
			Name:    "stop_accepting_connections",
			Timeout: 5 * time.Second,
			Execute: func(string) error {
				s.drain.set()
				return nil
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
				s.mu.Lock()
				srv := s.srv
				s.mu.Unlock()
				if srv == nil {
					return nil
				}

				stopped := make(chan struct{})
				go func() {
					srv.GracefulStop()
					close(stopped)
				}()

				select {
				case <-stopped:
					return nil
				case <-time.After(3 * time.Second):
					srv.Stop()
					return nil
				}
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
