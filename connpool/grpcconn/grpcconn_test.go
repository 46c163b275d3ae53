package grpcconn_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nabbar/netserve/connpool"
	"github.com/nabbar/netserve/connpool/grpcconn"
	"github.com/nabbar/netserve/metrics"
)

type fakeStream struct {
	ctx context.Context
}

func (f *fakeStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeStream) SetTrailer(metadata.MD)       {}
func (f *fakeStream) Context() context.Context     { return f.ctx }
func (f *fakeStream) SendMsg(m interface{}) error  { return nil }
func (f *fakeStream) RecvMsg(m interface{}) error  { return nil }

func TestStreamInterceptorAdmitsAndReleases(t *testing.T) {
	reg := metrics.NewRegistry(nil)
	a := grpcconn.New(connpool.Options{Name: "grpc-test", MaxConnections: 10}, reg)

	var n int
	interceptor := a.StreamInterceptor(func() string { n++; return "stream-1" })

	called := false
	err := interceptor(nil, &fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, func(srv interface{}, ss grpc.ServerStream) error {
		called = true
		assert.Equal(t, 1, a.Pool().ActiveConnections())
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 0, a.Pool().ActiveConnections())
}

func TestStreamInterceptorRejectsWhenFull(t *testing.T) {
	reg := metrics.NewRegistry(nil)
	a := grpcconn.New(connpool.Options{Name: "grpc-full", MaxConnections: 1}, reg)

	_, ok := a.Admit(context.Background(), "hold", "")
	require.True(t, ok)

	interceptor := a.StreamInterceptor(func() string { return "stream-2" })
	err := interceptor(nil, &fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, func(srv interface{}, ss grpc.ServerStream) error {
		return nil
	})

	require.Error(t, err)
	s, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.ResourceExhausted, s.Code())
}

func TestCloseAllCancelsStreamContext(t *testing.T) {
	reg := metrics.NewRegistry(nil)
	a := grpcconn.New(connpool.Options{Name: "grpc-cancel", MaxConnections: 10}, reg)

	cctx, ok := a.Admit(context.Background(), "stream-3", "")
	require.True(t, ok)

	a.CloseAll(time.Second)

	select {
	case <-cctx.Done():
	default:
		t.Fatal("expected stream context to be cancelled on CloseAll")
	}
}
