package protoserver_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthsrv "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/metrics"
	"github.com/nabbar/netserve/protoserver"
)

func TestGRPCServerServesAndStops(t *testing.T) {
	port := freePort(t)
	reg := metrics.NewRegistry(nil)
	log := logger.New(logger.NilLevel)

	hs := healthsrv.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	srv := protoserver.NewGRPC(protoserver.Options{
		Protocol: protoserver.ProtocolGRPC,
		Hostname: "127.0.0.1",
		Port:     port,
	}, func(s *grpc.Server) {
		healthpb.RegisterHealthServer(s, hs)
	}, reg, log)

	require.NoError(t, srv.Start())
	defer func() { _ = srv.Stop() }()

	time.Sleep(50 * time.Millisecond)

	conn, err := grpc.NewClient(
		"127.0.0.1:"+strconv.Itoa(int(port)),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	assert.NoError(t, srv.Stop())
}

