package protoserver_test

import (
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/metrics"
	"github.com/nabbar/netserve/protoserver"
)

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())
	return port
}

func TestHTTPServerServesAndStops(t *testing.T) {
	port := freePort(t)
	reg := metrics.NewRegistry(nil)
	log := logger.New(logger.NilLevel)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := protoserver.NewHTTP(protoserver.Options{
		Protocol: protoserver.ProtocolHTTP,
		Hostname: "127.0.0.1",
		Port:     port,
	}, handler, reg, log)

	require.NoError(t, srv.Start())
	defer func() { _ = srv.Stop() }()

	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	assert.NoError(t, srv.Stop())
}

func TestHTTPServerStopWaitsForInFlightRequest(t *testing.T) {
	port := freePort(t)
	reg := metrics.NewRegistry(nil)
	log := logger.New(logger.NilLevel)

	entered := make(chan struct{})
	blocked := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-blocked
		w.WriteHeader(http.StatusOK)
	})

	srv := protoserver.NewHTTP(protoserver.Options{
		Protocol: protoserver.ProtocolHTTP,
		Hostname: "127.0.0.1",
		Port:     port,
	}, handler, reg, log)

	require.NoError(t, srv.Start())
	time.Sleep(50 * time.Millisecond)

	go func() {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	<-entered

	stopDone := make(chan error, 1)
	go func() { stopDone <- srv.Stop() }()

	select {
	case <-stopDone:
		t.Fatal("Stop returned before the in-flight request completed")
	case <-time.After(100 * time.Millisecond):
	}

	close(blocked)
	require.NoError(t, <-stopDone)
}

func TestHTTPServerOptionsAndNative(t *testing.T) {
	port := freePort(t)
	reg := metrics.NewRegistry(nil)
	log := logger.New(logger.NilLevel)

	srv := protoserver.NewHTTP(protoserver.Options{
		Protocol: protoserver.ProtocolHTTP,
		Hostname: "127.0.0.1",
		Port:     port,
	}, http.NotFoundHandler(), reg, log)

	assert.Equal(t, protoserver.ProtocolHTTP, srv.Options().Protocol)
	assert.Nil(t, srv.Native())

	require.NoError(t, srv.Start())
	assert.NotNil(t, srv.Native())
	assert.NoError(t, srv.Stop())
}
