package protoserver_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/metrics"
	"github.com/nabbar/netserve/protoserver"
	"github.com/nabbar/netserve/tracectx"
)

func TestWSServerEchoesAndStops(t *testing.T) {
	port := freePort(t)
	reg := metrics.NewRegistry(nil)
	log := logger.New(logger.NilLevel)

	srv := protoserver.NewWS(protoserver.Options{
		Protocol: protoserver.ProtocolWS,
		Hostname: "127.0.0.1",
		Port:     port,
	}, func(ctx context.Context, conn *websocket.Conn, tr *tracectx.Trace) {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(mt, msg)
	}, reg, log)

	require.NoError(t, srv.Start())
	defer func() { _ = srv.Stop() }()

	time.Sleep(50 * time.Millisecond)

	url := "ws://127.0.0.1:" + strconv.Itoa(int(port)) + "/"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hello")))

	mt, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "hello", string(msg))

	assert.NoError(t, srv.Stop())
}

func TestWSServerOptionsAndNative(t *testing.T) {
	port := freePort(t)
	reg := metrics.NewRegistry(nil)
	log := logger.New(logger.NilLevel)

	srv := protoserver.NewWS(protoserver.Options{
		Protocol: protoserver.ProtocolWS,
		Hostname: "127.0.0.1",
		Port:     port,
	}, nil, reg, log)

	assert.Equal(t, protoserver.ProtocolWS, srv.Options().Protocol)
	assert.Nil(t, srv.Native())

	require.NoError(t, srv.Start())
	assert.NotNil(t, srv.Native())
	assert.NoError(t, srv.Stop())
}
