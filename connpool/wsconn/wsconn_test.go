package wsconn_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/netserve/connpool"
	"github.com/nabbar/netserve/connpool/wsconn"
	"github.com/nabbar/netserve/metrics"
)

func dial(t *testing.T, a *wsconn.Adapter) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		a.Admit(conn)
	}))

	wsURL := "ws" + srv.URL[len("http"):]
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	return client, srv
}

func TestAdmitTracksConnection(t *testing.T) {
	reg := metrics.NewRegistry(nil)
	a := wsconn.New(connpool.Options{Name: "ws-test", MaxConnections: 10}, reg)

	client, srv := dial(t, a)
	defer srv.Close()
	defer client.Close()

	assert.Equal(t, 1, a.Pool().ActiveConnections())
}

func TestAdmitRejectsWhenFull(t *testing.T) {
	reg := metrics.NewRegistry(nil)
	a := wsconn.New(connpool.Options{Name: "ws-full", MaxConnections: 1}, reg)

	client1, srv := dial(t, a)
	defer srv.Close()
	defer client1.Close()
	require.Equal(t, 1, a.Pool().ActiveConnections())

	client2, _, err := websocket.DefaultDialer.Dial("ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer client2.Close()

	_, _, err = client2.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, wsconn.PoolFullCode, closeErr.Code)
}

func TestCloseAllSendsShuttingDownFrame(t *testing.T) {
	reg := metrics.NewRegistry(nil)
	a := wsconn.New(connpool.Options{Name: "ws-close", MaxConnections: 10}, reg)

	client, srv := dial(t, a)
	defer srv.Close()
	defer client.Close()

	a.CloseAll(time.Second)

	_, _, err := client.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, wsconn.ServerShuttingDownCode, closeErr.Code)
}
