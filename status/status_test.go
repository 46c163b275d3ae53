package status_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/netserve/status"
)

func TestSetInfoAndCheck(t *testing.T) {
	s := status.New()
	s.SetInfo("netserve", "v1.0.0", "abc123")

	r := s.Check()
	assert.Equal(t, "netserve", r.Info.Name)
	assert.True(t, r.Healthy)
	assert.Empty(t, r.Components)
}

func TestRegisterMustModeFailsOverall(t *testing.T) {
	s := status.New()
	s.Register("pool-http", func() status.Component {
		return status.Component{Name: "pool-http", Mode: status.Must, Healthy: false, Detail: "pool full"}
	})

	r := s.Check()
	assert.False(t, r.Healthy)
	require.Len(t, r.Components, 1)
	assert.Equal(t, "pool full", r.Components[0].Detail)
}

func TestRegisterShouldModeDoesNotFailOverall(t *testing.T) {
	s := status.New()
	s.Register("pool-ws", func() status.Component {
		return status.Component{Name: "pool-ws", Mode: status.Should, Healthy: false}
	})

	r := s.Check()
	assert.True(t, r.Healthy)
}

func TestUnregister(t *testing.T) {
	s := status.New()
	s.Register("a", func() status.Component { return status.Component{Name: "a", Healthy: true} })
	assert.Len(t, s.ComponentList(), 1)

	s.Unregister("a")
	assert.Empty(t, s.ComponentList())
}

func TestMiddleWareHealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := status.New()
	s.SetInfo("netserve", "v1.0.0", "abc123")

	router := gin.New()
	router.GET("/status", s.MiddleWare)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var r status.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	assert.True(t, r.Healthy)
}

func TestMiddleWareUnhealthyReturns503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := status.New()
	s.Register("pool-grpc", func() status.Component {
		return status.Component{Name: "pool-grpc", Mode: status.Must, Healthy: false}
	})

	router := gin.New()
	router.GET("/status", s.MiddleWare)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
