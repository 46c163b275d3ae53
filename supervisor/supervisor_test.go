package supervisor_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/protoserver"
	"github.com/nabbar/netserve/supervisor"
)

type fakeServer struct {
	opt       protoserver.Options
	startErr  error
	started   atomic.Bool
	stopCalls atomic.Int32
	native    interface{}
}

func (f *fakeServer) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started.Store(true)
	f.native = "native"
	return nil
}

func (f *fakeServer) Stop() error {
	f.stopCalls.Add(1)
	f.started.Store(false)
	return nil
}

func (f *fakeServer) Options() protoserver.Options { return f.opt }
func (f *fakeServer) Native() interface{}          { return f.native }

func newFake(protocol protoserver.Protocol, port uint16) *fakeServer {
	return &fakeServer{opt: protoserver.Options{Protocol: protocol, Hostname: "127.0.0.1", Port: port}}
}

func TestSupervisorStartStopsAllOnFirstBindError(t *testing.T) {
	sup := supervisor.New(logger.New(logger.NilLevel))

	ok1 := newFake(protoserver.ProtocolHTTP, 9001)
	ok2 := newFake(protoserver.ProtocolHTTP, 9002)
	bad := newFake(protoserver.ProtocolHTTP, 9003)
	bad.startErr = errors.New("bind failed")

	sup.Add(ok1, nil)
	sup.Add(ok2, nil)
	sup.Add(bad, nil)

	err := sup.Start()
	require.Error(t, err)

	assert.False(t, ok1.started.Load())
	assert.False(t, ok2.started.Load())
	assert.Equal(t, int32(1), ok1.stopCalls.Load())
	assert.Equal(t, int32(1), ok2.stopCalls.Load())
}

func TestSupervisorStartSucceedsAndStopFansOut(t *testing.T) {
	sup := supervisor.New(logger.New(logger.NilLevel))

	a := newFake(protoserver.ProtocolHTTP, 9011)
	b := newFake(protoserver.ProtocolGRPC, 9012)

	sup.Add(a, nil)
	sup.Add(b, nil)

	require.NoError(t, sup.Start())
	assert.True(t, a.started.Load())
	assert.True(t, b.started.Load())

	require.NoError(t, sup.Stop())
	assert.Equal(t, int32(1), a.stopCalls.Load())
	assert.Equal(t, int32(1), b.stopCalls.Load())
}

func TestSupervisorGetNativeServer(t *testing.T) {
	sup := supervisor.New(logger.New(logger.NilLevel))

	a := newFake(protoserver.ProtocolHTTP, 9021)
	sup.Add(a, nil)

	assert.Nil(t, sup.GetNativeServer(protoserver.ProtocolHTTP, 9021))
	require.NoError(t, sup.Start())
	assert.Equal(t, "native", sup.GetNativeServer(protoserver.ProtocolHTTP, 9021))
	assert.Nil(t, sup.GetNativeServer(protoserver.ProtocolHTTP, 4242))
}

func TestSupervisorUpdateConfigNoChangeReturnsFalse(t *testing.T) {
	sup := supervisor.New(logger.New(logger.NilLevel))

	a := newFake(protoserver.ProtocolHTTP, 9031)
	key := supervisor.Key{Protocol: protoserver.ProtocolHTTP, Port: 9031}
	sup.Add(a, func(opt protoserver.Options) protoserver.Server { return newFake(opt.Protocol, opt.Port) })

	changed, err := sup.UpdateConfig(key, a.opt)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSupervisorUpdateConfigRebuildsOnPortChange(t *testing.T) {
	sup := supervisor.New(logger.New(logger.NilLevel))

	a := newFake(protoserver.ProtocolHTTP, 9041)
	key := supervisor.Key{Protocol: protoserver.ProtocolHTTP, Port: 9041}

	var built *fakeServer
	factory := func(opt protoserver.Options) protoserver.Server {
		built = newFake(opt.Protocol, opt.Port)
		return built
	}
	sup.Add(a, factory)
	require.NoError(t, a.Start())

	newOpts := protoserver.Options{Protocol: protoserver.ProtocolHTTP, Hostname: "127.0.0.1", Port: 9099}
	changed, err := sup.UpdateConfig(key, newOpts)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int32(1), a.stopCalls.Load())
	require.NotNil(t, built)
	assert.True(t, built.started.Load())

	assert.Equal(t, built.native, sup.GetNativeServer(protoserver.ProtocolHTTP, 9099))
}
