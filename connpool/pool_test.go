package connpool_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/netserve/connpool"
	"github.com/nabbar/netserve/metrics"
)

func newTestPool(t *testing.T, opt connpool.Options) *connpool.Pool[int] {
	t.Helper()
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	return connpool.New[int](opt, reg)
}

func TestTryAdmitSuccessAndDuplicate(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t1", MaxConnections: 2})

	res := p.TryAdmit(1, "127.0.0.1:1", nil)
	assert.True(t, res.Admitted)
	require.NotNil(t, res.Entry)

	dup := p.TryAdmit(1, "127.0.0.1:1", nil)
	assert.False(t, dup.Admitted)
	assert.Equal(t, connpool.ReasonDuplicate, dup.Reason)
}

func TestTryAdmitPoolFull(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t2", MaxConnections: 1})

	assert.True(t, p.TryAdmit(1, "", nil).Admitted)
	res := p.TryAdmit(2, "", nil)
	assert.False(t, res.Admitted)
	assert.Equal(t, connpool.ReasonPoolFull, res.Reason)
}

func TestTryAdmitInvalid(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t3", MaxConnections: 10})
	res := p.TryAdmit(1, "", func(h int) bool { return false })
	assert.False(t, res.Admitted)
	assert.Equal(t, connpool.ReasonInvalid, res.Reason)
}

func TestReleaseIdempotent(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t4", MaxConnections: 10})
	p.TryAdmit(1, "", nil)

	p.Release(1, connpool.ReasonNormalClose)
	snap1 := p.Metrics()

	p.Release(1, connpool.ReasonNormalClose)
	snap2 := p.Metrics()

	assert.Equal(t, snap1, snap2)
	assert.EqualValues(t, 1, snap1.TotalClosed)
}

func TestTouchAndIsHealthy(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t5", MaxConnections: 10, KeepAliveTimeout: 50 * time.Millisecond})
	p.TryAdmit(1, "", nil)

	assert.True(t, p.IsHealthy(1))
	p.Touch(1, map[string]interface{}{"k": "v"})
	assert.True(t, p.IsHealthy(1))

	time.Sleep(80 * time.Millisecond)
	assert.False(t, p.IsHealthy(1))
}

func TestSweepStaleReleasesExpired(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t6", MaxConnections: 10, KeepAliveTimeout: 30 * time.Millisecond})
	p.TryAdmit(1, "", nil)
	p.TryAdmit(2, "", nil)

	time.Sleep(60 * time.Millisecond)
	n := p.SweepStale()
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, p.ActiveConnections())
}

func TestKeepAliveTimerReleasesAfterTimeout(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t7", MaxConnections: 10, KeepAliveTimeout: 20 * time.Millisecond})

	var removed bool
	p.Subscribe(connpool.EventTimeout, func(ev connpool.Event[int]) {
		removed = true
	})

	p.TryAdmit(1, "", nil)
	assert.Eventually(t, func() bool { return removed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.ActiveConnections())
}

func TestCloseAllReleasesEverything(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t8", MaxConnections: 100})
	for i := 0; i < 10; i++ {
		p.TryAdmit(i, "", nil)
	}

	p.CloseAll(context.Background(), time.Second)
	assert.Equal(t, 0, p.ActiveConnections())
	assert.EqualValues(t, 10, p.Metrics().TotalClosed)
}

func TestCloseAllIdempotentConcurrent(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t9", MaxConnections: 10})
	for i := 0; i < 5; i++ {
		p.TryAdmit(i, "", nil)
	}

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			p.CloseAll(context.Background(), time.Second)
			done <- struct{}{}
		}()
	}
	<-done
	<-done

	assert.Equal(t, 0, p.ActiveConnections())
	assert.EqualValues(t, 5, p.Metrics().TotalClosed)
}

func TestSubscribeAddedEvent(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t10", MaxConnections: 10})

	var got connpool.Event[int]
	p.Subscribe(connpool.EventAdded, func(ev connpool.Event[int]) {
		got = ev
	})

	p.TryAdmit(42, "", nil)
	assert.Equal(t, connpool.EventAdded, got.Kind)
	assert.Equal(t, 42, got.Handle)
}

// TestReentrantListenerDoesNotDeadlock exercises spec §4.1's "safe to call
// from event handlers" guarantee: an ADDED subscriber that calls back into
// Release must not deadlock on the pool's single-writer mutex.
func TestReentrantListenerDoesNotDeadlock(t *testing.T) {
	p := newTestPool(t, connpool.Options{Name: "t11", MaxConnections: 10})

	p.Subscribe(connpool.EventAdded, func(ev connpool.Event[int]) {
		p.Release(ev.Handle, connpool.ReasonPoolShutdown)
	})

	done := make(chan struct{})
	go func() {
		p.TryAdmit(7, "", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TryAdmit deadlocked when its ADDED subscriber called Release")
	}

	assert.Equal(t, 0, p.ActiveConnections())
}
