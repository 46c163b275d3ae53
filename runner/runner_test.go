package runner_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabbar/netserve/runner"
)

func TestRunnerStartStop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var started, stopped atomic.Bool

	r := runner.New(
		func(c context.Context) error {
			started.Store(true)
			<-c.Done()
			return nil
		},
		func(c context.Context) error {
			stopped.Store(true)
			return nil
		},
	)

	require.NoError(t, r.Start(ctx))
	assert.Eventually(t, r.IsRunning, time.Second, 5*time.Millisecond)
	assert.Eventually(t, started.Load, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop(ctx))
	assert.False(t, r.IsRunning())
	assert.True(t, stopped.Load())
}

func TestRunnerUptimeZeroWhenNotRunning(t *testing.T) {
	r := runner.New(func(c context.Context) error { <-c.Done(); return nil }, nil)
	assert.Equal(t, time.Duration(0), r.Uptime())
}

func TestRunnerStartTwiceIsNoOp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var starts atomic.Int32
	r := runner.New(func(c context.Context) error {
		starts.Add(1)
		<-c.Done()
		return nil
	}, func(c context.Context) error { return nil })

	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Start(ctx))
	assert.Eventually(t, func() bool { return starts.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), starts.Load())

	_ = r.Stop(ctx)
}

func TestRunnerStopTwiceIsNoOp(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var stops atomic.Int32
	r := runner.New(
		func(c context.Context) error { <-c.Done(); return nil },
		func(c context.Context) error { stops.Add(1); return nil },
	)

	require.NoError(t, r.Start(ctx))
	assert.Eventually(t, r.IsRunning, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx))
	assert.Equal(t, int32(1), stops.Load())
}

func TestTickerTicks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count atomic.Int32
	tic := tickerFor(10*time.Millisecond, &count)
	require.NoError(t, tic.Start(ctx))

	assert.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tic.Stop(ctx))
	assert.False(t, tic.IsRunning())
}

func tickerFor(d time.Duration, count *atomic.Int32) *runner.Ticker {
	return runner.NewTicker(d, func(ctx context.Context, t *time.Ticker) error {
		count.Add(1)
		return nil
	})
}
