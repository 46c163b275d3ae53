package tracectx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nabbar/netserve/tracectx"
)

func TestWithTraceFromContext(t *testing.T) {
	tr := &tracectx.Trace{RequestID: "abc-123", Encoding: tracectx.EncodingJSON, TimeoutMS: 10000}
	ctx := tracectx.WithTrace(context.Background(), tr)

	got := tracectx.FromContext(ctx)
	assert.Same(t, tr, got)
	assert.Equal(t, "abc-123", tracectx.RequestID(ctx))
}

func TestFromContextMissing(t *testing.T) {
	assert.Nil(t, tracectx.FromContext(context.Background()))
	assert.Equal(t, "", tracectx.RequestID(context.Background()))
}

func TestStoreBindLookupRelease(t *testing.T) {
	s := tracectx.NewStore()
	tr := &tracectx.Trace{RequestID: "r-1"}

	s.Bind(tr)
	assert.Equal(t, 1, s.Len())

	got, ok := s.Lookup("r-1")
	assert.True(t, ok)
	assert.Same(t, tr, got)

	s.Release("r-1")
	assert.Equal(t, 0, s.Len())

	_, ok = s.Lookup("r-1")
	assert.False(t, ok)
}

func TestStoreBindIgnoresEmptyRequestID(t *testing.T) {
	s := tracectx.NewStore()
	s.Bind(&tracectx.Trace{})
	assert.Equal(t, 0, s.Len())
	s.Bind(nil)
	assert.Equal(t, 0, s.Len())
}
