package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarStringRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	_, ok, err := s.GetString(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutString(ctx, "greeting", "hello"))
	v, ok, err := s.GetString(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", v)
}

func TestScalarLongRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	require.NoError(t, s.PutLong(ctx, "count", 12345))
	v, ok, err := s.GetLong(ctx, "count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12345), v)
}
