package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgthompo1/tapkernel/internal/capability"
)

func TestWriteReadDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "reversal", "rev-1", []byte(`{"a":1}`)))

	data, err := s.Read(ctx, "reversal", "rev-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), data)

	// stored payload is isolated from caller mutation
	data[0] = 'X'
	again, err := s.Read(ctx, "reversal", "rev-1")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again[0])

	require.NoError(t, s.Delete(ctx, "reversal", "rev-1"))
	_, err = s.Read(ctx, "reversal", "rev-1")
	assert.ErrorIs(t, err, capability.ErrNotFound)

	// deleting again is not an error
	assert.NoError(t, s.Delete(ctx, "reversal", "rev-1"))
}

func TestList(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "reversal", "a", nil))
	require.NoError(t, s.Write(ctx, "reversal", "b", nil))
	require.NoError(t, s.Write(ctx, "torn", "log", nil))

	keys, err := s.List(ctx, "reversal")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	empty, err := s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
