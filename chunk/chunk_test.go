package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkReadInto(t *testing.T) {
	c := FromBytes([]byte{1, 2, 3, 4, 5})
	defer Put(c)

	dst := make([]byte, 2)
	require.Equal(t, 2, c.ReadInto(dst))
	require.Equal(t, []byte{1, 2}, dst)
	require.Equal(t, 3, c.Remaining())
	require.False(t, c.IsDrained())

	dst = make([]byte, 10)
	require.Equal(t, 3, c.ReadInto(dst))
	require.Equal(t, []byte{3, 4, 5}, dst[:3])
	require.True(t, c.IsDrained())
	require.Equal(t, 0, c.ReadInto(dst))
}

func TestChunkClone(t *testing.T) {
	c := FromBytes([]byte{1, 2, 3})
	c.Cursor = 1
	dup := c.Clone()
	dup.Buffer[0] = 9

	require.Equal(t, byte(1), c.Buffer[0])
	require.Equal(t, 1, dup.Cursor)
	require.Equal(t, 3, dup.Len())
}

func TestGetSize(t *testing.T) {
	c := Get(16)
	require.Equal(t, 16, c.Len())
	require.Equal(t, 0, c.Cursor)
	Put(c)

	c = Get(4)
	require.Equal(t, 4, c.Len())
	require.Equal(t, 0, c.Cursor)
}
