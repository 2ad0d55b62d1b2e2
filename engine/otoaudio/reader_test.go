package otoaudio

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/egress"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/types"
)

type fakeSource struct {
	blocks   [][]byte
	released int
}

func (s *fakeSource) Get(ctx context.Context, mediaType types.MediaType) (*engine.PullBuffer, error) {
	if len(s.blocks) == 0 {
		return nil, egress.ErrClosed{}
	}
	data := s.blocks[0]
	s.blocks = s.blocks[1:]
	return &engine.PullBuffer{MediaType: mediaType, Data: data}, nil
}

func (s *fakeSource) Release(ctx context.Context, mediaType types.MediaType) {
	s.released++
}

func TestPullReader(t *testing.T) {
	src := &fakeSource{blocks: [][]byte{{1, 2, 3}, {4, 5}}}
	r := newPullReader(context.Background(), src)

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, buf[:n])
	require.Equal(t, 1, src.released)

	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{3}, buf[:n])

	all, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5}, all)
	require.Equal(t, 2, src.released)
}

func TestPullReaderReset(t *testing.T) {
	src := &fakeSource{blocks: [][]byte{{1, 2, 3}, {4}}}
	r := newPullReader(context.Background(), src)

	buf := make([]byte, 1)
	_, err := r.Read(buf)
	require.NoError(t, err)
	r.reset()

	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{4}, buf[:n])
}

func TestFormatToOto(t *testing.T) {
	_, err := FormatToOto(types.SampleFormatS16)
	require.NoError(t, err)
	_, err = FormatToOto(types.SampleFormatS32)
	require.Error(t, err)
}

func TestNewValidatesFormat(t *testing.T) {
	format := types.DefaultHostFormat()
	format.SampleFormat = types.SampleFormatS32
	_, err := New(&fakeSource{}, format)
	require.Error(t, err)

	r, err := New(&fakeSource{}, types.DefaultHostFormat())
	require.NoError(t, err)
	require.Error(t, r.SetVolume(context.Background(), 2))
	require.NoError(t, r.SetVolume(context.Background(), 0.3))
	require.False(t, r.IsPlaying(context.Background()))
}
