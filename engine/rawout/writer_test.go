package rawout

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/egress"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/types"
)

type fakeSource struct {
	locker   sync.Mutex
	blocks   [][]byte
	released int
}

func (s *fakeSource) Get(ctx context.Context, mediaType types.MediaType) (*engine.PullBuffer, error) {
	s.locker.Lock()
	defer s.locker.Unlock()
	if len(s.blocks) == 0 {
		return nil, egress.ErrClosed{}
	}
	data := s.blocks[0]
	s.blocks = s.blocks[1:]
	return &engine.PullBuffer{MediaType: mediaType, Data: data}, nil
}

func (s *fakeSource) Release(ctx context.Context, mediaType types.MediaType) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.released++
}

func TestWriter(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{blocks: [][]byte{{1, 2}, {3}, {4, 5, 6}}}
	var out bytes.Buffer
	w := New(types.MediaTypeAudio, src, &out)

	require.NoError(t, w.Play(ctx))
	require.Eventually(t, func() bool {
		return w.Written() == 6
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, w.Stop(ctx))

	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, out.Bytes())
	require.Equal(t, 3, src.released)
	require.False(t, w.IsPlaying(ctx))
}

func TestWriterPause(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{blocks: [][]byte{{1}}}
	var out bytes.Buffer
	w := New(types.MediaTypeVideo, src, &out)

	require.NoError(t, w.SetPause(ctx, true))
	require.NoError(t, w.Play(ctx))
	require.False(t, w.IsPlaying(ctx))

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, w.Written())

	require.NoError(t, w.SetPause(ctx, false))
	require.True(t, w.IsPlaying(ctx))
	require.Eventually(t, func() bool {
		return w.Written() == 1
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, w.Stop(ctx))
}
