package egress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/types"
)

type fakeHost struct {
	locker  sync.Mutex
	next    int64
	shown   []int64
	pullErr error
}

func (h *fakeHost) PullFrame(ctx context.Context) (*types.Frame, error) {
	h.locker.Lock()
	defer h.locker.Unlock()
	if h.pullErr != nil {
		return nil, h.pullErr
	}
	p := h.next
	h.next++
	return &types.Frame{
		Position: p,
		Audio: &types.AudioBlock{
			Position: p,
			Samples:  1920,
			Data:     []byte{byte(p)},
		},
		Video: &types.VideoImage{
			Position: p,
			Data:     []byte{byte(p)},
		},
	}, nil
}

func (h *fakeHost) FrameShown(ctx context.Context, frame *types.Frame) {
	h.locker.Lock()
	defer h.locker.Unlock()
	h.shown = append(h.shown, frame.Position)
}

func (h *fakeHost) Pulls() int64 {
	h.locker.Lock()
	defer h.locker.Unlock()
	return h.next
}

func (h *fakeHost) Shown() []int64 {
	h.locker.Lock()
	defer h.locker.Unlock()
	return append([]int64(nil), h.shown...)
}

type fakeRenderer struct {
	playing bool
	paused  bool
	volume  float64
}

func (r *fakeRenderer) Play(ctx context.Context) error {
	r.playing = true
	return nil
}

func (r *fakeRenderer) Stop(ctx context.Context) error {
	r.playing = false
	return nil
}

func (r *fakeRenderer) IsPlaying(ctx context.Context) bool {
	return r.playing
}

func (r *fakeRenderer) SetPause(ctx context.Context, pause bool) error {
	r.paused = pause
	return nil
}

func (r *fakeRenderer) SetVolume(ctx context.Context, volume float64) error {
	r.volume = volume
	return nil
}

func newTestAdapter(t *testing.T, releaseTimeout time.Duration) (*Adapter, *fakeHost) {
	ctx := context.Background()
	host := &fakeHost{}
	cfg := DefaultConfig()
	cfg.ReleaseTimeout = releaseTimeout
	a, err := New(host, cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { a.Close(ctx) })
	return a, host
}

func TestAdapterOnePullPerFrame(t *testing.T) {
	ctx := context.Background()
	a, host := newTestAdapter(t, time.Minute)

	audio, err := a.Get(ctx, types.MediaTypeAudio)
	require.NoError(t, err)
	require.Equal(t, []byte{0}, audio.Data)
	a.Release(ctx, types.MediaTypeAudio)
	require.Empty(t, host.Shown())

	video, err := a.Get(ctx, types.MediaTypeVideo)
	require.NoError(t, err)
	require.Equal(t, []byte{0}, video.Data)
	require.Equal(t, int64(1), host.Pulls())

	got := make(chan []byte, 1)
	go func() {
		buf, err := a.Get(ctx, types.MediaTypeAudio)
		if err != nil {
			got <- nil
			return
		}
		got <- buf.Data
	}()

	select {
	case <-got:
		t.Fatal("the next frame must not be pulled before the release")
	case <-time.After(30 * time.Millisecond):
	}
	require.Equal(t, int64(1), host.Pulls())

	a.Release(ctx, types.MediaTypeVideo)
	select {
	case data := <-got:
		require.Equal(t, []byte{1}, data)
	case <-time.After(5 * time.Second):
		t.Fatal("the request was not served after the release")
	}
	require.Equal(t, int64(2), host.Pulls())
	require.Equal(t, []int64{0}, host.Shown())
}

func TestAdapterSingleChannelRetiresFrames(t *testing.T) {
	ctx := context.Background()
	a, host := newTestAdapter(t, time.Minute)

	for i := byte(0); i < 3; i++ {
		buf, err := a.Get(ctx, types.MediaTypeAudio)
		require.NoError(t, err)
		require.Equal(t, []byte{i}, buf.Data)
		a.Release(ctx, types.MediaTypeAudio)
	}
	require.Equal(t, int64(3), host.Pulls())
	require.Equal(t, []int64{0, 1}, host.Shown())
	require.Equal(t, uint64(2), a.GetStats(ctx).Retired)
}

func TestAdapterReleaseTimeout(t *testing.T) {
	ctx := context.Background()
	a, host := newTestAdapter(t, 20*time.Millisecond)

	_, err := a.Get(ctx, types.MediaTypeAudio)
	require.NoError(t, err)
	_, err = a.Get(ctx, types.MediaTypeVideo)
	require.NoError(t, err)

	buf, err := a.Get(ctx, types.MediaTypeVideo)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, buf.Data)
	require.Equal(t, []int64{0}, host.Shown())
	require.Equal(t, uint64(1), a.GetStats(ctx).ReleaseTimeouts)
}

func TestAdapterReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a, host := newTestAdapter(t, time.Minute)

	a.Release(ctx, types.MediaTypeVideo)
	a.Release(ctx, types.MediaTypeAudio)

	_, err := a.Get(ctx, types.MediaTypeAudio)
	require.NoError(t, err)
	a.Release(ctx, types.MediaTypeVideo)
	_, err = a.Get(ctx, types.MediaTypeVideo)
	require.NoError(t, err)

	a.Release(ctx, types.MediaTypeVideo)
	a.Release(ctx, types.MediaTypeVideo)
	a.Release(ctx, types.MediaTypeAudio)
	require.Equal(t, []int64{0}, host.Shown())
}

func TestAdapterCloseDiscardsFrame(t *testing.T) {
	ctx := context.Background()
	a, host := newTestAdapter(t, time.Minute)

	_, err := a.Get(ctx, types.MediaTypeAudio)
	require.NoError(t, err)
	_, err = a.Get(ctx, types.MediaTypeVideo)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Get(ctx, types.MediaTypeVideo)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Close(ctx))
	select {
	case err := <-errCh:
		require.ErrorAs(t, err, &ErrClosed{})
	case <-time.After(5 * time.Second):
		t.Fatal("the request was not woken up by Close")
	}

	a.Release(ctx, types.MediaTypeVideo)
	require.Empty(t, host.Shown())
	require.Equal(t, uint64(1), a.GetStats(ctx).Discarded)
}

func TestAdapterPullError(t *testing.T) {
	ctx := context.Background()
	a, host := newTestAdapter(t, time.Minute)
	host.pullErr = errors.New("end of timeline")

	_, err := a.Get(ctx, types.MediaTypeAudio)
	require.Error(t, err)
	require.Equal(t, uint64(1), a.GetStats(ctx).PullErrors)
}

func TestAdapterTimestamps(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t, time.Minute)

	for i := 0; i < 3; i++ {
		audio, err := a.Get(ctx, types.MediaTypeAudio)
		require.NoError(t, err)
		require.Equal(t, time.Duration(i)*40*time.Millisecond, audio.PTS)
		require.Equal(t, 1920, audio.Samples)

		video, err := a.Get(ctx, types.MediaTypeVideo)
		require.NoError(t, err)
		require.Equal(t, time.Duration(i)*40*time.Millisecond, video.PTS)

		a.Release(ctx, types.MediaTypeVideo)
	}
}

func TestAdapterLifecycle(t *testing.T) {
	ctx := context.Background()
	host := &fakeHost{}
	renderer := &fakeRenderer{}
	a, err := New(host, DefaultConfig())
	require.NoError(t, err)
	a.Renderer = renderer
	defer a.Close(ctx)

	require.True(t, a.IsStopped(ctx))
	_, err = a.Get(ctx, types.MediaTypeAudio)
	require.ErrorAs(t, err, &ErrStopped{})

	require.NoError(t, a.Start(ctx))
	require.True(t, renderer.IsPlaying(ctx))
	require.NoError(t, a.SetVolume(ctx, 0.5))
	require.Equal(t, 0.5, renderer.volume)
	require.NoError(t, a.SetPause(ctx, true))
	require.True(t, renderer.paused)

	_, err = a.GetByTag(ctx, "1")
	require.NoError(t, err)
	a.ReleaseByTag(ctx, "1")
	_, err = a.GetByTag(ctx, "x")
	require.Error(t, err)

	require.NoError(t, a.Stop(ctx))
	require.True(t, a.IsStopped(ctx))
	require.False(t, renderer.IsPlaying(ctx))
	stats := a.GetStats(ctx)
	require.Equal(t, uint64(1), stats.Discarded)
	require.Zero(t, stats.AudioPTS)

	require.NoError(t, a.Start(ctx))
	buf, err := a.GetByTag(ctx, "0")
	require.NoError(t, err)
	require.Equal(t, []byte{1}, buf.Data)
	require.Zero(t, buf.PTS)
}
