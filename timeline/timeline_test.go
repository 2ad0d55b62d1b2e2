package timeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/types"
)

type fakeSource struct {
	locker    sync.Mutex
	positions []int64
}

func (s *fakeSource) GetFrame(ctx context.Context, position int64) *types.Frame {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.positions = append(s.positions, position)
	return &types.Frame{Position: position}
}

func (s *fakeSource) Positions() []int64 {
	s.locker.Lock()
	defer s.locker.Unlock()
	return append([]int64(nil), s.positions...)
}

func pull(t *testing.T, tl *Timeline, count int) {
	for i := 0; i < count; i++ {
		_, err := tl.PullFrame(context.Background())
		require.NoError(t, err)
	}
}

func TestTimelineSequential(t *testing.T) {
	src := &fakeSource{}
	cfg := DefaultConfig()
	cfg.StartPosition = 10
	tl, err := New(src, cfg)
	require.NoError(t, err)

	pull(t, tl, 3)
	require.Equal(t, []int64{10, 11, 12}, src.Positions())
	require.Equal(t, int64(13), tl.Position(context.Background()))
}

func TestTimelinePauseRepeatsPosition(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	tl, err := New(src, DefaultConfig())
	require.NoError(t, err)

	pull(t, tl, 2)
	tl.SetPause(ctx, true)
	require.True(t, tl.IsPaused(ctx))
	pull(t, tl, 2)
	tl.SetPause(ctx, false)
	pull(t, tl, 1)

	require.Equal(t, []int64{0, 1, 1, 1, 2}, src.Positions())
	require.Equal(t, uint64(2), tl.GetStats(ctx).Repeated)
}

func TestTimelineSeek(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	cfg := DefaultConfig()
	cfg.Length = 100
	tl, err := New(src, cfg)
	require.NoError(t, err)

	pull(t, tl, 1)
	require.NoError(t, tl.Seek(ctx, 40))
	pull(t, tl, 1)
	require.Error(t, tl.Seek(ctx, 100))
	require.Error(t, tl.Seek(ctx, -1))

	require.Equal(t, []int64{0, 40}, src.Positions())
}

func TestTimelineEnd(t *testing.T) {
	src := &fakeSource{}
	cfg := DefaultConfig()
	cfg.Length = 2
	tl, err := New(src, cfg)
	require.NoError(t, err)

	pull(t, tl, 2)
	_, err = tl.PullFrame(context.Background())
	require.ErrorAs(t, err, &ErrEnd{})
}

func TestTimelineRealtime(t *testing.T) {
	src := &fakeSource{}
	cfg := DefaultConfig()
	cfg.FrameRate = types.Rational{Num: 100, Den: 1}
	cfg.Realtime = true
	tl, err := New(src, cfg)
	require.NoError(t, err)

	startTS := time.Now()
	pull(t, tl, 6)
	require.GreaterOrEqual(t, time.Since(startTS), 45*time.Millisecond)
}

func TestTimelineFrameShown(t *testing.T) {
	ctx := context.Background()
	var shown []int64
	tl, err := New(&fakeSource{}, DefaultConfig())
	require.NoError(t, err)
	tl.OnFrameShown = func(ctx context.Context, frame *types.Frame) {
		shown = append(shown, frame.Position)
	}

	frame, err := tl.PullFrame(ctx)
	require.NoError(t, err)
	tl.FrameShown(ctx, frame)

	require.Equal(t, []int64{0}, shown)
	stats := tl.GetStats(ctx)
	require.Equal(t, uint64(1), stats.Shown)
	require.NotNil(t, stats.LastShown)
	require.Equal(t, int64(0), *stats.LastShown)
}

func TestTimelineTimeOf(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameRate = types.Rational{Num: 30000, Den: 1001}
	tl, err := New(&fakeSource{}, cfg)
	require.NoError(t, err)
	require.Equal(t, 1001*time.Millisecond, tl.TimeOf(30))
}
