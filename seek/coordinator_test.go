package seek

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/chunk"
	"github.com/xaionaro-go/avbridge/engine/enginetest"
	"github.com/xaionaro-go/avbridge/queue"
	"github.com/xaionaro-go/avbridge/types"
)

func TestTimeOf(t *testing.T) {
	for _, tc := range []struct {
		position int64
		fps      types.Rational
		expected time.Duration
	}{
		{0, types.Rational{Num: 25, Den: 1}, 0},
		{40, types.Rational{Num: 25, Den: 1}, 1600 * time.Millisecond},
		{1, types.Rational{Num: 30000, Den: 1001}, 33 * time.Millisecond},
		{3, types.Rational{Num: 30000, Den: 1001}, 100 * time.Millisecond},
		{10, types.Rational{}, 0},
	} {
		require.Equal(t, tc.expected, TimeOf(tc.position, tc.fps), "%d@%s", tc.position, tc.fps)
	}
}

func TestSeekFlushesAndRepositions(t *testing.T) {
	ctx := context.Background()
	player := enginetest.NewPlayer()
	q := queue.New("video", queue.Config{InitialCapacity: 2, MaxCapacity: 8}, nil)
	defer q.Close(ctx)

	require.NoError(t, q.Push(ctx, chunk.FromBytes([]byte{1})))
	q.Grow(ctx)

	var resetTo []int64
	c := New("video", player, types.Rational{Num: 25, Den: 1}, []*queue.Queue{q}, func(ctx context.Context, position int64) {
		resetTo = append(resetTo, position)
	})
	c.Seek(ctx, 40)

	require.Zero(t, q.Len(ctx))
	require.Equal(t, uint(2), q.Capacity(ctx))
	require.Equal(t, []int64{40}, resetTo)
	require.Equal(t, []time.Duration{1600 * time.Millisecond}, player.SetTimeCalls())
	require.Equal(t, uint64(1), c.GetStats().Seeks)
}

func TestSeekFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	player := enginetest.NewPlayer()
	player.SetTimeError = errors.New("not seekable")

	c := New("audio", player, types.Rational{Num: 25, Den: 1}, nil)
	c.Seek(ctx, 10)
	c.Seek(ctx, 20)

	require.Len(t, player.SetTimeCalls(), 2)
	require.Equal(t, Statistics{Seeks: 2, Failures: 2}, c.GetStats())
}
