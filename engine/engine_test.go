package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/types"
)

func TestInstanceRefCounting(t *testing.T) {
	ctx := context.Background()
	var opened, closed int
	i := NewInstance("test",
		func(ctx context.Context) error { opened++; return nil },
		func(ctx context.Context) error { closed++; return nil },
	)

	require.NoError(t, i.Acquire(ctx))
	require.NoError(t, i.Acquire(ctx))
	require.Equal(t, 1, opened)
	require.Equal(t, 2, i.RefCount(ctx))

	require.NoError(t, i.Release(ctx))
	require.Zero(t, closed)
	require.NoError(t, i.Release(ctx))
	require.Equal(t, 1, closed)
	require.Error(t, i.Release(ctx))

	require.NoError(t, i.Acquire(ctx))
	require.Equal(t, 2, opened)
}

func TestInstanceOpenFailure(t *testing.T) {
	ctx := context.Background()
	i := NewInstance("test", func(ctx context.Context) error { return errors.New("no device") }, nil)
	require.Error(t, i.Acquire(ctx))
	require.Zero(t, i.RefCount(ctx))
}

func TestMediaParse(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	m := NewMedia("test://", func(ctx context.Context) (*MediaInfo, error) {
		<-release
		return &MediaInfo{Duration: 10 * time.Second}, nil
	})

	_, err := m.Parse(ctx, 10*time.Millisecond)
	require.ErrorAs(t, err, &ErrParseTimeout{})
	require.False(t, m.IsParsed())

	close(release)
	info, err := m.Parse(ctx, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, info.Duration)
	require.True(t, m.IsParsed())
}

func TestMediaParseError(t *testing.T) {
	m := NewMedia("test://", func(ctx context.Context) (*MediaInfo, error) {
		return nil, errors.New("broken")
	})
	_, err := m.Parse(context.Background(), 5*time.Second)
	require.Error(t, err)
}

func TestLengthInFrames(t *testing.T) {
	info := &MediaInfo{Duration: 10 * time.Second}
	require.Equal(t, int64(250), info.LengthInFrames(types.Rational{Num: 25, Den: 1}))
	require.Equal(t, int64(300), info.LengthInFrames(types.Rational{Num: 30000, Den: 1001}))
	require.Zero(t, info.LengthInFrames(types.Rational{}))
}
