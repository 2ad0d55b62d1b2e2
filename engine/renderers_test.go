package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingRenderer struct {
	playing bool
	volume  float64
	err     error
}

func (r *countingRenderer) Play(ctx context.Context) error {
	r.playing = true
	return r.err
}

func (r *countingRenderer) Stop(ctx context.Context) error {
	r.playing = false
	return r.err
}

func (r *countingRenderer) IsPlaying(ctx context.Context) bool { return r.playing }

func (r *countingRenderer) SetPause(ctx context.Context, pause bool) error { return r.err }

func (r *countingRenderer) SetVolume(ctx context.Context, volume float64) error {
	r.volume = volume
	return r.err
}

func TestRenderers(t *testing.T) {
	ctx := context.Background()
	a, b := &countingRenderer{}, &countingRenderer{err: errors.New("broken pipe")}
	s := Renderers{a, b}

	err := s.Play(ctx)
	require.ErrorContains(t, err, "broken pipe")
	require.True(t, a.playing)
	require.True(t, b.playing)
	require.True(t, s.IsPlaying(ctx))

	_ = s.SetVolume(ctx, 0.25)
	require.Equal(t, 0.25, a.volume)
	require.Equal(t, 0.25, b.volume)

	_ = s.Stop(ctx)
	require.False(t, s.IsPlaying(ctx))
	require.NoError(t, Renderers{}.Play(ctx))
}
