package engine

import (
	"context"
	"errors"
)

// Renderers drives a few renderers consuming the same PullSource (e.g. a
// sound device for audio and a file for video).
type Renderers []Renderer

var _ Renderer = (Renderers)(nil)

func (s Renderers) Play(ctx context.Context) error {
	var result []error
	for _, r := range s {
		result = append(result, r.Play(ctx))
	}
	return errors.Join(result...)
}

func (s Renderers) Stop(ctx context.Context) error {
	var result []error
	for _, r := range s {
		result = append(result, r.Stop(ctx))
	}
	return errors.Join(result...)
}

// IsPlaying returns true if any of the renderers is playing.
func (s Renderers) IsPlaying(ctx context.Context) bool {
	for _, r := range s {
		if r.IsPlaying(ctx) {
			return true
		}
	}
	return false
}

func (s Renderers) SetPause(ctx context.Context, pause bool) error {
	var result []error
	for _, r := range s {
		result = append(result, r.SetPause(ctx, pause))
	}
	return errors.Join(result...)
}

func (s Renderers) SetVolume(ctx context.Context, volume float64) error {
	var result []error
	for _, r := range s {
		result = append(result, r.SetVolume(ctx, volume))
	}
	return errors.Join(result...)
}
