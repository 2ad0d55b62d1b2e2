package types

import (
	"time"
)

// AudioBlock is one tick worth of interleaved audio.
type AudioBlock struct {
	Position   int64
	SampleRate int
	Channels   int
	Format     SampleFormat
	Samples    int
	Data       []byte

	// PTS is the virtual presentation timestamp of the first sample.
	PTS time.Duration

	// Underrun is the amount of zero-filled bytes at the tail of Data.
	Underrun int
}

func (b *AudioBlock) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(b.Samples) * int64(time.Second) / int64(b.SampleRate))
}

// VideoImage is one tick worth of video.
type VideoImage struct {
	Position int64
	Width    int
	Height   int
	Format   PixelFormat
	Data     []byte

	// Stale is true if the content was not freshly decoded for this tick
	// (held, re-served on pause or after starvation).
	Stale bool
}

// Frame is what a host timeline hands out per tick: audio and video of
// the same position.
type Frame struct {
	Position int64
	Audio    *AudioBlock
	Video    *VideoImage
}
