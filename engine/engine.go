// Package engine describes the external decoding/rendering engine the
// adapters are bridged to.
//
// Ingest engines push decoded data into Sink-s handed to them, egress
// engines pull data through a PullSource.
package engine

import (
	"context"
	"time"

	"github.com/xaionaro-go/avbridge/types"
)

// Player is an ingest engine playing one channel of a media.
type Player interface {
	Play(ctx context.Context) error
	IsPlaying(ctx context.Context) bool

	// SetTime repositions the playback.
	SetTime(ctx context.Context, t time.Duration) error
	Stop(ctx context.Context) error
}

// Pauser is optionally implemented by a Player able to suspend decoding
// (used to relieve backpressure).
type Pauser interface {
	SetPause(ctx context.Context, pause bool) error
}

// BufferInfo describes a buffer an engine fills through a Sink.
type BufferInfo struct {
	MediaType types.MediaType

	// PTS is the engine timestamp of the buffer, if known.
	PTS time.Duration
}

// Sink receives decoded data of one channel. The engine calls Lock to get
// a buffer of size bytes, fills it and hands it back with Unlock, or gives
// it up with Abort if it could not be filled. Lock blocks while the sink
// is full.
type Sink interface {
	Lock(ctx context.Context, size int) ([]byte, error)
	Unlock(ctx context.Context, buf []byte, info BufferInfo) error
	Abort(ctx context.Context) error
}

// PullBuffer is a piece of data served to an egress engine.
type PullBuffer struct {
	MediaType types.MediaType
	Data      []byte
	PTS       time.Duration

	// Samples is set for audio only.
	Samples int
}

// PullSource is implemented by the egress adapter; an egress engine gets
// the data of a channel and releases it once consumed. The returned
// buffer must not be used after Release.
type PullSource interface {
	Get(ctx context.Context, mediaType types.MediaType) (*PullBuffer, error)
	Release(ctx context.Context, mediaType types.MediaType)
}

// Renderer is an egress engine consuming a PullSource.
type Renderer interface {
	Play(ctx context.Context) error
	Stop(ctx context.Context) error
	IsPlaying(ctx context.Context) bool
	SetPause(ctx context.Context, pause bool) error
	SetVolume(ctx context.Context, volume float64) error
}
