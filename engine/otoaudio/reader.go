package otoaudio

import (
	"context"
	"errors"
	"io"

	"github.com/xaionaro-go/avbridge/egress"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
)

// pullReader exposes the audio channel of a PullSource as a byte stream.
// Each served buffer is copied out and released right away.
type pullReader struct {
	ctx      context.Context
	source   engine.PullSource
	leftover []byte
}

var _ io.Reader = (*pullReader)(nil)

func newPullReader(ctx context.Context, source engine.PullSource) *pullReader {
	return &pullReader{
		ctx:    ctx,
		source: source,
	}
}

func (r *pullReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(r.leftover) == 0 {
		if err := r.fetch(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.leftover)
	r.leftover = r.leftover[n:]
	return n, nil
}

func (r *pullReader) fetch() error {
	buf, err := r.source.Get(r.ctx, types.MediaTypeAudio)
	switch {
	case err == nil:
	case errors.As(err, &egress.ErrClosed{}), errors.Is(err, context.Canceled):
		return io.EOF
	default:
		return err
	}
	r.leftover = append(r.leftover[:0], buf.Data...)
	r.source.Release(r.ctx, types.MediaTypeAudio)
	logger.Tracef(r.ctx, "fetched %d bytes (pts: %v)", len(buf.Data), buf.PTS)
	return nil
}

// reset drops the bytes not consumed yet.
func (r *pullReader) reset() {
	r.leftover = r.leftover[:0]
}
