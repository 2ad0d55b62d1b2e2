// Package rate adapts the cadence of decoded video frames to the cadence
// of a host timeline by holding or skipping frames.
package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avbridge/chunk"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/queue"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// Adapter serves one image per host tick out of a queue of decoded
// frames produced at DecodeRate, while the host ticks at HostRate.
//
// After t sequential ticks since the latest Reset, the decoded frame due
// is floor(t*DecodeRate/HostRate). Integer arithmetic keeps it drift-free.
type Adapter struct {
	Queue  *queue.Queue
	Format types.HostFormat

	locker     xsync.Mutex
	decodeRate types.Rational
	ticks      int64
	served     int64
	last       *chunk.Chunk
	lastServed typing.Optional[int64]

	stats counters
}

type counters struct {
	Served  atomic.Uint64
	Held    atomic.Uint64
	Skipped atomic.Uint64
	Stale   atomic.Uint64
	Blank   atomic.Uint64
}

type Statistics struct {
	Served  uint64 `json:",omitempty"`
	Held    uint64 `json:",omitempty"`
	Skipped uint64 `json:",omitempty"`
	Stale   uint64 `json:",omitempty"`
	Blank   uint64 `json:",omitempty"`
}

func New(q *queue.Queue, format types.HostFormat) *Adapter {
	return &Adapter{
		Queue:      q,
		Format:     format,
		decodeRate: format.FrameRate,
		served:     -1,
	}
}

func (a *Adapter) String() string {
	return fmt.Sprintf("RateAdapter(%s)", a.Queue.Name)
}

// SetDecodeRate changes the rate the frames are produced at; it also
// resets the accumulators.
func (a *Adapter) SetDecodeRate(ctx context.Context, decodeRate types.Rational) {
	if !decodeRate.IsPositive() {
		logger.Warnf(ctx, "%s: ignoring invalid decode rate %s", a, decodeRate)
		return
	}
	logger.Debugf(ctx, "%s: decode rate %s, host rate %s", a, decodeRate, a.Format.FrameRate)
	a.locker.Do(ctx, func() {
		a.decodeRate = decodeRate.Normalized()
		a.resetLocked()
	})
}

func (a *Adapter) DecodeRate(ctx context.Context) types.Rational {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &a.locker, func() types.Rational {
		return a.decodeRate
	})
}

// Reset restarts the accumulators (after a reposition). The last served
// frame is kept as the fallback for starvation.
func (a *Adapter) Reset(ctx context.Context) {
	a.locker.Do(xsync.WithNoLogging(ctx, true), a.resetLocked)
}

func (a *Adapter) resetLocked() {
	a.ticks = 0
	a.served = -1
}

func (a *Adapter) dueIndexLocked() int64 {
	hostRate := a.Format.FrameRate.Normalized()
	num := a.ticks * int64(a.decodeRate.Num) * int64(hostRate.Den)
	den := int64(a.decodeRate.Den) * int64(hostRate.Num)
	if den <= 0 {
		return a.ticks
	}
	return num / den
}

// Next serves the sequential tick for position. skipped is the amount of
// positions the host jumped over right before it.
func (a *Adapter) Next(
	ctx context.Context,
	position int64,
	skipped int64,
	timeout time.Duration,
) (_ret *types.VideoImage) {
	logger.Tracef(ctx, "Next(%d, %d)", position, skipped)
	defer func() { logger.Tracef(ctx, "/Next(%d, %d): stale:%t", position, skipped, _ret.Stale) }()

	a.locker.ManualLock(ctx)
	a.ticks += skipped
	due := a.dueIndexLocked()
	a.ticks++
	served := a.served
	a.locker.ManualUnlock(ctx)

	if due <= served {
		return a.Hold(ctx, position)
	}

	if toSkip := due - served - 1; toSkip > 0 {
		discarded := a.Queue.Discard(ctx, int(toSkip))
		a.stats.Skipped.Add(uint64(discarded))
	}

	c, ok := a.Queue.TryPop(ctx, timeout)
	if !ok {
		// the late frame will be served on the next tick instead of being
		// skipped as outdated
		a.locker.Do(xsync.WithNoLogging(ctx, true), func() {
			a.served = due
		})
		a.Queue.Grow(ctx)
		return a.fallback(ctx, position)
	}

	img := a.imageFrom(position, c.Buffer, false)
	a.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		if a.last != nil {
			chunk.Put(a.last)
		}
		a.last = c
		a.served = due
		a.lastServed = typing.Opt(position)
	})
	a.stats.Served.Inc()
	return img
}

// Hold re-serves a copy of the last frame (paused host).
func (a *Adapter) Hold(ctx context.Context, position int64) *types.VideoImage {
	img := a.retained(ctx, position)
	if img == nil {
		a.stats.Blank.Inc()
		return a.blank(position)
	}
	a.stats.Held.Inc()
	return img
}

func (a *Adapter) fallback(ctx context.Context, position int64) *types.VideoImage {
	img := a.retained(ctx, position)
	if img == nil {
		a.stats.Blank.Inc()
		return a.blank(position)
	}
	a.stats.Stale.Inc()
	return img
}

func (a *Adapter) retained(ctx context.Context, position int64) *types.VideoImage {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &a.locker, func() *types.VideoImage {
		if a.last == nil {
			return nil
		}
		return a.imageFrom(position, a.last.Buffer, true)
	})
}

// LastServed returns the position the latest fresh frame was served for.
func (a *Adapter) LastServed(ctx context.Context) typing.Optional[int64] {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &a.locker, func() typing.Optional[int64] {
		return a.lastServed
	})
}

func (a *Adapter) imageFrom(position int64, data []byte, stale bool) *types.VideoImage {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &types.VideoImage{
		Position: position,
		Width:    a.Format.Width,
		Height:   a.Format.Height,
		Format:   a.Format.PixelFormat,
		Data:     buf,
		Stale:    stale,
	}
}

func (a *Adapter) blank(position int64) *types.VideoImage {
	buf := make([]byte, a.Format.ImageBufferSize())
	a.Format.PixelFormat.FillBlack(buf)
	return &types.VideoImage{
		Position: position,
		Width:    a.Format.Width,
		Height:   a.Format.Height,
		Format:   a.Format.PixelFormat,
		Data:     buf,
		Stale:    true,
	}
}

// Close recycles the retained frame.
func (a *Adapter) Close(ctx context.Context) error {
	a.locker.Do(ctx, func() {
		if a.last != nil {
			chunk.Put(a.last)
			a.last = nil
		}
	})
	return nil
}

func (a *Adapter) GetStats() Statistics {
	return Statistics{
		Served:  a.stats.Served.Load(),
		Held:    a.stats.Held.Load(),
		Skipped: a.stats.Skipped.Load(),
		Stale:   a.stats.Stale.Load(),
		Blank:   a.stats.Blank.Load(),
	}
}
