// Package packer repacks audio chunks of arbitrary sizes into blocks of
// exactly the amount of samples a host timeline tick needs.
package packer

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avbridge/clock"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/queue"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

type Packer struct {
	Queue  *queue.Queue
	Format types.HostFormat

	locker xsync.Mutex
	clock  *clock.Virtual

	stats counters
}

type counters struct {
	Blocks        atomic.Uint64
	Underruns     atomic.Uint64
	UnderrunBytes atomic.Uint64
	Silences      atomic.Uint64
}

type Statistics struct {
	Blocks        uint64 `json:",omitempty"`
	Underruns     uint64 `json:",omitempty"`
	UnderrunBytes uint64 `json:",omitempty"`
	Silences      uint64 `json:",omitempty"`
	PTS           time.Duration
}

func New(q *queue.Queue, format types.HostFormat) *Packer {
	return &Packer{
		Queue:  q,
		Format: format,
		clock:  clock.NewVirtual(types.Rational{Num: format.SampleRate, Den: 1}),
	}
}

func (p *Packer) String() string {
	return fmt.Sprintf("Packer(%s)", p.Queue.Name)
}

// Samples returns the amount of samples of the host frame at position.
func (p *Packer) Samples(position int64) int {
	return clock.SamplesAt(position, p.Format.SampleRate, p.Format.FrameRate)
}

// Pack builds the audio block of the host frame at position. It waits up
// to timeout for enough buffered audio; whatever is missing after that is
// zero-filled (see AudioBlock.Underrun).
func (p *Packer) Pack(
	ctx context.Context,
	position int64,
	timeout time.Duration,
) *types.AudioBlock {
	samples := p.Samples(position)
	data, underrun := p.PackBytes(ctx, p.Format.AudioBufferSize(samples), timeout)
	return &types.AudioBlock{
		Position:   position,
		SampleRate: p.Format.SampleRate,
		Channels:   p.Format.Channels,
		Format:     p.Format.SampleFormat,
		Samples:    samples,
		Data:       data,
		PTS:        p.advanceClock(ctx, int64(samples)),
		Underrun:   underrun,
	}
}

// PackBytes returns exactly n bytes: the next n buffered bytes, with zeros
// in place of whatever was not buffered within timeout. It also returns
// the amount of zero-filled bytes.
//
// Buffered data are consumed as they come, so a producer blocked on a
// queue too small to hold n bytes gets unblocked; every shortfall grows
// the queue capacity.
func (p *Packer) PackBytes(
	ctx context.Context,
	n int,
	timeout time.Duration,
) (_ret []byte, _underrun int) {
	logger.Tracef(ctx, "PackBytes(%d)", n)
	defer func() { logger.Tracef(ctx, "/PackBytes(%d): underrun:%d", n, _underrun) }()
	if n <= 0 {
		return nil, 0
	}

	buf := make([]byte, n)
	deadline := time.Now().Add(timeout)
	grown := false
	read := 0
	for read < n {
		wait := timeout
		if timeout > 0 {
			wait = max(time.Until(deadline), 0)
		}
		ok := p.Queue.WaitReadable(ctx, n-read, wait)
		if ok && !grown && p.Queue.IsFull(ctx) && p.Queue.Bytes(ctx) < n-read {
			logger.Debugf(ctx, "%s: the queue is full with less than %d bytes; growing it", p, n-read)
			p.Queue.Grow(ctx)
			grown = true
		}
		read += p.Queue.Read(ctx, buf[read:])
		if !ok {
			break
		}
	}

	p.stats.Blocks.Inc()
	underrun := n - read
	if underrun > 0 {
		p.stats.Underruns.Inc()
		p.stats.UnderrunBytes.Add(uint64(underrun))
		if !grown {
			p.Queue.Grow(ctx)
		}
	}
	return buf, underrun
}

// Silence returns a zero-filled block for position without consuming
// anything and without advancing the clock.
func (p *Packer) Silence(ctx context.Context, position int64) *types.AudioBlock {
	samples := p.Samples(position)
	p.stats.Silences.Inc()
	return &types.AudioBlock{
		Position:   position,
		SampleRate: p.Format.SampleRate,
		Channels:   p.Format.Channels,
		Format:     p.Format.SampleFormat,
		Samples:    samples,
		Data:       make([]byte, p.Format.AudioBufferSize(samples)),
		PTS:        xsync.DoR1(ctx, &p.locker, p.clock.Now),
	}
}

// advanceClock returns the timestamp of the first sample of the block and
// moves the clock past the block.
func (p *Packer) advanceClock(ctx context.Context, samples int64) time.Duration {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() time.Duration {
		pts := p.clock.Now()
		p.clock.Advance(samples)
		return pts
	})
}

// ResetClock restarts the virtual clock so that the next block has the
// timestamp of the host frame at position.
func (p *Packer) ResetClock(ctx context.Context, position int64) {
	samplesBefore := clock.SamplesBefore(position, p.Format.SampleRate, p.Format.FrameRate)
	base := time.Duration(0)
	if p.Format.SampleRate > 0 {
		base = time.Duration(samplesBefore * int64(time.Second) / int64(p.Format.SampleRate))
	}
	logger.Debugf(ctx, "%s: resetting the clock to %v (position %d)", p, base, position)
	p.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		p.clock.Reset(base)
	})
}

func (p *Packer) GetStats(ctx context.Context) Statistics {
	return Statistics{
		Blocks:        p.stats.Blocks.Load(),
		Underruns:     p.stats.Underruns.Load(),
		UnderrunBytes: p.stats.UnderrunBytes.Load(),
		Silences:      p.stats.Silences.Load(),
		PTS:           xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, p.clock.Now),
	}
}
