// Package timeline implements a host timeline: an integer position
// advancing by one per tick, each tick pulling one frame.
package timeline

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avbridge/egress"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// FrameSource returns the frame of a position (see ingest.Ingest).
type FrameSource interface {
	GetFrame(ctx context.Context, position int64) *types.Frame
}

// FuncOnFrameShown is called when a pulled frame is done with.
type FuncOnFrameShown func(ctx context.Context, frame *types.Frame)

type Timeline struct {
	Config       Config
	Source       FrameSource
	OnFrameShown FuncOnFrameShown

	locker     xsync.Mutex
	next       int64
	paused     bool
	lastPulled typing.Optional[int64]
	lastShown  typing.Optional[int64]

	// pacing base: position paceBase is due at paceStartTS
	paceStartTS time.Time
	paceBase    int64

	stats counters
}

var _ egress.Host = (*Timeline)(nil)

type counters struct {
	Pulled   atomic.Uint64
	Repeated atomic.Uint64
	Shown    atomic.Uint64
	Late     atomic.Uint64
}

type Statistics struct {
	Pulled    uint64 `json:",omitempty"`
	Repeated  uint64 `json:",omitempty"`
	Shown     uint64 `json:",omitempty"`
	Late      uint64 `json:",omitempty"`
	Position  int64
	LastShown *int64 `json:",omitempty"`
}

func New(source FrameSource, cfg Config) (*Timeline, error) {
	if !cfg.FrameRate.IsPositive() {
		return nil, fmt.Errorf("invalid frame rate %s", cfg.FrameRate)
	}
	if cfg.StartPosition < 0 {
		return nil, fmt.Errorf("negative start position %d", cfg.StartPosition)
	}
	return &Timeline{
		Config:   cfg,
		Source:   source,
		next:     cfg.StartPosition,
		paceBase: cfg.StartPosition,
	}, nil
}

func (tl *Timeline) String() string {
	return fmt.Sprintf("Timeline(%s)", tl.Config.FrameRate)
}

// TimeOf returns the time offset of a position relative to position zero.
func (tl *Timeline) TimeOf(position int64) time.Duration {
	fps := tl.Config.FrameRate
	return time.Duration(position * int64(time.Second) * int64(fps.Den) / int64(fps.Num))
}

// PullFrame returns the frame of the current position and advances the
// position; while paused the previous position is requested again.
func (tl *Timeline) PullFrame(ctx context.Context) (_ret *types.Frame, _err error) {
	logger.Tracef(ctx, "PullFrame")
	defer func() { logger.Tracef(ctx, "/PullFrame: %v", _err) }()

	next, err := xsync.DoA1R2(ctx, &tl.locker, tl.nextTickLocked, ctx)
	if err != nil {
		return nil, err
	}

	if !next.DueTS.IsZero() {
		if err := tl.waitUntil(ctx, next.DueTS); err != nil {
			return nil, err
		}
	}

	frame := tl.Source.GetFrame(ctx, next.Position)
	if frame == nil {
		return nil, fmt.Errorf("no frame for position %d", next.Position)
	}
	tl.stats.Pulled.Inc()
	return frame, nil
}

type tick struct {
	Position int64

	// DueTS is zero if the timeline is not paced.
	DueTS time.Time
}

func (tl *Timeline) nextTickLocked(ctx context.Context) (tick, error) {
	if tl.Config.Length > 0 && tl.next >= tl.Config.Length && !tl.paused {
		return tick{}, ErrEnd{Length: tl.Config.Length}
	}

	var position int64
	index := tl.next
	switch {
	case tl.paused && tl.lastPulled.IsSet():
		position = tl.lastPulled.Get()
		tl.stats.Repeated.Inc()
	default:
		position = tl.next
		tl.next++
		tl.lastPulled = typing.Opt(position)
	}

	if !tl.Config.Realtime {
		return tick{Position: position}, nil
	}
	if tl.paceStartTS.IsZero() {
		tl.paceStartTS = time.Now()
		tl.paceBase = index
	}
	if tl.paused {
		// the pace keeps going while the position stands still
		tl.paceBase--
	}
	return tick{
		Position: position,
		DueTS:    tl.paceStartTS.Add(tl.TimeOf(index - tl.paceBase)),
	}, nil
}

func (tl *Timeline) waitUntil(ctx context.Context, ts time.Time) error {
	d := time.Until(ts)
	if d <= 0 {
		if d < -tl.TimeOf(1) {
			tl.stats.Late.Inc()
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tl *Timeline) FrameShown(ctx context.Context, frame *types.Frame) {
	tl.stats.Shown.Inc()
	tl.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		tl.lastShown = typing.Opt(frame.Position)
	})
	if tl.OnFrameShown != nil {
		tl.OnFrameShown(ctx, frame)
	}
}

// Seek moves the timeline to the given position.
func (tl *Timeline) Seek(ctx context.Context, position int64) error {
	logger.Debugf(ctx, "Seek(%d)", position)
	if position < 0 {
		return fmt.Errorf("negative position %d", position)
	}
	if tl.Config.Length > 0 && position >= tl.Config.Length {
		return fmt.Errorf("position %d is beyond the end (%d)", position, tl.Config.Length)
	}
	tl.locker.Do(ctx, func() {
		tl.next = position
		tl.lastPulled = typing.Optional[int64]{}
		tl.paceStartTS = time.Time{}
	})
	return nil
}

func (tl *Timeline) SetPause(ctx context.Context, pause bool) {
	logger.Debugf(ctx, "SetPause(%t)", pause)
	tl.locker.Do(ctx, func() {
		tl.paused = pause
	})
}

func (tl *Timeline) IsPaused(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &tl.locker, func() bool {
		return tl.paused
	})
}

// Position returns the position the next PullFrame will request.
func (tl *Timeline) Position(ctx context.Context) int64 {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &tl.locker, func() int64 {
		return tl.next
	})
}

func (tl *Timeline) GetStats(ctx context.Context) Statistics {
	s := Statistics{
		Pulled:   tl.stats.Pulled.Load(),
		Repeated: tl.stats.Repeated.Load(),
		Shown:    tl.stats.Shown.Load(),
		Late:     tl.stats.Late.Load(),
	}
	tl.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		s.Position = tl.next
		if tl.lastShown.IsSet() {
			v := tl.lastShown.Get()
			s.LastShown = &v
		}
	})
	return s
}
