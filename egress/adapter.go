// Package egress bridges a pull-based host timeline to an engine that
// pulls audio and video separately: one host frame is pulled per tick and
// is served to both channels.
package egress

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/avbridge/clock"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/helpers/closuresignaler"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

type cachedFrame struct {
	Frame    *types.Frame
	Served   [2]bool
	Released [2]bool
}

func (f *cachedFrame) isServed(mediaType types.MediaType) bool {
	return f.Served[mediaType]
}

func (f *cachedFrame) isFullyServed() bool {
	return f.Served[types.MediaTypeAudio] && f.Served[types.MediaTypeVideo]
}

// Adapter is the FrameCacheAdapter: it holds at most one host frame at a
// time, serves it to both channels and notifies the host once the frame
// is released.
//
// Host methods are called with the adapter lock held, so a Host must not
// call back into the Adapter.
type Adapter struct {
	*closuresignaler.ClosureSignaler
	Config   Config
	Host     Host
	Renderer engine.Renderer

	locker     xsync.Mutex
	cached     *cachedFrame
	changeCh   chan struct{}
	stopped    bool
	audioClock *clock.Virtual
	videoClock *clock.Virtual

	stats counters
}

var _ engine.PullSource = (*Adapter)(nil)

type counters struct {
	Pulls           atomic.Uint64
	PullErrors      atomic.Uint64
	Shown           atomic.Uint64
	Retired         atomic.Uint64
	ReleaseTimeouts atomic.Uint64
	Discarded       atomic.Uint64
}

type Statistics struct {
	Pulls           uint64 `json:",omitempty"`
	PullErrors      uint64 `json:",omitempty"`
	Shown           uint64 `json:",omitempty"`
	Retired         uint64 `json:",omitempty"`
	ReleaseTimeouts uint64 `json:",omitempty"`
	Discarded       uint64 `json:",omitempty"`
	AudioPTS        time.Duration
	VideoPTS        time.Duration
}

func New(host Host, cfg Config) (*Adapter, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host format: %w", err)
	}
	return &Adapter{
		ClosureSignaler: closuresignaler.New(),
		Config:          cfg,
		Host:            host,
		changeCh:        make(chan struct{}),
		stopped:         true,
		audioClock:      clock.NewVirtual(types.Rational{Num: cfg.Format.SampleRate, Den: 1}),
		videoClock:      clock.NewVirtual(cfg.Format.FrameRate),
	}, nil
}

func (a *Adapter) String() string {
	return "FrameCacheAdapter"
}

func (a *Adapter) signalLocked() {
	close(a.changeCh)
	a.changeCh = make(chan struct{})
}

// GetByTag is Get for engines that identify channels by a cookie tag
// ("0" for video, "1" for audio).
func (a *Adapter) GetByTag(ctx context.Context, tag string) (*engine.PullBuffer, error) {
	mediaType, err := types.ParseChannelTag(tag)
	if err != nil {
		return nil, err
	}
	return a.Get(ctx, mediaType)
}

// ReleaseByTag is Release for engines that identify channels by a cookie
// tag.
func (a *Adapter) ReleaseByTag(ctx context.Context, tag string) {
	mediaType, err := types.ParseChannelTag(tag)
	if err != nil {
		logger.Warnf(ctx, "unable to release: %v", err)
		return
	}
	a.Release(ctx, mediaType)
}

// Get serves the data of the given channel, pulling a new host frame only
// if the cached one was already served to this channel.
func (a *Adapter) Get(
	ctx context.Context,
	mediaType types.MediaType,
) (_ret *engine.PullBuffer, _err error) {
	ctx = belt.WithField(ctx, "channel", mediaType.String())
	logger.Tracef(ctx, "Get")
	defer func() { logger.Tracef(ctx, "/Get: %v", _err) }()

	switch mediaType {
	case types.MediaTypeAudio, types.MediaTypeVideo:
	default:
		return nil, fmt.Errorf("unexpected media type %s", mediaType)
	}

	var releaseDeadline <-chan time.Time
	for {
		a.locker.ManualLock(ctx)
		if a.IsClosed() {
			a.locker.ManualUnlock(ctx)
			return nil, ErrClosed{}
		}
		if a.stopped {
			a.locker.ManualUnlock(ctx)
			return nil, ErrStopped{}
		}

		cached := a.cached
		switch {
		case cached == nil:
		case !cached.isServed(mediaType):
			buf := a.serveLocked(ctx, cached, mediaType)
			a.locker.ManualUnlock(ctx)
			return buf, nil
		case !cached.isFullyServed():
			logger.Debugf(ctx, "the other channel did not request frame %d; retiring it", cached.Frame.Position)
			a.stats.Retired.Inc()
			a.showLocked(ctx)
		default:
			if releaseDeadline == nil {
				releaseDeadline = time.After(a.Config.ReleaseTimeout)
			}
			changeCh := a.changeCh
			a.locker.ManualUnlock(ctx)

			select {
			case <-changeCh:
				continue
			case <-releaseDeadline:
				a.locker.Do(ctx, func() {
					if a.cached != cached {
						return
					}
					logger.Warnf(ctx, "frame %d was not released within %v; retiring it", cached.Frame.Position, a.Config.ReleaseTimeout)
					a.stats.ReleaseTimeouts.Inc()
					a.showLocked(ctx)
				})
				releaseDeadline = nil
				continue
			case <-a.CloseChan():
				return nil, ErrClosed{}
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		frame, err := a.Host.PullFrame(ctx)
		if err != nil {
			a.stats.PullErrors.Inc()
			a.locker.ManualUnlock(ctx)
			return nil, fmt.Errorf("unable to pull a frame from the host: %w", err)
		}
		a.stats.Pulls.Inc()
		a.cached = &cachedFrame{Frame: frame}
		buf := a.serveLocked(ctx, a.cached, mediaType)
		a.locker.ManualUnlock(ctx)
		return buf, nil
	}
}

func (a *Adapter) serveLocked(
	ctx context.Context,
	cached *cachedFrame,
	mediaType types.MediaType,
) *engine.PullBuffer {
	cached.Served[mediaType] = true
	a.signalLocked()

	frame := cached.Frame
	switch mediaType {
	case types.MediaTypeAudio:
		samples := clock.SamplesAt(frame.Position, a.Config.Format.SampleRate, a.Config.Format.FrameRate)
		var data []byte
		if frame.Audio != nil {
			samples = frame.Audio.Samples
			data = frame.Audio.Data
		} else {
			data = make([]byte, a.Config.Format.AudioBufferSize(samples))
		}
		pts := a.audioClock.Now()
		a.audioClock.Advance(int64(samples))
		return &engine.PullBuffer{
			MediaType: mediaType,
			Data:      data,
			PTS:       pts,
			Samples:   samples,
		}
	default:
		var data []byte
		if frame.Video != nil {
			data = frame.Video.Data
		} else {
			data = make([]byte, a.Config.Format.ImageBufferSize())
			a.Config.Format.PixelFormat.FillBlack(data)
		}
		pts := a.videoClock.Now()
		a.videoClock.Advance(1)
		return &engine.PullBuffer{
			MediaType: mediaType,
			Data:      data,
			PTS:       pts,
		}
	}
}

// showLocked notifies the host and drops the cached frame.
func (a *Adapter) showLocked(ctx context.Context) {
	cached := a.cached
	if cached == nil {
		return
	}
	a.cached = nil
	a.stats.Shown.Inc()
	a.signalLocked()
	a.Host.FrameShown(ctx, cached.Frame)
}

// Release tells the adapter the engine is done with the data it got from
// Get. A release not matching the cached frame is ignored.
func (a *Adapter) Release(ctx context.Context, mediaType types.MediaType) {
	ctx = belt.WithField(ctx, "channel", mediaType.String())
	logger.Tracef(ctx, "Release")
	defer func() { logger.Tracef(ctx, "/Release") }()

	a.locker.Do(ctx, func() {
		cached := a.cached
		if cached == nil || mediaType < 0 || int(mediaType) >= len(cached.Served) || !cached.isServed(mediaType) {
			return
		}
		cached.Released[mediaType] = true
		if !cached.isFullyServed() {
			a.signalLocked()
			return
		}
		a.showLocked(ctx)
	})
}

// Start makes the adapter serve requests and starts the renderer.
func (a *Adapter) Start(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Start")
	defer func() { logger.Tracef(ctx, "/Start: %v", _err) }()
	a.locker.Do(ctx, func() {
		a.stopped = false
		a.signalLocked()
	})
	if a.Renderer == nil {
		return nil
	}
	if err := a.Renderer.Play(ctx); err != nil {
		return fmt.Errorf("unable to start the renderer: %w", err)
	}
	return nil
}

// Stop stops the renderer, purges the cached frame and resets the
// timestamps. Pending requests return ErrStopped.
func (a *Adapter) Stop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()
	a.locker.Do(ctx, func() {
		a.stopped = true
		a.purgeLocked(ctx)
		a.audioClock.Reset(0)
		a.videoClock.Reset(0)
		a.signalLocked()
	})
	if a.Renderer == nil {
		return nil
	}
	if err := a.Renderer.Stop(ctx); err != nil {
		return fmt.Errorf("unable to stop the renderer: %w", err)
	}
	return nil
}

func (a *Adapter) IsStopped(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &a.locker, func() bool {
		return a.stopped
	})
}

// Purge destroys the cached frame without notifying the host.
func (a *Adapter) Purge(ctx context.Context) {
	a.locker.Do(ctx, func() {
		a.purgeLocked(ctx)
	})
}

func (a *Adapter) purgeLocked(ctx context.Context) {
	if a.cached == nil {
		return
	}
	logger.Debugf(ctx, "discarding frame %d", a.cached.Frame.Position)
	a.cached = nil
	a.stats.Discarded.Inc()
	a.signalLocked()
}

func (a *Adapter) SetVolume(ctx context.Context, volume float64) error {
	if a.Renderer == nil {
		return nil
	}
	return a.Renderer.SetVolume(ctx, volume)
}

func (a *Adapter) SetPause(ctx context.Context, pause bool) error {
	if a.Renderer == nil {
		return nil
	}
	return a.Renderer.SetPause(ctx, pause)
}

// Close wakes up the waiting requests and discards an unreleased frame.
func (a *Adapter) Close(ctx context.Context) error {
	a.ClosureSignaler.Close(ctx)
	a.locker.Do(ctx, func() {
		a.purgeLocked(ctx)
		a.signalLocked()
	})
	if a.Renderer == nil {
		return nil
	}
	if err := a.Renderer.Stop(ctx); err != nil {
		return fmt.Errorf("unable to stop the renderer: %w", err)
	}
	return nil
}

func (a *Adapter) GetStats(ctx context.Context) Statistics {
	s := Statistics{
		Pulls:           a.stats.Pulls.Load(),
		PullErrors:      a.stats.PullErrors.Load(),
		Shown:           a.stats.Shown.Load(),
		Retired:         a.stats.Retired.Load(),
		ReleaseTimeouts: a.stats.ReleaseTimeouts.Load(),
		Discarded:       a.stats.Discarded.Load(),
	}
	a.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		s.AudioPTS = a.audioClock.Now()
		s.VideoPTS = a.videoClock.Now()
	})
	return s
}
