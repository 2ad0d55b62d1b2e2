// Package rawout renders one channel of a PullSource into an io.Writer
// (a file, a pipe to ffplay, etc).
package rawout

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/avbridge/egress"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

type Writer struct {
	MediaType types.MediaType
	Source    engine.PullSource
	Output    io.Writer

	locker     xsync.Mutex
	changeCh   chan struct{}
	paused     bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	written atomic.Uint64
}

var _ engine.Renderer = (*Writer)(nil)

func New(mediaType types.MediaType, source engine.PullSource, output io.Writer) *Writer {
	return &Writer{
		MediaType: mediaType,
		Source:    source,
		Output:    output,
		changeCh:  make(chan struct{}),
	}
}

func (w *Writer) String() string {
	return fmt.Sprintf("RawWriter(%s)", w.MediaType)
}

func (w *Writer) signalLocked() {
	close(w.changeCh)
	w.changeCh = make(chan struct{})
}

func (w *Writer) Play(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Play")
	defer func() { logger.Tracef(ctx, "/Play: %v", _err) }()
	w.locker.Do(ctx, func() {
		if w.loopCancel != nil {
			return
		}
		ctx = belt.WithField(xcontext.DetachDone(ctx), "channel", w.MediaType.String())
		ctx, cancelFn := context.WithCancel(ctx)
		loopDone := make(chan struct{})
		w.loopCancel = cancelFn
		w.loopDone = loopDone
		observability.Go(ctx, func(ctx context.Context) {
			defer close(loopDone)
			w.loop(ctx)
		})
	})
	return nil
}

func (w *Writer) Stop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()
	var loopDone chan struct{}
	w.locker.Do(ctx, func() {
		if w.loopCancel == nil {
			return
		}
		w.loopCancel()
		w.loopCancel = nil
		loopDone = w.loopDone
		w.signalLocked()
	})
	if loopDone == nil {
		return nil
	}
	select {
	case <-loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) IsPlaying(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &w.locker, func() bool {
		return w.loopCancel != nil && !w.paused
	})
}

func (w *Writer) SetPause(ctx context.Context, pause bool) error {
	w.locker.Do(ctx, func() {
		w.paused = pause
		w.signalLocked()
	})
	return nil
}

// SetVolume is not supported: the data are written as is.
func (w *Writer) SetVolume(ctx context.Context, volume float64) error {
	return nil
}

// Written returns the amount of bytes written so far.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

func (w *Writer) awaitUnpaused(ctx context.Context) bool {
	for {
		w.locker.ManualLock(ctx)
		if !w.paused {
			w.locker.ManualUnlock(ctx)
			return true
		}
		changeCh := w.changeCh
		w.locker.ManualUnlock(ctx)
		select {
		case <-changeCh:
		case <-ctx.Done():
			return false
		}
	}
}

func (w *Writer) loop(ctx context.Context) {
	logger.Debugf(ctx, "loop")
	defer func() { logger.Debugf(ctx, "/loop") }()
	for w.awaitUnpaused(ctx) {
		buf, err := w.Source.Get(ctx, w.MediaType)
		if err != nil {
			if errors.As(err, &egress.ErrStopped{}) {
				if !w.awaitRestart(ctx) {
					return
				}
				continue
			}
			if ctx.Err() == nil && !errors.As(err, &egress.ErrClosed{}) {
				logger.Errorf(ctx, "unable to get data: %v", err)
			}
			return
		}
		n, err := w.Output.Write(buf.Data)
		w.written.Add(uint64(n))
		w.Source.Release(ctx, w.MediaType)
		if err != nil {
			logger.Errorf(ctx, "unable to write: %v", err)
			return
		}
	}
}

// awaitRestart waits for the next state change of the writer.
func (w *Writer) awaitRestart(ctx context.Context) bool {
	changeCh := xsync.DoR1(ctx, &w.locker, func() chan struct{} {
		return w.changeCh
	})
	select {
	case <-changeCh:
		return true
	case <-ctx.Done():
		return false
	}
}
