package libav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

// Player decodes one channel of a media and pushes it into a Sink.
//
// At the end of the stream the decoder idles until the next SetTime.
type Player struct {
	MediaType types.MediaType
	URL       string
	Config    Config
	Sink      engine.Sink

	locker     xsync.Mutex
	changeCh   chan struct{}
	playing    bool
	paused     bool
	eof        bool
	seekTo     typing.Optional[time.Duration]
	loopCancel context.CancelFunc
	loopDone   chan struct{}

	// owned by the decoding loop while it runs
	input     *input
	converter converter
	dropUntil typing.Optional[time.Duration]
}

var _ engine.Player = (*Player)(nil)
var _ engine.Pauser = (*Player)(nil)

func NewPlayer(
	mediaType types.MediaType,
	url string,
	cfg Config,
	sink engine.Sink,
) *Player {
	return &Player{
		MediaType: mediaType,
		URL:       url,
		Config:    cfg,
		Sink:      sink,
		changeCh:  make(chan struct{}),
	}
}

func (p *Player) String() string {
	return fmt.Sprintf("Player(%s:%s)", p.MediaType, p.URL)
}

func (p *Player) signalLocked() {
	close(p.changeCh)
	p.changeCh = make(chan struct{})
}

func (p *Player) Play(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Play")
	defer func() { logger.Tracef(ctx, "/Play: %v", _err) }()
	return xsync.DoA1R1(ctx, &p.locker, p.playLocked, ctx)
}

func (p *Player) playLocked(ctx context.Context) error {
	if p.playing {
		return nil
	}

	if p.input == nil {
		i, err := openInput(ctx, p.URL, p.Config.AuthKey, p.Config.Options)
		if err != nil {
			return err
		}
		if err := i.openDecoder(ctx, p.MediaType); err != nil {
			i.Close(ctx)
			return err
		}
		c, err := newConverter(p.MediaType, p.Config.Format)
		if err != nil {
			i.Close(ctx)
			return err
		}
		p.input = i
		p.converter = c
	}

	ctx = belt.WithField(xcontext.DetachDone(ctx), "channel", p.MediaType.String())
	ctx, cancelFn := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	p.loopCancel = cancelFn
	p.loopDone = loopDone
	p.playing = true
	p.eof = false
	observability.Go(ctx, func(ctx context.Context) {
		defer close(loopDone)
		p.loop(ctx)
	})
	return nil
}

func (p *Player) IsPlaying(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() bool {
		return p.playing
	})
}

// SetTime requests the decoder to continue from t; the frames before t
// are decoded but not delivered.
func (p *Player) SetTime(ctx context.Context, t time.Duration) (_err error) {
	logger.Tracef(ctx, "SetTime(%v)", t)
	defer func() { logger.Tracef(ctx, "/SetTime(%v): %v", t, _err) }()
	if t < 0 {
		return fmt.Errorf("negative time %v", t)
	}
	if isLiveURL(p.URL) {
		return ErrNotSeekable{URL: p.URL}
	}
	p.locker.Do(ctx, func() {
		p.seekTo = typing.Opt(t)
		p.signalLocked()
	})
	return nil
}

func (p *Player) SetPause(ctx context.Context, pause bool) error {
	logger.Tracef(ctx, "SetPause(%t)", pause)
	defer func() { logger.Tracef(ctx, "/SetPause(%t)", pause) }()
	p.locker.Do(ctx, func() {
		p.paused = pause
		p.signalLocked()
	})
	return nil
}

// Stop stops decoding and closes the input; a next Play starts over.
func (p *Player) Stop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()

	var loopDone chan struct{}
	p.locker.Do(ctx, func() {
		if !p.playing {
			return
		}
		p.playing = false
		p.loopCancel()
		loopDone = p.loopDone
		p.signalLocked()
	})
	if loopDone == nil {
		return nil
	}

	select {
	case <-loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	var result []error
	p.locker.Do(ctx, func() {
		if p.converter != nil {
			result = append(result, p.converter.Close(ctx))
			p.converter = nil
		}
		if p.input != nil {
			p.input.Close(ctx)
			p.input = nil
		}
		p.dropUntil = typing.Optional[time.Duration]{}
	})
	return errors.Join(result...)
}

// awaitRunnable blocks while the player is paused or at the end of the
// stream. It returns a pending seek, if any.
func (p *Player) awaitRunnable(ctx context.Context) (typing.Optional[time.Duration], bool) {
	for {
		p.locker.ManualLock(ctx)
		if seekTo := p.seekTo; seekTo.IsSet() {
			p.seekTo = typing.Optional[time.Duration]{}
			p.eof = false
			p.locker.ManualUnlock(ctx)
			return seekTo, true
		}
		if !p.paused && !p.eof {
			p.locker.ManualUnlock(ctx)
			return typing.Optional[time.Duration]{}, true
		}
		changeCh := p.changeCh
		p.locker.ManualUnlock(ctx)

		select {
		case <-changeCh:
		case <-ctx.Done():
			return typing.Optional[time.Duration]{}, false
		}
	}
}

func (p *Player) setEOF(ctx context.Context) {
	p.locker.Do(ctx, func() {
		p.eof = true
	})
}

func (p *Player) loop(ctx context.Context) {
	logger.Debugf(ctx, "loop")
	defer func() { logger.Debugf(ctx, "/loop") }()

	pkt := astiav.AllocPacket()
	defer pkt.Free()
	frame := astiav.AllocFrame()
	defer frame.Free()

	for {
		seekTo, ok := p.awaitRunnable(ctx)
		if !ok {
			return
		}
		if seekTo.IsSet() {
			t := seekTo.Get()
			if err := p.input.seek(ctx, t); err != nil {
				logger.Errorf(ctx, "%v", err)
				continue
			}
			p.dropUntil = typing.Opt(t)
		}

		err := p.input.readPacket(ctx, pkt)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			logger.Debugf(ctx, "end of the stream")
			if err := p.input.CodecContext.SendPacket(nil); err == nil {
				p.drain(ctx, frame)
			}
			p.input.CodecContext.FlushBuffers()
			p.setEOF(ctx)
			continue
		default:
			logger.Errorf(ctx, "%v", err)
			p.setEOF(ctx)
			continue
		}

		err = p.input.CodecContext.SendPacket(pkt)
		pkt.Unref()
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			logger.Warnf(ctx, "unable to send a packet to the decoder: %v", err)
			continue
		}
		if !p.drain(ctx, frame) {
			return
		}
	}
}

// drain delivers all the frames the decoder has ready. It returns false
// if the loop has to stop.
func (p *Player) drain(ctx context.Context, frame *astiav.Frame) bool {
	for {
		err := p.input.CodecContext.ReceiveFrame(frame)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
			return true
		default:
			logger.Warnf(ctx, "unable to receive a frame from the decoder: %v", err)
			return true
		}

		err = p.deliver(ctx, frame)
		frame.Unref()
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			logger.Warnf(ctx, "unable to deliver a frame: %v", err)
		}
	}
}

func (p *Player) deliver(ctx context.Context, frame *astiav.Frame) error {
	pts, hasPTS := p.input.frameTime(frame)
	if p.dropUntil.IsSet() {
		if hasPTS && pts < p.dropUntil.Get() {
			return nil
		}
		p.dropUntil = typing.Optional[time.Duration]{}
	}

	if err := p.converter.Convert(ctx, frame); err != nil {
		return err
	}
	size, err := p.converter.Size()
	if err != nil {
		return fmt.Errorf("unable to get the converted size: %w", err)
	}
	if size <= 0 {
		return nil
	}

	buf, err := p.Sink.Lock(ctx, size)
	if err != nil {
		return fmt.Errorf("unable to lock a buffer: %w", err)
	}
	n, err := p.converter.CopyTo(buf)
	if err != nil {
		err = fmt.Errorf("unable to copy the converted data: %w", err)
		if abortErr := p.Sink.Abort(ctx); abortErr != nil {
			err = errors.Join(err, fmt.Errorf("unable to abort the locked buffer: %w", abortErr))
		}
		return err
	}
	return p.Sink.Unlock(ctx, buf[:n], engine.BufferInfo{
		MediaType: p.MediaType,
		PTS:       pts,
	})
}
