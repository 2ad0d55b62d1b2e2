// Package otoaudio renders the audio of a PullSource to the default sound
// device.
package otoaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

var (
	deviceOnce   sync.Once
	deviceFormat types.HostFormat
	device       *oto.Context
	deviceErr    error
)

func FormatToOto(f types.SampleFormat) (oto.Format, error) {
	switch f {
	case types.SampleFormatU8:
		return oto.FormatUnsignedInt8, nil
	case types.SampleFormatS16:
		return oto.FormatSignedInt16LE, nil
	case types.SampleFormatFLT:
		return oto.FormatFloat32LE, nil
	default:
		return 0, fmt.Errorf("sample format %s is not supported by the sound device", f)
	}
}

// openDevice opens the sound device once per process; oto does not allow
// more than one context.
func openDevice(format types.HostFormat) (*oto.Context, error) {
	deviceOnce.Do(func() {
		otoFormat, err := FormatToOto(format.SampleFormat)
		if err != nil {
			deviceErr = err
			return
		}
		var ready chan struct{}
		device, ready, deviceErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       otoFormat,
			BufferSize:   tickDuration(format.FrameRate),
		})
		if deviceErr == nil {
			<-ready
			deviceFormat = format
		}
	})
	if deviceErr != nil {
		return nil, fmt.Errorf("unable to open the sound device: %w", deviceErr)
	}
	if deviceFormat.SampleRate != format.SampleRate ||
		deviceFormat.Channels != format.Channels ||
		deviceFormat.SampleFormat != format.SampleFormat {
		return nil, fmt.Errorf("the sound device is already opened with %dHz/%dch/%s",
			deviceFormat.SampleRate, deviceFormat.Channels, deviceFormat.SampleFormat)
	}
	return device, nil
}

func tickDuration(fps types.Rational) time.Duration {
	if !fps.IsPositive() {
		return 0
	}
	return time.Duration(int64(time.Second) * int64(fps.Den) / int64(fps.Num))
}

// Renderer plays the audio channel of a PullSource.
type Renderer struct {
	Source engine.PullSource
	Format types.HostFormat

	locker xsync.Mutex
	player *oto.Player
	reader *pullReader
	volume float64
}

var _ engine.Renderer = (*Renderer)(nil)

func New(source engine.PullSource, format types.HostFormat) (*Renderer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if _, err := FormatToOto(format.SampleFormat); err != nil {
		return nil, err
	}
	return &Renderer{
		Source: source,
		Format: format,
		volume: 1,
	}, nil
}

func (r *Renderer) String() string {
	return fmt.Sprintf("OtoRenderer(%dHz/%dch)", r.Format.SampleRate, r.Format.Channels)
}

func (r *Renderer) Play(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Play")
	defer func() { logger.Tracef(ctx, "/Play: %v", _err) }()
	return xsync.DoA1R1(ctx, &r.locker, r.playLocked, ctx)
}

func (r *Renderer) playLocked(ctx context.Context) error {
	if r.player == nil {
		dev, err := openDevice(r.Format)
		if err != nil {
			return err
		}
		r.reader = newPullReader(xcontext.DetachDone(ctx), r.Source)
		r.player = dev.NewPlayer(r.reader)
		r.player.SetBufferSize(r.Format.AudioBufferSize(r.Format.SampleRate / 10))
		r.player.SetVolume(r.volume)
	}
	r.player.Play()
	return nil
}

func (r *Renderer) Stop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Stop")
	defer func() { logger.Tracef(ctx, "/Stop: %v", _err) }()
	return xsync.DoR1(ctx, &r.locker, func() error {
		if r.player == nil {
			return nil
		}
		r.player.Pause()
		err := r.player.Close()
		r.player = nil
		r.reader.reset()
		if err != nil {
			return fmt.Errorf("unable to close the sound player: %w", err)
		}
		return nil
	})
}

func (r *Renderer) IsPlaying(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &r.locker, func() bool {
		return r.player != nil && r.player.IsPlaying()
	})
}

func (r *Renderer) SetPause(ctx context.Context, pause bool) error {
	r.locker.Do(ctx, func() {
		if r.player == nil {
			return
		}
		if pause {
			r.player.Pause()
		} else {
			r.player.Play()
		}
	})
	return nil
}

// SetVolume sets the volume in range [0, 1].
func (r *Renderer) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume %v is out of range [0, 1]", volume)
	}
	r.locker.Do(ctx, func() {
		r.volume = volume
		if r.player != nil {
			r.player.SetVolume(volume)
		}
	})
	return nil
}

// Latency returns the amount of audio buffered in the device.
func (r *Renderer) Latency(ctx context.Context) time.Duration {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &r.locker, func() time.Duration {
		if r.player == nil {
			return 0
		}
		bytesPerSecond := r.Format.AudioBufferSize(r.Format.SampleRate)
		if bytesPerSecond == 0 {
			return 0
		}
		return time.Duration(int64(r.player.BufferedSize()) * int64(time.Second) / int64(bytesPerSecond))
	})
}
