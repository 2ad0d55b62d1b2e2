package types

import (
	"fmt"
	"strings"
)

type SampleFormat int

const (
	SampleFormatUndefined = SampleFormat(iota)
	SampleFormatU8
	SampleFormatS16
	SampleFormatS32
	SampleFormatFLT
)

func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8:
		return 1
	case SampleFormatS16:
		return 2
	case SampleFormatS32, SampleFormatFLT:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatUndefined:
		return "<undefined>"
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatFLT:
		return "flt"
	default:
		return fmt.Sprintf("<unknown:%d>", int(f))
	}
}

type PixelFormat int

const (
	PixelFormatUndefined = PixelFormat(iota)
	PixelFormatYUYV422
	PixelFormatYUV420P
	PixelFormatRGBA
)

// ImageSize returns the byte size of a tightly packed image.
func (f PixelFormat) ImageSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	switch f {
	case PixelFormatYUYV422:
		return width * height * 2
	case PixelFormatYUV420P:
		chromaW, chromaH := (width+1)/2, (height+1)/2
		return width*height + 2*chromaW*chromaH
	case PixelFormatRGBA:
		return width * height * 4
	default:
		return 0
	}
}

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatUndefined:
		return "<undefined>"
	case PixelFormatYUYV422:
		return "yuyv422"
	case PixelFormatYUV420P:
		return "yuv420p"
	case PixelFormatRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("<unknown:%d>", int(f))
	}
}

// HostFormat is what the host timeline declares about its frames.
type HostFormat struct {
	FrameRate    Rational     `json:"frame_rate" yaml:"frame_rate"`
	SampleRate   int          `json:"sample_rate" yaml:"sample_rate"`
	Channels     int          `json:"channels" yaml:"channels"`
	SampleFormat SampleFormat `json:"sample_format" yaml:"sample_format"`
	Width        int          `json:"width" yaml:"width"`
	Height       int          `json:"height" yaml:"height"`
	PixelFormat  PixelFormat  `json:"pixel_format" yaml:"pixel_format"`
}

func DefaultHostFormat() HostFormat {
	return HostFormat{
		FrameRate:    Rational{Num: 25, Den: 1},
		SampleRate:   48000,
		Channels:     2,
		SampleFormat: SampleFormatS16,
		Width:        1280,
		Height:       720,
		PixelFormat:  PixelFormatYUYV422,
	}
}

func (f HostFormat) BytesPerAudioFrame() int {
	return f.Channels * f.SampleFormat.BytesPerSample()
}

func (f HostFormat) AudioBufferSize(samples int) int {
	return samples * f.BytesPerAudioFrame()
}

func (f HostFormat) ImageBufferSize() int {
	return f.PixelFormat.ImageSize(f.Width, f.Height)
}

func (f HostFormat) Validate() error {
	if !f.FrameRate.IsPositive() {
		return fmt.Errorf("invalid frame rate %s", f.FrameRate)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	if f.SampleFormat.BytesPerSample() == 0 {
		return fmt.Errorf("unsupported sample format %s", f.SampleFormat)
	}
	if f.ImageBufferSize() == 0 {
		return fmt.Errorf("invalid image %dx%d:%s", f.Width, f.Height, f.PixelFormat)
	}
	return nil
}

// FillBlack paints a tightly packed image black.
func (f PixelFormat) FillBlack(buf []byte) {
	switch f {
	case PixelFormatYUYV422:
		for i := 0; i+1 < len(buf); i += 2 {
			buf[i] = 0x10
			buf[i+1] = 0x80
		}
	case PixelFormatRGBA:
		for i := 0; i+3 < len(buf); i += 4 {
			buf[i], buf[i+1], buf[i+2], buf[i+3] = 0, 0, 0, 0xff
		}
	default:
		for i := range buf {
			buf[i] = 0
		}
	}
}

func ParseSampleFormat(s string) (SampleFormat, error) {
	for f := SampleFormatU8; f <= SampleFormatFLT; f++ {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return SampleFormatUndefined, fmt.Errorf("unknown sample format '%s'", s)
}

func (f SampleFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *SampleFormat) UnmarshalText(b []byte) error {
	v, err := ParseSampleFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func ParsePixelFormat(s string) (PixelFormat, error) {
	for f := PixelFormatYUYV422; f <= PixelFormatRGBA; f++ {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return PixelFormatUndefined, fmt.Errorf("unknown pixel format '%s'", s)
}

func (f PixelFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *PixelFormat) UnmarshalText(b []byte) error {
	v, err := ParsePixelFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
