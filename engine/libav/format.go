package libav

import (
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avbridge/types"
)

func SampleFormatToAstiav(f types.SampleFormat) (astiav.SampleFormat, error) {
	switch f {
	case types.SampleFormatU8:
		return astiav.SampleFormatU8, nil
	case types.SampleFormatS16:
		return astiav.SampleFormatS16, nil
	case types.SampleFormatS32:
		return astiav.SampleFormatS32, nil
	case types.SampleFormatFLT:
		return astiav.SampleFormatFlt, nil
	default:
		return astiav.SampleFormatNone, fmt.Errorf("unsupported sample format %s", f)
	}
}

func PixelFormatToAstiav(f types.PixelFormat) (astiav.PixelFormat, error) {
	switch f {
	case types.PixelFormatYUYV422:
		return astiav.PixelFormatYuyv422, nil
	case types.PixelFormatYUV420P:
		return astiav.PixelFormatYuv420P, nil
	case types.PixelFormatRGBA:
		return astiav.PixelFormatRgba, nil
	default:
		return astiav.PixelFormatNone, fmt.Errorf("unsupported pixel format %s", f)
	}
}

func ChannelLayoutFor(channels int) (astiav.ChannelLayout, error) {
	switch channels {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	default:
		return astiav.ChannelLayout{}, fmt.Errorf("unsupported amount of channels: %d", channels)
	}
}

func MediaTypeToAstiav(t types.MediaType) astiav.MediaType {
	switch t {
	case types.MediaTypeAudio:
		return astiav.MediaTypeAudio
	case types.MediaTypeVideo:
		return astiav.MediaTypeVideo
	default:
		return astiav.MediaTypeUnknown
	}
}

func RationalFromAstiav(r astiav.Rational) types.Rational {
	return types.Rational{Num: r.Num(), Den: r.Den()}
}
