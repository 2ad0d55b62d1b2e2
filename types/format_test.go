package types

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestHostFormatSizes(t *testing.T) {
	f := DefaultHostFormat()
	require.NoError(t, f.Validate())
	require.Equal(t, 4, f.BytesPerAudioFrame())
	require.Equal(t, 1920*4, f.AudioBufferSize(1920))
	require.Equal(t, 1280*720*2, f.ImageBufferSize())

	f.Width = 0
	require.Error(t, f.Validate())
}

func TestPixelFormatImageSize(t *testing.T) {
	require.Equal(t, 3*3+2*2*2, PixelFormatYUV420P.ImageSize(3, 3))
	require.Equal(t, 16, PixelFormatRGBA.ImageSize(2, 2))
	require.Zero(t, PixelFormatUndefined.ImageSize(2, 2))
}

func TestFillBlack(t *testing.T) {
	buf := make([]byte, 8)
	PixelFormatYUYV422.FillBlack(buf)
	require.Equal(t, []byte{0x10, 0x80, 0x10, 0x80, 0x10, 0x80, 0x10, 0x80}, buf)

	buf = []byte{1, 2, 3, 4}
	PixelFormatRGBA.FillBlack(buf)
	require.Equal(t, []byte{0, 0, 0, 0xff}, buf)
}

func TestHostFormatYAML(t *testing.T) {
	var f HostFormat
	err := yaml.Unmarshal([]byte(`
frame_rate: 30000/1001
sample_rate: 44100
channels: 1
sample_format: FLT
width: 640
height: 480
pixel_format: rgba
`), &f)
	require.NoError(t, err)
	require.Equal(t, HostFormat{
		FrameRate:    Rational{Num: 30000, Den: 1001},
		SampleRate:   44100,
		Channels:     1,
		SampleFormat: SampleFormatFLT,
		Width:        640,
		Height:       480,
		PixelFormat:  PixelFormatRGBA,
	}, f)

	err = yaml.Unmarshal([]byte(`sample_format: s24`), &f)
	require.Error(t, err)
}
