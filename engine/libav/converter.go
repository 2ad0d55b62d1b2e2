package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
)

// converter turns decoded frames into the host layout and writes them
// into buffers of a size it reports.
type converter interface {
	fmt.Stringer
	Convert(ctx context.Context, src *astiav.Frame) error
	Size() (int, error)
	CopyTo(buf []byte) (int, error)
	Close(ctx context.Context) error
}

// audioConverter resamples to interleaved host samples.
type audioConverter struct {
	Format types.HostFormat

	resampleContext *astiav.SoftwareResampleContext
	output          *astiav.Frame
	outputLayout    astiav.ChannelLayout
	outputFormat    astiav.SampleFormat
}

var _ converter = (*audioConverter)(nil)

func newAudioConverter(format types.HostFormat) (*audioConverter, error) {
	sampleFormat, err := SampleFormatToAstiav(format.SampleFormat)
	if err != nil {
		return nil, err
	}
	layout, err := ChannelLayoutFor(format.Channels)
	if err != nil {
		return nil, err
	}
	resampleContext := astiav.AllocSoftwareResampleContext()
	if resampleContext == nil {
		return nil, fmt.Errorf("unable to allocate a resample context")
	}
	return &audioConverter{
		Format:          format,
		resampleContext: resampleContext,
		output:          astiav.AllocFrame(),
		outputLayout:    layout,
		outputFormat:    sampleFormat,
	}, nil
}

func (c *audioConverter) String() string {
	return fmt.Sprintf("AudioConverter(%dHz/%dch/%s)", c.Format.SampleRate, c.Format.Channels, c.Format.SampleFormat)
}

func (c *audioConverter) Convert(ctx context.Context, src *astiav.Frame) error {
	c.output.Unref()
	c.output.SetChannelLayout(c.outputLayout)
	c.output.SetSampleRate(c.Format.SampleRate)
	c.output.SetSampleFormat(c.outputFormat)
	if err := c.resampleContext.ConvertFrame(src, c.output); err != nil {
		return fmt.Errorf("unable to resample: %w", err)
	}
	return nil
}

func (c *audioConverter) Size() (int, error) {
	if c.output.NbSamples() == 0 {
		return 0, nil
	}
	return c.output.SamplesBufferSize(1)
}

func (c *audioConverter) CopyTo(buf []byte) (int, error) {
	return c.output.SamplesCopyToBuffer(buf, 1)
}

func (c *audioConverter) Close(ctx context.Context) error {
	logger.Tracef(ctx, "Close")
	defer func() { logger.Tracef(ctx, "/Close") }()
	if c.output != nil {
		c.output.Free()
		c.output = nil
	}
	if c.resampleContext != nil {
		c.resampleContext.Free()
		c.resampleContext = nil
	}
	return nil
}

// videoConverter scales to the host resolution and pixel format; the
// scale context is recreated whenever the source geometry changes.
type videoConverter struct {
	Format types.HostFormat

	pixelFormat  astiav.PixelFormat
	scaleContext *astiav.SoftwareScaleContext
	srcWidth     int
	srcHeight    int
	srcFormat    astiav.PixelFormat
	output       *astiav.Frame
}

var _ converter = (*videoConverter)(nil)

func newVideoConverter(format types.HostFormat) (*videoConverter, error) {
	pixelFormat, err := PixelFormatToAstiav(format.PixelFormat)
	if err != nil {
		return nil, err
	}
	return &videoConverter{
		Format:      format,
		pixelFormat: pixelFormat,
	}, nil
}

func (c *videoConverter) String() string {
	return fmt.Sprintf("VideoConverter(%dx%d:%s)", c.Format.Width, c.Format.Height, c.Format.PixelFormat)
}

func (c *videoConverter) reconfigure(ctx context.Context, src *astiav.Frame) error {
	if c.scaleContext != nil &&
		c.srcWidth == src.Width() &&
		c.srcHeight == src.Height() &&
		c.srcFormat == src.PixelFormat() {
		return nil
	}
	logger.Debugf(ctx, "%s: source is %dx%d:%s", c, src.Width(), src.Height(), src.PixelFormat())
	c.freeScaler()

	scaleContext, err := astiav.CreateSoftwareScaleContext(
		src.Width(),
		src.Height(),
		src.PixelFormat(),
		c.Format.Width,
		c.Format.Height,
		c.pixelFormat,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("unable to create a software scale context: %w", err)
	}

	output := astiav.AllocFrame()
	output.SetWidth(c.Format.Width)
	output.SetHeight(c.Format.Height)
	output.SetPixelFormat(c.pixelFormat)
	if err := output.AllocBuffer(1); err != nil {
		output.Free()
		scaleContext.Free()
		return fmt.Errorf("unable to allocate the scaled frame: %w", err)
	}

	c.scaleContext = scaleContext
	c.output = output
	c.srcWidth, c.srcHeight, c.srcFormat = src.Width(), src.Height(), src.PixelFormat()
	return nil
}

func (c *videoConverter) Convert(ctx context.Context, src *astiav.Frame) error {
	if err := c.reconfigure(ctx, src); err != nil {
		return err
	}
	if err := c.scaleContext.ScaleFrame(src, c.output); err != nil {
		return fmt.Errorf("unable to scale a frame: %w", err)
	}
	return nil
}

func (c *videoConverter) Size() (int, error) {
	if c.output == nil {
		return 0, nil
	}
	return c.output.ImageBufferSize(1)
}

func (c *videoConverter) CopyTo(buf []byte) (int, error) {
	return c.output.ImageCopyToBuffer(buf, 1)
}

func (c *videoConverter) freeScaler() {
	if c.output != nil {
		c.output.Free()
		c.output = nil
	}
	if c.scaleContext != nil {
		c.scaleContext.Free()
		c.scaleContext = nil
	}
}

func (c *videoConverter) Close(ctx context.Context) error {
	logger.Tracef(ctx, "Close")
	defer func() { logger.Tracef(ctx, "/Close") }()
	c.freeScaler()
	return nil
}

func newConverter(mediaType types.MediaType, format types.HostFormat) (converter, error) {
	switch mediaType {
	case types.MediaTypeAudio:
		return newAudioConverter(format)
	case types.MediaTypeVideo:
		return newVideoConverter(format)
	default:
		return nil, fmt.Errorf("unexpected media type %s", mediaType)
	}
}
