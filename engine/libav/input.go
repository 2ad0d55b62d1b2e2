package libav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/secret"
)

// input is a demuxer opened on a URL; optionally with a decoder of one of
// its streams.
type input struct {
	URL           string
	FormatContext *astiav.FormatContext
	Dictionary    *astiav.Dictionary

	Stream       *astiav.Stream
	CodecContext *astiav.CodecContext
}

func openInput(
	ctx context.Context,
	url string,
	authKey secret.String,
	options map[string]string,
) (_ret *input, _err error) {
	logger.Tracef(ctx, "openInput(%s)", url)
	defer func() { logger.Tracef(ctx, "/openInput(%s): %v", url, _err) }()
	if url == "" {
		return nil, fmt.Errorf("the provided URL is empty")
	}

	i := &input{URL: url}

	var formatName string
	if len(options) > 0 {
		i.Dictionary = astiav.NewDictionary()
		for key, value := range options {
			if key == "f" {
				formatName = value
				logger.Debugf(ctx, "overriding input format to '%s'", value)
				continue
			}
			logger.Debugf(ctx, "input.Dictionary['%s'] = '%s'", key, value)
			if err := i.Dictionary.Set(key, value, 0); err != nil {
				i.Close(ctx)
				return nil, fmt.Errorf("unable to set option '%s': %w", key, err)
			}
		}
	}

	if formatName == "" {
		formatName = formatHint(url)
	}
	var inputFormat *astiav.InputFormat
	if formatName != "" {
		inputFormat = astiav.FindInputFormat(formatName)
		if inputFormat == nil {
			logger.Errorf(ctx, "unable to find input format by name '%s'", formatName)
		}
	}

	i.FormatContext = astiav.AllocFormatContext()
	if i.FormatContext == nil {
		i.Close(ctx)
		return nil, fmt.Errorf("unable to allocate a format context")
	}

	urlWithSecret := url
	if authKey.Get() != "" {
		urlWithSecret += authKey.Get()
	}
	if err := i.FormatContext.OpenInput(urlWithSecret, inputFormat, i.Dictionary); err != nil {
		i.FormatContext.Free()
		i.FormatContext = nil
		i.Close(ctx)
		if authKey.Get() != "" {
			return nil, fmt.Errorf("unable to open input by URL '%s/<HIDDEN>': %w", url, err)
		}
		return nil, fmt.Errorf("unable to open input by URL '%s': %w", url, err)
	}

	if err := i.FormatContext.FindStreamInfo(nil); err != nil {
		i.Close(ctx)
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}
	return i, nil
}

func (i *input) String() string {
	return fmt.Sprintf("Input(%s)", i.URL)
}

// findStream returns the first stream of the given media type.
func (i *input) findStream(mediaType types.MediaType) *astiav.Stream {
	want := MediaTypeToAstiav(mediaType)
	for _, stream := range i.FormatContext.Streams() {
		if stream.CodecParameters().MediaType() == want {
			return stream
		}
	}
	return nil
}

// openDecoder opens the decoder of the first stream of the given media
// type.
func (i *input) openDecoder(ctx context.Context, mediaType types.MediaType) error {
	stream := i.findStream(mediaType)
	if stream == nil {
		return ErrNoStream{MediaType: mediaType}
	}

	codecParameters := stream.CodecParameters()
	codec := astiav.FindDecoder(codecParameters.CodecID())
	if codec == nil {
		return fmt.Errorf("unable to find a decoder for codec %s", codecParameters.CodecID())
	}

	codecContext := astiav.AllocCodecContext(codec)
	if codecContext == nil {
		return fmt.Errorf("unable to allocate a codec context for %s", codec.Name())
	}
	if err := codecParameters.ToCodecContext(codecContext); err != nil {
		codecContext.Free()
		return fmt.Errorf("unable to copy the codec parameters: %w", err)
	}
	if err := codecContext.Open(codec, nil); err != nil {
		codecContext.Free()
		return fmt.Errorf("unable to open the decoder %s: %w", codec.Name(), err)
	}
	logger.Debugf(ctx, "%s: decoding stream #%d (%s) with %s", i, stream.Index(), mediaType, codec.Name())

	i.Stream = stream
	i.CodecContext = codecContext
	return nil
}

// readPacket reads the next packet of the decoded stream, skipping the
// packets of the other streams.
func (i *input) readPacket(ctx context.Context, pkt *astiav.Packet) error {
	for {
		err := i.FormatContext.ReadFrame(pkt)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEof), errors.Is(err, astiav.ErrEio):
			return io.EOF
		default:
			return fmt.Errorf("unable to read a frame: %w", err)
		}
		if i.Stream == nil || pkt.StreamIndex() == i.Stream.Index() {
			return nil
		}
		pkt.Unref()
	}
}

// seek repositions the demuxer to the closest key frame before t and
// drops the decoder state.
func (i *input) seek(ctx context.Context, t time.Duration) error {
	ts := t.Microseconds()
	if err := i.FormatContext.SeekFrame(-1, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("unable to seek to %v: %w", t, err)
	}
	if i.CodecContext != nil {
		i.CodecContext.FlushBuffers()
	}
	return nil
}

// frameTime returns the timestamp of a decoded frame (ok is false if the
// frame has no timestamp).
func (i *input) frameTime(f *astiav.Frame) (time.Duration, bool) {
	pts := f.Pts()
	if pts == astiav.NoPtsValue || i.Stream == nil {
		return 0, false
	}
	tb := i.Stream.TimeBase()
	if tb.Den() == 0 {
		return 0, false
	}
	return time.Duration(float64(pts) * float64(tb.Num()) / float64(tb.Den()) * float64(time.Second)), true
}

func (i *input) Duration() time.Duration {
	d := i.FormatContext.Duration()
	if d <= 0 || d == astiav.NoPtsValue {
		return 0
	}
	return time.Duration(d) * (time.Second / time.Duration(astiav.TimeBase))
}

func (i *input) Close(ctx context.Context) {
	logger.Tracef(ctx, "Close")
	defer func() { logger.Tracef(ctx, "/Close") }()
	if i.CodecContext != nil {
		i.CodecContext.Free()
		i.CodecContext = nil
	}
	if i.FormatContext != nil {
		i.FormatContext.CloseInput()
		i.FormatContext.Free()
		i.FormatContext = nil
	}
	if i.Dictionary != nil {
		i.Dictionary.Free()
		i.Dictionary = nil
	}
}
