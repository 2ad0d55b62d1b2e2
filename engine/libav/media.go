package libav

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
)

// NewMedia returns a media whose parsing probes the URL with the demuxer.
func NewMedia(url string, cfg Config) *engine.Media {
	return engine.NewMedia(url, func(ctx context.Context) (_ret *engine.MediaInfo, _err error) {
		logger.Debugf(ctx, "probing %s", url)
		defer func() { logger.Debugf(ctx, "/probing %s: %v %v", url, _ret, _err) }()

		i, err := openInput(ctx, url, cfg.AuthKey, cfg.Options)
		if err != nil {
			return nil, err
		}
		defer i.Close(ctx)
		return i.mediaInfo(ctx, cfg.Format.FrameRate)
	})
}

func (i *input) mediaInfo(
	ctx context.Context,
	fallbackFrameRate types.Rational,
) (*engine.MediaInfo, error) {
	info := &engine.MediaInfo{
		Duration: i.Duration(),
	}

	if stream := i.findStream(types.MediaTypeAudio); stream != nil {
		params := stream.CodecParameters()
		info.HasAudio = true
		info.SampleRate = params.SampleRate()
		info.Channels = params.ChannelLayout().Channels()
	}

	if stream := i.findStream(types.MediaTypeVideo); stream != nil {
		params := stream.CodecParameters()
		info.HasVideo = true
		info.Width = params.Width()
		info.Height = params.Height()
		info.FrameRate = RationalFromAstiav(stream.AvgFrameRate())
		if !info.FrameRate.IsPositive() {
			info.FrameRate = RationalFromAstiav(stream.RFrameRate())
		}
		if !info.FrameRate.IsPositive() {
			logger.Warnf(ctx, "%s: unknown frame rate, assuming %s", i, fallbackFrameRate)
			info.FrameRate = fallbackFrameRate
		}
	}

	if !info.HasAudio && !info.HasVideo {
		return nil, fmt.Errorf("%s has neither audio nor video", i)
	}
	return info, nil
}
