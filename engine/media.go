package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
)

type MediaInfo struct {
	Duration time.Duration

	// FrameRate is the native (decode) frame rate of the video.
	FrameRate types.Rational

	HasAudio   bool
	HasVideo   bool
	SampleRate int
	Channels   int
	Width      int
	Height     int
}

// LengthInFrames returns the duration expressed in frames of a timeline
// running at fps.
func (info *MediaInfo) LengthInFrames(fps types.Rational) int64 {
	if info == nil || !fps.IsPositive() {
		return 0
	}
	fps = fps.Normalized()
	ms := info.Duration.Milliseconds()
	num := ms * int64(fps.Num)
	den := 1000 * int64(fps.Den)
	return (2*num + den) / (2 * den)
}

type ParseFunc func(ctx context.Context) (*MediaInfo, error)

// Media is a media resource whose metadata are parsed asynchronously.
type Media struct {
	URL       string
	parseFunc ParseFunc

	startOnce sync.Once
	done      chan struct{}
	info      *MediaInfo
	err       error
}

func NewMedia(url string, parseFunc ParseFunc) *Media {
	return &Media{
		URL:       url,
		parseFunc: parseFunc,
		done:      make(chan struct{}),
	}
}

func (m *Media) String() string {
	return fmt.Sprintf("Media(%s)", m.URL)
}

// Parse starts parsing (once) and waits up to timeout for the result. On
// timeout the parsing keeps going and a later call may still succeed.
func (m *Media) Parse(ctx context.Context, timeout time.Duration) (_ret *MediaInfo, _err error) {
	logger.Tracef(ctx, "Parse")
	defer func() { logger.Tracef(ctx, "/Parse: %v %v", _ret, _err) }()

	m.startOnce.Do(func() {
		observability.Go(xcontext.DetachDone(ctx), func(ctx context.Context) {
			defer close(m.done)
			m.info, m.err = m.parseFunc(ctx)
		})
	})

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-m.done:
		if m.err != nil {
			return nil, fmt.Errorf("unable to parse %s: %w", m, m.err)
		}
		return m.info, nil
	case <-timeoutCh:
		return nil, ErrParseTimeout{Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsParsed returns true if parsing has finished (successfully or not).
func (m *Media) IsParsed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
