// Package avbridge plays a media through a fixed-cadence host timeline:
// libav decodes it into the ingest adapter, the timeline pulls one frame
// per tick, and the egress adapter serves the frames to the renderers.
package avbridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/avbridge/egress"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/engine/libav"
	"github.com/xaionaro-go/avbridge/helpers/closuresignaler"
	"github.com/xaionaro-go/avbridge/ingest"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/timeline"
	"github.com/xaionaro-go/avbridge/types"
)

// RendererFactory builds a renderer consuming the frames of a Playback.
type RendererFactory func(source engine.PullSource, format types.HostFormat) (engine.Renderer, error)

type Playback struct {
	URL      string
	Config   Config
	Instance *engine.Instance

	Media    *engine.Media
	Players  map[types.MediaType]*libav.Player
	Ingest   *ingest.Ingest
	Timeline *timeline.Timeline
	Egress   *egress.Adapter

	ended *closuresignaler.ClosureSignaler
}

// NewPlayback opens the media and builds the chain; it does not start
// playing until Start. The instance (see libav.NewInstance) is acquired
// for the lifetime of the playback.
func NewPlayback(
	ctx context.Context,
	instance *engine.Instance,
	url string,
	cfg Config,
	renderers ...RendererFactory,
) (_ret *Playback, _err error) {
	logger.Debugf(ctx, "NewPlayback(%s)", url)
	defer func() { logger.Debugf(ctx, "/NewPlayback(%s): %v", url, _err) }()

	cfg = cfg.normalized()
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host format: %w", err)
	}

	if err := instance.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("unable to acquire %s: %w", instance, err)
	}

	p := &Playback{
		URL:      url,
		Config:   cfg,
		Instance: instance,
		Players:  map[types.MediaType]*libav.Player{},
		ended:    closuresignaler.New(),
	}
	defer func() {
		if _err != nil {
			if err := p.Close(ctx); err != nil {
				logger.Errorf(ctx, "unable to close the playback: %v", err)
			}
		}
	}()

	var err error
	p.Ingest, err = ingest.New(cfg.Ingest)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the ingest: %w", err)
	}

	p.Media = libav.NewMedia(url, cfg.LibAV)
	if err := p.Ingest.Open(ctx, p.Media); err != nil {
		return nil, err
	}
	info := p.Ingest.MediaInfo()

	for _, mediaType := range []types.MediaType{types.MediaTypeAudio, types.MediaTypeVideo} {
		switch {
		case mediaType == types.MediaTypeAudio && !info.HasAudio,
			mediaType == types.MediaTypeVideo && !info.HasVideo:
			logger.Infof(ctx, "%s has no %s", url, mediaType)
			continue
		}
		player := libav.NewPlayer(mediaType, url, cfg.LibAV, p.Ingest.Sink(mediaType))
		if err := p.Ingest.AttachPlayer(mediaType, player); err != nil {
			return nil, err
		}
		p.Players[mediaType] = player
	}

	tlCfg := cfg.Timeline
	if tlCfg.Length == 0 {
		tlCfg.Length = p.Ingest.Length()
	}
	p.Timeline, err = timeline.New(p.Ingest, tlCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the timeline: %w", err)
	}
	p.Timeline.OnFrameShown = p.onFrameShown

	p.Egress, err = egress.New(p.Timeline, cfg.Egress)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the egress: %w", err)
	}

	var rs engine.Renderers
	for _, factory := range renderers {
		r, err := factory(p.Egress, cfg.Format)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize a renderer: %w", err)
		}
		rs = append(rs, r)
	}
	switch len(rs) {
	case 0:
	case 1:
		p.Egress.Renderer = rs[0]
	default:
		p.Egress.Renderer = rs
	}
	if err := p.Egress.SetVolume(ctx, cfg.Volume); err != nil {
		return nil, fmt.Errorf("unable to set the volume: %w", err)
	}
	return p, nil
}

func (p *Playback) String() string {
	return fmt.Sprintf("Playback(%s)", p.URL)
}

func (p *Playback) onFrameShown(ctx context.Context, frame *types.Frame) {
	length := p.Timeline.Config.Length
	if length > 0 && frame.Position >= length-1 {
		logger.Debugf(ctx, "the last frame was shown")
		p.ended.CloseWithCause(ctx, timeline.ErrEnd{Length: length})
	}
}

// EndChan is closed when the last frame of the timeline was shown or the
// playback was closed.
func (p *Playback) EndChan() <-chan struct{} {
	return p.ended.CloseChan()
}

// EndCause returns timeline.ErrEnd if the playback reached the end, nil
// otherwise.
func (p *Playback) EndCause() error {
	return p.ended.Cause()
}

func (p *Playback) Start(ctx context.Context) error {
	return p.Egress.Start(ctx)
}

func (p *Playback) Stop(ctx context.Context) error {
	return p.Egress.Stop(ctx)
}

// Seek moves the host timeline; the ingest notices the discontinuity on
// the next pull and repositions the decoders.
func (p *Playback) Seek(ctx context.Context, position int64) error {
	if err := p.Timeline.Seek(ctx, position); err != nil {
		return err
	}
	p.Egress.Purge(ctx)
	return nil
}

// SetPause freezes the host timeline: the renderers keep pulling and get
// the same position (silence and the held image).
func (p *Playback) SetPause(ctx context.Context, pause bool) {
	p.Timeline.SetPause(ctx, pause)
}

func (p *Playback) SetVolume(ctx context.Context, volume float64) error {
	return p.Egress.SetVolume(ctx, volume)
}

func (p *Playback) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close")
	var result []error
	if p.Egress != nil {
		result = append(result, p.Egress.Close(ctx))
	}
	if p.Ingest != nil {
		result = append(result, p.Ingest.Close(ctx))
	}
	p.ended.Close(ctx)
	result = append(result, p.Instance.Release(ctx))
	return errors.Join(result...)
}

type Statistics struct {
	Ingest   ingest.Statistics
	Timeline timeline.Statistics
	Egress   egress.Statistics
}

func (p *Playback) GetStats(ctx context.Context) Statistics {
	return Statistics{
		Ingest:   p.Ingest.GetStats(ctx),
		Timeline: p.Timeline.GetStats(ctx),
		Egress:   p.Egress.GetStats(ctx),
	}
}
