// Package ingest bridges a push-based decoding engine to a pull-based
// host timeline: the engine fills per-channel queues, the host pulls
// exactly one audio block and one image per position.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/packer"
	"github.com/xaionaro-go/avbridge/position"
	"github.com/xaionaro-go/avbridge/queue"
	"github.com/xaionaro-go/avbridge/rate"
	"github.com/xaionaro-go/avbridge/seek"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
)

type channel struct {
	MediaType types.MediaType
	Queue     *queue.Queue
	Sink      *sink
	Tracker   *position.Tracker
	Seeker    *seek.Coordinator

	// PullLocker serializes host pulls of the channel.
	PullLocker xsync.Mutex
}

type Ingest struct {
	Config Config

	audio  *channel
	video  *channel
	packer *packer.Packer
	rate   *rate.Adapter

	mediaInfo *engine.MediaInfo
}

func New(cfg Config) (*Ingest, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host format: %w", err)
	}
	in := &Ingest{
		Config: cfg,
	}

	in.audio = in.newChannel(types.MediaTypeAudio)
	in.video = in.newChannel(types.MediaTypeVideo)
	in.packer = packer.New(in.audio.Queue, cfg.Format)
	in.rate = rate.New(in.video.Queue, cfg.Format)
	in.audio.Seeker = seek.New(
		types.MediaTypeAudio.String(), nil, cfg.Format.FrameRate,
		[]*queue.Queue{in.audio.Queue},
		in.packer.ResetClock,
	)
	in.video.Seeker = seek.New(
		types.MediaTypeVideo.String(), nil, cfg.Format.FrameRate,
		[]*queue.Queue{in.video.Queue},
		func(ctx context.Context, _ int64) { in.rate.Reset(ctx) },
	)
	return in, nil
}

func (in *Ingest) newChannel(mediaType types.MediaType) *channel {
	ch := &channel{
		MediaType: mediaType,
		Tracker:   position.NewTracker(in.Config.Thresholds),
	}
	ch.Queue = queue.New(mediaType.String(), in.Config.Queue, func(ctx context.Context, full bool) {
		in.onBackpressure(ctx, ch, full)
	})
	ch.Sink = newSink(mediaType, ch.Queue)
	return ch
}

func (in *Ingest) String() string {
	return "Ingest"
}

func (in *Ingest) channel(mediaType types.MediaType) *channel {
	switch mediaType {
	case types.MediaTypeAudio:
		return in.audio
	case types.MediaTypeVideo:
		return in.video
	default:
		return nil
	}
}

// Sink returns the sink the engine should fill with decoded data of the
// given media type.
func (in *Ingest) Sink(mediaType types.MediaType) engine.Sink {
	ch := in.channel(mediaType)
	if ch == nil {
		return nil
	}
	return ch.Sink
}

// AttachPlayer sets the engine player of a channel: it is started on
// pulls, repositioned on discontinuities and paused on backpressure (if
// it is an engine.Pauser).
func (in *Ingest) AttachPlayer(mediaType types.MediaType, player engine.Player) error {
	ch := in.channel(mediaType)
	if ch == nil {
		return fmt.Errorf("unexpected media type %s", mediaType)
	}
	ch.Seeker.Player = player
	return nil
}

// Open waits for the media metadata and adapts the buffering to them: the
// queue capacities are scaled by decodeRate/hostRate and the rate adapter
// learns the decode rate.
func (in *Ingest) Open(ctx context.Context, media *engine.Media) (_err error) {
	logger.Tracef(ctx, "Open")
	defer func() { logger.Tracef(ctx, "/Open: %v", _err) }()

	info, err := media.Parse(ctx, in.Config.ParseTimeout)
	if err != nil {
		return fmt.Errorf("unable to get the media info: %w", err)
	}
	xatomic.StorePointer(&in.mediaInfo, info)
	logger.Debugf(ctx, "media info: %#+v", *info)

	hostRate := in.Config.Format.FrameRate
	if info.FrameRate.IsPositive() {
		in.rate.SetDecodeRate(ctx, info.FrameRate)
		scale := info.FrameRate.Float64() / hostRate.Float64()
		capacity := uint(math.Ceil(float64(in.Config.Queue.InitialCapacity) * scale))
		for _, ch := range []*channel{in.audio, in.video} {
			ch.Queue.SetInitialCapacity(ctx, capacity)
		}
		logger.Debugf(ctx, "queue capacity: %d", capacity)
	}
	return nil
}

// MediaInfo returns the metadata received by Open, if any.
func (in *Ingest) MediaInfo() *engine.MediaInfo {
	return xatomic.LoadPointer(&in.mediaInfo)
}

// Length returns the media length in host frames (0 if unknown).
func (in *Ingest) Length() int64 {
	return in.MediaInfo().LengthInFrames(in.Config.Format.FrameRate)
}

func (in *Ingest) onBackpressure(ctx context.Context, ch *channel, full bool) {
	pauser, ok := ch.Seeker.Player.(engine.Pauser)
	if !ok {
		return
	}
	if err := pauser.SetPause(ctx, full); err != nil {
		logger.Warnf(ctx, "unable to set pause=%t on the %s player: %v", full, ch.MediaType, err)
	}
}

func (in *Ingest) ensurePlaying(ctx context.Context, ch *channel) {
	player := ch.Seeker.Player
	if player == nil || player.IsPlaying(ctx) {
		return
	}
	logger.Debugf(ctx, "starting the %s player", ch.MediaType)
	if err := player.Play(ctx); err != nil {
		logger.Warnf(ctx, "unable to start the %s player: %v", ch.MediaType, err)
	}
}

// pullTimeout is zero for a channel without a player: nothing is going
// to fill its queue.
func (in *Ingest) pullTimeout(ch *channel) time.Duration {
	if ch.Seeker.Player == nil {
		return 0
	}
	return in.Config.pullTimeout()
}

// classify updates the channel position state and fires a reposition on
// a discontinuity.
func (in *Ingest) classify(ctx context.Context, ch *channel, p int64) position.Result {
	in.ensurePlaying(ctx, ch)
	r := ch.Tracker.Classify(p)
	if r.Classification == position.ClassificationDiscontinuous {
		logger.Debugf(ctx, "discontinuity at %d", p)
		ch.Seeker.Seek(ctx, p)
	}
	return r
}

// GetAudio returns the audio block of the host frame at position p. It
// never fails: missing audio is replaced with silence.
func (in *Ingest) GetAudio(ctx context.Context, p int64) (_ret *types.AudioBlock) {
	ctx = belt.WithField(ctx, "channel", types.MediaTypeAudio.String())
	logger.Tracef(ctx, "GetAudio(%d)", p)
	defer func() { logger.Tracef(ctx, "/GetAudio(%d): underrun:%d", p, _ret.Underrun) }()
	return xsync.DoA2R1(ctx, &in.audio.PullLocker, in.getAudio, ctx, p)
}

func (in *Ingest) getAudio(ctx context.Context, p int64) *types.AudioBlock {
	r := in.classify(ctx, in.audio, p)
	switch r.Classification {
	case position.ClassificationPaused:
		return in.packer.Silence(ctx, p)
	case position.ClassificationSequential:
		for skipped := p - r.Skipped; skipped < p; skipped++ {
			in.packer.Pack(ctx, skipped, 0)
		}
	}
	return in.packer.Pack(ctx, p, in.pullTimeout(in.audio))
}

// GetVideo returns the image of the host frame at position p. It never
// fails: missing video is replaced with the last image or a blank one.
func (in *Ingest) GetVideo(ctx context.Context, p int64) (_ret *types.VideoImage) {
	ctx = belt.WithField(ctx, "channel", types.MediaTypeVideo.String())
	logger.Tracef(ctx, "GetVideo(%d)", p)
	defer func() { logger.Tracef(ctx, "/GetVideo(%d): stale:%t", p, _ret.Stale) }()
	return xsync.DoA2R1(ctx, &in.video.PullLocker, in.getVideo, ctx, p)
}

func (in *Ingest) getVideo(ctx context.Context, p int64) *types.VideoImage {
	r := in.classify(ctx, in.video, p)
	switch r.Classification {
	case position.ClassificationPaused:
		return in.rate.Hold(ctx, p)
	case position.ClassificationSequential:
		return in.rate.Next(ctx, p, r.Skipped, in.pullTimeout(in.video))
	default:
		return in.rate.Next(ctx, p, 0, in.pullTimeout(in.video))
	}
}

// GetFrame returns both the audio and the video of position p.
func (in *Ingest) GetFrame(ctx context.Context, p int64) *types.Frame {
	return &types.Frame{
		Position: p,
		Audio:    in.GetAudio(ctx, p),
		Video:    in.GetVideo(ctx, p),
	}
}

// Close releases the engine callbacks blocked on full queues and stops
// the players.
func (in *Ingest) Close(ctx context.Context) error {
	logger.Debugf(ctx, "closing")
	var result []error
	for _, ch := range []*channel{in.audio, in.video} {
		if err := ch.Queue.Close(ctx); err != nil {
			result = append(result, fmt.Errorf("unable to close the %s queue: %w", ch.MediaType, err))
		}
		if player := ch.Seeker.Player; player != nil {
			if err := player.Stop(ctx); err != nil {
				result = append(result, fmt.Errorf("unable to stop the %s player: %w", ch.MediaType, err))
			}
		}
	}
	if err := in.rate.Close(ctx); err != nil {
		result = append(result, err)
	}
	return errors.Join(result...)
}

type Statistics struct {
	AudioQueue queue.Statistics
	VideoQueue queue.Statistics
	AudioSeek  seek.Statistics
	VideoSeek  seek.Statistics
	Packer     packer.Statistics
	Rate       rate.Statistics
}

func (in *Ingest) GetStats(ctx context.Context) Statistics {
	return Statistics{
		AudioQueue: in.audio.Queue.GetStats(ctx),
		VideoQueue: in.video.Queue.GetStats(ctx),
		AudioSeek:  in.audio.Seeker.GetStats(),
		VideoSeek:  in.video.Seeker.GetStats(),
		Packer:     in.packer.GetStats(ctx),
		Rate:       in.rate.GetStats(),
	}
}
