package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avbridge"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/engine/libav"
	"github.com/xaionaro-go/avbridge/engine/otoaudio"
	"github.com/xaionaro-go/avbridge/engine/rawout"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/secret"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] <URL>\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config")
	fps := types.Rational{Num: 25, Den: 1}
	pflag.Var(&fps, "fps", "host timeline frame rate (e.g. 30000/1001, 25, ~29.97)")
	sampleRate := pflag.Int("sample-rate", 48000, "host audio sample rate")
	channels := pflag.Int("channels", 2, "host audio channels")
	width := pflag.Int("width", 1280, "host video width")
	height := pflag.Int("height", 720, "host video height")
	startPosition := pflag.Int64("start-position", 0, "the first position of the host timeline")
	volume := pflag.Float64("volume", 1, "volume in range [0, 1]")
	rawAudioOut := pflag.String("raw-audio-out", "", "write the audio as raw interleaved samples into this file instead of the sound device")
	rawVideoOut := pflag.String("raw-video-out", "", "write the video as raw images into this file")
	noSound := pflag.Bool("no-sound", false, "do not open the sound device")
	realtime := pflag.Bool("realtime", false, "pace the timeline by the wall clock when no sound device paces it")
	authKey := pflag.String("auth-key", "", "a secret appended to the URL")
	statsInterval := pflag.Duration("stats-interval", time.Second, "how often to print the statistics (0 disables)")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()
	if len(pflag.Args()) != 1 {
		pflag.Usage()
		os.Exit(1)
	}
	url := pflag.Arg(0)

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFn()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	cfg := avbridge.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = avbridge.LoadConfig(*configPath)
		if err != nil {
			l.Fatal(err)
		}
	}
	flags := pflag.CommandLine
	if flags.Changed("fps") {
		cfg.Format.FrameRate = fps
	}
	if flags.Changed("sample-rate") {
		cfg.Format.SampleRate = *sampleRate
	}
	if flags.Changed("channels") {
		cfg.Format.Channels = *channels
	}
	if flags.Changed("width") {
		cfg.Format.Width = *width
	}
	if flags.Changed("height") {
		cfg.Format.Height = *height
	}
	if flags.Changed("start-position") {
		cfg.Timeline.StartPosition = *startPosition
	}
	if flags.Changed("volume") {
		cfg.Volume = *volume
	}
	if *authKey != "" {
		cfg.LibAV.AuthKey = secret.New(*authKey)
	}

	var renderers []avbridge.RendererFactory
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				l.Error(err)
			}
		}
	}()
	addRawOutput := func(mediaType types.MediaType, path string) {
		f, err := os.Create(path)
		if err != nil {
			l.Fatal(err)
		}
		closers = append(closers, f)
		renderers = append(renderers, func(source engine.PullSource, _ types.HostFormat) (engine.Renderer, error) {
			return rawout.New(mediaType, source, f), nil
		})
	}
	switch {
	case *rawAudioOut != "":
		addRawOutput(types.MediaTypeAudio, *rawAudioOut)
		cfg.Timeline.Realtime = *realtime
	case *noSound:
		cfg.Timeline.Realtime = *realtime
	default:
		renderers = append(renderers, func(source engine.PullSource, format types.HostFormat) (engine.Renderer, error) {
			return otoaudio.New(source, format)
		})
	}
	if *rawVideoOut != "" {
		addRawOutput(types.MediaTypeVideo, *rawVideoOut)
	}
	l.Debugf("config: %s", cfg.String())

	playback, err := avbridge.NewPlayback(ctx, libav.NewInstance(), url, cfg, renderers...)
	if err != nil {
		l.Fatal(err)
	}
	defer func() {
		if err := playback.Close(context.WithoutCancel(ctx)); err != nil {
			l.Error(err)
		}
	}()
	if info := playback.Ingest.MediaInfo(); info != nil {
		l.Infof("%s: %v, %d frames at %s", url, info.Duration, playback.Timeline.Config.Length, cfg.Format.FrameRate)
	}

	if err := playback.Start(ctx); err != nil {
		l.Fatal(err)
	}

	var statsCh <-chan time.Time
	if *statsInterval > 0 {
		t := time.NewTicker(*statsInterval)
		defer t.Stop()
		statsCh = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-playback.EndChan():
			l.Infof("finished: %v", playback.EndCause())
			return
		case <-statsCh:
			stats := playback.GetStats(ctx)
			statsJSON, err := json.Marshal(stats)
			if err != nil {
				l.Fatal(err)
			}
			fmt.Printf(
				"position:%d audio-queue:%s video-queue:%s stats:%s\n",
				stats.Timeline.Position,
				humanize.IBytes(uint64(stats.Ingest.AudioQueue.Bytes)),
				humanize.IBytes(uint64(stats.Ingest.VideoQueue.Bytes)),
				statsJSON,
			)
		}
	}
}
