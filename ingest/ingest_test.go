package ingest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/engine/enginetest"
	"github.com/xaionaro-go/avbridge/queue"
	"github.com/xaionaro-go/avbridge/types"
)

const (
	testAudioBytesPerTick = 100
	testImageSize         = 8
)

func newTestIngest(t *testing.T) (*Ingest, *enginetest.Player, *enginetest.Player) {
	cfg := DefaultConfig()
	cfg.Format = types.HostFormat{
		FrameRate:    types.Rational{Num: 25, Den: 1},
		SampleRate:   625,
		Channels:     2,
		SampleFormat: types.SampleFormatS16,
		Width:        2,
		Height:       2,
		PixelFormat:  types.PixelFormatYUYV422,
	}
	cfg.Queue = queue.Config{InitialCapacity: 4, MaxCapacity: 16}
	cfg.PullTimeout = 100 * time.Millisecond

	in, err := New(cfg)
	require.NoError(t, err)
	audioPlayer, videoPlayer := enginetest.NewPlayer(), enginetest.NewPlayer()
	require.NoError(t, in.AttachPlayer(types.MediaTypeAudio, audioPlayer))
	require.NoError(t, in.AttachPlayer(types.MediaTypeVideo, videoPlayer))
	t.Cleanup(func() { in.Close(context.Background()) })
	return in, audioPlayer, videoPlayer
}

func feed(t *testing.T, in *Ingest, mediaType types.MediaType, fill byte, size int) {
	err := enginetest.Feed(
		context.Background(),
		in.Sink(mediaType),
		bytes.Repeat([]byte{fill}, size),
		engine.BufferInfo{MediaType: mediaType},
	)
	require.NoError(t, err)
}

func TestIngestSequentialAudio(t *testing.T) {
	ctx := context.Background()
	in, audioPlayer, _ := newTestIngest(t)

	for p := byte(0); p < 3; p++ {
		feed(t, in, types.MediaTypeAudio, p, testAudioBytesPerTick)
	}
	for p := int64(0); p < 3; p++ {
		block := in.GetAudio(ctx, p)
		require.Equal(t, 25, block.Samples)
		require.Zero(t, block.Underrun)
		require.Equal(t, bytes.Repeat([]byte{byte(p)}, testAudioBytesPerTick), block.Data)
	}
	require.True(t, audioPlayer.IsPlaying(ctx))
	require.Equal(t, 1, audioPlayer.PlayCount())
	require.Empty(t, audioPlayer.SetTimeCalls())
}

func TestIngestDiscontinuity(t *testing.T) {
	ctx := context.Background()
	in, _, videoPlayer := newTestIngest(t)

	feed(t, in, types.MediaTypeVideo, 5, testImageSize)
	img := in.GetVideo(ctx, 5)
	require.Equal(t, []time.Duration{200 * time.Millisecond}, videoPlayer.SetTimeCalls())
	require.True(t, img.Stale, "the pre-seek image must have been flushed")

	feed(t, in, types.MediaTypeVideo, 6, testImageSize)
	require.Equal(t, byte(6), in.GetVideo(ctx, 6).Data[0])

	feed(t, in, types.MediaTypeVideo, 7, testImageSize)
	require.Equal(t, 1, in.video.Queue.Len(ctx))

	img = in.GetVideo(ctx, 40)
	require.Zero(t, in.video.Queue.Len(ctx))
	require.Equal(t, []time.Duration{200 * time.Millisecond, 1600 * time.Millisecond}, videoPlayer.SetTimeCalls())
	require.True(t, img.Stale)
	require.Equal(t, byte(6), img.Data[0])

	feed(t, in, types.MediaTypeVideo, 41, testImageSize)
	img = in.GetVideo(ctx, 41)
	require.False(t, img.Stale)
	require.Equal(t, byte(41), img.Data[0])
}

func TestIngestFlushDropsAdmittedBuffers(t *testing.T) {
	ctx := context.Background()
	in, _, _ := newTestIngest(t)
	in.GetAudio(ctx, 0)

	s := in.Sink(types.MediaTypeAudio)
	stale, err := s.Lock(ctx, testAudioBytesPerTick)
	require.NoError(t, err)
	copy(stale, bytes.Repeat([]byte{0xaa}, testAudioBytesPerTick))

	in.GetAudio(ctx, 100)
	require.NoError(t, s.Unlock(ctx, stale, engine.BufferInfo{MediaType: types.MediaTypeAudio}))
	require.Zero(t, in.audio.Queue.Len(ctx))

	feed(t, in, types.MediaTypeAudio, 0xbb, testAudioBytesPerTick)
	block := in.GetAudio(ctx, 101)
	require.Equal(t, bytes.Repeat([]byte{0xbb}, testAudioBytesPerTick), block.Data)
}

func TestIngestFlushDropsBackpressuredProducer(t *testing.T) {
	ctx := context.Background()
	in, _, _ := newTestIngest(t)

	for i := byte(1); i <= 4; i++ {
		feed(t, in, types.MediaTypeVideo, i, testImageSize)
	}
	require.Equal(t, byte(1), in.GetVideo(ctx, 0).Data[0])
	feed(t, in, types.MediaTypeVideo, 5, testImageSize)
	require.Equal(t, 4, in.video.Queue.Len(ctx))

	locked := make(chan []byte, 1)
	unlocked := make(chan error, 1)
	go func() {
		s := in.Sink(types.MediaTypeVideo)
		buf, err := s.Lock(ctx, testImageSize)
		if err != nil {
			locked <- nil
			unlocked <- err
			return
		}
		locked <- buf
		copy(buf, bytes.Repeat([]byte{0xaa}, testImageSize))
		unlocked <- s.Unlock(ctx, buf, engine.BufferInfo{MediaType: types.MediaTypeVideo})
	}()

	select {
	case <-locked:
		t.Fatal("the producer was expected to block on a full queue")
	case <-time.After(30 * time.Millisecond):
	}

	img := in.GetVideo(ctx, 100)
	select {
	case err := <-unlocked:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("the producer was not released by the flush")
	}
	require.True(t, img.Stale)
	require.NotEqual(t, byte(0xaa), img.Data[0])
	require.Zero(t, in.video.Queue.Len(ctx))

	feed(t, in, types.MediaTypeVideo, 0xbb, testImageSize)
	img = in.GetVideo(ctx, 101)
	require.False(t, img.Stale)
	require.Equal(t, byte(0xbb), img.Data[0])
}

func TestSinkAbort(t *testing.T) {
	ctx := context.Background()
	in, _, _ := newTestIngest(t)
	s := in.Sink(types.MediaTypeAudio)

	require.Error(t, s.Abort(ctx))

	_, err := s.Lock(ctx, testAudioBytesPerTick)
	require.NoError(t, err)
	require.NoError(t, s.Abort(ctx))
	require.Zero(t, in.audio.Queue.Len(ctx))

	feed(t, in, types.MediaTypeAudio, 3, testAudioBytesPerTick)
	require.Equal(t, 1, in.audio.Queue.Len(ctx))
}

func TestIngestPaused(t *testing.T) {
	ctx := context.Background()
	in, _, _ := newTestIngest(t)

	feed(t, in, types.MediaTypeAudio, 1, testAudioBytesPerTick)
	feed(t, in, types.MediaTypeAudio, 2, testAudioBytesPerTick)
	feed(t, in, types.MediaTypeVideo, 1, testImageSize)
	feed(t, in, types.MediaTypeVideo, 2, testImageSize)

	in.GetFrame(ctx, 0)
	expected := in.video.Tracker.Expected()
	queued := in.audio.Queue.Len(ctx)

	frame := in.GetFrame(ctx, 0)
	require.Equal(t, expected, in.video.Tracker.Expected())
	require.Equal(t, queued, in.audio.Queue.Len(ctx))
	require.Equal(t, make([]byte, testAudioBytesPerTick), frame.Audio.Data)
	require.True(t, frame.Video.Stale)
	require.Equal(t, byte(1), frame.Video.Data[0])

	frame = in.GetFrame(ctx, 1)
	require.Equal(t, byte(2), frame.Audio.Data[0])
	require.Equal(t, byte(2), frame.Video.Data[0])
	require.False(t, frame.Video.Stale)
}

func TestIngestBackpressurePausesEngine(t *testing.T) {
	ctx := context.Background()
	in, _, videoPlayer := newTestIngest(t)

	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for i := 0; i < 5; i++ {
			feed(t, in, types.MediaTypeVideo, byte(i), testImageSize)
		}
	}()

	require.Eventually(t, videoPlayer.IsPaused, 5*time.Second, time.Millisecond)
	require.Equal(t, 4, in.video.Queue.Len(ctx))

	in.GetVideo(ctx, 0)
	<-fed
	require.Eventually(t, func() bool { return !videoPlayer.IsPaused() }, 5*time.Second, time.Millisecond)
	require.Equal(t, []bool{true, false}, videoPlayer.PauseCalls()[:2])
}

func TestIngestCloseUnblocksEngine(t *testing.T) {
	ctx := context.Background()
	in, audioPlayer, _ := newTestIngest(t)
	for i := 0; i < 4; i++ {
		feed(t, in, types.MediaTypeAudio, byte(i), testAudioBytesPerTick)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := in.Sink(types.MediaTypeAudio).Lock(ctx, testAudioBytesPerTick)
		errCh <- err
	}()

	require.NoError(t, in.Close(ctx))
	select {
	case err := <-errCh:
		require.ErrorAs(t, err, &queue.ErrClosed{})
	case <-time.After(5 * time.Second):
		t.Fatal("the engine was not released")
	}
	require.Equal(t, 1, audioPlayer.StopCount())
}

func TestIngestOpenScalesCapacity(t *testing.T) {
	ctx := context.Background()
	in, _, _ := newTestIngest(t)

	media := engine.NewMedia("test://", func(ctx context.Context) (*engine.MediaInfo, error) {
		return &engine.MediaInfo{
			Duration:  10 * time.Second,
			FrameRate: types.Rational{Num: 50, Den: 1},
			HasAudio:  true,
			HasVideo:  true,
		}, nil
	})
	require.Nil(t, in.MediaInfo())
	require.NoError(t, in.Open(ctx, media))
	require.NotNil(t, in.MediaInfo())
	require.Equal(t, 10*time.Second, in.MediaInfo().Duration)
	require.Equal(t, uint(8), in.video.Queue.Capacity(ctx))
	require.Equal(t, uint(8), in.audio.Queue.Capacity(ctx))
	require.Equal(t, types.Rational{Num: 50, Den: 1}, in.rate.DecodeRate(ctx))
	require.Equal(t, int64(250), in.Length())
}
