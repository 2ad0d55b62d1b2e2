// Package seek repositions an ingest engine when the host timeline
// jumps.
package seek

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/queue"
	"github.com/xaionaro-go/avbridge/types"
	"go.uber.org/atomic"
)

// FuncOnSeek resets per-channel state derived from the stream (rate
// accumulators, virtual clocks) once the queues were flushed.
type FuncOnSeek func(ctx context.Context, position int64)

type Coordinator struct {
	Name      string
	Player    engine.Player
	FrameRate types.Rational
	Queues    []*queue.Queue
	OnSeek    []FuncOnSeek

	seeks    atomic.Uint64
	failures atomic.Uint64
}

type Statistics struct {
	Seeks    uint64 `json:",omitempty"`
	Failures uint64 `json:",omitempty"`
}

func New(
	name string,
	player engine.Player,
	frameRate types.Rational,
	queues []*queue.Queue,
	onSeek ...FuncOnSeek,
) *Coordinator {
	return &Coordinator{
		Name:      name,
		Player:    player,
		FrameRate: frameRate,
		Queues:    queues,
		OnSeek:    onSeek,
	}
}

func (c *Coordinator) String() string {
	return fmt.Sprintf("SeekCoordinator(%s)", c.Name)
}

// TimeOf returns the engine time of the host frame at position, rounded
// to milliseconds.
func TimeOf(position int64, fps types.Rational) time.Duration {
	if !fps.IsPositive() || position <= 0 {
		return 0
	}
	fps = fps.Normalized()
	num := position * 1000 * int64(fps.Den)
	den := int64(fps.Num)
	return time.Duration((2*num+den)/(2*den)) * time.Millisecond
}

// Seek flushes the queues, resets the derived state and repositions the
// engine. A failed reposition is only logged: the playback continues
// from wherever the engine is.
func (c *Coordinator) Seek(ctx context.Context, position int64) {
	logger.Tracef(ctx, "Seek(%d)", position)
	defer func() { logger.Tracef(ctx, "/Seek(%d)", position) }()

	c.seeks.Inc()
	for _, q := range c.Queues {
		q.Reset(ctx)
	}
	for _, fn := range c.OnSeek {
		fn(ctx, position)
	}

	if c.Player == nil {
		return
	}
	t := TimeOf(position, c.FrameRate)
	logger.Debugf(ctx, "%s: repositioning to %d (%v)", c, position, t)
	if err := c.Player.SetTime(ctx, t); err != nil {
		c.failures.Inc()
		logger.Warnf(ctx, "%s: unable to reposition to %v: %v", c, t, err)
	}
}

func (c *Coordinator) GetStats() Statistics {
	return Statistics{
		Seeks:    c.seeks.Load(),
		Failures: c.failures.Load(),
	}
}
