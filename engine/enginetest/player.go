// Package enginetest provides in-memory engine implementations for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/avbridge/engine"
)

// Player records every call it receives.
type Player struct {
	locker       sync.Mutex
	playing      bool
	paused       bool
	playCount    int
	stopCount    int
	setTimeCalls []time.Duration
	pauseCalls   []bool

	// SetTimeError is returned by SetTime, if set.
	SetTimeError error
}

var _ engine.Player = (*Player)(nil)
var _ engine.Pauser = (*Player)(nil)

func NewPlayer() *Player {
	return &Player{}
}

func (p *Player) Play(ctx context.Context) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.playing = true
	p.playCount++
	return nil
}

func (p *Player) IsPlaying(ctx context.Context) bool {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.playing
}

func (p *Player) SetTime(ctx context.Context, t time.Duration) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.setTimeCalls = append(p.setTimeCalls, t)
	return p.SetTimeError
}

func (p *Player) Stop(ctx context.Context) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.playing = false
	p.stopCount++
	return nil
}

func (p *Player) SetPause(ctx context.Context, pause bool) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	p.paused = pause
	p.pauseCalls = append(p.pauseCalls, pause)
	return nil
}

func (p *Player) PlayCount() int {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.playCount
}

func (p *Player) StopCount() int {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.stopCount
}

func (p *Player) IsPaused() bool {
	p.locker.Lock()
	defer p.locker.Unlock()
	return p.paused
}

func (p *Player) SetTimeCalls() []time.Duration {
	p.locker.Lock()
	defer p.locker.Unlock()
	return append([]time.Duration(nil), p.setTimeCalls...)
}

func (p *Player) PauseCalls() []bool {
	p.locker.Lock()
	defer p.locker.Unlock()
	return append([]bool(nil), p.pauseCalls...)
}

// Feed pushes data into the sink the way an engine does.
func Feed(ctx context.Context, sink engine.Sink, data []byte, info engine.BufferInfo) error {
	buf, err := sink.Lock(ctx, len(data))
	if err != nil {
		return fmt.Errorf("unable to lock a buffer of %d bytes: %w", len(data), err)
	}
	copy(buf, data)
	return sink.Unlock(ctx, buf, info)
}
