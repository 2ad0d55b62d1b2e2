package ingest

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avbridge/chunk"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/queue"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
)

// sink turns the Lock/Unlock calls of an engine into queue admissions.
// An engine is expected to have at most one buffer locked per channel.
type sink struct {
	MediaType types.MediaType
	Queue     *queue.Queue

	locker  xsync.Mutex
	pending *pendingBuffer
}

type pendingBuffer struct {
	ticket queue.Ticket
	chunk  *chunk.Chunk
}

var _ engine.Sink = (*sink)(nil)

func newSink(mediaType types.MediaType, q *queue.Queue) *sink {
	return &sink{
		MediaType: mediaType,
		Queue:     q,
	}
}

func (s *sink) String() string {
	return fmt.Sprintf("Sink(%s)", s.MediaType)
}

// Lock blocks while the queue is full.
func (s *sink) Lock(ctx context.Context, size int) (_ret []byte, _err error) {
	logger.Tracef(ctx, "Lock(%d)", size)
	defer func() { logger.Tracef(ctx, "/Lock(%d): %v", size, _err) }()
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", size)
	}

	ticket, err := s.Queue.Admit(ctx)
	if err != nil {
		return nil, err
	}

	c := chunk.Get(size)
	err = xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.locker, func() error {
		if s.pending != nil {
			return fmt.Errorf("%s: a buffer is already locked", s)
		}
		s.pending = &pendingBuffer{ticket: ticket, chunk: c}
		return nil
	})
	if err != nil {
		chunk.Put(c)
		return nil, err
	}
	return c.Buffer, nil
}

// Unlock enqueues the buffer returned by the latest Lock. The data are
// dropped if the queue was flushed in the meantime.
func (s *sink) Unlock(ctx context.Context, buf []byte, info engine.BufferInfo) (_err error) {
	logger.Tracef(ctx, "Unlock")
	defer func() { logger.Tracef(ctx, "/Unlock: %v", _err) }()

	p := xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.locker, func() *pendingBuffer {
		p := s.pending
		s.pending = nil
		return p
	})
	if p == nil {
		return fmt.Errorf("%s: no buffer is locked", s)
	}
	if len(buf) == 0 || len(p.chunk.Buffer) == 0 || &buf[0] != &p.chunk.Buffer[0] {
		chunk.Put(p.chunk)
		return fmt.Errorf("%s: the unlocked buffer is not the locked one", s)
	}
	if len(buf) < len(p.chunk.Buffer) {
		p.chunk.Buffer = p.chunk.Buffer[:len(buf)]
	}
	p.chunk.PTS = info.PTS.Microseconds()
	s.Queue.Enqueue(ctx, p.ticket, p.chunk)
	return nil
}

// Abort gives up the buffer returned by the latest Lock without enqueuing
// anything.
func (s *sink) Abort(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Abort")
	defer func() { logger.Tracef(ctx, "/Abort: %v", _err) }()

	p := xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.locker, func() *pendingBuffer {
		p := s.pending
		s.pending = nil
		return p
	})
	if p == nil {
		return fmt.Errorf("%s: no buffer is locked", s)
	}
	chunk.Put(p.chunk)
	return nil
}
