// Package queue implements the bounded FIFO of decoded chunks that sits
// between an engine callback (the producer) and the host pull path (the
// consumer).
//
// The producer is blocked while the queue is full (that is the
// backpressure), the consumer waits for data only up to a timeout, and
// closing the queue releases everybody.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avbridge/chunk"
	"github.com/xaionaro-go/avbridge/helpers/closuresignaler"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

type Config struct {
	// InitialCapacity is the amount of chunks admitted before the producer
	// is blocked.
	InitialCapacity uint `json:"initial_capacity" yaml:"initial_capacity"`

	// MaxCapacity bounds the adaptive growth (see Grow).
	MaxCapacity uint `json:"max_capacity" yaml:"max_capacity"`
}

func DefaultConfig() Config {
	return Config{
		InitialCapacity: 5,
		MaxCapacity:     256,
	}
}

func (cfg *Config) String() string {
	if cfg == nil {
		return "<nil>"
	}
	return spew.Sdump(*cfg)
}

// FuncOnBackpressure is called with full==true when the producer hits the
// capacity and with full==false once there is space again.
type FuncOnBackpressure func(ctx context.Context, full bool)

// Ticket is issued by Admit; a chunk enqueued with a ticket from before
// the latest Clear is discarded.
type Ticket struct {
	generation uint64
}

type Queue struct {
	*closuresignaler.ClosureSignaler
	Name           string
	Config         Config
	Locker         xsync.Mutex
	OnBackpressure FuncOnBackpressure

	chunks        []*chunk.Chunk
	bytes         int
	capacity      uint
	generation    uint64
	changeCh      chan struct{}
	backpressured bool

	notifyLocker sync.Mutex
	reported     bool

	stats counters
}

type counters struct {
	Pushed       atomic.Uint64
	Popped       atomic.Uint64
	Dropped      atomic.Uint64
	Flushed      atomic.Uint64
	Backpressure atomic.Uint64
	Grown        atomic.Uint64
}

type Statistics struct {
	Pushed       uint64 `json:",omitempty"`
	Popped       uint64 `json:",omitempty"`
	Dropped      uint64 `json:",omitempty"`
	Flushed      uint64 `json:",omitempty"`
	Backpressure uint64 `json:",omitempty"`
	Grown        uint64 `json:",omitempty"`
	Len          int
	Bytes        int
	Capacity     uint
}

func New(
	name string,
	cfg Config,
	onBackpressure FuncOnBackpressure,
) *Queue {
	if cfg.InitialCapacity == 0 {
		cfg.InitialCapacity = 1
	}
	if cfg.MaxCapacity < cfg.InitialCapacity {
		cfg.MaxCapacity = cfg.InitialCapacity
	}
	return &Queue{
		ClosureSignaler: closuresignaler.New(),
		Name:            name,
		Config:          cfg,
		OnBackpressure:  onBackpressure,
		capacity:        cfg.InitialCapacity,
		changeCh:        make(chan struct{}),
	}
}

func (q *Queue) String() string {
	return fmt.Sprintf("Queue(%s)", q.Name)
}

// signalLocked wakes up everybody waiting for a change.
func (q *Queue) signalLocked() {
	close(q.changeCh)
	q.changeCh = make(chan struct{})
}

type waitResult int

const (
	waitResultOK = waitResult(iota)
	waitResultTimeout
	waitResultClosed
	waitResultCanceled
)

// lockWhen returns waitResultOK with the lock held once cond is true.
// With any other result the lock is not held. onBlocked (if set) is
// called under the lock every time cond is false.
func (q *Queue) lockWhen(
	ctx context.Context,
	timeout time.Duration,
	cond func() bool,
	onBlocked func(),
) waitResult {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		q.Locker.ManualLock(ctx)
		if q.IsClosed() {
			q.Locker.ManualUnlock(ctx)
			return waitResultClosed
		}
		if cond() {
			return waitResultOK
		}
		if onBlocked != nil {
			onBlocked()
		}
		changeCh := q.changeCh
		q.Locker.ManualUnlock(ctx)
		q.syncBackpressure(ctx)

		if timeout == 0 {
			return waitResultTimeout
		}

		select {
		case <-changeCh:
		case <-timeoutCh:
			return waitResultTimeout
		case <-q.CloseChan():
			return waitResultClosed
		case <-ctx.Done():
			return waitResultCanceled
		}
	}
}

func (q *Queue) isFullLocked() bool {
	return uint(len(q.chunks)) >= q.capacity
}

func (q *Queue) markFullLocked() {
	if !q.backpressured {
		q.stats.Backpressure.Inc()
	}
	q.backpressured = true
}

func (q *Queue) reevaluateLocked() {
	if q.backpressured && !q.isFullLocked() {
		q.backpressured = false
	}
}

// syncBackpressure delivers the current backpressure state to the
// callback if it differs from what was reported last. It must be called
// without holding Locker.
func (q *Queue) syncBackpressure(ctx context.Context) {
	if q.OnBackpressure == nil {
		return
	}
	q.notifyLocker.Lock()
	defer q.notifyLocker.Unlock()
	full := xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() bool {
		return q.backpressured && !q.IsClosed()
	})
	if full == q.reported {
		return
	}
	q.reported = full
	logger.Debugf(ctx, "%s: backpressure: %t", q, full)
	q.OnBackpressure(ctx, full)
}

func (q *Queue) waitError(ctx context.Context, r waitResult) error {
	switch r {
	case waitResultClosed:
		return ErrClosed{}
	case waitResultCanceled:
		return ctx.Err()
	default:
		return fmt.Errorf("unexpected wait result %d", r)
	}
}

// Admit blocks until there is space for one more chunk and returns the
// ticket to enqueue it with. It does not reserve the space: the queue
// expects a single producer per channel.
//
// The ticket carries the generation observed when Admit was called, so a
// producer that was blocked across a Clear gets a stale ticket and its
// chunk is dropped by Enqueue.
func (q *Queue) Admit(ctx context.Context) (Ticket, error) {
	logger.Tracef(ctx, "%s: Admit", q)
	generation := q.currentGeneration(ctx)
	r := q.lockWhen(ctx, -1, func() bool {
		return q.generation != generation || !q.isFullLocked()
	}, q.markFullLocked)
	if r != waitResultOK {
		return Ticket{}, q.waitError(ctx, r)
	}
	flushed := q.generation != generation
	q.Locker.ManualUnlock(ctx)
	if flushed {
		logger.Debugf(ctx, "%s: flushed while the producer was waiting for space", q)
	}
	return Ticket{generation: generation}, nil
}

func (q *Queue) currentGeneration(ctx context.Context) uint64 {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() uint64 {
		return q.generation
	})
}

// Enqueue appends the chunk without blocking. The chunk is discarded (and
// false is returned) if the queue was flushed or closed after the ticket
// was issued.
func (q *Queue) Enqueue(ctx context.Context, t Ticket, c *chunk.Chunk) bool {
	ok := xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() bool {
		if q.IsClosed() || t.generation != q.generation {
			return false
		}
		q.appendLocked(c)
		return true
	})
	if !ok {
		logger.Tracef(ctx, "%s: dropping %s: stale ticket", q, c)
		q.stats.Dropped.Inc()
		chunk.Put(c)
	}
	return ok
}

// Push is Admit+Enqueue done under a single lock scope. If the queue is
// flushed while Push waits for space, the chunk is dropped and ErrFlushed
// is returned.
func (q *Queue) Push(ctx context.Context, c *chunk.Chunk) error {
	generation := q.currentGeneration(ctx)
	r := q.lockWhen(ctx, -1, func() bool {
		return q.generation != generation || !q.isFullLocked()
	}, q.markFullLocked)
	if r != waitResultOK {
		chunk.Put(c)
		q.stats.Dropped.Inc()
		return q.waitError(ctx, r)
	}
	if q.generation != generation {
		q.Locker.ManualUnlock(ctx)
		logger.Tracef(ctx, "%s: dropping %s: flushed while waiting", q, c)
		chunk.Put(c)
		q.stats.Dropped.Inc()
		return ErrFlushed{}
	}
	q.appendLocked(c)
	q.Locker.ManualUnlock(ctx)
	return nil
}

func (q *Queue) appendLocked(c *chunk.Chunk) {
	q.chunks = append(q.chunks, c)
	q.bytes += c.Remaining()
	q.stats.Pushed.Inc()
	q.signalLocked()
}

func (q *Queue) popFrontLocked() *chunk.Chunk {
	c := q.chunks[0]
	q.chunks[0] = nil
	q.chunks = q.chunks[1:]
	if len(q.chunks) == 0 {
		q.chunks = q.chunks[:0:0]
	}
	q.bytes -= c.Remaining()
	q.stats.Popped.Inc()
	return c
}

// afterConsume must be called right before releasing the lock after the
// consumer changed the queue.
func (q *Queue) afterConsumeLocked() {
	q.reevaluateLocked()
	q.signalLocked()
}

// TryPop waits up to timeout for a chunk. A zero timeout does not wait at
// all; a negative one waits until the queue is closed or ctx is done.
func (q *Queue) TryPop(ctx context.Context, timeout time.Duration) (*chunk.Chunk, bool) {
	r := q.lockWhen(ctx, timeout, func() bool { return len(q.chunks) > 0 }, nil)
	if r != waitResultOK {
		return nil, false
	}
	c := q.popFrontLocked()
	q.afterConsumeLocked()
	q.Locker.ManualUnlock(ctx)
	q.syncBackpressure(ctx)
	return c, true
}

// Discard drops up to n chunks from the front and returns how many were
// dropped.
func (q *Queue) Discard(ctx context.Context, n int) int {
	if n <= 0 {
		return 0
	}
	dropped := xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() int {
		count := 0
		for count < n && len(q.chunks) > 0 {
			chunk.Put(q.popFrontLocked())
			count++
		}
		if count > 0 {
			q.afterConsumeLocked()
		}
		return count
	})
	q.syncBackpressure(ctx)
	return dropped
}

// WaitBytes waits up to timeout until at least n unconsumed bytes are
// buffered.
func (q *Queue) WaitBytes(ctx context.Context, n int, timeout time.Duration) bool {
	r := q.lockWhen(ctx, timeout, func() bool { return q.bytes >= n }, nil)
	if r != waitResultOK {
		return false
	}
	q.Locker.ManualUnlock(ctx)
	return true
}

// WaitReadable waits up to timeout until either n bytes are buffered or
// the queue is full, i.e. until waiting longer cannot bring more data
// without a read. It returns false on timeout, closure or cancellation.
func (q *Queue) WaitReadable(ctx context.Context, n int, timeout time.Duration) bool {
	r := q.lockWhen(ctx, timeout, func() bool {
		return q.bytes >= n || (len(q.chunks) > 0 && q.isFullLocked())
	}, nil)
	if r != waitResultOK {
		return false
	}
	q.Locker.ManualUnlock(ctx)
	return true
}

// IsFull reports whether the producer would be blocked right now.
func (q *Queue) IsFull(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, q.isFullLocked)
}

// Read copies buffered bytes into p starting from the front chunk. A chunk
// consumed only partially stays at the front with its cursor advanced;
// fully consumed chunks are recycled. It never blocks.
func (q *Queue) Read(ctx context.Context, p []byte) int {
	n := xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() int {
		n := 0
		for n < len(p) && len(q.chunks) > 0 {
			front := q.chunks[0]
			copied := front.ReadInto(p[n:])
			n += copied
			q.bytes -= copied
			if front.IsDrained() {
				q.chunks[0] = nil
				q.chunks = q.chunks[1:]
				q.stats.Popped.Inc()
				chunk.Put(front)
			}
		}
		if len(q.chunks) == 0 {
			q.chunks = q.chunks[:0:0]
		}
		if n > 0 {
			q.afterConsumeLocked()
		}
		return n
	})
	q.syncBackpressure(ctx)
	return n
}

// Grow raises the capacity by one chunk (up to Config.MaxCapacity). The
// consumer calls it on every shortfall, so that natural rate jitter or a
// capacity too small for one tick does not starve it permanently.
func (q *Queue) Grow(ctx context.Context) uint {
	capacity := xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() uint {
		if q.capacity < q.Config.MaxCapacity {
			q.capacity++
			q.stats.Grown.Inc()
			q.reevaluateLocked()
			q.signalLocked()
		}
		return q.capacity
	})
	q.syncBackpressure(ctx)
	return capacity
}

// SetInitialCapacity replaces Config.InitialCapacity (which Reset
// restores) and the current capacity. MaxCapacity is raised if needed.
func (q *Queue) SetInitialCapacity(ctx context.Context, capacity uint) {
	q.Locker.Do(xsync.WithNoLogging(ctx, true), func() {
		if capacity < 1 {
			capacity = 1
		}
		if capacity > q.Config.MaxCapacity {
			q.Config.MaxCapacity = capacity
		}
		q.Config.InitialCapacity = capacity
		q.capacity = capacity
		q.reevaluateLocked()
		q.signalLocked()
	})
	q.syncBackpressure(ctx)
}

// Clear discards every buffered chunk. Chunks admitted before the call,
// or by producers waiting for space during the call, are discarded.
func (q *Queue) Clear(ctx context.Context) int {
	return q.clear(ctx, false)
}

// Reset is Clear plus restoring Config.InitialCapacity.
func (q *Queue) Reset(ctx context.Context) int {
	return q.clear(ctx, true)
}

func (q *Queue) clear(ctx context.Context, resetCapacity bool) int {
	flushed := xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() int {
		count := len(q.chunks)
		for _, c := range q.chunks {
			chunk.Put(c)
		}
		q.chunks = nil
		q.bytes = 0
		q.generation++
		if resetCapacity {
			q.capacity = q.Config.InitialCapacity
		}
		q.reevaluateLocked()
		q.signalLocked()
		return count
	})
	q.stats.Flushed.Add(uint64(flushed))
	logger.Debugf(ctx, "%s: flushed %d chunks (reset capacity: %t)", q, flushed, resetCapacity)
	q.syncBackpressure(ctx)
	return flushed
}

// Close releases every waiting goroutine and discards buffered chunks.
// Closing is final.
func (q *Queue) Close(ctx context.Context) error {
	q.ClosureSignaler.Close(ctx)
	xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() struct{} {
		for _, c := range q.chunks {
			chunk.Put(c)
		}
		q.chunks = nil
		q.bytes = 0
		q.generation++
		q.backpressured = false
		q.signalLocked()
		return struct{}{}
	})
	q.syncBackpressure(ctx)
	return nil
}

func (q *Queue) Len(ctx context.Context) int {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() int {
		return len(q.chunks)
	})
}

// Bytes returns the amount of buffered bytes not consumed yet.
func (q *Queue) Bytes(ctx context.Context) int {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() int {
		return q.bytes
	})
}

func (q *Queue) Capacity(ctx context.Context) uint {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() uint {
		return q.capacity
	})
}

func (q *Queue) IsBackpressured(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.Locker, func() bool {
		return q.backpressured
	})
}

func (q *Queue) GetStats(ctx context.Context) Statistics {
	s := Statistics{
		Pushed:       q.stats.Pushed.Load(),
		Popped:       q.stats.Popped.Load(),
		Dropped:      q.stats.Dropped.Load(),
		Flushed:      q.stats.Flushed.Load(),
		Backpressure: q.stats.Backpressure.Load(),
		Grown:        q.stats.Grown.Load(),
	}
	q.Locker.Do(xsync.WithNoLogging(ctx, true), func() {
		s.Len = len(q.chunks)
		s.Bytes = q.bytes
		s.Capacity = q.capacity
	})
	return s
}
