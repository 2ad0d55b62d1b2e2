// Package closuresignaler provides a one-shot "stopping" signal that every
// blocking wait in avbridge selects on, so teardown can release goroutines
// parked on a full or empty queue.
package closuresignaler

import (
	"context"
	"sync"

	"github.com/xaionaro-go/avbridge/logger"
)

type ClosureSignaler struct {
	closeOnce sync.Once
	c         chan struct{}
	cause     error
}

func New() *ClosureSignaler {
	return &ClosureSignaler{
		c: make(chan struct{}),
	}
}

func (c *ClosureSignaler) CloseChan() <-chan struct{} {
	return c.c
}

// Close is idempotent.
func (c *ClosureSignaler) Close(ctx context.Context) {
	c.CloseWithCause(ctx, nil)
}

// CloseWithCause closes the signaler remembering why; only the first
// call has an effect.
func (c *ClosureSignaler) CloseWithCause(ctx context.Context, cause error) {
	logger.Tracef(ctx, "CloseWithCause(%v)", cause)
	defer func() { logger.Tracef(ctx, "/CloseWithCause(%v)", cause) }()
	c.closeOnce.Do(func() {
		c.cause = cause
		close(c.c)
	})
}

func (c *ClosureSignaler) IsClosed() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}

// Cause returns the error the signaler was closed with (nil if it is not
// closed or was closed with Close).
func (c *ClosureSignaler) Cause() error {
	if !c.IsClosed() {
		return nil
	}
	return c.cause
}
