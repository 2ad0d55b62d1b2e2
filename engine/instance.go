package engine

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

// Instance is a reference counted engine-wide resource (library
// initialization, log plumbing, device contexts). It is opened on the
// first Acquire and closed on the last Release.
type Instance struct {
	Name      string
	locker    xsync.Mutex
	refs      int
	openFunc  func(ctx context.Context) error
	closeFunc func(ctx context.Context) error
}

func NewInstance(
	name string,
	openFunc func(ctx context.Context) error,
	closeFunc func(ctx context.Context) error,
) *Instance {
	return &Instance{
		Name:      name,
		openFunc:  openFunc,
		closeFunc: closeFunc,
	}
}

func (i *Instance) String() string {
	return fmt.Sprintf("Instance(%s)", i.Name)
}

func (i *Instance) Acquire(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Acquire")
	defer func() { logger.Tracef(ctx, "/Acquire: %v", _err) }()
	return xsync.DoA1R1(ctx, &i.locker, i.acquireLocked, ctx)
}

func (i *Instance) acquireLocked(ctx context.Context) error {
	if i.refs == 0 && i.openFunc != nil {
		logger.Debugf(ctx, "%s: opening", i)
		if err := i.openFunc(ctx); err != nil {
			return fmt.Errorf("unable to open %s: %w", i, err)
		}
	}
	i.refs++
	return nil
}

// Release drops a reference. The instance is closed when the last
// reference is dropped, even if ctx is already canceled.
func (i *Instance) Release(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Release")
	defer func() { logger.Tracef(ctx, "/Release: %v", _err) }()
	return xsync.DoA1R1(ctx, &i.locker, i.releaseLocked, ctx)
}

func (i *Instance) releaseLocked(ctx context.Context) error {
	if i.refs <= 0 {
		return fmt.Errorf("%s is released more times than acquired", i)
	}
	i.refs--
	if i.refs > 0 || i.closeFunc == nil {
		return nil
	}
	logger.Debugf(ctx, "%s: closing", i)
	if err := i.closeFunc(xcontext.DetachDone(ctx)); err != nil {
		return fmt.Errorf("unable to close %s: %w", i, err)
	}
	return nil
}

func (i *Instance) RefCount(ctx context.Context) int {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &i.locker, func() int {
		return i.refs
	})
}
