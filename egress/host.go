package egress

import (
	"context"

	"github.com/xaionaro-go/avbridge/types"
)

// Host is the timeline the frames are pulled from.
type Host interface {
	// PullFrame returns the next frame of the timeline.
	PullFrame(ctx context.Context) (*types.Frame, error)

	// FrameShown is called once per pulled frame when the engine is done
	// with it.
	FrameShown(ctx context.Context, frame *types.Frame)
}
