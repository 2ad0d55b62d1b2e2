package libav

import (
	"fmt"

	"github.com/xaionaro-go/avbridge/types"
)

type ErrNoStream struct {
	MediaType types.MediaType
}

func (e ErrNoStream) Error() string {
	return fmt.Sprintf("there is no %s stream", e.MediaType)
}

type ErrNotSeekable struct {
	URL string
}

func (e ErrNotSeekable) Error() string {
	return fmt.Sprintf("'%s' is a live stream and cannot be repositioned", e.URL)
}
