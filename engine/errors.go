package engine

import (
	"fmt"
	"time"
)

type ErrParseTimeout struct {
	Timeout time.Duration
}

func (e ErrParseTimeout) Error() string {
	return fmt.Sprintf("media was not parsed within %v", e.Timeout)
}
