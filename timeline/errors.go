package timeline

import (
	"fmt"
)

type ErrEnd struct {
	Length int64
}

func (e ErrEnd) Error() string {
	return fmt.Sprintf("reached the end of the timeline (%d frames)", e.Length)
}
