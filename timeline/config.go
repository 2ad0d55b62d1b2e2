package timeline

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avbridge/types"
)

type Config struct {
	FrameRate types.Rational `json:"frame_rate" yaml:"frame_rate"`

	// StartPosition is the position of the first pulled frame.
	StartPosition int64 `json:"start_position" yaml:"start_position"`

	// Length limits the timeline (zero means unlimited).
	Length int64 `json:"length" yaml:"length"`

	// Realtime makes PullFrame wait for the wall-clock time of the frame;
	// otherwise the timeline runs as fast as it is pulled.
	Realtime bool `json:"realtime" yaml:"realtime"`
}

func DefaultConfig() Config {
	return Config{
		FrameRate: types.Rational{Num: 25, Den: 1},
	}
}

func (cfg *Config) String() string {
	return spew.Sdump(cfg)
}
