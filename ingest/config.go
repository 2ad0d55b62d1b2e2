package ingest

import (
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avbridge/position"
	"github.com/xaionaro-go/avbridge/queue"
	"github.com/xaionaro-go/avbridge/types"
)

type Config struct {
	Format     types.HostFormat    `json:"format" yaml:"format"`
	Queue      queue.Config        `json:"queue" yaml:"queue"`
	Thresholds position.Thresholds `json:"thresholds" yaml:"thresholds"`

	// PullTimeout bounds how long a host pull waits for decoded data. Zero
	// means one host tick.
	PullTimeout time.Duration `json:"pull_timeout" yaml:"pull_timeout"`

	// ParseTimeout bounds how long Open waits for the media metadata.
	ParseTimeout time.Duration `json:"parse_timeout" yaml:"parse_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Format:       types.DefaultHostFormat(),
		Queue:        queue.DefaultConfig(),
		Thresholds:   position.DefaultThresholds(),
		ParseTimeout: 3 * time.Second,
	}
}

func (cfg *Config) String() string {
	if cfg == nil {
		return "<nil>"
	}
	return spew.Sdump(*cfg)
}

func (cfg Config) pullTimeout() time.Duration {
	if cfg.PullTimeout > 0 {
		return cfg.PullTimeout
	}
	fps := cfg.Format.FrameRate.Normalized()
	if !fps.IsPositive() {
		return time.Second
	}
	return time.Duration(int64(time.Second) * int64(fps.Den) / int64(fps.Num))
}
