package egress

import (
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avbridge/types"
)

type Config struct {
	Format types.HostFormat `json:"format" yaml:"format"`

	// ReleaseTimeout bounds how long a request waits for the release of
	// a fully served frame before the frame is retired anyway.
	ReleaseTimeout time.Duration `json:"release_timeout" yaml:"release_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Format:         types.DefaultHostFormat(),
		ReleaseTimeout: time.Second,
	}
}

func (cfg *Config) String() string {
	if cfg == nil {
		return "<nil>"
	}
	return spew.Sdump(*cfg)
}
