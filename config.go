package avbridge

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avbridge/egress"
	"github.com/xaionaro-go/avbridge/engine/libav"
	"github.com/xaionaro-go/avbridge/ingest"
	"github.com/xaionaro-go/avbridge/timeline"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/secret"
	"gopkg.in/yaml.v3"
)

// Config of a Playback. Format is propagated to every component.
type Config struct {
	Format   types.HostFormat `json:"format" yaml:"format"`
	Ingest   ingest.Config    `json:"ingest" yaml:"ingest"`
	Egress   egress.Config    `json:"egress" yaml:"egress"`
	Timeline timeline.Config  `json:"timeline" yaml:"timeline"`
	LibAV    libav.Config     `json:"-" yaml:"-"`

	// Volume is in range [0, 1].
	Volume float64 `json:"volume" yaml:"volume"`
}

func DefaultConfig() Config {
	return Config{
		Format:   types.DefaultHostFormat(),
		Ingest:   ingest.DefaultConfig(),
		Egress:   egress.DefaultConfig(),
		Timeline: timeline.DefaultConfig(),
		LibAV:    libav.DefaultConfig(),
		Volume:   1,
	}
}

func (cfg *Config) String() string {
	if cfg == nil {
		return "<nil>"
	}
	c := *cfg
	c.LibAV.AuthKey = secret.New("<HIDDEN>")
	return spew.Sdump(c)
}

// LoadConfig reads a YAML config on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse '%s': %w", path, err)
	}
	return cfg, nil
}

// normalized returns the config with Format copied into every
// component.
func (cfg Config) normalized() Config {
	cfg.Ingest.Format = cfg.Format
	cfg.Egress.Format = cfg.Format
	cfg.LibAV.Format = cfg.Format
	cfg.Timeline.FrameRate = cfg.Format.FrameRate
	return cfg
}
