package libav

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/secret"
)

type Config struct {
	Format types.HostFormat

	// AuthKey is appended to the URL when opening it and is never logged.
	AuthKey secret.String

	// Options are passed to the demuxer (as in "-option value" of ffmpeg);
	// "f" forces the input format.
	Options map[string]string
}

func DefaultConfig() Config {
	return Config{
		Format: types.DefaultHostFormat(),
	}
}

func (cfg *Config) String() string {
	if cfg == nil {
		return "<nil>"
	}
	c := *cfg
	c.AuthKey = secret.New("<HIDDEN>")
	return spew.Sdump(c)
}
