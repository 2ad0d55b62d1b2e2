package libav

import (
	"context"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avbridge/engine"
	"github.com/xaionaro-go/avbridge/logger"
)

func LogLevelToAstiav(level logger.Level) astiav.LogLevel {
	switch level {
	case logger.LevelTrace:
		return astiav.LogLevelTrace
	case logger.LevelDebug:
		return astiav.LogLevelDebug
	case logger.LevelInfo:
		return astiav.LogLevelInfo
	case logger.LevelWarning:
		return astiav.LogLevelWarning
	case logger.LevelError:
		return astiav.LogLevelError
	case logger.LevelPanic:
		return astiav.LogLevelPanic
	case logger.LevelFatal:
		return astiav.LogLevelFatal
	default:
		return astiav.LogLevelQuiet
	}
}

func LogLevelFromAstiav(level astiav.LogLevel) logger.Level {
	switch {
	case level <= astiav.LogLevelFatal:
		return logger.LevelFatal
	case level <= astiav.LogLevelError:
		return logger.LevelError
	case level <= astiav.LogLevelWarning:
		return logger.LevelWarning
	case level <= astiav.LogLevelInfo:
		return logger.LevelInfo
	case level <= astiav.LogLevelDebug:
		return logger.LevelDebug
	default:
		return logger.LevelTrace
	}
}

// NewInstance returns the libav-wide resource: while it is acquired libav
// logs are routed to the logger of the acquiring context.
func NewInstance() *engine.Instance {
	return engine.NewInstance(
		"libav",
		func(ctx context.Context) error {
			l := logger.FromCtx(ctx)
			astiav.SetLogLevel(LogLevelToAstiav(l.Level()))
			astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, fmt, msg string) {
				var cs string
				if c != nil {
					if cl := c.Class(); cl != nil {
						cs = " - class: " + cl.String()
					}
				}
				// libav fatal/panic levels are about a stream, not about us
				lvl := LogLevelFromAstiav(level)
				if lvl < logger.LevelError {
					lvl = logger.LevelError
				}
				logger.Logf(ctx, lvl, "%s%s", strings.TrimSpace(msg), cs)
			})
			return nil
		},
		func(ctx context.Context) error {
			astiav.ResetLogCallback()
			astiav.SetLogLevel(astiav.LogLevelQuiet)
			return nil
		},
	)
}
