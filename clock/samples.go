// Package clock converts host timeline positions into audio sample counts
// and keeps drift-free virtual timestamps.
package clock

import (
	"github.com/xaionaro-go/avbridge/types"
)

// SamplesBefore returns the amount of audio samples that precede the host
// frame at the given position: round(position*sampleRate/fps).
func SamplesBefore(position int64, sampleRate int, fps types.Rational) int64 {
	if position <= 0 || sampleRate <= 0 || !fps.IsPositive() {
		return 0
	}
	fps = fps.Normalized()
	num := position * int64(sampleRate) * int64(fps.Den)
	den := int64(fps.Num)
	return (2*num + den) / (2 * den)
}

// SamplesAt returns the amount of audio samples that belong to the host
// frame at the given position. Summing it over consecutive positions never
// accumulates rounding errors: 29.97fps at 48kHz yields the usual
// 1602/1601 pattern.
func SamplesAt(position int64, sampleRate int, fps types.Rational) int {
	if position < 0 {
		return 0
	}
	return int(SamplesBefore(position+1, sampleRate, fps) - SamplesBefore(position, sampleRate, fps))
}
