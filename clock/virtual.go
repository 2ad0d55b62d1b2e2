package clock

import (
	"fmt"
	"math/big"
	"time"

	"github.com/xaionaro-go/avbridge/types"
)

// Virtual is a timestamp generator driven by a count of units (samples or
// frames) of a fixed rate. The timestamp is always derived from the
// cumulative count, so it never drifts regardless of how many times it
// is advanced.
//
// Virtual is not safe for concurrent use.
type Virtual struct {
	Rate  types.Rational
	Base  time.Duration
	count int64
	last  time.Duration
}

// NewVirtual creates a clock ticking at rate units per second.
func NewVirtual(rate types.Rational) *Virtual {
	return &Virtual{
		Rate: rate.Normalized(),
	}
}

func (v *Virtual) String() string {
	return fmt.Sprintf("Virtual(rate:%s, base:%v, count:%d)", v.Rate, v.Base, v.count)
}

// Advance accounts units more units and returns the resulting timestamp.
func (v *Virtual) Advance(units int64) time.Duration {
	v.count += units
	v.last = v.Base + v.offset(v.count)
	return v.last
}

// Now returns the timestamp reached by the latest Advance.
func (v *Virtual) Now() time.Duration {
	return v.last
}

// Count returns the amount of units accounted since the latest Reset.
func (v *Virtual) Count() int64 {
	return v.count
}

// Reset restarts the clock from the given timestamp.
func (v *Virtual) Reset(base time.Duration) {
	v.Base = base
	v.count = 0
	v.last = base
}

// offset is round(count * 1s / Rate).
func (v *Virtual) offset(count int64) time.Duration {
	if !v.Rate.IsPositive() || count == 0 {
		return 0
	}
	num := big.NewInt(count)
	num.Mul(num, big.NewInt(int64(v.Rate.Den)))
	num.Mul(num, big.NewInt(int64(time.Second)))
	den := big.NewInt(int64(v.Rate.Num))

	// round half away from zero
	num.Mul(num, big.NewInt(2))
	if num.Sign() >= 0 {
		num.Add(num, den)
	} else {
		num.Sub(num, den)
	}
	num.Quo(num, den.Mul(den, big.NewInt(2)))
	return time.Duration(num.Int64())
}
