package types

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rational is used for frame rates: 30000/1001, 25/1, etc.
type Rational struct {
	Num int
	Den int
}

func (r Rational) Reverse() Rational {
	return Rational{
		Num: r.Den,
		Den: r.Num,
	}
}

func (r Rational) Mul(other Rational) Rational {
	return Rational{
		Num: r.Num * other.Num,
		Den: r.Den * other.Den,
	}
}

func (r Rational) Div(other Rational) Rational {
	return Rational{
		Num: r.Num * other.Den,
		Den: r.Den * other.Num,
	}
}

// IsPositive is true for a usable rate: both parts are non-zero and of
// the same sign.
func (r Rational) IsPositive() bool {
	return r.Den != 0 && r.Num != 0 && (r.Num > 0) == (r.Den > 0)
}

// Normalized reduces the fraction and moves the sign to the numerator.
func (r Rational) Normalized() Rational {
	if r.Den == 0 {
		return r
	}
	if r.Den < 0 {
		r.Num, r.Den = -r.Num, -r.Den
	}
	gcd := big.NewInt(0).GCD(nil, nil, big.NewInt(int64(abs(r.Num))), big.NewInt(int64(r.Den))).Int64()
	if gcd > 1 {
		r.Num /= int(gcd)
		r.Den /= int(gcd)
	}
	return r
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func newNTSCRationalFromFloat64(f float64) *big.Rat {
	den := 1001 // common denominator for NTSC frame rates
	num := math.Ceil(f) * 1000
	r := big.NewRat(int64(num), int64(den))
	confirmValue, _ := r.Float64()
	if math.Abs(f-confirmValue) < 1e-2 {
		return r
	}
	return nil
}

// RationalFromApproxFloat64 snaps values like 29.97 to 30000/1001.
func RationalFromApproxFloat64(fps float64) (r Rational) {
	if float64(int(fps)) == fps {
		r.Num = int(fps)
		r.Den = 1
		return
	}

	rat := newNTSCRationalFromFloat64(fps)
	if rat != nil {
		r.Num = int(rat.Num().Int64())
		r.Den = int(rat.Denom().Int64())
		return
	}

	r.Num = int(fps * 1000000)
	r.Den = 1000000
	return r.Normalized()
}

// RationalFromFloat64 finds the simplest fraction within 1e-6 of fps
// (continued fraction expansion).
func RationalFromFloat64(fps float64) Rational {
	if float64(int(fps)) == fps {
		return Rational{Num: int(fps), Den: 1}
	}
	const precision = 1e-6
	var (
		hPrev, h = 0, 1
		kPrev, k = 1, 0
		x        = fps
	)
	for range 64 {
		a := int(math.Floor(x))
		h, hPrev = a*h+hPrev, h
		k, kPrev = a*k+kPrev, k
		if math.Abs(fps-float64(h)/float64(k)) < precision {
			break
		}
		frac := x - float64(a)
		if frac == 0 {
			break
		}
		x = 1 / frac
	}
	return Rational{Num: h, Den: k}.Normalized()
}

func RationalFromString(s string) (*Rational, error) {
	var r Rational
	switch {
	case len(s) == 0:
		return nil, fmt.Errorf("unable to parse Rational from empty string")
	case strings.Contains(s, "/"):
		if _, err := fmt.Sscanf(s, "%d/%d", &r.Num, &r.Den); err != nil {
			return nil, fmt.Errorf("unable to parse Rational from %q: %w", s, err)
		}
	case s[0] == '~':
		fps, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse Rational from %q: %w", s, err)
		}
		r = RationalFromApproxFloat64(fps)
	default:
		fps, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse Rational from %q: %w", s, err)
		}
		r = RationalFromFloat64(fps)
	}
	if r.Den == 0 {
		return nil, fmt.Errorf("denominator cannot be zero")
	}
	return &r, nil
}

func (r Rational) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func (r Rational) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rational) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unable to unmarshal Rational from JSON '%s': %w", b, err)
	}
	v, err := RationalFromString(s)
	if err != nil {
		return fmt.Errorf("unable to unmarshal Rational from string %q: %w", s, err)
	}
	*r = *v
	return nil
}

func (r Rational) MarshalYAML() (any, error) {
	return r.String(), nil
}

func (r *Rational) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unable to unmarshal Rational from a non-scalar YAML node (line %d)", value.Line)
	}
	v, err := RationalFromString(value.Value)
	if err != nil {
		return fmt.Errorf("unable to unmarshal Rational from YAML %q: %w", value.Value, err)
	}
	*r = *v
	return nil
}

// Set implements pflag.Value.
func (r *Rational) Set(s string) error {
	v, err := RationalFromString(s)
	if err != nil {
		return err
	}
	*r = *v
	return nil
}

// Type implements pflag.Value.
func (r *Rational) Type() string {
	return "rational"
}
