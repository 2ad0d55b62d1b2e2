// Package position classifies the positions requested by a host timeline
// into sequential playback, pauses and discontinuities.
package position

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

type Classification int

const (
	ClassificationUndefined = Classification(iota)
	ClassificationSequential
	ClassificationPaused
	ClassificationDiscontinuous
)

func (c Classification) String() string {
	switch c {
	case ClassificationUndefined:
		return "<undefined>"
	case ClassificationSequential:
		return "sequential"
	case ClassificationPaused:
		return "paused"
	case ClassificationDiscontinuous:
		return "discontinuous"
	default:
		return fmt.Sprintf("<unknown:%d>", int(c))
	}
}

type Thresholds struct {
	// SeekForwardThreshold is the largest forward jump (relative to the
	// last delivered position) still treated as sequential playback.
	SeekForwardThreshold int64 `json:"seek_forward_threshold" yaml:"seek_forward_threshold"`

	// SeekBackwardTolerance is the largest backward jump treated as a
	// pause (hold) instead of a reposition.
	SeekBackwardTolerance int64 `json:"seek_backward_tolerance" yaml:"seek_backward_tolerance"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		SeekForwardThreshold:  1,
		SeekBackwardTolerance: 12,
	}
}

func (t *Thresholds) String() string {
	if t == nil {
		return "<nil>"
	}
	return spew.Sdump(*t)
}

type Result struct {
	Classification Classification

	// Skipped is the amount of positions jumped over by a forward jump
	// that is still within SeekForwardThreshold.
	Skipped int64
}

func (r Result) String() string {
	if r.Skipped == 0 {
		return r.Classification.String()
	}
	return fmt.Sprintf("%s(skipped:%d)", r.Classification, r.Skipped)
}

// Tracker is owned by the pull side and is not safe for concurrent use.
type Tracker struct {
	Thresholds    Thresholds
	lastDelivered int64
	expected      int64
}

func NewTracker(thresholds Thresholds) *Tracker {
	t := &Tracker{
		Thresholds: thresholds,
	}
	t.Reset()
	return t
}

// Reset returns to the initial state: nothing delivered, position 0
// expected.
func (t *Tracker) Reset() {
	t.lastDelivered = -1
	t.expected = 0
}

func (t *Tracker) LastDelivered() int64 {
	return t.lastDelivered
}

func (t *Tracker) Expected() int64 {
	return t.expected
}

func (t *Tracker) String() string {
	return fmt.Sprintf("Tracker(last:%d, expected:%d)", t.lastDelivered, t.expected)
}

// Classify classifies a request for position p and updates the state
// accordingly.
func (t *Tracker) Classify(p int64) Result {
	switch {
	case p == t.expected:
		t.deliver(p)
		return Result{Classification: ClassificationSequential}
	case p == t.lastDelivered:
		return Result{Classification: ClassificationPaused}
	case p > t.lastDelivered:
		jump := p - t.lastDelivered
		if jump > t.Thresholds.SeekForwardThreshold {
			t.deliver(p)
			return Result{Classification: ClassificationDiscontinuous}
		}
		t.deliver(p)
		return Result{
			Classification: ClassificationSequential,
			Skipped:        jump - 1,
		}
	default:
		jump := t.lastDelivered - p
		if jump > t.Thresholds.SeekBackwardTolerance {
			t.deliver(p)
			return Result{Classification: ClassificationDiscontinuous}
		}
		return Result{Classification: ClassificationPaused}
	}
}

func (t *Tracker) deliver(p int64) {
	t.lastDelivered = p
	t.expected = p + 1
}
