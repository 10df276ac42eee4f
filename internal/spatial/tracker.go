package spatial

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/mdsim/internal/dynamo"
)

// Policy decides when accumulated displacements invalidate an index.
type Policy int

const (
	// HalfSkin rebuilds once any particle has moved more than skin/2.
	HalfSkin Policy = iota
	// TwoLargest rebuilds once the two largest displacements sum to more
	// than skin. It is never stricter than HalfSkin.
	TwoLargest
)

func (p Policy) String() string {
	switch p {
	case HalfSkin:
		return "half-skin"
	case TwoLargest:
		return "two-largest"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "half-skin", "halfskin":
		return HalfSkin, nil
	case "two-largest", "twolargest":
		return TwoLargest, nil
	}
	return 0, dynamo.Configf("neighbor.policy", "unknown rebuild policy %q", s)
}

// Exceeded reports whether displacements first >= second can bring a pair
// from beyond cutoff+skin to within cutoff.
func (p Policy) Exceeded(first, second, skin float64) bool {
	if p == TwoLargest {
		return first+second > skin
	}
	return first > 0.5*skin
}

// Tracker accumulates each particle's unwrapped displacement since the last
// build. Lanes only ever touch their own particle's slots.
type Tracker struct {
	d    int
	disp []float64
}

func NewTracker(n, d int) *Tracker {
	return &Tracker{d: d, disp: make([]float64, n*d)}
}

func (t *Tracker) Accumulate(i int, dr []float64) {
	row := t.disp[i*t.d : (i+1)*t.d]
	for k, v := range dr {
		row[k] += v
	}
}

func (t *Tracker) AccumulateAxis(i, k int, dx float64) {
	t.disp[i*t.d+k] += dx
}

func (t *Tracker) Displacement(i int) float64 {
	sum := 0.0
	for _, v := range t.disp[i*t.d : (i+1)*t.d] {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Largest returns the two largest displacement magnitudes.
func (t *Tracker) Largest() (first, second float64) {
	n := t.Len()
	for i := 0; i < n; i++ {
		dist := t.Displacement(i)
		switch {
		case dist > first:
			first, second = dist, first
		case dist > second:
			second = dist
		}
	}
	return first, second
}

func (t *Tracker) Len() int {
	if t.d == 0 {
		return 0
	}
	return len(t.disp) / t.d
}

func (t *Tracker) Reset() { clear(t.disp) }

func (t *Tracker) resize(n, d int) {
	if t.d != d || len(t.disp) != n*d {
		t.d = d
		t.disp = make([]float64, n*d)
		return
	}
	t.Reset()
}
