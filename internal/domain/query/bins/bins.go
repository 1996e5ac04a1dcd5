// Package bins buckets continuous values into labeled ranges.
package bins

import (
	"fmt"
	"strconv"
)

// Bin is one half-open bucket [Start, End). A nil boundary is
// unbounded on that side.
type Bin struct {
	Label string
	Start *float64
	End   *float64
}

// FromBreakpoints expands ascending breakpoints b1..bn into the n+1
// ranges (-inf,b1) [b1,b2) ... [bn,+inf), labeled by index.
func FromBreakpoints(breaks []float64) ([]Bin, error) {
	if len(breaks) == 0 {
		return nil, fmt.Errorf("at least one breakpoint is required")
	}
	for i := 1; i < len(breaks); i++ {
		if breaks[i] <= breaks[i-1] {
			return nil, fmt.Errorf("breakpoints must be strictly ascending: %v", breaks)
		}
	}
	out := make([]Bin, 0, len(breaks)+1)
	for i := 0; i <= len(breaks); i++ {
		b := Bin{Label: strconv.Itoa(i)}
		if i > 0 {
			v := breaks[i-1]
			b.Start = &v
		}
		if i < len(breaks) {
			v := breaks[i]
			b.End = &v
		}
		out = append(out, b)
	}
	return out, nil
}

// New validates an explicit list of named bins.
func New(explicit []Bin) ([]Bin, error) {
	if len(explicit) == 0 {
		return nil, fmt.Errorf("at least one bin is required")
	}
	seen := make(map[string]bool, len(explicit))
	for _, b := range explicit {
		if b.Label == "" {
			return nil, fmt.Errorf("bin label is required")
		}
		if seen[b.Label] {
			return nil, fmt.Errorf("duplicate bin label %q", b.Label)
		}
		seen[b.Label] = true
		if b.Start != nil && b.End != nil && *b.End <= *b.Start {
			return nil, fmt.Errorf("bin %q has end <= start", b.Label)
		}
	}
	return explicit, nil
}

// EqualWidth splits [min, max] into n equal-width bins. The outermost
// bins stay unbounded so out-of-range values still land somewhere.
func EqualWidth(min, max float64, n int) []Bin {
	if n < 1 {
		n = 1
	}
	if max < min {
		min, max = max, min
	}
	width := (max - min) / float64(n)
	out := make([]Bin, n)
	for i := range out {
		out[i].Label = strconv.Itoa(i)
		if i > 0 {
			v := min + width*float64(i)
			out[i].Start = &v
		}
		if i < n-1 {
			v := min + width*float64(i+1)
			out[i].End = &v
		}
	}
	return out
}

// Locate returns the index of the bin containing v, or -1.
func Locate(all []Bin, v float64) int {
	for i, b := range all {
		if b.Start != nil && v < *b.Start {
			continue
		}
		if b.End != nil && v >= *b.End {
			continue
		}
		return i
	}
	return -1
}
