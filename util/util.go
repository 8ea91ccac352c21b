// Package util contains misc internal utilities.
package util

// Clamp restricts v to the closed interval [low, high].
func Clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

// Limiter is a pair of bounds on a value.  The zero value passes everything.
type Limiter struct {
	// Min is the lower bound
	Min float64

	// Max is the upper bound
	Max float64
}

// Check returns true if v is within the limits
func (l Limiter) Check(v float64) bool {
	if l.Min == 0 && l.Max == 0 {
		return true
	}
	return v >= l.Min && v <= l.Max
}
