// Package expr implements the slot expression language used for layout
// positions and sizes, e.g. "1/3 + 10px" or "100% - 20px".
package expr

import (
	"strconv"
)

// Node is a parsed layout expression. The set of node types is closed: only
// types declared in this package implement it.
type Node interface {
	String() string
	node()
}

// Zero is the bare literal "0".
type Zero struct{}

// Fraction is an integer ratio of the container size. Denominator is never zero.
type Fraction struct {
	Numerator   int
	Denominator int
}

// Percentage holds the percentage divided by 100, so "50%" is 0.5.
type Percentage struct {
	Value float64
}

// Pixel is an absolute pixel offset.
type Pixel struct {
	Value float64
}

// Add is Left + Right.
type Add struct {
	Left  Node
	Right Node
}

// Subtract is Left - Right.
type Subtract struct {
	Left  Node
	Right Node
}

func (Zero) node()       {}
func (Fraction) node()   {}
func (Percentage) node() {}
func (Pixel) node()      {}
func (Add) node()        {}
func (Subtract) node()   {}

func (Zero) String() string { return "0" }

func (f Fraction) String() string {
	return strconv.Itoa(f.Numerator) + "/" + strconv.Itoa(f.Denominator)
}

func (p Percentage) String() string {
	return formatNumber(trimNoise(p.Value*100)) + "%"
}

func (p Pixel) String() string {
	return formatNumber(p.Value) + "px"
}

func (a Add) String() string {
	return a.Left.String() + " + " + a.Right.String()
}

func (s Subtract) String() string {
	return s.Left.String() + " - " + s.Right.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// trimNoise drops the float error introduced by scaling a stored fraction
// back to a percentage, so 0.57 renders as 57 rather than 56.99999999999999.
func trimNoise(v float64) float64 {
	trimmed, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 15, 64), 64)
	if err != nil {
		return v
	}
	return trimmed
}
