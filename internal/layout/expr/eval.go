package expr

import (
	"fmt"
	"math"
)

// Evaluate resolves n against containerSize and rounds the result once,
// half away from zero.
func Evaluate(n Node, containerSize float64) int {
	return int(math.Round(resolve(n, containerSize)))
}

func resolve(n Node, size float64) float64 {
	switch v := n.(type) {
	case Zero:
		return 0
	case Fraction:
		return size * float64(v.Numerator) / float64(v.Denominator)
	case Percentage:
		return size * v.Value
	case Pixel:
		return v.Value
	case Add:
		return resolve(v.Left, size) + resolve(v.Right, size)
	case Subtract:
		return resolve(v.Left, size) - resolve(v.Right, size)
	default:
		panic(fmt.Sprintf("expr: unknown node type %T", n))
	}
}
