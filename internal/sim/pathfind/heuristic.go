package pathfind

import (
	"fmt"
	"math"
	"strings"
)

// Movement costs in fixed point (distance × 10).
const (
	CostScale      = 10
	OrthogonalCost = 10
	DiagonalCost   = 14 // ≈ 10·√2
)

type Heuristic uint8

const (
	// Euclidean is exact straight-line distance; the accurate default.
	Euclidean Heuristic = iota
	// Manhattan is cheaper to evaluate and overestimates diagonal travel.
	Manhattan
)

func (h Heuristic) String() string {
	if h == Manhattan {
		return "MANHATTAN"
	}
	return "EUCLIDEAN"
}

func ParseHeuristic(s string) (Heuristic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "EUCLIDEAN":
		return Euclidean, nil
	case "MANHATTAN":
		return Manhattan, nil
	default:
		return Euclidean, fmt.Errorf("unknown heuristic %q", s)
	}
}

// maxEstimate caps heuristic values so that g + h stays far from overflow
// even for coordinates near the int limits.
const maxEstimate = math.MaxInt32

func (h Heuristic) estimate(from, to Vec3i) int {
	// Differences are taken in float64; from.Sub(to) can overflow.
	dx := math.Abs(float64(from.X) - float64(to.X))
	dy := math.Abs(float64(from.Y) - float64(to.Y))
	dz := math.Abs(float64(from.Z) - float64(to.Z))
	var d float64
	if h == Manhattan {
		d = dx + dy + dz
	} else {
		d = math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	d *= CostScale
	if d >= maxEstimate {
		return maxEstimate
	}
	return int(d)
}
