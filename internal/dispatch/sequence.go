// Package dispatch orders job sites for a single worker trip.
package dispatch

import (
	"math"

	"github.com/potholeops/backend/internal/geo"
)

type Waypoint struct {
	ID    string    `json:"id"`
	Point geo.Point `json:"point"`
}

// Nearest returns the index of the waypoint closest to from, or -1 when
// points is empty. Ties go to the earlier waypoint.
func Nearest(from geo.Point, points []Waypoint) int {
	best := -1
	bestDist := math.Inf(1)
	for i, p := range points {
		if d := geo.Distance(from, p.Point); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// Sequence orders points by repeatedly visiting the closest unvisited one,
// starting from start. The input slice is not modified.
func Sequence(start geo.Point, points []Waypoint) []Waypoint {
	remaining := make([]Waypoint, len(points))
	copy(remaining, points)

	ordered := make([]Waypoint, 0, len(points))
	cur := start
	for len(remaining) > 0 {
		i := Nearest(cur, remaining)
		next := remaining[i]
		ordered = append(ordered, next)
		cur = next.Point
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return ordered
}

// TripLength is the straight-line length of visiting ordered from start.
func TripLength(start geo.Point, ordered []Waypoint) float64 {
	total := 0.0
	cur := start
	for _, w := range ordered {
		total += geo.Distance(cur, w.Point)
		cur = w.Point
	}
	return total
}

func Points(ordered []Waypoint) []geo.Point {
	out := make([]geo.Point, 0, len(ordered))
	for _, w := range ordered {
		out = append(out, w.Point)
	}
	return out
}
