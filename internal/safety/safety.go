// Package safety ranks candidate routes by their exposure to verified
// potholes.
package safety

import (
	"sort"

	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/severity"
)

const (
	MaxScore = 100

	PenaltyPerHazard   = 5
	PenaltyPerCritical = 20
	PenaltyPerHigh     = 10

	DefaultThresholdMeters = 50.0
)

type Hazard struct {
	ID    string         `json:"id"`
	Point geo.Point      `json:"point"`
	Level severity.Level `json:"level"`
}

type Result struct {
	HazardCount   int      `json:"hazard_count"`
	CriticalCount int      `json:"critical_count"`
	HighCount     int      `json:"high_count"`
	SafetyScore   int      `json:"safety_score"`
	HazardIDs     []string `json:"hazard_ids,omitempty"`
}

func (r Result) Penalty() int {
	return r.HazardCount*PenaltyPerHazard + r.CriticalCount*PenaltyPerCritical + r.HighCount*PenaltyPerHigh
}

// Score counts hazards lying within thresholdMeters of any coordinate in
// route. A route touching no hazard scores 100.
func Score(route []geo.Point, hazards []Hazard, thresholdMeters float64) Result {
	var res Result
	for _, h := range hazards {
		if !near(route, h.Point, thresholdMeters) {
			continue
		}
		res.HazardCount++
		res.HazardIDs = append(res.HazardIDs, h.ID)
		switch h.Level {
		case severity.LevelCritical:
			res.CriticalCount++
		case severity.LevelHigh:
			res.HighCount++
		}
	}
	res.SafetyScore = MaxScore - res.Penalty()
	if res.SafetyScore < 0 {
		res.SafetyScore = 0
	}
	return res
}

func near(route []geo.Point, p geo.Point, threshold float64) bool {
	for _, c := range route {
		if geo.Distance(c, p) <= threshold {
			return true
		}
	}
	return false
}

type Scorer struct {
	ThresholdMeters float64
}

// Ranked is one scored candidate; Index points back into the input slice.
type Ranked struct {
	Index  int    `json:"index"`
	Result Result `json:"safety"`
}

// Rank scores every route against all of its vertices and orders them
// safest first. Equal scores keep their input order.
func (s Scorer) Rank(routes [][]geo.Point, hazards []Hazard) []Ranked {
	out := make([]Ranked, 0, len(routes))
	for i, r := range routes {
		out = append(out, Ranked{Index: i, Result: Score(r, hazards, s.threshold())})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.SafetyScore > out[j].Result.SafetyScore
	})
	return out
}

func (s Scorer) threshold() float64 {
	if s.ThresholdMeters > 0 {
		return s.ThresholdMeters
	}
	return DefaultThresholdMeters
}
