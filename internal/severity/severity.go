// Package severity turns detection metrics and road context into a priority
// score in [0,100] and a priority level.
package severity

import (
	"fmt"
	"math"
	"strings"
)

type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

const (
	MaxDamageScore     = 30
	MaxConfidenceScore = 20
	MaxRoadScore       = 30
	MaxTrafficScore    = 20
)

type Input struct {
	BBoxWidth          float64 `json:"bbox_width"`
	BBoxHeight         float64 `json:"bbox_height"`
	Confidence         float64 `json:"confidence"`
	RoadPriorityFactor float64 `json:"road_priority_factor"`
	TrafficImportance  float64 `json:"traffic_importance"`
}

type Breakdown struct {
	DamageScore     int `json:"damage_score"`
	ConfidenceScore int `json:"confidence_score"`
	RoadScore       int `json:"road_score"`
	TrafficScore    int `json:"traffic_score"`
}

func (b Breakdown) Total() int {
	return clampInt(b.DamageScore+b.ConfidenceScore+b.RoadScore+b.TrafficScore, 0, 100)
}

type Result struct {
	PriorityScore int       `json:"priority_score"`
	PriorityLevel Level     `json:"priority_level"`
	Breakdown     Breakdown `json:"breakdown"`
}

// Limits are the saturation points of the road and traffic weights.
type Limits struct {
	PriorityFactorMax    float64
	TrafficImportanceMax float64
}

var DefaultLimits = Limits{PriorityFactorMax: 6.0, TrafficImportanceMax: 5.0}

type bucket struct {
	below float64
	score int
}

// damage buckets by bbox area (fraction of image), ascending upper bounds
var damageBuckets = []bucket{
	{0.01, 10},
	{0.05, 20},
	{0.10, 25},
}

type floor struct {
	atLeast float64
	score   int
}

// confidence floors, descending
var confidenceFloors = []floor{
	{0.9, 20},
	{0.8, 17},
	{0.7, 14},
	{0.6, 10},
}

type levelFloor struct {
	atLeast int
	level   Level
}

var levelFloors = []levelFloor{
	{80, LevelCritical},
	{60, LevelHigh},
	{40, LevelMedium},
}

type Scorer struct {
	Limits Limits
}

func NewScorer(limits Limits) Scorer {
	if limits.PriorityFactorMax <= 0 {
		limits.PriorityFactorMax = DefaultLimits.PriorityFactorMax
	}
	if limits.TrafficImportanceMax <= 0 {
		limits.TrafficImportanceMax = DefaultLimits.TrafficImportanceMax
	}
	return Scorer{Limits: limits}
}

// Calculate scores with the default limits.
func Calculate(in Input) Result {
	return NewScorer(DefaultLimits).Calculate(in)
}

func (s Scorer) Calculate(in Input) Result {
	s = NewScorer(s.Limits)
	b := Breakdown{
		DamageScore:     DamageScore(nonNegative(in.BBoxWidth) * nonNegative(in.BBoxHeight)),
		ConfidenceScore: ConfidenceScore(in.Confidence),
		RoadScore:       scaled(in.RoadPriorityFactor, s.Limits.PriorityFactorMax, MaxRoadScore),
		TrafficScore:    scaled(in.TrafficImportance, s.Limits.TrafficImportanceMax, MaxTrafficScore),
	}
	total := b.Total()
	return Result{
		PriorityScore: total,
		PriorityLevel: LevelFor(total),
		Breakdown:     b,
	}
}

func DamageScore(area float64) int {
	area = nonNegative(area)
	for _, b := range damageBuckets {
		if area < b.below {
			return b.score
		}
	}
	return MaxDamageScore
}

func ConfidenceScore(confidence float64) int {
	confidence = math.Min(1, nonNegative(confidence))
	for _, f := range confidenceFloors {
		if confidence >= f.atLeast {
			return f.score
		}
	}
	return 5
}

func LevelFor(score int) Level {
	for _, f := range levelFloors {
		if score >= f.atLeast {
			return f.level
		}
	}
	return LevelLow
}

func ParseLevel(s string) (Level, bool) {
	switch l := Level(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return l, true
	default:
		return "", false
	}
}

func LevelDescription(level Level) string {
	switch level {
	case LevelCritical:
		return "Immediate attention required - Major safety hazard"
	case LevelHigh:
		return "High priority - Significant road damage"
	case LevelMedium:
		return "Moderate priority - Should be addressed soon"
	case LevelLow:
		return "Low priority - Minor damage"
	default:
		return "Unknown priority"
	}
}

// Explain renders the breakdown as operator-facing text.
func Explain(r Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Priority Score: %d/100 (%s)\n", r.PriorityScore, r.PriorityLevel)
	fmt.Fprintf(&sb, "%s\n\n", LevelDescription(r.PriorityLevel))
	sb.WriteString("Breakdown:\n")
	fmt.Fprintf(&sb, "- Damage Size: %d/%d points\n", r.Breakdown.DamageScore, MaxDamageScore)
	fmt.Fprintf(&sb, "- Detection Confidence: %d/%d points\n", r.Breakdown.ConfidenceScore, MaxConfidenceScore)
	fmt.Fprintf(&sb, "- Road Importance: %d/%d points\n", r.Breakdown.RoadScore, MaxRoadScore)
	fmt.Fprintf(&sb, "- Traffic Level: %d/%d points", r.Breakdown.TrafficScore, MaxTrafficScore)
	return sb.String()
}

func scaled(value, limit float64, points int) int {
	value = math.Min(limit, nonNegative(value))
	return int(math.Round(value / limit * float64(points)))
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
