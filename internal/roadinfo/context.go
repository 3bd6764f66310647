package roadinfo

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/models"
)

// Defaults are used whenever no road can be resolved for a location.
type Defaults struct {
	TrafficImportance float64
	PriorityFactor    float64
}

var NeutralDefaults = Defaults{TrafficImportance: 2.0, PriorityFactor: 2.0}

const (
	unknownRoadImportance = 2.0
	untaggedImportance    = 1.0
)

var trafficImportance = map[string]float64{
	"motorway":     5.0,
	"trunk":        4.5,
	"primary":      4.0,
	"secondary":    3.5,
	"tertiary":     3.0,
	"unclassified": 2.5,
	"residential":  2.0,
	"service":      1.5,
	"track":        1.0,
	"path":         0.5,
}

type speedStep struct {
	atLeast    int
	multiplier float64
}

var speedSteps = []speedStep{
	{80, 1.3},
	{60, 1.2},
	{40, 1.1},
}

var classMultiplier = map[string]float64{
	"motorway":  1.25,
	"trunk":     1.25,
	"primary":   1.15,
	"secondary": 1.15,
}

func TrafficImportance(roadType string) float64 {
	if roadType == "" {
		return untaggedImportance
	}
	if v, ok := trafficImportance[roadType]; ok {
		return v
	}
	return unknownRoadImportance
}

// PriorityFactor weights traffic importance by speed limit and road class,
// rounded to two decimals.
func PriorityFactor(roadType string, speedLimit *int, importance float64) float64 {
	factor := importance
	if speedLimit != nil {
		for _, s := range speedSteps {
			if *speedLimit >= s.atLeast {
				factor *= s.multiplier
				break
			}
		}
	}
	if m, ok := classMultiplier[roadType]; ok {
		factor *= m
	}
	return math.Round(factor*100) / 100
}

// ParseSpeedLimit reads the leading integer of an OSM maxspeed tag
// ("50", "30 mph"). Non-numeric values such as "none" yield nil.
func ParseSpeedLimit(maxspeed string) *int {
	s := strings.TrimSpace(maxspeed)
	end := 0
	for end < len(s) && unicode.IsDigit(rune(s[end])) {
		end++
	}
	if end == 0 {
		return nil
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil
	}
	return &v
}

// ClosestWay picks the way with the geometry point nearest to at. Ways
// without geometry never win unless no way has geometry, in which case the
// first way is returned.
func ClosestWay(ways []Way, at geo.Point) (Way, bool) {
	if len(ways) == 0 {
		return Way{}, false
	}
	best := ways[0]
	bestDist := math.MaxFloat64
	for _, w := range ways {
		for _, p := range w.Geometry {
			if d := geo.Distance(at, p); d < bestDist {
				bestDist = d
				best = w
			}
		}
	}
	return best, true
}

func FromWay(w Way) models.RoadContext {
	roadType := w.Highway()
	speed := ParseSpeedLimit(w.Tags["maxspeed"])
	importance := TrafficImportance(roadType)
	id := w.ID

	rc := models.RoadContext{
		SpeedLimit:        speed,
		TrafficImportance: importance,
		PriorityFactor:    PriorityFactor(roadType, speed, importance),
		OSMWayID:          &id,
		Source:            models.RoadSourceOSM,
	}
	if roadType != "" {
		rc.RoadType = &roadType
	}
	if name := w.Tags["name"]; name != "" {
		rc.RoadName = &name
	}
	return rc
}

func DefaultContext(d Defaults) models.RoadContext {
	return models.RoadContext{
		TrafficImportance: d.TrafficImportance,
		PriorityFactor:    d.PriorityFactor,
		Source:            models.RoadSourceDefault,
	}
}

// Resolver derives the road context of a location. Provider failures are
// absorbed into Defaults and logged.
type Resolver struct {
	Provider     Provider
	RadiusMeters float64
	Defaults     Defaults
	Logger       zerolog.Logger
	Now          func() time.Time
}

func (r *Resolver) Lookup(ctx context.Context, lat, lon float64) (models.RoadContext, error) {
	at := geo.Point{Lat: lat, Lon: lon}
	if err := at.Validate(); err != nil {
		return models.RoadContext{}, err
	}
	radius := r.RadiusMeters
	if radius <= 0 {
		radius = 50
	}
	defaults := r.Defaults
	if defaults == (Defaults{}) {
		defaults = NeutralDefaults
	}

	var rc models.RoadContext
	ways, err := r.Provider.Ways(ctx, Query{Center: at, RadiusMeters: radius})
	switch {
	case err != nil && ctx.Err() != nil:
		return models.RoadContext{}, ctx.Err()
	case err != nil:
		r.Logger.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("road provider failed, using default road context")
		rc = DefaultContext(defaults)
	default:
		way, ok := ClosestWay(ways, at)
		if !ok {
			r.Logger.Warn().Float64("lat", lat).Float64("lon", lon).Msg("no road found near location, using default road context")
			rc = DefaultContext(defaults)
		} else {
			rc = FromWay(way)
		}
	}
	rc.FetchedAt = r.now()
	return rc, nil
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}
