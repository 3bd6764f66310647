package graph

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/roadinfo"
)

const (
	DefaultRadiusMeters = 2000.0
	DefaultMaxRadius    = 15000.0
	// worker travel speed used for graph-routed ETAs
	DefaultSpeedKmh = 40.0
)

type Builder struct {
	Provider  roadinfo.Provider
	Radius    float64
	MaxRadius float64
	Logger    zerolog.Logger
}

// Build fetches routable ways around center and assembles the graph. The
// center is rounded to three decimals so nearby requests share provider
// cache entries. Zero ways yield an empty graph.
func (b *Builder) Build(ctx context.Context, center geo.Point, radiusMeters float64) (*Graph, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = b.radius()
	}
	q := roadinfo.Query{
		Center:       geo.Point{Lat: round3(center.Lat), Lon: round3(center.Lon)},
		RadiusMeters: radiusMeters,
		Highways:     roadinfo.RoutableHighways,
	}

	start := time.Now()
	ways, err := b.Provider.Ways(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch road ways: %w", err)
	}
	g := FromWays(ways)
	b.Logger.Debug().
		Int("ways", len(ways)).
		Int("nodes", g.Len()).
		Int("edges", g.EdgeCount()).
		Dur("elapsed", time.Since(start)).
		Msg("road graph built")
	return g, nil
}

type Route struct {
	Path
	Points          []geo.Point `json:"points"`
	Polyline        string      `json:"polyline"`
	DurationSeconds float64     `json:"duration_s"`
	SnapStart       geo.Point   `json:"snap_start"`
	SnapEnd         geo.Point   `json:"snap_end"`
}

// Route builds a graph around the midpoint of from and to, snaps both ends
// to their nearest nodes and runs the shortest path search.
func (b *Builder) Route(ctx context.Context, from, to geo.Point) (Route, error) {
	if err := from.Validate(); err != nil {
		return Route{}, err
	}
	if err := to.Validate(); err != nil {
		return Route{}, err
	}
	radius := math.Max(b.radius(), 1.5*geo.Distance(from, to))
	radius = math.Min(radius, b.maxRadius())

	g, err := b.Build(ctx, geo.Midpoint(from, to), radius)
	if err != nil {
		return Route{}, err
	}
	startID, ok := g.NearestNode(from)
	if !ok {
		return Route{}, apperr.ErrNoRoadNetwork
	}
	endID, ok := g.NearestNode(to)
	if !ok {
		return Route{}, apperr.ErrNoRoadNetwork
	}

	path, err := ShortestPath(g, startID, endID)
	if err != nil {
		return Route{}, err
	}
	points := g.Points(path.Nodes)
	return Route{
		Path:            path,
		Points:          points,
		Polyline:        geo.EncodePolyline(points),
		DurationSeconds: path.Distance / (DefaultSpeedKmh * 1000 / 3600),
		SnapStart:       g.Nodes[startID].Point(),
		SnapEnd:         g.Nodes[endID].Point(),
	}, nil
}

func (b *Builder) radius() float64 {
	if b.Radius > 0 {
		return b.Radius
	}
	return DefaultRadiusMeters
}

func (b *Builder) maxRadius() float64 {
	if b.MaxRadius > 0 {
		return b.MaxRadius
	}
	return DefaultMaxRadius
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
