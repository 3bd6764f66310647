package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/roadinfo"
)

func lineGraph() (*Graph, int, int, int) {
	g := New()
	a := g.AddNode(geo.Point{Lat: 0, Lon: 0})
	b := g.AddNode(geo.Point{Lat: 0, Lon: 0.001})
	c := g.AddNode(geo.Point{Lat: 0, Lon: 0.002})
	g.AddEdgeWeighted(a, b, 100)
	g.AddEdgeWeighted(b, c, 150)
	return g, a, b, c
}

func TestShortestPathLine(t *testing.T) {
	g, a, b, c := lineGraph()
	p, err := ShortestPath(g, a, c)
	require.NoError(t, err)
	assert.Equal(t, []int{a, b, c}, p.Nodes)
	assert.Equal(t, 250.0, p.Distance)

	back, err := ShortestPath(g, c, a)
	require.NoError(t, err)
	assert.Equal(t, []int{c, b, a}, back.Nodes)
	assert.Equal(t, 250.0, back.Distance)
}

func TestShortestPathDisconnected(t *testing.T) {
	g, a, _, _ := lineGraph()
	island := g.AddNode(geo.Point{Lat: 1, Lon: 1})
	_, err := ShortestPath(g, a, island)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNoPath))
	assert.True(t, apperr.IsNotFound(err))
}

func TestShortestPathSameNode(t *testing.T) {
	g, a, _, _ := lineGraph()
	p, err := ShortestPath(g, a, a)
	require.NoError(t, err)
	assert.Equal(t, []int{a}, p.Nodes)
	assert.Equal(t, 0.0, p.Distance)
}

func TestShortestPathPrefersLighterDetour(t *testing.T) {
	g := New()
	s := g.AddNode(geo.Point{Lat: 0, Lon: 0})
	x := g.AddNode(geo.Point{Lat: 1, Lon: 0})
	y := g.AddNode(geo.Point{Lat: 2, Lon: 0})
	e := g.AddNode(geo.Point{Lat: 3, Lon: 0})
	g.AddEdgeWeighted(s, e, 500)
	g.AddEdgeWeighted(s, x, 100)
	g.AddEdgeWeighted(x, y, 100)
	g.AddEdgeWeighted(y, e, 100)

	p, err := ShortestPath(g, s, e)
	require.NoError(t, err)
	assert.Equal(t, []int{s, x, y, e}, p.Nodes)
	assert.Equal(t, 300.0, p.Distance)
}

func TestShortestPathUnknownNode(t *testing.T) {
	g, a, _, _ := lineGraph()
	_, err := ShortestPath(g, a, 99)
	assert.True(t, apperr.IsValidation(err))
}

func TestPathDistanceRequiresEdges(t *testing.T) {
	g, a, _, c := lineGraph()
	_, err := PathDistance(g, []int{a, c})
	assert.Error(t, err)

	d, err := PathDistance(g, []int{a})
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestFromWaysDeduplicatesSharedPoints(t *testing.T) {
	cross := geo.Point{Lat: 10, Lon: 10}
	ways := []roadinfo.Way{
		{ID: 1, Geometry: []geo.Point{{Lat: 10, Lon: 9.999}, cross, {Lat: 10, Lon: 10.001}}},
		{ID: 2, Geometry: []geo.Point{{Lat: 9.999, Lon: 10}, cross, {Lat: 10.001, Lon: 10}}},
	}
	g := FromWays(ways)
	assert.Equal(t, 5, g.Len())
	assert.Equal(t, 4, g.EdgeCount())

	mid, ok := g.NearestNode(cross)
	require.True(t, ok)
	assert.Len(t, g.Adj[mid], 4)

	w, ok := g.Weight(0, mid)
	require.True(t, ok)
	assert.InDelta(t, geo.Distance(geo.Point{Lat: 10, Lon: 9.999}, cross), w, 1e-9)
}

func TestAddNodeReusesIndexForSameCoordinate(t *testing.T) {
	g := New()
	a := g.AddNode(geo.Point{Lat: 12.97, Lon: 77.59})
	b := g.AddNode(geo.Point{Lat: 12.98, Lon: 77.59})
	again := g.AddNode(geo.Point{Lat: 12.97, Lon: 77.59})
	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, g.Len())
}

func TestFromWaysEmpty(t *testing.T) {
	g := FromWays(nil)
	assert.Equal(t, 0, g.Len())
	_, ok := g.NearestNode(geo.Point{})
	assert.False(t, ok)
}

func TestNearestNodeTieBreaksByOrder(t *testing.T) {
	g := New()
	first := g.AddNode(geo.Point{Lat: 0, Lon: 0.001})
	g.AddNode(geo.Point{Lat: 0, Lon: -0.001})
	id, ok := g.NearestNode(geo.Point{Lat: 0, Lon: 0})
	require.True(t, ok)
	assert.Equal(t, first, id)
}

func TestAddEdgeIgnoresSelfLoopsAndKeepsLighterDuplicate(t *testing.T) {
	g := New()
	a := g.AddNode(geo.Point{Lat: 0, Lon: 0})
	b := g.AddNode(geo.Point{Lat: 0, Lon: 1})
	g.AddEdgeWeighted(a, a, 5)
	g.AddEdgeWeighted(a, b, 50)
	g.AddEdgeWeighted(b, a, 20)
	assert.Equal(t, 1, g.EdgeCount())
	w, _ := g.Weight(a, b)
	assert.Equal(t, 20.0, w)
}

type emptyProvider struct{}

func (emptyProvider) Ways(context.Context, roadinfo.Query) ([]roadinfo.Way, error) { return nil, nil }

type errProvider struct{}

func (errProvider) Ways(context.Context, roadinfo.Query) ([]roadinfo.Way, error) {
	return nil, apperr.External("overpass", errors.New("down"))
}

func TestBuilderRouteOverMockGrid(t *testing.T) {
	b := &Builder{Provider: roadinfo.MockProvider{}, Radius: 1000, Logger: zerolog.Nop()}
	from := geo.Point{Lat: 12.9716, Lon: 77.5946}
	to := geo.Point{Lat: 12.9746, Lon: 77.5976}

	r, err := b.Route(context.Background(), from, to)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(r.Nodes), 2)
	assert.Greater(t, r.Distance, 0.0)
	assert.InDelta(t, geo.PathLength(r.Points), r.Distance, 1e-6)
	assert.InDelta(t, r.Distance/(40.0/3.6), r.DurationSeconds, 1e-6)

	decoded, err := geo.DecodePolyline(r.Polyline)
	require.NoError(t, err)
	assert.Len(t, decoded, len(r.Points))
}

func TestBuilderRouteNoRoadNetwork(t *testing.T) {
	b := &Builder{Provider: emptyProvider{}, Logger: zerolog.Nop()}
	_, err := b.Route(context.Background(), geo.Point{Lat: 1, Lon: 1}, geo.Point{Lat: 1.01, Lon: 1.01})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNoRoadNetwork))
}

func TestBuilderSurfacesProviderFailure(t *testing.T) {
	b := &Builder{Provider: errProvider{}, Logger: zerolog.Nop()}
	_, err := b.Route(context.Background(), geo.Point{Lat: 1, Lon: 1}, geo.Point{Lat: 1.01, Lon: 1.01})
	require.Error(t, err)
	assert.True(t, apperr.IsExternal(err))
}

func TestBuilderRejectsInvalidPoints(t *testing.T) {
	b := &Builder{Provider: emptyProvider{}, Logger: zerolog.Nop()}
	_, err := b.Route(context.Background(), geo.Point{Lat: 100, Lon: 1}, geo.Point{Lat: 1, Lon: 1})
	assert.True(t, apperr.IsValidation(err))
}
