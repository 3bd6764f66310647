package roadinfo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/cache"
	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/models"
)

const overpassBody = `{
  "version": 0.6,
  "elements": [
    {"type": "way", "id": 11, "tags": {"highway": "residential", "name": "Side Street"},
     "geometry": [{"lat": 12.9730, "lon": 77.5946}, {"lat": 12.9731, "lon": 77.5950}]},
    {"type": "way", "id": 22, "tags": {"highway": "primary", "name": "MG Road", "maxspeed": "60"},
     "geometry": [{"lat": 12.97161, "lon": 77.5940}, {"lat": 12.97161, "lon": 77.5952}]},
    {"type": "node", "id": 33}
  ]
}`

func TestOverpassClientParsesWays(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		gotQuery = r.PostForm.Get("data")
		_, _ = w.Write([]byte(overpassBody))
	}))
	defer srv.Close()

	c := &OverpassClient{URLs: []string{srv.URL}}
	ways, err := c.Ways(context.Background(), Query{Center: geo.Point{Lat: 12.9716, Lon: 77.5946}, RadiusMeters: 50})
	require.NoError(t, err)
	require.Len(t, ways, 2)
	assert.Equal(t, int64(22), ways[1].ID)
	assert.Equal(t, "primary", ways[1].Highway())
	assert.Len(t, ways[1].Geometry, 2)
	assert.Contains(t, gotQuery, `way(around:50,12.971600,77.594600)["highway"]`)
	assert.Contains(t, gotQuery, "out geom;")
}

func TestOverpassClientZeroValueIsSafeForConcurrentUse(t *testing.T) {
	var agents sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents.Store(r.Header.Get("User-Agent"), true)
		_, _ = w.Write([]byte(overpassBody))
	}))
	defer srv.Close()

	c := &OverpassClient{URLs: []string{srv.URL}}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Ways(context.Background(), Query{Center: geo.Point{Lat: 12.9716, Lon: 77.5946}, RadiusMeters: 50})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Nil(t, c.Client)
	assert.Empty(t, c.UserAgent)
	_, ok := agents.Load("pothole-backend")
	assert.True(t, ok)
}

func TestOverpassClientFallsBackToNextMirror(t *testing.T) {
	var failing int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&failing, 1)
		http.Error(w, "busy", http.StatusTooManyRequests)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(overpassBody))
	}))
	defer good.Close()

	c := &OverpassClient{URLs: []string{bad.URL, good.URL}}
	ways, err := c.Ways(context.Background(), Query{Center: geo.Point{Lat: 1, Lon: 1}, RadiusMeters: 50})
	require.NoError(t, err)
	assert.Len(t, ways, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&failing))
}

func TestOverpassClientAllMirrorsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusGatewayTimeout)
	}))
	defer bad.Close()

	c := &OverpassClient{URLs: []string{bad.URL, bad.URL}}
	_, err := c.Ways(context.Background(), Query{Center: geo.Point{Lat: 1, Lon: 1}, RadiusMeters: 50})
	require.Error(t, err)
	assert.True(t, apperr.IsExternal(err))
	assert.Contains(t, err.Error(), "504")
}

func TestOverpassClientRejectsInvalidCenter(t *testing.T) {
	c := &OverpassClient{URLs: []string{"http://127.0.0.1:0"}}
	_, err := c.Ways(context.Background(), Query{Center: geo.Point{Lat: 120, Lon: 1}, RadiusMeters: 50})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestBuildOverpassQueryWithHighwayFilter(t *testing.T) {
	q := BuildOverpassQuery(Query{Center: geo.Point{Lat: 0, Lon: 0}, RadiusMeters: 1113.2, Highways: []string{"primary", "secondary"}})
	assert.Contains(t, q, `way["highway"~"^(primary|secondary)$"](-0.010000,-0.010000,0.010000,0.010000)`)
}

func TestTrafficImportance(t *testing.T) {
	assert.Equal(t, 5.0, TrafficImportance("motorway"))
	assert.Equal(t, 0.5, TrafficImportance("path"))
	assert.Equal(t, 2.0, TrafficImportance("living_street"))
	assert.Equal(t, 1.0, TrafficImportance(""))
}

func TestPriorityFactor(t *testing.T) {
	speed := func(v int) *int { return &v }
	tests := []struct {
		roadType string
		speed    *int
		expected float64
	}{
		{"motorway", speed(100), 8.13},  // 5.0 * 1.3 * 1.25
		{"primary", speed(60), 5.52},    // 4.0 * 1.2 * 1.15
		{"secondary", speed(40), 4.43},  // 3.5 * 1.1 * 1.15
		{"tertiary", speed(40), 3.3},    // 3.0 * 1.1
		{"residential", speed(30), 2.0}, // below every speed step
		{"residential", speed(0), 2.0},
	}
	for _, tt := range tests {
		got := PriorityFactor(tt.roadType, tt.speed, TrafficImportance(tt.roadType))
		assert.InDelta(t, tt.expected, got, 1e-9, "%s", tt.roadType)
	}
}

func TestParseSpeedLimit(t *testing.T) {
	require.NotNil(t, ParseSpeedLimit("50"))
	assert.Equal(t, 50, *ParseSpeedLimit("50"))
	assert.Equal(t, 30, *ParseSpeedLimit(" 30 mph"))
	assert.Nil(t, ParseSpeedLimit("none"))
	assert.Nil(t, ParseSpeedLimit(""))
}

func TestClosestWay(t *testing.T) {
	ways := []Way{
		{ID: 1, Tags: map[string]string{"highway": "service"}},
		{ID: 2, Tags: map[string]string{"highway": "residential"}, Geometry: []geo.Point{{Lat: 0.001, Lon: 0}}},
		{ID: 3, Tags: map[string]string{"highway": "primary"}, Geometry: []geo.Point{{Lat: 0.0001, Lon: 0}}},
	}
	w, ok := ClosestWay(ways, geo.Point{})
	require.True(t, ok)
	assert.Equal(t, int64(3), w.ID)

	w, ok = ClosestWay(ways[:1], geo.Point{})
	require.True(t, ok)
	assert.Equal(t, int64(1), w.ID)

	_, ok = ClosestWay(nil, geo.Point{})
	assert.False(t, ok)
}

type failingProvider struct{ err error }

func (f failingProvider) Ways(context.Context, Query) ([]Way, error) { return nil, f.err }

type staticProvider struct {
	ways  []Way
	calls int32
}

func (s *staticProvider) Ways(context.Context, Query) ([]Way, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.ways, nil
}

func TestResolverUsesClosestRoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(overpassBody))
	}))
	defer srv.Close()

	r := &Resolver{Provider: &OverpassClient{URLs: []string{srv.URL}}, Logger: zerolog.Nop()}
	rc, err := r.Lookup(context.Background(), 12.9716, 77.5946)
	require.NoError(t, err)
	require.NotNil(t, rc.RoadType)
	assert.Equal(t, "primary", *rc.RoadType)
	assert.Equal(t, "MG Road", *rc.RoadName)
	assert.Equal(t, 60, *rc.SpeedLimit)
	assert.Equal(t, 4.0, rc.TrafficImportance)
	assert.InDelta(t, 5.52, rc.PriorityFactor, 1e-9)
	assert.Equal(t, models.RoadSourceOSM, rc.Source)
}

func TestResolverFallsBackOnProviderError(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := &Resolver{
		Provider: failingProvider{err: apperr.External("overpass", errors.New("timeout"))},
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return now },
	}
	rc, err := r.Lookup(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rc.TrafficImportance)
	assert.Equal(t, 2.0, rc.PriorityFactor)
	assert.Equal(t, models.RoadSourceDefault, rc.Source)
	assert.Equal(t, now, rc.FetchedAt)
}

func TestResolverFallsBackOnNoRoads(t *testing.T) {
	r := &Resolver{Provider: &staticProvider{}, Logger: zerolog.Nop(), Defaults: Defaults{TrafficImportance: 1.5, PriorityFactor: 1.7}}
	rc, err := r.Lookup(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 1.5, rc.TrafficImportance)
	assert.Equal(t, 1.7, rc.PriorityFactor)
	assert.Nil(t, rc.RoadType)
}

func TestResolverRejectsInvalidCoordinates(t *testing.T) {
	r := &Resolver{Provider: &staticProvider{}, Logger: zerolog.Nop()}
	_, err := r.Lookup(context.Background(), 95, 10)
	assert.True(t, apperr.IsValidation(err))
}

func TestMockProviderGridIsDeterministicAndConnected(t *testing.T) {
	q := Query{Center: geo.Point{Lat: 12.9716, Lon: 77.5946}, RadiusMeters: 400}
	a, err := MockProvider{}.Ways(context.Background(), q)
	require.NoError(t, err)
	b, err := MockProvider{}.Ways(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// 4 lines each side of center plus the center line, rows and columns
	require.Len(t, a, 18)
	row, col := a[0], a[9]
	assert.Equal(t, row.Geometry[0], col.Geometry[0], "row 0 and column 0 share their corner")
	for _, w := range a {
		assert.Contains(t, mockHighways, w.Highway())
		assert.True(t, strings.HasPrefix(w.Tags["name"], "Mock "))
	}
}

func TestCachedProviderServesRepeatedQueries(t *testing.T) {
	inner := &staticProvider{ways: []Way{{ID: 7, Tags: map[string]string{"highway": "trunk"}, Geometry: []geo.Point{{Lat: 1, Lon: 1}}}}}
	c := &CachedProvider{Next: inner, Cache: cache.NewMemory(), TTL: time.Minute, Logger: zerolog.Nop()}
	q := Query{Center: geo.Point{Lat: 1, Lon: 1}, RadiusMeters: 50}

	for i := 0; i < 3; i++ {
		ways, err := c.Ways(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, ways, 1)
		assert.Equal(t, int64(7), ways[0].ID)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))

	_, err := c.Ways(context.Background(), Query{Center: geo.Point{Lat: 2, Lon: 2}, RadiusMeters: 50})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls), "different center must miss")
}
