package roadinfo

import (
	"context"
	"fmt"
	"math"

	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/utils"
)

// MockProvider synthesizes a deterministic street grid around the query
// center. Intersections share exact coordinates so the grid is connected.
type MockProvider struct {
	SpacingMeters float64
}

var (
	mockHighways = []string{"residential", "tertiary", "secondary", "primary", "unclassified", "service"}
	mockSpeeds   = []string{"", "30", "40", "50", "60", "80"}
)

func (m MockProvider) Ways(ctx context.Context, q Query) ([]Way, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Center.Validate(); err != nil {
		return nil, err
	}

	spacing := m.SpacingMeters
	if spacing <= 0 {
		spacing = math.Max(q.RadiusMeters/4, 25)
	}
	k := int(q.RadiusMeters / spacing)
	if k < 1 {
		k = 1
	}
	if k > 8 {
		k = 8
	}

	metersPerLon := 111320.0 * math.Cos(q.Center.Lat*math.Pi/180)
	lats := make([]float64, 2*k+1)
	lons := make([]float64, 2*k+1)
	for i := -k; i <= k; i++ {
		lats[i+k] = q.Center.Lat + float64(i)*spacing/111320.0
		lons[i+k] = q.Center.Lon + float64(i)*spacing/metersPerLon
	}

	var ways []Way
	var id int64
	for i, lat := range lats {
		id++
		way := Way{ID: id, Tags: mockTags(fmt.Sprintf("row:%.4f", lat), fmt.Sprintf("Mock Street %d", i+1))}
		for _, lon := range lons {
			way.Geometry = append(way.Geometry, geo.Point{Lat: lat, Lon: lon})
		}
		ways = append(ways, way)
	}
	for j, lon := range lons {
		id++
		way := Way{ID: id, Tags: mockTags(fmt.Sprintf("col:%.4f", lon), fmt.Sprintf("Mock Avenue %d", j+1))}
		for _, lat := range lats {
			way.Geometry = append(way.Geometry, geo.Point{Lat: lat, Lon: lon})
		}
		ways = append(ways, way)
	}
	return ways, nil
}

func mockTags(key, name string) map[string]string {
	tags := map[string]string{
		"highway": utils.Pick(key, mockHighways),
		"name":    name,
	}
	if speed := utils.Pick(key+":speed", mockSpeeds); speed != "" {
		tags["maxspeed"] = speed
	}
	return tags
}
