package roadinfo

import (
	"context"
	"fmt"
	"strings"

	"github.com/potholeops/backend/internal/geo"
)

// Way is one road segment as returned by the road-segment provider.
type Way struct {
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags,omitempty"`
	Geometry []geo.Point       `json:"geometry"`
}

func (w Way) Highway() string {
	return w.Tags["highway"]
}

// Query selects road ways within RadiusMeters of Center. An empty Highways
// list matches any way carrying a highway tag.
type Query struct {
	Center       geo.Point
	RadiusMeters float64
	Highways     []string
}

func (q Query) Key() string {
	return fmt.Sprintf("ways:%.5f:%.5f:%.0f:%s", q.Center.Lat, q.Center.Lon, q.RadiusMeters, strings.Join(q.Highways, "|"))
}

type Provider interface {
	Ways(ctx context.Context, q Query) ([]Way, error)
}

// RoutableHighways are the classes kept when building a road graph.
var RoutableHighways = []string{
	"motorway", "motorway_link",
	"trunk", "trunk_link",
	"primary", "primary_link",
	"secondary", "secondary_link",
	"tertiary", "tertiary_link",
	"unclassified", "residential", "living_street", "service",
}
