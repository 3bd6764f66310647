package routing

import (
	"fmt"
	"io"

	"github.com/twpayne/go-kml"

	"github.com/potholeops/backend/internal/geo"
)

type Stop struct {
	Name  string
	Point geo.Point
}

// WriteKML writes a document holding the route line followed by one point
// placemark per stop.
func WriteKML(w io.Writer, name string, path []geo.Point, stops []Stop) error {
	coords := make([]kml.Coordinate, 0, len(path))
	for _, p := range path {
		coords = append(coords, kml.Coordinate{Lon: p.Lon, Lat: p.Lat})
	}

	children := []kml.Element{
		kml.Name(name),
		kml.Placemark(
			kml.Name(name),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(coords...),
			),
		),
	}
	for i, s := range stops {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("Stop %d", i+1)
		}
		children = append(children, kml.Placemark(
			kml.Name(label),
			kml.Point(kml.Coordinates(kml.Coordinate{Lon: s.Point.Lon, Lat: s.Point.Lat})),
		))
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}
