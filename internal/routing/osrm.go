// Package routing talks to the external turn-by-turn routing provider and
// renders its answers for people and map tools.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/geo"
)

const DefaultOSRMURL = "https://router.project-osrm.org"

type Route struct {
	Distance    float64     `json:"distance_m"`
	Duration    float64     `json:"duration_s"`
	Polyline    string      `json:"polyline"`
	Coordinates []geo.Point `json:"coordinates"`
	ETA         time.Time   `json:"eta"`
}

// Router returns one or more candidate routes through waypoints in order.
type Router interface {
	Routes(ctx context.Context, waypoints []geo.Point, alternatives bool) ([]Route, error)
}

var defaultOSRMHTTP = &http.Client{Timeout: 15 * time.Second}

type OSRMClient struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	Now       func() time.Time
}

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry string  `json:"geometry"`
}

func (o *OSRMClient) Routes(ctx context.Context, waypoints []geo.Point, alternatives bool) ([]Route, error) {
	if len(waypoints) < 2 {
		return nil, apperr.Invalid("waypoints", len(waypoints), "at least two points are required")
	}
	for _, p := range waypoints {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	client := o.Client
	if client == nil {
		client = defaultOSRMHTTP
	}
	base := o.BaseURL
	if base == "" {
		base = DefaultOSRMURL
	}
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, BuildRouteURL(base, waypoints, alternatives), nil)
	if err != nil {
		return nil, err
	}
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.External("osrm", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.External("osrm", err)
	}
	var body osrmResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperr.External("osrm", fmt.Errorf("http %d: undecodable response: %w", resp.StatusCode, err))
	}
	if body.Code != "Ok" {
		return nil, apperr.External("osrm", fmt.Errorf("code %s: %s", body.Code, body.Message))
	}
	if len(body.Routes) == 0 {
		return nil, apperr.NotFound("route", "")
	}

	fetched := now()
	routes := make([]Route, 0, len(body.Routes))
	for _, r := range body.Routes {
		coords, err := geo.DecodePolyline(r.Geometry)
		if err != nil {
			return nil, apperr.External("osrm", err)
		}
		routes = append(routes, Route{
			Distance:    r.Distance,
			Duration:    r.Duration,
			Polyline:    r.Geometry,
			Coordinates: coords,
			ETA:         fetched.Add(time.Duration(r.Duration * float64(time.Second))),
		})
	}
	return routes, nil
}

func BuildRouteURL(base string, waypoints []geo.Point, alternatives bool) string {
	coords := make([]string, 0, len(waypoints))
	for _, p := range waypoints {
		coords = append(coords, fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat))
	}
	return fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=polyline&alternatives=%t",
		strings.TrimRight(base, "/"), strings.Join(coords, ";"), alternatives)
}
