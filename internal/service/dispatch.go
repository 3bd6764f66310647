package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/dispatch"
	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/graph"
	"github.com/potholeops/backend/internal/models"
	"github.com/potholeops/backend/internal/routing"
	"github.com/potholeops/backend/internal/safety"
)

const (
	RouteSourceOSRM  = "osrm"
	RouteSourceGraph = "graph"
)

type GraphRouter interface {
	Route(ctx context.Context, from, to geo.Point) (graph.Route, error)
}

type HazardStore interface {
	ListVerifiedHazards(ctx context.Context, south, west, north, east float64) ([]safety.Hazard, error)
}

type TripStore interface {
	GetTicket(ctx context.Context, id string) (models.Ticket, error)
	ListPotholesByTicket(ctx context.Context, ticketID string) ([]models.Pothole, error)
	GetWorker(ctx context.Context, id string) (models.Worker, error)
}

// DispatchService routes workers to jobs and ranks alternatives by hazard
// exposure.
type DispatchService struct {
	Router       routing.Router
	Graph        GraphRouter
	Hazards      HazardStore
	Store        TripStore
	Safety       safety.Scorer
	HazardMargin float64
	Logger       zerolog.Logger
	Now          func() time.Time
}

// JobRoute is what gets stored on a ticket when work starts.
type JobRoute struct {
	Source          string      `json:"source"`
	From            geo.Point   `json:"from"`
	To              geo.Point   `json:"to"`
	DistanceMeters  float64     `json:"distance_m"`
	DurationSeconds float64     `json:"duration_s"`
	Distance        string      `json:"distance"`
	Duration        string      `json:"duration"`
	Polyline        string      `json:"polyline"`
	Points          []geo.Point `json:"points"`
	ETA             time.Time   `json:"eta"`
}

type EmergencyRoute struct {
	Rank        int           `json:"rank"`
	Route       routing.Route `json:"route"`
	Distance    string        `json:"distance"`
	Duration    string        `json:"duration"`
	Safety      safety.Result `json:"safety"`
	Recommended bool          `json:"recommended"`
}

type EmergencySummary struct {
	TotalRoutes     int `json:"total_routes"`
	SafestScore     int `json:"safest_score"`
	VerifiedHazards int `json:"verified_hazards"`
}

type EmergencyResult struct {
	Routes  []EmergencyRoute `json:"routes"`
	Summary EmergencySummary `json:"summary"`
}

type TripPlan struct {
	WorkerID           string              `json:"worker_id"`
	Start              geo.Point           `json:"start"`
	Stops              []dispatch.Waypoint `json:"stops"`
	StraightLineMeters float64             `json:"straight_line_m"`
	Route              *routing.Route      `json:"route,omitempty"`
	Distance           string              `json:"distance,omitempty"`
	Duration           string              `json:"duration,omitempty"`
}

// JobRoute asks the routing provider first and falls back to the local road
// graph when it fails.
func (s *DispatchService) JobRoute(ctx context.Context, from, to geo.Point) (JobRoute, error) {
	if err := from.Validate(); err != nil {
		return JobRoute{}, err
	}
	if err := to.Validate(); err != nil {
		return JobRoute{}, err
	}

	var providerErr error
	if s.Router != nil {
		routes, err := s.Router.Routes(ctx, []geo.Point{from, to}, false)
		if err == nil && len(routes) > 0 {
			r := routes[0]
			return s.jobRoute(RouteSourceOSRM, from, to, r.Distance, r.Duration, r.Polyline, r.Coordinates), nil
		}
		if ctx.Err() != nil {
			return JobRoute{}, ctx.Err()
		}
		providerErr = err
		s.Logger.Warn().Err(err).Msg("routing provider failed, falling back to road graph")
	}
	if s.Graph == nil {
		if providerErr == nil {
			providerErr = apperr.NotFound("route", "")
		}
		return JobRoute{}, providerErr
	}

	r, err := s.Graph.Route(ctx, from, to)
	if err != nil {
		return JobRoute{}, err
	}
	return s.jobRoute(RouteSourceGraph, from, to, r.Distance, r.DurationSeconds, r.Polyline, r.Points), nil
}

func (s *DispatchService) jobRoute(source string, from, to geo.Point, meters, seconds float64, poly string, pts []geo.Point) JobRoute {
	return JobRoute{
		Source:          source,
		From:            from,
		To:              to,
		DistanceMeters:  math.Round(meters*10) / 10,
		DurationSeconds: math.Round(seconds),
		Distance:        routing.FormatDistance(meters),
		Duration:        routing.FormatDuration(seconds),
		Polyline:        poly,
		Points:          pts,
		ETA:             s.now().Add(time.Duration(seconds * float64(time.Second))),
	}
}

// GenerateRoute returns the provider's route through waypoints in order.
func (s *DispatchService) GenerateRoute(ctx context.Context, waypoints []geo.Point) (routing.Route, error) {
	if s.Router == nil {
		return routing.Route{}, apperr.External("routing", fmt.Errorf("no routing provider configured"))
	}
	routes, err := s.Router.Routes(ctx, waypoints, false)
	if err != nil {
		return routing.Route{}, err
	}
	if len(routes) == 0 {
		return routing.Route{}, apperr.NotFound("route", "")
	}
	return routes[0], nil
}

// ShortestPath runs Dijkstra over the road graph around both points.
func (s *DispatchService) ShortestPath(ctx context.Context, from, to geo.Point) (graph.Route, error) {
	if s.Graph == nil {
		return graph.Route{}, apperr.ErrNoRoadNetwork
	}
	return s.Graph.Route(ctx, from, to)
}

// EmergencyRoutes fetches alternatives and verified hazards concurrently and
// orders the alternatives safest first.
func (s *DispatchService) EmergencyRoutes(ctx context.Context, from, to geo.Point) (EmergencyResult, error) {
	if err := from.Validate(); err != nil {
		return EmergencyResult{}, err
	}
	if err := to.Validate(); err != nil {
		return EmergencyResult{}, err
	}
	if s.Router == nil {
		return EmergencyResult{}, apperr.External("routing", fmt.Errorf("no routing provider configured"))
	}

	routes, err := s.Router.Routes(ctx, []geo.Point{from, to}, true)
	if err != nil {
		return EmergencyResult{}, err
	}

	// missing hazard data scores every route as clear
	var hazards []safety.Hazard
	if s.Hazards != nil {
		south, west, north, east := hazardBox(routes, from, to, s.hazardMargin())
		hazards, err = s.Hazards.ListVerifiedHazards(ctx, south, west, north, east)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return EmergencyResult{}, ctxErr
			}
			s.Logger.Warn().Err(err).Msg("hazard lookup failed, ranking routes without hazards")
			hazards = nil
		}
	}

	lines := make([][]geo.Point, len(routes))
	for i, r := range routes {
		lines[i] = r.Coordinates
	}
	ranked := s.Safety.Rank(lines, hazards)

	out := EmergencyResult{Routes: make([]EmergencyRoute, 0, len(ranked))}
	for i, rk := range ranked {
		r := routes[rk.Index]
		out.Routes = append(out.Routes, EmergencyRoute{
			Rank:        i + 1,
			Route:       r,
			Distance:    routing.FormatDistance(r.Distance),
			Duration:    routing.FormatDuration(r.Duration),
			Safety:      rk.Result,
			Recommended: i == 0,
		})
	}
	out.Summary = EmergencySummary{TotalRoutes: len(out.Routes), VerifiedHazards: len(hazards)}
	if len(out.Routes) > 0 {
		out.Summary.SafestScore = out.Routes[0].Safety.SafetyScore
	}
	s.Logger.Info().Int("routes", len(out.Routes)).Int("hazards", len(hazards)).Msg("emergency routes ranked")
	return out, nil
}

// PlanTrip orders the potholes of several tickets from the worker's current
// location and routes through them. A routing failure leaves Route empty.
func (s *DispatchService) PlanTrip(ctx context.Context, workerID string, ticketIDs []string) (TripPlan, error) {
	if len(ticketIDs) == 0 {
		return TripPlan{}, apperr.Invalid("ticket_ids", ticketIDs, "at least one ticket is required")
	}
	w, err := s.Store.GetWorker(ctx, workerID)
	if err != nil {
		return TripPlan{}, err
	}
	if !w.HasLocation() {
		return TripPlan{}, apperr.Invalid("location", nil, "Worker location not available. Update location first.")
	}
	start := geo.Point{Lat: *w.CurrentLatitude, Lon: *w.CurrentLongitude}

	var stops []dispatch.Waypoint
	for _, id := range ticketIDs {
		t, err := s.Store.GetTicket(ctx, id)
		if err != nil {
			return TripPlan{}, err
		}
		if t.AssignedWorkerID == nil || *t.AssignedWorkerID != workerID {
			return TripPlan{}, apperr.Forbidden(fmt.Sprintf("ticket %s is not assigned to this worker", t.Number))
		}
		potholes, err := s.Store.ListPotholesByTicket(ctx, id)
		if err != nil {
			return TripPlan{}, err
		}
		for _, p := range potholes {
			stops = append(stops, dispatch.Waypoint{ID: p.ID, Point: geo.Point{Lat: p.Latitude, Lon: p.Longitude}})
		}
	}
	if len(stops) == 0 {
		return TripPlan{}, apperr.Invalid("ticket_ids", ticketIDs, "tickets have no potholes")
	}

	ordered := dispatch.Sequence(start, stops)
	plan := TripPlan{
		WorkerID:           workerID,
		Start:              start,
		Stops:              ordered,
		StraightLineMeters: math.Round(dispatch.TripLength(start, ordered)*10) / 10,
	}
	if s.Router == nil {
		return plan, nil
	}
	routes, err := s.Router.Routes(ctx, append([]geo.Point{start}, dispatch.Points(ordered)...), false)
	if err == nil && len(routes) == 0 {
		err = apperr.NotFound("route", "")
	}
	if err != nil {
		if ctx.Err() != nil {
			return TripPlan{}, ctx.Err()
		}
		s.Logger.Warn().Err(err).Str("worker_id", workerID).Msg("trip routing failed")
		return plan, nil
	}
	plan.Route = &routes[0]
	plan.Distance = routing.FormatDistance(routes[0].Distance)
	plan.Duration = routing.FormatDuration(routes[0].Duration)
	return plan, nil
}

// RouteKML writes the route stored on a ticket, with its potholes as stops.
func (s *DispatchService) RouteKML(ctx context.Context, ticketID string, w io.Writer) error {
	t, err := s.Store.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if len(t.RouteData) == 0 {
		return apperr.NotFound("route", ticketID)
	}
	var jr JobRoute
	if err := json.Unmarshal(t.RouteData, &jr); err != nil {
		return fmt.Errorf("decode stored route: %w", err)
	}
	path := jr.Points
	if len(path) == 0 && jr.Polyline != "" {
		if path, err = geo.DecodePolyline(jr.Polyline); err != nil {
			return fmt.Errorf("decode stored route: %w", err)
		}
	}

	potholes, err := s.Store.ListPotholesByTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	stops := make([]routing.Stop, 0, len(potholes)+1)
	stops = append(stops, routing.Stop{Name: "Start", Point: jr.From})
	for _, p := range potholes {
		name := "Pothole"
		if p.PriorityLevel != nil {
			name = fmt.Sprintf("Pothole (%s)", *p.PriorityLevel)
		}
		stops = append(stops, routing.Stop{Name: name, Point: geo.Point{Lat: p.Latitude, Lon: p.Longitude}})
	}
	return routing.WriteKML(w, t.Number, path, stops)
}

// hazardMargin pads the hazard query box. It defaults to the safety
// threshold so hazards just outside the route bounds still count.
func (s *DispatchService) hazardMargin() float64 {
	if s.HazardMargin > 0 {
		return s.HazardMargin
	}
	if s.Safety.ThresholdMeters > 0 {
		return s.Safety.ThresholdMeters
	}
	return safety.DefaultThresholdMeters
}

func (s *DispatchService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// hazardBox covers the endpoints and every vertex of every candidate route,
// padded by margin meters.
func hazardBox(routes []routing.Route, from, to geo.Point, margin float64) (float64, float64, float64, float64) {
	minLat, minLon := math.Min(from.Lat, to.Lat), math.Min(from.Lon, to.Lon)
	maxLat, maxLon := math.Max(from.Lat, to.Lat), math.Max(from.Lon, to.Lon)
	for _, r := range routes {
		for _, p := range r.Coordinates {
			minLat, minLon = math.Min(minLat, p.Lat), math.Min(minLon, p.Lon)
			maxLat, maxLon = math.Max(maxLat, p.Lat), math.Max(maxLon, p.Lon)
		}
	}
	south, west, north, east := minLat, minLon, maxLat, maxLon
	for _, c := range []geo.Point{{Lat: minLat, Lon: minLon}, {Lat: minLat, Lon: maxLon}, {Lat: maxLat, Lon: minLon}, {Lat: maxLat, Lon: maxLon}} {
		s, w, n, e := geo.BoundingBox(c, margin)
		south, west = math.Min(south, s), math.Min(west, w)
		north, east = math.Max(north, n), math.Max(east, e)
	}
	return south, west, north, east
}
