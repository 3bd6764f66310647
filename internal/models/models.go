package models

import (
	"time"

	"github.com/potholeops/backend/internal/lifecycle"
	"github.com/potholeops/backend/internal/severity"
)

type Detection struct {
	Confidence float64 `json:"confidence"`
	BBoxX      float64 `json:"bbox_x"`
	BBoxY      float64 `json:"bbox_y"`
	BBoxWidth  float64 `json:"bbox_width"`
	BBoxHeight float64 `json:"bbox_height"`
	Class      string  `json:"class"`
}

func (d Detection) Area() float64 {
	return d.BBoxWidth * d.BBoxHeight
}

type Pothole struct {
	ID            string          `json:"id"`
	Latitude      float64         `json:"latitude"`
	Longitude     float64         `json:"longitude"`
	Detection     Detection       `json:"detection"`
	PriorityScore *int            `json:"priority_score,omitempty"`
	PriorityLevel *severity.Level `json:"priority_level,omitempty"`
	TicketID      *string         `json:"ticket_id,omitempty"`
	RoadContext   *RoadContext    `json:"road_context,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	RankedAt      *time.Time      `json:"ranked_at,omitempty"`
}

func (p Pothole) Ranked() bool {
	return p.PriorityScore != nil && p.PriorityLevel != nil
}

const (
	RoadSourceOSM     = "osm"
	RoadSourceDefault = "default"
)

type RoadContext struct {
	PotholeID         string    `json:"pothole_id,omitempty"`
	RoadName          *string   `json:"road_name,omitempty"`
	RoadType          *string   `json:"road_type,omitempty"`
	SpeedLimit        *int      `json:"speed_limit,omitempty"`
	TrafficImportance float64   `json:"traffic_importance"`
	PriorityFactor    float64   `json:"priority_factor"`
	OSMWayID          *int64    `json:"osm_way_id,omitempty"`
	Source            string    `json:"source"`
	FetchedAt         time.Time `json:"fetched_at"`
}

type Ticket struct {
	ID               string           `json:"id"`
	Number           string           `json:"ticket_number"`
	Status           lifecycle.Status `json:"status"`
	PotholeIDs       []string         `json:"pothole_ids"`
	AssignedWorkerID *string          `json:"assigned_worker_id,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Version          int              `json:"version"`
	RouteData        []byte           `json:"route_data,omitempty"`
	EstimatedETA     *time.Time       `json:"estimated_eta,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	AssignedAt       *time.Time       `json:"assigned_at,omitempty"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
}

type Worker struct {
	ID               string     `json:"id"`
	EmployeeID       string     `json:"employee_id"`
	Name             string     `json:"name"`
	CurrentLatitude  *float64   `json:"current_latitude,omitempty"`
	CurrentLongitude *float64   `json:"current_longitude,omitempty"`
	IsActive         bool       `json:"is_active"`
	LocationAt       *time.Time `json:"location_updated_at,omitempty"`
	OpenTickets      int        `json:"open_tickets"`
}

func (w Worker) HasLocation() bool {
	return w.CurrentLatitude != nil && w.CurrentLongitude != nil
}

type WorkProof struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	WorkerID    string    `json:"worker_id"`
	PhotoURL    string    `json:"photo_url"`
	Notes       string    `json:"notes,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type StatusHistoryEntry struct {
	ID         string            `json:"id"`
	TicketID   string            `json:"ticket_id"`
	FromStatus *lifecycle.Status `json:"from_status,omitempty"`
	ToStatus   lifecycle.Status  `json:"to_status"`
	ChangedBy  string            `json:"changed_by,omitempty"`
	Reason     string            `json:"reason"`
	CreatedAt  time.Time         `json:"created_at"`
}

type TicketDetails struct {
	Ticket   Ticket               `json:"ticket"`
	Potholes []Pothole            `json:"potholes"`
	Worker   *Worker              `json:"worker,omitempty"`
	Proofs   []WorkProof          `json:"proofs"`
	History  []StatusHistoryEntry `json:"history"`
}

type Run struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Summary    []byte     `json:"summary,omitempty"`
}
