package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/db"
	"github.com/potholeops/backend/internal/dispatch"
	"github.com/potholeops/backend/internal/events"
	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/lifecycle"
	"github.com/potholeops/backend/internal/models"
	"github.com/potholeops/backend/internal/utils"
)

const (
	ReviewApprove = "APPROVE"
	ReviewReject  = "REJECT"
)

type TicketStore interface {
	CreateTicket(ctx context.Context, number string, potholeIDs []string, changedBy string) (models.Ticket, error)
	GetTicket(ctx context.Context, id string) (models.Ticket, error)
	GetTicketDetails(ctx context.Context, id string) (models.TicketDetails, error)
	ListPotholesByTicket(ctx context.Context, ticketID string) ([]models.Pothole, error)
	TransitionTicket(ctx context.Context, req db.TransitionRequest) (db.TransitionResult, error)
}

type WorkerStore interface {
	GetWorker(ctx context.Context, id string) (models.Worker, error)
	ListActiveWorkers(ctx context.Context) ([]models.Worker, error)
	UpdateWorkerLocation(ctx context.Context, id string, lat, lon float64, at time.Time) error
}

type JobRouter interface {
	JobRoute(ctx context.Context, from, to geo.Point) (JobRoute, error)
}

// TicketService drives tickets through their lifecycle. Every status change
// goes through the store's transactional transition; notifications are sent
// after commit and never fail the call.
type TicketService struct {
	Tickets        TicketStore
	Workers        WorkerStore
	Routes         JobRouter
	Events         events.Publisher
	MaxOpenTickets int
	Logger         zerolog.Logger
	Now            func() time.Time
}

type AssignInput struct {
	TicketID        string
	WorkerID        string
	ChangedBy       string
	ExpectedVersion *int
}

type AssignResult struct {
	Ticket     models.Ticket  `json:"ticket"`
	Worker     models.Worker  `json:"worker"`
	AutoPicked bool           `json:"auto_picked"`
	Stages     map[string]int `json:"stages,omitempty"`
}

type StartJobResult struct {
	Ticket models.Ticket `json:"ticket"`
	Route  JobRoute      `json:"route"`
}

type ProofInput struct {
	TicketID  string
	WorkerID  string
	PhotoURL  string
	Notes     string
	Latitude  *float64
	Longitude *float64
}

type ReviewInput struct {
	TicketID        string
	Action          string
	Notes           string
	ReviewedBy      string
	ExpectedVersion *int
}

type StatusInput struct {
	TicketID        string
	Status          string
	Reason          string
	ChangedBy       string
	ExpectedVersion *int
}

type Workflow struct {
	Ticket      models.Ticket      `json:"ticket"`
	Stage       lifecycle.Stage    `json:"stage"`
	Description string             `json:"description"`
	ValidNext   []lifecycle.Status `json:"valid_next"`
	Terminal    bool               `json:"terminal"`
}

func (s *TicketService) Create(ctx context.Context, potholeIDs []string, changedBy string) (models.Ticket, error) {
	number := fmt.Sprintf("TICKET-%s-%s", s.now().Format("20060102"), utils.ShortCode(uuid.NewString(), 5))
	t, err := s.Tickets.CreateTicket(ctx, number, dedupe(potholeIDs), changedBy)
	if err != nil {
		return models.Ticket{}, err
	}
	s.Logger.Info().Str("ticket_id", t.ID).Str("ticket_number", t.Number).Int("potholes", len(t.PotholeIDs)).Msg("ticket created")
	s.publish(ctx, db.TransitionResult{Ticket: t, From: lifecycle.StatusDetected, Changed: true}, changedBy, "All potholes ranked")
	return t, nil
}

func (s *TicketService) Get(ctx context.Context, id string) (models.TicketDetails, error) {
	return s.Tickets.GetTicketDetails(ctx, id)
}

func (s *TicketService) Workflow(ctx context.Context, id string) (Workflow, error) {
	t, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return Workflow{}, err
	}
	return Workflow{
		Ticket:      t,
		Stage:       lifecycle.WorkflowStage(t.Status),
		Description: lifecycle.Describe(t.Status),
		ValidNext:   lifecycle.ValidNext(t.Status),
		Terminal:    lifecycle.IsTerminal(t.Status),
	}, nil
}

// Assign moves a ticket to ASSIGNED. Without a worker id the least loaded
// eligible worker is picked.
func (s *TicketService) Assign(ctx context.Context, in AssignInput) (AssignResult, error) {
	var (
		worker models.Worker
		result AssignResult
	)
	if in.WorkerID != "" {
		w, err := s.Workers.GetWorker(ctx, in.WorkerID)
		if err != nil {
			return AssignResult{}, err
		}
		if !w.IsActive {
			return AssignResult{}, apperr.Invalid("worker_id", in.WorkerID, "worker is not active")
		}
		worker = w
	} else {
		workers, err := s.Workers.ListActiveWorkers(ctx)
		if err != nil {
			return AssignResult{}, err
		}
		elig := FilterEligibleWorkers(workers, s.MaxOpenTickets)
		result.Stages = stageCounts(elig)
		if len(elig.Eligible) == 0 {
			return AssignResult{}, &apperr.ConflictError{Reason: elig.ReasonText, IDs: []string{in.TicketID}}
		}
		site, err := s.site(ctx, in.TicketID)
		if err != nil {
			return AssignResult{}, err
		}
		worker, _ = PickWorker(in.TicketID, site, elig.Eligible)
		result.AutoPicked = true
	}

	reason := fmt.Sprintf("Assigned to worker %s", worker.Name)
	res, err := s.Tickets.TransitionTicket(ctx, db.TransitionRequest{
		TicketID:        in.TicketID,
		To:              lifecycle.StatusAssigned,
		ChangedBy:       in.ChangedBy,
		Reason:          reason,
		ExpectedVersion: in.ExpectedVersion,
		WorkerID:        &worker.ID,
	})
	if err != nil {
		return AssignResult{}, err
	}
	s.publish(ctx, res, in.ChangedBy, reason)

	result.Ticket = res.Ticket
	result.Worker = worker
	return result, nil
}

// StartJob routes the assigned worker to the closest pothole of the ticket
// and moves the ticket to IN_PROGRESS with the route attached.
func (s *TicketService) StartJob(ctx context.Context, workerID, ticketID string) (StartJobResult, error) {
	w, err := s.Workers.GetWorker(ctx, workerID)
	if err != nil {
		return StartJobResult{}, err
	}
	if !w.IsActive {
		return StartJobResult{}, apperr.Invalid("worker_id", workerID, "worker is not active")
	}
	if !w.HasLocation() {
		return StartJobResult{}, apperr.Invalid("location", nil, "Worker location not available. Update location first.")
	}
	t, err := s.Tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return StartJobResult{}, err
	}
	if t.AssignedWorkerID == nil || *t.AssignedWorkerID != workerID {
		return StartJobResult{}, apperr.Forbidden("ticket is not assigned to this worker")
	}
	potholes, err := s.Tickets.ListPotholesByTicket(ctx, ticketID)
	if err != nil {
		return StartJobResult{}, err
	}
	if len(potholes) == 0 {
		return StartJobResult{}, apperr.Invalid("ticket_id", ticketID, "ticket has no potholes")
	}

	from := geo.Point{Lat: *w.CurrentLatitude, Lon: *w.CurrentLongitude}
	waypoints := make([]dispatch.Waypoint, len(potholes))
	for i, p := range potholes {
		waypoints[i] = dispatch.Waypoint{ID: p.ID, Point: geo.Point{Lat: p.Latitude, Lon: p.Longitude}}
	}
	target := waypoints[dispatch.Nearest(from, waypoints)].Point

	route, err := s.Routes.JobRoute(ctx, from, target)
	if err != nil {
		return StartJobResult{}, err
	}
	data, err := json.Marshal(route)
	if err != nil {
		return StartJobResult{}, err
	}

	const reason = "Worker started repair job"
	res, err := s.Tickets.TransitionTicket(ctx, db.TransitionRequest{
		TicketID:  ticketID,
		To:        lifecycle.StatusInProgress,
		ChangedBy: workerID,
		Reason:    reason,
		RouteData: data,
		ETA:       &route.ETA,
	})
	if err != nil {
		return StartJobResult{}, err
	}
	s.publish(ctx, res, workerID, reason)
	s.Logger.Info().Str("ticket_id", ticketID).Str("worker_id", workerID).Str("source", route.Source).Float64("distance_m", route.DistanceMeters).Msg("job started")
	return StartJobResult{Ticket: res.Ticket, Route: route}, nil
}

// SubmitProof stores the proof and requests verification in one step.
func (s *TicketService) SubmitProof(ctx context.Context, in ProofInput) (models.Ticket, error) {
	if strings.TrimSpace(in.PhotoURL) == "" {
		return models.Ticket{}, apperr.Invalid("photo_url", in.PhotoURL, "photo url is required")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return models.Ticket{}, apperr.Invalid("location", nil, "latitude and longitude must be given together")
	}
	if in.Latitude != nil {
		if err := geo.Validate(*in.Latitude, *in.Longitude); err != nil {
			return models.Ticket{}, err
		}
	}
	t, err := s.Tickets.GetTicket(ctx, in.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if t.AssignedWorkerID == nil || *t.AssignedWorkerID != in.WorkerID {
		return models.Ticket{}, apperr.Forbidden("ticket is not assigned to this worker")
	}

	proof := models.WorkProof{
		ID:          uuid.NewString(),
		TicketID:    in.TicketID,
		WorkerID:    in.WorkerID,
		PhotoURL:    in.PhotoURL,
		Notes:       in.Notes,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		SubmittedAt: s.now(),
	}
	const reason = "Proof of work submitted"
	res, err := s.Tickets.TransitionTicket(ctx, db.TransitionRequest{
		TicketID:  in.TicketID,
		To:        lifecycle.StatusAwaitingVerification,
		ChangedBy: in.WorkerID,
		Reason:    reason,
		Proof:     &proof,
	})
	if err != nil {
		return models.Ticket{}, err
	}
	s.publish(ctx, res, in.WorkerID, reason)
	return res.Ticket, nil
}

// Review approves or rejects work awaiting verification.
func (s *TicketService) Review(ctx context.Context, in ReviewInput) (models.Ticket, error) {
	var (
		to     lifecycle.Status
		reason string
	)
	switch strings.ToUpper(strings.TrimSpace(in.Action)) {
	case ReviewApprove:
		to, reason = lifecycle.StatusResolved, "Work approved by admin"
	case ReviewReject:
		to, reason = lifecycle.StatusRejected, "Work rejected by admin"
	default:
		return models.Ticket{}, apperr.Invalid("action", in.Action, "must be APPROVE or REJECT")
	}
	if n := strings.TrimSpace(in.Notes); n != "" {
		reason = n
	}

	awaiting := lifecycle.StatusAwaitingVerification
	res, err := s.Tickets.TransitionTicket(ctx, db.TransitionRequest{
		TicketID:        in.TicketID,
		To:              to,
		ChangedBy:       in.ReviewedBy,
		Reason:          reason,
		ExpectedVersion: in.ExpectedVersion,
		RequireStatus:   &awaiting,
	})
	if err != nil {
		return models.Ticket{}, err
	}
	s.publish(ctx, res, in.ReviewedBy, reason)
	return res.Ticket, nil
}

func (s *TicketService) ChangeStatus(ctx context.Context, in StatusInput) (db.TransitionResult, error) {
	to, err := lifecycle.ParseStatus(in.Status)
	if err != nil {
		return db.TransitionResult{}, err
	}
	reason := in.Reason
	if reason == "" {
		reason = fmt.Sprintf("Status changed to %s", to)
	}
	res, err := s.Tickets.TransitionTicket(ctx, db.TransitionRequest{
		TicketID:        in.TicketID,
		To:              to,
		ChangedBy:       in.ChangedBy,
		Reason:          reason,
		ExpectedVersion: in.ExpectedVersion,
	})
	if err != nil {
		return db.TransitionResult{}, err
	}
	s.publish(ctx, res, in.ChangedBy, reason)
	return res, nil
}

func (s *TicketService) UpdateWorkerLocation(ctx context.Context, workerID string, lat, lon float64) (models.Worker, error) {
	if err := geo.Validate(lat, lon); err != nil {
		return models.Worker{}, err
	}
	if err := s.Workers.UpdateWorkerLocation(ctx, workerID, lat, lon, s.now()); err != nil {
		return models.Worker{}, err
	}
	return s.Workers.GetWorker(ctx, workerID)
}

func (s *TicketService) site(ctx context.Context, ticketID string) (*geo.Point, error) {
	potholes, err := s.Tickets.ListPotholesByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if len(potholes) == 0 {
		return nil, nil
	}
	return &geo.Point{Lat: potholes[0].Latitude, Lon: potholes[0].Longitude}, nil
}

func (s *TicketService) publish(ctx context.Context, res db.TransitionResult, changedBy, reason string) {
	if !res.Changed || s.Events == nil {
		return
	}
	e := events.NewStatusChanged(res.Ticket.ID, res.Ticket.Number, res.From, res.Ticket.Status, changedBy, reason, s.now())
	e.WorkerID = res.Ticket.AssignedWorkerID
	if err := s.Events.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.Logger.Warn().Err(err).Str("ticket_id", res.Ticket.ID).Str("to", string(res.Ticket.Status)).Msg("failed to publish status change")
	}
}

func (s *TicketService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
