package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/db"
	"github.com/potholeops/backend/internal/events"
	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/lifecycle"
	"github.com/potholeops/backend/internal/models"
	"github.com/potholeops/backend/internal/routing"
	"github.com/potholeops/backend/internal/safety"
	"github.com/potholeops/backend/internal/severity"
)

type memStore struct {
	mu       sync.Mutex
	potholes map[string]models.Pothole
	roads    map[string]models.RoadContext
	tickets  map[string]models.Ticket
	workers  map[string]models.Worker
	proofs   map[string]int
	history  map[string][]models.StatusHistoryEntry
	hazards  []safety.Hazard
	runs     map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		potholes: map[string]models.Pothole{},
		roads:    map[string]models.RoadContext{},
		tickets:  map[string]models.Ticket{},
		workers:  map[string]models.Worker{},
		proofs:   map[string]int{},
		history:  map[string][]models.StatusHistoryEntry{},
		runs:     map[string]string{},
	}
}

func (m *memStore) InsertPothole(_ context.Context, p models.Pothole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.potholes[p.ID] = p
	return nil
}

func (m *memStore) GetPothole(_ context.Context, id string) (models.Pothole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.potholes[id]
	if !ok {
		return models.Pothole{}, apperr.NotFound("pothole", id)
	}
	if rc, ok := m.roads[id]; ok {
		p.RoadContext = &rc
	}
	return p, nil
}

func (m *memStore) UpdatePriority(_ context.Context, id string, score int, level severity.Level, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.potholes[id]
	if !ok {
		return apperr.NotFound("pothole", id)
	}
	p.PriorityScore, p.PriorityLevel, p.RankedAt = &score, &level, &at
	m.potholes[id] = p
	return nil
}

func (m *memStore) ListUnrankedPotholes(_ context.Context, _ int) ([]models.Pothole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Pothole
	for _, p := range m.potholes {
		if p.PriorityScore == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListUnticketedRanked(_ context.Context, south, west, north, east float64) ([]models.Pothole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Pothole
	for _, p := range m.potholes {
		if p.TicketID == nil && p.PriorityScore != nil &&
			p.Latitude >= south && p.Latitude <= north && p.Longitude >= west && p.Longitude <= east {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) UpsertRoadContext(_ context.Context, rc models.RoadContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roads[rc.PotholeID] = rc
	return nil
}

func (m *memStore) CreateRun(_ context.Context, status string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs["run-1"] = status
	return "run-1", nil
}

func (m *memStore) FinishRun(_ context.Context, id, status string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id] = status
	return nil
}

func (m *memStore) CreateTicket(_ context.Context, number string, ids []string, changedBy string) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		p, ok := m.potholes[id]
		if !ok {
			return models.Ticket{}, apperr.NotFound("pothole", id)
		}
		if p.TicketID != nil {
			return models.Ticket{}, &apperr.ConflictError{Reason: "pothole already has a ticket", IDs: []string{id}}
		}
	}
	t := models.Ticket{ID: "t-" + number, Number: number, Status: lifecycle.StatusRanked, PotholeIDs: ids, Version: 2}
	for _, id := range ids {
		p := m.potholes[id]
		p.TicketID = &t.ID
		m.potholes[id] = p
	}
	m.tickets[t.ID] = t
	return t, nil
}

func (m *memStore) GetTicket(_ context.Context, id string) (models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return models.Ticket{}, apperr.NotFound("ticket", id)
	}
	return t, nil
}

func (m *memStore) GetTicketDetails(ctx context.Context, id string) (models.TicketDetails, error) {
	t, err := m.GetTicket(ctx, id)
	if err != nil {
		return models.TicketDetails{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.TicketDetails{Ticket: t, History: m.history[id]}, nil
}

func (m *memStore) ListPotholesByTicket(_ context.Context, ticketID string) ([]models.Pothole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Pothole
	for _, id := range m.tickets[ticketID].PotholeIDs {
		out = append(out, m.potholes[id])
	}
	return out, nil
}

func (m *memStore) TransitionTicket(_ context.Context, req db.TransitionRequest) (db.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[req.TicketID]
	if !ok {
		return db.TransitionResult{}, apperr.NotFound("ticket", req.TicketID)
	}
	if req.WorkerID != nil {
		w, ok := m.workers[*req.WorkerID]
		if !ok {
			return db.TransitionResult{}, apperr.NotFound("worker", *req.WorkerID)
		}
		if !w.IsActive {
			return db.TransitionResult{}, apperr.Invalid("worker_id", w.ID, "worker is not active")
		}
	}
	res, err := db.ApplyTransition(t, m.proofs[t.ID], req, time.Now().UTC())
	if err != nil {
		return db.TransitionResult{}, err
	}
	if req.Proof != nil {
		m.proofs[t.ID]++
	}
	m.tickets[t.ID] = res.Ticket
	if res.History != nil {
		m.history[t.ID] = append(m.history[t.ID], *res.History)
	}
	return res, nil
}

func (m *memStore) GetWorker(_ context.Context, id string) (models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return models.Worker{}, apperr.NotFound("worker", id)
	}
	return w, nil
}

func (m *memStore) ListActiveWorkers(_ context.Context) ([]models.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Worker
	for _, w := range m.workers {
		if w.IsActive {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memStore) UpdateWorkerLocation(_ context.Context, id string, lat, lon float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return apperr.NotFound("worker", id)
	}
	w.CurrentLatitude, w.CurrentLongitude, w.LocationAt = &lat, &lon, &at
	m.workers[id] = w
	return nil
}

func (m *memStore) ListVerifiedHazards(_ context.Context, _, _, _, _ float64) ([]safety.Hazard, error) {
	return m.hazards, nil
}

type stubRoads struct {
	rc  models.RoadContext
	err error
}

func (s stubRoads) Lookup(_ context.Context, _, _ float64) (models.RoadContext, error) {
	return s.rc, s.err
}

type stubRouter struct {
	routes []routing.Route
	err    error
	calls  [][]geo.Point
}

func (s *stubRouter) Routes(_ context.Context, pts []geo.Point, _ bool) ([]routing.Route, error) {
	s.calls = append(s.calls, pts)
	return s.routes, s.err
}

type stubJobRouter struct {
	route JobRoute
	err   error
}

func (s stubJobRouter) JobRoute(_ context.Context, from, to geo.Point) (JobRoute, error) {
	r := s.route
	r.From, r.To = from, to
	return r, s.err
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, events.StatusChanged) error {
	f.calls++
	return errors.New("broker down")
}
