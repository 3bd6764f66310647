package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/lifecycle"
	"github.com/potholeops/backend/internal/models"
)

const ticketColumns = `id, ticket_number, status, assigned_worker_id, notes, version, route_data, estimated_eta,
	created_at, assigned_at, started_at, completed_at, resolved_at`

// TransitionRequest asks for one status change. WorkerID and Proof are
// applied inside the same transaction before the guard runs, so assigning
// and moving to ASSIGNED (or uploading proof and requesting verification)
// succeed or fail together.
type TransitionRequest struct {
	TicketID        string
	To              lifecycle.Status
	ChangedBy       string
	Reason          string
	ExpectedVersion *int
	// RequireStatus rejects the request unless the ticket is currently in it.
	RequireStatus   *lifecycle.Status
	WorkerID        *string
	Proof           *models.WorkProof
	RouteData       []byte
	ETA             *time.Time
}

type TransitionResult struct {
	Ticket  models.Ticket
	From    lifecycle.Status
	Changed bool
	History *models.StatusHistoryEntry
}

// ApplyTransition computes the ticket that results from req without touching
// storage. proofCount is the number of proofs already stored.
func ApplyTransition(t models.Ticket, proofCount int, req TransitionRequest, now time.Time) (TransitionResult, error) {
	if req.ExpectedVersion != nil && *req.ExpectedVersion != t.Version {
		return TransitionResult{}, &apperr.ConflictError{
			Reason: fmt.Sprintf("ticket %s changed concurrently: expected version %d, found %d", t.ID, *req.ExpectedVersion, t.Version),
			IDs:    []string{t.ID},
		}
	}
	if !req.To.Valid() {
		return TransitionResult{}, apperr.Invalid("status", req.To, "unknown ticket status")
	}

	from := t.Status
	if req.RequireStatus != nil && from != *req.RequireStatus {
		return TransitionResult{}, &lifecycle.TransitionError{
			From:      from,
			To:        req.To,
			Reason:    fmt.Sprintf("Ticket must be %s. Current status: %s", *req.RequireStatus, from),
			ValidNext: lifecycle.ValidNext(from),
		}
	}
	next := t
	if req.WorkerID != nil {
		next.AssignedWorkerID = req.WorkerID
	}
	if req.Proof != nil {
		proofCount++
	}
	if err := lifecycle.Check(from, req.To, lifecycle.Context{
		HasAssignedWorker: next.AssignedWorkerID != nil,
		HasProofUploaded:  proofCount > 0,
	}); err != nil {
		return TransitionResult{}, err
	}
	if req.RouteData != nil {
		next.RouteData = req.RouteData
	}
	if req.ETA != nil {
		next.EstimatedETA = req.ETA
	}
	if from == req.To {
		return TransitionResult{Ticket: next, From: from}, nil
	}

	at := now
	next.Status = req.To
	next.Version++
	switch req.To {
	case lifecycle.StatusRanked:
		next.AssignedWorkerID = nil
		next.AssignedAt = nil
	case lifecycle.StatusAssigned:
		next.AssignedAt = &at
	case lifecycle.StatusInProgress:
		next.StartedAt = &at
	case lifecycle.StatusAwaitingVerification:
		next.CompletedAt = &at
	case lifecycle.StatusResolved:
		next.ResolvedAt = &at
	}

	fromStatus := from
	return TransitionResult{
		Ticket:  next,
		From:    from,
		Changed: true,
		History: &models.StatusHistoryEntry{
			ID:         uuid.NewString(),
			TicketID:   t.ID,
			FromStatus: &fromStatus,
			ToStatus:   req.To,
			ChangedBy:  req.ChangedBy,
			Reason:     req.Reason,
			CreatedAt:  now,
		},
	}, nil
}

// TransitionTicket locks the ticket row, validates the change against the
// locked state and writes the new state plus its history entry in one
// transaction.
func (s *Store) TransitionTicket(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	var res TransitionResult
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		t, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, req.TicketID))
		if err != nil {
			return notFound(err, "ticket", req.TicketID)
		}
		if req.WorkerID != nil {
			if err := requireActiveWorker(ctx, tx, *req.WorkerID); err != nil {
				return err
			}
		}
		var proofs int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM work_proofs WHERE ticket_id = $1`, t.ID).Scan(&proofs); err != nil {
			return err
		}

		res, err = ApplyTransition(t, proofs, req, time.Now().UTC())
		if err != nil {
			return err
		}
		if req.Proof != nil {
			if err := insertProof(ctx, tx, *req.Proof); err != nil {
				return err
			}
		}
		if err := updateTicket(ctx, tx, res.Ticket, t.Version); err != nil {
			return err
		}
		if res.History != nil {
			return insertHistory(ctx, tx, *res.History)
		}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	res.Ticket.PotholeIDs, err = s.potholeIDs(ctx, res.Ticket.ID)
	return res, err
}

// CreateTicket groups ranked, unticketed potholes under a new ticket. The
// ticket starts DETECTED and moves to RANKED in the same transaction.
func (s *Store) CreateTicket(ctx context.Context, number string, potholeIDs []string, changedBy string) (models.Ticket, error) {
	now := time.Now().UTC()
	t := models.Ticket{
		ID:         uuid.NewString(),
		Number:     number,
		Status:     lifecycle.StatusDetected,
		PotholeIDs: potholeIDs,
		Version:    1,
		CreatedAt:  now,
	}

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockTicketablePotholes(ctx, tx, potholeIDs); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO tickets (id, ticket_number, status, version, created_at) VALUES ($1,$2,$3,$4,$5)
		`, t.ID, t.Number, string(t.Status), t.Version, t.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE potholes SET ticket_id = $1 WHERE id = ANY($2)`, t.ID, potholeIDs); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, models.StatusHistoryEntry{
			ID:        uuid.NewString(),
			TicketID:  t.ID,
			ToStatus:  lifecycle.StatusDetected,
			ChangedBy: changedBy,
			Reason:    "Ticket created",
			CreatedAt: now,
		}); err != nil {
			return err
		}

		res, err := ApplyTransition(t, 0, TransitionRequest{
			TicketID:  t.ID,
			To:        lifecycle.StatusRanked,
			ChangedBy: changedBy,
			Reason:    "All potholes ranked",
		}, now)
		if err != nil {
			return err
		}
		if err := updateTicket(ctx, tx, res.Ticket, t.Version); err != nil {
			return err
		}
		t = res.Ticket
		return insertHistory(ctx, tx, *res.History)
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return t, nil
}

func lockTicketablePotholes(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return apperr.Invalid("pothole_ids", ids, "at least one pothole is required")
	}
	rows, err := tx.Query(ctx, `SELECT id, ticket_id, priority_score FROM potholes WHERE id = ANY($1) FOR UPDATE`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	found := map[string]bool{}
	var ticketed, unranked []string
	for rows.Next() {
		var (
			id       string
			ticketID *string
			score    *int
		)
		if err := rows.Scan(&id, &ticketID, &score); err != nil {
			return err
		}
		found[id] = true
		if ticketID != nil {
			ticketed = append(ticketed, id)
		}
		if score == nil {
			unranked = append(unranked, id)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if !found[id] {
			return apperr.NotFound("pothole", id)
		}
	}
	if len(ticketed) > 0 {
		return &apperr.ConflictError{Reason: "pothole already linked to a ticket", IDs: ticketed}
	}
	if len(unranked) > 0 {
		return apperr.Invalid("pothole_ids", unranked, "potholes must be ranked before ticketing")
	}
	return nil
}

func updateTicket(ctx context.Context, tx pgx.Tx, t models.Ticket, prevVersion int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE tickets SET status = $1, assigned_worker_id = $2, version = $3, route_data = $4, estimated_eta = $5,
			assigned_at = $6, started_at = $7, completed_at = $8, resolved_at = $9
		WHERE id = $10 AND version = $11
	`, string(t.Status), t.AssignedWorkerID, t.Version, t.RouteData, t.EstimatedETA,
		t.AssignedAt, t.StartedAt, t.CompletedAt, t.ResolvedAt, t.ID, prevVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &apperr.ConflictError{Reason: "ticket changed concurrently", IDs: []string{t.ID}}
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, h models.StatusHistoryEntry) error {
	var from *string
	if h.FromStatus != nil {
		s := string(*h.FromStatus)
		from = &s
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO ticket_status_history (id, ticket_id, from_status, to_status, changed_by, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, h.ID, h.TicketID, from, string(h.ToStatus), h.ChangedBy, h.Reason, h.CreatedAt)
	return err
}

func (s *Store) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	t, err := scanTicket(s.Pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if err != nil {
		return models.Ticket{}, notFound(err, "ticket", id)
	}
	t.PotholeIDs, err = s.potholeIDs(ctx, id)
	return t, err
}

func (s *Store) GetTicketDetails(ctx context.Context, id string) (models.TicketDetails, error) {
	t, err := s.GetTicket(ctx, id)
	if err != nil {
		return models.TicketDetails{}, err
	}
	d := models.TicketDetails{Ticket: t}
	if d.Potholes, err = s.ListPotholesByTicket(ctx, id); err != nil {
		return models.TicketDetails{}, err
	}
	if t.AssignedWorkerID != nil {
		w, err := s.GetWorker(ctx, *t.AssignedWorkerID)
		if err != nil {
			return models.TicketDetails{}, err
		}
		d.Worker = &w
	}
	if d.Proofs, err = s.ListProofs(ctx, id); err != nil {
		return models.TicketDetails{}, err
	}
	if d.History, err = s.ListHistory(ctx, id); err != nil {
		return models.TicketDetails{}, err
	}
	return d, nil
}

func (s *Store) ListHistory(ctx context.Context, ticketID string) ([]models.StatusHistoryEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, ticket_id, from_status, to_status, changed_by, reason, created_at
		FROM ticket_status_history WHERE ticket_id = $1 ORDER BY seq ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StatusHistoryEntry
	for rows.Next() {
		var (
			h    models.StatusHistoryEntry
			from *string
			to   string
		)
		if err := rows.Scan(&h.ID, &h.TicketID, &from, &to, &h.ChangedBy, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		if from != nil {
			f := lifecycle.Status(*from)
			h.FromStatus = &f
		}
		h.ToStatus = lifecycle.Status(to)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) potholeIDs(ctx context.Context, ticketID string) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id FROM potholes WHERE ticket_id = $1 ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanTicket(row rowScanner) (models.Ticket, error) {
	var (
		t      models.Ticket
		status string
	)
	if err := row.Scan(&t.ID, &t.Number, &status, &t.AssignedWorkerID, &t.Notes, &t.Version, &t.RouteData, &t.EstimatedETA,
		&t.CreatedAt, &t.AssignedAt, &t.StartedAt, &t.CompletedAt, &t.ResolvedAt); err != nil {
		return models.Ticket{}, err
	}
	t.Status = lifecycle.Status(status)
	return t, nil
}
