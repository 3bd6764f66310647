package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/models"
)

func (s *Store) InsertWorker(ctx context.Context, w models.Worker) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO workers (id, employee_id, name, current_latitude, current_longitude, is_active, location_updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, w.ID, w.EmployeeID, w.Name, w.CurrentLatitude, w.CurrentLongitude, w.IsActive, w.LocationAt)
	return err
}

func (s *Store) GetWorker(ctx context.Context, id string) (models.Worker, error) {
	var w models.Worker
	err := s.Pool.QueryRow(ctx, `
		SELECT id, employee_id, name, current_latitude, current_longitude, is_active, location_updated_at
		FROM workers WHERE id = $1
	`, id).Scan(&w.ID, &w.EmployeeID, &w.Name, &w.CurrentLatitude, &w.CurrentLongitude, &w.IsActive, &w.LocationAt)
	if err != nil {
		return models.Worker{}, notFound(err, "worker", id)
	}
	return w, nil
}

func (s *Store) UpdateWorkerLocation(ctx context.Context, id string, lat, lon float64, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE workers SET current_latitude = $1, current_longitude = $2, location_updated_at = $3 WHERE id = $4
	`, lat, lon, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("worker", id)
	}
	return nil
}

// ListActiveWorkers returns active workers with the number of tickets they
// currently hold in ASSIGNED or IN_PROGRESS.
func (s *Store) ListActiveWorkers(ctx context.Context) ([]models.Worker, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT w.id, w.employee_id, w.name, w.current_latitude, w.current_longitude, w.is_active, w.location_updated_at,
			COUNT(t.id) AS open_tickets
		FROM workers w
		LEFT JOIN tickets t ON t.assigned_worker_id = w.id AND t.status IN ('ASSIGNED', 'IN_PROGRESS')
		WHERE w.is_active
		GROUP BY w.id
		ORDER BY w.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Worker
	for rows.Next() {
		var w models.Worker
		if err := rows.Scan(&w.ID, &w.EmployeeID, &w.Name, &w.CurrentLatitude, &w.CurrentLongitude, &w.IsActive, &w.LocationAt, &w.OpenTickets); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func requireActiveWorker(ctx context.Context, tx pgx.Tx, id string) error {
	var active bool
	err := tx.QueryRow(ctx, `SELECT is_active FROM workers WHERE id = $1`, id).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("worker", id)
	}
	if err != nil {
		return err
	}
	if !active {
		return apperr.Invalid("worker_id", id, "worker is not active")
	}
	return nil
}

func insertProof(ctx context.Context, tx pgx.Tx, p models.WorkProof) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO work_proofs (id, ticket_id, worker_id, photo_url, notes, latitude, longitude, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, p.TicketID, p.WorkerID, p.PhotoURL, p.Notes, p.Latitude, p.Longitude, p.SubmittedAt)
	return err
}

func (s *Store) ListProofs(ctx context.Context, ticketID string) ([]models.WorkProof, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, ticket_id, worker_id, photo_url, notes, latitude, longitude, submitted_at
		FROM work_proofs WHERE ticket_id = $1 ORDER BY submitted_at ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WorkProof
	for rows.Next() {
		var p models.WorkProof
		if err := rows.Scan(&p.ID, &p.TicketID, &p.WorkerID, &p.PhotoURL, &p.Notes, &p.Latitude, &p.Longitude, &p.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
