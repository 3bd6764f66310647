package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/potholeops/backend/internal/models"
)

func (s *Store) CreateRun(ctx context.Context, status string) (string, error) {
	id := uuid.NewString()
	_, err := s.Pool.Exec(ctx, `INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`, id, status, time.Now().UTC())
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE runs SET status = $1, summary = $2, finished_at = NOW() WHERE id = $3`, status, summary, runID)
	return err
}

func (s *Store) GetLatestRun(ctx context.Context) (models.Run, error) {
	var r models.Run
	err := s.Pool.QueryRow(ctx, `SELECT id, status, started_at, finished_at, summary FROM runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&r.ID, &r.Status, &r.StartedAt, &r.FinishedAt, &r.Summary)
	if err != nil {
		return models.Run{}, notFound(err, "run", "latest")
	}
	return r, nil
}
