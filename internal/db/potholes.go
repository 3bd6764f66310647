package db

import (
	"context"
	"time"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/models"
	"github.com/potholeops/backend/internal/safety"
	"github.com/potholeops/backend/internal/severity"
)

const potholeColumns = `id, latitude, longitude, confidence, bbox_x, bbox_y, bbox_width, bbox_height,
	detection_class, priority_score, priority_level, ticket_id, created_at, ranked_at`

func (s *Store) InsertPothole(ctx context.Context, p models.Pothole) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO potholes (id, latitude, longitude, confidence, bbox_x, bbox_y, bbox_width, bbox_height, detection_class, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, p.ID, p.Latitude, p.Longitude, p.Detection.Confidence, p.Detection.BBoxX, p.Detection.BBoxY,
		p.Detection.BBoxWidth, p.Detection.BBoxHeight, p.Detection.Class, p.CreatedAt)
	return err
}

func (s *Store) GetPothole(ctx context.Context, id string) (models.Pothole, error) {
	p, err := scanPothole(s.Pool.QueryRow(ctx, `SELECT `+potholeColumns+` FROM potholes WHERE id = $1`, id))
	if err != nil {
		return models.Pothole{}, notFound(err, "pothole", id)
	}
	rc, err := s.GetRoadContext(ctx, id)
	if err == nil {
		p.RoadContext = &rc
	}
	return p, nil
}

func (s *Store) UpdatePriority(ctx context.Context, id string, score int, level severity.Level, rankedAt time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE potholes SET priority_score = $1, priority_level = $2, ranked_at = $3 WHERE id = $4
	`, score, string(level), rankedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("pothole", id)
	}
	return nil
}

func (s *Store) ListUnrankedPotholes(ctx context.Context, limit int) ([]models.Pothole, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	return s.queryPotholes(ctx, s.Pool, `SELECT `+potholeColumns+` FROM potholes
		WHERE priority_score IS NULL ORDER BY created_at ASC LIMIT $1`, limit)
}

// ListUnticketedRanked returns ranked potholes without a ticket inside the
// box (south, west, north, east).
func (s *Store) ListUnticketedRanked(ctx context.Context, south, west, north, east float64) ([]models.Pothole, error) {
	return s.queryPotholes(ctx, s.Pool, `SELECT `+potholeColumns+` FROM potholes
		WHERE ticket_id IS NULL AND priority_score IS NOT NULL
			AND latitude BETWEEN $1 AND $3 AND longitude BETWEEN $2 AND $4
		ORDER BY priority_score DESC, created_at ASC`, south, west, north, east)
}

func (s *Store) ListPotholesByTicket(ctx context.Context, ticketID string) ([]models.Pothole, error) {
	return s.queryPotholes(ctx, s.Pool, `SELECT `+potholeColumns+` FROM potholes
		WHERE ticket_id = $1 ORDER BY priority_score DESC NULLS LAST, created_at ASC`, ticketID)
}

// ListVerifiedHazards returns ranked potholes linked to a ticket that is not
// yet resolved, inside the box (south, west, north, east).
func (s *Store) ListVerifiedHazards(ctx context.Context, south, west, north, east float64) ([]safety.Hazard, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT p.id, p.latitude, p.longitude, p.priority_level
		FROM potholes p
		JOIN tickets t ON t.id = p.ticket_id
		WHERE p.priority_level IS NOT NULL AND t.status <> 'RESOLVED'
			AND p.latitude BETWEEN $1 AND $3 AND p.longitude BETWEEN $2 AND $4
	`, south, west, north, east)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []safety.Hazard
	for rows.Next() {
		var (
			h     safety.Hazard
			level string
		)
		if err := rows.Scan(&h.ID, &h.Point.Lat, &h.Point.Lon, &level); err != nil {
			return nil, err
		}
		h.Level = severity.Level(level)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) GetRoadContext(ctx context.Context, potholeID string) (models.RoadContext, error) {
	var rc models.RoadContext
	err := s.Pool.QueryRow(ctx, `
		SELECT pothole_id, road_name, road_type, speed_limit, traffic_importance, priority_factor, osm_way_id, source, fetched_at
		FROM road_info WHERE pothole_id = $1
	`, potholeID).Scan(&rc.PotholeID, &rc.RoadName, &rc.RoadType, &rc.SpeedLimit, &rc.TrafficImportance,
		&rc.PriorityFactor, &rc.OSMWayID, &rc.Source, &rc.FetchedAt)
	if err != nil {
		return models.RoadContext{}, notFound(err, "road context", potholeID)
	}
	return rc, nil
}

func (s *Store) UpsertRoadContext(ctx context.Context, rc models.RoadContext) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO road_info (pothole_id, road_name, road_type, speed_limit, traffic_importance, priority_factor, osm_way_id, source, fetched_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (pothole_id) DO UPDATE SET
			road_name = EXCLUDED.road_name,
			road_type = EXCLUDED.road_type,
			speed_limit = EXCLUDED.speed_limit,
			traffic_importance = EXCLUDED.traffic_importance,
			priority_factor = EXCLUDED.priority_factor,
			osm_way_id = EXCLUDED.osm_way_id,
			source = EXCLUDED.source,
			fetched_at = EXCLUDED.fetched_at
	`, rc.PotholeID, rc.RoadName, rc.RoadType, rc.SpeedLimit, rc.TrafficImportance, rc.PriorityFactor, rc.OSMWayID, rc.Source, rc.FetchedAt)
	return err
}

func (s *Store) queryPotholes(ctx context.Context, q querier, sql string, args ...any) ([]models.Pothole, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Pothole
	for rows.Next() {
		p, err := scanPothole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPothole(row rowScanner) (models.Pothole, error) {
	var (
		p     models.Pothole
		level *string
	)
	if err := row.Scan(&p.ID, &p.Latitude, &p.Longitude, &p.Detection.Confidence, &p.Detection.BBoxX, &p.Detection.BBoxY,
		&p.Detection.BBoxWidth, &p.Detection.BBoxHeight, &p.Detection.Class, &p.PriorityScore, &level,
		&p.TicketID, &p.CreatedAt, &p.RankedAt); err != nil {
		return models.Pothole{}, err
	}
	if level != nil {
		l := severity.Level(*level)
		p.PriorityLevel = &l
	}
	return p, nil
}
