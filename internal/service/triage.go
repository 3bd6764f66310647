package service

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/models"
	"github.com/potholeops/backend/internal/severity"
)

const (
	RunStatusRunning = "RUNNING"
	RunStatusDone    = "DONE"
	RunStatusFailed  = "FAILED"
)

const (
	DefaultConcurrency  = 4
	DefaultNearbyRadius = 500.0
	DefaultBatchLimit   = 200
)

type PotholeStore interface {
	InsertPothole(ctx context.Context, p models.Pothole) error
	GetPothole(ctx context.Context, id string) (models.Pothole, error)
	UpdatePriority(ctx context.Context, id string, score int, level severity.Level, rankedAt time.Time) error
	ListUnrankedPotholes(ctx context.Context, limit int) ([]models.Pothole, error)
	ListUnticketedRanked(ctx context.Context, south, west, north, east float64) ([]models.Pothole, error)
	UpsertRoadContext(ctx context.Context, rc models.RoadContext) error
}

type RunStore interface {
	CreateRun(ctx context.Context, status string) (string, error)
	FinishRun(ctx context.Context, runID string, status string, summary []byte) error
}

type RoadLookup interface {
	Lookup(ctx context.Context, lat, lon float64) (models.RoadContext, error)
}

// TriageService turns detections into ranked potholes.
type TriageService struct {
	Potholes     PotholeStore
	Runs         RunStore
	Roads        RoadLookup
	Scorer       severity.Scorer
	Concurrency  int
	NearbyRadius float64
	BatchLimit   int
	Logger       zerolog.Logger
	Now          func() time.Time
}

type CreatePotholeInput struct {
	Latitude  float64
	Longitude float64
	Detection models.Detection
}

type Ranking struct {
	Pothole     models.Pothole  `json:"pothole"`
	Result      severity.Result `json:"ranking"`
	Explanation string          `json:"explanation"`
}

type NearbyPothole struct {
	models.Pothole
	DistanceMeters float64 `json:"distance_meters"`
}

type RunSummary struct {
	RunID  string           `json:"run_id,omitempty"`
	Events []map[string]any `json:"events"`
	Counts map[string]any   `json:"counts"`
}

func (s *TriageService) CreatePothole(ctx context.Context, in CreatePotholeInput) (models.Pothole, error) {
	if err := geo.Validate(in.Latitude, in.Longitude); err != nil {
		return models.Pothole{}, err
	}
	d := in.Detection
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return models.Pothole{}, apperr.Invalid("confidence", d.Confidence, "must be within [0,1]")
	}
	for field, v := range map[string]float64{"bbox_width": d.BBoxWidth, "bbox_height": d.BBoxHeight, "bbox_x": d.BBoxX, "bbox_y": d.BBoxY} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return models.Pothole{}, apperr.Invalid(field, v, "must be a fraction of the image within [0,1]")
		}
	}
	if d.Class == "" {
		d.Class = "pothole"
	}

	p := models.Pothole{
		ID:        uuid.NewString(),
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Detection: d,
		CreatedAt: s.now(),
	}
	if err := s.Potholes.InsertPothole(ctx, p); err != nil {
		return models.Pothole{}, err
	}
	s.Logger.Info().Str("pothole_id", p.ID).Float64("confidence", d.Confidence).Msg("pothole created")
	return p, nil
}

func (s *TriageService) Get(ctx context.Context, id string) (models.Pothole, error) {
	return s.Potholes.GetPothole(ctx, id)
}

// RefreshRoadContext looks up and stores the road context of a pothole.
func (s *TriageService) RefreshRoadContext(ctx context.Context, potholeID string) (models.RoadContext, error) {
	p, err := s.Potholes.GetPothole(ctx, potholeID)
	if err != nil {
		return models.RoadContext{}, err
	}
	return s.refresh(ctx, p)
}

func (s *TriageService) refresh(ctx context.Context, p models.Pothole) (models.RoadContext, error) {
	rc, err := s.Roads.Lookup(ctx, p.Latitude, p.Longitude)
	if err != nil {
		return models.RoadContext{}, err
	}
	rc.PotholeID = p.ID
	if err := s.Potholes.UpsertRoadContext(ctx, rc); err != nil {
		return models.RoadContext{}, err
	}
	return rc, nil
}

// Rank scores a pothole, fetching its road context first when none is stored.
func (s *TriageService) Rank(ctx context.Context, potholeID string) (Ranking, error) {
	p, err := s.Potholes.GetPothole(ctx, potholeID)
	if err != nil {
		return Ranking{}, err
	}
	return s.rank(ctx, p)
}

func (s *TriageService) rank(ctx context.Context, p models.Pothole) (Ranking, error) {
	if p.RoadContext == nil {
		rc, err := s.refresh(ctx, p)
		if err != nil {
			return Ranking{}, err
		}
		p.RoadContext = &rc
	}

	res := s.Scorer.Calculate(severity.Input{
		BBoxWidth:          p.Detection.BBoxWidth,
		BBoxHeight:         p.Detection.BBoxHeight,
		Confidence:         p.Detection.Confidence,
		RoadPriorityFactor: p.RoadContext.PriorityFactor,
		TrafficImportance:  p.RoadContext.TrafficImportance,
	})
	at := s.now()
	if err := s.Potholes.UpdatePriority(ctx, p.ID, res.PriorityScore, res.PriorityLevel, at); err != nil {
		return Ranking{}, err
	}
	score, level := res.PriorityScore, res.PriorityLevel
	p.PriorityScore = &score
	p.PriorityLevel = &level
	p.RankedAt = &at

	s.Logger.Debug().Str("pothole_id", p.ID).Int("score", score).Str("level", string(level)).Msg("pothole ranked")
	return Ranking{Pothole: p, Result: res, Explanation: severity.Explain(res)}, nil
}

// RankPending ranks every unranked pothole with bounded concurrency. One
// pothole failing does not stop the others.
func (s *TriageService) RankPending(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{Counts: map[string]any{}}
	start := time.Now()

	if s.Runs != nil {
		id, err := s.Runs.CreateRun(ctx, RunStatusRunning)
		if err != nil {
			return RunSummary{}, err
		}
		summary.RunID = id
	}

	pending, err := s.Potholes.ListUnrankedPotholes(ctx, s.batchLimit())
	if err != nil {
		s.finish(ctx, summary, RunStatusFailed)
		return RunSummary{}, err
	}
	summary.Events = append(summary.Events, map[string]any{
		"type":    "load",
		"message": "Unranked potholes loaded",
		"count":   len(pending),
		"time":    s.now(),
	})

	type outcome struct {
		level    severity.Level
		fallback bool
		err      error
	}
	outcomes := make([]outcome, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, p := range pending {
		i, p := i, p
		g.Go(func() error {
			r, err := s.rank(gctx, p)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.Logger.Warn().Err(err).Str("pothole_id", p.ID).Msg("ranking failed")
				outcomes[i] = outcome{err: err}
				return nil
			}
			outcomes[i] = outcome{
				level:    r.Result.PriorityLevel,
				fallback: r.Pothole.RoadContext != nil && r.Pothole.RoadContext.Source == models.RoadSourceDefault,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.finish(ctx, summary, RunStatusFailed)
		return RunSummary{}, err
	}

	var (
		ranked   int
		failed   int
		fallback int
		byLevel  = map[string]int{}
		failures = map[string]int{}
	)
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			failures[errorKind(o.err)]++
			continue
		}
		ranked++
		byLevel[string(o.level)]++
		if o.fallback {
			fallback++
		}
	}

	summary.Events = append(summary.Events, map[string]any{
		"type":             "road_context",
		"default_fallback": fallback,
		"time":             s.now(),
	})
	summary.Events = append(summary.Events, map[string]any{
		"type":       "ranking",
		"ranked":     ranked,
		"failed":     failed,
		"elapsed_ms": time.Since(start).Milliseconds(),
		"time":       s.now(),
	})

	summary.Counts["potholes_processed"] = len(pending)
	summary.Counts["ranked"] = ranked
	summary.Counts["failed"] = failed
	summary.Counts["default_road_context"] = fallback
	summary.Counts["by_level"] = byLevel
	summary.Counts["failure_kinds"] = failures

	s.finish(ctx, summary, RunStatusDone)
	s.Logger.Info().Int("ranked", ranked).Int("failed", failed).Msg("triage run finished")
	return summary, nil
}

func (s *TriageService) finish(ctx context.Context, summary RunSummary, status string) {
	if s.Runs == nil || summary.RunID == "" {
		return
	}
	payload, _ := json.Marshal(summary)
	if err := s.Runs.FinishRun(context.WithoutCancel(ctx), summary.RunID, status, payload); err != nil {
		s.Logger.Warn().Err(err).Str("run_id", summary.RunID).Msg("failed to record run")
	}
}

// Nearby lists ranked potholes without a ticket within radius meters of
// center, closest first.
func (s *TriageService) Nearby(ctx context.Context, center geo.Point, radiusMeters float64) ([]NearbyPothole, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = s.NearbyRadius
	}
	if radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadius
	}
	south, west, north, east := geo.BoundingBox(center, radiusMeters)
	candidates, err := s.Potholes.ListUnticketedRanked(ctx, south, west, north, east)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyPothole, 0, len(candidates))
	for _, p := range candidates {
		d := geo.HaversineMeters(center.Lat, center.Lon, p.Latitude, p.Longitude)
		if d <= radiusMeters {
			out = append(out, NearbyPothole{Pothole: p, DistanceMeters: math.Round(d*10) / 10})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}

func (s *TriageService) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return DefaultConcurrency
}

func (s *TriageService) batchLimit() int {
	if s.BatchLimit > 0 {
		return s.BatchLimit
	}
	return DefaultBatchLimit
}

func (s *TriageService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func errorKind(err error) string {
	switch {
	case apperr.IsValidation(err):
		return "validation"
	case apperr.IsNotFound(err):
		return "not_found"
	case apperr.IsExternal(err):
		return "external"
	default:
		return "internal"
	}
}
