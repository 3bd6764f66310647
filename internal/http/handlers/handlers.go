package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/db"
	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/graph"
	"github.com/potholeops/backend/internal/lifecycle"
	"github.com/potholeops/backend/internal/models"
	"github.com/potholeops/backend/internal/routing"
	"github.com/potholeops/backend/internal/service"
	"github.com/potholeops/backend/internal/severity"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type RunReader interface {
	GetLatestRun(ctx context.Context) (models.Run, error)
}

type Triage interface {
	CreatePothole(ctx context.Context, in service.CreatePotholeInput) (models.Pothole, error)
	Get(ctx context.Context, id string) (models.Pothole, error)
	RefreshRoadContext(ctx context.Context, potholeID string) (models.RoadContext, error)
	Rank(ctx context.Context, potholeID string) (service.Ranking, error)
	RankPending(ctx context.Context) (service.RunSummary, error)
	Nearby(ctx context.Context, center geo.Point, radiusMeters float64) ([]service.NearbyPothole, error)
}

type Tickets interface {
	Create(ctx context.Context, potholeIDs []string, changedBy string) (models.Ticket, error)
	Get(ctx context.Context, id string) (models.TicketDetails, error)
	Workflow(ctx context.Context, id string) (service.Workflow, error)
	Assign(ctx context.Context, in service.AssignInput) (service.AssignResult, error)
	StartJob(ctx context.Context, workerID, ticketID string) (service.StartJobResult, error)
	SubmitProof(ctx context.Context, in service.ProofInput) (models.Ticket, error)
	Review(ctx context.Context, in service.ReviewInput) (models.Ticket, error)
	ChangeStatus(ctx context.Context, in service.StatusInput) (db.TransitionResult, error)
	UpdateWorkerLocation(ctx context.Context, workerID string, lat, lon float64) (models.Worker, error)
}

type Dispatch interface {
	GenerateRoute(ctx context.Context, waypoints []geo.Point) (routing.Route, error)
	ShortestPath(ctx context.Context, from, to geo.Point) (graph.Route, error)
	EmergencyRoutes(ctx context.Context, from, to geo.Point) (service.EmergencyResult, error)
	PlanTrip(ctx context.Context, workerID string, ticketIDs []string) (service.TripPlan, error)
	RouteKML(ctx context.Context, ticketID string, w io.Writer) error
}

type Handler struct {
	Store     Pinger
	Runs      RunReader
	Triage    Triage
	Tickets   Tickets
	Dispatch  Dispatch
	Scorer    severity.Scorer
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Latest triage run
// @Tags runs
// @Produce json
// @Success 200 {object} models.Run
// @Router /api/runs/latest [get]
func (h *Handler) RunsLatest(c *gin.Context) {
	result, err := h.Runs.GetLatestRun(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// bind decodes the JSON body into req and validates it. On failure the
// response is already written.
func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	return h.validate(c, req)
}

func (h *Handler) validate(c *gin.Context, req any) bool {
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

// fail maps service errors onto the error envelope.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		te  *lifecycle.TransitionError
		ve  *apperr.ValidationError
		nfe *apperr.NotFoundError
		ce  *apperr.ConflictError
	)
	switch {
	case errors.As(err, &te):
		next := te.ValidNext
		if next == nil {
			next = []lifecycle.Status{}
		}
		writeError(c, http.StatusConflict, "INVALID_TRANSITION", te.Reason, gin.H{
			"from":       te.From,
			"to":         te.To,
			"valid_next": next,
		})
	case errors.As(err, &ve):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", ve.Error(), gin.H{"field": ve.Field})
	case errors.As(err, &nfe):
		writeError(c, http.StatusNotFound, "NOT_FOUND", nfe.Error(), nil)
	case apperr.IsForbidden(err):
		writeError(c, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.As(err, &ce):
		writeError(c, http.StatusConflict, "CONFLICT", ce.Reason, gin.H{"ids": ce.IDs})
	case apperr.IsExternal(err):
		writeError(c, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil)
	default:
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

type PointRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

func (p PointRequest) Point() geo.Point {
	return geo.Point{Lat: *p.Latitude, Lon: *p.Longitude}
}
