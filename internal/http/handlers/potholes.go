package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/models"
	"github.com/potholeops/backend/internal/service"
	"github.com/potholeops/backend/internal/severity"
)

type BBoxRequest struct {
	X      float64 `json:"x" validate:"gte=0,lte=1"`
	Y      float64 `json:"y" validate:"gte=0,lte=1"`
	Width  float64 `json:"width" validate:"gte=0,lte=1"`
	Height float64 `json:"height" validate:"gte=0,lte=1"`
}

type CreatePotholeRequest struct {
	Latitude   *float64    `json:"latitude" validate:"required,latitude"`
	Longitude  *float64    `json:"longitude" validate:"required,longitude"`
	Confidence *float64    `json:"confidence" validate:"required,gte=0,lte=1"`
	BBox       BBoxRequest `json:"bbox"`
	ClassLabel string      `json:"class_label" validate:"omitempty,max=64"`
}

// @Summary Register a detected pothole
// @Tags potholes
// @Accept json
// @Produce json
// @Param body body CreatePotholeRequest true "Detection"
// @Success 201 {object} models.Pothole
// @Failure 400 {object} map[string]any
// @Router /api/potholes [post]
func (h *Handler) CreatePothole(c *gin.Context) {
	var req CreatePotholeRequest
	if !h.bind(c, &req) {
		return
	}
	p, err := h.Triage.CreatePothole(c.Request.Context(), service.CreatePotholeInput{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Detection: models.Detection{
			Confidence: *req.Confidence,
			BBoxX:      req.BBox.X,
			BBoxY:      req.BBox.Y,
			BBoxWidth:  req.BBox.Width,
			BBoxHeight: req.BBox.Height,
			Class:      strings.TrimSpace(req.ClassLabel),
		},
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPothole(c *gin.Context) {
	p, err := h.Triage.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type NearbyQuery struct {
	PotholeID string   `form:"pothole_id"`
	Latitude  *float64 `form:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `form:"longitude" validate:"omitempty,longitude"`
	Radius    float64  `form:"radius" validate:"gte=0,lte=10000"`
}

// @Summary Ranked potholes without a ticket near a point
// @Tags potholes
// @Produce json
// @Param pothole_id query string false "Center on this pothole"
// @Param latitude query number false "Center latitude"
// @Param longitude query number false "Center longitude"
// @Param radius query number false "Radius in meters (default 500)"
// @Success 200 {object} map[string]any
// @Router /api/potholes/nearby [get]
func (h *Handler) NearbyPotholes(c *gin.Context) {
	var q NearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query", err.Error())
		return
	}
	if !h.validate(c, &q) {
		return
	}

	var center geo.Point
	if q.PotholeID != "" {
		p, err := h.Triage.Get(c.Request.Context(), q.PotholeID)
		if err != nil {
			h.fail(c, err)
			return
		}
		center = geo.Point{Lat: p.Latitude, Lon: p.Longitude}
	} else if q.Latitude != nil && q.Longitude != nil {
		center = geo.Point{Lat: *q.Latitude, Lon: *q.Longitude}
	} else {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Either pothole_id or latitude/longitude must be provided", nil)
		return
	}

	items, err := h.Triage.Nearby(c.Request.Context(), center, q.Radius)
	if err != nil {
		h.fail(c, err)
		return
	}
	if q.PotholeID != "" {
		items = excludePothole(items, q.PotholeID)
	}
	c.JSON(http.StatusOK, gin.H{"center": center, "count": len(items), "items": items})
}

// @Summary Refresh road context from the road data provider
// @Tags potholes
// @Produce json
// @Param id path string true "Pothole ID"
// @Success 200 {object} models.RoadContext
// @Router /api/potholes/{id}/road-info [post]
func (h *Handler) RefreshRoadInfo(c *gin.Context) {
	rc, err := h.Triage.RefreshRoadContext(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

// @Summary Rank a pothole
// @Tags potholes
// @Produce json
// @Param id path string true "Pothole ID"
// @Success 200 {object} service.Ranking
// @Router /api/potholes/{id}/rank [post]
func (h *Handler) RankPothole(c *gin.Context) {
	r, err := h.Triage.Rank(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type ScoreRequest struct {
	BBoxWidth          float64 `json:"bbox_width" validate:"gte=0,lte=1"`
	BBoxHeight         float64 `json:"bbox_height" validate:"gte=0,lte=1"`
	Confidence         float64 `json:"confidence" validate:"gte=0,lte=1"`
	RoadPriorityFactor float64 `json:"road_priority_factor" validate:"gte=0"`
	TrafficImportance  float64 `json:"traffic_importance" validate:"gte=0"`
}

// @Summary Score detection metrics without storing anything
// @Tags severity
// @Accept json
// @Produce json
// @Param body body ScoreRequest true "Inputs"
// @Success 200 {object} map[string]any
// @Router /api/severity/score [post]
func (h *Handler) ScoreSeverity(c *gin.Context) {
	var req ScoreRequest
	if !h.bind(c, &req) {
		return
	}
	res := h.Scorer.Calculate(severity.Input(req))
	c.JSON(http.StatusOK, gin.H{
		"ranking":     res,
		"description": severity.LevelDescription(res.PriorityLevel),
		"explanation": severity.Explain(res),
	})
}

// @Summary Rank every unranked pothole
// @Tags triage
// @Produce json
// @Success 200 {object} service.RunSummary
// @Router /api/triage/run [post]
func (h *Handler) RunTriage(c *gin.Context) {
	summary, err := h.Triage.RankPending(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func excludePothole(items []service.NearbyPothole, id string) []service.NearbyPothole {
	out := items[:0]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}
