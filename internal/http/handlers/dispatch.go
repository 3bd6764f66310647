package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/potholeops/backend/internal/geo"
)

type StartJobRequest struct {
	TicketID string `json:"ticket_id" validate:"required"`
}

// @Summary Start a repair job and generate the route to it
// @Tags workers
// @Accept json
// @Produce json
// @Param id path string true "Worker ID"
// @Param body body StartJobRequest true "Ticket"
// @Success 200 {object} service.StartJobResult
// @Failure 403 {object} map[string]any
// @Router /api/workers/{id}/start-job [post]
func (h *Handler) StartJob(c *gin.Context) {
	var req StartJobRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Tickets.StartJob(c.Request.Context(), c.Param("id"), req.TicketID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Update worker location
// @Tags workers
// @Accept json
// @Produce json
// @Param id path string true "Worker ID"
// @Param body body PointRequest true "Location"
// @Success 200 {object} models.Worker
// @Router /api/workers/{id}/location [put]
func (h *Handler) UpdateLocation(c *gin.Context) {
	var req PointRequest
	if !h.bind(c, &req) {
		return
	}
	w, err := h.Tickets.UpdateWorkerLocation(c.Request.Context(), c.Param("id"), *req.Latitude, *req.Longitude)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type TripRequest struct {
	TicketIDs []string `json:"ticket_ids" validate:"required,min=1,max=25,dive,required"`
}

// @Summary Order several assigned tickets into one trip
// @Tags workers
// @Accept json
// @Produce json
// @Param id path string true "Worker ID"
// @Param body body TripRequest true "Tickets"
// @Success 200 {object} service.TripPlan
// @Router /api/workers/{id}/trip [post]
func (h *Handler) PlanTrip(c *gin.Context) {
	var req TripRequest
	if !h.bind(c, &req) {
		return
	}
	plan, err := h.Dispatch.PlanTrip(c.Request.Context(), c.Param("id"), req.TicketIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

type RouteRequest struct {
	Waypoints []PointRequest `json:"waypoints" validate:"required,min=2,max=25,dive"`
}

// @Summary Route through waypoints in order
// @Tags routes
// @Accept json
// @Produce json
// @Param body body RouteRequest true "Waypoints"
// @Success 200 {object} map[string]any
// @Failure 502 {object} map[string]any
// @Router /api/routes/generate [post]
func (h *Handler) GenerateRoute(c *gin.Context) {
	var req RouteRequest
	if !h.bind(c, &req) {
		return
	}
	pts := make([]geo.Point, len(req.Waypoints))
	for i, w := range req.Waypoints {
		pts[i] = w.Point()
	}
	r, err := h.Dispatch.GenerateRoute(c.Request.Context(), pts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"route": r})
}

type PairRequest struct {
	From PointRequest `json:"from"`
	To   PointRequest `json:"to"`
}

// @Summary Shortest path over the local road graph
// @Tags routes
// @Accept json
// @Produce json
// @Param body body PairRequest true "Endpoints"
// @Success 200 {object} graph.Route
// @Failure 404 {object} map[string]any
// @Router /api/routes/shortest [post]
func (h *Handler) ShortestPath(c *gin.Context) {
	var req PairRequest
	if !h.bind(c, &req) {
		return
	}
	r, err := h.Dispatch.ShortestPath(c.Request.Context(), req.From.Point(), req.To.Point())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// @Summary Alternative routes ranked by hazard exposure
// @Tags routes
// @Accept json
// @Produce json
// @Param body body PairRequest true "Endpoints"
// @Success 200 {object} service.EmergencyResult
// @Router /api/routes/emergency [post]
func (h *Handler) EmergencyRoutes(c *gin.Context) {
	var req PairRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Dispatch.EmergencyRoutes(c.Request.Context(), req.From.Point(), req.To.Point())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
