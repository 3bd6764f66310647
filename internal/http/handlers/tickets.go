package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/potholeops/backend/internal/service"
)

type CreateTicketRequest struct {
	PotholeIDs []string `json:"pothole_ids" validate:"required,min=1,max=50,dive,required"`
	CreatedBy  string   `json:"created_by"`
}

// @Summary Create a ticket from ranked potholes
// @Tags tickets
// @Accept json
// @Produce json
// @Param body body CreateTicketRequest true "Potholes"
// @Success 201 {object} models.Ticket
// @Failure 409 {object} map[string]any
// @Router /api/tickets [post]
func (h *Handler) CreateTicket(c *gin.Context) {
	var req CreateTicketRequest
	if !h.bind(c, &req) {
		return
	}
	by := req.CreatedBy
	if by == "" {
		by = "system"
	}
	t, err := h.Tickets.Create(c.Request.Context(), req.PotholeIDs, by)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// @Summary Ticket with potholes, worker, proofs and history
// @Tags tickets
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} models.TicketDetails
// @Router /api/tickets/{id} [get]
func (h *Handler) TicketDetails(c *gin.Context) {
	d, err := h.Tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary Workflow stage and allowed next statuses
// @Tags tickets
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} service.Workflow
// @Router /api/tickets/{id}/workflow [get]
func (h *Handler) TicketWorkflow(c *gin.Context) {
	wf, err := h.Tickets.Workflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wf)
}

type AssignRequest struct {
	WorkerID        string `json:"worker_id"`
	AssignedBy      string `json:"assigned_by"`
	ExpectedVersion *int   `json:"expected_version" validate:"omitempty,min=1"`
}

// @Summary Assign a worker; omit worker_id to auto-pick
// @Tags tickets
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param body body AssignRequest false "Assignment"
// @Success 200 {object} service.AssignResult
// @Failure 409 {object} map[string]any
// @Router /api/tickets/{id}/assign [post]
func (h *Handler) AssignTicket(c *gin.Context) {
	var req AssignRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	res, err := h.Tickets.Assign(c.Request.Context(), service.AssignInput{
		TicketID:        c.Param("id"),
		WorkerID:        req.WorkerID,
		ChangedBy:       req.AssignedBy,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type StatusRequest struct {
	Status          string `json:"status" validate:"required"`
	Reason          string `json:"reason" validate:"max=500"`
	ChangedBy       string `json:"changed_by"`
	ExpectedVersion *int   `json:"expected_version" validate:"omitempty,min=1"`
}

// @Summary Change ticket status
// @Tags tickets
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param body body StatusRequest true "Status change"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/tickets/{id}/status [post]
func (h *Handler) ChangeStatus(c *gin.Context) {
	var req StatusRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.Tickets.ChangeStatus(c.Request.Context(), service.StatusInput{
		TicketID:        c.Param("id"),
		Status:          req.Status,
		Reason:          req.Reason,
		ChangedBy:       req.ChangedBy,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket":      res.Ticket,
		"from_status": res.From,
		"changed":     res.Changed,
		"history":     res.History,
	})
}

type ProofRequest struct {
	WorkerID  string   `json:"worker_id" validate:"required"`
	PhotoURL  string   `json:"photo_url" validate:"required,url"`
	Notes     string   `json:"notes" validate:"max=2000"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

// @Summary Submit proof of repair and request verification
// @Tags tickets
// @Accept json
// @Produce json
// @Param id path string true "Ticket ID"
// @Param body body ProofRequest true "Proof"
// @Success 200 {object} models.Ticket
// @Router /api/tickets/{id}/proof [post]
func (h *Handler) SubmitProof(c *gin.Context) {
	var req ProofRequest
	if !h.bind(c, &req) {
		return
	}
	t, err := h.Tickets.SubmitProof(c.Request.Context(), service.ProofInput{
		TicketID:  c.Param("id"),
		WorkerID:  req.WorkerID,
		PhotoURL:  req.PhotoURL,
		Notes:     req.Notes,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary Stored job route as KML
// @Tags tickets
// @Produce application/vnd.google-earth.kml+xml
// @Param id path string true "Ticket ID"
// @Success 200 {string} string
// @Router /api/tickets/{id}/route.kml [get]
func (h *Handler) TicketRouteKML(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Dispatch.RouteKML(c.Request.Context(), c.Param("id"), &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="route.kml"`)
	c.Data(http.StatusOK, "application/vnd.google-earth.kml+xml", buf.Bytes())
}

type ReviewRequest struct {
	Action          string `json:"action" validate:"required,oneof=APPROVE REJECT approve reject"`
	Notes           string `json:"notes" validate:"max=2000"`
	ReviewedBy      string `json:"reviewed_by"`
	ExpectedVersion *int   `json:"expected_version" validate:"omitempty,min=1"`
}

// @Summary Approve or reject completed work
// @Tags admin
// @Accept json
// @Produce json
// @Param ticketId path string true "Ticket ID"
// @Param body body ReviewRequest true "Review"
// @Success 200 {object} models.Ticket
// @Failure 409 {object} map[string]any
// @Router /api/admin/review/{ticketId} [post]
func (h *Handler) ReviewTicket(c *gin.Context) {
	var req ReviewRequest
	if !h.bind(c, &req) {
		return
	}
	by := req.ReviewedBy
	if by == "" {
		by = "admin"
	}
	t, err := h.Tickets.Review(c.Request.Context(), service.ReviewInput{
		TicketID:        c.Param("ticketId"),
		Action:          req.Action,
		Notes:           req.Notes,
		ReviewedBy:      by,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
