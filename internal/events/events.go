// Package events publishes ticket status-change notifications.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/potholeops/backend/internal/lifecycle"
)

const TypeStatusChanged = "ticket.status_changed"

type StatusChanged struct {
	ID           string               `json:"id"`
	Type         string               `json:"type"`
	TicketID     string               `json:"ticket_id"`
	TicketNumber string               `json:"ticket_number"`
	From         lifecycle.Status     `json:"from_status"`
	To           lifecycle.Status     `json:"to_status"`
	ChangedBy    string               `json:"changed_by,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	WorkerID     *string              `json:"worker_id,omitempty"`
	Recipients   lifecycle.Recipients `json:"recipients"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

func NewStatusChanged(ticketID, number string, from, to lifecycle.Status, changedBy, reason string, at time.Time) StatusChanged {
	return StatusChanged{
		ID:           uuid.NewString(),
		Type:         TypeStatusChanged,
		TicketID:     ticketID,
		TicketNumber: number,
		From:         from,
		To:           to,
		ChangedBy:    changedBy,
		Reason:       reason,
		Recipients:   lifecycle.Notifications(from, to),
		OccurredAt:   at.UTC(),
	}
}

func (e StatusChanged) Payload() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e StatusChanged) error
}

// LogPublisher writes events to the service log. Used when no broker is
// configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(_ context.Context, e StatusChanged) error {
	p.Logger.Info().
		Str("event_id", e.ID).
		Str("ticket_id", e.TicketID).
		Str("from", string(e.From)).
		Str("to", string(e.To)).
		Bool("notify_worker", e.Recipients.Worker).
		Bool("notify_citizen", e.Recipients.Citizen).
		Bool("notify_admin", e.Recipients.Admin).
		Msg("ticket status changed")
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	Events []StatusChanged
}

func (r *Recorder) Publish(_ context.Context, e StatusChanged) error {
	r.Events = append(r.Events, e)
	return nil
}
