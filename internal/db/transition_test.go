package db

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potholeops/backend/internal/apperr"
	"github.com/potholeops/backend/internal/lifecycle"
	"github.com/potholeops/backend/internal/models"
)

var at = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func ticketIn(status lifecycle.Status) models.Ticket {
	return models.Ticket{ID: "t1", Number: "TICKET-20240501-00001", Status: status, Version: 3}
}

func strPtr(s string) *string { return &s }

func TestApplyTransitionAssignsAndStamps(t *testing.T) {
	res, err := ApplyTransition(ticketIn(lifecycle.StatusRanked), 0, TransitionRequest{
		To:        lifecycle.StatusAssigned,
		WorkerID:  strPtr("w1"),
		ChangedBy: "dispatcher",
		Reason:    "Assigned to worker",
	}, at)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, lifecycle.StatusRanked, res.From)
	assert.Equal(t, lifecycle.StatusAssigned, res.Ticket.Status)
	assert.Equal(t, "w1", *res.Ticket.AssignedWorkerID)
	assert.Equal(t, at, *res.Ticket.AssignedAt)
	assert.Equal(t, 4, res.Ticket.Version)

	require.NotNil(t, res.History)
	assert.Equal(t, lifecycle.StatusRanked, *res.History.FromStatus)
	assert.Equal(t, lifecycle.StatusAssigned, res.History.ToStatus)
	assert.Equal(t, "dispatcher", res.History.ChangedBy)
	assert.NotEmpty(t, res.History.ID)
}

func TestApplyTransitionRequiresWorkerForStart(t *testing.T) {
	_, err := ApplyTransition(ticketIn(lifecycle.StatusAssigned), 0, TransitionRequest{To: lifecycle.StatusInProgress}, at)
	var te *lifecycle.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "Cannot start work without assigned worker", te.Reason)
}

func TestApplyTransitionProofInRequestSatisfiesGuard(t *testing.T) {
	tk := ticketIn(lifecycle.StatusInProgress)
	tk.AssignedWorkerID = strPtr("w1")

	_, err := ApplyTransition(tk, 0, TransitionRequest{To: lifecycle.StatusAwaitingVerification}, at)
	require.Error(t, err)

	res, err := ApplyTransition(tk, 0, TransitionRequest{
		To:    lifecycle.StatusAwaitingVerification,
		Proof: &models.WorkProof{ID: "p1", TicketID: "t1", WorkerID: "w1", PhotoURL: "https://img/1.jpg"},
	}, at)
	require.NoError(t, err)
	assert.Equal(t, at, *res.Ticket.CompletedAt)

	res, err = ApplyTransition(tk, 2, TransitionRequest{To: lifecycle.StatusAwaitingVerification}, at)
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestApplyTransitionSelfIsNoop(t *testing.T) {
	tk := ticketIn(lifecycle.StatusResolved)
	res, err := ApplyTransition(tk, 1, TransitionRequest{To: lifecycle.StatusResolved}, at)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Nil(t, res.History)
	assert.Equal(t, tk.Version, res.Ticket.Version)
}

func TestApplyTransitionRejectsFromTerminal(t *testing.T) {
	_, err := ApplyTransition(ticketIn(lifecycle.StatusResolved), 1, TransitionRequest{To: lifecycle.StatusRejected}, at)
	var te *lifecycle.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Empty(t, te.ValidNext)
	assert.Contains(t, te.Reason, "Valid transitions: none")
}

func TestApplyTransitionVersionMismatch(t *testing.T) {
	stale := 2
	_, err := ApplyTransition(ticketIn(lifecycle.StatusRanked), 0, TransitionRequest{To: lifecycle.StatusRejected, ExpectedVersion: &stale}, at)
	assert.True(t, apperr.IsConflict(err))
}

func TestApplyTransitionUnassignsOnReturnToRanked(t *testing.T) {
	tk := ticketIn(lifecycle.StatusAssigned)
	tk.AssignedWorkerID = strPtr("w1")
	tk.AssignedAt = &at
	res, err := ApplyTransition(tk, 0, TransitionRequest{To: lifecycle.StatusRanked, Reason: "Worker unavailable"}, at)
	require.NoError(t, err)
	assert.Nil(t, res.Ticket.AssignedWorkerID)
	assert.Nil(t, res.Ticket.AssignedAt)
	assert.Equal(t, "w1", *tk.AssignedWorkerID, "input ticket is not mutated")
}

func TestApplyTransitionUnknownStatus(t *testing.T) {
	_, err := ApplyTransition(ticketIn(lifecycle.StatusRanked), 0, TransitionRequest{To: "CLOSED"}, at)
	assert.True(t, apperr.IsValidation(err))
}
