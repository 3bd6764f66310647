package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potholeops/backend/internal/apperr"
)

func TestSelfTransitionAlwaysValid(t *testing.T) {
	for _, s := range All {
		res := Validate(s, s)
		assert.True(t, res.IsValid, "self transition for %s", s)
		assert.Empty(t, res.Reason)
	}
}

func TestResolvedIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusResolved))
	for _, s := range All {
		if s == StatusResolved {
			continue
		}
		assert.False(t, IsTerminal(s), "%s should not be terminal", s)
		res := Validate(StatusResolved, s)
		assert.False(t, res.IsValid, "RESOLVED -> %s", s)
		assert.Contains(t, res.Reason, "Valid transitions: none")
	}
}

func TestTransitionTable(t *testing.T) {
	allowed := map[Status][]Status{
		StatusDetected:             {StatusRanked, StatusRejected},
		StatusRanked:               {StatusAssigned, StatusRejected},
		StatusAssigned:             {StatusInProgress, StatusRanked, StatusRejected},
		StatusInProgress:           {StatusAwaitingVerification, StatusAssigned, StatusRejected},
		StatusAwaitingVerification: {StatusResolved, StatusRejected, StatusInProgress},
		StatusResolved:             {},
		StatusRejected:             {StatusRanked},
	}
	for from, targets := range allowed {
		for _, to := range All {
			want := from == to
			for _, a := range targets {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, Validate(from, to).IsValid, "%s -> %s", from, to)
		}
	}
}

func TestValidateReasonListsNextStates(t *testing.T) {
	res := Validate(StatusDetected, StatusResolved)
	require.False(t, res.IsValid)
	assert.Equal(t, "Cannot transition from DETECTED to RESOLVED. Valid transitions: RANKED, REJECTED", res.Reason)
}

func TestValidateWithContextWorkerRule(t *testing.T) {
	res := ValidateWithContext(StatusAssigned, StatusInProgress, Context{HasAssignedWorker: false})
	require.False(t, res.IsValid)
	assert.Equal(t, "Cannot start work without assigned worker", res.Reason)

	res = ValidateWithContext(StatusAssigned, StatusInProgress, Context{HasAssignedWorker: true})
	assert.True(t, res.IsValid)
}

func TestValidateWithContextProofRule(t *testing.T) {
	res := ValidateWithContext(StatusInProgress, StatusAwaitingVerification, Context{HasAssignedWorker: true})
	require.False(t, res.IsValid)
	assert.Equal(t, "Cannot request verification without uploading proof", res.Reason)

	res = ValidateWithContext(StatusInProgress, StatusAwaitingVerification, Context{HasAssignedWorker: true, HasProofUploaded: true})
	assert.True(t, res.IsValid)
}

func TestValidateWithContextBaseTableFirst(t *testing.T) {
	res := ValidateWithContext(StatusDetected, StatusInProgress, Context{})
	require.False(t, res.IsValid)
	assert.Contains(t, res.Reason, "Cannot transition from DETECTED to IN_PROGRESS")
}

func TestCheckReturnsTransitionError(t *testing.T) {
	err := Check(StatusRanked, StatusResolved, Context{})
	require.Error(t, err)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusRanked, te.From)
	assert.Equal(t, StatusResolved, te.To)
	assert.Equal(t, []Status{StatusAssigned, StatusRejected}, te.ValidNext)

	assert.NoError(t, Check(StatusRanked, StatusAssigned, Context{}))
}

func TestValidNextReturnsCopy(t *testing.T) {
	next := ValidNext(StatusRejected)
	next[0] = StatusResolved
	assert.Equal(t, []Status{StatusRanked}, ValidNext(StatusRejected))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" in_progress ")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)

	_, err = ParseStatus("DONE")
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestWorkflowStage(t *testing.T) {
	assert.Equal(t, Stage{Stage: "Repair", Progress: 65}, WorkflowStage(StatusInProgress))
	assert.Equal(t, 100, WorkflowStage(StatusResolved).Progress)
	assert.Equal(t, 0, WorkflowStage(StatusRejected).Progress)
	assert.Equal(t, "Unknown", WorkflowStage(Status("X")).Stage)
}

func TestNotifications(t *testing.T) {
	assert.Equal(t, Recipients{Worker: true}, Notifications(StatusRanked, StatusAssigned))
	assert.Equal(t, Recipients{Worker: true, Citizen: true}, Notifications(StatusAwaitingVerification, StatusResolved))
	assert.Equal(t, Recipients{Admin: true}, Notifications(StatusInProgress, StatusAwaitingVerification))
	assert.False(t, Notifications(StatusDetected, StatusRanked).Any())
}
