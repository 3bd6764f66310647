package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("rank pothole: %w", Invalid("confidence", 1.4, "must be within [0,1]"))
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, "rank pothole: invalid confidence (1.4): must be within [0,1]", wrapped.Error())

	assert.True(t, IsNotFound(fmt.Errorf("route: %w", ErrNoPath)))
	assert.True(t, errors.Is(fmt.Errorf("route: %w", ErrNoRoadNetwork), ErrNoRoadNetwork))
	assert.True(t, IsConflict(&ConflictError{Reason: "taken"}))
	assert.True(t, IsForbidden(Forbidden("not yours")))
}

func TestExternalUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := External("osrm", cause)
	assert.True(t, IsExternal(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "osrm unavailable: connection refused", err.Error())
}

func TestNotFoundMessages(t *testing.T) {
	assert.Equal(t, "ticket t1 not found", NotFound("ticket", "t1").Error())
	assert.Equal(t, "route not found", NotFound("route", "").Error())
	assert.Equal(t, "no road network in area", ErrNoRoadNetwork.Error())
}
