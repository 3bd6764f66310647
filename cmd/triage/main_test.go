package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunCommands(t *testing.T) {
	assert.Error(t, run(nil))
	assert.Error(t, run([]string{"bogus"}))
	assert.NoError(t, run([]string{"score", "--width", "0.4", "--height", "0.2", "-c", "0.92", "--priority-factor", "5", "--traffic", "4"}))
	assert.Error(t, run([]string{"score", "--unknown-flag"}))
}

func TestPathRejectsBadCoordinates(t *testing.T) {
	err := run([]string{"path", "--from-lat", "91", "--from-lon", "0", "--to-lat", "0", "--to-lon", "0", "--mock"})
	assert.ErrorContains(t, err, "start")
}

func TestPathOnMockGrid(t *testing.T) {
	assert.NoError(t, run([]string{"path", "--from-lat", "12.9716", "--from-lon", "77.5946", "--to-lat", "12.9750", "--to-lon", "77.5990", "--mock"}))
}
