package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.GraphCacheTTL)
	assert.Equal(t, 50.0, cfg.RoadInfoRadius)
	assert.Equal(t, 6.0, cfg.PriorityFactorMax)
	assert.Equal(t, 2.0, cfg.DefaultTrafficImportance)
	assert.Len(t, cfg.OverpassMirrors(), 3)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ROAD_PROVIDER", "MOCK")
	t.Setenv("HAZARD_PROXIMITY_M", "75")
	t.Setenv("OVERPASS_URLS", " http://a/api ,, http://b/api")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.UseMockRoads())
	assert.Equal(t, 75.0, cfg.HazardProximity)
	assert.Equal(t, []string{"http://a/api", "http://b/api"}, cfg.OverpassMirrors())
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}
