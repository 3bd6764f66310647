package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	RedisURL     string `mapstructure:"REDIS_URL"`
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	RoadProvider    string        `mapstructure:"ROAD_PROVIDER"`
	OverpassURLs    string        `mapstructure:"OVERPASS_URLS"`
	OSRMURL         string        `mapstructure:"OSRM_URL"`
	UserAgent       string        `mapstructure:"USER_AGENT"`
	ExternalTimeout time.Duration `mapstructure:"EXTERNAL_TIMEOUT"`

	RoadInfoRadius    float64       `mapstructure:"ROAD_INFO_RADIUS_M"`
	GraphRadius       float64       `mapstructure:"GRAPH_RADIUS_M"`
	GraphMaxRadius    float64       `mapstructure:"GRAPH_MAX_RADIUS_M"`
	GraphCacheTTL     time.Duration `mapstructure:"GRAPH_CACHE_TTL"`
	HazardProximity   float64       `mapstructure:"HAZARD_PROXIMITY_M"`
	NearbyRadius      float64       `mapstructure:"NEARBY_RADIUS_M"`
	TriageConcurrency int           `mapstructure:"TRIAGE_CONCURRENCY"`

	PriorityFactorMax        float64 `mapstructure:"PRIORITY_FACTOR_MAX"`
	TrafficImportanceMax     float64 `mapstructure:"TRAFFIC_IMPORTANCE_MAX"`
	DefaultTrafficImportance float64 `mapstructure:"DEFAULT_TRAFFIC_IMPORTANCE"`
	DefaultPriorityFactor    float64 `mapstructure:"DEFAULT_PRIORITY_FACTOR"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	// AutomaticEnv only feeds Unmarshal for keys viper already knows about
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")

	v.SetDefault("KAFKA_TOPIC", "pothole.ticket-events")
	v.SetDefault("ROAD_PROVIDER", "overpass")
	v.SetDefault("OVERPASS_URLS", "https://overpass-api.de/api/interpreter,https://overpass.kumi.systems/api/interpreter,https://overpass.openstreetmap.ru/api/interpreter")
	v.SetDefault("OSRM_URL", "https://router.project-osrm.org")
	v.SetDefault("USER_AGENT", "pothole-backend/1.0")
	v.SetDefault("EXTERNAL_TIMEOUT", "15s")

	v.SetDefault("ROAD_INFO_RADIUS_M", 50)
	v.SetDefault("GRAPH_RADIUS_M", 2000)
	v.SetDefault("GRAPH_MAX_RADIUS_M", 15000)
	v.SetDefault("GRAPH_CACHE_TTL", "30m")
	v.SetDefault("HAZARD_PROXIMITY_M", 50)
	v.SetDefault("NEARBY_RADIUS_M", 500)
	v.SetDefault("TRIAGE_CONCURRENCY", 4)

	v.SetDefault("PRIORITY_FACTOR_MAX", 6.0)
	v.SetDefault("TRAFFIC_IMPORTANCE_MAX", 5.0)
	v.SetDefault("DEFAULT_TRAFFIC_IMPORTANCE", 2.0)
	v.SetDefault("DEFAULT_PRIORITY_FACTOR", 2.0)
}

// OverpassMirrors splits OVERPASS_URLS, dropping blanks.
func (c Config) OverpassMirrors() []string {
	var out []string
	for _, u := range strings.Split(c.OverpassURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func (c Config) UseMockRoads() bool {
	return strings.EqualFold(c.RoadProvider, "mock")
}
