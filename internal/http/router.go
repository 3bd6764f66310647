package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/potholeops/backend/internal/config"
	"github.com/potholeops/backend/internal/http/handlers"
	"github.com/potholeops/backend/internal/http/middleware"
	"github.com/potholeops/backend/internal/severity"

	_ "github.com/potholeops/backend/docs"
)

type Deps struct {
	Store    handlers.Pinger
	Runs     handlers.RunReader
	Triage   handlers.Triage
	Tickets  handlers.Tickets
	Dispatch handlers.Dispatch
	Scorer   severity.Scorer
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.AdminKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		for _, o := range strings.Split(cfg.CORSAllowed, ",") {
			if o = strings.TrimSpace(o); o != "" {
				corsCfg.AllowOrigins = append(corsCfg.AllowOrigins, o)
			}
		}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:     deps.Store,
		Runs:      deps.Runs,
		Triage:    deps.Triage,
		Tickets:   deps.Tickets,
		Dispatch:  deps.Dispatch,
		Scorer:    deps.Scorer,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/potholes", h.CreatePothole)
		api.GET("/potholes/nearby", h.NearbyPotholes)
		api.GET("/potholes/:id", h.GetPothole)
		api.POST("/potholes/:id/road-info", h.RefreshRoadInfo)
		api.POST("/potholes/:id/rank", h.RankPothole)

		api.POST("/severity/score", h.ScoreSeverity)

		api.POST("/tickets", h.CreateTicket)
		api.GET("/tickets/:id", h.TicketDetails)
		api.GET("/tickets/:id/workflow", h.TicketWorkflow)
		api.POST("/tickets/:id/assign", h.AssignTicket)
		api.POST("/tickets/:id/status", h.ChangeStatus)
		api.POST("/tickets/:id/proof", h.SubmitProof)
		api.GET("/tickets/:id/route.kml", h.TicketRouteKML)

		api.POST("/workers/:id/start-job", h.StartJob)
		api.PUT("/workers/:id/location", h.UpdateLocation)
		api.POST("/workers/:id/trip", h.PlanTrip)

		api.POST("/routes/generate", h.GenerateRoute)
		api.POST("/routes/shortest", h.ShortestPath)
		api.POST("/routes/emergency", h.EmergencyRoutes)

		api.GET("/runs/latest", h.RunsLatest)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/admin/review/:ticketId", h.ReviewTicket)
		admin.POST("/triage/run", h.RunTriage)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
