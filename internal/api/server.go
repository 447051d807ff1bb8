package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/airlogistic/config"
	"example.com/backstage/services/airlogistic/internal/tracing"
)

// Server is the HTTP server for the API
type Server struct {
	cfg           config.Config
	router        *gin.Engine
	httpServer    *http.Server
	flightHandler *FlightHandler
	cargoHandler  *CargoHandler
	recordHandler *RecordHandler
	tracer        tracing.Tracer
}

// NewServer creates a new API server
func NewServer(cfg config.Config, flightHandler *FlightHandler, cargoHandler *CargoHandler, recordHandler *RecordHandler, tracer tracing.Tracer) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		cfg:           cfg,
		router:        gin.New(),
		flightHandler: flightHandler,
		cargoHandler:  cargoHandler,
		recordHandler: recordHandler,
		tracer:        tracer,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware adds middleware to the router
func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware())

	if s.cfg.Server.CorsEnabled {
		s.router.Use(CORSMiddleware())
	}

	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware())
	s.router.Use(ActorMiddleware())

	if s.tracer != nil && s.tracer.Application() != nil {
		s.router.Use(nrgin.Middleware(s.tracer.Application()))
	}
}

// setupRoutes defines the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	if s.cfg.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := s.router.Group("/api/v1")

	flights := v1.Group("/flights")
	{
		flights.GET("", s.flightHandler.list)
		flights.POST("", s.flightHandler.create)
		flights.GET("/:id", s.flightHandler.get)
		flights.PUT("/:id", s.flightHandler.update)
		flights.DELETE("/:id", s.flightHandler.delete)
		flights.POST("/:id/transitions/:transition", s.flightHandler.transition)
	}

	cargoFlights := v1.Group("/cargo-flights")
	{
		cargoFlights.GET("", s.cargoHandler.listFlights)
		cargoFlights.POST("", s.cargoHandler.createFlight)
		cargoFlights.GET("/:id", s.cargoHandler.getFlight)
		cargoFlights.PUT("/:id", s.cargoHandler.updateFlight)
		cargoFlights.DELETE("/:id", s.cargoHandler.deleteFlight)
		cargoFlights.GET("/:id/bins", s.cargoHandler.flightBins)
		cargoFlights.POST("/:id/transitions/:transition", s.cargoHandler.transitionFlight)
	}

	bins := v1.Group("/bins")
	{
		bins.GET("", s.cargoHandler.listBins)
		bins.POST("", s.cargoHandler.createBin)
		bins.GET("/available", s.cargoHandler.availableBins)
		bins.GET("/overloaded", s.cargoHandler.overloadedBins)
		bins.GET("/:id", s.cargoHandler.getBin)
		bins.PUT("/:id", s.cargoHandler.updateBin)
		bins.DELETE("/:id", s.cargoHandler.deleteBin)
		bins.POST("/:id/assign", s.cargoHandler.assignBin)
		bins.POST("/:id/unassign", s.cargoHandler.unassignBin)
		bins.POST("/:id/reset-weight", s.cargoHandler.resetBinWeight)
		bins.POST("/:id/maintenance", s.cargoHandler.binMaintenance)
	}

	records := v1.Group("/records")
	{
		records.GET("", s.recordHandler.list)
		records.POST("", s.recordHandler.create)
		records.GET("/stats", s.recordHandler.stats)
		records.POST("/bulk", s.recordHandler.bulk)
		records.GET("/:id", s.recordHandler.get)
		records.PUT("/:id", s.recordHandler.update)
		records.DELETE("/:id", s.recordHandler.delete)
		records.POST("/:id/transitions/:transition", s.recordHandler.transition)
		records.POST("/:id/lines", s.recordHandler.addLine)
		records.PUT("/:id/lines/:lineId", s.recordHandler.updateLine)
		records.DELETE("/:id/lines/:lineId", s.recordHandler.deleteLine)
		records.POST("/:id/tags", s.recordHandler.addTags)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.Timeout,
		WriteTimeout: s.cfg.Server.Timeout,
	}

	log.Info().Msgf("HTTP server starting on %s", s.cfg.Server.Address)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
