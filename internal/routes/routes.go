// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gnss-service/internal/config"
	"gnss-service/internal/conn"
	"gnss-service/internal/database"
	"gnss-service/internal/handler"
	"gnss-service/internal/middleware"
	"gnss-service/internal/repository"
	"gnss-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config    *config.Config
	logger    *zap.Logger
	db        *database.DB
	manager   *conn.Manager
	trackRepo repository.TrackRepository
	wsHandler *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db and trackRepo are nil
// when the track store is disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	manager *conn.Manager,
	trackRepo repository.TrackRepository,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:    config,
		logger:    logger,
		db:        db,
		manager:   manager,
		trackRepo: trackRepo,
		wsHandler: wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Create Gin engine
	router := gin.New()

	// Add middleware
	r.addMiddleware(router)

	// Add routes
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	// Recovery middleware
	router.Use(middleware.RecoveryMiddleware(r.logger))

	// Request ID middleware
	router.Use(middleware.RequestIDMiddleware())

	// Logging middleware
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	// CORS middleware
	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	// Create handlers
	healthHandler := handler.NewHealthHandler(r.db, r.manager, r.config, r.logger)
	connectionHandler := handler.NewConnectionHandler(r.manager, r.config.Receiver, r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(router.Group(""))

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	connectionHandler.RegisterRoutes(apiV1)

	// Track routes only exist when the track store is configured
	if r.trackRepo != nil {
		trackHandler := handler.NewTrackHandler(r.trackRepo, r.logger)
		trackHandler.RegisterRoutes(apiV1)
	}

	// WebSocket routes
	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	r.logger.Info("All routes configured successfully")
}
