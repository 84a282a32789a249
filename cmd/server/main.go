// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gnss-service/internal/config"
	"gnss-service/internal/conn"
	"gnss-service/internal/database"
	"gnss-service/internal/datalog"
	"gnss-service/internal/decode"
	"gnss-service/internal/handler"
	"gnss-service/internal/repository"
	"gnss-service/internal/routes"
	"gnss-service/internal/stream"
	"gnss-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	manager   *conn.Manager
	trackRepo repository.TrackRepository
	wsHandler *handler.WebSocketHandler
}

func main() {
	// Initialize application
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Start the application
	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "gnss-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	// Initialize components
	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initializeStream(); err != nil {
		return nil, fmt.Errorf("failed to initialize stream pipeline: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeDatabase sets up the optional track store and runs
// migrations
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Track store disabled, skipping database initialization")
		return nil
	}

	db, err := database.NewConnection(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.trackRepo = repository.NewTrackRepository(db, app.logger)

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeStream wires the decode/dispatch pipeline: connection
// manager, datalog sinks, console feed and event broadcasting
func (app *Application) initializeStream() error {
	filter, err := decode.ParseFilter(app.config.Receiver.ProtocolFilter)
	if err != nil {
		return err
	}

	eventBus := handler.NewEventBus(app.logger)
	go eventBus.Start()

	var sinks datalog.MultiSink
	if app.config.Datalog.Enabled {
		sinks = append(sinks, datalog.NewFileSink(app.config.Datalog.Dir, app.logger))
	}
	if app.config.Track.Enabled && app.trackRepo != nil {
		recorder := datalog.NewTrackRecorder(app.trackRepo, app.logger)
		recorder.SetPublisher(eventBus)
		sinks = append(sinks, recorder)
	}

	var sink datalog.Sink
	if len(sinks) > 0 {
		sink = sinks
	}

	app.manager = conn.NewManager(filter, app.config.Receiver.PollInterval, sink, app.logger)

	// WebSocket layer doubles as the console sink; lifecycle events
	// flow through the bus before fanning out to event clients
	app.wsHandler = handler.NewWebSocketHandler(app.logger)
	app.manager.SetConsole(app.wsHandler)
	app.manager.AddObserver(handler.NewStreamEventHandler(eventBus, app.logger))

	go func() {
		for event := range eventBus.SubscribeAll() {
			app.wsHandler.BroadcastStreamEvent(event)
		}
	}()

	app.logger.Info("Stream pipeline initialized",
		zap.String("protocol_filter", string(filter)),
		zap.Duration("poll_interval", app.config.Receiver.PollInterval),
		zap.Bool("datalog", app.config.Datalog.Enabled),
		zap.Bool("track", app.config.Track.Enabled),
	)
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.manager,
		app.trackRepo,
		app.wsHandler,
	)

	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)

	return nil
}

// waitForShutdown waits for shutdown signal and performs graceful
// shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "gnss-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	// Close the receiver stream before taking the API down so sinks
	// flush their session files
	if err := app.manager.Disconnect(); err != nil {
		app.logger.Error("Stream disconnect error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	// Flush logger
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}

	app.logger.Info("Application shutdown completed")
}

func (app *Application) Start() error {
	// Start server in goroutine
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Auto-connect the configured receiver, if any
	if app.config.Receiver.Port != "" {
		app.autoConnect()
	}

	// Wait for interrupt signal
	app.waitForShutdown()

	return nil
}

// autoConnect opens the receiver configured at startup; failure is
// logged, not fatal, the API can connect later
func (app *Application) autoConnect() {
	cfg := app.config.Receiver
	err := app.manager.Connect(&stream.Config{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		app.logger.Warn("Startup receiver connect failed",
			zap.Error(err),
			zap.String("port", cfg.Port),
		)
	}
}
