package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/casetrack/internal/backend"
	"github.com/ternarybob/casetrack/internal/common"
	"github.com/ternarybob/casetrack/internal/handlers"
	"github.com/ternarybob/casetrack/internal/interfaces"
	"github.com/ternarybob/casetrack/internal/models"
	"github.com/ternarybob/casetrack/internal/services/events"
	"github.com/ternarybob/casetrack/internal/services/maintenance"
	"github.com/ternarybob/casetrack/internal/storage/badger"
	"github.com/ternarybob/casetrack/internal/tracker"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService interfaces.EventService

	// Job tracking
	Tracker *tracker.Manager

	// Retention sweeper for terminal records
	MaintenanceService *maintenance.Service

	// HTTP handlers
	BatchHandler  *handlers.BatchHandler
	JobHandler    *handlers.JobHandler
	StatusHandler *handlers.StatusHandler
	WSHandler     *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	// Initialize database
	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.StorageManager = storageManager

	// EventService is needed before the tracker so job updates have somewhere to go
	app.EventService = events.NewService(logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger, &cfg.WebSocket)

	// Backend clients, one per job kind
	requestTimeout := common.ParseDurationOr(cfg.Backend.RequestTimeout, 0)
	clients := map[models.JobKind]interfaces.StatusClient{
		models.JobKindUpload:   backend.NewClient(models.JobKindUpload, cfg.Backend.UploadURL, requestTimeout, logger),
		models.JobKindAnalysis: backend.NewClient(models.JobKindAnalysis, cfg.Backend.AnalysisURL, requestTimeout, logger),
	}

	app.Tracker = tracker.NewManager(
		clients,
		tracker.OptionsFromConfig(&cfg.Tracker),
		storageManager.JobStorage(),
		storageManager.BatchStorage(),
		app.EventService,
		logger,
	)

	// Retention sweeper
	if cfg.Maintenance.Enabled {
		app.MaintenanceService = maintenance.NewService(&cfg.Maintenance, storageManager.JobStorage(), storageManager.BatchStorage(), logger)
		if err := app.MaintenanceService.Start(); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to start maintenance service: %w", err)
		}
	}

	// Initialize handlers
	app.BatchHandler = handlers.NewBatchHandler(app.Tracker, logger)
	app.JobHandler = handlers.NewJobHandler(app.Tracker, logger)
	app.StatusHandler = handlers.NewStatusHandler(app.Tracker, logger)

	logger.Info().
		Str("upload_backend", cfg.Backend.UploadURL).
		Str("analysis_backend", cfg.Backend.AnalysisURL).
		Bool("maintenance_enabled", cfg.Maintenance.Enabled).
		Msg("Application initialized")

	return app, nil
}

// Close shuts down components in reverse initialization order
func (a *App) Close() {
	a.Logger.Info().Msg("Shutting down application...")

	if a.MaintenanceService != nil {
		a.MaintenanceService.Stop()
	}

	if a.Tracker != nil {
		a.Tracker.Close()
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}

	a.cancelCtx()

	a.Logger.Info().Msg("Application shutdown complete")
}
