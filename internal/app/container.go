package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wazmeow/internal/app/config"
	"wazmeow/internal/domain"
	"wazmeow/internal/infra/whatsapp"
	"wazmeow/internal/services"
	"wazmeow/internal/storage"
	"wazmeow/internal/storage/repository"
	"wazmeow/pkg/jid"
	"wazmeow/pkg/logger"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Container holds all application dependencies
type Container struct {
	config *config.Config
	logger *logger.Logger

	// Storage
	pgDB  *sql.DB
	db    *storage.Database
	store storage.Store

	// WhatsApp
	connector           *whatsapp.SQLiteConnector
	multiSessionManager *services.MultiSessionManager
	api                 *services.API

	metricsServer *http.Server

	// reloadMu orders config reloads against Close.
	reloadMu sync.Mutex
	closed   bool
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config, l *logger.Logger, version string) (*Container, error) {
	container := &Container{
		config: cfg,
		logger: l,
	}

	if err := container.initializeDatabase(ctx); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := container.initializeWhatsApp(); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize WhatsApp: %w", err)
	}

	if err := container.initializeMultiSessionManager(); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize multi-session manager: %w", err)
	}

	container.initializeMetrics(version)

	log.Info().Msg("Application container initialized successfully")
	return container, nil
}

// initializeDatabase opens the storage backend and runs migrations
func (c *Container) initializeDatabase(ctx context.Context) error {
	storageCfg := c.config.Storage
	if storageCfg.Backend == config.BackendPostgres && storageCfg.DB == nil {
		pgDB, err := sql.Open("postgres", storageCfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		c.pgDB = pgDB
		storageCfg.DB = pgDB
	}

	db, err := storage.New(ctx, storageCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.db = db

	store := repository.NewStore(db)
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	c.store = store

	log.Info().Str("backend", db.Backend()).Msg("Database initialized successfully")
	return nil
}

// initializeWhatsApp sets up the per-session credential stores
func (c *Container) initializeWhatsApp() error {
	waCfg := c.config.WhatsApp

	version, err := domain.ParseClientVersion(waCfg.ClientVersion)
	if err != nil {
		return err
	}

	connector, err := whatsapp.NewConnector(whatsapp.ConnectorOptions{
		AuthDir: waCfg.AuthDir,
		Identity: domain.ClientIdentity{
			Name:     waCfg.ClientName,
			Platform: waCfg.ClientPlatform,
			Version:  version,
		},
		LogLevel: waCfg.LogLevel,
		Debug:    waCfg.Debug,
	}, c.logger.WithComponent("whatsapp"))
	if err != nil {
		return fmt.Errorf("failed to create WhatsApp connector: %w", err)
	}

	c.connector = connector
	log.Info().Str("auth_dir", waCfg.AuthDir).Msg("WhatsApp connector initialized successfully")
	return nil
}

// initializeMultiSessionManager builds the session registry and its facade
func (c *Container) initializeMultiSessionManager() error {
	base, err := services.OptionsFromConfig(c.config.WhatsApp)
	if err != nil {
		return err
	}

	c.multiSessionManager = services.NewMultiSessionManager(c.connector, c.store, nil, services.ManagerOptions{
		Base:           base,
		StartupStagger: c.config.WhatsApp.StartupStagger,
	})
	c.api = services.NewAPI(c.multiSessionManager, c.store, jid.NewFormatter(c.config.WhatsApp.DefaultCountryCode))

	c.multiSessionManager.Events().SubscribeAll(logEvent)

	log.Info().Msg("Multi-session manager initialized successfully")
	return nil
}

func logEvent(e domain.Event) {
	entry := log.Debug()
	if e.Kind == domain.EventSessionError {
		entry = log.Warn()
	}
	entry.
		Str("session_id", string(e.SessionID)).
		Str("event", string(e.Kind)).
		Msg("Session event")
}

// initializeMetrics serves prometheus metrics and the health checks
func (c *Container) initializeMetrics(version string) {
	if !c.config.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	NewHealthHandler(version, c.multiSessionManager, c.db).Register(mux)
	c.metricsServer = &http.Server{
		Addr:              c.config.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("address", c.config.Metrics.Address).Msg("Starting metrics server")
		if err := c.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Start resumes persisted sessions and watches the config file. A valid
// config change becomes the new session defaults and restarts every session.
func (c *Container) Start(ctx context.Context) error {
	started, err := c.multiSessionManager.Resume(ctx)
	if err != nil {
		log.Error().Err(err).Int("started", started).Msg("Some sessions failed to resume")
	} else {
		log.Info().Int("started", started).Msg("Sessions resumed")
	}

	return config.Watch(ctx, c.config.File, func(next *config.Config) {
		c.reload(ctx, next)
	})
}

// reload applies next as the session defaults and restarts every session.
// It reports whether the change was applied; nothing happens once the
// container is shutting down.
func (c *Container) reload(ctx context.Context, next *config.Config) bool {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	if c.closed || ctx.Err() != nil {
		log.Debug().Msg("Ignoring config change during shutdown")
		return false
	}

	base, err := services.OptionsFromConfig(next.WhatsApp)
	if err != nil {
		log.Error().Err(err).Msg("Ignoring config change")
		return false
	}

	c.multiSessionManager.SetBaseOptions(base)
	if err := c.multiSessionManager.RestartAll(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to restart sessions after config change")
		return false
	}
	log.Info().Msg("Configuration reloaded")
	return true
}

// Close stops every session, then releases storage and the metrics endpoint
func (c *Container) Close() {
	c.reloadMu.Lock()
	c.closed = true
	c.reloadMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if c.multiSessionManager != nil {
		if err := c.multiSessionManager.ShutdownAll(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to shut down sessions")
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	} else if c.db != nil {
		_ = c.db.Close()
	}

	if c.pgDB != nil {
		if err := c.pgDB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close postgres connection")
		}
	}

	log.Info().Msg("Application container closed")
}

// Config returns the loaded configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// API returns the session facade
func (c *Container) API() *services.API {
	return c.api
}
