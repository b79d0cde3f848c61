// Package app wires the application together: storage backends, the
// trigger engine, the license gate, and the bridge server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/sidecue/sidecue/adapter/bridge"
	"github.com/sidecue/sidecue/internal/identity"
	licenseApp "github.com/sidecue/sidecue/internal/licensing/application"
	"github.com/sidecue/sidecue/internal/licensing/infrastructure/authority"
	licenseCache "github.com/sidecue/sidecue/internal/licensing/infrastructure/cache"
	licensePersistence "github.com/sidecue/sidecue/internal/licensing/infrastructure/persistence"
	"github.com/sidecue/sidecue/internal/llm"
	playbookApp "github.com/sidecue/sidecue/internal/playbooks/application"
	"github.com/sidecue/sidecue/internal/playbooks/engine"
	playbookPersistence "github.com/sidecue/sidecue/internal/playbooks/infrastructure/persistence"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/crypto"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/database"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/database/sqlite"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/migrations"
	"github.com/sidecue/sidecue/pkg/config"
	"github.com/sidecue/sidecue/pkg/observability"
)

// Container holds all wired components.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	Sessions *identity.Store

	PlaybookRepo    *playbookPersistence.Adapter
	PlaybookService *playbookApp.Service
	Engine          *engine.Engine
	LicenseService  *licenseApp.Service
	Authority       *authority.Client
	Bridge          *bridge.Server
	Health          *observability.HealthRegistry

	localDB    *sql.DB
	localConn  database.Connection
	remoteConn database.Connection
	redisCache *licenseCache.RedisSnapshotCache
}

// NewContainer builds the full component graph. The embedded store is
// always opened; the remote store only when a DATABASE_URL is set.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Sessions: identity.NewStore(),
	}

	if err := c.initLocalStore(ctx, cfg); err != nil {
		return nil, err
	}
	remoteRepo, err := c.initRemoteStore(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	session := c.Sessions.Func()
	localRepo := playbookPersistence.NewSQLiteRepository(c.localDB)
	c.PlaybookRepo = playbookPersistence.NewAdapter(localRepo, remoteRepo, session)
	c.PlaybookService = playbookApp.NewService(c.PlaybookRepo, session, logger)

	var classifier llm.Provider
	if cfg.LLMAPIKey != "" {
		classifier = llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	} else {
		logger.Info("no LLM API key configured, context triggers disabled")
	}
	c.Engine = engine.New(c.PlaybookRepo, session, classifier, logger, engine.Config{
		WindowSize: cfg.ContextWindowSize,
		Cooldown:   cfg.TriggerCooldown,
	})

	snapshots, err := c.initSnapshotCache(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	licenseRepo := licensePersistence.NewSQLiteLicenseRepository(c.localDB)
	if cfg.AuthorityURL != "" {
		c.Authority = authority.NewClient(cfg.AuthorityURL, cfg.AuthorityTimeout)
		c.LicenseService = licenseApp.NewOnlineService(c.Authority, licenseRepo, snapshots, time.Now, logger)
	} else {
		logger.Info("no license authority configured, validating against the embedded store")
		c.LicenseService = licenseApp.NewService(licenseRepo, snapshots, time.Now, logger)
	}

	c.Health = observability.NewHealthRegistry()
	c.Health.Register("embedded-store", observability.DatabaseHealthChecker(c.localConn.Ping))
	if c.remoteConn != nil {
		c.Health.Register("remote-store", observability.DatabaseHealthChecker(c.remoteConn.Ping))
	}
	if c.redisCache != nil {
		c.Health.Register("snapshot-cache", observability.RedisHealthChecker(c.redisCache.Ping))
	}

	bridgeCfg := bridge.DefaultServerConfig()
	bridgeCfg.Addr = cfg.BridgeAddr
	c.Bridge = bridge.NewServer(bridgeCfg,
		bridge.NewEngineHandler(c.Engine, logger),
		bridge.NewPlaybookHandler(c.PlaybookService, logger),
		bridge.NewLicenseHandler(c.LicenseService, logger),
		c.Health,
		logger)

	return c, nil
}

func (c *Container) initLocalStore(ctx context.Context, cfg *config.Config) error {
	path := cfg.SQLitePath
	if path == "" {
		path = database.DefaultSQLitePath()
	}
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: path,
	})
	if err != nil {
		return fmt.Errorf("opening embedded store: %w", err)
	}
	c.localConn = conn

	sqliteConn, ok := conn.(*sqlite.Connection)
	if !ok {
		return fmt.Errorf("unexpected connection type for sqlite driver")
	}
	c.localDB = sqliteConn.DB()

	if err := migrations.RunSQLiteMigrations(ctx, c.localDB); err != nil {
		return fmt.Errorf("migrating embedded store: %w", err)
	}
	return nil
}

// initRemoteStore opens the remote Postgres backend when configured.
// Sensitive fields are encrypted at rest there, so an encryption key is
// required alongside the URL.
func (c *Container) initRemoteStore(ctx context.Context, cfg *config.Config) (*playbookPersistence.PostgresRepository, error) {
	if cfg.DatabaseURL == "" {
		c.Logger.Info("no remote store configured, all storage stays local")
		return nil, nil
	}

	conn, err := database.NewConnection(ctx, database.Config{
		Driver: database.DriverPostgres,
		URL:    cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening remote store: %w", err)
	}
	c.remoteConn = conn

	if err := migrations.RunPostgresMigrations(ctx, conn); err != nil {
		return nil, fmt.Errorf("migrating remote store: %w", err)
	}

	var codec *crypto.FieldCodec
	if cfg.EncryptionKey != "" {
		encrypter, err := crypto.NewAESGCMFromBase64Key(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("loading encryption key: %w", err)
		}
		codec = crypto.NewFieldCodec(encrypter)
	} else {
		c.Logger.Warn("remote store configured without encryption key, sensitive fields stored in clear text")
	}

	return playbookPersistence.NewPostgresRepository(conn, codec), nil
}

func (c *Container) initSnapshotCache(cfg *config.Config) (licenseApp.SnapshotCache, error) {
	if cfg.RedisURL == "" {
		return licenseCache.NewMemorySnapshotCache(), nil
	}
	redisCache, err := licenseCache.NewRedisSnapshotCache(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connecting snapshot cache: %w", err)
	}
	c.redisCache = redisCache
	return redisCache, nil
}

// SeedDefaults inserts the bundled playbook templates (idempotent).
func (c *Container) SeedDefaults(ctx context.Context) error {
	return playbookApp.SeedDefaultPlaybooks(ctx, c.PlaybookRepo, c.Logger)
}

// Close releases all held resources.
func (c *Container) Close() {
	if c.redisCache != nil {
		if err := c.redisCache.Close(); err != nil {
			c.Logger.Warn("failed to close snapshot cache", "error", err)
		}
	}
	if c.remoteConn != nil {
		if err := c.remoteConn.Close(); err != nil {
			c.Logger.Warn("failed to close remote store", "error", err)
		}
	}
	if c.localConn != nil {
		if err := c.localConn.Close(); err != nil {
			c.Logger.Warn("failed to close embedded store", "error", err)
		}
	}
}
