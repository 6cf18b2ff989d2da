package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talq0/talq/api"
	"github.com/talq0/talq/db"
	"github.com/talq0/talq/internal/agent"
	"github.com/talq0/talq/internal/checkpoint"
	"github.com/talq0/talq/internal/config"
	"github.com/talq0/talq/internal/log"
	"github.com/talq0/talq/internal/observability"
	"github.com/talq0/talq/internal/resource"
	"github.com/talq0/talq/internal/session"
	"github.com/talq0/talq/internal/tabular"
	"github.com/talq0/talq/internal/tools"
)

// Setup creates and initializes the application. On error, everything
// already initialized is released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before genkit.Init so flows pick up the
	// span processor.
	a.otelCleanup = observability.Setup(ctx, observability.Config{
		Endpoint: cfg.OTLPEndpoint,
		Logger:   logger,
	})

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	a.Genkit = g

	model := genkit.LookupModel(g, "googleai/"+cfg.ModelName)
	if model == nil {
		return nil, fmt.Errorf("model %q not found", cfg.ModelName)
	}

	a.Engine = tabular.NewEngine(logger.With("component", "tabular"))
	a.Sessions = session.New(pool, logger.With("component", "session"))
	a.Checkpoints = checkpoint.NewPostgres(pool, logger.With("component", "checkpoint"))

	files, err := resource.New(resource.Config{
		Dir:          cfg.UploadsDir,
		MaxBytes:     cfg.MaxUploadBytes,
		FetchTimeout: time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		Logger:       logger.With("component", "resource"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating resource store: %w", err)
	}
	a.Files = files

	toolset, err := tools.NewCSVToolset(a.Sessions, a.Engine, logger.With("component", "tools"))
	if err != nil {
		return nil, fmt.Errorf("creating toolset: %w", err)
	}
	if err := toolset.Register(g); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	ag, err := agent.New(agent.Config{
		Genkit:      g,
		Model:       model,
		Sessions:    a.Sessions,
		Checkpoints: a.Checkpoints,
		Engine:      a.Engine,
		Logger:      logger.With("component", "agent"),
		MaxTurns:    cfg.MaxTurns,
		LockDir:     filepath.Join(filepath.Dir(cfg.UploadsDir), "locks"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}
	a.Agent = ag

	server, err := api.NewServer(api.Config{
		Logger:         logger.With("component", "api"),
		Sessions:       a.Sessions,
		Files:          files,
		Checkpoints:    a.Checkpoints,
		Agent:          ag,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// Pool tuning for a single-node deployment.
const (
	poolMaxConns          = 10
	poolMinConns          = 2
	poolMaxConnLifetime   = 30 * time.Minute
	poolMaxConnIdleTime   = 5 * time.Minute
	poolHealthCheckPeriod = time.Minute
	poolPingTimeout       = 5 * time.Second
)

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = poolMaxConns
	poolCfg.MinConns = poolMinConns
	poolCfg.MaxConnLifetime = poolMaxConnLifetime
	poolCfg.MaxConnIdleTime = poolMaxConnIdleTime
	poolCfg.HealthCheckPeriod = poolHealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, poolPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
