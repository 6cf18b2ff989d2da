// Package app wires configuration, storage, the model provider, and the
// agent into a running application.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talq0/talq/api"
	"github.com/talq0/talq/internal/agent"
	"github.com/talq0/talq/internal/checkpoint"
	"github.com/talq0/talq/internal/config"
	"github.com/talq0/talq/internal/log"
	"github.com/talq0/talq/internal/resource"
	"github.com/talq0/talq/internal/session"
	"github.com/talq0/talq/internal/tabular"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit      *genkit.Genkit
	DBPool      *pgxpool.Pool
	Sessions    *session.Store
	Checkpoints checkpoint.Store
	Files       *resource.Store
	Engine      *tabular.Engine
	Agent       *agent.Agent
	Server      *api.Server

	otelCleanup func()
}

// Close releases application resources in reverse setup order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
