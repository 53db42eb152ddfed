package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"harbor/internal/config"
	"harbor/internal/db"
	"harbor/internal/engine"
	"harbor/internal/events"
	"harbor/internal/migrate"
	"harbor/internal/repo"
)

// Workspace bundles the opened database, the loaded harbor.yml and the engine
// built on top of them.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Engine engine.Engine
}

// Open prepares a workspace: it creates .harbor if missing, migrates the
// database and loads harbor.yml, falling back to the built-in profiles when the
// file does not exist.
func Open(ctx context.Context, dir string, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn, Events: events.Writer{}}
	e := engine.New(r, cfg)
	e.Logger = logger
	return &Workspace{Dir: dir, DB: conn, Repo: r, Config: cfg, Engine: e}, nil
}

// Relay returns the outbound event relay for this workspace, or nil when
// harbor.yml configures no sinks.
func (w *Workspace) Relay(logger *zap.Logger) (*events.Relay, error) {
	return events.NewRelay(w.Repo, w.Config, logger)
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}
