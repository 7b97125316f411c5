package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"scopeline/internal/config"
	"scopeline/internal/db"
	"scopeline/internal/engine"
	"scopeline/internal/migrate"
	"scopeline/internal/repo"
	"scopeline/internal/template"
)

// Env bundles everything a CLI command needs to run against a workspace.
type Env struct {
	DB     *sql.DB
	Engine engine.Engine
	Config *config.Config
	Store  *template.Store
	Log    zerolog.Logger
}

func (e Env) Close() error {
	if e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

// Open prepares the workspace: database + migrations, config (defaults when
// scopeline.yml is absent), and the template store with any workspace
// overrides layered on top of the embedded pack.
func Open(workspace string) (Env, error) {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return Env{}, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return Env{}, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return Env{}, fmt.Errorf("migrate: %w", err)
	}

	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return Env{}, err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	store, err := template.NewStore(log)
	if err != nil {
		conn.Close()
		return Env{}, err
	}
	if err := store.LoadDir(db.TemplatesDir(workspace)); err != nil {
		conn.Close()
		return Env{}, err
	}

	return Env{
		DB:     conn,
		Engine: engine.New(conn, store, cfg),
		Config: cfg,
		Store:  store,
		Log:    log,
	}, nil
}

// ResolveEngagement picks the engagement a command targets: an explicit
// override wins, otherwise the workspace must hold exactly one engagement.
func ResolveEngagement(ctx context.Context, r repo.Repo, override string) (string, error) {
	if override != "" {
		if _, err := r.GetEngagement(ctx, override); err != nil {
			return "", err
		}
		return override, nil
	}
	eng, err := r.SingleEngagement(ctx)
	if err != nil {
		return "", err
	}
	return eng.ID, nil
}
