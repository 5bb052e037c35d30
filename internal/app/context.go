package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"kilnline/internal/config"
	"kilnline/internal/db"
	"kilnline/internal/engine"
	"kilnline/internal/migrate"
	"kilnline/internal/prefs"
	"kilnline/internal/repo"
	"kilnline/internal/serials"
	kilnlinesdk "kilnline/sdk/go"
)

// Options select where a workshop reads its data from.
type Options struct {
	Workspace string
	// Remote, when set, is the base URL of a kilnline server the engine
	// writes through instead of the local database.
	Remote string
	// User keys stored preferences and is recorded as the actor of writes.
	User string
	Log  *zap.Logger
}

// Workshop bundles everything a command or the server needs.
type Workshop struct {
	Config  *config.Config
	Conn    *db.Conn
	Repo    repo.Repo
	Serials *serials.Table
	Prefs   *prefs.Manager
	Engine  *engine.Engine
}

// Open loads kilnline.yml (defaults when missing), opens and migrates the
// database, loads the serial table and wires the engine. The snapshot is
// loaded lazily on first use.
func Open(ctx context.Context, opts Options) (*Workshop, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(filepath.Base(absWorkspace(opts.Workspace)))
	}

	table, err := serials.Load(ctx, serialSource(opts.Workspace, cfg.Workshop.SerialTable), cfg.Workshop.SerialPrefixes, serials.S3Options{
		Region:    cfg.Workshop.SerialS3.Region,
		Endpoint:  cfg.Workshop.SerialS3.Endpoint,
		PathStyle: cfg.Workshop.SerialS3.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("serial table loaded", zap.Int("records", table.Len()))

	w := &Workshop{Config: cfg, Serials: table}
	var (
		store engine.Collaborator
		kv    prefs.KV
	)
	if opts.Remote != "" {
		client := kilnlinesdk.New(opts.Remote)
		client.Actor = opts.User
		store, kv = client, client
	} else {
		conn, err := db.Open(db.Config{Workspace: opts.Workspace, Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
		if err != nil {
			return nil, err
		}
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		w.Conn = conn
		w.Repo = repo.Repo{DB: conn}
		store, kv = w.Repo, w.Repo
	}

	w.Prefs = prefs.NewManager(kv, opts.User, log)
	if err := w.Prefs.Load(ctx); err != nil {
		w.Close()
		return nil, err
	}
	w.Engine = engine.New(store, cfg, table, log)
	w.Engine.Prefs = w.Prefs
	return w, nil
}

// Close releases the database, if one was opened.
func (w *Workshop) Close() error {
	if w == nil || w.Conn == nil {
		return nil
	}
	return w.Conn.Close()
}

// serialSource resolves a relative table path against the workspace.
func serialSource(workspace, source string) string {
	source = strings.TrimSpace(source)
	if source == "" || strings.HasPrefix(source, "s3://") || filepath.IsAbs(source) {
		return source
	}
	return filepath.Join(absWorkspace(workspace), source)
}

func absWorkspace(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	if abs, err := filepath.Abs(workspace); err == nil {
		return abs
	}
	return workspace
}
