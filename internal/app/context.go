package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"charterline/internal/config"
	"charterline/internal/db"
	"charterline/internal/engine"
	"charterline/internal/logging"
)

// Options selects a workspace and overrides the logging section of its
// config. Empty overrides keep the config values.
type Options struct {
	Workspace string
	LogLevel  string
	LogFormat string
}

// Workspace is an opened charterline workspace: config, database and an
// engine whose normalization passes have already run.
type Workspace struct {
	Dir     string
	Config  *config.Config
	Logger  *slog.Logger
	Engine  engine.Engine
	Applied []string

	conn *sql.DB
}

// Open loads the workspace config (defaults when charterline.yml is absent),
// opens the database and builds the engine.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := firstNonEmpty(opts.LogLevel, cfg.Logging.Level)
	format := firstNonEmpty(opts.LogFormat, cfg.Logging.Format)
	logger := logging.New(level, format, nil)

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	e, applied, err := engine.Open(ctx, conn, engine.WithConfig(cfg), engine.WithLogger(logger))
	if err != nil {
		conn.Close()
		return nil, err
	}
	if len(applied) > 0 {
		logger.Info("normalization passes applied", "passes", strings.Join(applied, ","))
	}
	return &Workspace{
		Dir:     opts.Workspace,
		Config:  cfg,
		Logger:  logger,
		Engine:  e,
		Applied: applied,
		conn:    conn,
	}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
