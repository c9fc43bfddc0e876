package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wazmeow/internal/app/config"
	"wazmeow/internal/domain"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Database wraps the database connection and provides additional functionality
type Database struct {
	*bun.DB
	backend   string
	ownsSQLDB bool
}

// New opens the storage backend selected by cfg. The postgres backend wraps
// the caller supplied handle in cfg.DB and never closes it.
func New(ctx context.Context, cfg config.StorageConfig) (*Database, error) {
	var (
		db   *bun.DB
		owns bool
	)

	switch cfg.Backend {
	case config.BackendSQLite, "":
		sqldb, err := openSQLite(cfg)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
		owns = true
	case config.BackendPostgres:
		if cfg.DB == nil {
			return nil, domain.NewConfigError("storage.db", "postgres backend requires an open database handle")
		}
		configurePool(cfg.DB, cfg)
		db = bun.NewDB(cfg.DB, pgdialect.New())
	default:
		return nil, domain.NewConfigError("storage.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
	}

	if cfg.Debug {
		db.AddQueryHook(newQueryHook())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if owns {
			_ = db.Close()
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("backend", backendName(cfg.Backend)).
		Str("path", cfg.Path).
		Msg("Database connected successfully")

	return &Database{DB: db, backend: backendName(cfg.Backend), ownsSQLDB: owns}, nil
}

func openSQLite(cfg config.StorageConfig) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared", cfg.Path)
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Single writer: one connection serializes every statement.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)
	return sqldb, nil
}

func configurePool(sqldb *sql.DB, cfg config.StorageConfig) {
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func backendName(b string) string {
	if b == "" {
		return config.BackendSQLite
	}
	return b
}

// Backend returns the name of the active backend
func (d *Database) Backend() string {
	return d.backend
}

// Migrate creates the tables and indexes used by the store
func (d *Database) Migrate(ctx context.Context) error {
	log.Info().Str("backend", d.backend).Msg("Starting database migration")

	for _, model := range []any{
		(*SessionRecord)(nil),
		(*MessageRecord)(nil),
		(*ContactRecord)(nil),
		(*ChatRecord)(nil),
	} {
		if _, err := d.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to create table")
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*MessageRecord)(nil), "idx_messages_session_remote_ts", []string{"session_id", "remote_jid", "timestamp"}},
		{(*MessageRecord)(nil), "idx_messages_session_ts", []string{"session_id", "timestamp"}},
		{(*ChatRecord)(nil), "idx_chats_session_last_message", []string{"session_id", "last_message_at"}},
	}
	for _, idx := range indexes {
		if _, err := d.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx); err != nil {
			log.Error().Err(err).Str("index", idx.name).Msg("Failed to create index")
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	log.Info().Msg("Database migration completed successfully")
	return nil
}

// Close closes the database connection. A caller supplied handle is left open.
func (d *Database) Close() error {
	if !d.ownsSQLDB {
		log.Info().Msg("Leaving caller supplied database handle open")
		return nil
	}
	log.Info().Msg("Closing database connection")
	return d.DB.Close()
}

// Health checks the database health
func (d *Database) Health(ctx context.Context) error {
	return d.PingContext(ctx)
}
