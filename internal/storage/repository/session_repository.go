package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wazmeow/internal/domain"
	"wazmeow/internal/storage"

	"github.com/rs/zerolog/log"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// store implements storage.Store on top of bun
type store struct {
	db *storage.Database
}

// NewStore creates a store over an opened database
func NewStore(db *storage.Database) storage.Store {
	return &store{db: db}
}

// Init runs the schema migration
func (r *store) Init(ctx context.Context) error {
	return r.db.Migrate(ctx)
}

// Close closes the underlying database
func (r *store) Close() error {
	return r.db.Close()
}

// SaveSession inserts or updates a session record
func (r *store) SaveSession(ctx context.Context, rec *storage.SessionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("jid = EXCLUDED.jid").
		Set("push_name = EXCLUDED.push_name").
		Set("platform = EXCLUDED.platform").
		Set("business_name = EXCLUDED.business_name").
		Set("status = EXCLUDED.status").
		Set("auto_start = EXCLUDED.auto_start").
		Set("updated_at = EXCLUDED.updated_at").
		Set("last_started_at = EXCLUDED.last_started_at").
		Exec(ctx)
	if err != nil {
		log.Error().Err(err).Str("session_id", rec.ID).Msg("Failed to save session")
		return fmt.Errorf("failed to save session: %w", err)
	}

	log.Debug().Str("session_id", rec.ID).Str("status", rec.Status).Msg("Session saved")
	return nil
}

// LoadSession retrieves a session record by its ID
func (r *store) LoadSession(ctx context.Context, id domain.SessionID) (*storage.SessionRecord, error) {
	rec := new(storage.SessionRecord)
	err := r.db.NewSelect().
		Model(rec).
		Where("id = ?", id.String()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound(id)
		}
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to load session")
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return rec, nil
}

// DeleteSession removes a session record. Deleting an absent record is not
// an error.
func (r *store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	result, err := r.db.NewDelete().
		Model((*storage.SessionRecord)(nil)).
		Where("id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to delete session")
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	log.Info().
		Str("session_id", id.String()).
		Int64("rows_affected", rowsAffected).
		Msg("Session deleted")
	return nil
}

// HasSession checks if a session record exists
func (r *store) HasSession(ctx context.Context, id domain.SessionID) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*storage.SessionRecord)(nil)).
		Where("id = ?", id.String()).
		Exists(ctx)
	if err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to check session existence")
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return exists, nil
}

// ListSessions retrieves all session records, oldest first
func (r *store) ListSessions(ctx context.Context) ([]*storage.SessionRecord, error) {
	var sessions []*storage.SessionRecord
	err := r.db.NewSelect().
		Model(&sessions).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sessions")
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
