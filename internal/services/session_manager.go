// Package services provides the session layer of WazMeow.
// This file contains the MultiSessionManager which keeps at most one live
// Session per identifier and drives bulk lifecycle operations: cold-start
// resume, restart on configuration change and graceful shutdown.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"wazmeow/internal/domain"
	"wazmeow/internal/events"
	"wazmeow/internal/infra/whatsapp"
	"wazmeow/internal/storage"
)

// ManagerOptions configures a MultiSessionManager
type ManagerOptions struct {
	Base SessionOptions
	// StartupStagger spaces out session starts during Resume.
	StartupStagger time.Duration
	Scheduler      Scheduler
	QROut          io.Writer
}

// MultiSessionManager is the registry of sessions. A session that ran out of
// retries stays registered in the error state so callers can inspect it;
// Create replaces it and Destroy removes it.
type MultiSessionManager struct {
	connector whatsapp.Connector
	store     storage.Store
	global    *events.Bus
	scheduler Scheduler
	qrOut     io.Writer
	stagger   time.Duration

	// Thread-safe maps for multiple sessions
	mutex     sync.RWMutex
	sessions  map[domain.SessionID]*Session
	overrides map[domain.SessionID]SessionOptions
	base      SessionOptions
}

// NewMultiSessionManager creates an empty registry
func NewMultiSessionManager(
	connector whatsapp.Connector,
	store storage.Store,
	global *events.Bus,
	opts ManagerOptions,
) *MultiSessionManager {
	if global == nil {
		global = events.NewGlobal()
	}
	return &MultiSessionManager{
		connector: connector,
		store:     store,
		global:    global,
		scheduler: opts.Scheduler,
		qrOut:     opts.QROut,
		stagger:   opts.StartupStagger,
		sessions:  make(map[domain.SessionID]*Session),
		overrides: make(map[domain.SessionID]SessionOptions),
		base:      opts.Base,
	}
}

// Events returns the global event bus
func (msm *MultiSessionManager) Events() *events.Bus {
	return msm.global
}

// SetBaseOptions replaces the base options used for sessions created from
// now on. Running sessions keep theirs until restarted.
func (msm *MultiSessionManager) SetBaseOptions(opts SessionOptions) {
	msm.mutex.Lock()
	defer msm.mutex.Unlock()
	msm.base = opts
}

// Create returns the active session for id, or starts a new one. A stale
// inactive entry is discarded and replaced.
func (msm *MultiSessionManager) Create(ctx context.Context, id domain.SessionID, override SessionOptions) (*Session, error) {
	if !id.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid session ID %q", id))
	}

	msm.mutex.Lock()
	stale, ok := msm.sessions[id]
	if ok && stale.IsActive() {
		msm.mutex.Unlock()
		log.Debug().Str("session_id", id.String()).Msg("Session already active")
		return stale, nil
	}

	opts := msm.base.Merge(override)
	session := NewSession(id, opts, SessionDeps{
		Connector: msm.connector,
		Store:     msm.store,
		Global:    msm.global,
		Scheduler: msm.scheduler,
		QROut:     msm.qrOut,
	})
	// Counts as active until Start runs, so a concurrent Create returns it.
	session.pending = true
	msm.sessions[id] = session
	msm.overrides[id] = override
	activeSessions.Set(float64(len(msm.sessions)))
	msm.mutex.Unlock()

	if stale != nil {
		// An inactive session may still hold a pending credential reset.
		_ = stale.Stop(ctx)
	}

	if err := session.Start(ctx); err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to start session")
		return session, err
	}

	log.Info().Str("session_id", id.String()).Msg("Session created")
	return session, nil
}

// Get returns the session registered under id
func (msm *MultiSessionManager) Get(id domain.SessionID) (*Session, error) {
	msm.mutex.RLock()
	defer msm.mutex.RUnlock()

	session, ok := msm.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound(id)
	}
	return session, nil
}

// List returns a snapshot of every registered session, ordered by id
func (msm *MultiSessionManager) List() []domain.SessionInfo {
	msm.mutex.RLock()
	infos := make([]domain.SessionInfo, 0, len(msm.sessions))
	for _, session := range msm.sessions {
		infos = append(infos, session.Info())
	}
	msm.mutex.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Destroy stops and removes the session. It is a no-op for unknown ids.
func (msm *MultiSessionManager) Destroy(ctx context.Context, id domain.SessionID) error {
	session := msm.remove(id)
	if session == nil {
		return nil
	}
	if err := session.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop session %s: %w", id, err)
	}
	log.Info().Str("session_id", id.String()).Msg("Session destroyed")
	return nil
}

// Logout logs the session out, wiping its credentials, and removes it. It
// is a no-op for unknown ids.
func (msm *MultiSessionManager) Logout(ctx context.Context, id domain.SessionID) error {
	session := msm.remove(id)
	if session == nil {
		return nil
	}
	if err := session.Logout(ctx); err != nil {
		return fmt.Errorf("failed to log out session %s: %w", id, err)
	}
	return nil
}

func (msm *MultiSessionManager) remove(id domain.SessionID) *Session {
	msm.mutex.Lock()
	defer msm.mutex.Unlock()

	session, ok := msm.sessions[id]
	if !ok {
		return nil
	}
	delete(msm.sessions, id)
	delete(msm.overrides, id)
	activeSessions.Set(float64(len(msm.sessions)))
	return session
}

// ShutdownAll stops every session and clears the registry. Individual
// failures are logged and returned joined; the sweep always completes.
func (msm *MultiSessionManager) ShutdownAll(ctx context.Context) error {
	msm.mutex.Lock()
	sessions := make([]*Session, 0, len(msm.sessions))
	for _, session := range msm.sessions {
		sessions = append(sessions, session)
	}
	msm.sessions = make(map[domain.SessionID]*Session)
	msm.overrides = make(map[domain.SessionID]SessionOptions)
	activeSessions.Set(0)
	msm.mutex.Unlock()

	log.Info().Int("session_count", len(sessions)).Msg("Shutting down all sessions")

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, session := range sessions {
		g.Go(func() error {
			if err := session.Stop(ctx); err != nil {
				log.Error().
					Err(err).
					Str("session_id", session.ID().String()).
					Msg("Error stopping session during shutdown")
				mu.Lock()
				errs = append(errs, fmt.Errorf("session %s: %w", session.ID(), err))
				mu.Unlock()
			}
			session.wait()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// StartByIDs creates each session in order. A failing id does not prevent
// the others from starting; the failures are returned joined.
func (msm *MultiSessionManager) StartByIDs(ctx context.Context, ids []domain.SessionID, override SessionOptions) error {
	var errs []error
	for _, id := range ids {
		if _, err := msm.Create(ctx, id, override); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// RestartAll recreates every registered session with the current base
// options and each session's original override.
func (msm *MultiSessionManager) RestartAll(ctx context.Context) error {
	msm.mutex.RLock()
	ids := make([]domain.SessionID, 0, len(msm.sessions))
	overrides := make(map[domain.SessionID]SessionOptions, len(msm.sessions))
	for id := range msm.sessions {
		ids = append(ids, id)
		overrides[id] = msm.overrides[id]
	}
	msm.mutex.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	log.Info().Int("session_count", len(ids)).Msg("Restarting all sessions")

	shutdownErr := msm.ShutdownAll(ctx)

	var errs []error
	if shutdownErr != nil {
		errs = append(errs, shutdownErr)
	}
	for _, id := range ids {
		if _, err := msm.Create(ctx, id, overrides[id]); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Resume starts the stored sessions marked for auto start, waiting the
// startup stagger between them. It returns the number of sessions started.
func (msm *MultiSessionManager) Resume(ctx context.Context) (int, error) {
	records, err := msm.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions for startup: %w", err)
	}

	var (
		started int
		errs    []error
	)
	for i, rec := range records {
		if !rec.AutoStart {
			continue
		}
		id, err := domain.ParseSessionID(rec.ID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", rec.ID).Msg("Skipping stored session with invalid id")
			continue
		}

		if i > 0 && msm.stagger > 0 {
			select {
			case <-ctx.Done():
				return started, ctx.Err()
			case <-time.After(msm.stagger):
			}
		}

		log.Info().
			Str("session_id", id.String()).
			Str("jid", rec.JID).
			Msg("Reconnecting session on startup")

		if _, err := msm.Create(ctx, id, SessionOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		started++
	}

	if started > 0 {
		log.Info().Int("reconnected_sessions", started).Msg("Startup reconnection completed")
	} else {
		log.Info().Msg("No sessions to reconnect on startup")
	}
	return started, errors.Join(errs...)
}
