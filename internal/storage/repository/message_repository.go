package repository

import (
	"context"
	"fmt"
	"time"

	"wazmeow/internal/domain"
	"wazmeow/internal/storage"

	"github.com/rs/zerolog/log"
)

// SaveMessage inserts or updates a message keyed by (session_id, id). A
// record without a type only carries a status change (receipt, revoke) and
// keeps the stored content.
func (r *store) SaveMessage(ctx context.Context, rec *storage.MessageRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (session_id, id) DO UPDATE").
		Set("remote_jid = COALESCE(NULLIF(EXCLUDED.remote_jid, ''), m.remote_jid)").
		Set("sender = COALESCE(NULLIF(EXCLUDED.sender, ''), m.sender)").
		Set("from_me = CASE WHEN EXCLUDED.type = '' THEN m.from_me ELSE EXCLUDED.from_me END").
		Set("type = COALESCE(NULLIF(EXCLUDED.type, ''), m.type)").
		Set("text = CASE WHEN EXCLUDED.type = '' THEN m.text ELSE EXCLUDED.text END").
		Set("status = COALESCE(NULLIF(EXCLUDED.status, ''), m.status)").
		Set("timestamp = CASE WHEN EXCLUDED.type = '' THEN m.timestamp ELSE EXCLUDED.timestamp END").
		Set("payload = COALESCE(EXCLUDED.payload, m.payload)").
		Exec(ctx)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", rec.SessionID).
			Str("message_id", rec.ID).
			Msg("Failed to save message")
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessages returns the newest messages of a session first
func (r *store) GetMessages(ctx context.Context, id domain.SessionID, remoteJID string, limit int) ([]*storage.MessageRecord, error) {
	var messages []*storage.MessageRecord
	q := r.db.NewSelect().
		Model(&messages).
		Where("session_id = ?", id.String())
	if remoteJID != "" {
		q = q.Where("remote_jid = ?", remoteJID)
	}

	err := q.Order("timestamp DESC").
		Limit(clampLimit(limit)).
		Scan(ctx)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", id.String()).
			Str("remote_jid", remoteJID).
			Msg("Failed to get messages")
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// SaveContact inserts or updates a contact keyed by (session_id, jid).
// Empty names never overwrite known ones.
func (r *store) SaveContact(ctx context.Context, rec *storage.ContactRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (session_id, jid) DO UPDATE").
		Set("full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), c.full_name)").
		Set("first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), c.first_name)").
		Set("push_name = COALESCE(NULLIF(EXCLUDED.push_name, ''), c.push_name)").
		Set("business_name = COALESCE(NULLIF(EXCLUDED.business_name, ''), c.business_name)").
		Set("updated_at = EXCLUDED.updated_at").
		Set("payload = COALESCE(EXCLUDED.payload, c.payload)").
		Exec(ctx)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", rec.SessionID).
			Str("jid", rec.JID).
			Msg("Failed to save contact")
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}

// GetContacts returns every contact of a session ordered by JID
func (r *store) GetContacts(ctx context.Context, id domain.SessionID) ([]*storage.ContactRecord, error) {
	var contacts []*storage.ContactRecord
	err := r.db.NewSelect().
		Model(&contacts).
		Where("session_id = ?", id.String()).
		Order("jid ASC").
		Scan(ctx)
	if err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to get contacts")
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}
	return contacts, nil
}

// SaveChat inserts or updates a chat keyed by (session_id, jid). The last
// message time only moves forward.
func (r *store) SaveChat(ctx context.Context, rec *storage.ChatRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	rec.LastMessageAt = rec.LastMessageAt.UTC()
	rec.MutedUntil = rec.MutedUntil.UTC()

	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (session_id, jid) DO UPDATE").
		Set("name = COALESCE(NULLIF(EXCLUDED.name, ''), ch.name)").
		Set("unread_count = EXCLUDED.unread_count").
		Set("archived = EXCLUDED.archived").
		Set("pinned = EXCLUDED.pinned").
		Set("muted_until = EXCLUDED.muted_until").
		Set("last_message_at = CASE WHEN ch.last_message_at IS NULL OR EXCLUDED.last_message_at > ch.last_message_at THEN EXCLUDED.last_message_at ELSE ch.last_message_at END").
		Set("updated_at = EXCLUDED.updated_at").
		Set("payload = COALESCE(EXCLUDED.payload, ch.payload)").
		Exec(ctx)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", rec.SessionID).
			Str("jid", rec.JID).
			Msg("Failed to save chat")
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

// PatchChat applies a partial update to a chat, creating it if needed
func (r *store) PatchChat(ctx context.Context, id domain.SessionID, jid string, patch storage.ChatPatch) error {
	rec := &storage.ChatRecord{
		SessionID: id.String(),
		JID:       jid,
		UpdatedAt: time.Now().UTC(),
	}
	q := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (session_id, jid) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at")
	if patch.Archived != nil {
		rec.Archived = *patch.Archived
		q = q.Set("archived = EXCLUDED.archived")
	}
	if patch.Pinned != nil {
		rec.Pinned = *patch.Pinned
		q = q.Set("pinned = EXCLUDED.pinned")
	}
	if patch.MutedUntil != nil {
		rec.MutedUntil = patch.MutedUntil.UTC()
		q = q.Set("muted_until = EXCLUDED.muted_until")
	}

	if _, err := q.Exec(ctx); err != nil {
		log.Error().Err(err).
			Str("session_id", id.String()).
			Str("jid", jid).
			Msg("Failed to patch chat")
		return fmt.Errorf("failed to patch chat: %w", err)
	}
	return nil
}

// TouchChat records activity in a chat without changing its archive, pin,
// mute or unread state.
func (r *store) TouchChat(ctx context.Context, rec *storage.ChatRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	rec.LastMessageAt = rec.LastMessageAt.UTC()

	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (session_id, jid) DO UPDATE").
		Set("name = COALESCE(NULLIF(EXCLUDED.name, ''), ch.name)").
		Set("last_message_at = CASE WHEN ch.last_message_at IS NULL OR EXCLUDED.last_message_at > ch.last_message_at THEN EXCLUDED.last_message_at ELSE ch.last_message_at END").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", rec.SessionID).
			Str("jid", rec.JID).
			Msg("Failed to touch chat")
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return nil
}

// GetChats returns the chats of a session, most recently active first
func (r *store) GetChats(ctx context.Context, id domain.SessionID, limit int) ([]*storage.ChatRecord, error) {
	var chats []*storage.ChatRecord
	err := r.db.NewSelect().
		Model(&chats).
		Where("session_id = ?", id.String()).
		OrderExpr("last_message_at DESC NULLS LAST").
		Order("jid ASC").
		Limit(clampLimit(limit)).
		Scan(ctx)
	if err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to get chats")
		return nil, fmt.Errorf("failed to get chats: %w", err)
	}
	return chats, nil
}
