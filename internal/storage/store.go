package storage

import (
	"context"
	"time"

	"wazmeow/internal/domain"
)

// ChatPatch is a partial chat update. Nil fields are left unchanged.
type ChatPatch struct {
	Archived   *bool
	Pinned     *bool
	MutedUntil *time.Time
}

// Store persists session metadata and the message, contact and chat data
// observed by sessions. All writes are idempotent upserts.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	SaveSession(ctx context.Context, rec *SessionRecord) error
	LoadSession(ctx context.Context, id domain.SessionID) (*SessionRecord, error)
	DeleteSession(ctx context.Context, id domain.SessionID) error
	HasSession(ctx context.Context, id domain.SessionID) (bool, error)
	ListSessions(ctx context.Context) ([]*SessionRecord, error)

	SaveMessage(ctx context.Context, rec *MessageRecord) error
	// GetMessages returns the newest messages first. An empty remoteJID
	// matches every chat; limit <= 0 applies the default limit.
	GetMessages(ctx context.Context, id domain.SessionID, remoteJID string, limit int) ([]*MessageRecord, error)

	SaveContact(ctx context.Context, rec *ContactRecord) error
	GetContacts(ctx context.Context, id domain.SessionID) ([]*ContactRecord, error)

	SaveChat(ctx context.Context, rec *ChatRecord) error
	// PatchChat updates only the flags set in patch, creating the chat if needed.
	PatchChat(ctx context.Context, id domain.SessionID, jid string, patch ChatPatch) error
	// TouchChat moves the chat's last activity forward, creating it if needed.
	TouchChat(ctx context.Context, rec *ChatRecord) error
	GetChats(ctx context.Context, id domain.SessionID, limit int) ([]*ChatRecord, error)
}
