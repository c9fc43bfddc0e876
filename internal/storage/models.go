package storage

import (
	"time"

	"github.com/uptrace/bun"
)

// SessionRecord is the persisted metadata of a session. Credentials live in
// the per-session device store, not here.
type SessionRecord struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID            string    `bun:"id,pk" json:"id"`
	JID           string    `bun:"jid" json:"jid,omitempty"`
	PushName      string    `bun:"push_name" json:"push_name,omitempty"`
	Platform      string    `bun:"platform" json:"platform,omitempty"`
	BusinessName  string    `bun:"business_name" json:"business_name,omitempty"`
	Status        string    `bun:"status,notnull,default:'disconnected'" json:"status"`
	AutoStart     bool      `bun:"auto_start,notnull,default:true" json:"auto_start"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	LastStartedAt time.Time `bun:"last_started_at,nullzero" json:"last_started_at,omitempty"`
}

// MessageRecord is a stored chat message keyed by (session_id, id)
type MessageRecord struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	SessionID string    `bun:"session_id,pk" json:"session_id"`
	ID        string    `bun:"id,pk" json:"id"`
	RemoteJID string    `bun:"remote_jid,notnull" json:"remote_jid"`
	Sender    string    `bun:"sender" json:"sender"`
	FromMe    bool      `bun:"from_me,notnull" json:"from_me"`
	Type      string    `bun:"type" json:"type"`
	Text      string    `bun:"text" json:"text,omitempty"`
	Status    string    `bun:"status" json:"status,omitempty"`
	Timestamp time.Time `bun:"timestamp,notnull" json:"timestamp"`
	Payload   []byte    `bun:"payload" json:"-"`
}

// ContactRecord is a stored address book entry keyed by (session_id, jid)
type ContactRecord struct {
	bun.BaseModel `bun:"table:contacts,alias:c"`

	SessionID    string    `bun:"session_id,pk" json:"session_id"`
	JID          string    `bun:"jid,pk" json:"jid"`
	FullName     string    `bun:"full_name" json:"full_name,omitempty"`
	FirstName    string    `bun:"first_name" json:"first_name,omitempty"`
	PushName     string    `bun:"push_name" json:"push_name,omitempty"`
	BusinessName string    `bun:"business_name" json:"business_name,omitempty"`
	UpdatedAt    time.Time `bun:"updated_at,notnull" json:"updated_at"`
	Payload      []byte    `bun:"payload" json:"-"`
}

// ChatRecord is a stored conversation keyed by (session_id, jid)
type ChatRecord struct {
	bun.BaseModel `bun:"table:chats,alias:ch"`

	SessionID     string    `bun:"session_id,pk" json:"session_id"`
	JID           string    `bun:"jid,pk" json:"jid"`
	Name          string    `bun:"name" json:"name,omitempty"`
	UnreadCount   int       `bun:"unread_count,notnull" json:"unread_count"`
	Archived      bool      `bun:"archived,notnull" json:"archived"`
	Pinned        bool      `bun:"pinned,notnull" json:"pinned"`
	MutedUntil    time.Time `bun:"muted_until,nullzero" json:"muted_until,omitempty"`
	LastMessageAt time.Time `bun:"last_message_at,nullzero" json:"last_message_at,omitempty"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
	Payload       []byte    `bun:"payload" json:"-"`
}
