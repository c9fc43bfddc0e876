package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed set of normalized event kinds
type EventKind string

const (
	EventConnectionOpened         EventKind = "connection.opened"
	EventConnectionClosed         EventKind = "connection.closed"
	EventQRIssued                 EventKind = "qr.issued"
	EventMessageReceived          EventKind = "message.received"
	EventMessageSent              EventKind = "message.sent"
	EventMessageUpdated           EventKind = "message.updated"
	EventMessageDeleted           EventKind = "message.deleted"
	EventGroupParticipantsChanged EventKind = "group.participants_changed"
	EventGroupUpdated             EventKind = "group.updated"
	EventPresenceChanged          EventKind = "presence.changed"
	EventContactsUpdated          EventKind = "contacts.updated"
	EventChatsUpdated             EventKind = "chats.updated"
	EventCallReceived             EventKind = "call.received"
	EventCredentialsUpdated       EventKind = "credentials.updated"
	EventSessionStarted           EventKind = "session.started"
	EventSessionStopped           EventKind = "session.stopped"
	EventSessionError             EventKind = "session.error"
)

// AllEventKinds returns every known kind in declaration order
func AllEventKinds() []EventKind {
	return []EventKind{
		EventConnectionOpened,
		EventConnectionClosed,
		EventQRIssued,
		EventMessageReceived,
		EventMessageSent,
		EventMessageUpdated,
		EventMessageDeleted,
		EventGroupParticipantsChanged,
		EventGroupUpdated,
		EventPresenceChanged,
		EventContactsUpdated,
		EventChatsUpdated,
		EventCallReceived,
		EventCredentialsUpdated,
		EventSessionStarted,
		EventSessionStopped,
		EventSessionError,
	}
}

// IsValid checks if the kind is one of the known kinds
func (k EventKind) IsValid() bool {
	for _, known := range AllEventKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// MessageType represents the type of message
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeSticker  MessageType = "sticker"
	MessageTypeLocation MessageType = "location"
	MessageTypeContact  MessageType = "contact"
	MessageTypeReaction MessageType = "reaction"
	MessageTypePoll     MessageType = "poll"
	MessageTypeUnknown  MessageType = "unknown"
)

// PresenceType represents the presence status
type PresenceType string

const (
	PresenceTypeAvailable   PresenceType = "available"
	PresenceTypeUnavailable PresenceType = "unavailable"
	PresenceTypeComposing   PresenceType = "composing"
	PresenceTypeRecording   PresenceType = "recording"
	PresenceTypePaused      PresenceType = "paused"
)

// Message is the normalized view of a chat message
type Message struct {
	ID        string      `json:"id"`
	Chat      string      `json:"chat"`
	Sender    string      `json:"sender"`
	PushName  string      `json:"push_name,omitempty"`
	FromMe    bool        `json:"from_me"`
	IsGroup   bool        `json:"is_group"`
	Type      MessageType `json:"type"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	MimeType  string      `json:"mime_type,omitempty"`
	QuotedID  string      `json:"quoted_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Raw       any         `json:"-"`
}

// Contact is the normalized view of an address book entry
type Contact struct {
	JID          string `json:"jid"`
	FullName     string `json:"full_name,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	PushName     string `json:"push_name,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
}

// Chat is the normalized view of a conversation
type Chat struct {
	JID           string    `json:"jid"`
	Name          string    `json:"name,omitempty"`
	UnreadCount   int       `json:"unread_count"`
	Archived      bool      `json:"archived"`
	Pinned        bool      `json:"pinned"`
	MutedUntil    time.Time `json:"muted_until,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
}

// Payload is implemented only by the payload types of this package; each
// payload belongs to exactly one EventKind.
type Payload interface {
	Kind() EventKind
	payload()
}

type ConnectionOpened struct {
	JID      string `json:"jid"`
	PushName string `json:"push_name,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type ConnectionClosed struct {
	Reason    string        `json:"reason"`
	Err       error         `json:"-"`
	Attempt   int           `json:"attempt"`
	NextRetry time.Duration `json:"next_retry"`
}

type QRIssued struct {
	Code    string        `json:"code"`
	Image   string        `json:"image,omitempty"`
	Timeout time.Duration `json:"timeout"`
}

type MessageReceived struct {
	Message Message `json:"message"`
}

type MessageSent struct {
	Message Message `json:"message"`
}

// MessageUpdated covers receipts (Status is the receipt type) and edits
// (Edited carries the new content).
type MessageUpdated struct {
	Chat       string    `json:"chat"`
	Sender     string    `json:"sender,omitempty"`
	MessageIDs []string  `json:"message_ids"`
	Status     string    `json:"status"`
	Edited     *Message  `json:"edited,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type MessageDeleted struct {
	Chat      string    `json:"chat"`
	Sender    string    `json:"sender,omitempty"`
	MessageID string    `json:"message_id"`
	ForMe     bool      `json:"for_me"`
	Timestamp time.Time `json:"timestamp"`
}

type GroupParticipantsChanged struct {
	Group        string   `json:"group"`
	Action       string   `json:"action"`
	Participants []string `json:"participants"`
	Actor        string   `json:"actor,omitempty"`
}

type GroupUpdated struct {
	Group  string `json:"group"`
	Name   string `json:"name,omitempty"`
	Topic  string `json:"topic,omitempty"`
	Actor  string `json:"actor,omitempty"`
	Joined bool   `json:"joined"`
}

type PresenceChanged struct {
	JID      string       `json:"jid"`
	Chat     string       `json:"chat,omitempty"`
	Presence PresenceType `json:"presence"`
	LastSeen time.Time    `json:"last_seen,omitempty"`
}

type ContactsUpdated struct {
	Contacts []Contact `json:"contacts"`
}

type ChatsUpdated struct {
	Chats []Chat `json:"chats"`
}

type CallReceived struct {
	CallID    string    `json:"call_id"`
	From      string    `json:"from"`
	Status    string    `json:"status"` // "offer", "terminate", "reject"
	Timestamp time.Time `json:"timestamp"`
}

type CredentialsUpdated struct {
	JID          string `json:"jid"`
	Platform     string `json:"platform,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
}

type SessionStarted struct {
	Resumed bool `json:"resumed"`
}

type SessionStopped struct {
	LoggedOut bool `json:"logged_out"`
}

// SessionError reports an asynchronous failure. Terminal is set once the
// session has given up reconnecting.
type SessionError struct {
	Err      error  `json:"-"`
	Message  string `json:"message"`
	Terminal bool   `json:"terminal"`
	Attempts int    `json:"attempts"`
}

// NewSessionError builds a SessionError payload from err
func NewSessionError(err error, terminal bool, attempts int) SessionError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return SessionError{Err: err, Message: msg, Terminal: terminal, Attempts: attempts}
}

func (ConnectionOpened) Kind() EventKind         { return EventConnectionOpened }
func (ConnectionClosed) Kind() EventKind         { return EventConnectionClosed }
func (QRIssued) Kind() EventKind                 { return EventQRIssued }
func (MessageReceived) Kind() EventKind          { return EventMessageReceived }
func (MessageSent) Kind() EventKind              { return EventMessageSent }
func (MessageUpdated) Kind() EventKind           { return EventMessageUpdated }
func (MessageDeleted) Kind() EventKind           { return EventMessageDeleted }
func (GroupParticipantsChanged) Kind() EventKind { return EventGroupParticipantsChanged }
func (GroupUpdated) Kind() EventKind             { return EventGroupUpdated }
func (PresenceChanged) Kind() EventKind          { return EventPresenceChanged }
func (ContactsUpdated) Kind() EventKind          { return EventContactsUpdated }
func (ChatsUpdated) Kind() EventKind             { return EventChatsUpdated }
func (CallReceived) Kind() EventKind             { return EventCallReceived }
func (CredentialsUpdated) Kind() EventKind       { return EventCredentialsUpdated }
func (SessionStarted) Kind() EventKind           { return EventSessionStarted }
func (SessionStopped) Kind() EventKind           { return EventSessionStopped }
func (SessionError) Kind() EventKind             { return EventSessionError }

func (ConnectionOpened) payload()         {}
func (ConnectionClosed) payload()         {}
func (QRIssued) payload()                 {}
func (MessageReceived) payload()          {}
func (MessageSent) payload()              {}
func (MessageUpdated) payload()           {}
func (MessageDeleted) payload()           {}
func (GroupParticipantsChanged) payload() {}
func (GroupUpdated) payload()             {}
func (PresenceChanged) payload()          {}
func (ContactsUpdated) payload()          {}
func (ChatsUpdated) payload()             {}
func (CallReceived) payload()             {}
func (CredentialsUpdated) payload()       {}
func (SessionStarted) payload()           {}
func (SessionStopped) payload()           {}
func (SessionError) payload()             {}

// Event is a normalized notification published on the event buses
type Event struct {
	ID        string    `json:"id"`
	SessionID SessionID `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	Payload   Payload   `json:"payload"`
}

// NewEvent creates an event for the session, deriving its kind from payload
func NewEvent(sessionID SessionID, payload Payload) Event {
	e := Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	if payload != nil {
		e.Kind = payload.Kind()
	}
	return e
}

// Validate checks that the event carries a payload matching its kind
func (e Event) Validate() error {
	if !e.Kind.IsValid() {
		return NewValidationError(fmt.Sprintf("unknown event kind: %q", e.Kind))
	}
	if e.Payload == nil {
		return NewValidationError(fmt.Sprintf("event %s has no payload", e.Kind))
	}
	if e.Payload.Kind() != e.Kind {
		return NewValidationError(fmt.Sprintf("payload of kind %s published as %s", e.Payload.Kind(), e.Kind))
	}
	return nil
}
