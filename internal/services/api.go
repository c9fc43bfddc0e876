package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mau.fi/whatsmeow/types"

	"wazmeow/internal/domain"
	"wazmeow/internal/infra/whatsapp"
	"wazmeow/internal/storage"
	"wazmeow/pkg/jid"
)

// API is the entry point for callers that act on a session: it resolves the
// session and its live client, normalizes addresses and forwards the call.
type API struct {
	sessions *MultiSessionManager
	store    storage.Store
	jid      *jid.Formatter
	validate *validator.Validate
}

// NewAPI creates the facade over a registry
func NewAPI(sessions *MultiSessionManager, store storage.Store, formatter *jid.Formatter) *API {
	if formatter == nil {
		formatter = jid.NewFormatter("")
	}
	return &API{
		sessions: sessions,
		store:    store,
		jid:      formatter,
		validate: validator.New(),
	}
}

// Sessions returns the underlying registry
func (a *API) Sessions() *MultiSessionManager {
	return a.sessions
}

// Info returns the snapshot of a registered session
func (a *API) Info(id domain.SessionID) (domain.SessionInfo, error) {
	session, err := a.sessions.Get(id)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	return session.Info(), nil
}

// PairPhone requests a pairing code for phone on a started, unpaired session
func (a *API) PairPhone(ctx context.Context, id domain.SessionID, phone string) (string, error) {
	session, err := a.sessions.Get(id)
	if err != nil {
		return "", err
	}
	number, err := a.phone(phone)
	if err != nil {
		return "", err
	}
	return session.PairPhone(ctx, number)
}

// Messages returns stored messages newest first. An empty chat matches all.
func (a *API) Messages(ctx context.Context, id domain.SessionID, chat string, limit int) ([]*storage.MessageRecord, error) {
	if !id.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid session ID %q", id))
	}
	if chat != "" {
		chat = a.jid.Format(chat, jid.KindAuto)
	}
	return a.store.GetMessages(ctx, id, chat, limit)
}

// Contacts returns the stored contacts of a session
func (a *API) Contacts(ctx context.Context, id domain.SessionID) ([]*storage.ContactRecord, error) {
	if !id.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid session ID %q", id))
	}
	return a.store.GetContacts(ctx, id)
}

// Chats returns the stored chats of a session, most recently active first
func (a *API) Chats(ctx context.Context, id domain.SessionID, limit int) ([]*storage.ChatRecord, error) {
	if !id.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid session ID %q", id))
	}
	return a.store.GetChats(ctx, id, limit)
}

// SendPresence marks the account as available or unavailable
func (a *API) SendPresence(ctx context.Context, id domain.SessionID, available bool) error {
	_, client, err := a.client(id)
	if err != nil {
		return err
	}
	state := types.PresenceUnavailable
	if available {
		state = types.PresenceAvailable
	}
	return client.SendPresence(ctx, state)
}

// SubscribePresence asks the server for presence updates of a contact
func (a *API) SubscribePresence(ctx context.Context, id domain.SessionID, contact string) error {
	_, client, err := a.client(id)
	if err != nil {
		return err
	}
	target, err := a.parse(contact, jid.KindUser)
	if err != nil {
		return err
	}
	return client.SubscribePresence(ctx, target)
}

// SendChatPresence sends a typing indicator to a chat
func (a *API) SendChatPresence(ctx context.Context, id domain.SessionID, chat string, presence domain.PresenceType) error {
	_, client, err := a.client(id)
	if err != nil {
		return err
	}
	target, err := a.parse(chat, jid.KindAuto)
	if err != nil {
		return err
	}

	state, media := types.ChatPresencePaused, types.ChatPresenceMediaText
	switch presence {
	case domain.PresenceTypeComposing:
		state = types.ChatPresenceComposing
	case domain.PresenceTypeRecording:
		state, media = types.ChatPresenceComposing, types.ChatPresenceMediaAudio
	case domain.PresenceTypePaused:
	default:
		return domain.NewValidationError(fmt.Sprintf("invalid chat presence %q", presence))
	}
	return client.SendChatPresence(ctx, target, state, media)
}

// SetStatusMessage updates the account's about text
func (a *API) SetStatusMessage(ctx context.Context, id domain.SessionID, text string) error {
	_, client, err := a.client(id)
	if err != nil {
		return err
	}
	return client.SetStatusMessage(ctx, text)
}

// client resolves a registered session and its live client
func (a *API) client(id domain.SessionID) (*Session, whatsapp.Client, error) {
	session, err := a.sessions.Get(id)
	if err != nil {
		return nil, nil, err
	}
	client, err := session.Client()
	if err != nil {
		return nil, nil, err
	}
	return session, client, nil
}

func (a *API) parse(raw string, kind jid.Kind) (types.JID, error) {
	target, err := a.jid.Parse(raw, kind)
	if err != nil {
		return types.EmptyJID, domain.NewValidationError(err.Error())
	}
	return target, nil
}

func (a *API) parseAll(raws []string, kind jid.Kind) ([]types.JID, error) {
	if len(raws) == 0 {
		return nil, domain.NewValidationError("at least one address is required")
	}
	targets, err := a.jid.ParseAll(raws, kind)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	return targets, nil
}

// phone returns the international digits of a phone number
func (a *API) phone(raw string) (string, error) {
	target, err := a.parse(raw, jid.KindUser)
	if err != nil {
		return "", err
	}
	if target.Server != types.DefaultUserServer {
		return "", domain.NewValidationError(fmt.Sprintf("%q is not a phone number", raw))
	}
	return target.User, nil
}

// check runs struct validation and reports failures as a ValidationError
func (a *API) check(v any) error {
	err := a.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", f.Field(), f.Tag()))
	}
	return domain.NewValidationError(strings.Join(msgs, "; "))
}
