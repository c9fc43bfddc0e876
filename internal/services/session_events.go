package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wazmeow/internal/domain"
	"wazmeow/internal/storage"
)

// handleEvent is registered on the whatsmeow client of attempt gen.
// Notifications from a superseded client are dropped.
func (s *Session) handleEvent(gen uint64, evt any) {
	if !s.current(gen) {
		return
	}

	switch v := evt.(type) {
	case *events.Connected:
		s.onConnected(gen)
	case *events.PairSuccess:
		s.onPairSuccess(gen, v.ID.String(), v.Platform, v.BusinessName)
	case *events.LoggedOut:
		s.revoked(gen, fmt.Errorf("logged out by server: %v", v.Reason))
	case *events.ConnectFailure:
		err := fmt.Errorf("connect failure: %v %s", v.Reason, v.Message)
		if v.Reason.IsLoggedOut() {
			s.revoked(gen, err)
		} else {
			s.closed(gen, "connect_failure", err)
		}
	case *events.Disconnected:
		s.closed(gen, "disconnected", errors.New("connection lost"))
	case *events.StreamReplaced:
		s.closed(gen, "stream_replaced", errors.New("stream replaced by another client"))
	case *events.TemporaryBan:
		s.closed(gen, "temporary_ban", errors.New(v.String()))
	case *events.ClientOutdated:
		s.closed(gen, "client_outdated", errors.New("client version outdated"))
	case *events.KeepAliveTimeout:
		// whatsmeow only drops a dead socket itself when auto-reconnect is on,
		// which the connector disables.
		if since := time.Since(v.LastSuccess); since > whatsmeow.KeepAliveMaxFailTime {
			s.closed(gen, "keepalive_timeout", fmt.Errorf("no keepalive response for %s", since.Round(time.Second)))
			return
		}
		log.Debug().Str("session_id", s.id.String()).Int("error_count", v.ErrorCount).Msg("Keepalive timeout")
	default:
		s.handleData(evt)
	}
}

// handleData turns data notifications into exactly one normalized event
// each. Message, contact and chat data is written before publishing.
func (s *Session) handleData(evt any) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var payload domain.Payload
	switch v := evt.(type) {
	case *events.Message:
		payload = s.onMessage(ctx, v)
	case *events.Receipt:
		payload = s.onReceipt(ctx, v)
	case *events.DeleteForMe:
		s.saveMessage(ctx, &storage.MessageRecord{
			SessionID: s.id.String(),
			ID:        v.MessageID,
			RemoteJID: v.ChatJID.String(),
			Status:    "deleted_for_me",
			Timestamp: v.Timestamp,
		})
		payload = domain.MessageDeleted{
			Chat:      v.ChatJID.String(),
			Sender:    v.SenderJID.String(),
			MessageID: v.MessageID,
			ForMe:     true,
			Timestamp: v.Timestamp,
		}
	case *events.Contact:
		payload = s.onContact(ctx, domain.Contact{
			JID:       v.JID.String(),
			FullName:  v.Action.GetFullName(),
			FirstName: v.Action.GetFirstName(),
		})
	case *events.PushName:
		payload = s.onContact(ctx, domain.Contact{JID: v.JID.String(), PushName: v.NewPushName})
	case *events.BusinessName:
		payload = s.onContact(ctx, domain.Contact{JID: v.JID.String(), BusinessName: v.NewBusinessName})
	case *events.HistorySync:
		payload = s.onHistorySync(ctx, v)
	case *events.Archive:
		archived := v.Action.GetArchived()
		s.patchChat(ctx, v.JID.String(), storage.ChatPatch{Archived: &archived})
		payload = domain.ChatsUpdated{Chats: []domain.Chat{{JID: v.JID.String(), Archived: archived}}}
	case *events.Pin:
		pinned := v.Action.GetPinned()
		s.patchChat(ctx, v.JID.String(), storage.ChatPatch{Pinned: &pinned})
		payload = domain.ChatsUpdated{Chats: []domain.Chat{{JID: v.JID.String(), Pinned: pinned}}}
	case *events.Mute:
		var until time.Time
		if v.Action.GetMuted() {
			until = time.UnixMilli(v.Action.GetMuteEndTimestamp())
		}
		s.patchChat(ctx, v.JID.String(), storage.ChatPatch{MutedUntil: &until})
		payload = domain.ChatsUpdated{Chats: []domain.Chat{{JID: v.JID.String(), MutedUntil: until}}}
	case *events.Presence:
		presence := domain.PresenceTypeAvailable
		if v.Unavailable {
			presence = domain.PresenceTypeUnavailable
		}
		payload = domain.PresenceChanged{JID: v.From.String(), Presence: presence, LastSeen: v.LastSeen}
	case *events.ChatPresence:
		payload = domain.PresenceChanged{
			JID:      v.Sender.String(),
			Chat:     v.Chat.String(),
			Presence: chatPresence(v.State, v.Media),
		}
	case *events.GroupInfo:
		s.onGroupInfo(ctx, v)
		return
	case *events.JoinedGroup:
		s.touchChat(ctx, v.JID.String(), v.Name, time.Time{})
		payload = domain.GroupUpdated{Group: v.JID.String(), Name: v.Name, Topic: v.Topic, Joined: true}
	case *events.CallOffer:
		payload = domain.CallReceived{CallID: v.CallID, From: v.From.String(), Status: "offer", Timestamp: v.Timestamp}
	case *events.CallTerminate:
		payload = domain.CallReceived{CallID: v.CallID, From: v.From.String(), Status: "terminate", Timestamp: v.Timestamp}
	case *events.CallReject:
		payload = domain.CallReceived{CallID: v.CallID, From: v.From.String(), Status: "reject", Timestamp: v.Timestamp}
	}

	if payload == nil {
		return
	}
	s.touch()
	s.publish(payload)
}

func (s *Session) onMessage(ctx context.Context, v *events.Message) domain.Payload {
	chat, sender := v.Info.Chat.String(), v.Info.Sender.String()

	if pm := v.Message.GetProtocolMessage(); pm != nil {
		switch pm.GetType() {
		case waE2E.ProtocolMessage_REVOKE:
			id := pm.GetKey().GetID()
			s.saveMessage(ctx, &storage.MessageRecord{
				SessionID: s.id.String(),
				ID:        id,
				RemoteJID: chat,
				Status:    "revoked",
				Timestamp: v.Info.Timestamp,
			})
			return domain.MessageDeleted{Chat: chat, Sender: sender, MessageID: id, Timestamp: v.Info.Timestamp}
		case waE2E.ProtocolMessage_MESSAGE_EDIT:
			edited := convertMessage(v.Info, pm.GetEditedMessage())
			edited.ID = pm.GetKey().GetID()
			s.saveMessage(ctx, messageRecord(s.id, edited, "edited"))
			return domain.MessageUpdated{
				Chat:       chat,
				Sender:     sender,
				MessageIDs: []string{edited.ID},
				Status:     "edited",
				Edited:     &edited,
				Timestamp:  v.Info.Timestamp,
			}
		default:
			// Key shares, history notifications and similar carry no content.
			return nil
		}
	}

	msg := convertMessage(v.Info, v.Message)
	status := "received"
	if msg.FromMe {
		status = "sent"
	}
	s.saveMessage(ctx, messageRecord(s.id, msg, status))

	name := ""
	if !msg.IsGroup && !msg.FromMe {
		name = msg.PushName
	}
	s.touchChat(ctx, chat, name, msg.Timestamp)

	if msg.FromMe {
		return domain.MessageSent{Message: msg}
	}
	return domain.MessageReceived{Message: msg}
}

func (s *Session) onReceipt(ctx context.Context, v *events.Receipt) domain.Payload {
	status := receiptStatus(v.Type)
	switch v.Type {
	case types.ReceiptTypeDelivered, types.ReceiptTypeRead, types.ReceiptTypeReadSelf,
		types.ReceiptTypePlayed, types.ReceiptTypePlayedSelf:
		for _, id := range v.MessageIDs {
			s.saveMessage(ctx, &storage.MessageRecord{
				SessionID: s.id.String(),
				ID:        id,
				RemoteJID: v.Chat.String(),
				Status:    status,
				Timestamp: v.Timestamp,
			})
		}
	}

	return domain.MessageUpdated{
		Chat:       v.Chat.String(),
		Sender:     v.Sender.String(),
		MessageIDs: append([]string(nil), v.MessageIDs...),
		Status:     status,
		Timestamp:  v.Timestamp,
	}
}

func (s *Session) onContact(ctx context.Context, c domain.Contact) domain.Payload {
	if err := s.store.SaveContact(ctx, contactRecord(s.id, c)); err != nil {
		storageFailures.WithLabelValues("save_contact").Inc()
	}
	return domain.ContactsUpdated{Contacts: []domain.Contact{c}}
}

func (s *Session) onHistorySync(ctx context.Context, v *events.HistorySync) domain.Payload {
	convs := v.Data.GetConversations()
	if len(convs) == 0 {
		return nil
	}

	chats := make([]domain.Chat, 0, len(convs))
	for _, conv := range convs {
		chat := convertConversation(conv)
		if chat.JID == "" {
			continue
		}
		if err := s.store.SaveChat(ctx, chatRecord(s.id, chat)); err != nil {
			storageFailures.WithLabelValues("save_chat").Inc()
		}
		chats = append(chats, chat)
	}

	log.Debug().
		Str("session_id", s.id.String()).
		Str("type", v.Data.GetSyncType().String()).
		Int("chats", len(chats)).
		Msg("History sync received")
	return domain.ChatsUpdated{Chats: chats}
}

// onGroupInfo publishes one participants event per membership action and a
// group.updated event for any other change.
func (s *Session) onGroupInfo(ctx context.Context, v *events.GroupInfo) {
	group := v.JID.String()
	actor := ""
	if v.Sender != nil {
		actor = v.Sender.String()
	}

	changes := []struct {
		action string
		jids   []types.JID
	}{
		{"add", v.Join},
		{"remove", v.Leave},
		{"promote", v.Promote},
		{"demote", v.Demote},
	}

	var published bool
	for _, c := range changes {
		if len(c.jids) == 0 {
			continue
		}
		published = true
		s.publish(domain.GroupParticipantsChanged{
			Group:        group,
			Action:       c.action,
			Participants: jidStrings(c.jids),
			Actor:        actor,
		})
	}

	if published && v.Name == nil && v.Topic == nil {
		s.touch()
		return
	}

	update := domain.GroupUpdated{Group: group, Actor: actor}
	if v.Name != nil {
		update.Name = v.Name.Name
		s.touchChat(ctx, group, v.Name.Name, time.Time{})
	}
	if v.Topic != nil {
		update.Topic = v.Topic.Topic
	}
	s.touch()
	s.publish(update)
}

func (s *Session) saveMessage(ctx context.Context, rec *storage.MessageRecord) {
	if rec.ID == "" {
		return
	}
	if err := s.store.SaveMessage(ctx, rec); err != nil {
		storageFailures.WithLabelValues("save_message").Inc()
	}
}

func (s *Session) touchChat(ctx context.Context, jid, name string, at time.Time) {
	if jid == "" {
		return
	}
	rec := &storage.ChatRecord{SessionID: s.id.String(), JID: jid, Name: name, LastMessageAt: at}
	if err := s.store.TouchChat(ctx, rec); err != nil {
		storageFailures.WithLabelValues("touch_chat").Inc()
	}
}

func (s *Session) patchChat(ctx context.Context, jid string, patch storage.ChatPatch) {
	if err := s.store.PatchChat(ctx, s.id, jid, patch); err != nil {
		storageFailures.WithLabelValues("patch_chat").Inc()
	}
}

func chatPresence(state types.ChatPresence, media types.ChatPresenceMedia) domain.PresenceType {
	switch {
	case state == types.ChatPresenceComposing && media == types.ChatPresenceMediaAudio:
		return domain.PresenceTypeRecording
	case state == types.ChatPresenceComposing:
		return domain.PresenceTypeComposing
	default:
		return domain.PresenceTypePaused
	}
}
