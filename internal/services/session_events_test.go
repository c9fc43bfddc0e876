package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waSyncAction"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"wazmeow/internal/domain"
)

var (
	alice = types.NewJID("628111111111", types.DefaultUserServer)
	group = types.NewJID("120363025246125486", types.GroupServer)
)

// connected returns a started, connected session and its client
func connected(t *testing.T, h *harness) (*Session, *fakeClient) {
	t.Helper()
	h.connector.pair("s1")
	s := h.session("s1", retryOpts)
	require.NoError(t, s.Start(context.Background()))
	client := h.connector.last("s1")
	client.emit(&events.Connected{})
	return s, client
}

func textMessage(id, text string, ts time.Time) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: alice, Sender: alice},
			ID:            id,
			PushName:      "Alice",
			Timestamp:     ts,
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func textKey(id string) *waCommon.MessageKey {
	return &waCommon.MessageKey{RemoteJID: proto.String(alice.String()), ID: proto.String(id)}
}

func TestHandleData_MessageStoredBeforePublish(t *testing.T) {
	h := newHarness(t)
	s, client := connected(t, h)

	var seen bool
	s.Events().Subscribe(domain.EventMessageReceived, func(e domain.Event) {
		msg := e.Payload.(domain.MessageReceived).Message
		rec, ok := h.store.message("s1", msg.ID)
		seen = ok && rec.Text == "hello"
	})

	client.emit(textMessage("M1", "hello", time.Now()))
	assert.True(t, seen)

	rec, ok := h.store.message("s1", "M1")
	require.True(t, ok)
	assert.Equal(t, "received", rec.Status)
	assert.Equal(t, string(domain.MessageTypeText), rec.Type)
	assert.NotEmpty(t, rec.Payload)

	chats, err := h.store.GetChats(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Alice", chats[0].Name)
}

func TestHandleData_StorageFailureStillPublishes(t *testing.T) {
	h := newHarness(t)
	s, client := connected(t, h)
	local := record(s.Events())
	h.store.setFailing(true)

	client.emit(textMessage("M1", "hello", time.Now()))

	assert.Equal(t, 1, local.count(domain.EventMessageReceived))
}

func TestHandleData_ReceiptUpdatesStatusOnly(t *testing.T) {
	h := newHarness(t)
	s, client := connected(t, h)
	local := record(s.Events())

	client.emit(textMessage("M1", "hello", time.Now()))
	client.emit(&events.Receipt{
		MessageSource: types.MessageSource{Chat: alice, Sender: alice},
		MessageIDs:    []types.MessageID{"M1"},
		Type:          types.ReceiptTypeRead,
		Timestamp:     time.Now(),
	})

	rec, ok := h.store.message("s1", "M1")
	require.True(t, ok)
	assert.Equal(t, "read", rec.Status)
	assert.Equal(t, "hello", rec.Text)

	evt, ok := local.last(domain.EventMessageUpdated)
	require.True(t, ok)
	update := evt.Payload.(domain.MessageUpdated)
	assert.Equal(t, []string{"M1"}, update.MessageIDs)
	assert.Equal(t, "read", update.Status)
}

func TestHandleData_RevokeAndEdit(t *testing.T) {
	h := newHarness(t)
	s, client := connected(t, h)
	local := record(s.Events())

	client.emit(textMessage("M1", "hello", time.Now()))

	edit := textMessage("M2", "", time.Now())
	edit.Message = &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
		Type:          waE2E.ProtocolMessage_MESSAGE_EDIT.Enum(),
		EditedMessage: &waE2E.Message{Conversation: proto.String("hello, edited")},
	}}
	edit.Message.ProtocolMessage.Key = textKey("M1")
	client.emit(edit)

	rec, _ := h.store.message("s1", "M1")
	assert.Equal(t, "hello, edited", rec.Text)
	assert.Equal(t, "edited", rec.Status)
	assert.Equal(t, 1, local.count(domain.EventMessageUpdated))

	revoke := textMessage("M3", "", time.Now())
	revoke.Message = &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
		Type: waE2E.ProtocolMessage_REVOKE.Enum(),
		Key:  textKey("M1"),
	}}
	client.emit(revoke)

	rec, _ = h.store.message("s1", "M1")
	assert.Equal(t, "revoked", rec.Status)
	evt, ok := local.last(domain.EventMessageDeleted)
	require.True(t, ok)
	assert.Equal(t, "M1", evt.Payload.(domain.MessageDeleted).MessageID)
	// Protocol messages are never stored as messages of their own.
	_, stored := h.store.message("s1", "M3")
	assert.False(t, stored)
}

func TestHandleData_ChatFlagsSurviveNewMessages(t *testing.T) {
	h := newHarness(t)
	_, client := connected(t, h)

	client.emit(&events.Archive{
		JID:    alice,
		Action: &waSyncAction.ArchiveChatAction{Archived: proto.Bool(true)},
	})
	client.emit(textMessage("M1", "hello", time.Now()))

	chats, err := h.store.GetChats(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.True(t, chats[0].Archived)
	assert.False(t, chats[0].LastMessageAt.IsZero())
}

func TestHandleData_GroupInfoPublishesPerAction(t *testing.T) {
	h := newHarness(t)
	s, client := connected(t, h)
	local := record(s.Events())

	bob := types.NewJID("628222222222", types.DefaultUserServer)
	client.emit(&events.GroupInfo{
		JID:     group,
		Sender:  &alice,
		Join:    []types.JID{bob},
		Promote: []types.JID{bob},
	})

	assert.Equal(t, 2, local.count(domain.EventGroupParticipantsChanged))
	assert.Equal(t, 0, local.count(domain.EventGroupUpdated))

	client.emit(&events.GroupInfo{JID: group, Name: &types.GroupName{Name: "Team"}})
	evt, ok := local.last(domain.EventGroupUpdated)
	require.True(t, ok)
	assert.Equal(t, "Team", evt.Payload.(domain.GroupUpdated).Name)
}

func TestHandleData_OneEventPerNotification(t *testing.T) {
	h := newHarness(t)
	s, client := connected(t, h)
	local := record(s.Events())

	client.emit(textMessage("M1", "hello", time.Now()))
	client.emit(&events.ChatPresence{
		MessageSource: types.MessageSource{Chat: alice, Sender: alice},
		State:         types.ChatPresenceComposing,
		Media:         types.ChatPresenceMediaAudio,
	})
	client.emit(&events.CallOffer{BasicCallMeta: types.BasicCallMeta{From: alice, CallID: "C1", Timestamp: time.Now()}})

	assert.Equal(t, []domain.EventKind{
		domain.EventMessageReceived,
		domain.EventPresenceChanged,
		domain.EventCallReceived,
	}, kinds(local.all()))

	evt, _ := local.last(domain.EventPresenceChanged)
	assert.Equal(t, domain.PresenceTypeRecording, evt.Payload.(domain.PresenceChanged).Presence)
}

func TestHandleData_OwnMessagesAreSent(t *testing.T) {
	h := newHarness(t)
	s, client := connected(t, h)
	local := record(s.Events())

	msg := textMessage("M9", "from my phone", time.Now())
	msg.Info.IsFromMe = true
	client.emit(msg)

	assert.Equal(t, 1, local.count(domain.EventMessageSent))
	rec, _ := h.store.message("s1", "M9")
	assert.Equal(t, "sent", rec.Status)
}
