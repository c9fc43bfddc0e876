package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wazmeow/internal/app/config"
	"wazmeow/internal/domain"
	"wazmeow/internal/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()

	db, err := storage.New(ctx, config.StorageConfig{
		Backend: config.BackendSQLite,
		Path:    filepath.Join(t.TempDir(), "wazmeow.db"),
	})
	require.NoError(t, err)

	s := NewStore(db)
	require.NoError(t, s.Init(ctx))
	// Migration is idempotent.
	require.NoError(t, s.Init(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.HasSession(ctx, "main")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveSession(ctx, &storage.SessionRecord{ID: "main", Status: "connecting", AutoStart: true}))
	require.NoError(t, s.SaveSession(ctx, &storage.SessionRecord{ID: "main", Status: "connected", JID: "628123456789@s.whatsapp.net", AutoStart: true}))

	rec, err := s.LoadSession(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "connected", rec.Status)
	assert.Equal(t, "628123456789@s.whatsapp.net", rec.JID)

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteSession(ctx, "main"))
	require.NoError(t, s.DeleteSession(ctx, "main"))

	_, err = s.LoadSession(ctx, "main")
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestMessages_UpsertAndNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveMessage(ctx, &storage.MessageRecord{
			SessionID: "main",
			ID:        id,
			RemoteJID: "chat@s.whatsapp.net",
			Type:      "text",
			Text:      "v1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.SaveMessage(ctx, &storage.MessageRecord{
		SessionID: "main",
		ID:        "z",
		RemoteJID: "other@s.whatsapp.net",
		Timestamp: base,
	}))
	// Same key again updates in place.
	require.NoError(t, s.SaveMessage(ctx, &storage.MessageRecord{
		SessionID: "main",
		ID:        "a",
		RemoteJID: "chat@s.whatsapp.net",
		Type:      "text",
		Text:      "v2",
		Timestamp: base,
	}))
	// Other sessions are isolated.
	require.NoError(t, s.SaveMessage(ctx, &storage.MessageRecord{
		SessionID: "second",
		ID:        "a",
		RemoteJID: "chat@s.whatsapp.net",
		Timestamp: base,
	}))

	msgs, err := s.GetMessages(ctx, "main", "chat@s.whatsapp.net", 0)
	require.NoError(t, err)

	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, ids); diff != "" {
		t.Fatalf("message order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "v2", msgs[2].Text)

	all, err := s.GetMessages(ctx, "main", "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMessages_StatusUpdateKeepsContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sent := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveMessage(ctx, &storage.MessageRecord{
		SessionID: "main",
		ID:        "m1",
		RemoteJID: "chat@s.whatsapp.net",
		FromMe:    true,
		Type:      "text",
		Text:      "hello",
		Status:    "sent",
		Timestamp: sent,
	}))
	require.NoError(t, s.SaveMessage(ctx, &storage.MessageRecord{
		SessionID: "main",
		ID:        "m1",
		Status:    "read",
		Timestamp: sent.Add(time.Hour),
	}))

	msgs, err := s.GetMessages(ctx, "main", "", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "read", msgs[0].Status)
	assert.True(t, msgs[0].FromMe)
	assert.True(t, sent.Equal(msgs[0].Timestamp))
}

func TestContacts_EmptyNamesDoNotOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveContact(ctx, &storage.ContactRecord{SessionID: "main", JID: "a@s.whatsapp.net", FullName: "Alice"}))
	require.NoError(t, s.SaveContact(ctx, &storage.ContactRecord{SessionID: "main", JID: "a@s.whatsapp.net", PushName: "ali"}))
	require.NoError(t, s.SaveContact(ctx, &storage.ContactRecord{SessionID: "main", JID: "b@s.whatsapp.net", PushName: "bob"}))

	contacts, err := s.GetContacts(ctx, "main")
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Alice", contacts[0].FullName)
	assert.Equal(t, "ali", contacts[0].PushName)
	assert.Equal(t, "bob", contacts[1].PushName)
}

func TestChats_LastMessageOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	later := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	require.NoError(t, s.SaveChat(ctx, &storage.ChatRecord{SessionID: "main", JID: "x@g.us", Name: "Team", LastMessageAt: later}))
	require.NoError(t, s.SaveChat(ctx, &storage.ChatRecord{SessionID: "main", JID: "x@g.us", LastMessageAt: earlier, Archived: true}))
	require.NoError(t, s.SaveChat(ctx, &storage.ChatRecord{SessionID: "main", JID: "y@g.us", Name: "Old", LastMessageAt: earlier}))

	chats, err := s.GetChats(ctx, "main", 10)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "x@g.us", chats[0].JID)
	assert.Equal(t, "Team", chats[0].Name)
	assert.True(t, chats[0].Archived)
	assert.True(t, later.Equal(chats[0].LastMessageAt))
}

func TestTouchChat_KeepsFlags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveChat(ctx, &storage.ChatRecord{SessionID: "main", JID: "x@g.us", Archived: true, Pinned: true, LastMessageAt: at}))
	require.NoError(t, s.TouchChat(ctx, &storage.ChatRecord{SessionID: "main", JID: "x@g.us", LastMessageAt: at.Add(time.Minute)}))
	require.NoError(t, s.TouchChat(ctx, &storage.ChatRecord{SessionID: "main", JID: "new@s.whatsapp.net", LastMessageAt: at}))

	chats, err := s.GetChats(ctx, "main", 0)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.True(t, chats[0].Archived)
	assert.True(t, chats[0].Pinned)
	assert.True(t, at.Add(time.Minute).Equal(chats[0].LastMessageAt))
}

func TestPatchChat_OnlyTouchesSetFlags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	yes := true

	require.NoError(t, s.SaveChat(ctx, &storage.ChatRecord{SessionID: "main", JID: "x@g.us", Name: "Team", Pinned: true}))
	require.NoError(t, s.PatchChat(ctx, "main", "x@g.us", storage.ChatPatch{Archived: &yes}))

	chats, err := s.GetChats(ctx, "main", 0)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Team", chats[0].Name)
	assert.True(t, chats[0].Pinned)
	assert.True(t, chats[0].Archived)
}

func TestNew_PostgresRequiresHandle(t *testing.T) {
	_, err := storage.New(context.Background(), config.StorageConfig{Backend: config.BackendPostgres})
	var cerr *domain.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "storage.db", cerr.Field)
}
