package whatsapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

// A *whatsmeow.Client wrapped with its credential container is a Client.
var _ Client = &deviceClient{Client: (*whatsmeow.Client)(nil)}

func TestDeviceClient_ForwardsToWhatsmeow(t *testing.T) {
	c := newTestConnector(t)
	client, err := c.Open(context.Background(), "main")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()

	_, err = client.GetBlocklist(ctx)
	assert.ErrorIs(t, err, whatsmeow.ErrNotConnected)

	err = client.SetStatusMessage(ctx, "busy")
	assert.ErrorIs(t, err, whatsmeow.ErrNotConnected)

	_, err = client.GetJoinedGroups(ctx)
	assert.ErrorIs(t, err, whatsmeow.ErrNotConnected)
}

func TestDeviceClient_DoneContextFailsFast(t *testing.T) {
	c := newTestConnector(t)
	client, err := c.Open(context.Background(), "main")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.CreateGroup(ctx, whatsmeow.ReqCreateGroup{Name: "team"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = client.IsOnWhatsApp(ctx, []string{"+628123456789"})
	assert.ErrorIs(t, err, context.Canceled)

	err = client.SendChatPresence(ctx, types.NewJID("628123456789", types.DefaultUserServer), types.ChatPresenceComposing, types.ChatPresenceMediaText)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = client.JoinGroupWithLink(ctx, "AbCdEf")
	assert.ErrorIs(t, err, context.Canceled)
}
