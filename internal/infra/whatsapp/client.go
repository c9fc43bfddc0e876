// Package whatsapp adapts whatsmeow to the session layer: it opens one
// protocol client per session over a private credential store.
package whatsapp

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Client is the subset of *whatsmeow.Client used by sessions, plus access to
// the linked device identity.
type Client interface {
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
	IsConnected() bool
	IsLoggedIn() bool
	AddEventHandler(handler whatsmeow.EventHandler) uint32
	RemoveEventHandlers()
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	PairPhone(ctx context.Context, phone string, showPushNotification bool, clientType whatsmeow.PairClientType, clientDisplayName string) (string, error)

	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	Upload(ctx context.Context, plaintext []byte, appInfo whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
	GenerateMessageID() types.MessageID
	BuildReaction(chat, sender types.JID, id types.MessageID, reaction string) *waE2E.Message
	BuildPollCreation(name string, optionNames []string, selectableOptionCount int) *waE2E.Message
	BuildRevoke(chat, sender types.JID, id types.MessageID) *waE2E.Message
	BuildEdit(chat types.JID, id types.MessageID, newContent *waE2E.Message) *waE2E.Message
	MarkRead(ctx context.Context, ids []types.MessageID, timestamp time.Time, chat, sender types.JID, receiptTypeExtra ...types.ReceiptType) error

	SendPresence(ctx context.Context, state types.Presence) error
	SubscribePresence(ctx context.Context, jid types.JID) error
	SendChatPresence(ctx context.Context, jid types.JID, state types.ChatPresence, media types.ChatPresenceMedia) error
	SetStatusMessage(ctx context.Context, msg string) error

	CreateGroup(ctx context.Context, req whatsmeow.ReqCreateGroup) (*types.GroupInfo, error)
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	GetJoinedGroups(ctx context.Context) ([]*types.GroupInfo, error)
	UpdateGroupParticipants(ctx context.Context, jid types.JID, participantChanges []types.JID, action whatsmeow.ParticipantChange) ([]types.GroupParticipant, error)
	SetGroupName(ctx context.Context, jid types.JID, name string) error
	SetGroupTopic(ctx context.Context, jid types.JID, previousID, newID, topic string) error
	LeaveGroup(ctx context.Context, jid types.JID) error
	GetGroupInviteLink(ctx context.Context, jid types.JID, reset bool) (string, error)
	JoinGroupWithLink(ctx context.Context, code string) (types.JID, error)

	IsOnWhatsApp(ctx context.Context, phones []string) ([]types.IsOnWhatsAppResponse, error)
	GetUserInfo(ctx context.Context, jids []types.JID) (map[types.JID]types.UserInfo, error)
	GetProfilePictureInfo(ctx context.Context, jid types.JID, params *whatsmeow.GetProfilePictureParams) (*types.ProfilePictureInfo, error)
	GetBlocklist(ctx context.Context) (*types.Blocklist, error)
	UpdateBlocklist(ctx context.Context, jid types.JID, action events.BlocklistChangeAction) (*types.Blocklist, error)

	// Device returns what is known about the linked device.
	Device() DeviceInfo
	// Close releases the credential store. The client must be disconnected.
	Close() error
}

// DeviceInfo describes the linked device behind a client
type DeviceInfo struct {
	JID          string `json:"jid"`
	PushName     string `json:"push_name"`
	Platform     string `json:"platform"`
	BusinessName string `json:"business_name"`
	// Paired is false until the device has been linked by QR or pairing code.
	Paired bool `json:"paired"`
}

// deviceClient is a whatsmeow client bound to its own credential container
type deviceClient struct {
	*whatsmeow.Client
	container *sqlstore.Container
}

var _ Client = (*deviceClient)(nil)

func (c *deviceClient) Device() DeviceInfo {
	dev := c.Client.Store
	if dev == nil {
		return DeviceInfo{}
	}
	info := DeviceInfo{
		PushName:     dev.PushName,
		Platform:     dev.Platform,
		BusinessName: dev.BusinessName,
	}
	if dev.ID != nil {
		info.JID = dev.ID.String()
		info.Paired = true
	}
	return info
}

func (c *deviceClient) Close() error {
	if c.container == nil {
		return nil
	}
	return c.container.Close()
}

// The pinned whatsmeow only takes a context on its socket-level calls. The
// methods below give every Client operation a context: a done context fails
// fast, otherwise the call runs under whatsmeow's own request timeout.

func (c *deviceClient) MarkRead(ctx context.Context, ids []types.MessageID, timestamp time.Time, chat, sender types.JID, receiptTypeExtra ...types.ReceiptType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Client.MarkRead(ids, timestamp, chat, sender, receiptTypeExtra...)
}

func (c *deviceClient) SendPresence(ctx context.Context, state types.Presence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Client.SendPresence(state)
}

func (c *deviceClient) SubscribePresence(ctx context.Context, jid types.JID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Client.SubscribePresence(jid)
}

func (c *deviceClient) SendChatPresence(ctx context.Context, jid types.JID, state types.ChatPresence, media types.ChatPresenceMedia) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Client.SendChatPresence(jid, state, media)
}

func (c *deviceClient) SetStatusMessage(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Client.SetStatusMessage(msg)
}

func (c *deviceClient) CreateGroup(ctx context.Context, req whatsmeow.ReqCreateGroup) (*types.GroupInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Client.CreateGroup(req)
}

func (c *deviceClient) GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Client.GetGroupInfo(jid)
}

func (c *deviceClient) GetJoinedGroups(ctx context.Context) ([]*types.GroupInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Client.GetJoinedGroups()
}

func (c *deviceClient) UpdateGroupParticipants(ctx context.Context, jid types.JID, participantChanges []types.JID, action whatsmeow.ParticipantChange) ([]types.GroupParticipant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Client.UpdateGroupParticipants(jid, participantChanges, action)
}

func (c *deviceClient) SetGroupName(ctx context.Context, jid types.JID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Client.SetGroupName(jid, name)
}

func (c *deviceClient) SetGroupTopic(ctx context.Context, jid types.JID, previousID, newID, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Client.SetGroupTopic(jid, previousID, newID, topic)
}

func (c *deviceClient) LeaveGroup(ctx context.Context, jid types.JID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Client.LeaveGroup(jid)
}

func (c *deviceClient) GetGroupInviteLink(ctx context.Context, jid types.JID, reset bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.Client.GetGroupInviteLink(jid, reset)
}

func (c *deviceClient) JoinGroupWithLink(ctx context.Context, code string) (types.JID, error) {
	if err := ctx.Err(); err != nil {
		return types.EmptyJID, err
	}
	return c.Client.JoinGroupWithLink(code)
}

func (c *deviceClient) IsOnWhatsApp(ctx context.Context, phones []string) ([]types.IsOnWhatsAppResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Client.IsOnWhatsApp(phones)
}

func (c *deviceClient) GetUserInfo(ctx context.Context, jids []types.JID) (map[types.JID]types.UserInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Client.GetUserInfo(jids)
}

func (c *deviceClient) GetProfilePictureInfo(ctx context.Context, jid types.JID, params *whatsmeow.GetProfilePictureParams) (*types.ProfilePictureInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Client.GetProfilePictureInfo(jid, params)
}

func (c *deviceClient) GetBlocklist(ctx context.Context) (*types.Blocklist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Client.GetBlocklist()
}

func (c *deviceClient) UpdateBlocklist(ctx context.Context, jid types.JID, action events.BlocklistChangeAction) (*types.Blocklist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Client.UpdateBlocklist(jid, action)
}
