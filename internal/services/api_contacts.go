package services

import (
	"context"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wazmeow/internal/domain"
	"wazmeow/pkg/jid"
)

// IsOnWhatsApp checks which phone numbers have an account
func (a *API) IsOnWhatsApp(ctx context.Context, id domain.SessionID, phones []string) ([]types.IsOnWhatsAppResponse, error) {
	if len(phones) == 0 {
		return nil, domain.NewValidationError("at least one phone number is required")
	}
	_, client, err := a.client(id)
	if err != nil {
		return nil, err
	}

	numbers := make([]string, 0, len(phones))
	for _, p := range phones {
		number, err := a.phone(p)
		if err != nil {
			return nil, err
		}
		numbers = append(numbers, "+"+number)
	}
	return client.IsOnWhatsApp(ctx, numbers)
}

// UserInfo fetches status, picture id and devices of users
func (a *API) UserInfo(ctx context.Context, id domain.SessionID, users []string) (map[types.JID]types.UserInfo, error) {
	_, client, err := a.client(id)
	if err != nil {
		return nil, err
	}
	targets, err := a.parseAll(users, jid.KindUser)
	if err != nil {
		return nil, err
	}
	return client.GetUserInfo(ctx, targets)
}

// ProfilePicture returns the picture of a user or group, or nil when unset
func (a *API) ProfilePicture(ctx context.Context, id domain.SessionID, target string, preview bool) (*types.ProfilePictureInfo, error) {
	_, client, err := a.client(id)
	if err != nil {
		return nil, err
	}
	who, err := a.parse(target, jid.KindAuto)
	if err != nil {
		return nil, err
	}
	return client.GetProfilePictureInfo(ctx, who, &whatsmeow.GetProfilePictureParams{Preview: preview})
}

// Block adds a user to the blocklist
func (a *API) Block(ctx context.Context, id domain.SessionID, user string) (*types.Blocklist, error) {
	return a.updateBlocklist(ctx, id, user, events.BlocklistChangeActionBlock)
}

// Unblock removes a user from the blocklist
func (a *API) Unblock(ctx context.Context, id domain.SessionID, user string) (*types.Blocklist, error) {
	return a.updateBlocklist(ctx, id, user, events.BlocklistChangeActionUnblock)
}

// Blocklist returns the blocked users
func (a *API) Blocklist(ctx context.Context, id domain.SessionID) (*types.Blocklist, error) {
	_, client, err := a.client(id)
	if err != nil {
		return nil, err
	}
	return client.GetBlocklist(ctx)
}

func (a *API) updateBlocklist(ctx context.Context, id domain.SessionID, user string, action events.BlocklistChangeAction) (*types.Blocklist, error) {
	_, client, err := a.client(id)
	if err != nil {
		return nil, err
	}
	target, err := a.parse(user, jid.KindUser)
	if err != nil {
		return nil, err
	}
	return client.UpdateBlocklist(ctx, target, action)
}
