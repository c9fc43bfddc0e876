package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"

	"wazmeow/internal/domain"
	"wazmeow/pkg/jid"
)

const inviteLinkPrefix = "https://chat.whatsapp.com/"

// CreateGroup creates a group with the given members
func (a *API) CreateGroup(ctx context.Context, id domain.SessionID, name string, participants []string) (*types.GroupInfo, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.NewValidationError("group name is required")
	}
	_, client, err := a.client(id)
	if err != nil {
		return nil, err
	}
	members, err := a.parseAll(participants, jid.KindUser)
	if err != nil {
		return nil, err
	}

	info, err := client.CreateGroup(ctx, whatsmeow.ReqCreateGroup{Name: name, Participants: members})
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	log.Info().
		Str("session_id", id.String()).
		Str("group", info.JID.String()).
		Int("participants", len(members)).
		Msg("Group created")
	return info, nil
}

// GroupInfo fetches a group's metadata and members
func (a *API) GroupInfo(ctx context.Context, id domain.SessionID, group string) (*types.GroupInfo, error) {
	_, client, err := a.client(id)
	if err != nil {
		return nil, err
	}
	target, err := a.parse(group, jid.KindGroup)
	if err != nil {
		return nil, err
	}
	return client.GetGroupInfo(ctx, target)
}

// JoinedGroups lists the groups the account is a member of
func (a *API) JoinedGroups(ctx context.Context, id domain.SessionID) ([]*types.GroupInfo, error) {
	_, client, err := a.client(id)
	if err != nil {
		return nil, err
	}
	return client.GetJoinedGroups(ctx)
}

// UpdateParticipants adds, removes, promotes or demotes group members.
// Action is one of add, remove, promote and demote.
func (a *API) UpdateParticipants(ctx context.Context, id domain.SessionID, group string, participants []string, action string) ([]types.GroupParticipant, error) {
	change, err := participantChange(action)
	if err != nil {
		return nil, err
	}
	_, client, err := a.client(id)
	if err != nil {
		return nil, err
	}
	target, err := a.parse(group, jid.KindGroup)
	if err != nil {
		return nil, err
	}
	members, err := a.parseAll(participants, jid.KindUser)
	if err != nil {
		return nil, err
	}
	return client.UpdateGroupParticipants(ctx, target, members, change)
}

// SetGroupName renames a group
func (a *API) SetGroupName(ctx context.Context, id domain.SessionID, group, name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewValidationError("group name is required")
	}
	_, client, err := a.client(id)
	if err != nil {
		return err
	}
	target, err := a.parse(group, jid.KindGroup)
	if err != nil {
		return err
	}
	return client.SetGroupName(ctx, target, name)
}

// SetGroupTopic changes a group's description
func (a *API) SetGroupTopic(ctx context.Context, id domain.SessionID, group, topic string) error {
	_, client, err := a.client(id)
	if err != nil {
		return err
	}
	target, err := a.parse(group, jid.KindGroup)
	if err != nil {
		return err
	}
	return client.SetGroupTopic(ctx, target, "", "", topic)
}

// LeaveGroup leaves a group
func (a *API) LeaveGroup(ctx context.Context, id domain.SessionID, group string) error {
	_, client, err := a.client(id)
	if err != nil {
		return err
	}
	target, err := a.parse(group, jid.KindGroup)
	if err != nil {
		return err
	}
	return client.LeaveGroup(ctx, target)
}

// GroupInviteLink returns the invite link of a group, revoking the old one
// first when reset is set.
func (a *API) GroupInviteLink(ctx context.Context, id domain.SessionID, group string, reset bool) (string, error) {
	_, client, err := a.client(id)
	if err != nil {
		return "", err
	}
	target, err := a.parse(group, jid.KindGroup)
	if err != nil {
		return "", err
	}
	return client.GetGroupInviteLink(ctx, target, reset)
}

// JoinGroupWithLink joins a group from an invite link or bare invite code
func (a *API) JoinGroupWithLink(ctx context.Context, id domain.SessionID, link string) (string, error) {
	code := strings.TrimPrefix(strings.TrimSpace(link), inviteLinkPrefix)
	if code == "" {
		return "", domain.NewValidationError("invite code is required")
	}
	_, client, err := a.client(id)
	if err != nil {
		return "", err
	}
	group, err := client.JoinGroupWithLink(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to join group: %w", err)
	}
	return group.String(), nil
}

func participantChange(action string) (whatsmeow.ParticipantChange, error) {
	switch strings.ToLower(action) {
	case "add":
		return whatsmeow.ParticipantChangeAdd, nil
	case "remove":
		return whatsmeow.ParticipantChangeRemove, nil
	case "promote":
		return whatsmeow.ParticipantChangePromote, nil
	case "demote":
		return whatsmeow.ParticipantChangeDemote, nil
	default:
		return "", domain.NewValidationError(fmt.Sprintf("invalid participant action %q", action))
	}
}
