package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"wazmeow/internal/domain"
	"wazmeow/internal/infra/whatsapp"
	"wazmeow/pkg/jid"
)

// SendResult identifies a message accepted by the server
type SendResult struct {
	MessageID string    `json:"message_id"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Location is a pin to share
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
	Address   string
}

// Poll describes a poll to create
type Poll struct {
	Name       string   `validate:"required"`
	Options    []string `validate:"min=2,max=12,dive,required"`
	Selectable int      `validate:"min=0"`
}

// SendText sends a plain text message
func (a *API) SendText(ctx context.Context, id domain.SessionID, to, text string) (*SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewValidationError("text is required")
	}
	return a.send(ctx, id, to, &waE2E.Message{Conversation: proto.String(text)})
}

// SendImage uploads an image and sends it with a JPEG thumbnail
func (a *API) SendImage(ctx context.Context, id domain.SessionID, to string, media Media) (*SendResult, error) {
	return a.sendMedia(ctx, id, to, media, whatsmeow.MediaImage, func(up whatsmeow.UploadResponse, data []byte, mime string) *waE2E.Message {
		img := &waE2E.ImageMessage{
			Caption:       proto.String(media.Caption),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mime),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}
		if thumb, err := thumbnail(data); err == nil {
			img.JPEGThumbnail = thumb
		} else {
			log.Debug().Err(err).Msg("Sending image without thumbnail")
		}
		return &waE2E.Message{ImageMessage: img}
	})
}

// SendVideo uploads and sends a video
func (a *API) SendVideo(ctx context.Context, id domain.SessionID, to string, media Media) (*SendResult, error) {
	return a.sendMedia(ctx, id, to, media, whatsmeow.MediaVideo, func(up whatsmeow.UploadResponse, _ []byte, mime string) *waE2E.Message {
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       proto.String(media.Caption),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mime),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	})
}

// SendAudio uploads and sends audio. With ptt set it is shown as a voice note.
func (a *API) SendAudio(ctx context.Context, id domain.SessionID, to string, media Media, ptt bool) (*SendResult, error) {
	if ptt && media.MimeType == "" {
		media.MimeType = audioMimeType
	}
	return a.sendMedia(ctx, id, to, media, whatsmeow.MediaAudio, func(up whatsmeow.UploadResponse, _ []byte, mime string) *waE2E.Message {
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mime),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			PTT:           proto.Bool(ptt),
		}}
	})
}

// SendDocument uploads and sends a file
func (a *API) SendDocument(ctx context.Context, id domain.SessionID, to string, media Media) (*SendResult, error) {
	if media.FileName == "" {
		return nil, domain.NewValidationError("file name is required for documents")
	}
	return a.sendMedia(ctx, id, to, media, whatsmeow.MediaDocument, func(up whatsmeow.UploadResponse, _ []byte, mime string) *waE2E.Message {
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Title:         proto.String(media.FileName),
			FileName:      proto.String(media.FileName),
			Caption:       proto.String(media.Caption),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mime),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	})
}

// SendSticker uploads and sends a WebP sticker
func (a *API) SendSticker(ctx context.Context, id domain.SessionID, to string, media Media) (*SendResult, error) {
	if media.MimeType == "" {
		media.MimeType = stickerMimeType
	}
	return a.sendMedia(ctx, id, to, media, whatsmeow.MediaImage, func(up whatsmeow.UploadResponse, _ []byte, mime string) *waE2E.Message {
		return &waE2E.Message{StickerMessage: &waE2E.StickerMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mime),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	})
}

// SendLocation shares a location pin
func (a *API) SendLocation(ctx context.Context, id domain.SessionID, to string, loc Location) (*SendResult, error) {
	if err := validateCoordinate(loc.Latitude, loc.Longitude); err != nil {
		return nil, err
	}
	return a.send(ctx, id, to, &waE2E.Message{LocationMessage: &waE2E.LocationMessage{
		DegreesLatitude:  proto.Float64(loc.Latitude),
		DegreesLongitude: proto.Float64(loc.Longitude),
		Name:             proto.String(loc.Name),
		Address:          proto.String(loc.Address),
	}})
}

// SendContact shares a contact card
func (a *API) SendContact(ctx context.Context, id domain.SessionID, to, name, phone string) (*SendResult, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.NewValidationError("contact name is required")
	}
	number, err := a.phone(phone)
	if err != nil {
		return nil, err
	}
	return a.send(ctx, id, to, &waE2E.Message{ContactMessage: &waE2E.ContactMessage{
		DisplayName: proto.String(name),
		Vcard:       proto.String(vCard(name, number)),
	}})
}

// SendReaction reacts to a message. An empty sender means the message is
// our own; an empty emoji removes the reaction.
func (a *API) SendReaction(ctx context.Context, id domain.SessionID, chat, sender, messageID, emoji string) (*SendResult, error) {
	return a.build(ctx, id, chat, func(client whatsapp.Client, target types.JID) (*waE2E.Message, error) {
		if messageID == "" {
			return nil, domain.NewValidationError("message id is required")
		}
		from, err := a.sender(sender)
		if err != nil {
			return nil, err
		}
		return client.BuildReaction(target, from, messageID, emoji), nil
	})
}

// SendPoll creates a poll. Selectable 0 allows any number of choices.
func (a *API) SendPoll(ctx context.Context, id domain.SessionID, to string, poll Poll) (*SendResult, error) {
	if err := a.check(poll); err != nil {
		return nil, err
	}
	return a.build(ctx, id, to, func(client whatsapp.Client, _ types.JID) (*waE2E.Message, error) {
		return client.BuildPollCreation(poll.Name, poll.Options, poll.Selectable), nil
	})
}

// EditMessage replaces the text of one of our messages
func (a *API) EditMessage(ctx context.Context, id domain.SessionID, chat, messageID, text string) (*SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewValidationError("text is required")
	}
	return a.build(ctx, id, chat, func(client whatsapp.Client, target types.JID) (*waE2E.Message, error) {
		if messageID == "" {
			return nil, domain.NewValidationError("message id is required")
		}
		return client.BuildEdit(target, messageID, &waE2E.Message{Conversation: proto.String(text)}), nil
	})
}

// RevokeMessage deletes a message for everyone. An empty sender means the
// message is our own; admins may revoke others' messages in groups.
func (a *API) RevokeMessage(ctx context.Context, id domain.SessionID, chat, sender, messageID string) (*SendResult, error) {
	return a.build(ctx, id, chat, func(client whatsapp.Client, target types.JID) (*waE2E.Message, error) {
		if messageID == "" {
			return nil, domain.NewValidationError("message id is required")
		}
		from, err := a.sender(sender)
		if err != nil {
			return nil, err
		}
		return client.BuildRevoke(target, from, messageID), nil
	})
}

// MarkRead sends read receipts for messages of one sender in a chat
func (a *API) MarkRead(ctx context.Context, id domain.SessionID, chat, sender string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return domain.NewValidationError("at least one message id is required")
	}
	_, client, err := a.client(id)
	if err != nil {
		return err
	}
	target, err := a.parse(chat, jid.KindAuto)
	if err != nil {
		return err
	}
	from, err := a.sender(sender)
	if err != nil {
		return err
	}
	return client.MarkRead(ctx, messageIDs, time.Now(), target, from)
}

func (a *API) sender(raw string) (types.JID, error) {
	if raw == "" {
		return types.EmptyJID, nil
	}
	return a.parse(raw, jid.KindUser)
}

func (a *API) send(ctx context.Context, id domain.SessionID, to string, msg *waE2E.Message) (*SendResult, error) {
	return a.build(ctx, id, to, func(whatsapp.Client, types.JID) (*waE2E.Message, error) {
		return msg, nil
	})
}

// sendMedia validates and uploads the attachment, then sends the message
// built from the upload response.
func (a *API) sendMedia(
	ctx context.Context,
	id domain.SessionID,
	to string,
	media Media,
	kind whatsmeow.MediaType,
	wrap func(up whatsmeow.UploadResponse, data []byte, mime string) *waE2E.Message,
) (*SendResult, error) {
	if err := a.check(media); err != nil {
		return nil, err
	}
	data, mime, err := media.resolve()
	if err != nil {
		return nil, err
	}
	return a.build(ctx, id, to, func(client whatsapp.Client, _ types.JID) (*waE2E.Message, error) {
		up, err := client.Upload(ctx, data, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", kind, err)
		}
		return wrap(up, data, mime), nil
	})
}

// build resolves the client and recipient, builds the message and sends it.
// Accepted messages are recorded on the session.
func (a *API) build(
	ctx context.Context,
	id domain.SessionID,
	to string,
	compose func(client whatsapp.Client, target types.JID) (*waE2E.Message, error),
) (*SendResult, error) {
	session, client, err := a.client(id)
	if err != nil {
		return nil, err
	}
	target, err := a.parse(to, jid.KindAuto)
	if err != nil {
		return nil, err
	}
	msg, err := compose(client, target)
	if err != nil {
		return nil, err
	}

	resp, err := client.SendMessage(ctx, target, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	sent := domain.Message{
		ID:        resp.ID,
		Chat:      target.String(),
		FromMe:    true,
		IsGroup:   target.Server == types.GroupServer,
		Timestamp: resp.Timestamp,
		Raw:       msg,
	}
	// Edits and revocations update an existing message and are not recorded.
	if msg.GetProtocolMessage() == nil && msg.GetEditedMessage() == nil {
		fillContent(&sent, msg)
		session.TrackSent(ctx, sent)
	}

	log.Debug().
		Str("session_id", id.String()).
		Str("to", target.String()).
		Str("message_id", resp.ID).
		Msg("Message sent")

	return &SendResult{MessageID: resp.ID, To: target.String(), Timestamp: resp.Timestamp}, nil
}
