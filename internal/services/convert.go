package services

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"wazmeow/internal/domain"
	"wazmeow/internal/storage"
)

// convertMessage normalizes a whatsmeow message
func convertMessage(info types.MessageInfo, msg *waE2E.Message) domain.Message {
	m := domain.Message{
		ID:        info.ID,
		Chat:      info.Chat.String(),
		Sender:    info.Sender.String(),
		PushName:  info.PushName,
		FromMe:    info.IsFromMe,
		IsGroup:   info.IsGroup,
		Timestamp: info.Timestamp,
		Raw:       msg,
	}
	fillContent(&m, msg)
	return m
}

func fillContent(m *domain.Message, msg *waE2E.Message) {
	m.Type = domain.MessageTypeUnknown
	if msg == nil {
		return
	}

	switch {
	case msg.GetConversation() != "":
		m.Type = domain.MessageTypeText
		m.Text = msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		ext := msg.GetExtendedTextMessage()
		m.Type = domain.MessageTypeText
		m.Text = ext.GetText()
		m.QuotedID = ext.GetContextInfo().GetStanzaID()
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		m.Type = domain.MessageTypeImage
		m.Caption = img.GetCaption()
		m.MimeType = img.GetMimetype()
		m.QuotedID = img.GetContextInfo().GetStanzaID()
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		m.Type = domain.MessageTypeVideo
		m.Caption = vid.GetCaption()
		m.MimeType = vid.GetMimetype()
		m.QuotedID = vid.GetContextInfo().GetStanzaID()
	case msg.GetAudioMessage() != nil:
		m.Type = domain.MessageTypeAudio
		m.MimeType = msg.GetAudioMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		m.Type = domain.MessageTypeDocument
		m.Text = doc.GetFileName()
		m.Caption = doc.GetCaption()
		m.MimeType = doc.GetMimetype()
	case msg.GetStickerMessage() != nil:
		m.Type = domain.MessageTypeSticker
		m.MimeType = msg.GetStickerMessage().GetMimetype()
	case msg.GetLocationMessage() != nil:
		loc := msg.GetLocationMessage()
		m.Type = domain.MessageTypeLocation
		m.Text = loc.GetName()
		m.Caption = loc.GetAddress()
	case msg.GetContactMessage() != nil:
		m.Type = domain.MessageTypeContact
		m.Text = msg.GetContactMessage().GetDisplayName()
	case msg.GetContactsArrayMessage() != nil:
		m.Type = domain.MessageTypeContact
		m.Text = msg.GetContactsArrayMessage().GetDisplayName()
	case msg.GetReactionMessage() != nil:
		r := msg.GetReactionMessage()
		m.Type = domain.MessageTypeReaction
		m.Text = r.GetText()
		m.QuotedID = r.GetKey().GetID()
	case msg.GetPollCreationMessage() != nil:
		m.Type = domain.MessageTypePoll
		m.Text = msg.GetPollCreationMessage().GetName()
	case msg.GetPollCreationMessageV3() != nil:
		m.Type = domain.MessageTypePoll
		m.Text = msg.GetPollCreationMessageV3().GetName()
	}
}

// messageRecord builds the stored form of m. Payload is the protojson
// encoding of the raw protobuf when one is attached.
func messageRecord(id domain.SessionID, m domain.Message, status string) *storage.MessageRecord {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	rec := &storage.MessageRecord{
		SessionID: id.String(),
		ID:        m.ID,
		RemoteJID: m.Chat,
		Sender:    m.Sender,
		FromMe:    m.FromMe,
		Type:      string(m.Type),
		Text:      text,
		Status:    status,
		Timestamp: m.Timestamp,
	}
	if raw, ok := m.Raw.(proto.Message); ok && raw != nil {
		if data, err := protojson.Marshal(raw); err == nil {
			rec.Payload = data
		}
	}
	return rec
}

func contactRecord(id domain.SessionID, c domain.Contact) *storage.ContactRecord {
	return &storage.ContactRecord{
		SessionID:    id.String(),
		JID:          c.JID,
		FullName:     c.FullName,
		FirstName:    c.FirstName,
		PushName:     c.PushName,
		BusinessName: c.BusinessName,
	}
}

func chatRecord(id domain.SessionID, c domain.Chat) *storage.ChatRecord {
	return &storage.ChatRecord{
		SessionID:     id.String(),
		JID:           c.JID,
		Name:          c.Name,
		UnreadCount:   c.UnreadCount,
		Archived:      c.Archived,
		Pinned:        c.Pinned,
		MutedUntil:    c.MutedUntil,
		LastMessageAt: c.LastMessageAt,
	}
}

// convertConversation normalizes a history sync conversation
func convertConversation(conv *waHistorySync.Conversation) domain.Chat {
	chat := domain.Chat{
		JID:         conv.GetID(),
		Name:        conv.GetName(),
		UnreadCount: int(conv.GetUnreadCount()),
		Archived:    conv.GetArchived(),
		Pinned:      conv.GetPinned() > 0,
	}
	if ts := conv.GetConversationTimestamp(); ts > 0 {
		chat.LastMessageAt = time.Unix(int64(ts), 0)
	}
	if mute := conv.GetMuteEndTime(); mute > 0 {
		chat.MutedUntil = time.Unix(int64(mute), 0)
	}
	return chat
}

func jidStrings(jids []types.JID) []string {
	out := make([]string, len(jids))
	for i, j := range jids {
		out[i] = j.String()
	}
	return out
}

func receiptStatus(t types.ReceiptType) string {
	if t == types.ReceiptTypeDelivered {
		return "delivered"
	}
	return string(t)
}
