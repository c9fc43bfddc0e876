package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"
	"github.com/vincent-petithory/dataurl"

	"wazmeow/internal/domain"
)

const (
	audioMimeType   = "audio/ogg; codecs=opus"
	stickerMimeType = "image/webp"
	thumbnailSize   = 72
)

// Media is an attachment given either as raw bytes or as a data URL
type Media struct {
	Data     []byte `validate:"required_without=DataURL"`
	DataURL  string `validate:"omitempty,datauri"`
	MimeType string
	FileName string
	Caption  string
}

// resolve returns the attachment bytes and their mime type. An explicit
// MimeType wins over the data URL's, which wins over content sniffing.
func (m Media) resolve() ([]byte, string, error) {
	data, mime := m.Data, m.MimeType
	if len(data) == 0 && m.DataURL != "" {
		parsed, err := dataurl.DecodeString(m.DataURL)
		if err != nil {
			return nil, "", domain.NewValidationError(fmt.Sprintf("failed to decode data URL: %v", err))
		}
		data = parsed.Data
		if mime == "" {
			mime = parsed.MediaType.ContentType()
		}
	}
	if len(data) == 0 {
		return nil, "", domain.NewValidationError("media is empty")
	}
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	return data, mime, nil
}

// thumbnail returns a JPEG thumbnail of at most 72x72 for image data
func thumbnail(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := resize.Thumbnail(thumbnailSize, thumbnailSize, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func validateCoordinate(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return domain.NewValidationError(fmt.Sprintf("invalid latitude: %f (must be between -90 and 90)", lat))
	}
	if lng < -180 || lng > 180 {
		return domain.NewValidationError(fmt.Sprintf("invalid longitude: %f (must be between -180 and 180)", lng))
	}
	return nil
}

// vCard builds a minimal contact card
func vCard(name, phone string) string {
	digits := strings.TrimPrefix(phone, "+")
	return fmt.Sprintf("BEGIN:VCARD\nVERSION:3.0\nFN:%s\nTEL;type=CELL;waid=%s:+%s\nEND:VCARD", name, digits, digits)
}
