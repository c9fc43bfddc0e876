// Package jid normalizes phone numbers and group identifiers into WhatsApp
// addresses (JIDs).
package jid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/types"
)

// DefaultCountryCode is used when a Formatter has no country code configured.
const DefaultCountryCode = "62"

// groupPrefix marks server-assigned group ids that arrive without a suffix.
const groupPrefix = "120363"

// Kind tells the formatter how to classify a raw identifier.
type Kind int

const (
	// KindAuto detects groups from the input shape and treats everything else as a phone number.
	KindAuto Kind = iota
	// KindUser forces phone number classification.
	KindUser
	// KindGroup appends the group suffix verbatim.
	KindGroup
	// KindLID formats a linked-device identifier.
	KindLID
)

var (
	nonDigits     = regexp.MustCompile(`\D`)
	legacyGroupID = regexp.MustCompile(`^\d+-\d+$`)
	knownServers  = []string{
		types.DefaultUserServer,
		types.GroupServer,
		types.HiddenUserServer,
		types.BroadcastServer,
		types.NewsletterServer,
		types.LegacyUserServer,
	}
)

// Formatter converts raw identifiers into canonical JID strings.
type Formatter struct {
	CountryCode string
}

// NewFormatter returns a formatter for the given default country code.
func NewFormatter(countryCode string) *Formatter {
	countryCode = nonDigits.ReplaceAllString(countryCode, "")
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return &Formatter{CountryCode: countryCode}
}

// Format returns the canonical JID string for raw. It never fails: inputs
// with an implausible length are passed through with a warning.
func (f *Formatter) Format(raw string, kind Kind) string {
	raw = strings.TrimSpace(raw)
	if hasKnownServer(raw) {
		return raw
	}

	switch kind {
	case KindLID:
		return nonDigits.ReplaceAllString(raw, "") + "@" + types.HiddenUserServer
	case KindGroup:
		return raw + "@" + types.GroupServer
	case KindAuto:
		if IsGroupID(raw) {
			return raw + "@" + types.GroupServer
		}
	}

	return f.formatPhone(raw) + "@" + types.DefaultUserServer
}

// FormatAll applies Format to every entry, preserving order.
func (f *Formatter) FormatAll(raws []string, kind Kind) []string {
	out := make([]string, len(raws))
	for i, raw := range raws {
		out[i] = f.Format(raw, kind)
	}
	return out
}

// Parse formats raw and parses the result into a whatsmeow JID.
func (f *Formatter) Parse(raw string, kind Kind) (types.JID, error) {
	if strings.TrimSpace(raw) == "" {
		return types.EmptyJID, fmt.Errorf("address cannot be empty")
	}
	formatted := f.Format(raw, kind)
	parsed, err := types.ParseJID(formatted)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return parsed, nil
}

// ParseAll parses every entry, failing on the first invalid one.
func (f *Formatter) ParseAll(raws []string, kind Kind) ([]types.JID, error) {
	out := make([]types.JID, 0, len(raws))
	for _, raw := range raws {
		parsed, err := f.Parse(raw, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}

// IsGroupID reports whether an unsuffixed identifier looks like a group id.
// This is a heuristic: long numbers starting with the reserved prefix are
// assumed to be groups.
func IsGroupID(raw string) bool {
	if legacyGroupID.MatchString(raw) {
		return true
	}
	return len(raw) >= 18 && strings.HasPrefix(raw, groupPrefix) && nonDigits.FindStringIndex(raw) == nil
}

func (f *Formatter) formatPhone(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	cc := f.CountryCode
	if cc == "" {
		cc = DefaultCountryCode
	}

	switch {
	case strings.HasPrefix(digits, "00"):
		// International call prefix: the country code follows.
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		// National trunk prefix.
		digits = cc + digits[1:]
	case strings.HasPrefix(digits, "8") && len(digits) >= 9 && len(digits) <= 12:
		digits = cc + digits
	}

	if len(digits) < 10 || len(digits) > 15 {
		log.Warn().
			Str("input", raw).
			Str("digits", digits).
			Msg("Phone number length outside 10-15 digits, passing through")
	}
	return digits
}

func hasKnownServer(raw string) bool {
	at := strings.LastIndexByte(raw, '@')
	if at < 0 {
		return false
	}
	server := raw[at+1:]
	for _, known := range knownServers {
		if server == known {
			return true
		}
	}
	return false
}
