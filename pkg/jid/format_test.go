package jid

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_PhoneNormalization(t *testing.T) {
	f := NewFormatter("62")

	want := "628123456789@s.whatsapp.net"
	assert.Equal(t, want, f.Format("08123456789", KindAuto))
	assert.Equal(t, want, f.Format("628123456789", KindAuto))
	assert.Equal(t, want, f.Format("+62 812-3456-789", KindAuto))
	assert.Equal(t, want, f.Format("8123456789", KindAuto))
}

func TestFormat_DialPrefixes(t *testing.T) {
	f := NewFormatter("62")

	assert.Equal(t, "628123456789@s.whatsapp.net", f.Format("0062 812-3456-789", KindUser))
	assert.Equal(t, "5511999998888@s.whatsapp.net", f.Format("005511999998888", KindAuto))
	// Only one trunk zero is replaced by the country code.
	assert.Equal(t, "628123456789@s.whatsapp.net", f.Format("08123456789", KindUser))
}

func TestFormat_Idempotent(t *testing.T) {
	f := NewFormatter("")

	inputs := []string{
		"628123456789@s.whatsapp.net",
		"123456789-1234567890@g.us",
		"1234567890@lid",
		"status@broadcast",
		"08123456789",
		"120363025246125486",
	}
	for _, in := range inputs {
		once := f.Format(in, KindAuto)
		assert.Equal(t, once, f.Format(once, KindAuto), "input %q", in)
	}
}

func TestFormat_AlreadySuffixedIsUnchanged(t *testing.T) {
	f := NewFormatter("62")

	assert.Equal(t, "628123456789@s.whatsapp.net", f.Format("628123456789@s.whatsapp.net", KindGroup))
	assert.Equal(t, "abc@newsletter", f.Format("abc@newsletter", KindAuto))
	assert.Equal(t, "628123456789@c.us", f.Format("628123456789@c.us", KindAuto))
}

func TestFormat_GroupDetection(t *testing.T) {
	f := NewFormatter("62")

	assert.Equal(t, "123456789-1234567890@g.us", f.Format("123456789-1234567890", KindAuto))
	assert.Equal(t, "120363025246125486@g.us", f.Format("120363025246125486", KindAuto))

	// Explicit group classification does not inspect the pattern.
	assert.Equal(t, "team-chat@g.us", f.Format("team-chat", KindGroup))

	// Forcing a user skips auto-detection.
	assert.Equal(t, "1203630252461254860@s.whatsapp.net", f.Format("1203630252461254860", KindUser))
}

func TestFormat_LinkedDevice(t *testing.T) {
	f := NewFormatter("62")

	assert.Equal(t, "123456789012345@lid", f.Format("123-456-789-012-345", KindLID))
}

func TestFormat_ImplausibleLengthPassesThrough(t *testing.T) {
	f := NewFormatter("62")

	assert.Equal(t, "12345@s.whatsapp.net", f.Format("12345", KindAuto))
	assert.Equal(t, "1234567890123456789@s.whatsapp.net", f.Format("1234567890123456789", KindUser))
}

func TestFormatAll_PreservesOrder(t *testing.T) {
	f := NewFormatter("62")

	got := f.FormatAll([]string{"08123456789", "123456789-1234567890", "5511999998888"}, KindAuto)
	want := []string{
		"628123456789@s.whatsapp.net",
		"123456789-1234567890@g.us",
		"5511999998888@s.whatsapp.net",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FormatAll mismatch (-want +got):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	f := NewFormatter("62")

	parsed, err := f.Parse("08123456789", KindAuto)
	require.NoError(t, err)
	assert.Equal(t, "628123456789", parsed.User)
	assert.Equal(t, "s.whatsapp.net", parsed.Server)

	_, err = f.Parse("   ", KindAuto)
	require.Error(t, err)

	jids, err := f.ParseAll([]string{"08123456789", "123456789-1234567890"}, KindAuto)
	require.NoError(t, err)
	require.Len(t, jids, 2)
	assert.Equal(t, "g.us", jids[1].Server)
}

func TestNewFormatter_DefaultsCountryCode(t *testing.T) {
	assert.Equal(t, DefaultCountryCode, NewFormatter("").CountryCode)
	assert.Equal(t, "55", NewFormatter("+55").CountryCode)
}
