package services

import (
	"bytes"
	"encoding/base64"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wazmeow/internal/domain"
)

func TestQRRender_ImageDataURL(t *testing.T) {
	var out bytes.Buffer
	r := qrRenderer{opts: QROptions{Output: domain.QROutputImage, Width: 256, Margin: 4}, out: &out}

	url, err := r.render("s1", "2@abcdef,ghijkl,mnopqr")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	assert.Zero(t, out.Len())

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Equal(t, bounds.Dx(), bounds.Dy())
	assert.LessOrEqual(t, bounds.Dx(), 256)
	// The margin is light.
	r0, g0, b0, _ := img.At(0, 0).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r0, g0, b0})
}

func TestQRRender_TerminalAndRaw(t *testing.T) {
	var out bytes.Buffer
	r := qrRenderer{opts: QROptions{Output: domain.QROutputTerminal | domain.QROutputRaw}, out: &out}

	url, err := r.render("s1", "code-123")
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.Contains(t, out.String(), "QR CODE FOR WHATSAPP [s1]")
	assert.Contains(t, out.String(), "QR Code String [s1]: code-123")
}

func TestQRRender_None(t *testing.T) {
	var out bytes.Buffer
	url, err := qrRenderer{out: &out}.render("s1", "code")
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.Zero(t, out.Len())
}

func TestParseHexColor(t *testing.T) {
	c, err := parseHexColor("#f00", color.Black)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, c)

	c, err = parseHexColor("#00ff0080", color.Black)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{G: 0xff, A: 0x80}, c)

	c, err = parseHexColor("", color.White)
	require.NoError(t, err)
	assert.Equal(t, color.White, c)

	_, err = parseHexColor("#zzzzzz", color.Black)
	assert.Error(t, err)
	_, err = parseHexColor("#12345", color.Black)
	assert.Error(t, err)
}
