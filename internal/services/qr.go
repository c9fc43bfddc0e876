package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"

	"wazmeow/internal/domain"
)

// qrRenderer turns provisioning codes into the configured outputs
type qrRenderer struct {
	opts QROptions
	out  io.Writer
}

// render writes the terminal and raw outputs and returns the PNG data URL
// when image output is enabled.
func (r qrRenderer) render(sessionID domain.SessionID, code string) (string, error) {
	if r.opts.Output.Has(domain.QROutputTerminal) {
		fmt.Fprintf(r.out, "\n=== QR CODE FOR WHATSAPP [%s] ===\n", sessionID)
		qrterminal.GenerateHalfBlock(code, qrterminal.L, r.out)
		fmt.Fprintln(r.out, "=============================")
	}
	if r.opts.Output.Has(domain.QROutputRaw) {
		fmt.Fprintf(r.out, "QR Code String [%s]: %s\n", sessionID, code)
	}
	if !r.opts.Output.Has(domain.QROutputImage) {
		return "", nil
	}

	data, err := encodeQRPNG(code, r.opts)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// encodeQRPNG draws the code with a margin of opts.Margin modules, scaled to
// roughly opts.Width pixels.
func encodeQRPNG(code string, opts QROptions) ([]byte, error) {
	q, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code image: %w", err)
	}
	q.DisableBorder = true
	bitmap := q.Bitmap()

	dark, err := parseHexColor(opts.DarkColor, color.Black)
	if err != nil {
		return nil, err
	}
	light, err := parseHexColor(opts.LightColor, color.White)
	if err != nil {
		return nil, err
	}

	modules := len(bitmap) + 2*opts.Margin
	scale := opts.Width / modules
	if scale < 1 {
		scale = 1
	}
	size := modules * scale

	img := image.NewPaletted(image.Rect(0, 0, size, size), color.Palette{light, dark})
	for y, row := range bitmap {
		for x, set := range row {
			if !set {
				continue
			}
			x0 := (x + opts.Margin) * scale
			y0 := (y + opts.Margin) * scale
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetColorIndex(x0+dx, y0+dy, 1)
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code image: %w", err)
	}
	return buf.Bytes(), nil
}

// parseHexColor accepts #rgb, #rgba, #rrggbb and #rrggbbaa
func parseHexColor(s string, fallback color.Color) (color.Color, error) {
	if s == "" {
		return fallback, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 || len(hex) == 4 {
		var expanded strings.Builder
		for _, c := range hex {
			expanded.WriteRune(c)
			expanded.WriteRune(c)
		}
		hex = expanded.String()
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return nil, domain.NewConfigError("qr.color", fmt.Sprintf("invalid color %q", s))
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, domain.NewConfigError("qr.color", fmt.Sprintf("invalid color %q", s))
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
