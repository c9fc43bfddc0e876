package domain

import (
	"fmt"
	"strings"
)

// ClientIdentity is how the linked device presents itself to the phone
type ClientIdentity struct {
	Name     string
	Platform string
	Version  [3]uint32
}

// ParseClientVersion parses "major.minor.patch" into a version triple
func ParseClientVersion(s string) ([3]uint32, error) {
	var v [3]uint32
	if s == "" {
		return v, nil
	}
	n, err := fmt.Sscanf(s, "%d.%d.%d", &v[0], &v[1], &v[2])
	if err != nil || n != 3 {
		return v, NewConfigError("client_version", fmt.Sprintf("expected major.minor.patch, got %q", s))
	}
	return v, nil
}

// QROutput is a set of QR rendering targets. Targets combine with bitwise or.
type QROutput uint8

const (
	QROutputTerminal QROutput = 1 << iota
	QROutputImage
	QROutputRaw

	QROutputNone QROutput = 0
)

var qrOutputNames = map[string]QROutput{
	"terminal": QROutputTerminal,
	"image":    QROutputImage,
	"raw":      QROutputRaw,
}

// Has reports whether all targets in flag are enabled
func (o QROutput) Has(flag QROutput) bool {
	return flag != 0 && o&flag == flag
}

func (o QROutput) String() string {
	if o == QROutputNone {
		return "none"
	}
	var parts []string
	for _, name := range []string{"terminal", "image", "raw"} {
		if o.Has(qrOutputNames[name]) {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseQROutput parses a comma separated list such as "terminal,image".
// "none" and the empty string disable rendering.
func ParseQROutput(s string) (QROutput, error) {
	var out QROutput
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || part == "none" {
			continue
		}
		flag, ok := qrOutputNames[part]
		if !ok {
			return QROutputNone, NewConfigError("qr_output", fmt.Sprintf("unknown target %q", part))
		}
		out |= flag
	}
	return out, nil
}
