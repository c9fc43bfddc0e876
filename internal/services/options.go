package services

import (
	"time"

	"wazmeow/internal/app/config"
	"wazmeow/internal/domain"
)

// QROptions controls how provisioning codes are rendered
type QROptions struct {
	Output     domain.QROutput
	Width      int
	Margin     int
	DarkColor  string
	LightColor string
}

// SessionOptions configures a single session. The registry merges a
// per-session override on top of its base options: non-zero override fields
// win.
type SessionOptions struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	ResetDelay     time.Duration
	ConnectTimeout time.Duration
	// Reconnect is a pointer so an override can switch it off.
	Reconnect *bool
	// AutoStart is persisted with the session and read on cold start.
	AutoStart *bool

	ClientPlatform    string
	ClientDisplayName string

	QR QROptions
	// QRSet marks QR.Output as explicitly chosen, so an override can
	// disable rendering with QROutputNone.
	QRSet bool
}

// Bool returns a pointer to v, for use in SessionOptions overrides.
func Bool(v bool) *bool {
	return &v
}

// OptionsFromConfig builds the base session options from the WhatsApp
// configuration section.
func OptionsFromConfig(cfg config.WhatsAppConfig) (SessionOptions, error) {
	output, err := domain.ParseQROutput(cfg.QR.Output)
	if err != nil {
		return SessionOptions{}, err
	}

	return SessionOptions{
		MaxRetries:        cfg.MaxRetries,
		RetryBaseDelay:    cfg.RetryBaseDelay,
		RetryMaxDelay:     cfg.RetryMaxDelay,
		ResetDelay:        cfg.ResetDelay,
		ConnectTimeout:    cfg.ConnectTimeout,
		Reconnect:         Bool(cfg.Reconnect),
		AutoStart:         Bool(cfg.AutoStart),
		ClientPlatform:    cfg.ClientPlatform,
		ClientDisplayName: cfg.ClientName,
		QR: QROptions{
			Output:     output,
			Width:      cfg.QR.Width,
			Margin:     cfg.QR.Margin,
			DarkColor:  cfg.QR.DarkColor,
			LightColor: cfg.QR.LightColor,
		},
		QRSet: true,
	}, nil
}

// Merge returns o with every non-zero field of override applied on top
func (o SessionOptions) Merge(override SessionOptions) SessionOptions {
	if override.MaxRetries != 0 {
		o.MaxRetries = override.MaxRetries
	}
	if override.RetryBaseDelay != 0 {
		o.RetryBaseDelay = override.RetryBaseDelay
	}
	if override.RetryMaxDelay != 0 {
		o.RetryMaxDelay = override.RetryMaxDelay
	}
	if override.ResetDelay != 0 {
		o.ResetDelay = override.ResetDelay
	}
	if override.ConnectTimeout != 0 {
		o.ConnectTimeout = override.ConnectTimeout
	}
	if override.Reconnect != nil {
		o.Reconnect = Bool(*override.Reconnect)
	}
	if override.AutoStart != nil {
		o.AutoStart = Bool(*override.AutoStart)
	}
	if override.ClientPlatform != "" {
		o.ClientPlatform = override.ClientPlatform
	}
	if override.ClientDisplayName != "" {
		o.ClientDisplayName = override.ClientDisplayName
	}
	// QROutputNone is the zero value, so QRSet decides.
	if override.QRSet {
		o.QR.Output = override.QR.Output
		o.QRSet = true
	}
	if override.QR.Width != 0 {
		o.QR.Width = override.QR.Width
	}
	if override.QR.Margin != 0 {
		o.QR.Margin = override.QR.Margin
	}
	if override.QR.DarkColor != "" {
		o.QR.DarkColor = override.QR.DarkColor
	}
	if override.QR.LightColor != "" {
		o.QR.LightColor = override.QR.LightColor
	}
	return o
}

func (o SessionOptions) reconnectEnabled() bool {
	return o.Reconnect == nil || *o.Reconnect
}

func (o SessionOptions) autoStart() bool {
	return o.AutoStart == nil || *o.AutoStart
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 2 * time.Second
	}
	if o.RetryMaxDelay < o.RetryBaseDelay {
		o.RetryMaxDelay = o.RetryBaseDelay
	}
	if o.ResetDelay <= 0 {
		o.ResetDelay = 3 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.QR.Width <= 0 {
		o.QR.Width = 256
	}
	return o
}
