package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wazmeow/internal/domain"
	"wazmeow/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
)

const deviceFile = "device.db"

// Connector opens protocol clients for sessions and removes their
// credentials.
type Connector interface {
	Open(ctx context.Context, id domain.SessionID) (Client, error)
	Wipe(ctx context.Context, id domain.SessionID) error
	HasCredentials(id domain.SessionID) bool
}

// ConnectorOptions configures the SQLite connector
type ConnectorOptions struct {
	AuthDir  string
	Identity domain.ClientIdentity
	LogLevel string
	Debug    bool
}

// SQLiteConnector keeps every session's credentials in
// <AuthDir>/<session id>/device.db.
type SQLiteConnector struct {
	opts   ConnectorOptions
	logger *logger.Logger
}

var identityOnce sync.Once

// NewConnector creates a connector. The device identity is process-wide in
// whatsmeow, so only the first connector's identity takes effect.
func NewConnector(opts ConnectorOptions, l *logger.Logger) (*SQLiteConnector, error) {
	if opts.AuthDir == "" {
		return nil, domain.NewConfigError("whatsapp.auth_dir", "credential directory is required")
	}
	if err := os.MkdirAll(opts.AuthDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	identityOnce.Do(func() { applyIdentity(opts.Identity) })

	return &SQLiteConnector{opts: opts, logger: l}, nil
}

func applyIdentity(id domain.ClientIdentity) {
	if id.Name != "" {
		store.SetOSInfo(id.Name, id.Version)
	}
	store.DeviceProps.PlatformType = platformType(id.Platform).Enum()
}

func platformType(platform string) waCompanionReg.DeviceProps_PlatformType {
	switch platform {
	case "firefox":
		return waCompanionReg.DeviceProps_FIREFOX
	case "safari":
		return waCompanionReg.DeviceProps_SAFARI
	case "edge":
		return waCompanionReg.DeviceProps_EDGE
	case "desktop":
		return waCompanionReg.DeviceProps_DESKTOP
	default:
		return waCompanionReg.DeviceProps_CHROME
	}
}

// PairClientType maps the configured platform to the pairing-code client type
func PairClientType(platform string) whatsmeow.PairClientType {
	switch platform {
	case "firefox":
		return whatsmeow.PairClientFirefox
	case "safari":
		return whatsmeow.PairClientSafari
	case "edge":
		return whatsmeow.PairClientEdge
	default:
		return whatsmeow.PairClientChrome
	}
}

// SessionDir returns the credential directory of a session
func (c *SQLiteConnector) SessionDir(id domain.SessionID) string {
	return filepath.Join(c.opts.AuthDir, id.String())
}

// HasCredentials reports whether a credential file exists for the session
func (c *SQLiteConnector) HasCredentials(id domain.SessionID) bool {
	_, err := os.Stat(filepath.Join(c.SessionDir(id), deviceFile))
	return err == nil
}

// Open creates a whatsmeow client over the session's credential store. A
// fresh device is created when the session has never been paired.
func (c *SQLiteConnector) Open(ctx context.Context, id domain.SessionID) (Client, error) {
	dir := c.SessionDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	sessionLog := c.logger.WithSessionID(id.String())
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dir, deviceFile))

	container, err := sqlstore.New(ctx, "sqlite3", dsn, sessionLog.WhatsApp("Database", c.opts.LogLevel, c.opts.Debug))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	client := whatsmeow.NewClient(device, sessionLog.WhatsApp("Client", c.opts.LogLevel, c.opts.Debug))
	// Reconnects are driven by the session's own backoff policy.
	client.EnableAutoReconnect = false

	log.Debug().
		Str("session_id", id.String()).
		Bool("paired", device.ID != nil).
		Msg("WhatsApp client opened")

	return &deviceClient{Client: client, container: container}, nil
}

// Wipe removes the session's credential directory
func (c *SQLiteConnector) Wipe(_ context.Context, id domain.SessionID) error {
	dir := c.SessionDir(id)
	if err := os.RemoveAll(dir); err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to wipe credentials")
		return fmt.Errorf("failed to wipe credentials: %w", err)
	}

	log.Info().Str("session_id", id.String()).Str("dir", dir).Msg("Credentials wiped")
	return nil
}
