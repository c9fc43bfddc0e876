package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"

	"wazmeow/internal/domain"
	"wazmeow/internal/events"
	"wazmeow/internal/infra/whatsapp"
	"wazmeow/internal/storage"
)

const persistTimeout = 5 * time.Second

// SessionDeps are the collaborators shared by every session
type SessionDeps struct {
	Connector whatsapp.Connector
	Store     storage.Store
	// Global receives a copy of every event. Optional.
	Global *events.Bus
	// Scheduler defaults to time.AfterFunc.
	Scheduler Scheduler
	// QROut receives terminal and raw QR output. Defaults to os.Stdout.
	QROut io.Writer
}

// Session owns the lifecycle of one WhatsApp connection: connecting,
// provisioning, reconnecting with backoff and resetting revoked
// credentials. Every normalized event is published on the session's own bus
// and on the global bus.
//
// Start, Stop and Logout are serialized and must not be called from a
// handler subscribed to this session's events.
type Session struct {
	id        domain.SessionID
	opts      SessionOptions
	connector whatsapp.Connector
	store     storage.Store
	bus       *events.Bus
	global    *events.Bus
	schedule  Scheduler
	qr        qrRenderer

	opMu sync.Mutex

	mu             sync.Mutex
	pending        bool
	status         domain.Status
	client         whatsapp.Client
	device         whatsapp.DeviceInfo
	generation     uint64
	retries        int
	reconnect      bool
	timer          Timer
	qrCancel       context.CancelFunc
	lastErr        error
	createdAt      time.Time
	lastStartedAt  time.Time
	lastActivityAt time.Time
	updatedAt      time.Time

	// tasks tracks client teardowns running off the protocol goroutine
	tasks sync.WaitGroup
}

// NewSession creates a disconnected session
func NewSession(id domain.SessionID, opts SessionOptions, deps SessionDeps) *Session {
	opts = opts.withDefaults()
	if deps.Scheduler == nil {
		deps.Scheduler = afterFunc
	}
	if deps.QROut == nil {
		deps.QROut = os.Stdout
	}

	now := time.Now()
	return &Session{
		id:        id,
		opts:      opts,
		connector: deps.Connector,
		store:     deps.Store,
		bus:       events.New("session:" + id.String()),
		global:    deps.Global,
		schedule:  deps.Scheduler,
		qr:        qrRenderer{opts: opts.QR, out: deps.QROut},
		status:    domain.StatusDisconnected,
		reconnect: opts.reconnectEnabled(),
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session identifier
func (s *Session) ID() domain.SessionID {
	return s.id
}

// Events returns the session-local event bus
func (s *Session) Events() *events.Bus {
	return s.bus
}

// Options returns the effective options of the session
func (s *Session) Options() SessionOptions {
	return s.opts
}

// Status returns the current lifecycle status
func (s *Session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsActive reports whether the session owns or is about to own a connection
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending || s.status.IsActive()
}

// Info returns a snapshot of the session state
func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := domain.SessionInfo{
		ID:               s.id,
		Status:           s.status,
		JID:              s.device.JID,
		PushName:         s.device.PushName,
		Platform:         s.device.Platform,
		Retries:          s.retries,
		MaxRetries:       s.opts.MaxRetries,
		ReconnectEnabled: s.reconnect,
		CreatedAt:        s.createdAt,
		LastStartedAt:    s.lastStartedAt,
		LastActivityAt:   s.lastActivityAt,
		UpdatedAt:        s.updatedAt,
	}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	return info
}

// Client returns the live protocol client. It fails with a NotConnectedError
// unless the session is connected.
func (s *Session) Client() (whatsapp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil || s.status != domain.StatusConnected {
		return nil, domain.ErrSessionNotConnected(s.id, s.status)
	}
	return s.client, nil
}

// Start opens a new connection. It fails while the session is connecting or
// already holds a client, and resets the retry counter otherwise.
func (s *Session) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.pending = false
	if s.client != nil || s.status == domain.StatusConnecting || s.status == domain.StatusAwaitingScan {
		status := s.status
		s.mu.Unlock()
		return domain.ErrCannotConnect(s.id, status)
	}
	s.retries = 0
	s.reconnect = s.opts.reconnectEnabled()
	s.lastErr = nil
	s.stopTimerLocked()
	gen := s.beginLocked()
	s.mu.Unlock()

	log.Info().Str("session_id", s.id.String()).Msg("Starting session")
	return s.dial(ctx, gen)
}

// Stop disconnects while keeping credentials, and cancels any pending
// reconnect. Stopping an idle session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	idle := s.client == nil && s.timer == nil && s.status == domain.StatusDisconnected
	s.reconnect = false
	s.stopTimerLocked()
	client := s.detachLocked()
	if idle {
		s.mu.Unlock()
		return nil
	}
	s.setStatusLocked(domain.StatusDisconnected)
	s.mu.Unlock()

	err := s.closeClient(client)
	s.persist(ctx)
	s.publish(domain.SessionStopped{})

	log.Info().Str("session_id", s.id.String()).Msg("Session stopped")
	return err
}

// Logout revokes the linked device on the server, then deletes the local
// credentials and the session record. A later Start needs a new QR scan.
func (s *Session) Logout(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.reconnect = false
	s.stopTimerLocked()
	client := s.detachLocked()
	s.setStatusLocked(domain.StatusDisconnected)
	s.device = whatsapp.DeviceInfo{}
	s.mu.Unlock()

	var errs []error
	if client != nil {
		if client.IsLoggedIn() {
			lctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
			if err := client.Logout(lctx); err != nil {
				log.Warn().Err(err).Str("session_id", s.id.String()).Msg("Server-side logout failed, wiping local credentials anyway")
			}
			cancel()
		}
		if err := s.closeClient(client); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.connector.Wipe(ctx, s.id); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.DeleteSession(ctx, s.id); err != nil {
		storageFailures.WithLabelValues("delete_session").Inc()
		errs = append(errs, err)
	}

	s.publish(domain.SessionStopped{LoggedOut: true})
	log.Info().Str("session_id", s.id.String()).Msg("Session logged out")
	return errors.Join(errs...)
}

// PairPhone requests a pairing code for phone as an alternative to
// scanning the QR code. The session must be started and not yet paired.
func (s *Session) PairPhone(ctx context.Context, phone string) (string, error) {
	s.mu.Lock()
	client, status, paired := s.client, s.status, s.device.Paired
	s.mu.Unlock()

	if client == nil {
		return "", domain.ErrSessionNotConnected(s.id, status)
	}
	if paired || status == domain.StatusConnected {
		return "", domain.NewBusinessError(fmt.Sprintf("session %s is already paired", s.id))
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	code, err := client.PairPhone(pctx, phone, true,
		whatsapp.PairClientType(s.opts.ClientPlatform),
		pairDisplayName(s.opts.ClientPlatform, s.opts.ClientDisplayName))
	if err != nil {
		return "", fmt.Errorf("failed to initiate phone pairing: %w", err)
	}

	log.Info().
		Str("session_id", s.id.String()).
		Str("phone_number", phone).
		Msg("Phone pairing initiated")
	return code, nil
}

// TrackSent persists a message sent through this session and publishes it
// as message.sent.
func (s *Session) TrackSent(ctx context.Context, msg domain.Message) {
	msg.FromMe = true
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.saveMessage(ctx, messageRecord(s.id, msg, "sent"))
	s.touchChat(ctx, msg.Chat, "", msg.Timestamp)
	s.touch()
	s.publish(domain.MessageSent{Message: msg})
}

// wait blocks until background client teardowns have finished
func (s *Session) wait() {
	s.tasks.Wait()
}

// beginLocked starts a new connection attempt and returns its generation
func (s *Session) beginLocked() uint64 {
	s.generation++
	s.timer = nil
	s.lastStartedAt = time.Now()
	s.setStatusLocked(domain.StatusConnecting)
	return s.generation
}

// detachLocked invalidates the current attempt and hands back its client
func (s *Session) detachLocked() whatsapp.Client {
	s.generation++
	if s.qrCancel != nil {
		s.qrCancel()
		s.qrCancel = nil
	}
	client := s.client
	s.client = nil
	return client
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) setStatusLocked(status domain.Status) {
	if s.status != status {
		sessionTransitions.WithLabelValues(string(status)).Inc()
	}
	s.status = status
	s.updatedAt = time.Now()
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now()
	s.mu.Unlock()
}

// dial opens a client for attempt gen and connects it. Connection failures
// are reported through the close path, not returned.
func (s *Session) dial(ctx context.Context, gen uint64) error {
	client, err := s.connector.Open(ctx, s.id)
	if err != nil {
		s.failed(gen, err)
		return err
	}
	client.AddEventHandler(func(evt any) { s.handleEvent(gen, evt) })
	device := client.Device()

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		_ = s.closeClient(client)
		return domain.NewBusinessError(fmt.Sprintf("session %s was stopped while starting", s.id))
	}
	s.client = client
	s.device = device
	var qrCtx context.Context
	if !device.Paired {
		qrCtx, s.qrCancel = context.WithCancel(context.Background())
	}
	s.mu.Unlock()

	s.persist(ctx)
	s.publish(domain.SessionStarted{Resumed: device.Paired})

	var qrChan <-chan whatsmeow.QRChannelItem
	if qrCtx != nil {
		log.Info().Str("session_id", s.id.String()).Msg("New device, QR code authentication required")
		qrChan, err = client.GetQRChannel(qrCtx)
		if err != nil {
			s.closed(gen, "qr_channel", fmt.Errorf("failed to get QR channel: %w", err))
			return nil
		}
	}

	if err := client.Connect(); err != nil {
		s.closed(gen, "connect_failed", fmt.Errorf("failed to connect: %w", err))
		return nil
	}

	if qrChan != nil {
		s.tasks.Add(1)
		go s.watchQR(gen, qrChan)
	}
	return nil
}

// failed handles a local failure to open the client. It is not retried.
func (s *Session) failed(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.detachLocked()
	s.lastErr = err
	s.setStatusLocked(domain.StatusError)
	attempts := s.retries
	s.mu.Unlock()

	log.Error().Err(err).Str("session_id", s.id.String()).Msg("Failed to open WhatsApp client")
	s.persist(context.Background())
	s.publish(domain.NewSessionError(err, true, attempts))
}

// closed handles a transient loss of the connection: back off and retry
// while the budget lasts, then give up with status error.
func (s *Session) closed(gen uint64, reason string, cause error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	client := s.detachLocked()
	s.lastErr = cause

	var delay time.Duration
	retrying := s.reconnect && s.retries < s.opts.MaxRetries
	exhausted := s.reconnect && !retrying
	switch {
	case retrying:
		s.retries++
		delay = backoffDelay(s.opts.RetryBaseDelay, s.opts.RetryMaxDelay, s.retries)
		s.setStatusLocked(domain.StatusConnecting)
		next := s.generation
		s.timer = s.schedule(delay, func() { s.resume(next, "backoff") })
	case exhausted:
		s.setStatusLocked(domain.StatusError)
	default:
		s.setStatusLocked(domain.StatusDisconnected)
	}
	attempt := s.retries
	s.mu.Unlock()

	s.releaseAsync(client)

	logEvent := log.Warn()
	if exhausted {
		logEvent = log.Error()
	}
	logEvent.Err(cause).
		Str("session_id", s.id.String()).
		Str("reason", reason).
		Int("attempt", attempt).
		Dur("next_retry", delay).
		Msg("WhatsApp connection closed")

	s.persist(context.Background())
	s.publish(domain.ConnectionClosed{Reason: reason, Err: cause, Attempt: attempt, NextRetry: delay})
	if exhausted {
		s.publish(domain.NewSessionError(
			fmt.Errorf("giving up after %d reconnect attempts: %w", attempt, cause), true, attempt))
	}
}

// revoked handles a server-side logout: the stored credentials are useless,
// so they are wiped and a fresh provisioning attempt follows after the
// reset delay.
func (s *Session) revoked(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	client := s.detachLocked()
	s.lastErr = cause
	s.device = whatsapp.DeviceInfo{}
	s.setStatusLocked(domain.StatusDisconnected)
	// Wiping under the lock keeps a concurrent Start from opening the old
	// credential files.
	if err := s.connector.Wipe(context.Background(), s.id); err != nil {
		log.Error().Err(err).Str("session_id", s.id.String()).Msg("Failed to wipe revoked credentials")
	}
	if s.reconnect {
		next := s.generation
		s.timer = s.schedule(s.opts.ResetDelay, func() { s.resume(next, "reset") })
	}
	attempts := s.retries
	s.mu.Unlock()

	s.releaseAsync(client)

	log.Warn().Err(cause).
		Str("session_id", s.id.String()).
		Dur("reset_delay", s.opts.ResetDelay).
		Msg("Session revoked by server, credentials wiped")

	s.persist(context.Background())
	s.publish(domain.NewSessionError(cause, false, attempts))
}

// resume runs a scheduled reconnect unless the session moved on meanwhile
func (s *Session) resume(gen uint64, kind string) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if gen != s.generation || !s.reconnect {
		s.mu.Unlock()
		return
	}
	if kind == "reset" {
		s.retries = 0
	}
	next := s.beginLocked()
	attempt := s.retries
	s.mu.Unlock()

	reconnectAttempts.WithLabelValues(kind).Inc()
	log.Info().
		Str("session_id", s.id.String()).
		Str("kind", kind).
		Int("attempt", attempt).
		Msg("Reconnecting session")

	_ = s.dial(context.Background(), next)
}

func (s *Session) closeClient(client whatsapp.Client) error {
	if client == nil {
		return nil
	}
	client.RemoveEventHandlers()
	client.Disconnect()
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Str("session_id", s.id.String()).Msg("Failed to close credential store")
		return fmt.Errorf("failed to close client: %w", err)
	}
	return nil
}

// releaseAsync tears the client down off the calling goroutine. whatsmeow
// holds its handler lock while dispatching, so removing handlers from
// inside a handler would deadlock.
func (s *Session) releaseAsync(client whatsapp.Client) {
	if client == nil {
		return
	}
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		_ = s.closeClient(client)
	}()
}

func (s *Session) watchQR(gen uint64, ch <-chan whatsmeow.QRChannelItem) {
	defer s.tasks.Done()

	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			s.onQRCode(gen, item.Code, item.Timeout)
		case whatsmeow.QRChannelSuccess.Event:
			log.Info().Str("session_id", s.id.String()).Msg("QR code pairing successful")
		case whatsmeow.QRChannelTimeout.Event:
			s.closed(gen, "qr_timeout", errors.New("QR code was not scanned in time"))
		case whatsmeow.QRChannelEventError:
			s.closed(gen, "qr_error", item.Error)
		default:
			s.closed(gen, "qr_error", fmt.Errorf("pairing failed: %s", item.Event))
		}
	}
}

func (s *Session) onQRCode(gen uint64, code string, timeout time.Duration) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.setStatusLocked(domain.StatusAwaitingScan)
	s.mu.Unlock()

	image, err := s.qr.render(s.id, code)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id.String()).Msg("Failed to render QR code")
	}

	log.Info().
		Str("session_id", s.id.String()).
		Dur("timeout", timeout).
		Msg("QR code issued")

	s.persist(context.Background())
	s.publish(domain.QRIssued{Code: code, Image: image, Timeout: timeout})
}

func (s *Session) onConnected(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.retries = 0
	s.lastErr = nil
	s.lastActivityAt = time.Now()
	s.setStatusLocked(domain.StatusConnected)
	if s.client != nil {
		s.device = s.client.Device()
	}
	device := s.device
	s.mu.Unlock()

	log.Info().
		Str("session_id", s.id.String()).
		Str("jid", device.JID).
		Msg("WhatsApp connected")

	s.persist(context.Background())
	s.publish(domain.ConnectionOpened{JID: device.JID, PushName: device.PushName, Platform: device.Platform})
}

// onPairSuccess stores the new identity before announcing it
func (s *Session) onPairSuccess(gen uint64, jid, platform, businessName string) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.device.JID = jid
	s.device.Platform = platform
	s.device.BusinessName = businessName
	s.device.Paired = true
	s.mu.Unlock()

	log.Info().
		Str("session_id", s.id.String()).
		Str("jid", jid).
		Msg("WhatsApp pairing successful")

	s.persist(context.Background())
	s.publish(domain.CredentialsUpdated{JID: jid, Platform: platform, BusinessName: businessName})
}

// persist writes the session's metadata record. Failures are logged only.
func (s *Session) persist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	s.mu.Lock()
	rec := &storage.SessionRecord{
		ID:            s.id.String(),
		JID:           s.device.JID,
		PushName:      s.device.PushName,
		Platform:      s.device.Platform,
		BusinessName:  s.device.BusinessName,
		Status:        string(s.status),
		AutoStart:     s.opts.autoStart(),
		CreatedAt:     s.createdAt,
		LastStartedAt: s.lastStartedAt,
	}
	s.mu.Unlock()

	if err := s.store.SaveSession(ctx, rec); err != nil {
		storageFailures.WithLabelValues("save_session").Inc()
		log.Error().Err(err).Str("session_id", s.id.String()).Msg("Failed to save session metadata")
	}
}

// publish sends one event to the local bus and the same event to the
// global bus.
func (s *Session) publish(payload domain.Payload) {
	event := domain.NewEvent(s.id, payload)
	if err := s.bus.Publish(event); err != nil {
		log.Error().Err(err).Str("session_id", s.id.String()).Msg("Failed to publish event")
		return
	}
	if s.global != nil {
		if err := s.global.Publish(event); err != nil {
			log.Error().Err(err).Str("session_id", s.id.String()).Msg("Failed to publish event on global bus")
		}
	}
}

func pairDisplayName(platform, name string) string {
	if strings.Contains(name, "(") {
		return name
	}
	if platform == "" {
		platform = "chrome"
	}
	if name == "" {
		name = "Linux"
	}
	return strings.ToUpper(platform[:1]) + platform[1:] + " (" + name + ")"
}
