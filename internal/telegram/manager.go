package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockedby/tg-archive/internal/config"
	"github.com/blockedby/tg-archive/internal/logger"
	"github.com/celestix/gotgproto"
	"github.com/gotd/td/session"
	"gorm.io/gorm"
)

// Status represents the Telegram client status.
type Status string

// Status constants define the possible states of the Telegram client.
const (
	StatusInitializing Status = "INITIALIZING"
	StatusReady        Status = "READY"
	StatusUnauthorized Status = "UNAUTHORIZED"
	StatusError        Status = "ERROR"
)

// ClientFactory is a function that creates a telegram client.
type ClientFactory func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error)

// login flow errors
var (
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrQRInProgress    = errors.New("QR login already in progress")
)

// QRLoginFactory creates the connection used by a QR login flow.
type QRLoginFactory func(cfg *config.Config) (*QRLogin, error)

// Manager handles Telegram client lifecycle and authentication.
type Manager struct {
	client *gotgproto.Client
	db     *gorm.DB
	cfg    *config.Config
	log    *logger.Logger

	status Status
	mu     sync.RWMutex

	clientFactory  ClientFactory
	qrLoginFactory QRLoginFactory

	// QR flow state management
	qrInProgress atomic.Bool
	qrCancel     context.CancelFunc
	qrMu         sync.Mutex
}

// NewManager creates a new Telegram Manager.
func NewManager(cfg *config.Config, db *gorm.DB) *Manager {
	return &Manager{
		db:              db,
		cfg:             cfg,
		log:             logger.Get().Component("telegram"),
		status:          StatusInitializing,
		clientFactory:  NewPersistentClient,
		qrLoginFactory: NewQRLogin,
	}
}

// SetClientFactory allows overriding the client creation logic (e.g. for testing).
func (m *Manager) SetClientFactory(f ClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientFactory = f
}

// SetQRLoginFactory allows overriding the QR login connection (e.g. for testing).
func (m *Manager) SetQRLoginFactory(f QRLoginFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qrLoginFactory = f
}

// GetStatus returns the current Telegram client status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// GetClient returns the underlying Telegram client.
func (m *Manager) GetClient() *gotgproto.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// Init restores the session from the session database. Without a stored
// session the manager stays UNAUTHORIZED until a login flow completes.
func (m *Manager) Init(ctx context.Context) error {
	m.setStatus(StatusInitializing)

	var count int64
	if err := m.db.Table("sessions").Count(&count).Error; err != nil {
		m.log.Warn().Err(err).Msg("failed to check sessions table")
	}

	if count == 0 {
		m.log.Info().Msg("no session in database, waiting for auth")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.RLock()
	factory := m.clientFactory
	m.mu.RUnlock()

	client, err := factory(ctx, m.cfg, m.db)
	if err != nil {
		// keep the process alive; the web UI can still offer QR login
		m.log.Warn().Err(err).Msg("failed to initialize persistent client, switching to unauthorized mode")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.Lock()
	m.client = client
	m.status = StatusReady
	m.mu.Unlock()

	m.log.Info().Msg("client is ready")
	return nil
}

// WaitReady returns an error unless the manager reached READY after Init.
func (m *Manager) WaitReady() error {
	switch st := m.GetStatus(); st {
	case StatusReady:
		return nil
	case StatusUnauthorized:
		return fmt.Errorf("telegram session missing or invalid, run tg-auth first")
	default:
		return fmt.Errorf("telegram client not ready: %s", st)
	}
}

func (m *Manager) setStatus(st Status) {
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
}

// IsQRInProgress returns true if a QR login flow is currently in progress.
func (m *Manager) IsQRInProgress() bool {
	return m.qrInProgress.Load()
}

// StartQR runs the QR login flow, calling onQRCode with every new login URL.
// It blocks until login succeeds or ctx is canceled, then stores the session
// and re-runs Init. Only one flow runs at a time.
func (m *Manager) StartQR(ctx context.Context, onQRCode func(url string)) error {
	if m.GetStatus() == StatusReady {
		return ErrAlreadyLoggedIn
	}

	m.qrMu.Lock()
	if m.qrInProgress.Load() {
		m.qrMu.Unlock()
		m.log.Info().Msg("QR flow already in progress, ignoring new request")
		return ErrQRInProgress
	}
	qrCtx, cancel := context.WithCancel(ctx)
	m.qrCancel = cancel
	m.qrInProgress.Store(true)
	m.qrMu.Unlock()

	defer func() {
		m.qrInProgress.Store(false)
		m.qrMu.Lock()
		if m.qrCancel != nil {
			m.qrCancel()
			m.qrCancel = nil
		}
		m.qrMu.Unlock()
	}()

	m.log.Info().Time("now", time.Now()).Msg("starting QR flow")

	m.mu.RLock()
	factory := m.qrLoginFactory
	m.mu.RUnlock()

	login, err := factory(m.cfg)
	if err != nil {
		return fmt.Errorf("create QR login: %w", err)
	}

	sessionData, err := login.Run(qrCtx, func(url string) {
		m.log.Info().Msg("QR token generated")
		onQRCode(url)
	})
	if err != nil {
		return err
	}

	m.log.Info().Msg("QR login succeeded, saving session")
	if err := m.saveSessionToDB(sessionData); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return m.Init(ctx)
}

// CancelQR cancels any ongoing QR login flow.
func (m *Manager) CancelQR() {
	m.qrMu.Lock()
	defer m.qrMu.Unlock()

	if m.qrCancel != nil {
		m.log.Info().Msg("canceling ongoing QR flow")
		m.qrCancel()
		m.qrCancel = nil
	}
	m.qrInProgress.Store(false)
}

// ImportSession stores data as the active session and reconnects with it.
func (m *Manager) ImportSession(ctx context.Context, data *session.Data) error {
	if data == nil {
		return fmt.Errorf("session data is nil")
	}
	if err := m.saveSessionToDB(data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return m.Init(ctx)
}

func (m *Manager) saveSessionToDB(data *session.Data) error {
	sess, err := ConvertToGotgprotoSession(data)
	if err != nil {
		return err
	}

	// Version is the primary key, so Save upserts the single session row
	if err := m.db.AutoMigrate(sess); err != nil {
		return fmt.Errorf("migrate sessions table: %w", err)
	}
	return m.db.Save(sess).Error
}

// Stop stops the Telegram client.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Stop()
	}
}
