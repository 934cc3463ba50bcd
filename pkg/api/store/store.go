package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Store provides persistence for login sessions.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// CreateSession seals session.AccessToken and inserts the session.
	CreateSession(ctx context.Context, session *Session) error
	// GetSessionByToken returns the session with AccessToken decrypted.
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	UpdateSessionLastActive(ctx context.Context, id uint, t time.Time) error
	// UpdateSessionRepo records the repository last selected in a session.
	UpdateSessionRepo(ctx context.Context, id uint, owner, repo string) error
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log    logrus.FieldLogger
	sealer *sealer
	db     *gorm.DB
}

// NewStore creates a new Store on db. The connection belongs to the
// caller, which may share it with other stores. secret derives the key
// that encrypts stored access tokens.
func NewStore(
	log logrus.FieldLogger,
	db *gorm.DB,
	secret string,
) Store {
	return &store{
		log:    log.WithField("component", "store"),
		sealer: newSealer(secret),
		db:     db,
	}
}

// Start runs migrations.
func (s *store) Start(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Session{}); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("dialect", s.db.Name()).Info("Session store ready")

	return nil
}

// Stop is a no-op; the connection is closed by its owner.
func (s *store) Stop() error {
	return nil
}

func (s *store) CreateSession(
	ctx context.Context, session *Session,
) error {
	sealed, err := s.sealer.seal(session.AccessToken)
	if err != nil {
		return fmt.Errorf("sealing access token: %w", err)
	}

	session.SealedToken = sealed

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

func (s *store) GetSessionByToken(
	ctx context.Context, token string,
) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		First(&session).Error; err != nil {
		return nil, fmt.Errorf("getting session by token: %w", err)
	}

	accessToken, err := s.sealer.open(session.SealedToken)
	if err != nil {
		return nil, fmt.Errorf("opening session %d: %w", session.ID, err)
	}

	session.AccessToken = accessToken

	return &session, nil
}

func (s *store) UpdateSessionLastActive(
	ctx context.Context, id uint, t time.Time,
) error {
	if err := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Update("last_active_at", t).Error; err != nil {
		return fmt.Errorf("updating session last active: %w", err)
	}

	return nil
}

func (s *store) UpdateSessionRepo(
	ctx context.Context, id uint, owner, repo string,
) error {
	if err := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_owner": owner,
			"last_repo":  repo,
		}).Error; err != nil {
		return fmt.Errorf("updating session repository: %w", err)
	}

	return nil
}

func (s *store) DeleteSession(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

func (s *store) DeleteExpiredSessions(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&Session{})
	if result.Error != nil {
		return fmt.Errorf("deleting expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired sessions")
	}

	return nil
}
