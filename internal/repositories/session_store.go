package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/genrescope/internal/models"
	"github.com/desertthunder/genrescope/internal/shared"
	"golang.org/x/oauth2"
)

// SessionStore manages the lifecycle of browser sessions on top of [SessionRepository].
//
// A session starts after a successful OAuth callback and ends on logout or when its ttl elapses.
type SessionStore struct {
	repo *SessionRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewSessionStore creates a new [SessionStore] whose sessions live for ttl.
func NewSessionStore(repo *SessionRepository, ttl time.Duration) *SessionStore {
	return &SessionStore{repo: repo, ttl: ttl, now: time.Now}
}

// Start persists a new session for token and returns it.
func (s *SessionStore) Start(token *oauth2.Token, displayName string) (*models.Session, error) {
	session := models.NewSession(0, token, displayName, s.ttl)
	session.SetExpiresAt(s.now().Add(s.ttl))

	if err := s.repo.Create(session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return session, nil
}

// Get returns a live session. Expired sessions are ended and reported as [shared.ErrSessionNotFound].
func (s *SessionStore) Get(id string) (*models.Session, error) {
	if id == "" {
		return nil, shared.ErrSessionNotFound
	}

	session, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}

	if session.Expired(s.now()) {
		if err := s.repo.Delete(id); err != nil && !errors.Is(err, shared.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s expired", shared.ErrSessionNotFound, id)
	}
	return session, nil
}

// Token returns the catalog token stored for a live session.
func (s *SessionStore) Token(id string) (*oauth2.Token, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return session.Token(), nil
}

// Refresh stores a refreshed token for the session.
func (s *SessionStore) Refresh(id string, token *oauth2.Token) error {
	session, err := s.Get(id)
	if err != nil {
		return err
	}

	session.SetToken(token)
	if err := s.repo.Update(session); err != nil {
		return fmt.Errorf("failed to store refreshed token: %w", err)
	}
	return nil
}

// End tears the session down. Ending an unknown session is not an error.
func (s *SessionStore) End(id string) error {
	if id == "" {
		return nil
	}
	if err := s.repo.Delete(id); err != nil && !errors.Is(err, shared.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Purge ends every expired session.
func (s *SessionStore) Purge() (int64, error) {
	return s.repo.PurgeExpired(s.now())
}
