package models

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Session is a signed-in browser session.
//
// Each session owns exactly one catalog token; the HTTP server builds a per-request client from it.
type Session struct {
	id           string
	sequence     int
	accessToken  string
	refreshToken string
	tokenType    string
	expiry       time.Time
	displayName  string
	expiresAt    time.Time
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewSession creates a session for token that stays valid for ttl.
func NewSession(sequence int, token *oauth2.Token, displayName string, ttl time.Duration) *Session {
	now := time.Now()
	s := &Session{
		sequence:    sequence,
		displayName: displayName,
		expiresAt:   now.Add(ttl),
		createdAt:   now,
		updatedAt:   now,
	}
	s.SetToken(token)
	return s
}

func (s *Session) ID() string { return s.id }
func (s *Session) Sequence() int { return s.sequence }
func (s *Session) DisplayName() string { return s.displayName }
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) UpdatedAt() time.Time { return s.updatedAt }
func (s *Session) DeletedAt() *time.Time { return s.deletedAt }

func (s *Session) SetID(id string) { s.id = id }
func (s *Session) SetSequence(seq int) { s.sequence = seq }
func (s *Session) SetDisplayName(name string) { s.displayName = name }
func (s *Session) SetExpiresAt(t time.Time) { s.expiresAt = t }
func (s *Session) SetCreatedAt(t time.Time) { s.createdAt = t }
func (s *Session) SetUpdatedAt(t time.Time) { s.updatedAt = t }
func (s *Session) SetDeletedAt(deleted *time.Time) { s.deletedAt = deleted }

// Token returns the stored catalog token.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		TokenType:    s.tokenType,
		Expiry:       s.expiry,
	}
}

// SetToken replaces the stored token. An empty refresh token keeps the previous one,
// since the catalog omits it from most refresh responses.
func (s *Session) SetToken(token *oauth2.Token) {
	if token == nil {
		return
	}
	s.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.refreshToken = token.RefreshToken
	}
	s.tokenType = token.TokenType
	if s.tokenType == "" {
		s.tokenType = "Bearer"
	}
	s.expiry = token.Expiry
}

// Expired reports whether the session lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.expiresAt)
}

// Validate checks if the session has the fields required for persistence.
func (s *Session) Validate() error {
	if s.accessToken == "" {
		return fmt.Errorf("session access token is required")
	}
	if s.expiresAt.IsZero() {
		return fmt.Errorf("session expiry is required")
	}
	return nil
}
