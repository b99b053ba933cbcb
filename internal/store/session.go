package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/pavelanni/companion/internal/model"
)

// ErrSessionNotFound is returned when a token names no live session.
var ErrSessionNotFound = errors.New("session not found")

// ErrEmptyQuestion is returned when an active question would be cleared.
var ErrEmptyQuestion = errors.New("question must not be empty")

// CreateSession starts a session and returns the token to hand to the
// browser. Only a digest of the token is stored.
func (s *Store) CreateSession() (string, *model.Session, error) {
	token, err := generateToken()
	if err != nil {
		return "", nil, err
	}
	now := s.now().UTC()
	sess := &model.Session{
		ID:        tokenDigest(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, active_question, created_at, expires_at) VALUES (?, '', ?, ?)`,
		sess.ID, sess.CreatedAt.UnixMilli(), sess.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert session: %w", err)
	}
	return token, sess, nil
}

// GetSession returns the session for token, or nil if it is unknown or
// expired. Expired sessions are deleted.
func (s *Store) GetSession(token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}
	id := tokenDigest(token)

	var (
		sess               model.Session
		created, expiresAt int64
	)
	err := s.db.QueryRow(
		`SELECT id, active_question, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ActiveQuestion, &created, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = time.UnixMilli(created).UTC()
	sess.ExpiresAt = time.UnixMilli(expiresAt).UTC()

	if !s.now().Before(sess.ExpiresAt) {
		_, _ = s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
		return nil, nil
	}
	return &sess, nil
}

// SetActiveQuestion replaces the question the session is working on.
func (s *Store) SetActiveQuestion(token, question string) error {
	if strings.TrimSpace(question) == "" {
		return ErrEmptyQuestion
	}
	res, err := s.db.Exec(
		`UPDATE sessions SET active_question = ?, expires_at = ? WHERE id = ? AND expires_at > ?`,
		question, s.now().Add(s.ttl).UnixMilli(), tokenDigest(token), s.now().UnixMilli(),
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// Touch pushes the session's expiry one TTL into the future.
func (s *Store) Touch(token string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET expires_at = ? WHERE id = ? AND expires_at > ?`,
		s.now().Add(s.ttl).UnixMilli(), tokenDigest(token), s.now().UnixMilli(),
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// DeleteSession removes a session. Deleting an unknown token is not an error.
func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, tokenDigest(token))
	return err
}

// CleanupExpiredSessions removes all expired sessions and reports how many
// were removed.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SessionCount returns the number of stored sessions, expired or not.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func tokenDigest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
