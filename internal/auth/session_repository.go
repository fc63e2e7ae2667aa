package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/device-console/internal/infrastructure/database"
)

// SessionRepository defines the interface for login session persistence.
type SessionRepository interface {
	Create(ctx context.Context, session *SessionRecord) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*SessionRecord, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite-backed session repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

// HashToken computes the SHA-256 digest of a raw session token for storage.
// Raw tokens are never stored.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Create inserts a session. The ID is generated if empty.
func (r *SQLiteSessionRepository) Create(ctx context.Context, session *SessionRecord) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			session.ID, session.UserID, session.TokenHash,
			session.ExpiresAt.UTC().Format(time.RFC3339),
			session.CreatedAt.UTC().Format(time.RFC3339),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves the session whose token digest matches.
func (r *SQLiteSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*SessionRecord, error) {
	var s SessionRecord
	var expiresAt, createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at FROM sessions WHERE token_hash = ?`, tokenHash,
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("getting session: %w", err)
	}

	s.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &s, nil
}

// DeleteByTokenHash removes a session. Deleting an unknown session is not an error.
func (r *SQLiteSessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", tokenHash)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired at or before now.
// Returns the number of deleted rows.
func (r *SQLiteSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.UTC().Format(time.RFC3339))
}

func (r *SQLiteSessionRepository) deleteWhere(ctx context.Context, query string, args ...any) (int64, error) {
	var count int64
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		count, _ = result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deleting sessions: %w", err)
	}
	return count, nil
}
