package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRefreshNotFound is returned for unknown, revoked, or expired
// refresh tokens.
var ErrRefreshNotFound = errors.New("refresh token not found")

// RefreshRepository stores opaque refresh tokens. Only a sha256 hash of
// the token value is persisted; the plaintext exists solely in the
// client's hands.
type RefreshRepository struct {
	db *pgxpool.Pool
}

// NewRefreshRepository creates a RefreshRepository.
func NewRefreshRepository(db *pgxpool.Pool) *RefreshRepository {
	return &RefreshRepository{db: db}
}

// Save persists a new refresh token for the account.
func (r *RefreshRepository) Save(ctx context.Context, accountID uuid.UUID, plain string, ttl time.Duration) error {
	q := `
		INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, q, uuid.New(), accountID, hashToken(plain), now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// Consume atomically revokes a live refresh token and returns its owning
// account. A single conditional UPDATE guarantees one winner when the
// same token is presented concurrently, which also defeats replay of a
// rotated-out token.
func (r *RefreshRepository) Consume(ctx context.Context, plain string) (uuid.UUID, error) {
	var accountID uuid.UUID
	q := `
		UPDATE refresh_tokens SET revoked = true
		WHERE token_hash = $1 AND NOT revoked AND expires_at > $2
		RETURNING account_id`
	err := r.db.QueryRow(ctx, q, hashToken(plain), time.Now().UTC()).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrRefreshNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return accountID, nil
}

// Revoke marks a single refresh token revoked (logout).
func (r *RefreshRepository) Revoke(ctx context.Context, plain string) error {
	q := `UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1`
	_, err := r.db.Exec(ctx, q, hashToken(plain))
	return err
}

// RevokeAllFor revokes every live refresh token belonging to an account.
func (r *RefreshRepository) RevokeAllFor(ctx context.Context, accountID uuid.UUID) error {
	q := `UPDATE refresh_tokens SET revoked = true WHERE account_id = $1 AND NOT revoked`
	_, err := r.db.Exec(ctx, q, accountID)
	return err
}

// DeleteExpired purges refresh tokens past expiry.
func (r *RefreshRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NewOpaqueToken returns a 256-bit random token, base64url encoded.
func NewOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
