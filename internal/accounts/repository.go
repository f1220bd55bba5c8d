package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an account lookup finds no matching record.
var ErrNotFound = errors.New("account not found")

// ErrDuplicateEmail is returned when a registration reuses an email.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrDuplicateUsername is returned when a registration reuses a username.
var ErrDuplicateUsername = errors.New("username already taken")

// ErrDuplicateSocial is returned when a (provider, subject) pair is
// already linked to another account.
var ErrDuplicateSocial = errors.New("social identity already linked")

// ErrTokenNotFound is returned for unknown or wrong-purpose tokens.
var ErrTokenNotFound = errors.New("verification token not found")

// ErrTokenConsumed is returned when a token was already used.
var ErrTokenConsumed = errors.New("verification token already consumed")

// ErrTokenExpired is returned when a token is past its expiry.
var ErrTokenExpired = errors.New("verification token expired")

const accountColumns = `id, email, username, password_hash, display_name,
	is_active, email_confirmed, is_staff, token_version, created_at, updated_at`

// Repository provides account persistence against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new account. Sets ID, CreatedAt, UpdatedAt on a.
// Email and username uniqueness violations map to the duplicate errors;
// no partial record survives a rejected insert.
func (r *Repository) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	q := `
		INSERT INTO accounts (id, email, username, password_hash, display_name,
			is_active, email_confirmed, is_staff, token_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx, q,
		a.ID, a.Email, a.Username, a.PasswordHash, a.DisplayName,
		a.IsActive, a.EmailConfirmed, a.IsStaff, a.TokenVersion, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "accounts_email_key" {
				return ErrDuplicateEmail
			}
			return ErrDuplicateUsername
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by its UUID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.scanOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByEmail retrieves an account by email. Emails are stored lowercased;
// the lookup is case-insensitive.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.scanOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		strings.ToLower(email))
}

// GetByUsername retrieves an account by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return r.scanOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`,
		strings.ToLower(username))
}

// GetBySocial retrieves the account that owns the given provider identity.
func (r *Repository) GetBySocial(ctx context.Context, provider Provider, subjectID string) (*Account, error) {
	q := `
		SELECT a.id, a.email, a.username, a.password_hash, a.display_name,
			a.is_active, a.email_confirmed, a.is_staff, a.token_version, a.created_at, a.updated_at
		FROM accounts a
		JOIN social_identities s ON s.account_id = a.id
		WHERE s.provider = $1 AND s.subject_id = $2`
	return r.scanOne(ctx, q, provider, subjectID)
}

// LinkSocial attaches a provider identity to an account. A (provider,
// subject) pair already owned by a different account is a conflict.
func (r *Repository) LinkSocial(ctx context.Context, accountID uuid.UUID, provider Provider, subjectID string) error {
	q := `
		INSERT INTO social_identities (id, account_id, provider, subject_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, subject_id) DO NOTHING`
	tag, err := r.db.Exec(ctx, q, uuid.New(), accountID, provider, subjectID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("link social identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Pair exists. Linking the same account twice is a no-op.
		owner, err := r.GetBySocial(ctx, provider, subjectID)
		if err != nil {
			return fmt.Errorf("check social owner: %w", err)
		}
		if owner.ID != accountID {
			return ErrDuplicateSocial
		}
	}
	return nil
}

// ListSocial returns the social identities linked to an account.
func (r *Repository) ListSocial(ctx context.Context, accountID uuid.UUID) ([]SocialIdentity, error) {
	q := `
		SELECT id, account_id, provider, subject_id, created_at
		FROM social_identities WHERE account_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("list social identities: %w", err)
	}
	defer rows.Close()

	var out []SocialIdentity
	for rows.Next() {
		var s SocialIdentity
		if err := rows.Scan(&s.ID, &s.AccountID, &s.Provider, &s.SubjectID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan social identity: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetEmailConfirmed marks the account's email as confirmed.
func (r *Repository) SetEmailConfirmed(ctx context.Context, accountID uuid.UUID) error {
	q := `UPDATE accounts SET email_confirmed = true, updated_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, accountID, time.Now().UTC())
	return err
}

// SetPasswordHash updates an account's password hash.
func (r *Repository) SetPasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error {
	q := `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, accountID, hash, time.Now().UTC())
	return err
}

// SetActive flips the soft-deactivation flag.
func (r *Repository) SetActive(ctx context.Context, accountID uuid.UUID, active bool) error {
	q := `UPDATE accounts SET is_active = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, accountID, active, time.Now().UTC())
	return err
}

// UpdateProfile updates the display name.
func (r *Repository) UpdateProfile(ctx context.Context, accountID uuid.UUID, displayName string) error {
	q := `UPDATE accounts SET display_name = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, accountID, displayName, time.Now().UTC())
	return err
}

// BumpTokenVersion increments the revocation marker and returns the new
// value. Every bearer token issued with the old marker becomes invalid.
func (r *Repository) BumpTokenVersion(ctx context.Context, accountID uuid.UUID) (int, error) {
	var version int
	q := `UPDATE accounts SET token_version = token_version + 1, updated_at = $2 WHERE id = $1 RETURNING token_version`
	if err := r.db.QueryRow(ctx, q, accountID, time.Now().UTC()).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("bump token version: %w", err)
	}
	return version, nil
}

// List returns accounts ordered by creation time, optionally filtered by
// a substring match on email, username, or display name.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]*Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts`
	args := []any{}
	if search != "" {
		q += ` WHERE email ILIKE $1 OR username ILIKE $1 OR display_name ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ─── Verification tokens ─────────────────────────────────────────────────

// CreateToken stores a new single-use verification token.
func (r *Repository) CreateToken(ctx context.Context, accountID uuid.UUID, token string, purpose TokenPurpose, expires time.Time) error {
	q := `
		INSERT INTO verification_tokens (id, account_id, token, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, q, uuid.New(), accountID, token, purpose, expires, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create %s token: %w", purpose, err)
	}
	return nil
}

// ConsumeToken atomically marks the token consumed and returns the owning
// account id. The consume is a single conditional UPDATE, so under
// concurrent attempts exactly one caller wins; the rest see
// ErrTokenConsumed (or ErrTokenExpired/ErrTokenNotFound, diagnosed by a
// follow-up read).
func (r *Repository) ConsumeToken(ctx context.Context, token string, purpose TokenPurpose) (uuid.UUID, error) {
	var accountID uuid.UUID
	q := `
		UPDATE verification_tokens
		SET consumed_at = $3
		WHERE token = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > $3
		RETURNING account_id`
	err := r.db.QueryRow(ctx, q, token, purpose, time.Now().UTC()).Scan(&accountID)
	if err == nil {
		return accountID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("consume %s token: %w", purpose, err)
	}

	// The conditional update matched nothing; diagnose why.
	var expiresAt time.Time
	var consumedAt *time.Time
	diag := `SELECT expires_at, consumed_at FROM verification_tokens WHERE token = $1 AND purpose = $2`
	if err := r.db.QueryRow(ctx, diag, token, purpose).Scan(&expiresAt, &consumedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrTokenNotFound
		}
		return uuid.Nil, fmt.Errorf("inspect %s token: %w", purpose, err)
	}
	if consumedAt != nil {
		return uuid.Nil, ErrTokenConsumed
	}
	if time.Now().UTC().After(expiresAt) {
		return uuid.Nil, ErrTokenExpired
	}
	// Matched on the read but not the update: lost a race to a concurrent
	// consumer between the two statements.
	return uuid.Nil, ErrTokenConsumed
}

// InvalidatePendingTokens marks all unconsumed tokens of the given
// purpose as consumed. Used when a password change must void outstanding
// reset links.
func (r *Repository) InvalidatePendingTokens(ctx context.Context, accountID uuid.UUID, purpose TokenPurpose) error {
	q := `
		UPDATE verification_tokens SET consumed_at = $3
		WHERE account_id = $1 AND purpose = $2 AND consumed_at IS NULL`
	_, err := r.db.Exec(ctx, q, accountID, purpose, time.Now().UTC())
	return err
}

// DeleteExpiredTokens purges tokens past expiry. Correctness does not
// depend on this sweep; it only keeps the table small.
func (r *Repository) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM verification_tokens WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ─── Scanning helpers ────────────────────────────────────────────────────

func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Account, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	a, err := scanAccount(rows)
	if err != nil {
		return nil, err
	}
	return a, rows.Err()
}

func scanAccount(rows pgx.Rows) (*Account, error) {
	var a Account
	if err := rows.Scan(
		&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.DisplayName,
		&a.IsActive, &a.EmailConfirmed, &a.IsStaff, &a.TokenVersion,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
