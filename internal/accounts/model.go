package accounts

import (
	"time"

	"github.com/google/uuid"
)

// Provider is a supported social login provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// TokenPurpose distinguishes the two kinds of single-use verification
// tokens.
type TokenPurpose string

const (
	PurposeActivation    TokenPurpose = "activation"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// Account is a user's persistent identity record. Accounts are never
// hard-deleted; IsActive is flipped instead.
type Account struct {
	ID             uuid.UUID `json:"id"              db:"id"`
	Email          string    `json:"email"           db:"email"`
	Username       string    `json:"username"        db:"username"`
	PasswordHash   string    `json:"-"               db:"password_hash"`
	DisplayName    string    `json:"display_name"    db:"display_name"`
	IsActive       bool      `json:"is_active"       db:"is_active"`
	EmailConfirmed bool      `json:"email_confirmed" db:"email_confirmed"`
	IsStaff        bool      `json:"is_staff"        db:"is_staff"`
	TokenVersion   int       `json:"-"               db:"token_version"`
	CreatedAt      time.Time `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"      db:"updated_at"`
}

// SocialIdentity links an account to an external provider identity.
// The (provider, subject id) pair is globally unique.
type SocialIdentity struct {
	ID        uuid.UUID `json:"id"         db:"id"`
	AccountID uuid.UUID `json:"account_id" db:"account_id"`
	Provider  Provider  `json:"provider"   db:"provider"`
	SubjectID string    `json:"subject_id" db:"subject_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// VerificationToken is a single-use credential proving control of an
// email address (activation) or authorizing a password reset.
type VerificationToken struct {
	ID         uuid.UUID    `db:"id"`
	AccountID  uuid.UUID    `db:"account_id"`
	Token      string       `db:"token"`
	Purpose    TokenPurpose `db:"purpose"`
	ExpiresAt  time.Time    `db:"expires_at"`
	ConsumedAt *time.Time   `db:"consumed_at"`
	CreatedAt  time.Time    `db:"created_at"`
}

// Assertion is a provider-verified external identity, produced by a
// social.Verifier after the provider token has been checked.
type Assertion struct {
	Provider      Provider
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
}
