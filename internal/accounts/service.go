package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/chroniclehq/chronicle/internal/errs"
	"github.com/chroniclehq/chronicle/internal/events"
)

const (
	activationTTL     = 24 * time.Hour
	passwordResetTTL  = time.Hour
	passwordMinLength = 8
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,100}$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// dummyHash is compared against when no stored hash exists, so a login
// attempt for an unknown email costs the same as one for a known email.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("chronicle-timing-pad"), bcrypt.DefaultCost)

// store is the persistence interface consumed by Service.
type store interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetBySocial(ctx context.Context, provider Provider, subjectID string) (*Account, error)
	LinkSocial(ctx context.Context, accountID uuid.UUID, provider Provider, subjectID string) error
	ListSocial(ctx context.Context, accountID uuid.UUID) ([]SocialIdentity, error)
	SetEmailConfirmed(ctx context.Context, accountID uuid.UUID) error
	SetPasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error
	SetActive(ctx context.Context, accountID uuid.UUID, active bool) error
	UpdateProfile(ctx context.Context, accountID uuid.UUID, displayName string) error
	List(ctx context.Context, search string, limit, offset int) ([]*Account, error)
	CreateToken(ctx context.Context, accountID uuid.UUID, token string, purpose TokenPurpose, expires time.Time) error
	ConsumeToken(ctx context.Context, token string, purpose TokenPurpose) (uuid.UUID, error)
	InvalidatePendingTokens(ctx context.Context, accountID uuid.UUID, purpose TokenPurpose) error
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

// SessionRevoker invalidates every outstanding credential for an account:
// the bearer-token revocation marker, refresh tokens, and web sessions.
// Implemented by identity.Issuer; injected after construction to keep the
// dependency direction acyclic.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, accountID uuid.UUID) error
}

// Service implements account lifecycle: registration, authentication,
// email verification, password reset, and social identity linking.
type Service struct {
	repo      store
	publisher events.Publisher
	revoker   SessionRevoker
	baseURL   string
	logger    *zap.Logger
}

// NewService creates a Service. baseURL is the public URL used to build
// activation and reset links.
func NewService(repo store, publisher events.Publisher, baseURL string, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
	}
}

// SetRevoker wires the credential revoker used on password changes.
func (s *Service) SetRevoker(r SessionRevoker) { s.revoker = r }

// Register creates a new password-holding account and issues its
// activation token. The account starts unconfirmed: password login is
// refused until the activation token is consumed.
func (s *Service) Register(ctx context.Context, email, username, password string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.ToLower(strings.TrimSpace(username))

	if !emailRe.MatchString(email) {
		return nil, errs.New(errs.CodeValidationFailed, "invalid email address")
	}
	if !usernameRe.MatchString(username) {
		return nil, errs.New(errs.CodeValidationFailed, "username must be 3-100 letters, digits, or underscores")
	}
	if len(password) < passwordMinLength {
		return nil, errs.New(errs.CodeValidationFailed, fmt.Sprintf("password must be at least %d characters", passwordMinLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a := &Account{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  username,
		IsActive:     true,
		TokenVersion: 1,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, errs.New(errs.CodeDuplicateIdentity, "email already registered")
		case errors.Is(err, ErrDuplicateUsername):
			return nil, errs.New(errs.CodeDuplicateIdentity, "username already taken")
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	if err := s.IssueActivation(ctx, a); err != nil {
		// Non-fatal: the account exists; activation can be re-requested.
		s.logger.Warn("issue activation after register",
			zap.String("account_id", a.ID.String()),
			zap.Error(err),
		)
	}
	return a, nil
}

// Authenticate verifies email/password credentials. All credential
// failures return the same InvalidCredentials error, and a bcrypt compare
// runs even for unknown emails so response timing does not reveal which
// part was wrong. Inactive and unconfirmed accounts are refused with
// AccountInactive after the credentials check.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, errs.New(errs.CodeInvalidCredentials, "invalid email or password")
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	hash := a.PasswordHash
	if hash == "" {
		// Social-only account: burn the compare, then refuse.
		hash = string(dummyHash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil || a.PasswordHash == "" {
		return nil, errs.New(errs.CodeInvalidCredentials, "invalid email or password")
	}

	if !a.IsActive {
		return nil, errs.New(errs.CodeAccountInactive, "account is deactivated")
	}
	if !a.EmailConfirmed {
		return nil, errs.New(errs.CodeAccountInactive, "email address not confirmed")
	}
	return a, nil
}

// ─── Email verification workflow ─────────────────────────────────────────

// IssueActivation creates a fresh activation token and publishes the
// notification event carrying the link. Event delivery is decoupled:
// issuance succeeds even when the notification cannot be sent.
func (s *Service) IssueActivation(ctx context.Context, a *Account) error {
	if a.EmailConfirmed {
		return errs.New(errs.CodeValidationFailed, "email already confirmed")
	}
	token, err := newOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate activation token: %w", err)
	}
	expires := time.Now().UTC().Add(activationTTL)
	if err := s.repo.CreateToken(ctx, a.ID, token, PurposeActivation, expires); err != nil {
		return err
	}

	s.publisher.Publish(ctx, events.Event{
		Type:        events.TypeAccountRegistered,
		AccountID:   a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Token:       token,
		Link:        s.baseURL + "/activate/" + token,
	})
	return nil
}

// ConsumeActivation redeems an activation token and marks the account
// confirmed. At most one concurrent consumer succeeds.
func (s *Service) ConsumeActivation(ctx context.Context, token string) (*Account, error) {
	accountID, err := s.repo.ConsumeToken(ctx, token, PurposeActivation)
	if err != nil {
		return nil, tokenError(err)
	}
	if err := s.repo.SetEmailConfirmed(ctx, accountID); err != nil {
		return nil, fmt.Errorf("confirm email: %w", err)
	}

	a, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("reload account: %w", err)
	}
	s.logger.Info("email confirmed", zap.String("account_id", a.ID.String()))
	s.publisher.Publish(ctx, events.Event{
		Type:        events.TypeAccountActivated,
		AccountID:   a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
	})
	return a, nil
}

// ResendActivation issues a new activation token for an unconfirmed
// account. Always returns nil so callers cannot probe which emails are
// registered.
func (s *Service) ResendActivation(ctx context.Context, email string) error {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil || a.EmailConfirmed || !a.IsActive {
		return nil
	}
	if err := s.IssueActivation(ctx, a); err != nil {
		s.logger.Warn("resend activation", zap.String("account_id", a.ID.String()), zap.Error(err))
	}
	return nil
}

// RequestPasswordReset issues a reset token for the account, if one
// exists with a password set. Always returns nil — the caller's response
// must not reveal whether the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil || !a.IsActive || a.PasswordHash == "" {
		return nil
	}

	token, err := newOpaqueToken()
	if err != nil {
		s.logger.Error("generate reset token", zap.Error(err))
		return nil
	}
	expires := time.Now().UTC().Add(passwordResetTTL)
	if err := s.repo.CreateToken(ctx, a.ID, token, PurposePasswordReset, expires); err != nil {
		s.logger.Error("persist reset token", zap.String("account_id", a.ID.String()), zap.Error(err))
		return nil
	}

	s.publisher.Publish(ctx, events.Event{
		Type:        events.TypePasswordResetRequested,
		AccountID:   a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Token:       token,
		Link:        s.baseURL + "/reset/" + token,
	})
	return nil
}

// ConsumeReset redeems a reset token and sets the new password. The
// token is single-use; redeeming also voids other pending reset tokens
// and revokes all outstanding credentials for the account.
func (s *Service) ConsumeReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < passwordMinLength {
		return errs.New(errs.CodeValidationFailed, fmt.Sprintf("password must be at least %d characters", passwordMinLength))
	}
	accountID, err := s.repo.ConsumeToken(ctx, token, PurposePasswordReset)
	if err != nil {
		return tokenError(err)
	}
	return s.SetPassword(ctx, accountID, newPassword)
}

// SetPassword re-hashes the password, voids outstanding reset tokens,
// and revokes every previously issued credential for the account.
func (s *Service) SetPassword(ctx context.Context, accountID uuid.UUID, newPassword string) error {
	if len(newPassword) < passwordMinLength {
		return errs.New(errs.CodeValidationFailed, fmt.Sprintf("password must be at least %d characters", passwordMinLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, accountID, string(hash)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if err := s.repo.InvalidatePendingTokens(ctx, accountID, PurposePasswordReset); err != nil {
		s.logger.Warn("invalidate reset tokens", zap.String("account_id", accountID.String()), zap.Error(err))
	}
	if s.revoker != nil {
		if err := s.revoker.RevokeAll(ctx, accountID); err != nil {
			s.logger.Warn("revoke credentials after password change",
				zap.String("account_id", accountID.String()), zap.Error(err))
		}
	}

	a, err := s.repo.GetByID(ctx, accountID)
	if err == nil {
		s.publisher.Publish(ctx, events.Event{
			Type:        events.TypePasswordChanged,
			AccountID:   a.ID,
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	s.logger.Info("password changed", zap.String("account_id", accountID.String()))
	return nil
}

// ChangePassword verifies the current password before setting a new one.
func (s *Service) ChangePassword(ctx context.Context, accountID uuid.UUID, current, newPassword string) error {
	a, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.New(errs.CodeNotFound, "account not found")
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if a.PasswordHash == "" {
		return errs.New(errs.CodeValidationFailed, "account has no password; use a social login")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(current)); err != nil {
		return errs.New(errs.CodeInvalidCredentials, "current password is incorrect")
	}
	return s.SetPassword(ctx, accountID, newPassword)
}

// ─── Social identity linking ─────────────────────────────────────────────

// LoginWithAssertion authenticates a provider-verified external identity:
//
//  1. A known (provider, subject) pair authenticates its owning account.
//  2. Otherwise an account with the asserted email gets the identity
//     linked — but only when the provider vouches for the email, so an
//     unverified provider email can never take over a local account.
//  3. Otherwise a new account is created with no password and a
//     confirmed email, since the provider already verified it.
//
// The assertion must already be verified; no store mutation happens for
// invalid assertions because they never reach this method.
func (s *Service) LoginWithAssertion(ctx context.Context, as Assertion) (*Account, bool, error) {
	a, err := s.repo.GetBySocial(ctx, as.Provider, as.SubjectID)
	if err == nil {
		if !a.IsActive {
			return nil, false, errs.New(errs.CodeAccountInactive, "account is deactivated")
		}
		return a, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup social identity: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(as.Email))
	if email == "" {
		return nil, false, errs.New(errs.CodeProviderAssertion, "provider assertion carries no email")
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		if !as.EmailVerified {
			return nil, false, errs.New(errs.CodeProviderAssertion, "provider has not verified this email address")
		}
		if !existing.IsActive {
			return nil, false, errs.New(errs.CodeAccountInactive, "account is deactivated")
		}
		if err := s.repo.LinkSocial(ctx, existing.ID, as.Provider, as.SubjectID); err != nil {
			return nil, false, fmt.Errorf("link social identity: %w", err)
		}
		if !existing.EmailConfirmed {
			// The provider proved control of the address.
			if err := s.repo.SetEmailConfirmed(ctx, existing.ID); err == nil {
				existing.EmailConfirmed = true
			}
		}
		s.publisher.Publish(ctx, events.Event{
			Type:        events.TypeSocialLinked,
			AccountID:   existing.ID,
			Email:       existing.Email,
			DisplayName: existing.DisplayName,
		})
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup by email: %w", err)
	}

	username, err := s.uniqueUsername(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("derive username: %w", err)
	}
	displayName := as.Name
	if displayName == "" {
		displayName = username
	}

	a = &Account{
		Email:          email,
		Username:       username,
		DisplayName:    displayName,
		IsActive:       true,
		EmailConfirmed: true, // provider-verified; no separate confirmation round-trip
		TokenVersion:   1,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, false, fmt.Errorf("create social account: %w", err)
	}
	if err := s.repo.LinkSocial(ctx, a.ID, as.Provider, as.SubjectID); err != nil {
		return nil, false, fmt.Errorf("link social identity after create: %w", err)
	}
	return a, true, nil
}

// ─── Lifecycle and lookups ───────────────────────────────────────────────

// Deactivate soft-disables the account and revokes its credentials.
// Data is retained; nothing is deleted.
func (s *Service) Deactivate(ctx context.Context, accountID uuid.UUID) error {
	if err := s.repo.SetActive(ctx, accountID, false); err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	if s.revoker != nil {
		if err := s.revoker.RevokeAll(ctx, accountID); err != nil {
			s.logger.Warn("revoke credentials on deactivate",
				zap.String("account_id", accountID.String()), zap.Error(err))
		}
	}
	a, err := s.repo.GetByID(ctx, accountID)
	if err == nil {
		s.publisher.Publish(ctx, events.Event{
			Type:        events.TypeAccountDeactivated,
			AccountID:   a.ID,
			Email:       a.Email,
			DisplayName: a.DisplayName,
		})
	}
	return nil
}

// Reactivate re-enables a soft-deactivated account.
func (s *Service) Reactivate(ctx context.Context, accountID uuid.UUID) error {
	return s.repo.SetActive(ctx, accountID, true)
}

// GetByID retrieves an account by id.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.New(errs.CodeNotFound, "account not found")
		}
		return nil, err
	}
	return a, nil
}

// GetByUsername retrieves an account by username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*Account, error) {
	a, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.New(errs.CodeNotFound, "account not found")
		}
		return nil, err
	}
	return a, nil
}

// ListSocial lists the social identities linked to an account.
func (s *Service) ListSocial(ctx context.Context, accountID uuid.UUID) ([]SocialIdentity, error) {
	return s.repo.ListSocial(ctx, accountID)
}

// List returns accounts for the admin surface.
func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]*Account, error) {
	return s.repo.List(ctx, search, limit, offset)
}

// UpdateProfile updates the caller's own display name.
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len(displayName) > 100 {
		return errs.New(errs.CodeValidationFailed, "display name must be 1-100 characters")
	}
	return s.repo.UpdateProfile(ctx, accountID, displayName)
}

// SweepExpiredTokens purges verification tokens past expiry.
func (s *Service) SweepExpiredTokens(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredTokens(ctx)
}

// uniqueUsername derives a slug from the email's local part, appending a
// numeric suffix if taken.
func (s *Service) uniqueUsername(ctx context.Context, email string) (string, error) {
	base := slugify(email)
	if base == "" {
		base = "user"
	}
	if _, err := s.repo.GetByUsername(ctx, base); errors.Is(err, ErrNotFound) {
		return base, nil
	}
	for i := 2; i <= 9999; i++ {
		candidate := fmt.Sprintf("%s%d", base, i)
		if _, err := s.repo.GetByUsername(ctx, candidate); errors.Is(err, ErrNotFound) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free username for %q", email)
}

// slugify converts "alice@example.com" → "alice".
func slugify(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 32 {
		out = out[:32]
	}
	return out
}

// tokenError maps repository token sentinels onto the wire taxonomy.
func tokenError(err error) error {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return errs.New(errs.CodeTokenExpired, "token has expired")
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrTokenConsumed):
		return errs.New(errs.CodeTokenInvalid, "token is invalid or already used")
	default:
		return err
	}
}

// newOpaqueToken returns a hex-encoded 32-byte random token.
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
