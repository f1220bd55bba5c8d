package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/accounts"
	"github.com/chroniclehq/chronicle/internal/errs"
)

// AccessClaims are the JWT claims for a Chronicle bearer token. Version
// is the account's revocation marker at issuance time; a token whose
// Version trails the account's current marker is dead regardless of its
// expiry.
type AccessClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Staff     bool   `json:"staff,omitempty"`
	Version   int    `json:"ver"`
}

// accountSource is the slice of the accounts repository the issuer needs
// for revocation checks and marker bumps.
type accountSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error)
	BumpTokenVersion(ctx context.Context, accountID uuid.UUID) (int, error)
}

// Issuer issues and validates bearer/refresh token pairs and implements
// global credential revocation across tokens and web sessions.
type Issuer struct {
	key        *rsa.PrivateKey
	pub        *rsa.PublicKey
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	accounts   accountSource
	refresh    *RefreshRepository
	sessions   *SessionStore
	logger     *zap.Logger
}

// NewIssuer creates an Issuer.
func NewIssuer(
	key *rsa.PrivateKey,
	issuerURL string,
	accessTTL, refreshTTL time.Duration,
	accountSrc accountSource,
	refresh *RefreshRepository,
	sessions *SessionStore,
	logger *zap.Logger,
) *Issuer {
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL == 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Issuer{
		key:        key,
		pub:        &key.PublicKey,
		issuer:     issuerURL,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		accounts:   accountSrc,
		refresh:    refresh,
		sessions:   sessions,
		logger:     logger,
	}
}

// TokenPair is an access/refresh token pair handed to API clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// IssuePair issues a bearer token and a fresh refresh token for the
// account.
func (i *Issuer) IssuePair(ctx context.Context, a *accounts.Account) (*TokenPair, error) {
	access, err := i.issueAccess(a)
	if err != nil {
		return nil, err
	}
	refresh, err := NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := i.refresh.Save(ctx, a.ID, refresh, i.refreshTTL); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(i.accessTTL.Seconds()),
	}, nil
}

func (i *Issuer) issueAccess(a *accounts.Account) (string, error) {
	now := time.Now().UTC()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        uuid.New().String(),
		},
		AccountID: a.ID.String(),
		Email:     a.Email,
		Staff:     a.IsStaff,
		Version:   a.TokenVersion,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess checks signature and expiry and returns the claims. It
// does NOT check the revocation marker; Authenticate does.
func (i *Issuer) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&AccessClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return i.pub, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errs.Wrap(errs.CodeTokenInvalid, "invalid bearer token", err)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, errs.New(errs.CodeTokenInvalid, "invalid bearer token claims")
	}
	return claims, nil
}

// Authenticate fully validates a bearer token: signature, expiry, account
// existence and activity, and the revocation marker. A token is valid iff
// its signature verifies, it is unexpired, and its marker matches the
// account's current one.
func (i *Issuer) Authenticate(ctx context.Context, tokenStr string) (*accounts.Account, error) {
	claims, err := i.VerifyAccess(tokenStr)
	if err != nil {
		return nil, err
	}
	accountID, err := uuid.Parse(claims.AccountID)
	if err != nil {
		return nil, errs.New(errs.CodeTokenInvalid, "malformed account id in token")
	}
	a, err := i.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, errs.New(errs.CodeTokenInvalid, "account no longer exists")
		}
		return nil, fmt.Errorf("load account for token: %w", err)
	}
	if a.TokenVersion != claims.Version {
		return nil, errs.New(errs.CodeTokenInvalid, "token has been revoked")
	}
	if !a.IsActive {
		return nil, errs.New(errs.CodeAccountInactive, "account is deactivated")
	}
	return a, nil
}

// Refresh exchanges a live refresh token for a rotated pair. The old
// token is consumed atomically, so a replayed refresh token fails with
// TokenInvalid.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	accountID, err := i.refresh.Consume(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshNotFound) {
			return nil, errs.New(errs.CodeTokenInvalid, "refresh token is expired, revoked, or unknown")
		}
		return nil, err
	}
	a, err := i.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeTokenInvalid, "account no longer exists", err)
	}
	if !a.IsActive {
		return nil, errs.New(errs.CodeAccountInactive, "account is deactivated")
	}
	return i.IssuePair(ctx, a)
}

// RevokeRefresh revokes a single refresh token (API logout).
func (i *Issuer) RevokeRefresh(ctx context.Context, refreshToken string) error {
	return i.refresh.Revoke(ctx, refreshToken)
}

// RevokeAll invalidates every credential previously issued to the
// account: the marker bump kills outstanding bearer tokens immediately,
// all refresh tokens are revoked, and all web sessions destroyed. Tokens
// issued afterwards carry the new marker and remain valid.
func (i *Issuer) RevokeAll(ctx context.Context, accountID uuid.UUID) error {
	if _, err := i.accounts.BumpTokenVersion(ctx, accountID); err != nil {
		return fmt.Errorf("bump revocation marker: %w", err)
	}
	if err := i.refresh.RevokeAllFor(ctx, accountID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	if i.sessions != nil {
		if err := i.sessions.DestroyAll(ctx, accountID); err != nil {
			return fmt.Errorf("destroy sessions: %w", err)
		}
	}
	i.logger.Info("revoked all credentials", zap.String("account_id", accountID.String()))
	return nil
}

// IssueOAuthState creates a short-lived signed state parameter embedding
// the provider name, protecting the callback against CSRF.
func (i *Issuer) IssueOAuthState(provider string) (string, error) {
	now := time.Now().UTC()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   "oauth-state",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
			ID:        uuid.New().String(),
		},
		AccountID: provider, // carries the provider, not an account
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return signed, nil
}

// VerifyOAuthState validates a state parameter and returns the provider.
func (i *Issuer) VerifyOAuthState(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&AccessClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return i.pub, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithSubject("oauth-state"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errs.Wrap(errs.CodeTokenInvalid, "invalid oauth state", err)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return "", errs.New(errs.CodeTokenInvalid, "invalid oauth state")
	}
	return claims.AccountID, nil
}
