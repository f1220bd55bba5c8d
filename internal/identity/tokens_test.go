package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/accounts"
	"github.com/chroniclehq/chronicle/internal/errs"
)

type stubAccountSource struct {
	account *accounts.Account
	err     error
}

func (s *stubAccountSource) GetByID(_ context.Context, id uuid.UUID) (*accounts.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.account == nil || s.account.ID != id {
		return nil, accounts.ErrNotFound
	}
	return s.account, nil
}

func (s *stubAccountSource) BumpTokenVersion(_ context.Context, _ uuid.UUID) (int, error) {
	if s.account == nil {
		return 0, accounts.ErrNotFound
	}
	s.account.TokenVersion++
	return s.account.TokenVersion, nil
}

func testIssuer(t *testing.T, src accountSource, accessTTL time.Duration) *Issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewIssuer(key, "https://chronicle.test", accessTTL, time.Hour, src, nil, nil, zap.NewNop())
}

func testAccount() *accounts.Account {
	return &accounts.Account{
		ID:           uuid.New(),
		Email:        "reader@example.com",
		Username:     "reader",
		IsActive:     true,
		TokenVersion: 1,
	}
}

func TestAuthenticateValidToken(t *testing.T) {
	a := testAccount()
	src := &stubAccountSource{account: a}
	iss := testIssuer(t, src, 15*time.Minute)

	token, err := iss.issueAccess(a)
	if err != nil {
		t.Fatalf("issueAccess: %v", err)
	}

	got, err := iss.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("authenticated wrong account: got %s want %s", got.ID, a.ID)
	}
}

func TestAuthenticateTamperedToken(t *testing.T) {
	a := testAccount()
	iss := testIssuer(t, &stubAccountSource{account: a}, 15*time.Minute)

	token, err := iss.issueAccess(a)
	if err != nil {
		t.Fatalf("issueAccess: %v", err)
	}

	_, err = iss.Authenticate(context.Background(), token+"x")
	if errs.CodeOf(err) != errs.CodeTokenInvalid {
		t.Errorf("code = %q, want %q", errs.CodeOf(err), errs.CodeTokenInvalid)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	a := testAccount()
	iss := testIssuer(t, &stubAccountSource{account: a}, time.Nanosecond)

	token, err := iss.issueAccess(a)
	if err != nil {
		t.Fatalf("issueAccess: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	_, err = iss.Authenticate(context.Background(), token)
	if errs.CodeOf(err) != errs.CodeTokenInvalid {
		t.Errorf("code = %q, want %q", errs.CodeOf(err), errs.CodeTokenInvalid)
	}
}

func TestAuthenticateRevokedByMarkerBump(t *testing.T) {
	a := testAccount()
	src := &stubAccountSource{account: a}
	iss := testIssuer(t, src, 15*time.Minute)

	token, err := iss.issueAccess(a)
	if err != nil {
		t.Fatalf("issueAccess: %v", err)
	}

	// Token valid before the bump, dead immediately after.
	if _, err := iss.Authenticate(context.Background(), token); err != nil {
		t.Fatalf("Authenticate before revocation: %v", err)
	}
	if _, err := src.BumpTokenVersion(context.Background(), a.ID); err != nil {
		t.Fatalf("BumpTokenVersion: %v", err)
	}
	_, err = iss.Authenticate(context.Background(), token)
	if errs.CodeOf(err) != errs.CodeTokenInvalid {
		t.Errorf("code after revocation = %q, want %q", errs.CodeOf(err), errs.CodeTokenInvalid)
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	a := testAccount()
	iss := testIssuer(t, &stubAccountSource{account: a}, 15*time.Minute)

	token, err := iss.issueAccess(a)
	if err != nil {
		t.Fatalf("issueAccess: %v", err)
	}
	a.IsActive = false

	_, err = iss.Authenticate(context.Background(), token)
	if errs.CodeOf(err) != errs.CodeAccountInactive {
		t.Errorf("code = %q, want %q", errs.CodeOf(err), errs.CodeAccountInactive)
	}
}

func TestAuthenticateDeletedAccount(t *testing.T) {
	a := testAccount()
	src := &stubAccountSource{account: a}
	iss := testIssuer(t, src, 15*time.Minute)

	token, err := iss.issueAccess(a)
	if err != nil {
		t.Fatalf("issueAccess: %v", err)
	}
	src.account = nil
	src.err = accounts.ErrNotFound

	_, err = iss.Authenticate(context.Background(), token)
	if errs.CodeOf(err) != errs.CodeTokenInvalid {
		t.Errorf("code = %q, want %q", errs.CodeOf(err), errs.CodeTokenInvalid)
	}
}

func TestOAuthStateRoundTrip(t *testing.T) {
	iss := testIssuer(t, &stubAccountSource{}, 15*time.Minute)

	state, err := iss.IssueOAuthState("google")
	if err != nil {
		t.Fatalf("IssueOAuthState: %v", err)
	}
	provider, err := iss.VerifyOAuthState(state)
	if err != nil {
		t.Fatalf("VerifyOAuthState: %v", err)
	}
	if provider != "google" {
		t.Errorf("provider = %q, want %q", provider, "google")
	}
}

func TestOAuthStateRejectsAccessToken(t *testing.T) {
	a := testAccount()
	iss := testIssuer(t, &stubAccountSource{account: a}, 15*time.Minute)

	token, err := iss.issueAccess(a)
	if err != nil {
		t.Fatalf("issueAccess: %v", err)
	}
	if _, err := iss.VerifyOAuthState(token); err == nil {
		t.Error("expected access token to be rejected as oauth state")
	}
}

func TestNewOpaqueTokenUnique(t *testing.T) {
	a, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	b, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	if a == b {
		t.Error("two opaque tokens should never collide")
	}
	if len(a) < 32 {
		t.Errorf("opaque token too short: %d chars", len(a))
	}
}

func TestKeyManagerReloadsSameKey(t *testing.T) {
	dir := t.TempDir()

	km1 := NewKeyManager(dir)
	if err := km1.LoadOrCreate(); err != nil {
		t.Fatalf("first LoadOrCreate: %v", err)
	}
	km2 := NewKeyManager(dir)
	if err := km2.LoadOrCreate(); err != nil {
		t.Fatalf("second LoadOrCreate: %v", err)
	}
	if km1.Key().N.Cmp(km2.Key().N) != 0 {
		t.Error("key manager generated a new key instead of reloading")
	}
}
