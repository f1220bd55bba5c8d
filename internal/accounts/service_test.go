package accounts

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/errs"
	"github.com/chroniclehq/chronicle/internal/events"
)

// ─── Fakes ───────────────────────────────────────────────────────────────

type fakeToken struct {
	accountID uuid.UUID
	purpose   TokenPurpose
	expiresAt time.Time
	consumed  bool
}

type socialKey struct {
	provider Provider
	subject  string
}

// fakeStore is an in-memory store. The mutex serializes every call the
// way the database serializes statements, so single-use guarantees can
// be exercised from concurrent goroutines.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	social   map[socialKey]uuid.UUID
	tokens   map[string]*fakeToken

	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[uuid.UUID]*Account),
		social:   make(map[socialKey]uuid.UUID),
		tokens:   make(map[string]*fakeToken),
	}
}

func (f *fakeStore) Create(_ context.Context, a *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, other := range f.accounts {
		if other.Email == a.Email {
			return ErrDuplicateEmail
		}
		if other.Username == a.Username {
			return ErrDuplicateUsername
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) GetByUsername(_ context.Context, username string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) GetBySocial(_ context.Context, provider Provider, subjectID string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.social[socialKey{provider, subjectID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f.accounts[id]
	return &cp, nil
}

func (f *fakeStore) LinkSocial(_ context.Context, accountID uuid.UUID, provider Provider, subjectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := socialKey{provider, subjectID}
	if _, ok := f.social[key]; ok {
		return ErrDuplicateSocial
	}
	f.social[key] = accountID
	return nil
}

func (f *fakeStore) ListSocial(_ context.Context, accountID uuid.UUID) ([]SocialIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SocialIdentity
	for key, id := range f.social {
		if id == accountID {
			out = append(out, SocialIdentity{AccountID: id, Provider: key.provider, SubjectID: key.subject})
		}
	}
	return out, nil
}

func (f *fakeStore) SetEmailConfirmed(_ context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.EmailConfirmed = true
	return nil
}

func (f *fakeStore) SetPasswordHash(_ context.Context, accountID uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (f *fakeStore) SetActive(_ context.Context, accountID uuid.UUID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = active
	return nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, accountID uuid.UUID, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.DisplayName = displayName
	return nil
}

func (f *fakeStore) List(_ context.Context, _ string, _, _ int) ([]*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Account
	for _, a := range f.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) CreateToken(_ context.Context, accountID uuid.UUID, token string, purpose TokenPurpose, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = &fakeToken{accountID: accountID, purpose: purpose, expiresAt: expires}
	return nil
}

func (f *fakeStore) ConsumeToken(_ context.Context, token string, purpose TokenPurpose) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok || t.purpose != purpose {
		return uuid.Nil, ErrTokenNotFound
	}
	if t.consumed {
		return uuid.Nil, ErrTokenConsumed
	}
	if time.Now().After(t.expiresAt) {
		return uuid.Nil, ErrTokenExpired
	}
	t.consumed = true
	return t.accountID, nil
}

func (f *fakeStore) InvalidatePendingTokens(_ context.Context, accountID uuid.UUID, purpose TokenPurpose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.accountID == accountID && t.purpose == purpose {
			t.consumed = true
		}
	}
	return nil
}

func (f *fakeStore) DeleteExpiredTokens(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for tok, t := range f.tokens {
		if time.Now().After(t.expiresAt) {
			delete(f.tokens, tok)
			n++
		}
	}
	return n, nil
}

// lastToken returns the most recently issued unconsumed token for a purpose.
func (f *fakeStore) lastToken(purpose TokenPurpose) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, t := range f.tokens {
		if t.purpose == purpose && !t.consumed {
			return tok
		}
	}
	return ""
}

// capturingPublisher records every published event.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}
func (p *capturingPublisher) Close() {}

func (p *capturingPublisher) lastOfType(t events.Type) *events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == t {
			return &p.events[i]
		}
	}
	return nil
}

type recordingRevoker struct {
	revoked []uuid.UUID
}

func (r *recordingRevoker) RevokeAll(_ context.Context, accountID uuid.UUID) error {
	r.revoked = append(r.revoked, accountID)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *capturingPublisher) {
	t.Helper()
	store := newFakeStore()
	pub := &capturingPublisher{}
	svc := NewService(store, pub, "http://localhost:8080", zap.NewNop())
	return svc, store, pub
}

// registerConfirmed registers an account and walks the activation flow.
func registerConfirmed(t *testing.T, svc *Service, store *fakeStore, email, username, password string) *Account {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Register(ctx, email, username, password); err != nil {
		t.Fatalf("Register: %v", err)
	}
	a, err := svc.ConsumeActivation(ctx, store.lastToken(PurposeActivation))
	if err != nil {
		t.Fatalf("ConsumeActivation: %v", err)
	}
	return a
}

// ─── Registration and login ──────────────────────────────────────────────

func TestRegister_issuesActivationToken(t *testing.T) {
	svc, store, pub := newTestService(t)

	a, err := svc.Register(context.Background(), "Alice@Example.com", "Alice", "correct horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.Email != "alice@example.com" || a.Username != "alice" {
		t.Errorf("identifiers not normalized: %s %s", a.Email, a.Username)
	}
	if a.EmailConfirmed {
		t.Error("new account must start unconfirmed")
	}

	tok := store.lastToken(PurposeActivation)
	if tok == "" {
		t.Fatal("no activation token issued")
	}
	ev := pub.lastOfType(events.TypeAccountRegistered)
	if ev == nil {
		t.Fatal("no registration event published")
	}
	if ev.Token != tok {
		t.Error("event does not carry the activation token")
	}
	if ev.Link != "http://localhost:8080/activate/"+tok {
		t.Errorf("unexpected activation link: %s", ev.Link)
	}
}

func TestRegister_duplicateEmailLeavesNoPartialState(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "correct horse"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	tokensBefore := len(store.tokens)

	_, err := svc.Register(ctx, "alice@example.com", "alice2", "correct horse")
	if errs.CodeOf(err) != errs.CodeDuplicateIdentity {
		t.Fatalf("expected DuplicateIdentity, got %v", err)
	}
	if len(store.accounts) != 1 {
		t.Errorf("duplicate registration created an account: %d", len(store.accounts))
	}
	if len(store.tokens) != tokensBefore {
		t.Error("duplicate registration issued a token")
	}
}

func TestRegister_rejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct{ email, username, password string }{
		{"not-an-email", "alice", "correct horse"},
		{"alice@example.com", "a", "correct horse"},
		{"alice@example.com", "has spaces", "correct horse"},
		{"alice@example.com", "alice", "short"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.email, tc.username, tc.password); errs.CodeOf(err) != errs.CodeValidationFailed {
			t.Errorf("Register(%q,%q): expected ValidationFailed, got %v", tc.email, tc.username, err)
		}
	}
}

func TestAuthenticate_beforeActivation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "correct horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := svc.Authenticate(ctx, "alice@example.com", "correct horse")
	if errs.CodeOf(err) != errs.CodeAccountInactive {
		t.Fatalf("expected AccountInactive before confirmation, got %v", err)
	}
}

func TestAuthenticate_uniformCredentialErrors(t *testing.T) {
	svc, store, _ := newTestService(t)
	registerConfirmed(t, svc, store, "alice@example.com", "alice", "correct horse")
	ctx := context.Background()

	_, wrongPw := svc.Authenticate(ctx, "alice@example.com", "wrong password")
	_, noUser := svc.Authenticate(ctx, "nobody@example.com", "wrong password")

	if errs.CodeOf(wrongPw) != errs.CodeInvalidCredentials {
		t.Errorf("wrong password: %v", wrongPw)
	}
	if errs.CodeOf(noUser) != errs.CodeInvalidCredentials {
		t.Errorf("unknown email: %v", noUser)
	}
	if errs.MessageOf(wrongPw) != errs.MessageOf(noUser) {
		t.Error("credential failures must be indistinguishable")
	}
}

func TestAuthenticate_deactivatedAccount(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := registerConfirmed(t, svc, store, "alice@example.com", "alice", "correct horse")
	ctx := context.Background()

	if err := svc.Deactivate(ctx, a.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	_, err := svc.Authenticate(ctx, "alice@example.com", "correct horse")
	if errs.CodeOf(err) != errs.CodeAccountInactive {
		t.Fatalf("expected AccountInactive, got %v", err)
	}

	if err := svc.Reactivate(ctx, a.ID); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice@example.com", "correct horse"); err != nil {
		t.Fatalf("login after reactivation: %v", err)
	}
}

// ─── Email verification ──────────────────────────────────────────────────

func TestConsumeActivation_singleUse(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "correct horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tok := store.lastToken(PurposeActivation)

	a, err := svc.ConsumeActivation(ctx, tok)
	if err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if !a.EmailConfirmed {
		t.Error("account not confirmed after activation")
	}

	_, err = svc.ConsumeActivation(ctx, tok)
	if errs.CodeOf(err) != errs.CodeTokenInvalid {
		t.Fatalf("second consume: expected TokenInvalid, got %v", err)
	}
}

func TestConsumeActivation_concurrentAttemptsOneWinner(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "correct horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tok := store.lastToken(PurposeActivation)

	const attempts = 16
	start := make(chan struct{})
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.ConsumeActivation(ctx, tok)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var wins, rejected int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errs.CodeOf(err) == errs.CodeTokenInvalid:
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("want exactly one successful consumption, got %d", wins)
	}
	if rejected != attempts-1 {
		t.Errorf("want %d rejected attempts, got %d", attempts-1, rejected)
	}
}

func TestConsumeActivation_expiredToken(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "correct horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tok := store.lastToken(PurposeActivation)
	store.tokens[tok].expiresAt = time.Now().Add(-time.Minute)

	_, err := svc.ConsumeActivation(ctx, tok)
	if errs.CodeOf(err) != errs.CodeTokenExpired {
		t.Fatalf("expected TokenExpired, got %v", err)
	}
}

func TestConsumeActivation_unknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ConsumeActivation(context.Background(), "deadbeef")
	if errs.CodeOf(err) != errs.CodeTokenInvalid {
		t.Fatalf("expected TokenInvalid, got %v", err)
	}
}

func TestResendActivation_neverLeaksExistence(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "alice", "correct horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ResendActivation(ctx, "alice@example.com"); err != nil {
		t.Errorf("resend for known email: %v", err)
	}
	if err := svc.ResendActivation(ctx, "nobody@example.com"); err != nil {
		t.Errorf("resend for unknown email must still return nil: %v", err)
	}

	var pending int
	for _, tok := range store.tokens {
		if tok.purpose == PurposeActivation && !tok.consumed {
			pending++
		}
	}
	if pending != 2 {
		t.Errorf("expected 2 pending activation tokens, got %d", pending)
	}
}

// ─── Password reset ──────────────────────────────────────────────────────

func TestPasswordReset_fullFlow(t *testing.T) {
	svc, store, pub := newTestService(t)
	revoker := &recordingRevoker{}
	svc.SetRevoker(revoker)
	a := registerConfirmed(t, svc, store, "alice@example.com", "alice", "correct horse")
	ctx := context.Background()

	if err := svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	tok := store.lastToken(PurposePasswordReset)
	if tok == "" {
		t.Fatal("no reset token issued")
	}
	if ev := pub.lastOfType(events.TypePasswordResetRequested); ev == nil || ev.Link == "" {
		t.Fatal("reset event missing or without link")
	}

	if err := svc.ConsumeReset(ctx, tok, "battery staple"); err != nil {
		t.Fatalf("ConsumeReset: %v", err)
	}

	// Old password is dead, the new one works.
	if _, err := svc.Authenticate(ctx, "alice@example.com", "correct horse"); errs.CodeOf(err) != errs.CodeInvalidCredentials {
		t.Errorf("old password still accepted: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice@example.com", "battery staple"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	// Every outstanding credential is revoked, and the token is spent.
	if len(revoker.revoked) != 1 || revoker.revoked[0] != a.ID {
		t.Errorf("credentials not revoked: %v", revoker.revoked)
	}
	if err := svc.ConsumeReset(ctx, tok, "another pass"); errs.CodeOf(err) != errs.CodeTokenInvalid {
		t.Errorf("reset token reusable: %v", err)
	}
}

func TestRequestPasswordReset_socialOnlyAccountGetsNoToken(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, created, err := svc.LoginWithAssertion(ctx, Assertion{
		Provider: ProviderGoogle, SubjectID: "g-1", Email: "alice@example.com", EmailVerified: true, Name: "Alice",
	})
	if err != nil || !created {
		t.Fatalf("LoginWithAssertion: created=%t err=%v", created, err)
	}

	if err := svc.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if tok := store.lastToken(PurposePasswordReset); tok != "" {
		t.Error("reset token issued for a passwordless account")
	}
}

func TestChangePassword_requiresCurrent(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := registerConfirmed(t, svc, store, "alice@example.com", "alice", "correct horse")
	ctx := context.Background()

	err := svc.ChangePassword(ctx, a.ID, "wrong", "battery staple")
	if errs.CodeOf(err) != errs.CodeInvalidCredentials {
		t.Fatalf("expected InvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, a.ID, "correct horse", "battery staple"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice@example.com", "battery staple"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

// ─── Social identity linking ─────────────────────────────────────────────

func TestLoginWithAssertion_createsAccountOnFirstLogin(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	a, created, err := svc.LoginWithAssertion(ctx, Assertion{
		Provider: ProviderGoogle, SubjectID: "g-1", Email: "Alice@Example.com", EmailVerified: true, Name: "Alice L",
	})
	if err != nil {
		t.Fatalf("LoginWithAssertion: %v", err)
	}
	if !created {
		t.Error("expected account creation")
	}
	if a.Email != "alice@example.com" {
		t.Errorf("email not normalized: %s", a.Email)
	}
	if !a.EmailConfirmed {
		t.Error("provider-verified email must be confirmed immediately")
	}
	if a.PasswordHash != "" {
		t.Error("social account must have no password")
	}

	ids, _ := store.ListSocial(ctx, a.ID)
	if len(ids) != 1 || ids[0].SubjectID != "g-1" {
		t.Errorf("identity not linked: %v", ids)
	}

	// Second login with the same subject authenticates the same account.
	again, created, err := svc.LoginWithAssertion(ctx, Assertion{
		Provider: ProviderGoogle, SubjectID: "g-1", Email: "alice@example.com", EmailVerified: true,
	})
	if err != nil || created {
		t.Fatalf("repeat login: created=%t err=%v", created, err)
	}
	if again.ID != a.ID {
		t.Error("repeat login resolved a different account")
	}
}

func TestLoginWithAssertion_linksToExistingAccountByEmail(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := registerConfirmed(t, svc, store, "alice@example.com", "alice", "correct horse")
	ctx := context.Background()

	linked, created, err := svc.LoginWithAssertion(ctx, Assertion{
		Provider: ProviderFacebook, SubjectID: "fb-9", Email: "alice@example.com", EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("LoginWithAssertion: %v", err)
	}
	if created || linked.ID != a.ID {
		t.Errorf("expected link to existing account, created=%t id=%s", created, linked.ID)
	}
}

func TestLoginWithAssertion_refusesUnverifiedEmailTakeover(t *testing.T) {
	svc, store, _ := newTestService(t)
	registerConfirmed(t, svc, store, "alice@example.com", "alice", "correct horse")
	ctx := context.Background()

	_, _, err := svc.LoginWithAssertion(ctx, Assertion{
		Provider: ProviderFacebook, SubjectID: "fb-9", Email: "alice@example.com", EmailVerified: false,
	})
	if errs.CodeOf(err) != errs.CodeProviderAssertion {
		t.Fatalf("expected ProviderAssertionInvalid, got %v", err)
	}
	if len(store.social) != 0 {
		t.Error("identity linked despite unverified email")
	}
}

func TestLoginWithAssertion_emptyEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.LoginWithAssertion(context.Background(), Assertion{
		Provider: ProviderFacebook, SubjectID: "fb-9",
	})
	if errs.CodeOf(err) != errs.CodeProviderAssertion {
		t.Fatalf("expected ProviderAssertionInvalid, got %v", err)
	}
}

func TestLoginWithAssertion_deactivatedAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, _, err := svc.LoginWithAssertion(ctx, Assertion{
		Provider: ProviderGoogle, SubjectID: "g-1", Email: "alice@example.com", EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("LoginWithAssertion: %v", err)
	}
	if err := svc.Deactivate(ctx, a.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	_, _, err = svc.LoginWithAssertion(ctx, Assertion{
		Provider: ProviderGoogle, SubjectID: "g-1", Email: "alice@example.com", EmailVerified: true,
	})
	if errs.CodeOf(err) != errs.CodeAccountInactive {
		t.Fatalf("expected AccountInactive, got %v", err)
	}
}

func TestLoginWithAssertion_usernameCollisionGetsSuffix(t *testing.T) {
	svc, store, _ := newTestService(t)
	registerConfirmed(t, svc, store, "alice@other.org", "alice", "correct horse")
	ctx := context.Background()

	a, created, err := svc.LoginWithAssertion(ctx, Assertion{
		Provider: ProviderGoogle, SubjectID: "g-2", Email: "alice@example.com", EmailVerified: true,
	})
	if err != nil || !created {
		t.Fatalf("LoginWithAssertion: created=%t err=%v", created, err)
	}
	if a.Username != "alice2" {
		t.Errorf("expected suffixed username, got %s", a.Username)
	}
}

// ─── Housekeeping ────────────────────────────────────────────────────────

func TestSweepExpiredTokens(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		username := fmt.Sprintf("user%d", i)
		if _, err := svc.Register(ctx, email, username, "correct horse"); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	var expired int
	for _, tok := range store.tokens {
		tok.expiresAt = time.Now().Add(-time.Minute)
		expired++
		if expired == 2 {
			break
		}
	}

	n, err := svc.SweepExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("SweepExpiredTokens: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 swept, got %d", n)
	}
	if len(store.tokens) != 1 {
		t.Errorf("expected 1 remaining token, got %d", len(store.tokens))
	}
}

func TestDeactivate_revokesCredentials(t *testing.T) {
	svc, store, pub := newTestService(t)
	revoker := &recordingRevoker{}
	svc.SetRevoker(revoker)
	a := registerConfirmed(t, svc, store, "alice@example.com", "alice", "correct horse")

	if err := svc.Deactivate(context.Background(), a.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if len(revoker.revoked) != 1 || revoker.revoked[0] != a.ID {
		t.Errorf("credentials not revoked: %v", revoker.revoked)
	}
	if pub.lastOfType(events.TypeAccountDeactivated) == nil {
		t.Error("no deactivation event published")
	}

	// Soft delete: the record survives.
	got, err := store.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("account hard-deleted: %v", err)
	}
	if got.IsActive {
		t.Error("account still active")
	}
}

func TestUpdateProfile_validatesDisplayName(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := registerConfirmed(t, svc, store, "alice@example.com", "alice", "correct horse")
	ctx := context.Background()

	if err := svc.UpdateProfile(ctx, a.ID, "  "); errs.CodeOf(err) != errs.CodeValidationFailed {
		t.Errorf("blank display name accepted: %v", err)
	}
	if err := svc.UpdateProfile(ctx, a.ID, "Alice Liddell"); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	got, _ := store.GetByID(ctx, a.ID)
	if got.DisplayName != "Alice Liddell" {
		t.Errorf("display name not updated: %s", got.DisplayName)
	}
}
