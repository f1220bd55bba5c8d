package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/accounts"
	"github.com/chroniclehq/chronicle/internal/errs"
	"github.com/chroniclehq/chronicle/internal/identity"
	"github.com/chroniclehq/chronicle/internal/social"
)

// sessionStore is the session slice of *identity.SessionStore.
type sessionStore interface {
	Create(ctx context.Context, accountID uuid.UUID) (string, error)
	Destroy(ctx context.Context, sessionID string) error
}

// stateIssuer signs and verifies the OAuth state parameter.
type stateIssuer interface {
	IssueOAuthState(provider string) (string, error)
	VerifyOAuthState(state string) (string, error)
}

// WebHandler serves the browser surface: form login and logout backed by
// Redis sessions, activation links, and the OAuth redirect flow. It
// drives the same account service as the JSON API, so both surfaces
// enforce identical rules.
type WebHandler struct {
	accounts     accountSvc
	sessions     sessionStore
	states       stateIssuer
	providers    *social.Registry
	frontendURL  string
	cookieMaxAge int
	secureCookie bool
	logger       *zap.Logger
}

// NewWebHandler creates a WebHandler. providers may be nil to disable
// the OAuth redirect routes.
func NewWebHandler(
	accountSvc accountSvc,
	sessions sessionStore,
	states stateIssuer,
	providers *social.Registry,
	logger *zap.Logger,
) *WebHandler {
	if providers == nil {
		providers = social.NewRegistry(nil)
	}
	return &WebHandler{
		accounts:     accountSvc,
		sessions:     sessions,
		states:       states,
		providers:    providers,
		frontendURL:  "http://localhost:3000",
		cookieMaxAge: 24 * 60 * 60,
		logger:       logger,
	}
}

// SetFrontendURL sets the base URL browsers are redirected to after web
// flows complete.
func (h *WebHandler) SetFrontendURL(u string) { h.frontendURL = u }

// SetSecureCookies marks session cookies Secure; enable behind TLS.
func (h *WebHandler) SetSecureCookies(secure bool) { h.secureCookie = secure }

// Register mounts the web routes at the router root.
func (h *WebHandler) Register(r *gin.Engine) {
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)
	r.GET("/activate/:token", h.Activate)
	r.POST("/password-reset", h.RequestPasswordReset)
	r.GET("/reset/:token", h.ResetLanding)
	r.GET("/oauth/:provider", h.OAuthRedirect)
	r.GET("/oauth/:provider/callback", h.OAuthCallback)
}

func (h *WebHandler) setSessionCookie(c *gin.Context, sid string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(identity.SessionCookie, sid, h.cookieMaxAge, "/", "", h.secureCookie, true)
}

func (h *WebHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(identity.SessionCookie, "", -1, "/", "", h.secureCookie, true)
}

func (h *WebHandler) redirect(c *gin.Context, path string, query url.Values) {
	target := h.frontendURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	c.Redirect(http.StatusFound, target)
}

// startSession authenticates the browser by minting a Redis session and
// setting the cookie.
func (h *WebHandler) startSession(c *gin.Context, a *accounts.Account) bool {
	sid, err := h.sessions.Create(c.Request.Context(), a.ID)
	if err != nil {
		h.logger.Error("create session", zap.Error(err))
		h.redirect(c, "/login", url.Values{"error": {"internal"}})
		return false
	}
	h.setSessionCookie(c, sid)
	RecordTokenIssued("session")
	return true
}

// Login handles POST /login with form fields email and password.
func (h *WebHandler) Login(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")

	a, err := h.accounts.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		RecordLogin("session", false)
		h.redirect(c, "/login", url.Values{"error": {string(errs.CodeOf(err))}})
		return
	}
	if !h.startSession(c, a) {
		return
	}
	RecordLogin("session", true)
	h.redirect(c, "/", nil)
}

// Logout handles POST /logout: destroys the server-side session and
// clears the cookie.
func (h *WebHandler) Logout(c *gin.Context) {
	if sid, err := c.Cookie(identity.SessionCookie); err == nil && sid != "" {
		if err := h.sessions.Destroy(c.Request.Context(), sid); err != nil {
			h.logger.Warn("destroy session", zap.Error(err))
		}
	}
	h.clearSessionCookie(c)
	h.redirect(c, "/login", nil)
}

// Activate handles GET /activate/:token from the emailed link. Success
// and the various failure classes land on distinct frontend pages.
func (h *WebHandler) Activate(c *gin.Context) {
	_, err := h.accounts.ConsumeActivation(c.Request.Context(), c.Param("token"))
	if err != nil {
		RecordVerification("activation", false)
		h.redirect(c, "/activate", url.Values{"status": {"failed"}, "reason": {string(errs.CodeOf(err))}})
		return
	}
	RecordVerification("activation", true)
	h.redirect(c, "/login", url.Values{"status": {"activated"}})
}

// RequestPasswordReset handles POST /password-reset with a form email
// field. The redirect is identical whether or not the email exists.
func (h *WebHandler) RequestPasswordReset(c *gin.Context) {
	if err := h.accounts.RequestPasswordReset(c.Request.Context(), c.PostForm("email")); err != nil {
		h.logger.Error("request password reset", zap.Error(err))
	}
	h.redirect(c, "/login", url.Values{"status": {"reset-sent"}})
}

// ResetLanding handles GET /reset/:token from the emailed link. The
// token is not consumed here — the frontend form submits it together
// with the new password, and only that confirm call redeems it.
func (h *WebHandler) ResetLanding(c *gin.Context) {
	h.redirect(c, "/reset", url.Values{"token": {c.Param("token")}})
}

// OAuthRedirect handles GET /oauth/:provider: sends the browser to the
// provider's consent page with a signed state parameter.
func (h *WebHandler) OAuthRedirect(c *gin.Context) {
	provider := c.Param("provider")
	verifier, err := h.providers.Lookup(provider)
	if err != nil {
		h.redirect(c, "/login", url.Values{"error": {"unknown-provider"}})
		return
	}

	state, err := h.states.IssueOAuthState(provider)
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		h.redirect(c, "/login", url.Values{"error": {"internal"}})
		return
	}
	c.Redirect(http.StatusFound, verifier.AuthCodeURL(state))
}

// OAuthCallback handles GET /oauth/:provider/callback: validates state,
// exchanges the code, verifies the provider assertion, and signs the
// browser in with a session cookie.
func (h *WebHandler) OAuthCallback(c *gin.Context) {
	provider := c.Param("provider")
	verifier, err := h.providers.Lookup(provider)
	if err != nil {
		h.redirect(c, "/login", url.Values{"error": {"unknown-provider"}})
		return
	}

	gotProvider, err := h.states.VerifyOAuthState(c.Query("state"))
	if err != nil || gotProvider != provider {
		h.redirect(c, "/login", url.Values{"error": {"invalid-state"}})
		return
	}

	code := c.Query("code")
	if code == "" {
		h.redirect(c, "/login", url.Values{"error": {"consent-denied"}})
		return
	}

	accessToken, err := verifier.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", zap.String("provider", provider), zap.Error(err))
		h.redirect(c, "/login", url.Values{"error": {"exchange-failed"}})
		return
	}

	assertion, err := verifier.VerifyAssertion(c.Request.Context(), accessToken)
	if err != nil {
		RecordLogin("social", false)
		h.redirect(c, "/login", url.Values{"error": {"assertion-invalid"}})
		return
	}

	a, _, err := h.accounts.LoginWithAssertion(c.Request.Context(), assertion)
	if err != nil {
		RecordLogin("social", false)
		h.redirect(c, "/login", url.Values{"error": {string(errs.CodeOf(err))}})
		return
	}
	if !h.startSession(c, a) {
		return
	}
	RecordLogin("social", true)
	h.redirect(c, "/", nil)
}
