package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/accounts"
	"github.com/chroniclehq/chronicle/internal/identity"
	"github.com/chroniclehq/chronicle/internal/social"
)

// accountSvc is the interface expected by AuthHandler, satisfied by
// *accounts.Service.
type accountSvc interface {
	Register(ctx context.Context, email, username, password string) (*accounts.Account, error)
	Authenticate(ctx context.Context, email, password string) (*accounts.Account, error)
	ConsumeActivation(ctx context.Context, token string) (*accounts.Account, error)
	ResendActivation(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConsumeReset(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, accountID uuid.UUID, current, newPassword string) error
	LoginWithAssertion(ctx context.Context, as accounts.Assertion) (*accounts.Account, bool, error)
}

// tokenSvc is the credential-issuing slice of *identity.Issuer.
type tokenSvc interface {
	IssuePair(ctx context.Context, a *accounts.Account) (*identity.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error)
	RevokeRefresh(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, accountID uuid.UUID) error
}

// AuthHandler handles registration, login, token lifecycle, email
// verification, and password reset over the JSON API.
type AuthHandler struct {
	accounts  accountSvc
	tokens    tokenSvc
	providers *social.Registry
	logger    *zap.Logger
}

// NewAuthHandler creates an AuthHandler. providers may be nil to disable
// social login routes.
func NewAuthHandler(accountSvc accountSvc, tokens tokenSvc, providers *social.Registry, logger *zap.Logger) *AuthHandler {
	if providers == nil {
		providers = social.NewRegistry(nil)
	}
	return &AuthHandler{
		accounts:  accountSvc,
		tokens:    tokens,
		providers: providers,
		logger:    logger,
	}
}

// Register mounts all auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/register", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.POST("/social/:provider", h.SocialLogin)
		auth.POST("/activate/resend", h.ResendActivation)
		auth.POST("/activate/:token", h.Activate)
		auth.POST("/password-reset/request", h.RequestPasswordReset)
		auth.POST("/password-reset/confirm", h.ConfirmPasswordReset)
	}
}

// RegisterProtected mounts the auth routes that need an authenticated
// caller.
func (h *AuthHandler) RegisterProtected(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/logout-all", h.LogoutAll)
		auth.POST("/password", h.ChangePassword)
	}
}

// ─── Request / Response types ────────────────────────────────────────────────

type signupRequest struct {
	Email    string `json:"email"    binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type socialLoginRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetConfirmRequest struct {
	Token    string `json:"token"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password"     binding:"required"`
}

type loginResponse struct {
	Account *accounts.Account `json:"account"`
	*identity.TokenPair
}

// Signup handles POST /auth/register.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	a, err := h.accounts.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account": a,
		"message": "check your email for an activation link",
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	a, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RecordLogin("password", false)
		respondError(c, h.logger, err)
		return
	}

	pair, err := h.tokens.IssuePair(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordLogin("password", true)
	RecordTokenIssued("access")
	RecordTokenIssued("refresh")

	c.JSON(http.StatusOK, loginResponse{Account: a, TokenPair: pair})
}

// Refresh handles POST /auth/refresh: rotates the refresh token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	pair, err := h.tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordTokenIssued("access")
	RecordTokenIssued("refresh")

	c.JSON(http.StatusOK, pair)
}

// Logout handles POST /auth/logout. For API clients it revokes the
// presented refresh token; the bearer token dies at its natural expiry.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := h.tokens.RevokeRefresh(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// LogoutAll handles POST /auth/logout-all: revokes every credential the
// account holds, including the one presented.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	a := identity.AccountFromCtx(c)
	if err := h.tokens.RevokeAll(c.Request.Context(), a.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all sessions and tokens revoked"})
}

// SocialLogin handles POST /auth/social/:provider. The client obtains a
// provider access token itself and presents it here; we verify it with
// the provider and link or create the account.
func (h *AuthHandler) SocialLogin(c *gin.Context) {
	verifier, err := h.providers.Lookup(c.Param("provider"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req socialLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	assertion, err := verifier.VerifyAssertion(c.Request.Context(), req.AccessToken)
	if err != nil {
		RecordLogin("social", false)
		respondError(c, h.logger, err)
		return
	}

	a, created, err := h.accounts.LoginWithAssertion(c.Request.Context(), assertion)
	if err != nil {
		RecordLogin("social", false)
		respondError(c, h.logger, err)
		return
	}

	pair, err := h.tokens.IssuePair(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordLogin("social", true)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, loginResponse{Account: a, TokenPair: pair})
}

// Activate handles POST /auth/activate/:token. Each activation token is
// single-use; a second attempt reports TokenExpired or TokenInvalid.
func (h *AuthHandler) Activate(c *gin.Context) {
	a, err := h.accounts.ConsumeActivation(c.Request.Context(), c.Param("token"))
	if err != nil {
		RecordVerification("activation", false)
		respondError(c, h.logger, err)
		return
	}
	RecordVerification("activation", true)
	c.JSON(http.StatusOK, gin.H{
		"account": a,
		"message": "account activated — you can now log in",
	})
}

// ResendActivation handles POST /auth/activate/resend. The response is
// identical whether or not the email is registered.
func (h *AuthHandler) ResendActivation(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := h.accounts.ResendActivation(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "if an account with that email exists, an activation link has been sent",
	})
}

// RequestPasswordReset handles POST /auth/password-reset/request. Like
// resend, the response never reveals whether the email is registered.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "if an account with that email exists, a password reset link has been sent",
	})
}

// ConfirmPasswordReset handles POST /auth/password-reset/confirm.
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req resetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := h.accounts.ConsumeReset(c.Request.Context(), req.Token, req.Password); err != nil {
		RecordVerification("password_reset", false)
		respondError(c, h.logger, err)
		return
	}
	RecordVerification("password_reset", true)
	c.JSON(http.StatusOK, gin.H{"message": "password updated — please log in with your new password"})
}

// ChangePassword handles POST /auth/password for an authenticated caller.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	a := identity.AccountFromCtx(c)
	if err := h.accounts.ChangePassword(c.Request.Context(), a.ID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}
