package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chroniclehq/chronicle/internal/accounts"
	"github.com/chroniclehq/chronicle/internal/authz"
	"github.com/chroniclehq/chronicle/internal/errs"
)

const ctxAccountKey = "chronicle.account"

// Middleware authenticates incoming requests from either identity
// carrier: an Authorization bearer token or a web session cookie. Both
// paths converge on the same account lookup so revocation and inactivity
// checks apply uniformly.
type Middleware struct {
	issuer   *Issuer
	sessions *SessionStore
	accounts accountSource
}

func NewMiddleware(issuer *Issuer, sessions *SessionStore, accountSrc accountSource) *Middleware {
	return &Middleware{issuer: issuer, sessions: sessions, accounts: accountSrc}
}

// RequireAuth aborts with 401 when no valid credential is presented.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := m.resolve(c)
		if err != nil {
			status := errs.HTTPStatus(errs.CodeOf(err))
			if status == http.StatusInternalServerError {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, gin.H{
				"code":    string(errs.CodeOf(err)),
				"message": errs.MessageOf(err),
			})
			return
		}
		c.Set(ctxAccountKey, a)
		c.Next()
	}
}

// OptionalAuth resolves a credential when one is presented but lets
// anonymous requests through.
func (m *Middleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a, err := m.resolve(c); err == nil {
			c.Set(ctxAccountKey, a)
		}
		c.Next()
	}
}

// RequireStaff layers a staff check on top of RequireAuth.
func (m *Middleware) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		a := AccountFromCtx(c)
		if a == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    string(errs.CodeUnauthenticated),
				"message": "authentication required",
			})
			return
		}
		if !a.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    string(errs.CodeUnauthorized),
				"message": "staff access required",
			})
			return
		}
		c.Next()
	}
}

// resolve tries the bearer token first, then the session cookie.
func (m *Middleware) resolve(c *gin.Context) (*accounts.Account, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return nil, errs.New(errs.CodeUnauthenticated, "authorization header must use the Bearer scheme")
		}
		return m.issuer.Authenticate(c.Request.Context(), strings.TrimSpace(tokenStr))
	}
	if m.sessions != nil {
		if sid, err := c.Cookie(SessionCookie); err == nil && sid != "" {
			return m.resolveSession(c, sid)
		}
	}
	return nil, errs.New(errs.CodeUnauthenticated, "authentication required")
}

func (m *Middleware) resolveSession(c *gin.Context, sid string) (*accounts.Account, error) {
	ctx := c.Request.Context()
	accountID, err := m.sessions.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, errs.New(errs.CodeUnauthenticated, "session is expired or unknown")
		}
		return nil, err
	}
	a, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, errs.New(errs.CodeUnauthenticated, "account no longer exists")
		}
		return nil, err
	}
	if !a.IsActive {
		return nil, errs.New(errs.CodeAccountInactive, "account is deactivated")
	}
	return a, nil
}

// AccountFromCtx returns the authenticated account, or nil for anonymous
// requests.
func AccountFromCtx(c *gin.Context) *accounts.Account {
	v, ok := c.Get(ctxAccountKey)
	if !ok {
		return nil
	}
	a, _ := v.(*accounts.Account)
	return a
}

// IdentityFromCtx projects the request's credential onto the
// authorization identity consulted by the permission gate.
func IdentityFromCtx(c *gin.Context) authz.Identity {
	a := AccountFromCtx(c)
	if a == nil {
		return authz.Identity{}
	}
	return authz.Identity{
		Authenticated: true,
		AccountID:     a.ID,
		Staff:         a.IsStaff,
	}
}
