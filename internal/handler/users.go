package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/accounts"
	"github.com/chroniclehq/chronicle/internal/authz"
	"github.com/chroniclehq/chronicle/internal/errs"
	"github.com/chroniclehq/chronicle/internal/identity"
)

// profileSvc is the profile slice of *accounts.Service.
type profileSvc interface {
	GetByUsername(ctx context.Context, username string) (*accounts.Account, error)
	List(ctx context.Context, search string, limit, offset int) ([]*accounts.Account, error)
	UpdateProfile(ctx context.Context, accountID uuid.UUID, displayName string) error
	Deactivate(ctx context.Context, accountID uuid.UUID) error
	Reactivate(ctx context.Context, accountID uuid.UUID) error
	ListSocial(ctx context.Context, accountID uuid.UUID) ([]accounts.SocialIdentity, error)
}

// UserHandler serves account profiles.
type UserHandler struct {
	accounts profileSvc
	logger   *zap.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(accountSvc profileSvc, logger *zap.Logger) *UserHandler {
	return &UserHandler{accounts: accountSvc, logger: logger}
}

// Register mounts public profile routes.
func (h *UserHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/users/:username", h.GetProfile)
}

// RegisterProtected mounts routes requiring authentication.
func (h *UserHandler) RegisterProtected(rg *gin.RouterGroup) {
	rg.GET("/users/me", h.Me)
	rg.PATCH("/users/me", h.UpdateMe)
	rg.POST("/users/me/deactivate", h.DeactivateMe)
	rg.GET("/users/me/identities", h.MyIdentities)
}

// RegisterStaff mounts staff-only routes.
func (h *UserHandler) RegisterStaff(rg *gin.RouterGroup) {
	rg.GET("/users", h.List)
	rg.POST("/users/:username/deactivate", h.Deactivate)
	rg.POST("/users/:username/reactivate", h.Reactivate)
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// publicProfile strips the fields only the owner and staff may see.
func publicProfile(a *accounts.Account) gin.H {
	return gin.H{
		"username":     a.Username,
		"display_name": a.DisplayName,
		"joined_at":    a.CreatedAt,
	}
}

// Me handles GET /users/me.
func (h *UserHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"account": identity.AccountFromCtx(c)})
}

// GetProfile handles GET /users/:username. The caller's identity decides
// how much of the profile is visible.
func (h *UserHandler) GetProfile(c *gin.Context) {
	a, err := h.accounts.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	id := identity.IdentityFromCtx(c)
	res := authz.Resource{Kind: authz.KindProfile, OwnerID: a.ID, Published: true}
	if authz.Authorize(id, authz.ActionUpdate, res) == authz.Allow {
		// Owner or staff: full account.
		c.JSON(http.StatusOK, gin.H{"account": a})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": publicProfile(a)})
}

// UpdateMe handles PATCH /users/me.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	a := identity.AccountFromCtx(c)
	id := identity.IdentityFromCtx(c)
	res := authz.Resource{Kind: authz.KindProfile, OwnerID: a.ID, Published: true}
	if authz.Authorize(id, authz.ActionUpdate, res) == authz.Deny {
		respondError(c, h.logger, errs.New(errs.CodeUnauthorized, "you do not have permission to do that"))
		return
	}

	if err := h.accounts.UpdateProfile(c.Request.Context(), a.ID, req.DisplayName); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "profile updated"})
}

// DeactivateMe handles POST /users/me/deactivate: the account is
// deactivated and every credential revoked.
func (h *UserHandler) DeactivateMe(c *gin.Context) {
	a := identity.AccountFromCtx(c)
	if err := h.accounts.Deactivate(c.Request.Context(), a.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account deactivated"})
}

// MyIdentities handles GET /users/me/identities: lists linked social
// identities.
func (h *UserHandler) MyIdentities(c *gin.Context) {
	a := identity.AccountFromCtx(c)
	ids, err := h.accounts.ListSocial(c.Request.Context(), a.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if ids == nil {
		ids = []accounts.SocialIdentity{}
	}
	c.JSON(http.StatusOK, gin.H{"identities": ids})
}

// Deactivate handles POST /users/:username/deactivate for staff: the
// account is disabled and every credential revoked.
func (h *UserHandler) Deactivate(c *gin.Context) {
	a, err := h.accounts.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.accounts.Deactivate(c.Request.Context(), a.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account deactivated"})
}

// Reactivate handles POST /users/:username/reactivate for staff.
func (h *UserHandler) Reactivate(c *gin.Context) {
	a, err := h.accounts.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.accounts.Reactivate(c.Request.Context(), a.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account reactivated"})
}

// List handles GET /users for staff, with optional search and paging.
func (h *UserHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.accounts.List(c.Request.Context(), c.Query("search"), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []*accounts.Account{}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": list, "count": len(list)})
}
