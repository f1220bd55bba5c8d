package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/identity"
)

// CategoryHandler serves the category taxonomy.
type CategoryHandler struct {
	content contentSvc
	logger  *zap.Logger
}

// NewCategoryHandler creates a CategoryHandler.
func NewCategoryHandler(contentSvc contentSvc, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{content: contentSvc, logger: logger}
}

// Register mounts category routes. Creation and deletion are rejected by
// the gate for non-staff callers.
func (h *CategoryHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/categories", h.List)
	rg.POST("/categories", h.Create)
	rg.DELETE("/categories/:slug", h.Delete)
}

type categoryRequest struct {
	Name string `json:"name" binding:"required"`
}

// List handles GET /categories.
func (h *CategoryHandler) List(c *gin.Context) {
	cats, err := h.content.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats, "count": len(cats)})
}

// Create handles POST /categories.
func (h *CategoryHandler) Create(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	cat, err := h.content.CreateCategory(c.Request.Context(), identity.IdentityFromCtx(c), req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": cat})
}

// Delete handles DELETE /categories/:slug.
func (h *CategoryHandler) Delete(c *gin.Context) {
	if err := h.content.DeleteCategory(c.Request.Context(), identity.IdentityFromCtx(c), c.Param("slug")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "category deleted"})
}
