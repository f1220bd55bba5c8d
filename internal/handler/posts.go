package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/authz"
	"github.com/chroniclehq/chronicle/internal/content"
	"github.com/chroniclehq/chronicle/internal/identity"
)

// contentSvc is the interface expected by the content handlers,
// satisfied by *content.Service.
type contentSvc interface {
	CreatePost(ctx context.Context, id authz.Identity, in content.PostInput) (*content.Post, error)
	GetPost(ctx context.Context, id authz.Identity, slug string) (*content.Post, error)
	UpdatePost(ctx context.Context, id authz.Identity, slug string, in content.PostInput) (*content.Post, error)
	DeletePost(ctx context.Context, id authz.Identity, slug string) error
	ListPosts(ctx context.Context, id authz.Identity, f content.Filter) ([]*content.Post, error)
	CreateCategory(ctx context.Context, id authz.Identity, name string) (*content.Category, error)
	ListCategories(ctx context.Context) ([]*content.Category, error)
	DeleteCategory(ctx context.Context, id authz.Identity, slug string) error
	AddComment(ctx context.Context, id authz.Identity, postSlug, body string) (*content.Comment, error)
	ListComments(ctx context.Context, id authz.Identity, postSlug string) ([]*content.Comment, error)
	UpdateComment(ctx context.Context, id authz.Identity, commentID uuid.UUID, body string) (*content.Comment, error)
	DeleteComment(ctx context.Context, id authz.Identity, commentID uuid.UUID) error
}

// PostHandler serves posts and their nested comments.
type PostHandler struct {
	content contentSvc
	logger  *zap.Logger
}

// NewPostHandler creates a PostHandler.
func NewPostHandler(contentSvc contentSvc, logger *zap.Logger) *PostHandler {
	return &PostHandler{content: contentSvc, logger: logger}
}

// Register mounts post routes. Reads use optional auth so owners and
// staff see drafts; writes go through the gate inside the service.
func (h *PostHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/posts", h.List)
	rg.GET("/posts/:slug", h.Get)
	rg.POST("/posts", h.Create)
	rg.PATCH("/posts/:slug", h.Update)
	rg.DELETE("/posts/:slug", h.Delete)

	rg.GET("/posts/:slug/comments", h.ListComments)
	rg.POST("/posts/:slug/comments", h.AddComment)
	rg.PATCH("/comments/:id", h.UpdateComment)
	rg.DELETE("/comments/:id", h.DeleteComment)
}

type commentRequest struct {
	Body string `json:"body" binding:"required"`
}

// List handles GET /posts with filters: status, category, author, search,
// limit, offset.
func (h *PostHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	f := content.Filter{
		Status:       content.Status(c.Query("status")),
		CategorySlug: c.Query("category"),
		Search:       c.Query("search"),
		Limit:        limit,
		Offset:       offset,
	}
	if author := c.Query("author"); author != "" {
		if id, err := uuid.Parse(author); err == nil {
			f.AuthorID = id
		}
	}

	posts, err := h.content.ListPosts(c.Request.Context(), identity.IdentityFromCtx(c), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

// Get handles GET /posts/:slug.
func (h *PostHandler) Get(c *gin.Context) {
	p, err := h.content.GetPost(c.Request.Context(), identity.IdentityFromCtx(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}

// Create handles POST /posts.
func (h *PostHandler) Create(c *gin.Context) {
	var in content.PostInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}
	p, err := h.content.CreatePost(c.Request.Context(), identity.IdentityFromCtx(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post": p})
}

// Update handles PATCH /posts/:slug.
func (h *PostHandler) Update(c *gin.Context) {
	var in content.PostInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBindError(c, err)
		return
	}
	p, err := h.content.UpdatePost(c.Request.Context(), identity.IdentityFromCtx(c), c.Param("slug"), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}

// Delete handles DELETE /posts/:slug.
func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.content.DeletePost(c.Request.Context(), identity.IdentityFromCtx(c), c.Param("slug")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
}

// ListComments handles GET /posts/:slug/comments.
func (h *PostHandler) ListComments(c *gin.Context) {
	comments, err := h.content.ListComments(c.Request.Context(), identity.IdentityFromCtx(c), c.Param("slug"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "count": len(comments)})
}

// AddComment handles POST /posts/:slug/comments.
func (h *PostHandler) AddComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	cm, err := h.content.AddComment(c.Request.Context(), identity.IdentityFromCtx(c), c.Param("slug"), req.Body)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": cm})
}

// UpdateComment handles PATCH /comments/:id.
func (h *PostHandler) UpdateComment(c *gin.Context) {
	commentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBindError(c, err)
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	cm, err := h.content.UpdateComment(c.Request.Context(), identity.IdentityFromCtx(c), commentID, req.Body)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment": cm})
}

// DeleteComment handles DELETE /comments/:id.
func (h *PostHandler) DeleteComment(c *gin.Context) {
	commentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBindError(c, err)
		return
	}
	if err := h.content.DeleteComment(c.Request.Context(), identity.IdentityFromCtx(c), commentID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
}
