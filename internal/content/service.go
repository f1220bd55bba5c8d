package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/authz"
	"github.com/chroniclehq/chronicle/internal/errs"
)

const (
	titleMaxLength = 200
	bodyMaxLength  = 10000
	defaultLimit   = 20
	maxLimit       = 100
)

// store is the persistence interface the service needs, satisfied by
// *Repository.
type store interface {
	CreatePost(ctx context.Context, p *Post) error
	GetPostBySlug(ctx context.Context, slug string) (*Post, error)
	UpdatePost(ctx context.Context, p *Post) error
	DeletePost(ctx context.Context, id uuid.UUID) error
	ListPosts(ctx context.Context, f Filter) ([]*Post, error)
	CreateCategory(ctx context.Context, c *Category) error
	GetCategoryBySlug(ctx context.Context, slug string) (*Category, error)
	ListCategories(ctx context.Context) ([]*Category, error)
	DeleteCategory(ctx context.Context, slug string) error
	CreateComment(ctx context.Context, cm *Comment) error
	GetComment(ctx context.Context, id uuid.UUID) (*Comment, error)
	ListComments(ctx context.Context, postID uuid.UUID) ([]*Comment, error)
	UpdateComment(ctx context.Context, id uuid.UUID, body string) error
	DeleteComment(ctx context.Context, id uuid.UUID) error
}

// Service implements content operations. Every mutation consults the
// authz gate before touching the store.
type Service struct {
	repo   store
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(repo store, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// PostInput carries the writable fields of a post.
type PostInput struct {
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	Status       Status   `json:"status"`
	CategorySlug string   `json:"category"`
	Tags         []string `json:"tags"`
}

// CreatePost creates a post authored by the caller.
func (s *Service) CreatePost(ctx context.Context, id authz.Identity, in PostInput) (*Post, error) {
	if d := authz.Authorize(id, authz.ActionCreate, authz.Resource{Kind: authz.KindPost}); d == authz.Deny {
		return nil, denyError(id)
	}
	if err := validatePostInput(&in); err != nil {
		return nil, err
	}

	p := &Post{
		AuthorID: id.AccountID,
		Title:    in.Title,
		Slug:     Slugify(in.Title),
		Content:  in.Content,
		Status:   in.Status,
		Tags:     in.Tags,
	}
	if err := s.resolveCategory(ctx, p, in.CategorySlug); err != nil {
		return nil, err
	}

	if err := s.repo.CreatePost(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateSlug) {
			return nil, errs.New(errs.CodeConflict, fmt.Sprintf("a post titled %q already exists", in.Title))
		}
		return nil, err
	}
	s.logger.Info("post created",
		zap.String("slug", p.Slug), zap.String("author_id", p.AuthorID.String()))
	return s.repo.GetPostBySlug(ctx, p.Slug)
}

// GetPost returns a post by slug. Drafts are visible only to their
// author and staff; for everyone else the post does not exist.
func (s *Service) GetPost(ctx context.Context, id authz.Identity, slug string) (*Post, error) {
	p, err := s.repo.GetPostBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.New(errs.CodeNotFound, "post not found")
		}
		return nil, err
	}
	res := authz.Resource{Kind: authz.KindPost, OwnerID: p.AuthorID, Published: p.Published()}
	if d := authz.Authorize(id, authz.ActionRead, res); d == authz.Deny {
		return nil, errs.New(errs.CodeNotFound, "post not found")
	}
	return p, nil
}

// UpdatePost applies the input to an existing post.
func (s *Service) UpdatePost(ctx context.Context, id authz.Identity, slug string, in PostInput) (*Post, error) {
	p, err := s.GetPost(ctx, id, slug)
	if err != nil {
		return nil, err
	}
	res := authz.Resource{Kind: authz.KindPost, OwnerID: p.AuthorID, Published: p.Published()}
	if d := authz.Authorize(id, authz.ActionUpdate, res); d == authz.Deny {
		return nil, denyError(id)
	}
	if err := validatePostInput(&in); err != nil {
		return nil, err
	}

	p.Title = in.Title
	p.Content = in.Content
	p.Status = in.Status
	p.Tags = in.Tags
	if err := s.resolveCategory(ctx, p, in.CategorySlug); err != nil {
		return nil, err
	}

	if err := s.repo.UpdatePost(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateSlug) {
			return nil, errs.New(errs.CodeConflict, "slug already in use")
		}
		if errors.Is(err, ErrNotFound) {
			return nil, errs.New(errs.CodeNotFound, "post not found")
		}
		return nil, err
	}
	return s.repo.GetPostBySlug(ctx, p.Slug)
}

// DeletePost removes a post.
func (s *Service) DeletePost(ctx context.Context, id authz.Identity, slug string) error {
	p, err := s.GetPost(ctx, id, slug)
	if err != nil {
		return err
	}
	res := authz.Resource{Kind: authz.KindPost, OwnerID: p.AuthorID, Published: p.Published()}
	if d := authz.Authorize(id, authz.ActionDelete, res); d == authz.Deny {
		return denyError(id)
	}
	if err := s.repo.DeletePost(ctx, p.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.New(errs.CodeNotFound, "post not found")
		}
		return err
	}
	s.logger.Info("post deleted", zap.String("slug", slug))
	return nil
}

// ListPosts lists posts visible to the caller. Anonymous and ordinary
// callers see only published posts unless they filter down to their own;
// staff see everything the filter matches.
func (s *Service) ListPosts(ctx context.Context, id authz.Identity, f Filter) ([]*Post, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if !id.Staff {
		ownOnly := id.Authenticated && f.AuthorID == id.AccountID
		if !ownOnly {
			f.Status = StatusPublished
		}
	}
	posts, err := s.repo.ListPosts(ctx, f)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*Post{}
	}
	return posts, nil
}

func (s *Service) resolveCategory(ctx context.Context, p *Post, slug string) error {
	if slug == "" {
		p.CategoryID = nil
		p.CategorySlug = ""
		return nil
	}
	c, err := s.repo.GetCategoryBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.New(errs.CodeValidationFailed, fmt.Sprintf("unknown category %q", slug))
		}
		return err
	}
	p.CategoryID = &c.ID
	p.CategorySlug = c.Slug
	return nil
}

// CreateCategory creates a category. Categories are staff-managed.
func (s *Service) CreateCategory(ctx context.Context, id authz.Identity, name string) (*Category, error) {
	if d := authz.Authorize(id, authz.ActionCreate, authz.Resource{Kind: authz.KindCategory}); d == authz.Deny {
		return nil, denyError(id)
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, errs.New(errs.CodeValidationFailed, "category name must be 1-100 characters")
	}
	c := &Category{Name: name, Slug: Slugify(name)}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateSlug) {
			return nil, errs.New(errs.CodeConflict, fmt.Sprintf("category %q already exists", name))
		}
		return nil, err
	}
	return c, nil
}

// ListCategories lists all categories.
func (s *Service) ListCategories(ctx context.Context) ([]*Category, error) {
	cats, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []*Category{}
	}
	return cats, nil
}

// DeleteCategory removes a category. Staff only.
func (s *Service) DeleteCategory(ctx context.Context, id authz.Identity, slug string) error {
	if d := authz.Authorize(id, authz.ActionDelete, authz.Resource{Kind: authz.KindCategory}); d == authz.Deny {
		return denyError(id)
	}
	if err := s.repo.DeleteCategory(ctx, slug); err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.New(errs.CodeNotFound, "category not found")
		}
		return err
	}
	return nil
}

// AddComment attaches a comment to a post the caller can read.
func (s *Service) AddComment(ctx context.Context, id authz.Identity, postSlug, body string) (*Comment, error) {
	p, err := s.GetPost(ctx, id, postSlug)
	if err != nil {
		return nil, err
	}
	if d := authz.Authorize(id, authz.ActionCreate, authz.Resource{Kind: authz.KindComment}); d == authz.Deny {
		return nil, denyError(id)
	}
	body = strings.TrimSpace(body)
	if body == "" || len(body) > bodyMaxLength {
		return nil, errs.New(errs.CodeValidationFailed, fmt.Sprintf("comment body must be 1-%d characters", bodyMaxLength))
	}

	cm := &Comment{PostID: p.ID, AuthorID: id.AccountID, Body: body}
	if err := s.repo.CreateComment(ctx, cm); err != nil {
		return nil, err
	}
	return s.repo.GetComment(ctx, cm.ID)
}

// ListComments lists comments on a post the caller can read.
func (s *Service) ListComments(ctx context.Context, id authz.Identity, postSlug string) ([]*Comment, error) {
	p, err := s.GetPost(ctx, id, postSlug)
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*Comment{}
	}
	return comments, nil
}

// UpdateComment rewrites a comment's body. Only the author and staff may
// edit.
func (s *Service) UpdateComment(ctx context.Context, id authz.Identity, commentID uuid.UUID, body string) (*Comment, error) {
	cm, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.New(errs.CodeNotFound, "comment not found")
		}
		return nil, err
	}
	res := authz.Resource{Kind: authz.KindComment, OwnerID: cm.AuthorID, Published: true}
	if d := authz.Authorize(id, authz.ActionUpdate, res); d == authz.Deny {
		return nil, denyError(id)
	}
	body = strings.TrimSpace(body)
	if body == "" || len(body) > bodyMaxLength {
		return nil, errs.New(errs.CodeValidationFailed, fmt.Sprintf("comment body must be 1-%d characters", bodyMaxLength))
	}
	if err := s.repo.UpdateComment(ctx, commentID, body); err != nil {
		return nil, err
	}
	return s.repo.GetComment(ctx, commentID)
}

// DeleteComment removes a comment. Only the author and staff may delete.
func (s *Service) DeleteComment(ctx context.Context, id authz.Identity, commentID uuid.UUID) error {
	cm, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.New(errs.CodeNotFound, "comment not found")
		}
		return err
	}
	res := authz.Resource{Kind: authz.KindComment, OwnerID: cm.AuthorID, Published: true}
	if d := authz.Authorize(id, authz.ActionDelete, res); d == authz.Deny {
		return denyError(id)
	}
	return s.repo.DeleteComment(ctx, commentID)
}

func validatePostInput(in *PostInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || len(in.Title) > titleMaxLength {
		return errs.New(errs.CodeValidationFailed, fmt.Sprintf("title must be 1-%d characters", titleMaxLength))
	}
	if in.Status == "" {
		in.Status = StatusDraft
	}
	if !in.Status.Valid() {
		return errs.New(errs.CodeValidationFailed, fmt.Sprintf("status must be %q or %q", StatusDraft, StatusPublished))
	}
	return nil
}

// denyError maps a gate denial onto the caller's authentication state.
func denyError(id authz.Identity) error {
	if !id.Authenticated {
		return errs.New(errs.CodeUnauthenticated, "authentication required")
	}
	return errs.New(errs.CodeUnauthorized, "you do not have permission to do that")
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a title into a URL slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
