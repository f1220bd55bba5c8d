// Package content implements the blog's published surface: posts,
// categories, tags, and comments. Write access is decided exclusively by
// the authz gate.
package content

import (
	"time"

	"github.com/google/uuid"
)

// Status is a post's publication state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "publish"
)

// Valid reports whether s is a known publication state.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Post is a blog post. AuthorName and CategorySlug are denormalized for
// list responses.
type Post struct {
	ID           uuid.UUID  `json:"id"            db:"id"`
	AuthorID     uuid.UUID  `json:"author_id"     db:"author_id"`
	AuthorName   string     `json:"author_name"   db:"author_name"`
	CategoryID   *int64     `json:"-"             db:"category_id"`
	CategorySlug string     `json:"category,omitempty" db:"category_slug"`
	Title        string     `json:"title"         db:"title"`
	Slug         string     `json:"slug"          db:"slug"`
	Content      string     `json:"content"       db:"content"`
	Status       Status     `json:"status"        db:"status"`
	Tags         []string   `json:"tags"`
	PublishedAt  *time.Time `json:"published_at,omitempty" db:"published_at"`
	CreatedAt    time.Time  `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"    db:"updated_at"`
}

// Published reports whether the post is publicly visible.
func (p *Post) Published() bool { return p.Status == StatusPublished }

// Category groups posts.
type Category struct {
	ID   int64  `json:"id"   db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// Comment is a reader comment on a post.
type Comment struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	PostID     uuid.UUID `json:"post_id"     db:"post_id"`
	AuthorID   uuid.UUID `json:"author_id"   db:"author_id"`
	AuthorName string    `json:"author_name" db:"author_name"`
	Body       string    `json:"body"        db:"body"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"  db:"updated_at"`
}

// Filter narrows a post listing. Zero fields are ignored.
type Filter struct {
	Status       Status
	CategorySlug string
	AuthorID     uuid.UUID
	Search       string
	Limit        int
	Offset       int
}
