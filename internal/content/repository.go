package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a post, category, or comment lookup finds
// no matching record.
var ErrNotFound = errors.New("content not found")

// ErrDuplicateSlug is returned when a post or category slug is taken.
var ErrDuplicateSlug = errors.New("slug already in use")

const postColumns = `p.id, p.author_id, a.username, p.category_id, c.slug,
	p.title, p.slug, p.content, p.status, p.published_at, p.created_at, p.updated_at`

const postJoins = `
	FROM posts p
	JOIN accounts a ON a.id = p.author_id
	LEFT JOIN categories c ON c.id = p.category_id`

// Repository provides content persistence against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreatePost inserts a post and its tag set. Sets ID, CreatedAt,
// UpdatedAt on p. A taken slug maps to ErrDuplicateSlug.
func (r *Repository) CreatePost(ctx context.Context, p *Post) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == StatusPublished && p.PublishedAt == nil {
		p.PublishedAt = &now
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create post: %w", err)
	}
	defer tx.Rollback(ctx)

	q := `
		INSERT INTO posts (id, author_id, category_id, title, slug, content,
			status, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = tx.Exec(ctx, q,
		p.ID, p.AuthorID, p.CategoryID, p.Title, p.Slug, p.Content,
		p.Status, p.PublishedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("create post: %w", err)
	}
	if err := r.setTags(ctx, tx, p.ID, p.Tags); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetPostBySlug retrieves a post with its tags.
func (r *Repository) GetPostBySlug(ctx context.Context, slug string) (*Post, error) {
	q := `SELECT ` + postColumns + postJoins + ` WHERE p.slug = $1`
	p, err := r.scanPost(r.db.QueryRow(ctx, q, slug))
	if err != nil {
		return nil, err
	}
	if p.Tags, err = r.tagsFor(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePost rewrites the post's mutable fields and replaces its tag set.
func (r *Repository) UpdatePost(ctx context.Context, p *Post) error {
	p.UpdatedAt = time.Now().UTC()
	if p.Status == StatusPublished && p.PublishedAt == nil {
		now := p.UpdatedAt
		p.PublishedAt = &now
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update post: %w", err)
	}
	defer tx.Rollback(ctx)

	q := `
		UPDATE posts
		SET category_id = $2, title = $3, slug = $4, content = $5,
			status = $6, published_at = $7, updated_at = $8
		WHERE id = $1`
	tag, err := tx.Exec(ctx, q,
		p.ID, p.CategoryID, p.Title, p.Slug, p.Content,
		p.Status, p.PublishedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := r.setTags(ctx, tx, p.ID, p.Tags); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeletePost removes a post; comments and tag links go with it via
// cascading FKs.
func (r *Repository) DeletePost(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPosts returns posts matching the filter, newest first, with their
// tags populated.
func (r *Repository) ListPosts(ctx context.Context, f Filter) ([]*Post, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != "" {
		conds = append(conds, "p.status = "+arg(f.Status))
	}
	if f.CategorySlug != "" {
		conds = append(conds, "c.slug = "+arg(f.CategorySlug))
	}
	if f.AuthorID != uuid.Nil {
		conds = append(conds, "p.author_id = "+arg(f.AuthorID))
	}
	if f.Search != "" {
		ph := arg("%" + f.Search + "%")
		conds = append(conds, "(p.title ILIKE "+ph+" OR p.content ILIKE "+ph+")")
	}

	q := `SELECT ` + postColumns + postJoins
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY p.created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p, err := r.scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	for _, p := range posts {
		if p.Tags, err = r.tagsFor(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

// setTags replaces the post's tag set inside the caller's transaction,
// creating previously unseen tag names.
func (r *Repository) setTags(ctx context.Context, tx pgx.Tx, postID uuid.UUID, tags []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM post_tags WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("clear post tags: %w", err)
	}
	for _, name := range tags {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		var tagID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO tags (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, name).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO post_tags (post_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, postID, tagID)
		if err != nil {
			return fmt.Errorf("attach tag %q: %w", name, err)
		}
	}
	return nil
}

func (r *Repository) tagsFor(ctx context.Context, postID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.name FROM tags t
		JOIN post_tags pt ON pt.tag_id = t.id
		WHERE pt.post_id = $1
		ORDER BY t.name`, postID)
	if err != nil {
		return nil, fmt.Errorf("load post tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func (r *Repository) scanPost(row pgx.Row) (*Post, error) {
	var (
		p       Post
		catSlug *string
		pubAt   *time.Time
	)
	err := row.Scan(
		&p.ID, &p.AuthorID, &p.AuthorName, &p.CategoryID, &catSlug,
		&p.Title, &p.Slug, &p.Content, &p.Status, &pubAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}
	if catSlug != nil {
		p.CategorySlug = *catSlug
	}
	p.PublishedAt = pubAt
	return &p, nil
}

// CreateCategory inserts a category. A taken name or slug maps to
// ErrDuplicateSlug.
func (r *Repository) CreateCategory(ctx context.Context, c *Category) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO categories (name, slug) VALUES ($1, $2) RETURNING id`,
		c.Name, c.Slug,
	).Scan(&c.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// GetCategoryBySlug retrieves a category.
func (r *Repository) GetCategoryBySlug(ctx context.Context, slug string) (*Category, error) {
	var c Category
	err := r.db.QueryRow(ctx,
		`SELECT id, name, slug FROM categories WHERE slug = $1`, slug,
	).Scan(&c.ID, &c.Name, &c.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// ListCategories returns all categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, err
		}
		cats = append(cats, &c)
	}
	return cats, rows.Err()
}

// DeleteCategory removes a category; posts keep existing with a null
// category via the FK's ON DELETE SET NULL.
func (r *Repository) DeleteCategory(ctx context.Context, slug string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const commentColumns = `cm.id, cm.post_id, cm.author_id, a.username, cm.body,
	cm.created_at, cm.updated_at`

// CreateComment inserts a comment. Sets ID, CreatedAt, UpdatedAt on cm.
func (r *Repository) CreateComment(ctx context.Context, cm *Comment) error {
	cm.ID = uuid.New()
	now := time.Now().UTC()
	cm.CreatedAt = now
	cm.UpdatedAt = now

	q := `
		INSERT INTO comments (id, post_id, author_id, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, q, cm.ID, cm.PostID, cm.AuthorID, cm.Body, cm.CreatedAt, cm.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound // post vanished under us
		}
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// GetComment retrieves a comment by id.
func (r *Repository) GetComment(ctx context.Context, id uuid.UUID) (*Comment, error) {
	q := `SELECT ` + commentColumns + `
		FROM comments cm JOIN accounts a ON a.id = cm.author_id
		WHERE cm.id = $1`
	var cm Comment
	err := r.db.QueryRow(ctx, q, id).Scan(
		&cm.ID, &cm.PostID, &cm.AuthorID, &cm.AuthorName, &cm.Body, &cm.CreatedAt, &cm.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &cm, nil
}

// ListComments returns a post's comments, oldest first.
func (r *Repository) ListComments(ctx context.Context, postID uuid.UUID) ([]*Comment, error) {
	q := `SELECT ` + commentColumns + `
		FROM comments cm JOIN accounts a ON a.id = cm.author_id
		WHERE cm.post_id = $1
		ORDER BY cm.created_at`
	rows, err := r.db.Query(ctx, q, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		var cm Comment
		err := rows.Scan(&cm.ID, &cm.PostID, &cm.AuthorID, &cm.AuthorName, &cm.Body, &cm.CreatedAt, &cm.UpdatedAt)
		if err != nil {
			return nil, err
		}
		comments = append(comments, &cm)
	}
	return comments, rows.Err()
}

// UpdateComment rewrites a comment's body.
func (r *Repository) UpdateComment(ctx context.Context, id uuid.UUID, body string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE comments SET body = $2, updated_at = $3 WHERE id = $1`,
		id, body, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteComment removes a comment.
func (r *Repository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
