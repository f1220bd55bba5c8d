package content

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chroniclehq/chronicle/internal/authz"
	"github.com/chroniclehq/chronicle/internal/errs"
)

// fakeStore is an in-memory store implementation.
type fakeStore struct {
	posts      map[string]*Post
	categories map[string]*Category
	comments   map[uuid.UUID]*Comment
	nextCatID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:      make(map[string]*Post),
		categories: make(map[string]*Category),
		comments:   make(map[uuid.UUID]*Comment),
	}
}

func (f *fakeStore) CreatePost(_ context.Context, p *Post) error {
	if _, ok := f.posts[p.Slug]; ok {
		return ErrDuplicateSlug
	}
	p.ID = uuid.New()
	cp := *p
	f.posts[p.Slug] = &cp
	return nil
}

func (f *fakeStore) GetPostBySlug(_ context.Context, slug string) (*Post, error) {
	p, ok := f.posts[slug]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) UpdatePost(_ context.Context, p *Post) error {
	for slug, existing := range f.posts {
		if existing.ID == p.ID {
			if slug != p.Slug {
				if _, taken := f.posts[p.Slug]; taken {
					return ErrDuplicateSlug
				}
				delete(f.posts, slug)
			}
			cp := *p
			f.posts[p.Slug] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) DeletePost(_ context.Context, id uuid.UUID) error {
	for slug, p := range f.posts {
		if p.ID == id {
			delete(f.posts, slug)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) ListPosts(_ context.Context, filter Filter) ([]*Post, error) {
	var out []*Post
	for _, p := range f.posts {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.AuthorID != uuid.Nil && p.AuthorID != filter.AuthorID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) CreateCategory(_ context.Context, c *Category) error {
	if _, ok := f.categories[c.Slug]; ok {
		return ErrDuplicateSlug
	}
	f.nextCatID++
	c.ID = f.nextCatID
	cp := *c
	f.categories[c.Slug] = &cp
	return nil
}

func (f *fakeStore) GetCategoryBySlug(_ context.Context, slug string) (*Category, error) {
	c, ok := f.categories[slug]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) ListCategories(_ context.Context) ([]*Category, error) {
	var out []*Category
	for _, c := range f.categories {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) DeleteCategory(_ context.Context, slug string) error {
	if _, ok := f.categories[slug]; !ok {
		return ErrNotFound
	}
	delete(f.categories, slug)
	return nil
}

func (f *fakeStore) CreateComment(_ context.Context, cm *Comment) error {
	cm.ID = uuid.New()
	cp := *cm
	f.comments[cm.ID] = &cp
	return nil
}

func (f *fakeStore) GetComment(_ context.Context, id uuid.UUID) (*Comment, error) {
	cm, ok := f.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cm
	return &cp, nil
}

func (f *fakeStore) ListComments(_ context.Context, postID uuid.UUID) ([]*Comment, error) {
	var out []*Comment
	for _, cm := range f.comments {
		if cm.PostID == postID {
			cp := *cm
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateComment(_ context.Context, id uuid.UUID, body string) error {
	cm, ok := f.comments[id]
	if !ok {
		return ErrNotFound
	}
	cm.Body = body
	return nil
}

func (f *fakeStore) DeleteComment(_ context.Context, id uuid.UUID) error {
	if _, ok := f.comments[id]; !ok {
		return ErrNotFound
	}
	delete(f.comments, id)
	return nil
}

func testService() (*Service, *fakeStore) {
	fs := newFakeStore()
	return NewService(fs, zap.NewNop()), fs
}

var (
	staffID  = uuid.New()
	readerID = uuid.New()

	staff  = authz.Identity{Authenticated: true, AccountID: staffID, Staff: true}
	reader = authz.Identity{Authenticated: true, AccountID: readerID}
)

func mustCreatePost(t *testing.T, svc *Service, in PostInput) *Post {
	t.Helper()
	p, err := svc.CreatePost(context.Background(), staff, in)
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return p
}

func TestCreatePostRequiresStaff(t *testing.T) {
	svc, _ := testService()
	in := PostInput{Title: "Hello", Content: "world", Status: StatusPublished}

	_, err := svc.CreatePost(context.Background(), authz.Anonymous, in)
	if errs.CodeOf(err) != errs.CodeUnauthenticated {
		t.Errorf("anonymous create code = %q, want %q", errs.CodeOf(err), errs.CodeUnauthenticated)
	}

	_, err = svc.CreatePost(context.Background(), reader, in)
	if errs.CodeOf(err) != errs.CodeUnauthorized {
		t.Errorf("reader create code = %q, want %q", errs.CodeOf(err), errs.CodeUnauthorized)
	}

	p, err := svc.CreatePost(context.Background(), staff, in)
	if err != nil {
		t.Fatalf("staff create: %v", err)
	}
	if p.Slug != "hello" {
		t.Errorf("slug = %q, want %q", p.Slug, "hello")
	}
}

func TestDuplicatePostTitleConflicts(t *testing.T) {
	svc, _ := testService()
	in := PostInput{Title: "Hello", Content: "one", Status: StatusPublished}
	mustCreatePost(t, svc, in)

	_, err := svc.CreatePost(context.Background(), staff, in)
	if errs.CodeOf(err) != errs.CodeConflict {
		t.Errorf("code = %q, want %q", errs.CodeOf(err), errs.CodeConflict)
	}
}

func TestDraftHiddenFromOthers(t *testing.T) {
	svc, fs := testService()
	mustCreatePost(t, svc, PostInput{Title: "Secret draft", Content: "wip", Status: StatusDraft})

	// The author (staff here) still sees it.
	if _, err := svc.GetPost(context.Background(), staff, "secret-draft"); err != nil {
		t.Fatalf("author GetPost: %v", err)
	}

	// Everyone else gets a 404-shaped error, not a 403: drafts must not
	// leak their existence.
	for _, id := range []authz.Identity{authz.Anonymous, reader} {
		_, err := svc.GetPost(context.Background(), id, "secret-draft")
		if errs.CodeOf(err) != errs.CodeNotFound {
			t.Errorf("GetPost code = %q, want %q", errs.CodeOf(err), errs.CodeNotFound)
		}
	}
	if len(fs.posts) != 1 {
		t.Fatalf("store should hold exactly the draft")
	}
}

func TestListPostsForcesPublishedForOthers(t *testing.T) {
	svc, _ := testService()
	mustCreatePost(t, svc, PostInput{Title: "Public", Content: "a", Status: StatusPublished})
	mustCreatePost(t, svc, PostInput{Title: "Hidden", Content: "b", Status: StatusDraft})

	anon, err := svc.ListPosts(context.Background(), authz.Anonymous, Filter{})
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(anon) != 1 || anon[0].Slug != "public" {
		t.Errorf("anonymous listing = %+v, want only the published post", anon)
	}

	all, err := svc.ListPosts(context.Background(), staff, Filter{})
	if err != nil {
		t.Fatalf("ListPosts staff: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("staff listing length = %d, want 2", len(all))
	}
}

func TestCommentOwnership(t *testing.T) {
	svc, _ := testService()
	mustCreatePost(t, svc, PostInput{Title: "Post", Content: "a", Status: StatusPublished})

	cm, err := svc.AddComment(context.Background(), reader, "post", "nice read")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	other := authz.Identity{Authenticated: true, AccountID: uuid.New()}
	if _, err := svc.UpdateComment(context.Background(), other, cm.ID, "hijacked"); errs.CodeOf(err) != errs.CodeUnauthorized {
		t.Errorf("foreign update code = %q, want %q", errs.CodeOf(err), errs.CodeUnauthorized)
	}
	if err := svc.DeleteComment(context.Background(), other, cm.ID); errs.CodeOf(err) != errs.CodeUnauthorized {
		t.Errorf("foreign delete code = %q, want %q", errs.CodeOf(err), errs.CodeUnauthorized)
	}

	if _, err := svc.UpdateComment(context.Background(), reader, cm.ID, "edited"); err != nil {
		t.Errorf("owner update: %v", err)
	}
	if err := svc.DeleteComment(context.Background(), staff, cm.ID); err != nil {
		t.Errorf("staff delete: %v", err)
	}
}

func TestAnonymousCannotComment(t *testing.T) {
	svc, _ := testService()
	mustCreatePost(t, svc, PostInput{Title: "Post", Content: "a", Status: StatusPublished})

	_, err := svc.AddComment(context.Background(), authz.Anonymous, "post", "drive-by")
	if errs.CodeOf(err) != errs.CodeUnauthenticated {
		t.Errorf("code = %q, want %q", errs.CodeOf(err), errs.CodeUnauthenticated)
	}
}

func TestCategoryManagement(t *testing.T) {
	svc, _ := testService()

	if _, err := svc.CreateCategory(context.Background(), reader, "Go"); errs.CodeOf(err) != errs.CodeUnauthorized {
		t.Errorf("reader create category code = %q, want %q", errs.CodeOf(err), errs.CodeUnauthorized)
	}

	c, err := svc.CreateCategory(context.Background(), staff, "Go Programming")
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if c.Slug != "go-programming" {
		t.Errorf("slug = %q, want %q", c.Slug, "go-programming")
	}

	if _, err := svc.CreateCategory(context.Background(), staff, "Go Programming"); errs.CodeOf(err) != errs.CodeConflict {
		t.Errorf("duplicate category code = %q, want %q", errs.CodeOf(err), errs.CodeConflict)
	}

	p, err := svc.CreatePost(context.Background(), staff, PostInput{
		Title: "Generics", Content: "a", Status: StatusPublished, CategorySlug: "go-programming",
	})
	if err != nil {
		t.Fatalf("CreatePost with category: %v", err)
	}
	if p.CategorySlug != "go-programming" {
		t.Errorf("post category = %q", p.CategorySlug)
	}

	_, err = svc.CreatePost(context.Background(), staff, PostInput{
		Title: "Lost", Content: "a", Status: StatusPublished, CategorySlug: "nope",
	})
	if errs.CodeOf(err) != errs.CodeValidationFailed {
		t.Errorf("unknown category code = %q, want %q", errs.CodeOf(err), errs.CodeValidationFailed)
	}
}

func TestValidatePostInput(t *testing.T) {
	svc, _ := testService()

	_, err := svc.CreatePost(context.Background(), staff, PostInput{Title: "   ", Content: "a"})
	if errs.CodeOf(err) != errs.CodeValidationFailed {
		t.Errorf("blank title code = %q, want %q", errs.CodeOf(err), errs.CodeValidationFailed)
	}

	_, err = svc.CreatePost(context.Background(), staff, PostInput{Title: "ok", Content: "a", Status: "archived"})
	if errs.CodeOf(err) != errs.CodeValidationFailed {
		t.Errorf("bad status code = %q, want %q", errs.CodeOf(err), errs.CodeValidationFailed)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":      "hello-world",
		"  Go  1.22 notes  ": "go-1-22-notes",
		"---":                "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
