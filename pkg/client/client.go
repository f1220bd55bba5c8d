// Package client provides the Chronicle Go SDK for talking to a Chronicle
// server over its REST API: account signup and login, token refresh, and
// post/comment/category operations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Code identifies a failure class returned by the server. The values are
// stable wire constants.
type Code string

const (
	CodeDuplicateIdentity  Code = "DuplicateIdentity"
	CodeInvalidCredentials Code = "InvalidCredentials"
	CodeAccountInactive    Code = "AccountInactive"
	CodeTokenExpired       Code = "TokenExpired"
	CodeTokenInvalid       Code = "TokenInvalid"
	CodeProviderAssertion  Code = "ProviderAssertionInvalid"
	CodeUnauthenticated    Code = "Unauthenticated"
	CodeUnauthorized       Code = "Unauthorized"
	CodeValidationFailed   Code = "ValidationFailed"
	CodeConflict           Code = "Conflict"
	CodeNotFound           Code = "NotFound"
	CodeRateLimited        Code = "RateLimited"
	CodeInternal           Code = "Internal"
)

// Account is a user profile as returned by the server. Unauthenticated
// callers see only the public subset of fields populated.
type Account struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"display_name"`
	IsActive       bool      `json:"is_active"`
	EmailConfirmed bool      `json:"email_confirmed"`
	IsStaff        bool      `json:"is_staff"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Post is a blog post. Category and AuthorName are denormalized by the
// server for list responses.
type Post struct {
	ID          uuid.UUID  `json:"id"`
	AuthorID    uuid.UUID  `json:"author_id"`
	AuthorName  string     `json:"author_name"`
	Category    string     `json:"category,omitempty"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Content     string     `json:"content"`
	Status      string     `json:"status"`
	Tags        []string   `json:"tags"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Post publication states.
const (
	StatusDraft     = "draft"
	StatusPublished = "publish"
)

// Comment is a reader comment on a post.
type Comment struct {
	ID         uuid.UUID `json:"id"`
	PostID     uuid.UUID `json:"post_id"`
	AuthorID   uuid.UUID `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Category groups posts.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// PostInput is the payload for CreatePost and UpdatePost.
type PostInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Status   string   `json:"status"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// APIError is the decoded form of a Chronicle error response. The server
// always answers failures with a {code, message} JSON body; APIError makes
// the code available for programmatic handling.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       Code   `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// TokenPair holds the bearer credentials returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// LoginResult is the payload returned by Login and SocialLogin.
type LoginResult struct {
	Account *Account `json:"account"`
	TokenPair
}

// PostList is the payload returned by ListPosts.
type PostList struct {
	Posts []*Post `json:"posts"`
	Count int     `json:"count"`
}

// PostFilter narrows a ListPosts call. Zero fields are omitted.
type PostFilter struct {
	Status   string
	Category string
	Author   string
	Search   string
	Limit    int
	Offset   int
}

// Client is the Chronicle SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// token state — guarded by mu
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	tokenExpiry  time.Time // zero = token was set manually (no auto-refresh)
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithBearerToken attaches a pre-obtained access token to every request.
// The token is treated as long-lived and will not be auto-refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.accessToken = token
		c.tokenExpiry = time.Time{} // zero = manual, never auto-refresh
		return nil
	}
}

// WithTokenPair seeds the client with an existing access/refresh pair,
// e.g. one persisted from a previous Login. The access token will be
// refreshed automatically when it approaches expiry.
func WithTokenPair(pair TokenPair) Option {
	return func(c *Client) error {
		c.setPair(pair)
		return nil
	}
}

// New creates a Chronicle SDK Client pointed at baseURL.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithTimeout(5*time.Second),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Register creates a new account. The account starts inactive until the
// emailed activation link is followed.
func (c *Client) Register(ctx context.Context, email, username, password string) (*Account, error) {
	req := map[string]string{"email": email, "username": username, "password": password}
	var out struct {
		Account *Account `json:"account"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/register", req, &out); err != nil {
		return nil, err
	}
	return out.Account, nil
}

// Login exchanges credentials for a token pair and stores the pair on the
// client, so subsequent calls are authenticated automatically.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	req := map[string]string{"email": email, "password": password}
	var out LoginResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/login", req, &out); err != nil {
		return nil, err
	}
	c.setPair(out.TokenPair)
	return &out, nil
}

// Refresh trades the stored refresh token for a fresh pair. Login (or
// WithTokenPair) must have been called first.
func (c *Client) Refresh(ctx context.Context) (*TokenPair, error) {
	c.mu.Lock()
	rt := c.refreshToken
	c.mu.Unlock()
	if rt == "" {
		return nil, fmt.Errorf("no refresh token: call Login first")
	}

	pair, err := c.refresh(ctx, rt)
	if err != nil {
		return nil, err
	}
	c.setPair(*pair)
	return pair, nil
}

// Logout revokes the stored refresh token and clears the client's
// credential state.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	rt := c.refreshToken
	c.accessToken = ""
	c.refreshToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
	if rt == "" {
		return nil
	}
	return c.call(ctx, http.MethodPost, "/api/v1/auth/logout", map[string]string{"refresh_token": rt}, nil)
}

// LogoutAll revokes every session and token for the authenticated account,
// including this client's.
func (c *Client) LogoutAll(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, "/api/v1/auth/logout-all", nil, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
	return nil
}

// Me fetches the authenticated account's own profile.
func (c *Client) Me(ctx context.Context) (*Account, error) {
	var out struct {
		Account *Account `json:"account"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/users/me", nil, &out); err != nil {
		return nil, err
	}
	return out.Account, nil
}

// GetUser fetches a profile by username. Unauthenticated callers see the
// public subset of fields.
func (c *Client) GetUser(ctx context.Context, username string) (*Account, error) {
	var out struct {
		Account *Account `json:"account"`
	}
	path := "/api/v1/users/" + url.PathEscape(username)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Account, nil
}

// ListUsers lists every account. Requires a staff token.
func (c *Client) ListUsers(ctx context.Context) ([]*Account, error) {
	var out struct {
		Accounts []*Account `json:"accounts"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// DeactivateUser disables an account and revokes all its credentials.
// Requires a staff token.
func (c *Client) DeactivateUser(ctx context.Context, username string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/users/"+url.PathEscape(username)+"/deactivate", nil, nil)
}

// ReactivateUser re-enables a deactivated account. Requires a staff token.
func (c *Client) ReactivateUser(ctx context.Context, username string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/users/"+url.PathEscape(username)+"/reactivate", nil, nil)
}

// ListPosts fetches posts matching the filter.
func (c *Client) ListPosts(ctx context.Context, f PostFilter) (*PostList, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Author != "" {
		q.Set("author", f.Author)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	path := "/api/v1/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out PostList
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPost fetches a single post by slug.
func (c *Client) GetPost(ctx context.Context, slug string) (*Post, error) {
	var out struct {
		Post *Post `json:"post"`
	}
	path := "/api/v1/posts/" + url.PathEscape(slug)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Post, nil
}

// CreatePost creates a post. Requires a staff token.
func (c *Client) CreatePost(ctx context.Context, in PostInput) (*Post, error) {
	var out struct {
		Post *Post `json:"post"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/posts", in, &out); err != nil {
		return nil, err
	}
	return out.Post, nil
}

// UpdatePost updates the post identified by slug. Requires a staff token.
func (c *Client) UpdatePost(ctx context.Context, slug string, in PostInput) (*Post, error) {
	var out struct {
		Post *Post `json:"post"`
	}
	path := "/api/v1/posts/" + url.PathEscape(slug)
	if err := c.call(ctx, http.MethodPatch, path, in, &out); err != nil {
		return nil, err
	}
	return out.Post, nil
}

// DeletePost removes the post identified by slug. Requires a staff token.
func (c *Client) DeletePost(ctx context.Context, slug string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/posts/"+url.PathEscape(slug), nil, nil)
}

// ListComments fetches the comments on a post.
func (c *Client) ListComments(ctx context.Context, postSlug string) ([]*Comment, error) {
	var out struct {
		Comments []*Comment `json:"comments"`
	}
	path := "/api/v1/posts/" + url.PathEscape(postSlug) + "/comments"
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

// AddComment posts a comment on the given post. Requires authentication.
func (c *Client) AddComment(ctx context.Context, postSlug, body string) (*Comment, error) {
	var out struct {
		Comment *Comment `json:"comment"`
	}
	path := "/api/v1/posts/" + url.PathEscape(postSlug) + "/comments"
	if err := c.call(ctx, http.MethodPost, path, map[string]string{"body": body}, &out); err != nil {
		return nil, err
	}
	return out.Comment, nil
}

// ListCategories fetches all categories.
func (c *Client) ListCategories(ctx context.Context) ([]*Category, error) {
	var out struct {
		Categories []*Category `json:"categories"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// CreateCategory creates a category. Requires a staff token.
func (c *Client) CreateCategory(ctx context.Context, name string) (*Category, error) {
	var out struct {
		Category *Category `json:"category"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/categories", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return out.Category, nil
}

// setPair stores a fresh token pair. Refresh is scheduled 60 s before the
// access token's actual expiry to avoid clock-skew failures.
func (c *Client) setPair(pair TokenPair) {
	const refreshBuffer = 60 * time.Second

	c.mu.Lock()
	c.accessToken = pair.AccessToken
	c.refreshToken = pair.RefreshToken
	c.tokenExpiry = time.Now().Add(time.Duration(pair.ExpiresIn)*time.Second - refreshBuffer)
	c.mu.Unlock()
}

// refresh performs the raw refresh call without touching stored state. It
// uses the httpClient directly so the possibly-expired access token is not
// attached to the refresh request.
func (c *Client) refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	b, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/refresh", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	var pair TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	return &pair, nil
}

// bearer returns a valid access token, refreshing through the stored
// refresh token when the cached one approaches expiry. Thread-safe.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// tokenExpiry.IsZero() means the token was set manually via
	// WithBearerToken and should never be auto-refreshed.
	if c.accessToken != "" && (c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry)) {
		return c.accessToken, nil
	}
	if c.refreshToken == "" {
		return c.accessToken, nil
	}

	pair, err := c.refresh(ctx, c.refreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	const refreshBuffer = 60 * time.Second
	c.accessToken = pair.AccessToken
	c.refreshToken = pair.RefreshToken
	c.tokenExpiry = time.Now().Add(time.Duration(pair.ExpiresIn)*time.Second - refreshBuffer)
	return c.accessToken, nil
}

// call builds, authenticates, and executes a JSON request against the
// server, decoding the response into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var bodyReader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, body)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// decodeAPIError turns an error response body into an *APIError. Bodies
// that are not the server's {code, message} shape fall back to CodeInternal
// with the raw body as the message.
func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = CodeInternal
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
