package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"arkeep/internal/model"
)

// AuthResponse is the credential the auth endpoints mint.
type AuthResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// Profile is the identity the server holds for the signed-in user.
type Profile struct {
	UserID      string  `json:"userId"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// MetadataPreview is the best-effort page metadata for a URL.
type MetadataPreview struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ImageURL    *string `json:"imageUrl"`
	Domain      string  `json:"domain"`
}

// LoginWithGoogle exchanges a Google id token for a session credential.
// The response cookie carries the long-lived refresh token.
func (c *Client) LoginWithGoogle(ctx context.Context, idToken string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"idToken": idToken}
	if err := c.Call(ctx, http.MethodPost, "/auth/google", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the session cookie server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.Call(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Me fetches the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.Call(ctx, http.MethodGet, "/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListArticles fetches one page of the server-side collection.
func (c *Client) ListArticles(ctx context.Context, params model.ListParams) (*model.Page, error) {
	var out model.Page
	if err := c.Call(ctx, http.MethodGet, "/articles"+listQuery(params), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ArticleFacets fetches the distinct filter values server-side.
func (c *Client) ArticleFacets(ctx context.Context) (*model.Facets, error) {
	var out model.Facets
	if err := c.Call(ctx, http.MethodGet, "/articles/facets", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateArticle saves a new article server-side.
func (c *Client) CreateArticle(ctx context.Context, input model.CreateInput) (*model.Article, error) {
	var out model.Article
	if err := c.Call(ctx, http.MethodPost, "/articles", input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateArticle patches an article server-side.
func (c *Client) UpdateArticle(ctx context.Context, id int64, input model.UpdateInput) (*model.Article, error) {
	var out model.Article
	path := fmt.Sprintf("/articles/%d", id)
	if err := c.Call(ctx, http.MethodPatch, path, input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteArticle removes an article server-side.
func (c *Client) DeleteArticle(ctx context.Context, id int64) error {
	return c.Call(ctx, http.MethodDelete, fmt.Sprintf("/articles/%d", id), nil, nil)
}

// MigrateArticles bulk-imports guest records and reports per-item
// outcomes.
func (c *Client) MigrateArticles(ctx context.Context, items []model.MigrationItem) (*model.MigrationReport, error) {
	var out model.MigrationReport
	body := map[string]any{"items": items}
	if err := c.Call(ctx, http.MethodPost, "/articles/migrate", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PreviewMetadata asks the server to scrape title/thumbnail for a URL.
// Works unauthenticated; callers treat failure as "no metadata".
func (c *Client) PreviewMetadata(ctx context.Context, rawURL string) (*MetadataPreview, error) {
	var out MetadataPreview
	body := map[string]string{"url": rawURL}
	if err := c.Call(ctx, http.MethodPost, "/metadata/preview", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func listQuery(params model.ListParams) string {
	q := url.Values{}
	if params.IsRead != nil {
		q.Set("isRead", strconv.FormatBool(*params.IsRead))
	}
	if params.Sort != "" {
		q.Set("sort", string(params.Sort))
	}
	if v := strings.TrimSpace(params.Q); v != "" {
		q.Set("q", v)
	}
	if v := strings.TrimSpace(params.Category); v != "" {
		q.Set("category", v)
	}
	if v := strings.TrimSpace(params.Domain); v != "" {
		q.Set("domain", v)
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Size > 0 {
		q.Set("size", strconv.Itoa(params.Size))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
