package model

import (
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sort is the ordering of an article listing.
type Sort string

const (
	SortLatest Sort = "latest"
	SortOldest Sort = "oldest"
)

const (
	// DefaultPageSize matches the server's listing default.
	DefaultPageSize = 8

	// PlaceholderDescription fills in when neither the user nor a
	// metadata lookup provided one.
	PlaceholderDescription = "Saved for later"
)

// Article is a saved link, as stored locally and as returned by the server.
type Article struct {
	ID           int64     `json:"id"`
	PublicID     string    `json:"publicId"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	Domain       string    `json:"domain"`
	Category     *string   `json:"category"`
	IsRead       bool      `json:"isRead"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewLocalArticle creates a guest-store record with default metadata.
// The numeric id is a surrogate unique within one guest store; the
// server assigns its own ids after migration.
func NewLocalArticle(rawURL string) Article {
	now := time.Now()
	return Article{
		ID:          now.UnixMilli()*1000 + rand.Int63n(1000),
		PublicID:    uuid.New().String(),
		URL:         rawURL,
		Title:       rawURL,
		Description: PlaceholderDescription,
		Domain:      ExtractDomain(rawURL),
		IsRead:      false,
		CreatedAt:   now,
	}
}

// Page is a windowed view over a store's records.
type Page struct {
	Items       []Article `json:"items"`
	Page        int       `json:"page"`
	Size        int       `json:"size"`
	TotalItems  int       `json:"totalItems"`
	TotalPages  int       `json:"totalPages"`
	HasNext     bool      `json:"hasNext"`
	HasPrevious bool      `json:"hasPrevious"`
}

// Facets are the distinct filter values present in a store.
type Facets struct {
	Categories []string `json:"categories"`
	Domains    []string `json:"domains"`
}

// ListParams narrow and window an article listing. Nil/zero fields are ignored.
type ListParams struct {
	IsRead   *bool
	Sort     Sort
	Q        string
	Category string
	Domain   string
	Page     int
	Size     int
}

// CreateInput is the payload for saving a new article.
type CreateInput struct {
	URL         string  `json:"url"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateInput patches an existing article. Nil fields are left
// unchanged; a non-nil empty Category clears it.
type UpdateInput struct {
	IsRead      *bool   `json:"isRead,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
}

// MigrationItem is one guest record submitted to the bulk import.
type MigrationItem struct {
	URL          string  `json:"url"`
	Title        string  `json:"title,omitempty"`
	Description  string  `json:"description,omitempty"`
	ThumbnailURL *string `json:"thumbnailUrl,omitempty"`
	Domain       string  `json:"domain,omitempty"`
	Category     *string `json:"category,omitempty"`
	IsRead       bool    `json:"isRead"`
}

// MigrationReport is the per-item accounting the bulk import returns.
type MigrationReport struct {
	Total      int `json:"total"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// ExtractDomain derives the filterable domain from a URL: the host
// component, lower-cased, or "unknown" when the URL has no usable host.
func ExtractDomain(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "unknown"
	}
	host := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	if host == "" {
		return "unknown"
	}
	return host
}

// NormalizeCategory trims the value and maps blank to none.
func NormalizeCategory(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
