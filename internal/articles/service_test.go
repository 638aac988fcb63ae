package articles

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"arkeep/internal/api"
	"arkeep/internal/mirror"
	"arkeep/internal/model"
	"arkeep/internal/session"

	"github.com/go-shiori/go-readability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockScraper stands in for the readability download in tests.
type MockScraper struct {
	MockTitle   string
	MockExcerpt string
	ShouldFail  bool
	Calls       int
}

func (m *MockScraper) Scrape(url string, timeout time.Duration) (*readability.Article, error) {
	m.Calls++
	if m.ShouldFail {
		return nil, fmt.Errorf("simulated 404 error")
	}
	return &readability.Article{Title: m.MockTitle, Excerpt: m.MockExcerpt}, nil
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// unauthorizedHandler rejects everything the way the real backend
// rejects a session-less caller.
func unauthorizedHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"code":"UNAUTHORIZED","message":"Invalid refresh token"}`)
	})
	mux.HandleFunc("/metadata/preview", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message":"no preview"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"code":"UNAUTHORIZED","message":"Authentication required"}`)
	})
	return mux
}

func newTestService(t *testing.T, handler http.Handler) (*Service, *session.Store, *mirror.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend, err := mirror.NewInMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	sessions := session.NewStore()
	client := api.NewClient(srv.URL, sessions, nil, zap.NewNop())
	store := mirror.NewStore(backend, zap.NewNop())
	svc := NewService(client, store, sessions, zap.NewNop())
	return svc, sessions, store
}

func TestGuestOperationsFallBackToMirror(t *testing.T) {
	svc, _, _ := newTestService(t, unauthorizedHandler())
	scraper := &MockScraper{MockTitle: "Scraped Title", MockExcerpt: "A short summary"}
	svc.scraper = scraper
	ctx := context.Background()

	created, err := svc.Create(ctx, model.CreateInput{URL: "https://example.com/post"})
	require.NoError(t, err)
	assert.Equal(t, "Scraped Title", created.Title)
	assert.Equal(t, "A short summary", created.Description)
	assert.Equal(t, 1, scraper.Calls)

	page, err := svc.List(ctx, model.ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.ID, page.Items[0].ID)

	facets, err := svc.Facets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, facets.Domains)

	updated, err := svc.Update(ctx, created.ID, model.UpdateInput{IsRead: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsRead)

	require.NoError(t, svc.Delete(ctx, created.ID))
	count, err := svc.GuestCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// TestValidationErrorDoesNotFallBack pins the fallback rule: only an
// unauthorized rejection routes to the mirror, a validation failure
// surfaces even with no credential present.
func TestValidationErrorDoesNotFallBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"code":"UNAUTHORIZED","message":"Invalid refresh token"}`)
	})
	mux.HandleFunc("/articles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"code":"VALIDATION","message":"URL must start with http:// or https://"}`)
	})

	svc, _, store := newTestService(t, mux)
	svc.scraper = &MockScraper{ShouldFail: true}
	ctx := context.Background()

	_, err := svc.Create(ctx, model.CreateInput{URL: "ftp://example.com"})
	require.Error(t, err)
	assert.True(t, api.IsValidation(err))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "nothing leaked into the guest store")
}

func TestAuthenticatedUsesRemoteOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/articles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"items":[{"id":7,"publicId":"p","url":"https://remote.example.com","title":"remote","description":"d","thumbnailUrl":null,"domain":"remote.example.com","category":null,"isRead":false,"createdAt":"2026-08-01T10:00:00Z"}],"page":1,"size":8,"totalItems":1,"totalPages":1,"hasNext":false,"hasPrevious":false}`)
	})

	svc, sessions, store := newTestService(t, mux)
	sessions.Save(session.Session{Token: "good", Email: "user@example.com"})
	ctx := context.Background()

	page, err := svc.List(ctx, model.ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "remote", page.Items[0].Title)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "the mirror is not consulted while signed in")
}

// TestAuthenticatedFailuresPropagate covers the documented decision on
// the present-but-invalid credential: no fallback, the error surfaces
// after the pipeline's single retry.
func TestAuthenticatedFailuresPropagate(t *testing.T) {
	svc, sessions, _ := newTestService(t, unauthorizedHandler())
	sessions.Save(session.Session{Token: "revoked", Email: "user@example.com"})

	_, err := svc.List(context.Background(), model.ListParams{})
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
}

func TestGuestCreatePrefersPreviewMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"code":"UNAUTHORIZED","message":"Invalid refresh token"}`)
	})
	mux.HandleFunc("/metadata/preview", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"url":"https://example.com/post","title":"Previewed","description":"From preview","imageUrl":"https://cdn.example.com/i.png","domain":"example.com"}`)
	})
	mux.HandleFunc("/articles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"code":"UNAUTHORIZED","message":"Authentication required"}`)
	})

	svc, _, _ := newTestService(t, mux)
	scraper := &MockScraper{MockTitle: "should not be used"}
	svc.scraper = scraper

	created, err := svc.Create(context.Background(), model.CreateInput{URL: "https://example.com/post"})
	require.NoError(t, err)
	assert.Equal(t, "Previewed", created.Title)
	assert.Equal(t, "From preview", created.Description)
	require.NotNil(t, created.ThumbnailURL)
	assert.Equal(t, "https://cdn.example.com/i.png", *created.ThumbnailURL)
	assert.Equal(t, 0, scraper.Calls)
}

func TestGuestCreateSurvivesFailedLookup(t *testing.T) {
	svc, _, _ := newTestService(t, unauthorizedHandler())
	svc.scraper = &MockScraper{ShouldFail: true}

	created, err := svc.Create(context.Background(), model.CreateInput{URL: "https://example.com/post"})
	require.NoError(t, err, "a failed metadata lookup never aborts the save")
	assert.Equal(t, "https://example.com/post", created.Title)
	assert.Equal(t, model.PlaceholderDescription, created.Description)
}

func boolPtr(b bool) *bool { return &b }
