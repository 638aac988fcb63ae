package articles

import (
	"context"
	"strings"
	"time"

	"arkeep/internal/api"
	"arkeep/internal/mirror"
	"arkeep/internal/model"
	"arkeep/internal/session"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

const scrapeTimeout = 10 * time.Second

// Scraper downloads a page for guest-mode metadata enrichment.
// This allows us to mock the "Download" step in tests.
type Scraper interface {
	Scrape(url string, timeout time.Duration) (*readability.Article, error)
}

// DefaultScraper is the real implementation that uses the internet
type DefaultScraper struct{}

func (DefaultScraper) Scrape(url string, timeout time.Duration) (*readability.Article, error) {
	art, err := readability.FromURL(url, timeout)
	return &art, err
}

// Service routes every article operation to the remote service or to
// the guest mirror. Signed in: remote only, failures propagate. Signed
// out: remote first (the pipeline may still bootstrap a session from
// the refresh cookie), and only an unauthorized rejection falls back
// to the mirror. Every other failure is genuine and surfaces as-is.
type Service struct {
	api      *api.Client
	mirror   *mirror.Store
	sessions *session.Store
	scraper  Scraper
	logger   *zap.Logger
}

func NewService(apiClient *api.Client, mirrorStore *mirror.Store, sessions *session.Store, logger *zap.Logger) *Service {
	return &Service{
		api:      apiClient,
		mirror:   mirrorStore,
		sessions: sessions,
		scraper:  DefaultScraper{},
		logger:   logger,
	}
}

func withFallback[T any](s *Service, remote func() (T, error), local func() (T, error)) (T, error) {
	if s.sessions.Get() != nil {
		return remote()
	}

	result, err := remote()
	if err != nil && api.IsUnauthorized(err) {
		s.logger.Debug("using guest store", zap.Error(err))
		return local()
	}
	return result, err
}

// List returns one page of articles from whichever store is active.
func (s *Service) List(ctx context.Context, params model.ListParams) (*model.Page, error) {
	return withFallback(s,
		func() (*model.Page, error) { return s.api.ListArticles(ctx, params) },
		func() (*model.Page, error) { return s.mirror.List(ctx, params) },
	)
}

// Facets returns the active store's distinct filter values.
func (s *Service) Facets(ctx context.Context) (*model.Facets, error) {
	return withFallback(s,
		func() (*model.Facets, error) { return s.api.ArticleFacets(ctx) },
		func() (*model.Facets, error) { return s.mirror.Facets(ctx) },
	)
}

// Create saves an article. The guest path enriches metadata best
// effort; a failed lookup never aborts the save.
func (s *Service) Create(ctx context.Context, input model.CreateInput) (*model.Article, error) {
	return withFallback(s,
		func() (*model.Article, error) { return s.api.CreateArticle(ctx, input) },
		func() (*model.Article, error) {
			meta := s.lookupMetadata(ctx, strings.TrimSpace(input.URL))
			return s.mirror.Create(ctx, input, meta)
		},
	)
}

// Update patches an article.
func (s *Service) Update(ctx context.Context, id int64, input model.UpdateInput) (*model.Article, error) {
	return withFallback(s,
		func() (*model.Article, error) { return s.api.UpdateArticle(ctx, id, input) },
		func() (*model.Article, error) { return s.mirror.Update(ctx, id, input) },
	)
}

// Delete removes an article.
func (s *Service) Delete(ctx context.Context, id int64) error {
	_, err := withFallback(s,
		func() (struct{}, error) { return struct{}{}, s.api.DeleteArticle(ctx, id) },
		func() (struct{}, error) { return struct{}{}, s.mirror.Remove(ctx, id) },
	)
	return err
}

// GuestCount reports how many records wait in the guest mirror.
func (s *Service) GuestCount(ctx context.Context) (int, error) {
	return s.mirror.Count(ctx)
}

// lookupMetadata tries the server's preview endpoint first (it works
// without a credential), then a local readability scrape. Returns nil
// when neither yields anything; defaults apply in that case.
func (s *Service) lookupMetadata(ctx context.Context, rawURL string) *mirror.Metadata {
	if preview, err := s.api.PreviewMetadata(ctx, rawURL); err == nil {
		return &mirror.Metadata{
			Title:        preview.Title,
			Description:  preview.Description,
			ThumbnailURL: preview.ImageURL,
			Domain:       preview.Domain,
		}
	}

	page, err := s.scraper.Scrape(rawURL, scrapeTimeout)
	if err != nil {
		s.logger.Debug("metadata lookup failed", zap.String("url", rawURL), zap.Error(err))
		return nil
	}
	return &mirror.Metadata{Title: page.Title, Description: page.Excerpt}
}
