package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"arkeep/internal/model"

	"go.uber.org/zap"
)

// Store is the guest-mode article collection. It exposes the same
// query and mutation surface as the remote service so the fallback
// router can swap one for the other. Every mutation re-reads the
// latest persisted snapshot under the lock and writes the whole
// collection back before returning.
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *zap.Logger
}

// Metadata is optional enrichment applied to a freshly created record,
// typically from a preview lookup or a local page scrape.
type Metadata struct {
	Title        string
	Description  string
	ThumbnailURL *string
	Domain       string
}

func NewStore(backend Backend, logger *zap.Logger) *Store {
	return &Store{backend: backend, logger: logger}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// List filters, sorts, and windows the guest collection.
func (s *Store) List(ctx context.Context, params model.ListParams) (*model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	filtered := filterArticles(articles, params)
	sortArticles(filtered, params.Sort)
	return paginate(filtered, params.Page, params.Size), nil
}

// Facets derives the distinct categories and domains over the full
// unfiltered collection. Blank categories are excluded; both lists
// come back sorted and duplicate-free.
func (s *Store) Facets(ctx context.Context) (*model.Facets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	catSet := make(map[string]struct{})
	domSet := make(map[string]struct{})
	for _, item := range articles {
		if item.Category != nil && strings.TrimSpace(*item.Category) != "" {
			catSet[*item.Category] = struct{}{}
		}
		domSet[item.Domain] = struct{}{}
	}

	categories := make([]string, 0, len(catSet))
	for c := range catSet {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	domains := make([]string, 0, len(domSet))
	for d := range domSet {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	return &model.Facets{Categories: categories, Domains: domains}, nil
}

// Create saves a new record, newest first. Fails with ErrDuplicate
// when the URL already exists in the collection.
func (s *Store) Create(ctx context.Context, input model.CreateInput, meta *Metadata) (*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	rawURL := strings.TrimSpace(input.URL)
	for _, item := range articles {
		if item.URL == rawURL {
			return nil, ErrDuplicate
		}
	}

	article := model.NewLocalArticle(rawURL)
	if meta != nil {
		if t := strings.TrimSpace(meta.Title); t != "" {
			article.Title = t
		}
		if d := strings.TrimSpace(meta.Description); d != "" {
			article.Description = d
		}
		if meta.Domain != "" {
			article.Domain = meta.Domain
		}
		article.ThumbnailURL = meta.ThumbnailURL
	}
	// A user-supplied description beats the looked-up one.
	if input.Description != nil {
		if d := strings.TrimSpace(*input.Description); d != "" {
			article.Description = d
		}
	}
	article.Category = model.NormalizeCategory(input.Category)

	if err := s.persist(ctx, append([]model.Article{article}, articles...)); err != nil {
		return nil, err
	}
	return &article, nil
}

// Update patches a record in place. Nil fields stay unchanged; a
// description blanked out falls back to the placeholder.
func (s *Store) Update(ctx context.Context, id int64, input model.UpdateInput) (*model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, item := range articles {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound
	}

	article := articles[idx]
	if input.IsRead != nil {
		article.IsRead = *input.IsRead
	}
	if input.Category != nil {
		article.Category = model.NormalizeCategory(input.Category)
	}
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		if desc == "" {
			desc = model.PlaceholderDescription
		}
		article.Description = desc
	}
	articles[idx] = article

	if err := s.persist(ctx, articles); err != nil {
		return nil, err
	}
	return &article, nil
}

// Remove deletes a record by id.
func (s *Store) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.load(ctx)
	if err != nil {
		return err
	}

	remaining := articles[:0:0]
	for _, item := range articles {
		if item.ID != id {
			remaining = append(remaining, item)
		}
	}
	if len(remaining) == len(articles) {
		return ErrNotFound
	}
	return s.persist(ctx, remaining)
}

// Count returns the number of records currently held.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(articles), nil
}

// All returns a read-only snapshot of the full collection.
func (s *Store) All(ctx context.Context) ([]model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Drain returns all records and atomically empties the collection.
// Only the migration coordinator calls this, and only after the remote
// import succeeded.
func (s *Store) Drain(ctx context.Context) ([]model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, []model.Article{}); err != nil {
		return nil, err
	}
	return articles, nil
}

// load reads the persisted collection. An unreadable blob is treated
// as empty rather than wedging every operation.
func (s *Store) load(ctx context.Context) ([]model.Article, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load guest articles: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var articles []model.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		s.logger.Warn("discarding unreadable guest collection", zap.Error(err))
		return nil, nil
	}
	return articles, nil
}

func (s *Store) persist(ctx context.Context, articles []model.Article) error {
	data, err := json.Marshal(articles)
	if err != nil {
		return fmt.Errorf("encode guest articles: %w", err)
	}
	if err := s.backend.Store(ctx, data); err != nil {
		return fmt.Errorf("persist guest articles: %w", err)
	}
	return nil
}

func filterArticles(items []model.Article, params model.ListParams) []model.Article {
	q := strings.ToLower(strings.TrimSpace(params.Q))
	category := strings.TrimSpace(params.Category)
	domain := strings.ToLower(strings.TrimSpace(params.Domain))

	var out []model.Article
	for _, item := range items {
		if params.IsRead != nil && item.IsRead != *params.IsRead {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(item.Title), q) {
			continue
		}
		if category != "" && (item.Category == nil || *item.Category != category) {
			continue
		}
		if domain != "" && strings.ToLower(item.Domain) != domain {
			continue
		}
		out = append(out, item)
	}
	return out
}

func sortArticles(items []model.Article, order model.Sort) {
	sort.SliceStable(items, func(i, j int) bool {
		if order == model.SortOldest {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func paginate(items []model.Article, page, size int) *model.Page {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = model.DefaultPageSize
	}

	totalItems := len(items)
	totalPages := (totalItems + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * size
	end := start + size
	if start > totalItems {
		start = totalItems
	}
	if end > totalItems {
		end = totalItems
	}

	paged := make([]model.Article, end-start)
	copy(paged, items[start:end])

	return &model.Page{
		Items:       paged,
		Page:        page,
		Size:        size,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}
