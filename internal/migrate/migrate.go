package migrate

import (
	"context"
	"fmt"

	"arkeep/internal/api"
	"arkeep/internal/mirror"
	"arkeep/internal/model"
	"arkeep/internal/session"

	"go.uber.org/zap"
)

// Coordinator pushes the guest mirror's records to the server in one
// batch after a login. The mirror is only emptied once the server has
// confirmed the whole batch; a failed or partial call leaves every
// local record in place so the user can retry.
type Coordinator struct {
	api      *api.Client
	mirror   *mirror.Store
	sessions *session.Store
	logger   *zap.Logger
}

func NewCoordinator(apiClient *api.Client, mirrorStore *mirror.Store, sessions *session.Store, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		api:      apiClient,
		mirror:   mirrorStore,
		sessions: sessions,
		logger:   logger,
	}
}

// Run migrates the guest collection. Returns (nil, nil) when there is
// no session or nothing to migrate.
func (c *Coordinator) Run(ctx context.Context) (*model.MigrationReport, error) {
	if c.sessions.Get() == nil {
		return nil, nil
	}

	// Snapshot-and-hold: read without clearing, so a failed upload
	// cannot lose anything.
	records, err := c.mirror.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	items := make([]model.MigrationItem, 0, len(records))
	for _, rec := range records {
		items = append(items, model.MigrationItem{
			URL:          rec.URL,
			Title:        rec.Title,
			Description:  rec.Description,
			ThumbnailURL: rec.ThumbnailURL,
			Domain:       rec.Domain,
			Category:     rec.Category,
			IsRead:       rec.IsRead,
		})
	}

	report, err := c.api.MigrateArticles(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("migrate guest articles: %w", err)
	}

	if _, err := c.mirror.Drain(ctx); err != nil {
		return report, fmt.Errorf("clear guest articles: %w", err)
	}

	c.logger.Info("guest articles migrated",
		zap.Int("total", report.Total),
		zap.Int("created", report.Created),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed", report.Failed))
	return report, nil
}
