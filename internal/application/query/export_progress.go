package query

import (
	"context"
	"fmt"
	"time"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT PROGRESS / STATISTICS QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ExportProgressQuery requests the snapshot of one identity.
type ExportProgressQuery struct {
	Identity string
}

// ExportProgressHandler builds progress snapshots.
type ExportProgressHandler struct {
	progressRepo progress.Repository
	catalog      *catalog.Catalog
	now          func() time.Time
}

// NewExportProgressHandler creates a new ExportProgressHandler.
func NewExportProgressHandler(progressRepo progress.Repository, cat *catalog.Catalog) *ExportProgressHandler {
	return &ExportProgressHandler{
		progressRepo: progressRepo,
		catalog:      cat,
		now:          time.Now,
	}
}

// Handle returns the snapshot. An identity with nothing stored exports an
// empty course map.
func (h *ExportProgressHandler) Handle(ctx context.Context, q ExportProgressQuery) (*progress.Snapshot, error) {
	if _, err := shared.NewIdentity(q.Identity); err != nil {
		return nil, err
	}
	records, err := h.progressRepo.GetAll(ctx, q.Identity)
	if err != nil {
		return nil, fmt.Errorf("export_progress: %w", err)
	}
	s := progress.NewSnapshot(q.Identity, records, h.catalog, h.now())
	return &s, nil
}

// GetStatisticsQuery requests the learning statistics of one identity.
type GetStatisticsQuery struct {
	Identity string
}

// GetStatisticsHandler computes per-identity statistics.
type GetStatisticsHandler struct {
	progressRepo progress.Repository
	catalog      *catalog.Catalog
}

// NewGetStatisticsHandler creates a new GetStatisticsHandler.
func NewGetStatisticsHandler(progressRepo progress.Repository, cat *catalog.Catalog) *GetStatisticsHandler {
	return &GetStatisticsHandler{progressRepo: progressRepo, catalog: cat}
}

// Handle executes the query.
func (h *GetStatisticsHandler) Handle(ctx context.Context, q GetStatisticsQuery) (progress.Statistics, error) {
	if _, err := shared.NewIdentity(q.Identity); err != nil {
		return progress.Statistics{}, err
	}
	records, err := h.progressRepo.GetAll(ctx, q.Identity)
	if err != nil {
		return progress.Statistics{}, fmt.Errorf("get_statistics: %w", err)
	}
	return progress.ComputeStatistics(records, h.catalog), nil
}
