package query

import (
	"context"
	"fmt"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SUMMARY QUERY
// Platform-wide totals over every identity with stored progress.
// ══════════════════════════════════════════════════════════════════════════════

// GetSummaryQuery has no parameters.
type GetSummaryQuery struct{}

// GetSummaryHandler handles GetSummaryQuery.
type GetSummaryHandler struct {
	progressRepo progress.Repository
	catalog      *catalog.Catalog
}

// NewGetSummaryHandler creates a new GetSummaryHandler.
func NewGetSummaryHandler(progressRepo progress.Repository, cat *catalog.Catalog) *GetSummaryHandler {
	return &GetSummaryHandler{progressRepo: progressRepo, catalog: cat}
}

// Handle walks every identity and folds its records into the summary.
func (h *GetSummaryHandler) Handle(ctx context.Context, _ GetSummaryQuery) (progress.Summary, error) {
	ids, err := h.progressRepo.Identities(ctx)
	if err != nil {
		return progress.Summary{}, fmt.Errorf("get_summary: identities: %w", err)
	}

	b := progress.NewSummaryBuilder(h.catalog.CourseIDs())
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return progress.Summary{}, err
		}
		records, err := h.progressRepo.GetAll(ctx, id)
		if err != nil {
			return progress.Summary{}, fmt.Errorf("get_summary: load %s: %w", id, err)
		}
		b.Add(records)
	}
	return b.Summary(), nil
}
