package command

import (
	"context"
	"fmt"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT PROGRESS COMMAND
// Replaces a learner's progress with a previously exported snapshot. The
// snapshot must belong to the caller and is applied all-or-nothing.
// ══════════════════════════════════════════════════════════════════════════════

// ImportProgressCommand carries the raw snapshot document.
type ImportProgressCommand struct {
	Identity string
	Document []byte

	CorrelationID string
}

// ImportProgressResult summarizes the applied snapshot.
type ImportProgressResult struct {
	Courses    int                 `json:"courses"`
	Statistics progress.Statistics `json:"statistics"`
}

// ImportProgressHandler handles ImportProgressCommand.
type ImportProgressHandler struct {
	progressRepo   progress.Repository
	catalog        *catalog.Catalog
	features       FeatureGate
	eventPublisher shared.EventPublisher
}

// NewImportProgressHandler creates a new ImportProgressHandler.
func NewImportProgressHandler(
	progressRepo progress.Repository,
	cat *catalog.Catalog,
	features FeatureGate,
	eventPublisher shared.EventPublisher,
) *ImportProgressHandler {
	return &ImportProgressHandler{
		progressRepo:   progressRepo,
		catalog:        cat,
		features:       gateOrDefault(features),
		eventPublisher: publisherOrNop(eventPublisher),
	}
}

// Handle executes the command. A snapshot for another identity yields
// ErrIdentityMismatch; a malformed one ErrInvalidSnapshot. Nothing is
// written in either case.
func (h *ImportProgressHandler) Handle(ctx context.Context, cmd ImportProgressCommand) (*ImportProgressResult, error) {
	if _, err := shared.NewIdentity(cmd.Identity); err != nil {
		return nil, err
	}
	if !h.features.IsEnabled(config.FeatureProgressImport, cmd.Identity) {
		return nil, shared.ErrFeatureDisabled.Withf("%s", config.FeatureProgressImport)
	}

	snap, err := progress.ParseSnapshot(cmd.Document)
	if err != nil {
		return nil, err
	}
	records, err := snap.Restore(cmd.Identity, h.catalog)
	if err != nil {
		return nil, err
	}

	if err := h.progressRepo.ReplaceAll(ctx, cmd.Identity, records); err != nil {
		return nil, fmt.Errorf("import_progress: replace: %w", err)
	}

	ev := shared.NewProgressImportedEvent(cmd.Identity, len(records))
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	_ = h.eventPublisher.Publish(ev)

	return &ImportProgressResult{
		Courses:    len(records),
		Statistics: progress.ComputeStatistics(records, h.catalog),
	}, nil
}
