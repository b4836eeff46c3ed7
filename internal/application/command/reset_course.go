package command

import (
	"context"
	"fmt"
	"time"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESET COURSE COMMAND
// Clears a learner's lessons and scores for one course. Destructive, so it
// must be confirmed explicitly. Issued credentials are not affected.
// ══════════════════════════════════════════════════════════════════════════════

// ResetCourseCommand identifies the course to clear.
type ResetCourseCommand struct {
	Identity string
	CourseID string
	Confirm  bool

	CorrelationID string
}

// Validate validates the command.
func (c ResetCourseCommand) Validate() error {
	if _, err := shared.NewIdentity(c.Identity); err != nil {
		return err
	}
	if !c.Confirm {
		return shared.ErrConfirmationRequired
	}
	return nil
}

// ResetCourseHandler handles ResetCourseCommand.
type ResetCourseHandler struct {
	progressRepo   progress.Repository
	catalog        *catalog.Catalog
	eventPublisher shared.EventPublisher
	now            func() time.Time
}

// NewResetCourseHandler creates a new ResetCourseHandler.
func NewResetCourseHandler(progressRepo progress.Repository, cat *catalog.Catalog, eventPublisher shared.EventPublisher) *ResetCourseHandler {
	return &ResetCourseHandler{
		progressRepo:   progressRepo,
		catalog:        cat,
		eventPublisher: publisherOrNop(eventPublisher),
		now:            utcNow,
	}
}

// Handle executes the command and returns the cleared record.
func (h *ResetCourseHandler) Handle(ctx context.Context, cmd ResetCourseCommand) (*progress.CourseProgress, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.catalog.Course(cmd.CourseID); err != nil {
		return nil, err
	}

	p, err := h.progressRepo.Get(ctx, cmd.Identity, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("reset_course: load progress: %w", err)
	}
	p.Reset(h.now())
	if err := h.progressRepo.Save(ctx, cmd.Identity, p); err != nil {
		return nil, fmt.Errorf("reset_course: save progress: %w", err)
	}

	ev := shared.NewProgressResetEvent(cmd.Identity, cmd.CourseID)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	_ = h.eventPublisher.Publish(ev)

	return p, nil
}
