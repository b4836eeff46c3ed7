package command

import (
	"context"
	"fmt"
	"time"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/domain/gating"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK LESSON COMPLETE COMMAND
// Records a finished lesson. Idempotent: a repeated mark only refreshes the
// last access time. Course percent is recomputed on every call.
// ══════════════════════════════════════════════════════════════════════════════

// MarkLessonCompleteCommand identifies the lesson.
type MarkLessonCompleteCommand struct {
	Identity string
	CourseID string
	PartID   int
	LessonID int

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c MarkLessonCompleteCommand) Validate() error {
	if _, err := shared.NewIdentity(c.Identity); err != nil {
		return err
	}
	if c.CourseID == "" {
		return shared.NewDomainError("progress", "MarkLessonComplete", shared.ErrInvalidInput, "course_id is required")
	}
	if c.PartID < 1 || c.LessonID < 1 {
		return shared.NewDomainError("progress", "MarkLessonComplete", shared.ErrInvalidInput, "part_id and lesson_id must be positive")
	}
	return nil
}

// MarkLessonCompleteResult describes the stored state after the write.
type MarkLessonCompleteResult struct {
	Progress *progress.CourseProgress

	// NewlyCompleted is false when the lesson was already complete.
	NewlyCompleted bool

	// CourseCompleted is true when this write took the course to 100%.
	CourseCompleted bool

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// MarkLessonCompleteHandler handles MarkLessonCompleteCommand.
type MarkLessonCompleteHandler struct {
	progressRepo   progress.Repository
	engine         *gating.Engine
	features       FeatureGate
	eventPublisher shared.EventPublisher
	now            func() time.Time
}

// NewMarkLessonCompleteHandler creates a new MarkLessonCompleteHandler.
func NewMarkLessonCompleteHandler(
	progressRepo progress.Repository,
	engine *gating.Engine,
	features FeatureGate,
	eventPublisher shared.EventPublisher,
) *MarkLessonCompleteHandler {
	return &MarkLessonCompleteHandler{
		progressRepo:   progressRepo,
		engine:         engine,
		features:       gateOrDefault(features),
		eventPublisher: publisherOrNop(eventPublisher),
		now:            utcNow,
	}
}

// Handle executes the command.
func (h *MarkLessonCompleteHandler) Handle(ctx context.Context, cmd MarkLessonCompleteCommand) (*MarkLessonCompleteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	cat := h.engine.Catalog()
	if _, err := cat.Lesson(cmd.CourseID, cmd.PartID, cmd.LessonID); err != nil {
		return nil, err
	}
	total, err := cat.TotalLessons(cmd.CourseID)
	if err != nil {
		return nil, err
	}

	p, err := h.progressRepo.Get(ctx, cmd.Identity, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("mark_lesson_complete: load progress: %w", err)
	}

	if h.features.IsEnabled(config.FeatureGatingEnforceSequential, cmd.Identity) {
		unlocked, err := h.engine.IsLessonUnlocked(p, cmd.PartID, cmd.LessonID)
		if err != nil {
			return nil, err
		}
		if !unlocked {
			return nil, shared.ErrLessonLocked.Withf("course %s lesson %d-%d", cmd.CourseID, cmd.PartID, cmd.LessonID)
		}
	}

	wasComplete := p.IsComplete()
	newly := p.MarkLesson(cmd.PartID, cmd.LessonID, total, h.now())

	if err := h.progressRepo.Save(ctx, cmd.Identity, p); err != nil {
		return nil, fmt.Errorf("mark_lesson_complete: save progress: %w", err)
	}

	result := &MarkLessonCompleteResult{
		Progress:        p,
		NewlyCompleted:  newly,
		CourseCompleted: !wasComplete && p.IsComplete(),
	}

	if newly {
		ev := shared.NewLessonCompletedEvent(cmd.Identity, cmd.CourseID, cmd.PartID, cmd.LessonID, p.Percent)
		ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
		result.Events = append(result.Events, ev)
	}
	if result.CourseCompleted {
		ev := shared.NewCourseCompletedEvent(cmd.Identity, cmd.CourseID)
		ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
		result.Events = append(result.Events, ev)
	}
	for _, event := range result.Events {
		_ = h.eventPublisher.Publish(event)
	}

	return result, nil
}
