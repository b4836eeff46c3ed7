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
// UPDATE PART SCORE COMMAND
// Stores a part's final quiz score. The last attempt wins, so a failing
// retry after a pass closes the next part again.
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePartScoreCommand carries a score in [0, 100].
type UpdatePartScoreCommand struct {
	Identity string
	CourseID string
	PartID   int
	Score    int

	CorrelationID string
}

// Validate validates the command.
func (c UpdatePartScoreCommand) Validate() error {
	if _, err := shared.NewIdentity(c.Identity); err != nil {
		return err
	}
	if c.CourseID == "" {
		return shared.NewDomainError("progress", "UpdatePartScore", shared.ErrInvalidInput, "course_id is required")
	}
	if _, err := shared.NewScore(c.Score); err != nil {
		return err
	}
	return nil
}

// UpdatePartScoreResult describes the stored score.
type UpdatePartScoreResult struct {
	Progress *progress.CourseProgress
	Score    int
	Passed   bool

	// NextPartUnlocked reports whether the following part is open now;
	// false when this is the last part.
	NextPartUnlocked bool

	Events []shared.Event
}

// UpdatePartScoreHandler handles UpdatePartScoreCommand.
type UpdatePartScoreHandler struct {
	progressRepo   progress.Repository
	engine         *gating.Engine
	eventPublisher shared.EventPublisher
	now            func() time.Time
}

// NewUpdatePartScoreHandler creates a new UpdatePartScoreHandler.
func NewUpdatePartScoreHandler(
	progressRepo progress.Repository,
	engine *gating.Engine,
	eventPublisher shared.EventPublisher,
) *UpdatePartScoreHandler {
	return &UpdatePartScoreHandler{
		progressRepo:   progressRepo,
		engine:         engine,
		eventPublisher: publisherOrNop(eventPublisher),
		now:            utcNow,
	}
}

// Handle executes the command.
func (h *UpdatePartScoreHandler) Handle(ctx context.Context, cmd UpdatePartScoreCommand) (*UpdatePartScoreResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	cat := h.engine.Catalog()
	part, err := cat.Part(cmd.CourseID, cmd.PartID)
	if err != nil {
		return nil, err
	}

	p, err := h.progressRepo.Get(ctx, cmd.Identity, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("update_part_score: load progress: %w", err)
	}
	if err := p.SetPartScore(cmd.PartID, cmd.Score, h.now()); err != nil {
		return nil, err
	}
	if err := h.progressRepo.Save(ctx, cmd.Identity, p); err != nil {
		return nil, fmt.Errorf("update_part_score: save progress: %w", err)
	}

	passed := cmd.Score >= part.FinalQuiz.PassThreshold
	result := &UpdatePartScoreResult{
		Progress: p,
		Score:    cmd.Score,
		Passed:   passed,
	}
	if parts, err := cat.PartCount(cmd.CourseID); err == nil && cmd.PartID < parts {
		result.NextPartUnlocked, _ = h.engine.CanAccessPart(p, cmd.PartID+1)
	}

	ev := shared.NewPartScoredEvent(cmd.Identity, cmd.CourseID, cmd.PartID, cmd.Score, passed)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	result.Events = []shared.Event{ev}
	_ = h.eventPublisher.Publish(ev)

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT PART QUIZ COMMAND
// Grades answers against a part's final quiz and stores the resulting score.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitPartQuizCommand carries one chosen option index per question.
type SubmitPartQuizCommand struct {
	Identity string
	CourseID string
	PartID   int
	Answers  []int

	CorrelationID string
}

// SubmitPartQuizHandler grades and delegates to UpdatePartScoreHandler.
type SubmitPartQuizHandler struct {
	scores   *UpdatePartScoreHandler
	progress progress.Repository
	engine   *gating.Engine
	features FeatureGate
}

// NewSubmitPartQuizHandler creates a new SubmitPartQuizHandler.
func NewSubmitPartQuizHandler(
	scores *UpdatePartScoreHandler,
	progressRepo progress.Repository,
	engine *gating.Engine,
	features FeatureGate,
) *SubmitPartQuizHandler {
	return &SubmitPartQuizHandler{
		scores:   scores,
		progress: progressRepo,
		engine:   engine,
		features: gateOrDefault(features),
	}
}

// Handle grades the answers. Missing answers count as wrong. With
// sequential enforcement on, a locked part cannot be submitted.
func (h *SubmitPartQuizHandler) Handle(ctx context.Context, cmd SubmitPartQuizCommand) (*UpdatePartScoreResult, error) {
	if _, err := shared.NewIdentity(cmd.Identity); err != nil {
		return nil, err
	}
	part, err := h.engine.Catalog().Part(cmd.CourseID, cmd.PartID)
	if err != nil {
		return nil, err
	}

	if h.features.IsEnabled(config.FeatureGatingEnforceSequential, cmd.Identity) {
		p, err := h.progress.Get(ctx, cmd.Identity, cmd.CourseID)
		if err != nil {
			return nil, fmt.Errorf("submit_part_quiz: load progress: %w", err)
		}
		open, err := h.engine.CanAccessPart(p, cmd.PartID)
		if err != nil {
			return nil, err
		}
		if !open {
			return nil, shared.ErrLessonLocked.Withf("course %s part %d", cmd.CourseID, cmd.PartID)
		}
	}

	return h.scores.Handle(ctx, UpdatePartScoreCommand{
		Identity:      cmd.Identity,
		CourseID:      cmd.CourseID,
		PartID:        cmd.PartID,
		Score:         part.FinalQuiz.Grade(cmd.Answers),
		CorrelationID: cmd.CorrelationID,
	})
}
