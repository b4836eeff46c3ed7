package command

import (
	"context"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANSWER LESSON COMMAND
// Checks the answer to a lesson's question; a correct answer completes the
// lesson. Lessons without a question are completed by any answer.
// ══════════════════════════════════════════════════════════════════════════════

// AnswerLessonCommand carries the chosen option index.
type AnswerLessonCommand struct {
	Identity string
	CourseID string
	PartID   int
	LessonID int
	Answer   int

	CorrelationID string
}

// AnswerLessonResult reports whether the answer was right and, if so, the
// outcome of the completion.
type AnswerLessonResult struct {
	Correct bool
	Mark    *MarkLessonCompleteResult
}

// AnswerLessonHandler handles AnswerLessonCommand.
type AnswerLessonHandler struct {
	catalog *catalog.Catalog
	marker  *MarkLessonCompleteHandler
}

// NewAnswerLessonHandler creates a new AnswerLessonHandler.
func NewAnswerLessonHandler(cat *catalog.Catalog, marker *MarkLessonCompleteHandler) *AnswerLessonHandler {
	return &AnswerLessonHandler{catalog: cat, marker: marker}
}

// Handle executes the command. A wrong answer changes nothing.
func (h *AnswerLessonHandler) Handle(ctx context.Context, cmd AnswerLessonCommand) (*AnswerLessonResult, error) {
	if _, err := shared.NewIdentity(cmd.Identity); err != nil {
		return nil, err
	}
	lesson, err := h.catalog.Lesson(cmd.CourseID, cmd.PartID, cmd.LessonID)
	if err != nil {
		return nil, err
	}

	if lesson.Quiz != nil && !lesson.Quiz.IsCorrect(cmd.Answer) {
		return &AnswerLessonResult{Correct: false}, nil
	}

	mark, err := h.marker.Handle(ctx, MarkLessonCompleteCommand{
		Identity:      cmd.Identity,
		CourseID:      cmd.CourseID,
		PartID:        cmd.PartID,
		LessonID:      cmd.LessonID,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		return nil, err
	}
	return &AnswerLessonResult{Correct: true, Mark: mark}, nil
}
