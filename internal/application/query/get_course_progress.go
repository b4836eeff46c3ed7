package query

import (
	"context"
	"fmt"

	"github.com/skillpath/skillpath-hub/internal/domain/gating"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COURSE PROGRESS QUERY
// Returns a learner's stored record for one course together with the gated
// outline the client renders. Unknown identities see a zero record.
// ══════════════════════════════════════════════════════════════════════════════

// GetCourseProgressQuery identifies the record.
type GetCourseProgressQuery struct {
	Identity string
	CourseID string
}

// Validate validates the query.
func (q GetCourseProgressQuery) Validate() error {
	if _, err := shared.NewIdentity(q.Identity); err != nil {
		return err
	}
	if q.CourseID == "" {
		return shared.NewDomainError("progress", "Get", shared.ErrInvalidInput, "course_id is required")
	}
	return nil
}

// CourseProgressDTO is the stored record plus its gated view.
type CourseProgressDTO struct {
	Identity string            `json:"identity"`
	CourseID string            `json:"course_id"`
	Record   progress.Record   `json:"record"`
	View     gating.CourseView `json:"view"`
}

// GetCourseProgressHandler handles GetCourseProgressQuery.
type GetCourseProgressHandler struct {
	progressRepo progress.Repository
	engine       *gating.Engine
}

// NewGetCourseProgressHandler creates a new GetCourseProgressHandler.
func NewGetCourseProgressHandler(progressRepo progress.Repository, engine *gating.Engine) *GetCourseProgressHandler {
	return &GetCourseProgressHandler{progressRepo: progressRepo, engine: engine}
}

// Handle executes the query. Only an unknown course yields NotFound.
func (h *GetCourseProgressHandler) Handle(ctx context.Context, q GetCourseProgressQuery) (*CourseProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.engine.Catalog().Course(q.CourseID); err != nil {
		return nil, err
	}

	p, err := h.progressRepo.Get(ctx, q.Identity, q.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: %w", err)
	}
	view, err := h.engine.View(p)
	if err != nil {
		return nil, err
	}

	return &CourseProgressDTO{
		Identity: q.Identity,
		CourseID: q.CourseID,
		Record:   progress.ToRecord(p),
		View:     view,
	}, nil
}
