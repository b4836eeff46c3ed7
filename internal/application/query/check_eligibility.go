// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"

	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/gating"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ELIGIBILITY QUERY
// The bridge between progress and the ledger: may this identity claim the
// trophy for this course right now? Reads only, never writes.
// ══════════════════════════════════════════════════════════════════════════════

// Ineligibility reasons.
const (
	ReasonCourseNotRegistered = "course does not exist"
	ReasonNotCompleted        = "course not completed"
	ReasonAlreadyClaimed      = "already claimed"
)

// CheckEligibilityQuery asks whether Identity may claim CourseID.
type CheckEligibilityQuery struct {
	Identity string
	CourseID string
}

// Validate validates the query.
func (q CheckEligibilityQuery) Validate() error {
	if _, err := shared.NewIdentity(q.Identity); err != nil {
		return err
	}
	if q.CourseID == "" {
		return shared.NewDomainError("eligibility", "Check", shared.ErrInvalidInput, "course_id is required")
	}
	return nil
}

// EligibilityDTO is the answer of the eligibility bridge.
type EligibilityDTO struct {
	Identity string `json:"identity"`
	CourseID string `json:"course_id"`

	// Eligible is true iff the course is at 100% and no credential exists
	// for the pair. It does not by itself prevent a double claim.
	Eligible bool `json:"eligible"`

	// Reason explains why a claim would fail now; empty when it would
	// succeed. An unregistered course is reported here even though it does
	// not affect Eligible.
	Reason string `json:"reason,omitempty"`

	Percent          int  `json:"percent"`
	AlreadyClaimed   bool `json:"already_claimed"`
	CourseRegistered bool `json:"course_registered"`
}

// CheckEligibilityHandler handles CheckEligibilityQuery.
type CheckEligibilityHandler struct {
	progressRepo progress.Repository
	ledger       credential.Ledger
	engine       *gating.Engine
}

// NewCheckEligibilityHandler creates a new CheckEligibilityHandler.
func NewCheckEligibilityHandler(progressRepo progress.Repository, ledger credential.Ledger, engine *gating.Engine) *CheckEligibilityHandler {
	return &CheckEligibilityHandler{
		progressRepo: progressRepo,
		ledger:       ledger,
		engine:       engine,
	}
}

// Handle evaluates the query. An unknown catalog course yields NotFound.
func (h *CheckEligibilityHandler) Handle(ctx context.Context, q CheckEligibilityQuery) (*EligibilityDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.engine.Catalog().Course(q.CourseID); err != nil {
		return nil, err
	}

	p, err := h.progressRepo.Get(ctx, q.Identity, q.CourseID)
	if err != nil {
		return nil, fmt.Errorf("check_eligibility: load progress: %w", err)
	}
	percent, err := h.engine.CompletionPercent(p)
	if err != nil {
		return nil, err
	}

	claimed, err := h.ledger.HasClaimed(ctx, q.Identity, q.CourseID)
	if err != nil {
		return nil, fmt.Errorf("check_eligibility: has claimed: %w", err)
	}

	registered := true
	if _, err := h.ledger.Course(ctx, q.CourseID); err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("check_eligibility: registry: %w", err)
		}
		registered = false
	}

	dto := &EligibilityDTO{
		Identity:         q.Identity,
		CourseID:         q.CourseID,
		Eligible:         percent >= 100 && !claimed,
		Percent:          percent,
		AlreadyClaimed:   claimed,
		CourseRegistered: registered,
	}
	switch {
	case percent < 100:
		dto.Reason = ReasonNotCompleted
	case claimed:
		dto.Reason = ReasonAlreadyClaimed
	case !registered:
		dto.Reason = ReasonCourseNotRegistered
	}
	return dto, nil
}
