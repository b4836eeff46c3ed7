package eventhandler

import (
	"context"
	"time"

	"github.com/skillpath/skillpath-hub/internal/application/query"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON COURSE COMPLETED HANDLER
// A course reaching 100% makes its credential claimable. The handler asks
// the eligibility bridge and tells the notifier when a claim would succeed.
// Nothing is minted here: claiming stays an explicit learner action.
// ═══════════════════════════════════════════════════════════════════════════

// EligibilityChecker is the eligibility bridge.
type EligibilityChecker interface {
	Handle(ctx context.Context, q query.CheckEligibilityQuery) (*query.EligibilityDTO, error)
}

// ClaimableNotice says a learner can now claim a credential.
type ClaimableNotice struct {
	Identity      string
	CourseID      string
	CompletedAt   time.Time
	CorrelationID string
}

// ClaimableNotifier is told about claimable credentials.
type ClaimableNotifier func(ctx context.Context, n ClaimableNotice) error

// OnCourseCompletedHandler handles progress.course_completed.
type OnCourseCompletedHandler struct {
	eligibility EligibilityChecker
	notify      ClaimableNotifier
	logger      *logger.Logger
	config      CourseCompletedConfig
}

// CourseCompletedConfig configures OnCourseCompletedHandler.
type CourseCompletedConfig struct {
	// Timeout bounds the eligibility lookup.
	Timeout time.Duration
}

// DefaultCourseCompletedConfig returns the default configuration.
func DefaultCourseCompletedConfig() CourseCompletedConfig {
	return CourseCompletedConfig{Timeout: 5 * time.Second}
}

// NewOnCourseCompletedHandler creates the handler. A nil notify only logs.
func NewOnCourseCompletedHandler(
	eligibility EligibilityChecker,
	notify ClaimableNotifier,
	log *logger.Logger,
	config CourseCompletedConfig,
) *OnCourseCompletedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCourseCompletedConfig().Timeout
	}
	return &OnCourseCompletedHandler{
		eligibility: eligibility,
		notify:      notify,
		logger:      log.With(logger.String("handler", "on_course_completed")),
		config:      config,
	}
}

// Handle has the shared.EventHandler signature.
func (h *OnCourseCompletedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventCourseCompleted {
		h.logger.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	identity := event.AggregateID()
	courseID := payloadString(event, "course_id")
	if courseID == "" {
		h.logger.Warn("course completed event without course_id", logger.Identity(identity))
		return nil
	}
	log := h.logger.With(logger.Identity(identity), logger.CourseID(courseID))

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	dto, err := h.eligibility.Handle(ctx, query.CheckEligibilityQuery{Identity: identity, CourseID: courseID})
	if err != nil {
		log.Error("eligibility check failed", logger.Err(err))
		return nil
	}
	if !dto.Eligible {
		log.Debug("credential not claimable", logger.String("reason", dto.Reason))
		return nil
	}
	if !dto.CourseRegistered {
		log.Warn("course completed but not registered on the ledger")
		return nil
	}

	notice := ClaimableNotice{
		Identity:      identity,
		CourseID:      courseID,
		CompletedAt:   event.OccurredAt(),
		CorrelationID: correlationID(event),
	}
	log.Info("credential claimable")

	if h.notify == nil {
		return nil
	}
	if err := h.notify(ctx, notice); err != nil {
		log.Warn("failed to send claimable notice", logger.Err(err))
	}
	return nil
}

func correlationID(e shared.Event) string {
	switch ev := e.(type) {
	case shared.CourseCompletedEvent:
		return ev.CorrelationID
	case interface{ Correlation() string }:
		return ev.Correlation()
	}
	return ""
}
