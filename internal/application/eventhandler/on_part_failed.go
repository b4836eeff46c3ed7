package eventhandler

import (
	"context"
	"fmt"
	"sync"

	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PART FAILED HANDLER
// Counts consecutive failed final quizzes per learner, course and part. When
// the streak reaches the threshold the learner is reported as stuck once;
// a pass or a course reset clears the streak.
// ═══════════════════════════════════════════════════════════════════════════

// StuckNotice reports a learner who keeps failing a part quiz.
type StuckNotice struct {
	Identity  string
	CourseID  string
	PartID    int
	Attempts  int
	LastScore int
}

// StuckNotifier is told about stuck learners.
type StuckNotifier func(ctx context.Context, n StuckNotice) error

// OnPartFailedHandler handles progress.part_scored and progress.reset.
type OnPartFailedHandler struct {
	notify StuckNotifier
	logger *logger.Logger
	config PartFailedConfig

	mu      sync.Mutex
	streaks map[streakKey]int
}

// PartFailedConfig configures OnPartFailedHandler.
type PartFailedConfig struct {
	// StuckAfter is the number of consecutive failures that counts as stuck.
	StuckAfter int
}

// DefaultPartFailedConfig returns the default configuration.
func DefaultPartFailedConfig() PartFailedConfig {
	return PartFailedConfig{StuckAfter: 3}
}

type streakKey struct {
	identity string
	courseID string
	partID   int
}

// NewOnPartFailedHandler creates the handler. A nil notify only logs.
func NewOnPartFailedHandler(notify StuckNotifier, log *logger.Logger, config PartFailedConfig) *OnPartFailedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if config.StuckAfter <= 0 {
		config.StuckAfter = DefaultPartFailedConfig().StuckAfter
	}
	return &OnPartFailedHandler{
		notify:  notify,
		logger:  log.With(logger.String("handler", "on_part_failed")),
		config:  config,
		streaks: make(map[streakKey]int),
	}
}

// Handle has the shared.EventHandler signature.
func (h *OnPartFailedHandler) Handle(event shared.Event) error {
	switch event.EventType() {
	case shared.EventPartScored:
		return h.handleScore(event)
	case shared.EventProgressReset:
		h.clearCourse(event.AggregateID(), payloadString(event, "course_id"))
		return nil
	default:
		return nil
	}
}

func (h *OnPartFailedHandler) handleScore(event shared.Event) error {
	partID, err := payloadInt(event, "part_id")
	if err != nil {
		return fmt.Errorf("on_part_failed: %w", err)
	}
	score, _ := payloadInt(event, "score")
	key := streakKey{
		identity: event.AggregateID(),
		courseID: payloadString(event, "course_id"),
		partID:   partID,
	}

	h.mu.Lock()
	if payloadBool(event, "passed") {
		delete(h.streaks, key)
		h.mu.Unlock()
		return nil
	}
	h.streaks[key]++
	attempts := h.streaks[key]
	h.mu.Unlock()

	if attempts != h.config.StuckAfter {
		return nil
	}

	notice := StuckNotice{
		Identity:  key.identity,
		CourseID:  key.courseID,
		PartID:    key.partID,
		Attempts:  attempts,
		LastScore: score,
	}
	h.logger.Warn("learner stuck on part quiz",
		logger.Identity(notice.Identity),
		logger.CourseID(notice.CourseID),
		logger.PartID(notice.PartID),
		logger.Int("attempts", attempts),
		logger.Int("last_score", score))

	if h.notify != nil {
		if err := h.notify(context.Background(), notice); err != nil {
			h.logger.Warn("failed to send stuck notice", logger.Err(err))
		}
	}
	return nil
}

func (h *OnPartFailedHandler) clearCourse(identity, courseID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k := range h.streaks {
		if k.identity == identity && k.courseID == courseID {
			delete(h.streaks, k)
		}
	}
}

// Streak returns the current failure streak for a part.
func (h *OnPartFailedHandler) Streak(identity, courseID string, partID int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.streaks[streakKey{identity, courseID, partID}]
}
