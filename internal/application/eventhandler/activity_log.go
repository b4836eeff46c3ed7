package eventhandler

import (
	"slices"

	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ACTIVITY LOG HANDLER
// Writes one structured line per domain event. Subscribed to every type.
// ═══════════════════════════════════════════════════════════════════════════

// ActivityLogHandler logs domain events.
type ActivityLogHandler struct {
	logger *logger.Logger
	config ActivityLogConfig
}

// ActivityLogConfig configures ActivityLogHandler.
type ActivityLogConfig struct {
	// IncludePayload adds the event payload to each line.
	IncludePayload bool

	// Quiet lists event types logged at debug instead of info.
	Quiet []shared.EventType
}

// DefaultActivityLogConfig keeps lesson completions at debug; they are by
// far the most frequent event.
func DefaultActivityLogConfig() ActivityLogConfig {
	return ActivityLogConfig{
		IncludePayload: true,
		Quiet:          []shared.EventType{shared.EventLessonCompleted},
	}
}

// NewActivityLogHandler creates an ActivityLogHandler.
func NewActivityLogHandler(log *logger.Logger, config ActivityLogConfig) *ActivityLogHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ActivityLogHandler{
		logger: log.With(logger.Component("events"), logger.String("handler", "activity_log")),
		config: config,
	}
}

// Handle has the shared.EventHandler signature.
func (h *ActivityLogHandler) Handle(event shared.Event) error {
	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.String("aggregate_id", event.AggregateID()),
		logger.Time("occurred_at", event.OccurredAt()),
	}
	if h.config.IncludePayload {
		fields = append(fields, logger.Any("payload", event.Payload()))
	}

	if slices.Contains(h.config.Quiet, event.EventType()) {
		h.logger.Debug("domain event", fields...)
		return nil
	}
	h.logger.Info("domain event", fields...)
	return nil
}
