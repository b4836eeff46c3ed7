package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened to a learner's progress or to the credential ledger.
const (
	// Progress events
	EventLessonCompleted  EventType = "progress.lesson_completed"
	EventPartScored       EventType = "progress.part_scored"
	EventCourseCompleted  EventType = "progress.course_completed"
	EventProgressReset    EventType = "progress.reset"
	EventProgressImported EventType = "progress.imported"

	// Credential events
	EventCourseRegistered  EventType = "credential.course_registered"
	EventCourseUpdated     EventType = "credential.course_updated"
	EventCredentialClaimed EventType = "credential.claimed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For progress and credential events this is the learner identity.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonCompletedEvent is emitted the first time a lesson is marked complete.
// Repeated marks of the same lesson do not emit it again.
type LessonCompletedEvent struct {
	BaseEvent
	CourseID       string `json:"course_id"`
	PartID         int    `json:"part_id"`
	LessonID       int    `json:"lesson_id"`
	CourseProgress int    `json:"course_progress"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id":       e.CourseID,
		"part_id":         e.PartID,
		"lesson_id":       e.LessonID,
		"course_progress": e.CourseProgress,
	}
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(identity, courseID string, partID, lessonID, courseProgress int) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent:      NewBaseEvent(EventLessonCompleted, identity),
		CourseID:       courseID,
		PartID:         partID,
		LessonID:       lessonID,
		CourseProgress: courseProgress,
	}
}

// PartScoredEvent is emitted whenever a final quiz score is stored.
type PartScoredEvent struct {
	BaseEvent
	CourseID string `json:"course_id"`
	PartID   int    `json:"part_id"`
	Score    int    `json:"score"`
	Passed   bool   `json:"passed"`
}

// Payload implements Event interface.
func (e PartScoredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.CourseID,
		"part_id":   e.PartID,
		"score":     e.Score,
		"passed":    e.Passed,
	}
}

// NewPartScoredEvent creates a new PartScoredEvent.
func NewPartScoredEvent(identity, courseID string, partID, score int, passed bool) PartScoredEvent {
	return PartScoredEvent{
		BaseEvent: NewBaseEvent(EventPartScored, identity),
		CourseID:  courseID,
		PartID:    partID,
		Score:     score,
		Passed:    passed,
	}
}

// CourseCompletedEvent is emitted when a lesson write takes a course to 100%.
type CourseCompletedEvent struct {
	BaseEvent
	CourseID string `json:"course_id"`
}

// Payload implements Event interface.
func (e CourseCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.CourseID,
	}
}

// NewCourseCompletedEvent creates a new CourseCompletedEvent.
func NewCourseCompletedEvent(identity, courseID string) CourseCompletedEvent {
	return CourseCompletedEvent{
		BaseEvent: NewBaseEvent(EventCourseCompleted, identity),
		CourseID:  courseID,
	}
}

// ProgressResetEvent is emitted after a confirmed course reset.
type ProgressResetEvent struct {
	BaseEvent
	CourseID string `json:"course_id"`
}

// Payload implements Event interface.
func (e ProgressResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.CourseID,
	}
}

// NewProgressResetEvent creates a new ProgressResetEvent.
func NewProgressResetEvent(identity, courseID string) ProgressResetEvent {
	return ProgressResetEvent{
		BaseEvent: NewBaseEvent(EventProgressReset, identity),
		CourseID:  courseID,
	}
}

// ProgressImportedEvent is emitted after a snapshot replaced a learner's progress.
type ProgressImportedEvent struct {
	BaseEvent
	Courses int `json:"courses"`
}

// Payload implements Event interface.
func (e ProgressImportedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"courses": e.Courses,
	}
}

// NewProgressImportedEvent creates a new ProgressImportedEvent.
func NewProgressImportedEvent(identity string, courses int) ProgressImportedEvent {
	return ProgressImportedEvent{
		BaseEvent: NewBaseEvent(EventProgressImported, identity),
		Courses:   courses,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Credential Events
// ═══════════════════════════════════════════════════════════════════════════

// CourseRegisteredEvent is emitted when the ledger registry gains a course.
type CourseRegisteredEvent struct {
	BaseEvent
	CourseID string `json:"course_id"`
	Name     string `json:"name"`
}

// Payload implements Event interface.
func (e CourseRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.CourseID,
		"name":      e.Name,
	}
}

// NewCourseRegisteredEvent creates a new CourseRegisteredEvent. The aggregate
// is the course itself.
func NewCourseRegisteredEvent(courseID, name string) CourseRegisteredEvent {
	return CourseRegisteredEvent{
		BaseEvent: NewBaseEvent(EventCourseRegistered, courseID),
		CourseID:  courseID,
		Name:      name,
	}
}

// CourseUpdatedEvent is emitted when a registry entry is changed.
type CourseUpdatedEvent struct {
	BaseEvent
	CourseID string `json:"course_id"`
	Name     string `json:"name"`
}

// Payload implements Event interface.
func (e CourseUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id": e.CourseID,
		"name":      e.Name,
	}
}

// NewCourseUpdatedEvent creates a new CourseUpdatedEvent.
func NewCourseUpdatedEvent(courseID, name string) CourseUpdatedEvent {
	return CourseUpdatedEvent{
		BaseEvent: NewBaseEvent(EventCourseUpdated, courseID),
		CourseID:  courseID,
		Name:      name,
	}
}

// CredentialClaimedEvent is emitted after a credential has been minted.
type CredentialClaimedEvent struct {
	BaseEvent
	TokenID    uint64    `json:"token_id"`
	CourseID   string    `json:"course_id"`
	CourseName string    `json:"course_name"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Payload implements Event interface.
func (e CredentialClaimedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"token_id":    e.TokenID,
		"course_id":   e.CourseID,
		"course_name": e.CourseName,
		"issued_at":   e.IssuedAt.Format(time.RFC3339),
	}
}

// NewCredentialClaimedEvent creates a new CredentialClaimedEvent.
func NewCredentialClaimedEvent(owner string, tokenID uint64, courseID, courseName string, issuedAt time.Time) CredentialClaimedEvent {
	return CredentialClaimedEvent{
		BaseEvent:  NewBaseEvent(EventCredentialClaimed, owner),
		TokenID:    tokenID,
		CourseID:   courseID,
		CourseName: courseName,
		IssuedAt:   issuedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps event under the given id. The payload is the event's
// Payload map encoded as JSON.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ Correlation() string }); ok {
		env.CorrelationID = b.Correlation()
	}
	return env, nil
}

// Correlation returns the correlation id carried by the event.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event. Useful where no bus is configured.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
