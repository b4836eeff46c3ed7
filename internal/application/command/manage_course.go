package command

import (
	"context"
	"fmt"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE REGISTRY COMMANDS
// Only the registry owner may add or change courses. In-process operators
// (startup seeding, the admin CLI) mark their commands as System.
// ══════════════════════════════════════════════════════════════════════════════

// AddCourseCommand registers a course in the ledger.
type AddCourseCommand struct {
	Caller string
	System bool
	Course credential.Course

	CorrelationID string
}

// UpdateCourseCommand replaces name, description and image of a course.
type UpdateCourseCommand struct {
	Caller string
	System bool
	Course credential.Course

	CorrelationID string
}

// CourseRegistryHandler handles AddCourseCommand and UpdateCourseCommand.
type CourseRegistryHandler struct {
	ledger         credential.Ledger
	owner          string
	eventPublisher shared.EventPublisher
}

// NewCourseRegistryHandler creates a handler; owner is the identity allowed
// to administer the registry. An empty owner admits only System commands.
func NewCourseRegistryHandler(ledger credential.Ledger, owner string, eventPublisher shared.EventPublisher) *CourseRegistryHandler {
	return &CourseRegistryHandler{
		ledger:         ledger,
		owner:          owner,
		eventPublisher: publisherOrNop(eventPublisher),
	}
}

func (h *CourseRegistryHandler) authorize(caller string, system bool) error {
	if system {
		return nil
	}
	if h.owner == "" || caller != h.owner {
		return shared.ErrNotRegistryOwner.Withf("caller %q", caller)
	}
	return nil
}

// AddCourse executes AddCourseCommand. A duplicate id yields ErrCourseExists.
func (h *CourseRegistryHandler) AddCourse(ctx context.Context, cmd AddCourseCommand) (credential.Course, error) {
	if err := h.authorize(cmd.Caller, cmd.System); err != nil {
		return credential.Course{}, err
	}
	if err := h.ledger.AddCourse(ctx, cmd.Course); err != nil {
		return credential.Course{}, err
	}
	c, err := h.ledger.Course(ctx, cmd.Course.ID)
	if err != nil {
		return credential.Course{}, fmt.Errorf("add_course: reload: %w", err)
	}

	ev := shared.NewCourseRegisteredEvent(c.ID, c.Name)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	_ = h.eventPublisher.Publish(ev)

	return c, nil
}

// UpdateCourse executes UpdateCourseCommand. Unknown ids yield
// ErrCourseNotFound.
func (h *CourseRegistryHandler) UpdateCourse(ctx context.Context, cmd UpdateCourseCommand) (credential.Course, error) {
	if err := h.authorize(cmd.Caller, cmd.System); err != nil {
		return credential.Course{}, err
	}
	if err := h.ledger.UpdateCourse(ctx, cmd.Course); err != nil {
		return credential.Course{}, err
	}
	c, err := h.ledger.Course(ctx, cmd.Course.ID)
	if err != nil {
		return credential.Course{}, fmt.Errorf("update_course: reload: %w", err)
	}

	ev := shared.NewCourseUpdatedEvent(c.ID, c.Name)
	ev.BaseEvent = ev.WithCorrelationID(cmd.CorrelationID)
	_ = h.eventPublisher.Publish(ev)

	return c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Seeding
// ─────────────────────────────────────────────────────────────────────────────

// SeedResult counts what RegisterCatalog did.
type SeedResult struct {
	Added   []string
	Skipped []string
}

// RegisterCatalog registers every catalog course missing from the ledger.
// Courses already registered are left untouched. Courses without an image
// get imageBase + id + ".png".
func (h *CourseRegistryHandler) RegisterCatalog(ctx context.Context, cat *catalog.Catalog, imageBase string) (*SeedResult, error) {
	res := &SeedResult{}
	for _, c := range cat.Courses() {
		image := c.ImageURI
		if image == "" && imageBase != "" {
			image = imageBase + c.ID + ".png"
		}
		_, err := h.AddCourse(ctx, AddCourseCommand{
			System: true,
			Course: credential.Course{
				ID:          c.ID,
				Name:        c.Name,
				Description: c.Description,
				ImageURI:    image,
			},
		})
		switch {
		case err == nil:
			res.Added = append(res.Added, c.ID)
		case shared.IsAlreadyExists(err):
			res.Skipped = append(res.Skipped, c.ID)
		default:
			return res, fmt.Errorf("register course %s: %w", c.ID, err)
		}
	}
	return res, nil
}
