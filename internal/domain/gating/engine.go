// Package gating decides which parts and lessons of a course a learner may
// see. Every function is pure: it reads the catalog and a progress record
// and never mutates either.
package gating

import (
	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// Engine evaluates gating rules against a catalog.
type Engine struct {
	catalog *catalog.Catalog
}

// NewEngine creates a gating engine over cat.
func NewEngine(cat *catalog.Catalog) *Engine {
	return &Engine{catalog: cat}
}

// Catalog returns the catalog the engine evaluates against.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// LessonsToShow returns how many lessons of a part are revealed:
// one more than the completed count, capped at the part size.
func (e *Engine) LessonsToShow(p *progress.CourseProgress, partID int) (int, error) {
	total, err := e.catalog.PartLessons(p.CourseID, partID)
	if err != nil {
		return 0, err
	}
	return min(p.CompletedInPart(partID)+1, total), nil
}

// CanAccessPart reports whether a part is open. Part 1 is always open;
// part n opens once the stored final quiz score of part n-1 reaches that
// quiz's pass threshold. A later failing retry closes the part again.
func (e *Engine) CanAccessPart(p *progress.CourseProgress, partID int) (bool, error) {
	if _, err := e.catalog.Part(p.CourseID, partID); err != nil {
		return false, err
	}
	if partID == 1 {
		return true, nil
	}
	prev, err := e.catalog.Part(p.CourseID, partID-1)
	if err != nil {
		return false, err
	}
	return p.PartPassed(partID-1, prev.FinalQuiz.PassThreshold), nil
}

// IsLessonUnlocked reports whether a lesson is currently revealed: its part
// is open and the lesson falls within LessonsToShow. Completed lessons stay
// unlocked.
func (e *Engine) IsLessonUnlocked(p *progress.CourseProgress, partID, lessonID int) (bool, error) {
	if _, err := e.catalog.Lesson(p.CourseID, partID, lessonID); err != nil {
		return false, err
	}
	open, err := e.CanAccessPart(p, partID)
	if err != nil || !open {
		return false, err
	}
	if p.IsLessonCompleted(partID, lessonID) {
		return true, nil
	}
	show, err := e.LessonsToShow(p, partID)
	if err != nil {
		return false, err
	}
	return lessonID <= show, nil
}

// CompletionPercent returns round(100 * completed / total lessons). Quiz
// results do not count: a course can reach 100% with failed quizzes.
func (e *Engine) CompletionPercent(p *progress.CourseProgress) (int, error) {
	total, err := e.catalog.TotalLessons(p.CourseID)
	if err != nil {
		return 0, err
	}
	return shared.Percent(p.CompletedCount(), total), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// COURSE VIEW
// ═══════════════════════════════════════════════════════════════════════════

// PartView is the gated state of one part.
type PartView struct {
	PartID        int    `json:"part_id"`
	Title         string `json:"title"`
	Accessible    bool   `json:"accessible"`
	LessonsToShow int    `json:"lessons_to_show"`
	Completed     int    `json:"completed"`
	Total         int    `json:"total"`
	Score         *int   `json:"score,omitempty"`
	Passed        bool   `json:"passed"`
}

// CourseView is the gated outline of a course for one learner.
type CourseView struct {
	CourseID string     `json:"course_id"`
	Name     string     `json:"name"`
	Percent  int        `json:"percent"`
	Complete bool       `json:"complete"`
	Parts    []PartView `json:"parts"`
}

// View renders the gated outline of the record's course.
func (e *Engine) View(p *progress.CourseProgress) (CourseView, error) {
	course, err := e.catalog.Course(p.CourseID)
	if err != nil {
		return CourseView{}, err
	}
	percent, err := e.CompletionPercent(p)
	if err != nil {
		return CourseView{}, err
	}

	view := CourseView{
		CourseID: course.ID,
		Name:     course.Name,
		Percent:  percent,
		Complete: percent >= 100,
		Parts:    make([]PartView, 0, len(course.Parts)),
	}
	for _, part := range course.Parts {
		open, err := e.CanAccessPart(p, part.ID)
		if err != nil {
			return CourseView{}, err
		}
		show, err := e.LessonsToShow(p, part.ID)
		if err != nil {
			return CourseView{}, err
		}
		pv := PartView{
			PartID:        part.ID,
			Title:         part.Title,
			Accessible:    open,
			LessonsToShow: show,
			Completed:     p.CompletedInPart(part.ID),
			Total:         len(part.Lessons),
			Passed:        p.PartPassed(part.ID, part.FinalQuiz.PassThreshold),
		}
		if s, ok := p.PartScore(part.ID); ok {
			pv.Score = &s
		}
		view.Parts = append(view.Parts, pv)
	}
	return view, nil
}
