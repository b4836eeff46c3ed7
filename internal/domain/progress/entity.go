// Package progress contains the per-learner course progress aggregate, its
// repository port, statistics, and the snapshot document used for
// export and import.
package progress

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// LESSON KEY
// ═══════════════════════════════════════════════════════════════════════════

// LessonKey identifies a lesson inside a course by its part and lesson ids.
type LessonKey struct {
	Part   int
	Lesson int
}

// String renders the key in "part-lesson" form, e.g. "2-7".
func (k LessonKey) String() string {
	return strconv.Itoa(k.Part) + "-" + strconv.Itoa(k.Lesson)
}

// ParseLessonKey parses a "part-lesson" key.
func ParseLessonKey(s string) (LessonKey, error) {
	partStr, lessonStr, ok := strings.Cut(s, "-")
	if !ok {
		return LessonKey{}, fmt.Errorf("lesson key %q: missing separator", s)
	}
	part, err := strconv.Atoi(partStr)
	if err != nil || part < 1 {
		return LessonKey{}, fmt.Errorf("lesson key %q: invalid part", s)
	}
	lesson, err := strconv.Atoi(lessonStr)
	if err != nil || lesson < 1 {
		return LessonKey{}, fmt.Errorf("lesson key %q: invalid lesson", s)
	}
	return LessonKey{Part: part, Lesson: lesson}, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// COURSE PROGRESS AGGREGATE
// ═══════════════════════════════════════════════════════════════════════════

// CourseProgress is one learner's progress through one course.
//
// Percent is derived: it always equals round(100 * completed / total) for
// the course total known at the last write, and is never set by callers.
type CourseProgress struct {
	CourseID         string
	CompletedLessons map[LessonKey]struct{}
	PartScores       map[int]int
	Percent          int
	LastAccessed     time.Time
}

// NewCourseProgress returns the zero record for a course.
func NewCourseProgress(courseID string) *CourseProgress {
	return &CourseProgress{
		CourseID:         courseID,
		CompletedLessons: make(map[LessonKey]struct{}),
		PartScores:       make(map[int]int),
	}
}

// IsZero reports whether nothing has been recorded yet.
func (p *CourseProgress) IsZero() bool {
	return len(p.CompletedLessons) == 0 && len(p.PartScores) == 0 && p.LastAccessed.IsZero()
}

// IsLessonCompleted reports whether the lesson has been completed.
func (p *CourseProgress) IsLessonCompleted(partID, lessonID int) bool {
	_, ok := p.CompletedLessons[LessonKey{Part: partID, Lesson: lessonID}]
	return ok
}

// CompletedCount returns the number of completed lessons in the course.
func (p *CourseProgress) CompletedCount() int {
	return len(p.CompletedLessons)
}

// CompletedInPart returns the number of completed lessons in one part.
func (p *CourseProgress) CompletedInPart(partID int) int {
	n := 0
	for k := range p.CompletedLessons {
		if k.Part == partID {
			n++
		}
	}
	return n
}

// PartScore returns the stored final quiz score for a part.
func (p *CourseProgress) PartScore(partID int) (int, bool) {
	s, ok := p.PartScores[partID]
	return s, ok
}

// PartPassed reports whether the stored score for a part meets threshold.
func (p *CourseProgress) PartPassed(partID, threshold int) bool {
	s, ok := p.PartScores[partID]
	return ok && shared.Score(s).Meets(threshold)
}

// QuizzesPassed counts parts whose stored score meets that part's threshold
// in cat. A nil cat applies the default threshold everywhere.
func (p *CourseProgress) QuizzesPassed(cat *catalog.Catalog) int {
	n := 0
	for partID := range p.PartScores {
		if p.PartPassed(partID, cat.PassThreshold(p.CourseID, partID)) {
			n++
		}
	}
	return n
}

// IsComplete reports whether the course stands at 100%.
func (p *CourseProgress) IsComplete() bool {
	return p.Percent >= 100
}

// MarkLesson records a lesson as completed and recomputes Percent against
// totalLessons. Marking an already completed lesson only refreshes
// LastAccessed. It returns true when the lesson was newly completed.
func (p *CourseProgress) MarkLesson(partID, lessonID, totalLessons int, now time.Time) bool {
	key := LessonKey{Part: partID, Lesson: lessonID}
	_, had := p.CompletedLessons[key]
	p.CompletedLessons[key] = struct{}{}
	p.Recompute(totalLessons)
	p.LastAccessed = now
	return !had
}

// SetPartScore stores a final quiz score. The last write wins.
func (p *CourseProgress) SetPartScore(partID, score int, now time.Time) error {
	if _, err := shared.NewScore(score); err != nil {
		return err
	}
	p.PartScores[partID] = score
	p.LastAccessed = now
	return nil
}

// Recompute derives Percent from the completed lesson count.
func (p *CourseProgress) Recompute(totalLessons int) {
	p.Percent = shared.Percent(len(p.CompletedLessons), totalLessons)
}

// Reset clears lessons and scores.
func (p *CourseProgress) Reset(now time.Time) {
	p.CompletedLessons = make(map[LessonKey]struct{})
	p.PartScores = make(map[int]int)
	p.Percent = 0
	p.LastAccessed = now
}

// SortedLessons returns completed lessons ordered by part then lesson.
func (p *CourseProgress) SortedLessons() []LessonKey {
	keys := make([]LessonKey, 0, len(p.CompletedLessons))
	for k := range p.CompletedLessons {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Part != keys[j].Part {
			return keys[i].Part < keys[j].Part
		}
		return keys[i].Lesson < keys[j].Lesson
	})
	return keys
}

// Clone returns a deep copy.
func (p *CourseProgress) Clone() *CourseProgress {
	c := &CourseProgress{
		CourseID:         p.CourseID,
		CompletedLessons: make(map[LessonKey]struct{}, len(p.CompletedLessons)),
		PartScores:       make(map[int]int, len(p.PartScores)),
		Percent:          p.Percent,
		LastAccessed:     p.LastAccessed,
	}
	for k := range p.CompletedLessons {
		c.CompletedLessons[k] = struct{}{}
	}
	for k, v := range p.PartScores {
		c.PartScores[k] = v
	}
	return c
}
