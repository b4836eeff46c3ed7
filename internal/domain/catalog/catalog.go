// Package catalog holds the read-only course content: courses, their parts,
// lessons and quizzes. The catalog is validated once when loaded and is
// safe for concurrent reads afterwards.
package catalog

import (
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// DefaultPassThreshold is the final quiz score needed to unlock the next part.
const DefaultPassThreshold = shared.PassThreshold

// Question is a single-answer multiple choice question.
type Question struct {
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Options []string `yaml:"options" json:"options"`
	Answer  int      `yaml:"answer" json:"-"`
}

// IsCorrect reports whether choice is the right option.
func (q Question) IsCorrect(choice int) bool {
	return choice == q.Answer
}

// Quiz is the final quiz of a part.
type Quiz struct {
	PassThreshold int        `yaml:"pass_threshold" json:"pass_threshold"`
	Questions     []Question `yaml:"questions" json:"questions"`
}

// Grade scores answers (indexed like Questions) in percent. Missing or extra
// answers count as wrong.
func (q Quiz) Grade(answers []int) int {
	if len(q.Questions) == 0 {
		return 0
	}
	correct := 0
	for i, question := range q.Questions {
		if i < len(answers) && question.IsCorrect(answers[i]) {
			correct++
		}
	}
	return shared.Percent(correct, len(q.Questions))
}

// Lesson is one lesson inside a part.
type Lesson struct {
	ID    int       `yaml:"id" json:"id"`
	Title string    `yaml:"title" json:"title"`
	Quiz  *Question `yaml:"quiz,omitempty" json:"quiz,omitempty"`
}

// Part is an ordered group of lessons closed by a final quiz.
type Part struct {
	ID        int      `yaml:"id" json:"id"`
	Title     string   `yaml:"title" json:"title"`
	Lessons   []Lesson `yaml:"lessons" json:"lessons"`
	FinalQuiz Quiz     `yaml:"final_quiz" json:"final_quiz"`
}

// Course is a complete course definition.
type Course struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	ImageURI    string `yaml:"image" json:"image"`
	Parts       []Part `yaml:"parts" json:"parts"`
}

// TotalLessons returns the number of lessons across all parts.
func (c *Course) TotalLessons() int {
	total := 0
	for _, p := range c.Parts {
		total += len(p.Lessons)
	}
	return total
}

// Catalog is the validated, immutable set of courses.
type Catalog struct {
	courses []*Course
	byID    map[string]*Course
}

// Courses returns every course in definition order.
func (c *Catalog) Courses() []*Course {
	out := make([]*Course, len(c.courses))
	copy(out, c.courses)
	return out
}

// CourseIDs returns every course id in definition order.
func (c *Catalog) CourseIDs() []string {
	ids := make([]string, 0, len(c.courses))
	for _, course := range c.courses {
		ids = append(ids, course.ID)
	}
	return ids
}

// Course looks up a course by id.
func (c *Catalog) Course(courseID string) (*Course, error) {
	course, ok := c.byID[courseID]
	if !ok {
		return nil, shared.ErrCourseUnknown.Withf("course %q", courseID)
	}
	return course, nil
}

// Has reports whether the catalog defines courseID.
func (c *Catalog) Has(courseID string) bool {
	_, ok := c.byID[courseID]
	return ok
}

// Part looks up a part of a course. Part ids are 1-based.
func (c *Catalog) Part(courseID string, partID int) (*Part, error) {
	course, err := c.Course(courseID)
	if err != nil {
		return nil, err
	}
	if partID < 1 || partID > len(course.Parts) {
		return nil, shared.ErrPartUnknown.Withf("course %q part %d", courseID, partID)
	}
	return &course.Parts[partID-1], nil
}

// Lesson looks up a lesson of a part. Lesson ids are 1-based.
func (c *Catalog) Lesson(courseID string, partID, lessonID int) (*Lesson, error) {
	part, err := c.Part(courseID, partID)
	if err != nil {
		return nil, err
	}
	if lessonID < 1 || lessonID > len(part.Lessons) {
		return nil, shared.ErrLessonUnknown.Withf("course %q part %d lesson %d", courseID, partID, lessonID)
	}
	return &part.Lessons[lessonID-1], nil
}

// TotalLessons returns the number of lessons in a course.
func (c *Catalog) TotalLessons(courseID string) (int, error) {
	course, err := c.Course(courseID)
	if err != nil {
		return 0, err
	}
	return course.TotalLessons(), nil
}

// PartLessons returns the number of lessons in one part.
func (c *Catalog) PartLessons(courseID string, partID int) (int, error) {
	part, err := c.Part(courseID, partID)
	if err != nil {
		return 0, err
	}
	return len(part.Lessons), nil
}

// PassThreshold returns the final quiz threshold of a part, or
// DefaultPassThreshold when the catalog does not define the part.
// A nil catalog always yields the default.
func (c *Catalog) PassThreshold(courseID string, partID int) int {
	if c == nil {
		return DefaultPassThreshold
	}
	part, err := c.Part(courseID, partID)
	if err != nil {
		return DefaultPassThreshold
	}
	return part.FinalQuiz.PassThreshold
}

// PartCount returns the number of parts in a course.
func (c *Catalog) PartCount(courseID string) (int, error) {
	course, err := c.Course(courseID)
	if err != nil {
		return 0, err
	}
	return len(course.Parts), nil
}
