package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// document is the on-disk YAML layout.
type document struct {
	Courses []Course `yaml:"courses"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in catalog is invalid: %v", err))
	}
	return c
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a YAML catalog. Unknown fields are rejected.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, shared.ErrCatalogSchema.Wrap(fmt.Errorf("decode yaml: %w", err))
	}
	return New(doc.Courses)
}

// New validates courses and builds a Catalog from them. Quiz pass
// thresholds left at zero default to DefaultPassThreshold.
func New(courses []Course) (*Catalog, error) {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(courses) == 0 {
		add("catalog defines no courses")
	}

	c := &Catalog{
		courses: make([]*Course, 0, len(courses)),
		byID:    make(map[string]*Course, len(courses)),
	}

	for i := range courses {
		course := courses[i]
		course.Parts = append([]Part(nil), course.Parts...)
		if _, err := shared.NewCourseID(course.ID); err != nil || course.ID != strings.ToLower(course.ID) {
			add("course #%d: invalid id %q", i+1, course.ID)
		}
		if _, dup := c.byID[course.ID]; dup {
			add("course %q: duplicate id", course.ID)
		}
		if strings.TrimSpace(course.Name) == "" {
			add("course %q: name is required", course.ID)
		}
		if len(course.Parts) == 0 {
			add("course %q: at least one part is required", course.ID)
		}

		for pi := range course.Parts {
			part := &course.Parts[pi]
			if part.ID != pi+1 {
				add("course %q: part #%d has id %d, want %d", course.ID, pi+1, part.ID, pi+1)
			}
			if len(part.Lessons) == 0 {
				add("course %q part %d: at least one lesson is required", course.ID, part.ID)
			}
			for li, lesson := range part.Lessons {
				if lesson.ID != li+1 {
					add("course %q part %d: lesson #%d has id %d, want %d", course.ID, part.ID, li+1, lesson.ID, li+1)
				}
				if lesson.Quiz != nil {
					if msg := validateQuestion(*lesson.Quiz); msg != "" {
						add("course %q part %d lesson %d: %s", course.ID, part.ID, lesson.ID, msg)
					}
				}
			}

			if part.FinalQuiz.PassThreshold == 0 {
				part.FinalQuiz.PassThreshold = DefaultPassThreshold
			}
			if part.FinalQuiz.PassThreshold < shared.MinScore || part.FinalQuiz.PassThreshold > shared.MaxScore {
				add("course %q part %d: pass threshold %d out of range", course.ID, part.ID, part.FinalQuiz.PassThreshold)
			}
			for qi, q := range part.FinalQuiz.Questions {
				if msg := validateQuestion(q); msg != "" {
					add("course %q part %d final quiz question %d: %s", course.ID, part.ID, qi+1, msg)
				}
			}
		}

		stored := course
		c.courses = append(c.courses, &stored)
		c.byID[course.ID] = &stored
	}

	if len(problems) > 0 {
		return nil, shared.ErrCatalogSchema.Withf("%s", strings.Join(problems, "; "))
	}
	return c, nil
}

func validateQuestion(q Question) string {
	if strings.TrimSpace(q.Prompt) == "" {
		return "prompt is required"
	}
	if len(q.Options) < 2 {
		return "at least two options are required"
	}
	if q.Answer < 0 || q.Answer >= len(q.Options) {
		return fmt.Sprintf("answer %d does not index into %d options", q.Answer, len(q.Options))
	}
	return ""
}
