package progress

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// Record is the serialized form of CourseProgress shared by the stores and
// the snapshot document:
//
//	{"completedLessons": {"1-3": true}, "partScores": {"1": 80},
//	 "courseProgress": 6, "lastAccessed": "2024-05-01T10:00:00Z"}
type Record struct {
	CompletedLessons map[string]bool `json:"completedLessons"`
	PartScores       map[string]int  `json:"partScores"`
	CourseProgress   int             `json:"courseProgress"`
	LastAccessed     *time.Time      `json:"lastAccessed,omitempty"`
}

// ToRecord converts an aggregate to its serialized form.
func ToRecord(p *CourseProgress) Record {
	r := Record{
		CompletedLessons: make(map[string]bool, len(p.CompletedLessons)),
		PartScores:       make(map[string]int, len(p.PartScores)),
		CourseProgress:   p.Percent,
	}
	for k := range p.CompletedLessons {
		r.CompletedLessons[k.String()] = true
	}
	for part, score := range p.PartScores {
		r.PartScores[strconv.Itoa(part)] = score
	}
	if !p.LastAccessed.IsZero() {
		t := p.LastAccessed.UTC()
		r.LastAccessed = &t
	}
	return r
}

// FromRecord rebuilds an aggregate from its serialized form. Only the
// structure is checked here; catalog bounds are the caller's concern.
// Lessons stored as false are ignored.
func FromRecord(courseID string, r Record) (*CourseProgress, error) {
	p := NewCourseProgress(courseID)
	for raw, done := range r.CompletedLessons {
		if !done {
			continue
		}
		key, err := ParseLessonKey(raw)
		if err != nil {
			return nil, err
		}
		p.CompletedLessons[key] = struct{}{}
	}
	for raw, score := range r.PartScores {
		part, err := strconv.Atoi(raw)
		if err != nil || part < 1 {
			return nil, fmt.Errorf("part score key %q: invalid part", raw)
		}
		if !shared.Score(score).IsValid() {
			return nil, shared.ErrInvalidScore.Withf("part %d score %d", part, score)
		}
		p.PartScores[part] = score
	}
	p.Percent = r.CourseProgress
	if r.LastAccessed != nil {
		p.LastAccessed = r.LastAccessed.UTC()
	}
	return p, nil
}

// EncodeRecord serializes an aggregate to JSON.
func EncodeRecord(p *CourseProgress) ([]byte, error) {
	return json.Marshal(ToRecord(p))
}

// DecodeRecord parses a stored JSON record. Any failure is reported as
// ErrCorruptedStore so stores can degrade to a zero record.
func DecodeRecord(courseID string, data []byte) (*CourseProgress, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, shared.ErrCorruptedStore.Wrap(fmt.Errorf("course %q: %w", courseID, err))
	}
	p, err := FromRecord(courseID, r)
	if err != nil {
		return nil, shared.ErrCorruptedStore.Wrap(fmt.Errorf("course %q: %w", courseID, err))
	}
	return p, nil
}
