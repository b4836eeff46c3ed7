// Package memory provides in-process implementations of the progress
// repository and the credential ledger, used in tests and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

// ProgressStore keeps encoded progress records in a map, mirroring the
// key-value layout of the Redis store. Records are encoded on write and
// decoded on read so callers never share state with the store.
type ProgressStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // identity -> course -> record JSON
	log  *logger.Logger
}

// NewProgressStore creates an empty store.
func NewProgressStore(log *logger.Logger) *ProgressStore {
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressStore{
		data: make(map[string]map[string][]byte),
		log:  log.With(logger.Component("memory_progress_store")),
	}
}

// Get implements progress.Repository.
func (s *ProgressStore) Get(_ context.Context, identity, courseID string) (*progress.CourseProgress, error) {
	s.mu.RLock()
	raw, ok := s.data[identity][courseID]
	s.mu.RUnlock()

	if !ok {
		return progress.NewCourseProgress(courseID), nil
	}
	return s.decode(identity, courseID, raw), nil
}

// Save implements progress.Repository.
func (s *ProgressStore) Save(_ context.Context, identity string, p *progress.CourseProgress) error {
	raw, err := progress.EncodeRecord(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	courses, ok := s.data[identity]
	if !ok {
		courses = make(map[string][]byte)
		s.data[identity] = courses
	}
	courses[p.CourseID] = raw
	return nil
}

// Delete implements progress.Repository.
func (s *ProgressStore) Delete(_ context.Context, identity, courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if courses, ok := s.data[identity]; ok {
		delete(courses, courseID)
		if len(courses) == 0 {
			delete(s.data, identity)
		}
	}
	return nil
}

// GetAll implements progress.Repository.
func (s *ProgressStore) GetAll(_ context.Context, identity string) (map[string]*progress.CourseProgress, error) {
	s.mu.RLock()
	raws := make(map[string][]byte, len(s.data[identity]))
	for courseID, raw := range s.data[identity] {
		raws[courseID] = raw
	}
	s.mu.RUnlock()

	out := make(map[string]*progress.CourseProgress, len(raws))
	for courseID, raw := range raws {
		out[courseID] = s.decode(identity, courseID, raw)
	}
	return out, nil
}

// ReplaceAll implements progress.Repository.
func (s *ProgressStore) ReplaceAll(_ context.Context, identity string, records map[string]*progress.CourseProgress) error {
	encoded := make(map[string][]byte, len(records))
	for courseID, p := range records {
		raw, err := progress.EncodeRecord(p)
		if err != nil {
			return err
		}
		encoded[courseID] = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(encoded) == 0 {
		delete(s.data, identity)
		return nil
	}
	s.data[identity] = encoded
	return nil
}

// Identities implements progress.Repository.
func (s *ProgressStore) Identities(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// PutRaw stores raw bytes as a record, bypassing encoding. It exists to
// exercise the corrupted-record path.
func (s *ProgressStore) PutRaw(identity, courseID string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	courses, ok := s.data[identity]
	if !ok {
		courses = make(map[string][]byte)
		s.data[identity] = courses
	}
	courses[courseID] = raw
}

func (s *ProgressStore) decode(identity, courseID string, raw []byte) *progress.CourseProgress {
	p, err := progress.DecodeRecord(courseID, raw)
	if err != nil {
		s.log.Warn("stored progress is corrupted, using empty record",
			logger.Identity(identity), logger.CourseID(courseID), logger.Err(err))
		return progress.NewCourseProgress(courseID)
	}
	return p
}

var _ progress.Repository = (*ProgressStore)(nil)
