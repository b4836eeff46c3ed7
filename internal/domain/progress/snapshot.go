package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// Snapshot is the portable export of one learner's progress.
type Snapshot struct {
	Identity   string            `json:"identity"`
	ExportedAt time.Time         `json:"exportedAt"`
	Courses    map[string]Record `json:"courses"`
	Statistics Statistics        `json:"statistics"`
}

// NewSnapshot builds a snapshot from a learner's records.
func NewSnapshot(identity string, records map[string]*CourseProgress, cat *catalog.Catalog, now time.Time) Snapshot {
	s := Snapshot{
		Identity:   identity,
		ExportedAt: now.UTC(),
		Courses:    make(map[string]Record, len(records)),
		Statistics: ComputeStatistics(records, cat),
	}
	for id, p := range records {
		s.Courses[id] = ToRecord(p)
	}
	return s
}

// legacySnapshot is the layout written by the first web client:
// {"walletAddress": ..., "progress": {"courses": {...}}, "exportedAt": ...}.
type legacySnapshot struct {
	WalletAddress string `json:"walletAddress"`
	Progress      struct {
		Courses map[string]Record `json:"courses"`
	} `json:"progress"`
	ExportedAt time.Time `json:"exportedAt"`
}

// ParseSnapshot decodes a snapshot document. Documents in the legacy
// wallet layout are accepted as well.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Snapshot{}, shared.ErrInvalidSnapshot.Wrap(err)
	}

	if _, ok := fields["identity"]; !ok {
		if _, legacy := fields["walletAddress"]; legacy {
			var l legacySnapshot
			if err := json.Unmarshal(data, &l); err != nil {
				return Snapshot{}, shared.ErrInvalidSnapshot.Wrap(err)
			}
			return Snapshot{Identity: l.WalletAddress, ExportedAt: l.ExportedAt, Courses: l.Progress.Courses}, nil
		}
		return Snapshot{}, shared.ErrInvalidSnapshot.Withf("identity is missing")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var s Snapshot
	if err := dec.Decode(&s); err != nil {
		return Snapshot{}, shared.ErrInvalidSnapshot.Wrap(err)
	}
	return s, nil
}

// Restore validates the snapshot for caller against the catalog and returns
// the records to store. Validation is all-or-nothing: an identity mismatch
// yields ErrIdentityMismatch, any unknown course, part, lesson or an
// out-of-range score yields ErrInvalidSnapshot. Percent is recomputed from
// the lessons rather than trusted.
func (s Snapshot) Restore(caller string, cat *catalog.Catalog) (map[string]*CourseProgress, error) {
	if strings.TrimSpace(s.Identity) == "" {
		return nil, shared.ErrInvalidSnapshot.Withf("identity is missing")
	}
	if s.Identity != caller {
		return nil, shared.ErrIdentityMismatch
	}

	records := make(map[string]*CourseProgress, len(s.Courses))
	for courseID, rec := range s.Courses {
		total, err := cat.TotalLessons(courseID)
		if err != nil {
			return nil, shared.ErrInvalidSnapshot.Withf("unknown course %q", courseID)
		}

		p, err := FromRecord(courseID, rec)
		if err != nil {
			return nil, shared.ErrInvalidSnapshot.Wrap(fmt.Errorf("course %q: %w", courseID, err))
		}
		for key := range p.CompletedLessons {
			if _, err := cat.Lesson(courseID, key.Part, key.Lesson); err != nil {
				return nil, shared.ErrInvalidSnapshot.Withf("course %q: unknown lesson %s", courseID, key)
			}
		}
		for part := range p.PartScores {
			if _, err := cat.Part(courseID, part); err != nil {
				return nil, shared.ErrInvalidSnapshot.Withf("course %q: unknown part %d", courseID, part)
			}
		}

		p.Recompute(total)
		records[courseID] = p
	}
	return records, nil
}
