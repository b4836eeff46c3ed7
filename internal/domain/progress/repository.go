package progress

import (
	"context"
)

// Repository persists course progress keyed by (identity, course).
//
// Writes are last-write-wins: two sessions of the same learner writing
// concurrently may lose one update. Implementations never fail a read
// because a stored record is undecodable; they log it and return the zero
// record instead.
type Repository interface {
	// Get returns the record for (identity, courseID), or a zero record
	// (NewCourseProgress) when none is stored.
	Get(ctx context.Context, identity, courseID string) (*CourseProgress, error)

	// Save stores the record, replacing any previous one.
	Save(ctx context.Context, identity string, p *CourseProgress) error

	// Delete removes the record for (identity, courseID). Missing records are not an error.
	Delete(ctx context.Context, identity, courseID string) error

	// GetAll returns every stored record of an identity keyed by course id.
	GetAll(ctx context.Context, identity string) (map[string]*CourseProgress, error)

	// ReplaceAll atomically swaps every record of an identity for records.
	ReplaceAll(ctx context.Context, identity string, records map[string]*CourseProgress) error

	// Identities lists every identity with at least one stored record.
	Identities(ctx context.Context) ([]string, error)
}
