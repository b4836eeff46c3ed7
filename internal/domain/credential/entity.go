// Package credential models the non-transferable course trophy ledger:
// the course registry, issued credentials, their metadata documents and
// the soulbound rules that forbid any change of ownership.
package credential

import (
	"sort"
	"strings"
	"time"

	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// Course is a course registry entry. A course must be registered before
// any credential referencing it can be issued.
type Course struct {
	ID          string `json:"course_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURI    string `json:"image_uri"`
	Exists      bool   `json:"exists"`
}

// Validate checks the registry entry before it is stored.
func (c Course) Validate() error {
	if _, err := shared.NewCourseID(c.ID); err != nil {
		return err
	}
	if strings.TrimSpace(c.Name) == "" {
		return shared.NewDomainError("credential", "AddCourse", shared.ErrInvalidInput, "course name is required")
	}
	return nil
}

// Credential is an issued trophy. Credentials are permanent and their
// owner never changes.
type Credential struct {
	TokenID    uint64    `json:"token_id"`
	CourseID   string    `json:"course_id"`
	Owner      string    `json:"owner"`
	IssuedAt   time.Time `json:"issued_at"`
	CourseName string    `json:"course_name"` // snapshotted at issuance
}

// SortNewestFirst orders credentials by issue time descending; ties go to
// the higher token id.
func SortNewestFirst(creds []Credential) {
	sort.Slice(creds, func(i, j int) bool {
		a, b := creds[i], creds[j]
		if !a.IssuedAt.Equal(b.IssuedAt) {
			return a.IssuedAt.After(b.IssuedAt)
		}
		return a.TokenID > b.TokenID
	})
}
