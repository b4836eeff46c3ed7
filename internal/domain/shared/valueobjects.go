package shared

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Identity is the opaque, stable account identifier handed out by the
// identity provider (for example a wallet address). It is only ever used as
// a key and is never mutated.
type Identity string

// String returns the string representation.
func (i Identity) String() string {
	return string(i)
}

// IsEmpty checks if the identity is empty.
func (i Identity) IsEmpty() bool {
	return strings.TrimSpace(string(i)) == ""
}

// NewIdentity creates a new Identity, trimming surrounding whitespace.
func NewIdentity(raw string) (Identity, error) {
	id := Identity(strings.TrimSpace(raw))
	if id.IsEmpty() {
		return "", ErrEmptyIdentity
	}
	return id, nil
}

// CourseID identifies a course in both the content catalog and the ledger registry.
type CourseID string

// Course ids are lowercase slugs such as "pomodoro" or "html-css".
var courseIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// IsValid checks if the course ID has slug format.
func (c CourseID) IsValid() bool {
	return courseIDRegex.MatchString(string(c))
}

// String returns the string representation.
func (c CourseID) String() string {
	return string(c)
}

// NewCourseID creates a new CourseID with validation.
func NewCourseID(raw string) (CourseID, error) {
	id := CourseID(strings.ToLower(strings.TrimSpace(raw)))
	if !id.IsValid() {
		return "", NewDomainError("shared", "NewCourseID", ErrInvalidFormat, fmt.Sprintf("invalid course id %q", raw))
	}
	return id, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Score Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Score is a final quiz result in percent.
type Score int

const (
	MinScore = 0
	MaxScore = 100

	// PassThreshold is the default minimum score that unlocks the next part.
	// Catalog parts may set their own.
	PassThreshold = 60
)

// IsValid checks if the score is within [0, 100].
func (s Score) IsValid() bool {
	return s >= MinScore && s <= MaxScore
}

// Meets reports whether the score reaches threshold.
func (s Score) Meets(threshold int) bool {
	return int(s) >= threshold
}

// Int returns the underlying int value.
func (s Score) Int() int {
	return int(s)
}

// NewScore creates a new Score with validation.
func NewScore(value int) (Score, error) {
	s := Score(value)
	if !s.IsValid() {
		return 0, ErrInvalidScore
	}
	return s, nil
}

// Percent returns round(100 * part / whole) with halves rounded up, the
// rounding used for every completion figure. A zero whole yields 0.
func Percent(part, whole int) int {
	if whole <= 0 || part <= 0 {
		return 0
	}
	if part >= whole {
		return 100
	}
	return (200*part + whole) / (2 * whole)
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries. Pages too far out to
// address saturate at math.MaxInt instead of wrapping negative.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	limit := p.Limit()
	if p.Page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (p.Page - 1) * limit
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}
