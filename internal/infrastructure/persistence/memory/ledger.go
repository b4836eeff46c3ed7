package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

type claimKey struct {
	owner    string
	courseID string
}

// Ledger is an in-process credential.Ledger. A single mutex covers the
// registry, the token counter and the claimed set, so claims are serialized.
type Ledger struct {
	credential.Soulbound

	mu      sync.Mutex
	courses map[string]credential.Course
	tokens  []credential.Credential // index == token id
	claimed map[claimKey]uint64
	owned   map[string][]uint64

	now func() time.Time
}

// NewLedger creates an empty ledger. The first issued token id is 0.
func NewLedger() *Ledger {
	return &Ledger{
		courses: make(map[string]credential.Course),
		claimed: make(map[claimKey]uint64),
		owned:   make(map[string][]uint64),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the issuance clock.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

// AddCourse implements credential.Ledger.
func (l *Ledger) AddCourse(_ context.Context, c credential.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.courses[c.ID]; ok {
		return shared.ErrCourseExists.Withf("course %s", c.ID)
	}
	c.Exists = true
	l.courses[c.ID] = c
	return nil
}

// UpdateCourse implements credential.Ledger.
func (l *Ledger) UpdateCourse(_ context.Context, c credential.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.courses[c.ID]; !ok {
		return shared.ErrCourseNotFound.Withf("course %s", c.ID)
	}
	c.Exists = true
	l.courses[c.ID] = c
	return nil
}

// Course implements credential.Ledger.
func (l *Ledger) Course(_ context.Context, courseID string) (credential.Course, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.courses[courseID]
	if !ok {
		return credential.Course{}, shared.ErrCourseNotFound.Withf("course %s", courseID)
	}
	return c, nil
}

// Courses implements credential.Ledger.
func (l *Ledger) Courses(_ context.Context) ([]credential.Course, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]credential.Course, 0, len(l.courses))
	for _, c := range l.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Claim implements credential.Ledger.
func (l *Ledger) Claim(ctx context.Context, owner, courseID string) (credential.Credential, error) {
	if err := ctx.Err(); err != nil {
		return credential.Credential{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	course, ok := l.courses[courseID]
	if !ok {
		return credential.Credential{}, shared.ErrCourseNotFound.Withf("course %s", courseID)
	}
	key := claimKey{owner: owner, courseID: courseID}
	if _, ok := l.claimed[key]; ok {
		return credential.Credential{}, shared.ErrAlreadyClaimed.Withf("owner %s course %s", owner, courseID)
	}

	cred := credential.Credential{
		TokenID:    uint64(len(l.tokens)),
		CourseID:   courseID,
		Owner:      owner,
		IssuedAt:   l.now(),
		CourseName: course.Name,
	}
	l.tokens = append(l.tokens, cred)
	l.claimed[key] = cred.TokenID
	l.owned[owner] = append(l.owned[owner], cred.TokenID)
	return cred, nil
}

// HasClaimed implements credential.Ledger.
func (l *Ledger) HasClaimed(_ context.Context, owner, courseID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.claimed[claimKey{owner: owner, courseID: courseID}]
	return ok, nil
}

// Credential implements credential.Ledger.
func (l *Ledger) Credential(_ context.Context, tokenID uint64) (credential.Credential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tokenID >= uint64(len(l.tokens)) {
		return credential.Credential{}, shared.ErrTokenNotFound.Withf("token %d", tokenID)
	}
	return l.tokens[tokenID], nil
}

// CredentialsOf implements credential.Ledger.
func (l *Ledger) CredentialsOf(_ context.Context, owner string) ([]credential.Credential, error) {
	l.mu.Lock()
	ids := l.owned[owner]
	out := make([]credential.Credential, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.tokens[id])
	}
	l.mu.Unlock()

	credential.SortNewestFirst(out)
	return out, nil
}

// TotalSupply implements credential.Ledger.
func (l *Ledger) TotalSupply(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.tokens)), nil
}

// BalanceOf implements credential.Ledger.
func (l *Ledger) BalanceOf(_ context.Context, owner string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.owned[owner]), nil
}

var _ credential.Ledger = (*Ledger)(nil)
