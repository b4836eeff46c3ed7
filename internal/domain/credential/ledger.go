package credential

import (
	"context"
)

// Ledger is the append-only credential store with its course registry.
//
// Claim is the only write that issues credentials. Implementations must make
// the check for an existing (owner, course) pair and the mint one
// indivisible step: of any number of concurrent claims for the same pair
// exactly one succeeds and the rest see ErrAlreadyClaimed. A failed claim
// never consumes a token id.
type Ledger interface {
	// Ownership never changes; see Soulbound.
	Transferrer

	// AddCourse registers a course. A duplicate id yields ErrCourseExists.
	AddCourse(ctx context.Context, c Course) error

	// UpdateCourse replaces name, description and image of a registered
	// course. Credentials already issued keep their snapshotted name.
	UpdateCourse(ctx context.Context, c Course) error

	// Course returns a registry entry or ErrCourseNotFound.
	Course(ctx context.Context, courseID string) (Course, error)

	// Courses lists the registry ordered by course id.
	Courses(ctx context.Context) ([]Course, error)

	// Claim mints the next token for (owner, courseID). It does not check
	// learning progress; that is the caller's job.
	Claim(ctx context.Context, owner, courseID string) (Credential, error)

	// HasClaimed reports whether owner holds a credential for courseID.
	HasClaimed(ctx context.Context, owner, courseID string) (bool, error)

	// Credential returns a credential by token id or ErrTokenNotFound.
	Credential(ctx context.Context, tokenID uint64) (Credential, error)

	// CredentialsOf lists an owner's credentials, newest first.
	CredentialsOf(ctx context.Context, owner string) ([]Credential, error)

	// TotalSupply returns the number of credentials ever issued.
	TotalSupply(ctx context.Context) (uint64, error)

	// BalanceOf returns how many credentials owner holds.
	BalanceOf(ctx context.Context, owner string) (int, error)
}

// Transferrer is the ownership-changing surface of a token contract. For
// credentials every mutating call fails; embed Soulbound to satisfy it.
type Transferrer interface {
	Transfer(ctx context.Context, from, to string, tokenID uint64) error
	SafeTransfer(ctx context.Context, from, to string, tokenID uint64, data []byte) error
	Approve(ctx context.Context, operator string, tokenID uint64) error
	SetApprovalForAll(ctx context.Context, owner, operator string, approved bool) error
	GetApproved(ctx context.Context, tokenID uint64) string
	IsApprovedForAll(ctx context.Context, owner, operator string) bool
}

var _ Transferrer = Soulbound{}
