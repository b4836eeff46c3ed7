package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREDENTIAL LEDGER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CredentialLedger implements credential.Ledger for PostgreSQL.
//
// Claims lock the single ledger_counter row, which serializes minting
// across every process sharing the database. The UNIQUE (owner, course_id)
// constraint backs the one-credential-per-course rule.
type CredentialLedger struct {
	credential.Soulbound

	conn *Connection
	now  func() time.Time
}

// NewCredentialLedger creates a new CredentialLedger.
func NewCredentialLedger(conn *Connection) *CredentialLedger {
	return &CredentialLedger{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Course registry
// ─────────────────────────────────────────────────────────────────────────────

// AddCourse implements credential.Ledger.
func (l *CredentialLedger) AddCourse(ctx context.Context, c credential.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO courses (course_id, name, description, image_uri, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`

	_, err := l.conn.Exec(ctx, query, c.ID, c.Name, c.Description, c.ImageURI, l.now())
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrCourseExists.Withf("course %s", c.ID)
		}
		return classify("credential", "AddCourse", err)
	}
	return nil
}

// UpdateCourse implements credential.Ledger.
func (l *CredentialLedger) UpdateCourse(ctx context.Context, c credential.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE courses SET
			name = $2,
			description = $3,
			image_uri = $4,
			updated_at = $5
		WHERE course_id = $1
	`

	tag, err := l.conn.Exec(ctx, query, c.ID, c.Name, c.Description, c.ImageURI, l.now())
	if err != nil {
		return classify("credential", "UpdateCourse", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrCourseNotFound.Withf("course %s", c.ID)
	}
	return nil
}

// Course implements credential.Ledger.
func (l *CredentialLedger) Course(ctx context.Context, courseID string) (credential.Course, error) {
	query := `
		SELECT course_id, name, description, image_uri
		FROM courses
		WHERE course_id = $1
	`

	c, err := scanCourse(l.conn.QueryRow(ctx, query, courseID))
	if IsNoRows(err) {
		return credential.Course{}, shared.ErrCourseNotFound.Withf("course %s", courseID)
	}
	if err != nil {
		return credential.Course{}, classify("credential", "Course", err)
	}
	return c, nil
}

// Courses implements credential.Ledger.
func (l *CredentialLedger) Courses(ctx context.Context) ([]credential.Course, error) {
	query := `
		SELECT course_id, name, description, image_uri
		FROM courses
		ORDER BY course_id
	`

	rows, err := l.conn.Query(ctx, query)
	if err != nil {
		return nil, classify("credential", "Courses", err)
	}
	defer rows.Close()

	out := make([]credential.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, classify("credential", "Courses", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("credential", "Courses", err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Claims
// ─────────────────────────────────────────────────────────────────────────────

// Claim implements credential.Ledger. The counter row is locked before the
// duplicate check, so two claims for the same pair cannot both pass it.
// A rolled back claim leaves the counter untouched.
func (l *CredentialLedger) Claim(ctx context.Context, owner, courseID string) (credential.Credential, error) {
	var cred credential.Credential

	err := l.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var next int64
		if err := tx.QueryRow(ctx, `SELECT next_id FROM ledger_counter WHERE id FOR UPDATE`).Scan(&next); err != nil {
			return err
		}

		var courseName string
		err := tx.QueryRow(ctx, `SELECT name FROM courses WHERE course_id = $1`, courseID).Scan(&courseName)
		if IsNoRows(err) {
			return shared.ErrCourseNotFound.Withf("course %s", courseID)
		}
		if err != nil {
			return err
		}

		var claimed bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM credentials WHERE owner = $1 AND course_id = $2)`,
			owner, courseID,
		).Scan(&claimed)
		if err != nil {
			return err
		}
		if claimed {
			return shared.ErrAlreadyClaimed.Withf("owner %s course %s", owner, courseID)
		}

		cred = credential.Credential{
			TokenID:    uint64(next),
			CourseID:   courseID,
			Owner:      owner,
			IssuedAt:   l.now(),
			CourseName: courseName,
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO credentials (token_id, course_id, owner, course_name, issued_at)
			VALUES ($1, $2, $3, $4, $5)
		`, next, courseID, owner, courseName, cred.IssuedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE ledger_counter SET next_id = next_id + 1 WHERE id`)
		return err
	})

	var domainErr *shared.DomainError
	switch {
	case err == nil:
		return cred, nil
	case errors.As(err, &domainErr):
		return credential.Credential{}, err
	case IsUniqueViolation(err):
		return credential.Credential{}, shared.ErrAlreadyClaimed.Withf("owner %s course %s", owner, courseID)
	default:
		return credential.Credential{}, classify("credential", "Claim", err)
	}
}

// HasClaimed implements credential.Ledger.
func (l *CredentialLedger) HasClaimed(ctx context.Context, owner, courseID string) (bool, error) {
	var claimed bool
	err := l.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM credentials WHERE owner = $1 AND course_id = $2)`,
		owner, courseID,
	).Scan(&claimed)
	if err != nil {
		return false, classify("credential", "HasClaimed", err)
	}
	return claimed, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Credential reads
// ─────────────────────────────────────────────────────────────────────────────

// Credential implements credential.Ledger.
func (l *CredentialLedger) Credential(ctx context.Context, tokenID uint64) (credential.Credential, error) {
	query := `
		SELECT token_id, course_id, owner, course_name, issued_at
		FROM credentials
		WHERE token_id = $1
	`

	c, err := scanCredential(l.conn.QueryRow(ctx, query, int64(tokenID)))
	if IsNoRows(err) {
		return credential.Credential{}, shared.ErrTokenNotFound.Withf("token %d", tokenID)
	}
	if err != nil {
		return credential.Credential{}, classify("credential", "Credential", err)
	}
	return c, nil
}

// CredentialsOf implements credential.Ledger.
func (l *CredentialLedger) CredentialsOf(ctx context.Context, owner string) ([]credential.Credential, error) {
	query := `
		SELECT token_id, course_id, owner, course_name, issued_at
		FROM credentials
		WHERE owner = $1
		ORDER BY issued_at DESC, token_id DESC
	`

	rows, err := l.conn.Query(ctx, query, owner)
	if err != nil {
		return nil, classify("credential", "CredentialsOf", err)
	}
	defer rows.Close()

	out := make([]credential.Credential, 0)
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, classify("credential", "CredentialsOf", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("credential", "CredentialsOf", err)
	}
	return out, nil
}

// TotalSupply implements credential.Ledger.
func (l *CredentialLedger) TotalSupply(ctx context.Context) (uint64, error) {
	var next int64
	if err := l.conn.QueryRow(ctx, `SELECT next_id FROM ledger_counter WHERE id`).Scan(&next); err != nil {
		return 0, classify("credential", "TotalSupply", err)
	}
	return uint64(next), nil
}

// BalanceOf implements credential.Ledger.
func (l *CredentialLedger) BalanceOf(ctx context.Context, owner string) (int, error) {
	var n int
	if err := l.conn.QueryRow(ctx, `SELECT COUNT(*) FROM credentials WHERE owner = $1`, owner).Scan(&n); err != nil {
		return 0, classify("credential", "BalanceOf", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper Methods
// ─────────────────────────────────────────────────────────────────────────────

func scanCourse(row pgx.Row) (credential.Course, error) {
	var c credential.Course
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ImageURI); err != nil {
		return credential.Course{}, err
	}
	c.Exists = true
	return c, nil
}

func scanCredential(row pgx.Row) (credential.Credential, error) {
	var (
		c       credential.Credential
		tokenID int64
	)
	if err := row.Scan(&tokenID, &c.CourseID, &c.Owner, &c.CourseName, &c.IssuedAt); err != nil {
		return credential.Credential{}, err
	}
	c.TokenID = uint64(tokenID)
	c.IssuedAt = c.IssuedAt.UTC()
	return c, nil
}

var _ credential.Ledger = (*CredentialLedger)(nil)
