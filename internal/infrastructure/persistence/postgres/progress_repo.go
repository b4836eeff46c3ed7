package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
	log  *logger.Logger
	now  func() time.Time
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection, log *logger.Logger) *ProgressRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressRepository{
		conn: conn,
		log:  log.With(logger.Component("postgres_progress_repo")),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get implements progress.Repository.
func (r *ProgressRepository) Get(ctx context.Context, identity, courseID string) (*progress.CourseProgress, error) {
	query := `
		SELECT record
		FROM course_progress
		WHERE identity = $1 AND course_id = $2
	`

	var raw []byte
	err := r.conn.QueryRow(ctx, query, identity, courseID).Scan(&raw)
	if IsNoRows(err) {
		return progress.NewCourseProgress(courseID), nil
	}
	if err != nil {
		return nil, classify("progress", "Get", err)
	}
	return r.decode(identity, courseID, raw), nil
}

// GetAll implements progress.Repository.
func (r *ProgressRepository) GetAll(ctx context.Context, identity string) (map[string]*progress.CourseProgress, error) {
	query := `
		SELECT course_id, record
		FROM course_progress
		WHERE identity = $1
	`

	rows, err := r.conn.Query(ctx, query, identity)
	if err != nil {
		return nil, classify("progress", "GetAll", err)
	}
	defer rows.Close()

	out := make(map[string]*progress.CourseProgress)
	for rows.Next() {
		var courseID string
		var raw []byte
		if err := rows.Scan(&courseID, &raw); err != nil {
			return nil, classify("progress", "GetAll", err)
		}
		out[courseID] = r.decode(identity, courseID, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("progress", "GetAll", err)
	}
	return out, nil
}

// Identities implements progress.Repository.
func (r *ProgressRepository) Identities(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT identity
		FROM course_progress
		ORDER BY identity
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, classify("progress", "Identities", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("progress", "Identities", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("progress", "Identities", err)
	}
	return ids, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

const upsertProgressSQL = `
	INSERT INTO course_progress (identity, course_id, record, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (identity, course_id) DO UPDATE SET
		record = EXCLUDED.record,
		updated_at = EXCLUDED.updated_at
`

// Save implements progress.Repository. Last write wins.
func (r *ProgressRepository) Save(ctx context.Context, identity string, p *progress.CourseProgress) error {
	raw, err := progress.EncodeRecord(p)
	if err != nil {
		return err
	}
	if _, err := r.conn.Exec(ctx, upsertProgressSQL, identity, p.CourseID, raw, r.now()); err != nil {
		return classify("progress", "Save", err)
	}
	return nil
}

// Delete implements progress.Repository.
func (r *ProgressRepository) Delete(ctx context.Context, identity, courseID string) error {
	query := `DELETE FROM course_progress WHERE identity = $1 AND course_id = $2`

	if _, err := r.conn.Exec(ctx, query, identity, courseID); err != nil {
		return classify("progress", "Delete", err)
	}
	return nil
}

// ReplaceAll implements progress.Repository inside one transaction, so a
// failed import leaves the previous records in place.
func (r *ProgressRepository) ReplaceAll(ctx context.Context, identity string, records map[string]*progress.CourseProgress) error {
	encoded := make(map[string][]byte, len(records))
	for courseID, p := range records {
		raw, err := progress.EncodeRecord(p)
		if err != nil {
			return err
		}
		encoded[courseID] = raw
	}

	now := r.now()
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM course_progress WHERE identity = $1`, identity); err != nil {
			return err
		}
		if len(encoded) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for courseID, raw := range encoded {
			batch.Queue(upsertProgressSQL, identity, courseID, raw, now)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return classify("progress", "ReplaceAll", err)
	}
	return nil
}

func (r *ProgressRepository) decode(identity, courseID string, raw []byte) *progress.CourseProgress {
	p, err := progress.DecodeRecord(courseID, raw)
	if err != nil {
		r.log.Warn("stored progress is corrupted, using empty record",
			logger.Identity(identity), logger.CourseID(courseID), logger.Err(err))
		return progress.NewCourseProgress(courseID)
	}
	return p
}

var _ progress.Repository = (*ProgressRepository)(nil)
