package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/pkg/retry"
)

// openTestDB connects to TEST_DATABASE_URL, migrates and empties the
// tables. Tests using it are skipped when the variable is unset.
func openTestDB(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	conn, err := NewConnection(ctx, DefaultConfig(url))
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)

	_, err = conn.Exec(ctx, `TRUNCATE course_progress, credentials, courses`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `UPDATE ledger_counter SET next_id = 0`)
	require.NoError(t, err)
	return conn
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsTransient(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsTransient(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsTransient(ErrConnectionClosed))
	assert.False(t, IsTransient(errors.New("boom")))

	err := classify("credential", "Claim", &pgconn.PgError{Code: "40001"})
	assert.True(t, shared.IsRetryable(err))
	assert.Nil(t, classify("credential", "Claim", nil))
}

func TestNewConnection_MarksErrorsForRetrier(t *testing.T) {
	ctx := context.Background()

	_, err := NewConnection(ctx, DefaultConfig("postgres://localhost:notaport/db"))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))

	_, err = NewConnection(ctx, DefaultConfig("postgres://u:p@127.0.0.1:1/db?connect_timeout=1&sslmode=disable"))
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))
	assert.False(t, retry.IsPermanent(err))
}

func TestGetMigrations_Ordered(t *testing.T) {
	migs := GetMigrations()
	require.NotEmpty(t, migs)
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

func TestProgressRepository(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewProgressRepository(conn, nil)

	p, err := repo.Get(ctx, "0xA", "pomodoro")
	require.NoError(t, err)
	assert.Empty(t, p.CompletedLessons)

	p.MarkLesson(1, 1, 50, p.LastAccessed)
	require.NoError(t, repo.Save(ctx, "0xA", p))

	got, err := repo.Get(ctx, "0xA", "pomodoro")
	require.NoError(t, err)
	assert.Len(t, got.CompletedLessons, 1)
	assert.Equal(t, 2, got.Percent)

	_, err = conn.Exec(ctx,
		`INSERT INTO course_progress (identity, course_id, record) VALUES ($1, $2, $3)`,
		"0xA", "initiation", `{"completedLessons": {"x": true}}`)
	require.NoError(t, err)
	broken, err := repo.Get(ctx, "0xA", "initiation")
	require.NoError(t, err)
	assert.Empty(t, broken.CompletedLessons)

	ids, err := repo.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xA"}, ids)

	fresh := progress.NewCourseProgress("lead-gen")
	require.NoError(t, repo.ReplaceAll(ctx, "0xA", map[string]*progress.CourseProgress{"lead-gen": fresh}))
	all, err := repo.GetAll(ctx, "0xA")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "lead-gen")

	require.NoError(t, repo.Delete(ctx, "0xA", "lead-gen"))
	ids, err = repo.Identities(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCredentialLedger(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	l := NewCredentialLedger(conn)

	course := credential.Course{ID: "initiation", Name: "Initiation", ImageURI: "ipfs://i.png"}
	require.NoError(t, l.AddCourse(ctx, course))
	assert.ErrorIs(t, l.AddCourse(ctx, course), shared.ErrCourseExists)

	_, err := l.Claim(ctx, "0xA", "pomodoro")
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)

	c, err := l.Claim(ctx, "0xA", "initiation")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.TokenID)
	assert.Equal(t, "Initiation", c.CourseName)

	_, err = l.Claim(ctx, "0xA", "initiation")
	assert.ErrorIs(t, err, shared.ErrAlreadyClaimed)

	c2, err := l.Claim(ctx, "0xB", "initiation")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c2.TokenID)

	course.Name = "Initiation v2"
	require.NoError(t, l.UpdateCourse(ctx, course))
	got, err := l.Credential(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Initiation", got.CourseName)

	_, err = l.Credential(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)

	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), supply)

	assert.ErrorIs(t, l.Transfer(ctx, "0xA", "0xB", 0), shared.ErrSoulboundViolation)
}

func TestCredentialLedger_ConcurrentClaimsMintOnce(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	l := NewCredentialLedger(conn)
	require.NoError(t, l.AddCourse(ctx, credential.Course{ID: "initiation", Name: "Initiation"}))

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Claim(ctx, "0xA", "initiation")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			assert.ErrorIs(t, err, shared.ErrAlreadyClaimed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), supply)
}
