package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/gating"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/internal/infrastructure/persistence/memory"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type env struct {
	cat    *catalog.Catalog
	engine *gating.Engine
	store  *memory.ProgressStore
	ledger *memory.Ledger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cat := catalog.Default()
	e := &env{
		cat:    cat,
		engine: gating.NewEngine(cat),
		store:  memory.NewProgressStore(nil),
		ledger: memory.NewLedger().WithClock(func() time.Time { return t0 }),
	}
	require.NoError(t, e.ledger.AddCourse(context.Background(), credential.Course{
		ID: "initiation", Name: "Initiation", ImageURI: "ipfs://init.png",
	}))
	return e
}

// saveLessons stores a record with the first n lessons of the course done.
func (e *env) saveLessons(t *testing.T, identity, courseID string, n int) {
	t.Helper()
	course, err := e.cat.Course(courseID)
	require.NoError(t, err)
	total := course.TotalLessons()
	p := progress.NewCourseProgress(courseID)
	done := 0
	for _, part := range course.Parts {
		for _, lesson := range part.Lessons {
			if done == n {
				break
			}
			p.MarkLesson(part.ID, lesson.ID, total, t0)
			done++
		}
	}
	require.NoError(t, e.store.Save(context.Background(), identity, p))
}

func TestCheckEligibility(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h := NewCheckEligibilityHandler(e.store, e.ledger, e.engine)

	dto, err := h.Handle(ctx, CheckEligibilityQuery{Identity: "0xA", CourseID: "initiation"})
	require.NoError(t, err)
	assert.False(t, dto.Eligible)
	assert.Equal(t, ReasonNotCompleted, dto.Reason)
	assert.True(t, dto.CourseRegistered)

	e.saveLessons(t, "0xA", "initiation", 10)
	dto, err = h.Handle(ctx, CheckEligibilityQuery{Identity: "0xA", CourseID: "initiation"})
	require.NoError(t, err)
	assert.True(t, dto.Eligible)
	assert.Empty(t, dto.Reason)
	assert.Equal(t, 100, dto.Percent)

	// the check itself must not mint anything
	supply, err := e.ledger.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Zero(t, supply)

	_, err = e.ledger.Claim(ctx, "0xA", "initiation")
	require.NoError(t, err)
	dto, err = h.Handle(ctx, CheckEligibilityQuery{Identity: "0xA", CourseID: "initiation"})
	require.NoError(t, err)
	assert.False(t, dto.Eligible)
	assert.True(t, dto.AlreadyClaimed)
	assert.Equal(t, ReasonAlreadyClaimed, dto.Reason)
}

func TestCheckEligibility_UnregisteredAndUnknown(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h := NewCheckEligibilityHandler(e.store, e.ledger, e.engine)

	e.saveLessons(t, "0xA", "pomodoro", 50)
	dto, err := h.Handle(ctx, CheckEligibilityQuery{Identity: "0xA", CourseID: "pomodoro"})
	require.NoError(t, err)
	assert.True(t, dto.Eligible)
	assert.False(t, dto.CourseRegistered)
	assert.Equal(t, ReasonCourseNotRegistered, dto.Reason)

	_, err = h.Handle(ctx, CheckEligibilityQuery{Identity: "0xA", CourseID: "unknown"})
	assert.True(t, shared.IsNotFound(err))
	_, err = h.Handle(ctx, CheckEligibilityQuery{Identity: " ", CourseID: "pomodoro"})
	assert.True(t, shared.IsValidation(err))
}

func TestStatisticsAndSummary(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	e.saveLessons(t, "0xA", "initiation", 10)
	e.saveLessons(t, "0xA", "pomodoro", 5)
	e.saveLessons(t, "0xB", "pomodoro", 25)

	stats, err := NewGetStatisticsHandler(e.store, e.cat).Handle(ctx, GetStatisticsQuery{Identity: "0xA"})
	require.NoError(t, err)
	assert.Equal(t, progress.Statistics{LessonsCompleted: 15, CertificatesEarned: 1, HoursStudied: 8}, stats)

	sum, err := NewGetSummaryHandler(e.store, e.cat).Handle(ctx, GetSummaryQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalUsers)
	assert.Equal(t, 40, sum.TotalLessonsCompleted)
	assert.Equal(t, 1, sum.TotalCertificatesEarned)
	// 0xA: (100 + 10 + 0) / 3 = 36.67, 0xB: (0 + 50 + 0) / 3 = 16.67
	assert.Equal(t, 27, sum.AverageProgress)
}

func TestExportProgress(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.saveLessons(t, "0xA", "pomodoro", 3)

	snap, err := NewExportProgressHandler(e.store, e.cat).Handle(ctx, ExportProgressQuery{Identity: "0xA"})
	require.NoError(t, err)
	assert.Equal(t, "0xA", snap.Identity)
	require.Contains(t, snap.Courses, "pomodoro")
	assert.Len(t, snap.Courses["pomodoro"].CompletedLessons, 3)
	assert.Equal(t, 3, snap.Statistics.LessonsCompleted)

	empty, err := NewExportProgressHandler(e.store, e.cat).Handle(ctx, ExportProgressQuery{Identity: "0xNew"})
	require.NoError(t, err)
	assert.Empty(t, empty.Courses)
}

func TestCredentialQueries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	c, err := e.ledger.Claim(ctx, "0xA", "initiation")
	require.NoError(t, err)

	creds, err := NewGetUserCredentialsHandler(e.ledger).Handle(ctx, GetUserCredentialsQuery{Identity: "0xA"})
	require.NoError(t, err)
	require.Len(t, creds, 1)

	meta, err := NewGetCredentialMetadataHandler(e.ledger).Handle(ctx, GetCredentialMetadataQuery{TokenID: c.TokenID})
	require.NoError(t, err)
	assert.Equal(t, "SkillPath Trophy - Initiation", meta.Metadata.Name)
	assert.Equal(t, "ipfs://init.png", meta.Metadata.Image)
	assert.True(t, strings.HasPrefix(meta.TokenURI, credential.TokenURIPrefix))
	assert.True(t, strings.HasPrefix(meta.Digest, "0x"))

	_, err = NewGetCredentialMetadataHandler(e.ledger).Handle(ctx, GetCredentialMetadataQuery{TokenID: 7})
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)

	reads := NewLedgerReadHandler(e.ledger)
	owner, err := reads.OwnerOf(ctx, c.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "0xA", owner)

	stats, err := reads.Stats(ctx, "0xA")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalSupply)
	require.NotNil(t, stats.Balance)
	assert.Equal(t, 1, *stats.Balance)

	assert.Empty(t, reads.GetApproved(ctx, c.TokenID))
	assert.Empty(t, reads.GetApproved(ctx, 999), "unknown tokens have no approved party either")
	assert.False(t, reads.IsApprovedForAll(ctx, "0xA", "0xB"))

	_, err = reads.CourseEntry(ctx, "pomodoro")
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
}
