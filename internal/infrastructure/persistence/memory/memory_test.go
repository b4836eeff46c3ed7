package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESS STORE
// ═══════════════════════════════════════════════════════════════════════════

func TestProgressStore_GetMissingReturnsZero(t *testing.T) {
	s := NewProgressStore(nil)
	p, err := s.Get(context.Background(), "0xA", "pomodoro")
	require.NoError(t, err)
	assert.True(t, p.IsZero())
	assert.Equal(t, "pomodoro", p.CourseID)
}

func TestProgressStore_SaveIsolatesCaller(t *testing.T) {
	ctx := context.Background()
	s := NewProgressStore(nil)

	p := progress.NewCourseProgress("pomodoro")
	p.MarkLesson(1, 1, 50, t0)
	require.NoError(t, s.Save(ctx, "0xA", p))

	p.MarkLesson(1, 2, 50, t0)

	got, err := s.Get(ctx, "0xA", "pomodoro")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedCount())
	assert.Equal(t, 2, got.Percent)
	assert.True(t, got.LastAccessed.Equal(t0))
}

func TestProgressStore_CorruptedRecordDegradesToZero(t *testing.T) {
	ctx := context.Background()
	s := NewProgressStore(nil)
	s.PutRaw("0xA", "pomodoro", []byte("{not json"))

	p, err := s.Get(ctx, "0xA", "pomodoro")
	require.NoError(t, err)
	assert.True(t, p.IsZero())

	all, err := s.GetAll(ctx, "0xA")
	require.NoError(t, err)
	require.Contains(t, all, "pomodoro")
	assert.True(t, all["pomodoro"].IsZero())
}

func TestProgressStore_DeleteAndIdentities(t *testing.T) {
	ctx := context.Background()
	s := NewProgressStore(nil)

	for _, id := range []string{"0xB", "0xA"} {
		require.NoError(t, s.Save(ctx, id, progress.NewCourseProgress("pomodoro")))
	}
	ids, err := s.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xA", "0xB"}, ids)

	require.NoError(t, s.Delete(ctx, "0xA", "pomodoro"))
	require.NoError(t, s.Delete(ctx, "0xA", "pomodoro"))

	ids, err = s.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0xB"}, ids)
}

func TestProgressStore_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	s := NewProgressStore(nil)
	require.NoError(t, s.Save(ctx, "0xA", progress.NewCourseProgress("htmlcss")))

	p := progress.NewCourseProgress("pomodoro")
	p.MarkLesson(1, 1, 50, t0)
	require.NoError(t, s.ReplaceAll(ctx, "0xA", map[string]*progress.CourseProgress{"pomodoro": p}))

	all, err := s.GetAll(ctx, "0xA")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 1, all["pomodoro"].CompletedCount())

	require.NoError(t, s.ReplaceAll(ctx, "0xA", nil))
	ids, err := s.Identities(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// ═══════════════════════════════════════════════════════════════════════════
// LEDGER
// ═══════════════════════════════════════════════════════════════════════════

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger().WithClock(func() time.Time { return t0 })
	require.NoError(t, l.AddCourse(context.Background(), credential.Course{ID: "pomodoro", Name: "Pomodoro Mastery", ImageURI: "ipfs://p"}))
	return l
}

func TestLedger_AddCourse(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	err := l.AddCourse(ctx, credential.Course{ID: "pomodoro", Name: "Again"})
	assert.ErrorIs(t, err, shared.ErrCourseExists)

	c, err := l.Course(ctx, "pomodoro")
	require.NoError(t, err)
	assert.True(t, c.Exists)
	assert.Equal(t, "Pomodoro Mastery", c.Name)

	_, err = l.Course(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)

	err = l.UpdateCourse(ctx, credential.Course{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
}

func TestLedger_ClaimSequence(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	_, err := l.Claim(ctx, "0xA", "unknown")
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)

	c, err := l.Claim(ctx, "0xA", "pomodoro")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.TokenID)
	assert.Equal(t, "Pomodoro Mastery", c.CourseName)
	assert.True(t, c.IssuedAt.Equal(t0))

	_, err = l.Claim(ctx, "0xA", "pomodoro")
	assert.ErrorIs(t, err, shared.ErrAlreadyClaimed)

	c2, err := l.Claim(ctx, "0xB", "pomodoro")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c2.TokenID, "failed claims must not consume token ids")

	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), supply)

	claimed, err := l.HasClaimed(ctx, "0xA", "pomodoro")
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = l.HasClaimed(ctx, "0xC", "pomodoro")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestLedger_CourseRenameKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	c, err := l.Claim(ctx, "0xA", "pomodoro")
	require.NoError(t, err)
	require.NoError(t, l.UpdateCourse(ctx, credential.Course{ID: "pomodoro", Name: "Pomodoro II"}))

	got, err := l.Credential(ctx, c.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "Pomodoro Mastery", got.CourseName)

	_, err = l.Credential(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrTokenNotFound)
}

func TestLedger_CredentialsOfNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := t0
	l := NewLedger().WithClock(func() time.Time { return now })
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.AddCourse(ctx, credential.Course{ID: id, Name: id}))
	}

	_, err := l.Claim(ctx, "0xA", "a")
	require.NoError(t, err)
	now = t0.Add(time.Hour)
	_, err = l.Claim(ctx, "0xA", "b")
	require.NoError(t, err)
	now = t0
	_, err = l.Claim(ctx, "0xA", "c")
	require.NoError(t, err)

	creds, err := l.CredentialsOf(ctx, "0xA")
	require.NoError(t, err)
	require.Len(t, creds, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{creds[0].CourseID, creds[1].CourseID, creds[2].CourseID})

	bal, err := l.BalanceOf(ctx, "0xA")
	require.NoError(t, err)
	assert.Equal(t, 3, bal)

	empty, err := l.CredentialsOf(ctx, "0xZ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedger_SoulboundOperations(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	c, err := l.Claim(ctx, "0xA", "pomodoro")
	require.NoError(t, err)

	assert.ErrorIs(t, l.Transfer(ctx, "0xA", "0xB", c.TokenID), shared.ErrSoulboundViolation)
	assert.ErrorIs(t, l.Approve(ctx, "0xB", c.TokenID), shared.ErrSoulboundViolation)
	assert.Empty(t, l.GetApproved(ctx, c.TokenID))

	got, err := l.Credential(ctx, c.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "0xA", got.Owner)
}

func TestLedger_ConcurrentClaimsMintOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	l := newLedger(t)

	const claimers = 64
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		dupes     atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.Claim(ctx, "0xA", "pomodoro")
			switch {
			case err == nil:
				successes.Add(1)
			case shared.IsAlreadyExists(err):
				dupes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(claimers-1), dupes.Load())

	supply, err := l.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), supply)
}

func TestLedger_ConcurrentDistinctOwners(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	l := newLedger(t)

	const owners = 32
	ids := make(chan uint64, owners)
	var wg sync.WaitGroup
	for i := 0; i < owners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := l.Claim(ctx, fmt.Sprintf("0x%02d", i), "pomodoro")
			if err == nil {
				ids <- c.TokenID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		assert.False(t, seen[id], "token id %d issued twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, owners)
	for i := uint64(0); i < owners; i++ {
		assert.True(t, seen[i])
	}
}
