package command

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/skillpath-hub/config"
	"github.com/skillpath/skillpath-hub/internal/application/query"
	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/gating"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/internal/infrastructure/persistence/memory"
)

const learner = "0xLearner"

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// flakyLedger fails the first n claims with a transient error.
type flakyLedger struct {
	credential.Ledger
	mu       sync.Mutex
	failures int
}

func (l *flakyLedger) Claim(ctx context.Context, owner, courseID string) (credential.Credential, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return credential.Credential{}, shared.WrapError("credential", "Claim", shared.ErrServiceUnavailable, "connection reset", nil)
	}
	l.mu.Unlock()
	return l.Ledger.Claim(ctx, owner, courseID)
}

type fixture struct {
	catalog *catalog.Catalog
	engine  *gating.Engine
	store   *memory.ProgressStore
	ledger  credential.Ledger
	flags   *config.FeatureFlags
	events  *recordingPublisher

	mark     *MarkLessonCompleteHandler
	scores   *UpdatePartScoreHandler
	quiz     *SubmitPartQuizHandler
	answer   *AnswerLessonHandler
	reset    *ResetCourseHandler
	imports  *ImportProgressHandler
	claim    *ClaimCredentialHandler
	registry *CourseRegistryHandler
	soul     *SoulboundHandler
	progress *query.GetCourseProgressHandler
	export   *query.ExportProgressHandler
}

func newFixture(t *testing.T, ledger credential.Ledger) *fixture {
	t.Helper()
	f := &fixture{
		catalog: catalog.Default(),
		store:   memory.NewProgressStore(nil),
		flags:   config.NewFeatureFlags(),
		events:  &recordingPublisher{},
	}
	if ledger == nil {
		ledger = memory.NewLedger()
	}
	f.ledger = ledger
	f.engine = gating.NewEngine(f.catalog)

	f.mark = NewMarkLessonCompleteHandler(f.store, f.engine, f.flags, f.events)
	f.scores = NewUpdatePartScoreHandler(f.store, f.engine, f.events)
	f.quiz = NewSubmitPartQuizHandler(f.scores, f.store, f.engine, f.flags)
	f.answer = NewAnswerLessonHandler(f.catalog, f.mark)
	f.reset = NewResetCourseHandler(f.store, f.catalog, f.events)
	f.imports = NewImportProgressHandler(f.store, f.catalog, f.flags, f.events)
	f.claim = NewClaimCredentialHandler(f.ledger, query.NewCheckEligibilityHandler(f.store, f.ledger, f.engine),
		f.flags, f.events, nil, ClaimCredentialHandlerConfig{})
	f.registry = NewCourseRegistryHandler(f.ledger, "0xOwner", f.events)
	f.soul = NewSoulboundHandler(f.ledger)
	f.progress = query.NewGetCourseProgressHandler(f.store, f.engine)
	f.export = query.NewExportProgressHandler(f.store, f.catalog)

	_, err := f.registry.RegisterCatalog(context.Background(), f.catalog, "ipfs://trophies/")
	require.NoError(t, err)
	return f
}

func (f *fixture) completeCourse(t *testing.T, courseID string) {
	t.Helper()
	course, err := f.catalog.Course(courseID)
	require.NoError(t, err)
	for _, part := range course.Parts {
		for _, lesson := range part.Lessons {
			_, err := f.mark.Handle(context.Background(), MarkLessonCompleteCommand{
				Identity: learner, CourseID: courseID, PartID: part.ID, LessonID: lesson.ID,
			})
			require.NoError(t, err)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESS
// ═══════════════════════════════════════════════════════════════════════════

func TestFreshIdentityHasZeroProgress(t *testing.T) {
	f := newFixture(t, nil)
	dto, err := f.progress.Handle(context.Background(), query.GetCourseProgressQuery{Identity: learner, CourseID: "pomodoro"})
	require.NoError(t, err)

	assert.Empty(t, dto.Record.CompletedLessons)
	assert.Empty(t, dto.Record.PartScores)
	assert.Equal(t, 0, dto.Record.CourseProgress)
	assert.True(t, dto.View.Parts[0].Accessible)
	assert.False(t, dto.View.Parts[1].Accessible)

	_, err = f.progress.Handle(context.Background(), query.GetCourseProgressQuery{Identity: learner, CourseID: "nope"})
	assert.True(t, shared.IsNotFound(err))
}

func TestMarkLessonComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, LessonID: 1})
	require.NoError(t, err)
	assert.True(t, res.NewlyCompleted)
	assert.Equal(t, 2, res.Progress.Percent)

	rec := progress.ToRecord(res.Progress)
	assert.Equal(t, map[string]bool{"1-1": true}, rec.CompletedLessons)

	again, err := f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, LessonID: 1})
	require.NoError(t, err)
	assert.False(t, again.NewlyCompleted)
	assert.Equal(t, 2, again.Progress.Percent)
	assert.Equal(t, []shared.EventType{shared.EventLessonCompleted}, f.events.types()[len(f.events.types())-1:])

	_, err = f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: learner, CourseID: "pomodoro", PartID: 6, LessonID: 1})
	assert.True(t, shared.IsNotFound(err))
	_, err = f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: "", CourseID: "pomodoro", PartID: 1, LessonID: 1})
	assert.True(t, shared.IsValidation(err))
}

func TestMarkLessonComplete_SequentialEnforcement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.flags.EnableFeature(config.FeatureGatingEnforceSequential))

	_, err := f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, LessonID: 3})
	assert.ErrorIs(t, err, shared.ErrLessonLocked)

	_, err = f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, LessonID: 1})
	require.NoError(t, err)
	_, err = f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, LessonID: 2})
	require.NoError(t, err)

	_, err = f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: learner, CourseID: "pomodoro", PartID: 2, LessonID: 1})
	assert.ErrorIs(t, err, shared.ErrLessonLocked)

	_, err = f.quiz.Handle(ctx, SubmitPartQuizCommand{Identity: learner, CourseID: "pomodoro", PartID: 2})
	assert.ErrorIs(t, err, shared.ErrLessonLocked)
}

func TestPartScoreGatesNextPart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.scores.Handle(ctx, UpdatePartScoreCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, Score: 70})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.True(t, res.NextPartUnlocked)

	res, err = f.scores.Handle(ctx, UpdatePartScoreCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, Score: 50})
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.False(t, res.NextPartUnlocked)
	assert.Equal(t, 50, res.Progress.PartScores[1])

	res, err = f.scores.Handle(ctx, UpdatePartScoreCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, Score: 60})
	require.NoError(t, err)
	assert.True(t, res.NextPartUnlocked)

	_, err = f.scores.Handle(ctx, UpdatePartScoreCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, Score: 101})
	assert.ErrorIs(t, err, shared.ErrInvalidScore)
	_, err = f.scores.Handle(ctx, UpdatePartScoreCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, Score: -1})
	assert.ErrorIs(t, err, shared.ErrInvalidScore)
	_, err = f.scores.Handle(ctx, UpdatePartScoreCommand{Identity: learner, CourseID: "pomodoro", PartID: 9, Score: 80})
	assert.True(t, shared.IsNotFound(err))
}

func TestSubmitPartQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	part, err := f.catalog.Part("pomodoro", 1)
	require.NoError(t, err)
	answers := make([]int, len(part.FinalQuiz.Questions))
	for i, q := range part.FinalQuiz.Questions {
		answers[i] = q.Answer
	}

	res, err := f.quiz.Handle(ctx, SubmitPartQuizCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, Answers: answers})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.True(t, res.Passed)

	res, err = f.quiz.Handle(ctx, SubmitPartQuizCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, Answers: nil})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	assert.False(t, res.NextPartUnlocked)
}

func TestAnswerLesson(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lesson, err := f.catalog.Lesson("pomodoro", 1, 1)
	require.NoError(t, err)
	require.NotNil(t, lesson.Quiz)

	wrong := (lesson.Quiz.Answer + 1) % len(lesson.Quiz.Options)
	res, err := f.answer.Handle(ctx, AnswerLessonCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, LessonID: 1, Answer: wrong})
	require.NoError(t, err)
	assert.False(t, res.Correct)
	p, err := f.store.Get(ctx, learner, "pomodoro")
	require.NoError(t, err)
	assert.True(t, p.IsZero())

	res, err = f.answer.Handle(ctx, AnswerLessonCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, LessonID: 1, Answer: lesson.Quiz.Answer})
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.True(t, res.Mark.NewlyCompleted)
}

func TestResetCourse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, LessonID: 1})
	require.NoError(t, err)

	_, err = f.reset.Handle(ctx, ResetCourseCommand{Identity: learner, CourseID: "pomodoro"})
	assert.ErrorIs(t, err, shared.ErrConfirmationRequired)

	p, err := f.store.Get(ctx, learner, "pomodoro")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CompletedCount())

	p, err = f.reset.Handle(ctx, ResetCourseCommand{Identity: learner, CourseID: "pomodoro", Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, 0, p.CompletedCount())
	assert.Equal(t, 0, p.Percent)
	assert.Contains(t, f.events.types(), shared.EventProgressReset)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.mark.Handle(ctx, MarkLessonCompleteCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, LessonID: 1})
	require.NoError(t, err)
	_, err = f.scores.Handle(ctx, UpdatePartScoreCommand{Identity: learner, CourseID: "pomodoro", PartID: 1, Score: 80})
	require.NoError(t, err)

	snap, err := f.export.Handle(ctx, query.ExportProgressQuery{Identity: learner})
	require.NoError(t, err)
	doc, err := json.Marshal(snap)
	require.NoError(t, err)

	other := newFixture(t, nil)
	res, err := other.imports.Handle(ctx, ImportProgressCommand{Identity: learner, Document: doc})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Courses)
	assert.Equal(t, 1, res.Statistics.QuizzesPassed)

	got, err := other.store.Get(ctx, learner, "pomodoro")
	require.NoError(t, err)
	assert.True(t, got.IsLessonCompleted(1, 1))
	assert.Equal(t, 80, got.PartScores[1])
	assert.Equal(t, 2, got.Percent)

	_, err = other.imports.Handle(ctx, ImportProgressCommand{Identity: "0xSomeoneElse", Document: doc})
	assert.ErrorIs(t, err, shared.ErrIdentityMismatch)

	_, err = other.imports.Handle(ctx, ImportProgressCommand{Identity: learner, Document: []byte("{")})
	assert.ErrorIs(t, err, shared.ErrInvalidSnapshot)

	require.NoError(t, other.flags.DisableFeature(config.FeatureProgressImport))
	_, err = other.imports.Handle(ctx, ImportProgressCommand{Identity: learner, Document: doc})
	assert.ErrorIs(t, err, shared.ErrFeatureDisabled)
}

// ═══════════════════════════════════════════════════════════════════════════
// CREDENTIALS
// ═══════════════════════════════════════════════════════════════════════════

func TestClaimFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.claim.Handle(ctx, ClaimCredentialCommand{Identity: learner, CourseID: "initiation"})
	assert.ErrorIs(t, err, shared.ErrNotEligible)

	f.completeCourse(t, "initiation")

	res, err := f.claim.Handle(ctx, ClaimCredentialCommand{Identity: learner, CourseID: "initiation"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Credential.TokenID)
	assert.Equal(t, 1, res.Attempts)

	claimed, err := f.ledger.HasClaimed(ctx, learner, "initiation")
	require.NoError(t, err)
	assert.True(t, claimed)

	_, err = f.claim.Handle(ctx, ClaimCredentialCommand{Identity: learner, CourseID: "initiation"})
	assert.ErrorIs(t, err, shared.ErrAlreadyClaimed)
	assert.Contains(t, f.events.types(), shared.EventCredentialClaimed)
}

func TestClaimWithoutPassingQuizzes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.completeCourse(t, "pomodoro")

	_, err := f.claim.Handle(ctx, ClaimCredentialCommand{Identity: learner, CourseID: "pomodoro"})
	assert.NoError(t, err, "completion is counted by lessons only")
}

func TestClaimRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyLedger{Ledger: memory.NewLedger(), failures: 2}
	f := newFixture(t, flaky)
	f.completeCourse(t, "initiation")

	res, err := f.claim.Handle(ctx, ClaimCredentialCommand{Identity: learner, CourseID: "initiation"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, uint64(0), res.Credential.TokenID)
}

func TestClaimUnregisteredCourse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.ledger = memory.NewLedger()
	f.claim = NewClaimCredentialHandler(f.ledger, query.NewCheckEligibilityHandler(f.store, f.ledger, f.engine),
		f.flags, f.events, nil, ClaimCredentialHandlerConfig{})
	f.completeCourse(t, "initiation")

	_, err := f.claim.Handle(ctx, ClaimCredentialCommand{Identity: learner, CourseID: "initiation"})
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
}

func TestClaimsDisabled(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.flags.DisableFeature(config.FeatureLedgerClaims))
	_, err := f.claim.Handle(context.Background(), ClaimCredentialCommand{Identity: learner, CourseID: "initiation"})
	assert.ErrorIs(t, err, shared.ErrFeatureDisabled)
}

func TestSoulboundHandler(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.completeCourse(t, "initiation")
	res, err := f.claim.Handle(ctx, ClaimCredentialCommand{Identity: learner, CourseID: "initiation"})
	require.NoError(t, err)
	id := res.Credential.TokenID

	err = f.soul.Transfer(ctx, TransferCredentialCommand{From: learner, To: "0xOther", TokenID: id})
	assert.ErrorIs(t, err, shared.ErrSoulboundViolation)
	err = f.soul.Transfer(ctx, TransferCredentialCommand{From: learner, To: "0xOther", TokenID: id, Safe: true})
	assert.ErrorIs(t, err, shared.ErrSoulboundViolation)
	err = f.soul.Approve(ctx, ApproveCredentialCommand{Caller: learner, Operator: "0xOther", TokenID: id})
	assert.True(t, shared.IsSoulbound(err))
	err = f.soul.SetApprovalForAll(ctx, SetApprovalForAllCommand{Owner: learner, Operator: "0xOther", Approved: true})
	assert.True(t, shared.IsSoulbound(err))

	err = f.soul.Transfer(ctx, TransferCredentialCommand{From: learner, To: "0xOther", TokenID: 42})
	assert.ErrorIs(t, err, shared.ErrSoulboundViolation, "unknown tokens are refused the same way")
	assert.False(t, shared.IsNotFound(err))
	err = f.soul.Approve(ctx, ApproveCredentialCommand{Caller: "0xStranger", Operator: "0xOther", TokenID: 42})
	assert.True(t, shared.IsSoulbound(err))
	err = f.soul.SetApprovalForAll(ctx, SetApprovalForAllCommand{Operator: "0xOther", Approved: true})
	assert.True(t, shared.IsSoulbound(err))

	cred, err := f.ledger.Credential(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, learner, cred.Owner)
}

func TestCourseRegistry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.registry.AddCourse(ctx, AddCourseCommand{Caller: "0xMallory", Course: credential.Course{ID: "rust", Name: "Rust"}})
	assert.ErrorIs(t, err, shared.ErrNotRegistryOwner)

	c, err := f.registry.AddCourse(ctx, AddCourseCommand{Caller: "0xOwner", Course: credential.Course{ID: "rust", Name: "Rust"}})
	require.NoError(t, err)
	assert.True(t, c.Exists)
	assert.Contains(t, f.events.types(), shared.EventCourseRegistered)

	_, err = f.registry.AddCourse(ctx, AddCourseCommand{Caller: "0xOwner", Course: credential.Course{ID: "rust", Name: "Rust"}})
	assert.ErrorIs(t, err, shared.ErrCourseExists)

	c, err = f.registry.UpdateCourse(ctx, UpdateCourseCommand{Caller: "0xOwner", Course: credential.Course{ID: "rust", Name: "Rust 2"}})
	require.NoError(t, err)
	assert.Equal(t, "Rust 2", c.Name)

	_, err = f.registry.UpdateCourse(ctx, UpdateCourseCommand{System: true, Course: credential.Course{ID: "go", Name: "Go"}})
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)

	seed, err := f.registry.RegisterCatalog(ctx, f.catalog, "")
	require.NoError(t, err)
	assert.Empty(t, seed.Added)
	assert.ElementsMatch(t, f.catalog.CourseIDs(), seed.Skipped)
}
