package gating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return NewEngine(catalog.Default())
}

func TestLessonsToShow_MonotonicReveal(t *testing.T) {
	e := newEngine()
	p := progress.NewCourseProgress("pomodoro")

	show, err := e.LessonsToShow(p, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, show)

	prev := show
	for l := 1; l <= 10; l++ {
		p.MarkLesson(1, l, 50, now)
		show, err = e.LessonsToShow(p, 1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, show, prev)
		assert.Equal(t, min(l+1, 10), show)
		prev = show
	}
}

func TestCanAccessPart(t *testing.T) {
	e := newEngine()
	p := progress.NewCourseProgress("pomodoro")

	open, err := e.CanAccessPart(p, 1)
	require.NoError(t, err)
	assert.True(t, open)

	open, err = e.CanAccessPart(p, 2)
	require.NoError(t, err)
	assert.False(t, open, "no score for part 1 yet")

	require.NoError(t, p.SetPartScore(1, 59, now))
	open, _ = e.CanAccessPart(p, 2)
	assert.False(t, open)

	require.NoError(t, p.SetPartScore(1, 60, now))
	open, _ = e.CanAccessPart(p, 2)
	assert.True(t, open)

	// last attempt wins, so a later failing retry closes the part again
	require.NoError(t, p.SetPartScore(1, 40, now))
	open, _ = e.CanAccessPart(p, 2)
	assert.False(t, open)

	open, _ = e.CanAccessPart(p, 3)
	assert.False(t, open)
}

func TestGating_UnknownIDs(t *testing.T) {
	e := newEngine()
	p := progress.NewCourseProgress("pomodoro")

	_, err := e.CanAccessPart(p, 6)
	assert.True(t, shared.IsNotFound(err))
	_, err = e.LessonsToShow(p, 0)
	assert.True(t, shared.IsNotFound(err))
	_, err = e.IsLessonUnlocked(p, 1, 11)
	assert.True(t, shared.IsNotFound(err))

	unknown := progress.NewCourseProgress("rust")
	_, err = e.CompletionPercent(unknown)
	assert.True(t, shared.IsNotFound(err))
	_, err = e.View(unknown)
	assert.True(t, shared.IsNotFound(err))

	assert.True(t, p.IsZero(), "queries never mutate")
}

func TestIsLessonUnlocked(t *testing.T) {
	e := newEngine()
	p := progress.NewCourseProgress("pomodoro")

	ok, err := e.IsLessonUnlocked(p, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = e.IsLessonUnlocked(p, 1, 2)
	assert.False(t, ok)

	p.MarkLesson(1, 1, 50, now)
	ok, _ = e.IsLessonUnlocked(p, 1, 2)
	assert.True(t, ok)

	ok, _ = e.IsLessonUnlocked(p, 2, 1)
	assert.False(t, ok, "part 2 locked until part 1 quiz passes")

	require.NoError(t, p.SetPartScore(1, 100, now))
	ok, _ = e.IsLessonUnlocked(p, 2, 1)
	assert.True(t, ok)
}

func TestCompletionPercent_IgnoresQuizResults(t *testing.T) {
	e := newEngine()
	p := progress.NewCourseProgress("initiation")
	for l := 1; l <= 10; l++ {
		p.MarkLesson(1, l, 10, now)
	}
	require.NoError(t, p.SetPartScore(1, 0, now))

	percent, err := e.CompletionPercent(p)
	require.NoError(t, err)
	assert.Equal(t, 100, percent)
}

func TestScenario_ThreeLessonsOfFifty(t *testing.T) {
	e := newEngine()
	p := progress.NewCourseProgress("pomodoro")
	for l := 1; l <= 3; l++ {
		p.MarkLesson(1, l, 50, now)
	}

	show, _ := e.LessonsToShow(p, 1)
	assert.Equal(t, 4, show)
	percent, _ := e.CompletionPercent(p)
	assert.Equal(t, 6, percent)
	open, _ := e.CanAccessPart(p, 2)
	assert.False(t, open)
}

func TestView(t *testing.T) {
	e := newEngine()
	p := progress.NewCourseProgress("pomodoro")
	p.MarkLesson(1, 1, 50, now)
	p.MarkLesson(1, 2, 50, now)
	require.NoError(t, p.SetPartScore(1, 80, now))

	view, err := e.View(p)
	require.NoError(t, err)

	assert.Equal(t, "pomodoro", view.CourseID)
	assert.Equal(t, "Pomodoro Mastery", view.Name)
	assert.Equal(t, 4, view.Percent)
	assert.False(t, view.Complete)
	require.Len(t, view.Parts, 5)

	first := view.Parts[0]
	assert.True(t, first.Accessible)
	assert.Equal(t, 3, first.LessonsToShow)
	assert.Equal(t, 2, first.Completed)
	assert.Equal(t, 10, first.Total)
	require.NotNil(t, first.Score)
	assert.Equal(t, 80, *first.Score)
	assert.True(t, first.Passed)

	second := view.Parts[1]
	assert.True(t, second.Accessible)
	assert.Nil(t, second.Score)
	assert.False(t, view.Parts[2].Accessible)
}
