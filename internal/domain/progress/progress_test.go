package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/skillpath-hub/internal/domain/catalog"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestLessonKey(t *testing.T) {
	k, err := ParseLessonKey("2-7")
	require.NoError(t, err)
	assert.Equal(t, LessonKey{Part: 2, Lesson: 7}, k)
	assert.Equal(t, "2-7", k.String())

	for _, bad := range []string{"", "2", "a-1", "1-b", "0-1", "1-0", "-1-2"} {
		_, err := ParseLessonKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestMarkLesson_IdempotentAndRecomputes(t *testing.T) {
	p := NewCourseProgress("pomodoro")
	assert.True(t, p.IsZero())

	assert.True(t, p.MarkLesson(1, 1, 50, t0))
	assert.Equal(t, 2, p.Percent)

	later := t0.Add(time.Hour)
	assert.False(t, p.MarkLesson(1, 1, 50, later))
	assert.Equal(t, 1, p.CompletedCount())
	assert.Equal(t, 2, p.Percent)
	assert.Equal(t, later, p.LastAccessed)
	assert.True(t, p.IsLessonCompleted(1, 1))
	assert.False(t, p.IsLessonCompleted(1, 2))
}

func TestPercent_RoundsHalfUp(t *testing.T) {
	p := NewCourseProgress("x")
	// 1/8 = 12.5% -> 13
	p.MarkLesson(1, 1, 8, t0)
	assert.Equal(t, 13, p.Percent)

	p = NewCourseProgress("initiation")
	for l := 1; l <= 10; l++ {
		p.MarkLesson(1, l, 10, t0)
	}
	assert.Equal(t, 100, p.Percent)
	assert.True(t, p.IsComplete())
}

func TestSetPartScore(t *testing.T) {
	p := NewCourseProgress("pomodoro")

	require.NoError(t, p.SetPartScore(1, 50, t0))
	require.NoError(t, p.SetPartScore(1, 80, t0))
	s, ok := p.PartScore(1)
	assert.True(t, ok)
	assert.Equal(t, 80, s)
	assert.True(t, p.PartPassed(1, 60))

	err := p.SetPartScore(2, 101, t0)
	assert.ErrorIs(t, err, shared.ErrInvalidScore)
	err = p.SetPartScore(2, -1, t0)
	assert.ErrorIs(t, err, shared.ErrInvalidScore)
	_, ok = p.PartScore(2)
	assert.False(t, ok)
}

func TestResetAndClone(t *testing.T) {
	p := NewCourseProgress("pomodoro")
	p.MarkLesson(1, 1, 50, t0)
	require.NoError(t, p.SetPartScore(1, 90, t0))

	c := p.Clone()
	p.Reset(t0.Add(time.Minute))

	assert.Equal(t, 0, p.CompletedCount())
	assert.Empty(t, p.PartScores)
	assert.Equal(t, 0, p.Percent)

	assert.Equal(t, 1, c.CompletedCount())
	assert.Equal(t, 2, c.Percent)
}

func TestRecordRoundTrip(t *testing.T) {
	p := NewCourseProgress("pomodoro")
	p.MarkLesson(1, 1, 50, t0)
	p.MarkLesson(2, 3, 50, t0)
	require.NoError(t, p.SetPartScore(1, 75, t0))

	data, err := EncodeRecord(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"completedLessons":{"1-1":true,"2-3":true},"partScores":{"1":75},"courseProgress":4,"lastAccessed":"2024-05-01T10:00:00Z"}`, string(data))

	got, err := DecodeRecord("pomodoro", data)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(p, got))
}

func TestDecodeRecord_Corrupted(t *testing.T) {
	for _, data := range []string{`{not json`, `{"completedLessons":{"x":true}}`, `{"partScores":{"1":500}}`} {
		_, err := DecodeRecord("pomodoro", []byte(data))
		assert.ErrorIs(t, err, shared.ErrCorruptedStore, data)
	}

	p, err := DecodeRecord("pomodoro", []byte(`{"completedLessons":{"1-1":false,"1-2":true}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, p.CompletedCount())
}

func TestComputeStatistics(t *testing.T) {
	ini := NewCourseProgress("initiation")
	for l := 1; l <= 10; l++ {
		ini.MarkLesson(1, l, 10, t0)
	}
	require.NoError(t, ini.SetPartScore(1, 60, t0))

	pom := NewCourseProgress("pomodoro")
	pom.MarkLesson(1, 1, 50, t0)
	require.NoError(t, pom.SetPartScore(1, 59, t0))

	stats := ComputeStatistics(map[string]*CourseProgress{"initiation": ini, "pomodoro": pom}, nil)
	assert.Equal(t, Statistics{LessonsCompleted: 11, QuizzesPassed: 1, CertificatesEarned: 1, HoursStudied: 6}, stats)

	assert.Equal(t, Statistics{}, ComputeStatistics(nil, nil))
}

func TestQuizzesPassed_UsesPartThreshold(t *testing.T) {
	quiz := catalog.Quiz{Questions: []catalog.Question{{Prompt: "q", Options: []string{"a", "b"}}}}
	lessons := []catalog.Lesson{{ID: 1, Title: "l"}}
	cat, err := catalog.New([]catalog.Course{{
		ID: "strict", Name: "Strict",
		Parts: []catalog.Part{
			{ID: 1, Title: "one", Lessons: lessons, FinalQuiz: catalog.Quiz{PassThreshold: 80, Questions: quiz.Questions}},
			{ID: 2, Title: "two", Lessons: lessons, FinalQuiz: catalog.Quiz{PassThreshold: 50, Questions: quiz.Questions}},
			{ID: 3, Title: "three", Lessons: lessons, FinalQuiz: quiz},
		},
	}})
	require.NoError(t, err)

	p := NewCourseProgress("strict")
	require.NoError(t, p.SetPartScore(1, 70, t0))
	require.NoError(t, p.SetPartScore(2, 55, t0))
	require.NoError(t, p.SetPartScore(3, 60, t0))

	// 70 < 80 fails part 1; 55 >= 50 passes part 2; part 3 uses the default.
	assert.Equal(t, 2, p.QuizzesPassed(cat))
	assert.Equal(t, 2, p.QuizzesPassed(nil), "default threshold passes parts 1 and 3")

	stats := ComputeStatistics(map[string]*CourseProgress{"strict": p}, cat)
	assert.Equal(t, 2, stats.QuizzesPassed)
	assert.Equal(t, 2, NewSnapshot("0xA", map[string]*CourseProgress{"strict": p}, cat, t0).Statistics.QuizzesPassed)
}

func TestSummaryBuilder(t *testing.T) {
	b := NewSummaryBuilder([]string{"initiation", "pomodoro", "htmlcss"})

	ini := NewCourseProgress("initiation")
	for l := 1; l <= 10; l++ {
		ini.MarkLesson(1, l, 10, t0)
	}
	b.Add(map[string]*CourseProgress{"initiation": ini}) // (100+0+0)/3 = 33.3
	b.Add(map[string]*CourseProgress{})                  // 0

	s := b.Summary()
	assert.Equal(t, 2, s.TotalUsers)
	assert.Equal(t, 10, s.TotalLessonsCompleted)
	assert.Equal(t, 1, s.TotalCertificatesEarned)
	assert.Equal(t, 17, s.AverageProgress)

	assert.Equal(t, Summary{}, NewSummaryBuilder(nil).Summary())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	cat := catalog.Default()

	pom := NewCourseProgress("pomodoro")
	pom.MarkLesson(1, 1, 50, t0)
	pom.MarkLesson(1, 2, 50, t0)
	require.NoError(t, pom.SetPartScore(1, 70, t0))
	records := map[string]*CourseProgress{"pomodoro": pom}

	snap := NewSnapshot("0xA", records, cat, t0)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	parsed, err := ParseSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, Statistics{LessonsCompleted: 2, QuizzesPassed: 1, HoursStudied: 1}, parsed.Statistics)

	restored, err := parsed.Restore("0xA", cat)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(records, restored))
}

func TestSnapshot_IdentityMismatch(t *testing.T) {
	snap := NewSnapshot("0xA", map[string]*CourseProgress{}, nil, t0)
	_, err := snap.Restore("0xB", catalog.Default())
	assert.ErrorIs(t, err, shared.ErrIdentityMismatch)
	assert.True(t, shared.IsForbidden(err))
}

func TestSnapshot_RejectsInvalidContent(t *testing.T) {
	cat := catalog.Default()
	tests := map[string]map[string]Record{
		"unknown course": {"rust": {}},
		"unknown lesson": {"initiation": {CompletedLessons: map[string]bool{"1-11": true}}},
		"unknown part":   {"initiation": {PartScores: map[string]int{"2": 80}}},
		"bad score":      {"pomodoro": {PartScores: map[string]int{"1": 120}}},
		"bad key":        {"pomodoro": {CompletedLessons: map[string]bool{"one-two": true}}},
	}
	for name, courses := range tests {
		t.Run(name, func(t *testing.T) {
			snap := Snapshot{Identity: "0xA", Courses: courses}
			_, err := snap.Restore("0xA", cat)
			assert.ErrorIs(t, err, shared.ErrInvalidSnapshot)
		})
	}
}

func TestSnapshot_RecomputesPercent(t *testing.T) {
	snap := Snapshot{
		Identity: "0xA",
		Courses: map[string]Record{
			"initiation": {CompletedLessons: map[string]bool{"1-1": true}, CourseProgress: 100},
		},
	}
	records, err := snap.Restore("0xA", catalog.Default())
	require.NoError(t, err)
	assert.Equal(t, 10, records["initiation"].Percent)
}

func TestParseSnapshot(t *testing.T) {
	_, err := ParseSnapshot([]byte(`nope`))
	assert.ErrorIs(t, err, shared.ErrInvalidSnapshot)

	_, err = ParseSnapshot([]byte(`{"courses":{}}`))
	assert.ErrorIs(t, err, shared.ErrInvalidSnapshot)

	legacy := `{
		"walletAddress": "0xA",
		"exportedAt": "2024-05-01T10:00:00Z",
		"progress": {"courses": {"htmlcss": {"completedLessons": {"1-1": true}, "partScores": {}, "courseProgress": 2}}}
	}`
	s, err := ParseSnapshot([]byte(legacy))
	require.NoError(t, err)
	assert.Equal(t, "0xA", s.Identity)
	require.Contains(t, s.Courses, "htmlcss")
	assert.True(t, s.Courses["htmlcss"].CompletedLessons["1-1"])
}
