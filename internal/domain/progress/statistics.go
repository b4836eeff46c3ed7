package progress

import "github.com/skillpath/skillpath-hub/internal/domain/catalog"

// Statistics aggregates one learner's progress across courses.
type Statistics struct {
	LessonsCompleted   int `json:"lessonsCompleted"`
	QuizzesPassed      int `json:"quizzesPassed"`
	CertificatesEarned int `json:"certificatesEarned"`
	HoursStudied       int `json:"hoursStudied"`
}

// minutesPerLesson is the study time credited for each completed lesson.
const minutesPerLesson = 30

// ComputeStatistics derives statistics from a learner's records, judging
// quizzes against the thresholds in cat. A course counts as a certificate
// once it reaches 100%.
func ComputeStatistics(records map[string]*CourseProgress, cat *catalog.Catalog) Statistics {
	var s Statistics
	for _, p := range records {
		s.LessonsCompleted += p.CompletedCount()
		s.QuizzesPassed += p.QuizzesPassed(cat)
		if p.IsComplete() {
			s.CertificatesEarned++
		}
	}
	// round(lessons * 0.5), halves up
	s.HoursStudied = (s.LessonsCompleted*minutesPerLesson + 30) / 60
	return s
}

// Summary aggregates every learner on the platform.
type Summary struct {
	TotalUsers              int `json:"totalUsers"`
	TotalLessonsCompleted   int `json:"totalLessonsCompleted"`
	TotalCertificatesEarned int `json:"totalCertificatesEarned"`
	AverageProgress         int `json:"averageProgress"`
}

// SummaryBuilder accumulates learners one at a time so callers can stream
// identities from a store without holding every record in memory.
type SummaryBuilder struct {
	courseIDs     []string
	users         int
	lessons       int
	certificates  int
	progressTotal float64
}

// NewSummaryBuilder averages each learner over courseIDs; courses a learner
// never touched count as 0%.
func NewSummaryBuilder(courseIDs []string) *SummaryBuilder {
	return &SummaryBuilder{courseIDs: courseIDs}
}

// Add folds one learner's records into the summary.
func (b *SummaryBuilder) Add(records map[string]*CourseProgress) {
	stats := ComputeStatistics(records, nil)
	b.users++
	b.lessons += stats.LessonsCompleted
	b.certificates += stats.CertificatesEarned

	if len(b.courseIDs) == 0 {
		return
	}
	sum := 0
	for _, id := range b.courseIDs {
		if p, ok := records[id]; ok {
			sum += p.Percent
		}
	}
	b.progressTotal += float64(sum) / float64(len(b.courseIDs))
}

// Summary returns the accumulated summary. AverageProgress is rounded half up.
func (b *SummaryBuilder) Summary() Summary {
	s := Summary{
		TotalUsers:              b.users,
		TotalLessonsCompleted:   b.lessons,
		TotalCertificatesEarned: b.certificates,
	}
	if b.users > 0 {
		s.AverageProgress = int(b.progressTotal/float64(b.users) + 0.5)
	}
	return s
}
