package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillpath/skillpath-hub/internal/application/command"
	"github.com/skillpath/skillpath-hub/internal/application/query"
	"github.com/skillpath/skillpath-hub/internal/domain/credential"
	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROOT & HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(c *gin.Context) {
	s.writeJSON(c, http.StatusOK, gin.H{
		"name":    "SkillPath Hub API",
		"version": s.config.Version,
	})
}

// handleHealth reports every component; a failing component yields 503.
func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health == nil {
		s.writeJSON(c, http.StatusOK, gin.H{"status": "healthy", "uptime": s.Uptime().String()})
		return
	}

	components, err := s.deps.Health(c.Request.Context())
	body := gin.H{"status": "healthy", "components": components, "uptime": s.Uptime().String()}
	if err != nil {
		body["status"] = "unhealthy"
		s.writeJSON(c, http.StatusServiceUnavailable, body)
		return
	}
	s.writeJSON(c, http.StatusOK, body)
}

func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Health != nil {
		if _, err := s.deps.Health(c.Request.Context()); err != nil {
			writeError(c, http.StatusServiceUnavailable, CodeUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(c, http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleLive(c *gin.Context) {
	s.writeJSON(c, http.StatusOK, gin.H{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG & SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

type courseOutline struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Image        string `json:"image"`
	Parts        int    `json:"parts"`
	TotalLessons int    `json:"total_lessons"`
}

func (s *Server) handleCatalog(c *gin.Context) {
	courses := s.deps.Catalog.Courses()
	out := make([]courseOutline, 0, len(courses))
	for _, course := range courses {
		out = append(out, courseOutline{
			ID:           course.ID,
			Name:         course.Name,
			Description:  course.Description,
			Image:        course.ImageURI,
			Parts:        len(course.Parts),
			TotalLessons: course.TotalLessons(),
		})
	}
	s.writeList(c, out, len(out))
}

// handleCatalogCourse returns the full course content. Quiz answers are
// never serialized.
func (s *Server) handleCatalogCourse(c *gin.Context) {
	course, err := s.deps.Catalog.Course(c.Param("courseId"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, course)
}

func (s *Server) handleSummary(c *gin.Context) {
	summary, err := s.deps.Queries.Summary.Handle(c.Request.Context(), query.GetSummaryQuery{})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, summary)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// progressResponse is the stored record after a write.
type progressResponse struct {
	CourseID        string          `json:"course_id"`
	Record          progress.Record `json:"record"`
	NewlyCompleted  *bool           `json:"newly_completed,omitempty"`
	CourseCompleted bool            `json:"course_completed"`
}

func (s *Server) handleCourseProgress(c *gin.Context) {
	dto, err := s.deps.Queries.CourseProgress.Handle(c.Request.Context(), query.GetCourseProgressQuery{
		Identity: callerIdentity(c),
		CourseID: c.Param("courseId"),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, dto)
}

func (s *Server) handleMarkLesson(c *gin.Context) {
	partID, lessonID, ok := partAndLesson(c)
	if !ok {
		return
	}

	res, err := s.deps.Commands.MarkLesson.Handle(c.Request.Context(), command.MarkLessonCompleteCommand{
		Identity:      callerIdentity(c),
		CourseID:      c.Param("courseId"),
		PartID:        partID,
		LessonID:      lessonID,
		CorrelationID: getRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, markResponse(res))
}

type answerRequest struct {
	Answer *int `json:"answer"`
}

type answerResponse struct {
	Correct  bool              `json:"correct"`
	Progress *progressResponse `json:"progress,omitempty"`
}

func (s *Server) handleAnswerLesson(c *gin.Context) {
	partID, lessonID, ok := partAndLesson(c)
	if !ok {
		return
	}
	var req answerRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Answer == nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "answer is required")
		return
	}

	res, err := s.deps.Commands.AnswerLesson.Handle(c.Request.Context(), command.AnswerLessonCommand{
		Identity:      callerIdentity(c),
		CourseID:      c.Param("courseId"),
		PartID:        partID,
		LessonID:      lessonID,
		Answer:        *req.Answer,
		CorrelationID: getRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}

	out := answerResponse{Correct: res.Correct}
	if res.Mark != nil {
		p := markResponse(res.Mark)
		out.Progress = &p
	}
	s.writeJSON(c, http.StatusOK, out)
}

type scoreRequest struct {
	Score *int `json:"score"`
}

type scoreResponse struct {
	progressResponse
	Score            int  `json:"score"`
	Passed           bool `json:"passed"`
	NextPartUnlocked bool `json:"next_part_unlocked"`
}

func (s *Server) handlePartScore(c *gin.Context) {
	partID, ok := intParam(c, "partId")
	if !ok {
		return
	}
	var req scoreRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Score == nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "score is required")
		return
	}

	res, err := s.deps.Commands.PartScore.Handle(c.Request.Context(), command.UpdatePartScoreCommand{
		Identity:      callerIdentity(c),
		CourseID:      c.Param("courseId"),
		PartID:        partID,
		Score:         *req.Score,
		CorrelationID: getRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, scoreResult(c.Param("courseId"), res))
}

type quizRequest struct {
	Answers []int `json:"answers"`
}

func (s *Server) handlePartQuiz(c *gin.Context) {
	partID, ok := intParam(c, "partId")
	if !ok {
		return
	}
	var req quizRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := s.deps.Commands.PartQuiz.Handle(c.Request.Context(), command.SubmitPartQuizCommand{
		Identity:      callerIdentity(c),
		CourseID:      c.Param("courseId"),
		PartID:        partID,
		Answers:       req.Answers,
		CorrelationID: getRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, scoreResult(c.Param("courseId"), res))
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

// handleResetCourse needs {"confirm": true}; without it the answer is 428.
func (s *Server) handleResetCourse(c *gin.Context) {
	var req resetRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	p, err := s.deps.Commands.ResetCourse.Handle(c.Request.Context(), command.ResetCourseCommand{
		Identity:      callerIdentity(c),
		CourseID:      c.Param("courseId"),
		Confirm:       req.Confirm,
		CorrelationID: getRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, progressResponse{CourseID: p.CourseID, Record: progress.ToRecord(p)})
}

func (s *Server) handleStatistics(c *gin.Context) {
	stats, err := s.deps.Queries.Statistics.Handle(c.Request.Context(), query.GetStatisticsQuery{Identity: callerIdentity(c)})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

// handleExport returns the bare snapshot document so it can be imported
// again unchanged.
func (s *Server) handleExport(c *gin.Context) {
	identity := callerIdentity(c)
	snap, err := s.deps.Queries.Export.Handle(c.Request.Context(), query.ExportProgressQuery{Identity: identity})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	name := "skillpath-progress-" + snap.ExportedAt.Format(time.DateOnly) + ".json"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleImport(c *gin.Context) {
	doc, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, CodeBadRequest, "snapshot too large")
			return
		}
		writeError(c, http.StatusBadRequest, CodeBadRequest, "unreadable body")
		return
	}

	res, err := s.deps.Commands.Import.Handle(c.Request.Context(), command.ImportProgressCommand{
		Identity:      callerIdentity(c),
		Document:      doc,
		CorrelationID: getRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// CREDENTIALS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleEligibility(c *gin.Context) {
	dto, err := s.deps.Queries.Eligibility.Handle(c.Request.Context(), query.CheckEligibilityQuery{
		Identity: callerIdentity(c),
		CourseID: c.Param("courseId"),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, dto)
}

func (s *Server) handleClaim(c *gin.Context) {
	identity := callerIdentity(c)
	res, err := s.deps.Commands.Claim.Handle(c.Request.Context(), command.ClaimCredentialCommand{
		Identity:      identity,
		CourseID:      c.Param("courseId"),
		CorrelationID: getRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	logger.FromContext(c.Request.Context()).Info("credential claimed",
		logger.Identity(identity),
		logger.CourseID(res.Credential.CourseID),
		logger.TokenID(res.Credential.TokenID),
		logger.Int("attempts", res.Attempts),
	)
	s.writeJSON(c, http.StatusCreated, res.Credential)
}

func (s *Server) handleMyCredentials(c *gin.Context) {
	s.listCredentials(c, callerIdentity(c))
}

func (s *Server) handleIdentityCredentials(c *gin.Context) {
	s.listCredentials(c, c.Param("identity"))
}

func (s *Server) listCredentials(c *gin.Context, identity string) {
	creds, err := s.deps.Queries.Credentials.Handle(c.Request.Context(), query.GetUserCredentialsQuery{Identity: identity})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	page, ok := pagination(c)
	if !ok {
		return
	}

	total := len(creds)
	from := min(page.Offset(), total)
	to := min(from+page.Limit(), total)
	items := make([]credential.Credential, 0, to-from)
	items = append(items, creds[from:to]...)
	s.writeList(c, items, total)
}

// pagination reads ?page= and ?page_size=; absent values take the defaults.
func pagination(c *gin.Context) (shared.Pagination, bool) {
	var page, size int
	for name, dst := range map[string]*int{"page": &page, "page_size": &size} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(c, http.StatusBadRequest, CodeBadRequest, name+" must be a positive integer")
			return shared.Pagination{}, false
		}
		*dst = n
	}
	return shared.NewPagination(page, size), true
}

func (s *Server) handleCredentialMetadata(c *gin.Context) {
	dto, ok := s.credentialMetadata(c)
	if !ok {
		return
	}
	s.writeJSON(c, http.StatusOK, dto)
}

func (s *Server) handleTokenURI(c *gin.Context) {
	dto, ok := s.credentialMetadata(c)
	if !ok {
		return
	}
	s.writeJSON(c, http.StatusOK, gin.H{"token_id": dto.Credential.TokenID, "token_uri": dto.TokenURI})
}

func (s *Server) credentialMetadata(c *gin.Context) (*query.CredentialMetadataDTO, bool) {
	tokenID, ok := tokenParam(c)
	if !ok {
		return nil, false
	}
	dto, err := s.deps.Queries.Metadata.Handle(c.Request.Context(), query.GetCredentialMetadataQuery{TokenID: tokenID})
	if err != nil {
		s.writeDomainError(c, err)
		return nil, false
	}
	return dto, true
}

func (s *Server) handleOwnerOf(c *gin.Context) {
	tokenID, ok := tokenParam(c)
	if !ok {
		return
	}
	owner, err := s.deps.Queries.Ledger.OwnerOf(c.Request.Context(), tokenID)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, gin.H{"token_id": tokenID, "owner": owner})
}

func (s *Server) handleGetApproved(c *gin.Context) {
	tokenID, ok := tokenParam(c)
	if !ok {
		return
	}
	approved := s.deps.Queries.Ledger.GetApproved(c.Request.Context(), tokenID)
	s.writeJSON(c, http.StatusOK, gin.H{"token_id": tokenID, "approved": approved})
}

func (s *Server) handleIsApprovedForAll(c *gin.Context) {
	approved := s.deps.Queries.Ledger.IsApprovedForAll(c.Request.Context(), c.Param("owner"), c.Param("operator"))
	s.writeJSON(c, http.StatusOK, gin.H{"approved": approved})
}

func (s *Server) handleHasClaimed(c *gin.Context) {
	claimed, err := s.deps.Queries.Ledger.HasClaimed(c.Request.Context(), c.Param("identity"), c.Param("courseId"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, gin.H{"claimed": claimed})
}

func (s *Server) handleLedgerStats(c *gin.Context) {
	s.ledgerStats(c, "")
}

func (s *Server) handleIdentityLedgerStats(c *gin.Context) {
	s.ledgerStats(c, c.Param("identity"))
}

func (s *Server) ledgerStats(c *gin.Context, owner string) {
	stats, err := s.deps.Queries.Ledger.Stats(c.Request.Context(), owner)
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, stats)
}

type transferRequest struct {
	To   string `json:"to"`
	Safe bool   `json:"safe"`
}

func (s *Server) handleTransfer(c *gin.Context) {
	tokenID, ok := tokenParam(c)
	if !ok {
		return
	}
	var req transferRequest
	if !bindJSON(c, &req) {
		return
	}
	err := s.deps.Commands.Soulbound.Transfer(c.Request.Context(), command.TransferCredentialCommand{
		From:    callerIdentity(c),
		To:      req.To,
		TokenID: tokenID,
		Safe:    req.Safe,
	})
	s.writeRefusal(c, err)
}

type approveRequest struct {
	Operator string `json:"operator"`
}

func (s *Server) handleApprove(c *gin.Context) {
	tokenID, ok := tokenParam(c)
	if !ok {
		return
	}
	var req approveRequest
	if !bindJSON(c, &req) {
		return
	}
	err := s.deps.Commands.Soulbound.Approve(c.Request.Context(), command.ApproveCredentialCommand{
		Caller:   callerIdentity(c),
		Operator: req.Operator,
		TokenID:  tokenID,
	})
	s.writeRefusal(c, err)
}

type approvalForAllRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleSetApprovalForAll(c *gin.Context) {
	var req approvalForAllRequest
	if !bindJSON(c, &req) {
		return
	}
	err := s.deps.Commands.Soulbound.SetApprovalForAll(c.Request.Context(), command.SetApprovalForAllCommand{
		Owner:    callerIdentity(c),
		Operator: req.Operator,
		Approved: req.Approved,
	})
	s.writeRefusal(c, err)
}

// writeRefusal reports the outcome of an ownership change, which the
// ledger never accepts.
func (s *Server) writeRefusal(c *gin.Context, err error) {
	if err == nil {
		err = shared.ErrSoulboundViolation
	}
	s.writeDomainError(c, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListCourses(c *gin.Context) {
	courses, err := s.deps.Queries.Ledger.Courses(c.Request.Context())
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	if courses == nil {
		courses = []credential.Course{}
	}
	s.writeList(c, courses, len(courses))
}

func (s *Server) handleGetCourse(c *gin.Context) {
	course, err := s.deps.Queries.Ledger.CourseEntry(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, course)
}

type courseRequest struct {
	ID          string `json:"course_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURI    string `json:"image_uri"`
}

func (s *Server) handleAddCourse(c *gin.Context) {
	var req courseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := s.deps.Commands.Registry.AddCourse(c.Request.Context(), command.AddCourseCommand{
		Caller:        callerIdentity(c),
		Course:        credential.Course{ID: req.ID, Name: req.Name, Description: req.Description, ImageURI: req.ImageURI},
		CorrelationID: getRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusCreated, course)
}

func (s *Server) handleUpdateCourse(c *gin.Context) {
	var req courseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := s.deps.Commands.Registry.UpdateCourse(c.Request.Context(), command.UpdateCourseCommand{
		Caller:        callerIdentity(c),
		Course:        credential.Course{ID: c.Param("courseId"), Name: req.Name, Description: req.Description, ImageURI: req.ImageURI},
		CorrelationID: getRequestID(c),
	})
	if err != nil {
		s.writeDomainError(c, err)
		return
	}
	s.writeJSON(c, http.StatusOK, course)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func markResponse(res *command.MarkLessonCompleteResult) progressResponse {
	newly := res.NewlyCompleted
	return progressResponse{
		CourseID:        res.Progress.CourseID,
		Record:          progress.ToRecord(res.Progress),
		NewlyCompleted:  &newly,
		CourseCompleted: res.CourseCompleted,
	}
}

func scoreResult(courseID string, res *command.UpdatePartScoreResult) scoreResponse {
	rec := progress.ToRecord(res.Progress)
	return scoreResponse{
		progressResponse: progressResponse{
			CourseID:        courseID,
			Record:          rec,
			CourseCompleted: rec.CourseProgress == 100,
		},
		Score:            res.Score,
		Passed:           res.Passed,
		NextPartUnlocked: res.NextPartUnlocked,
	}
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		writeError(c, http.StatusBadRequest, CodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}

func partAndLesson(c *gin.Context) (int, int, bool) {
	partID, ok := intParam(c, "partId")
	if !ok {
		return 0, 0, false
	}
	lessonID, ok := intParam(c, "lessonId")
	if !ok {
		return 0, 0, false
	}
	return partID, lessonID, true
}

func tokenParam(c *gin.Context) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param("tokenId"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "tokenId must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}
