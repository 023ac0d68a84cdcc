package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"exam-service/internal/domain"
	"exam-service/internal/grading"
	"exam-service/internal/logger"
	"exam-service/internal/report"
)

// ExamRepository persists exam definitions.
type ExamRepository interface {
	CreateExam(ctx context.Context, exam domain.Exam) (domain.Exam, error)
	GetExam(ctx context.Context, id string) (domain.Exam, error)
	ListExams(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error)
	DeleteExam(ctx context.Context, id string) error
	SetExamActive(ctx context.Context, id string, active bool) (domain.Exam, error)
}

// ResultRepository persists finalized results. ListResults returns them in
// submission order. SaveResult enforces one result per (exam, student)
// according to policy.
type ResultRepository interface {
	SaveResult(ctx context.Context, result domain.Result, policy domain.DuplicatePolicy) (domain.Result, error)
	ListResults(ctx context.Context, examID string) ([]domain.Result, error)
	FindResult(ctx context.Context, examID, studentID string) (domain.Result, error)
}

// ExamCache serves exam reads in front of the repository.
type ExamCache interface {
	GetExam(ctx context.Context, id string) (domain.Exam, error)
	Forget(ctx context.Context, id string) error
}

// FeedRepository abstracts where live report feeds are kept and how fresh
// reports reach them. Publish may deliver to feeds held by other processes.
type FeedRepository interface {
	GetOrCreate(ctx context.Context, examID string) (*Feed, error)
	Publish(ctx context.Context, r domain.ClassReport) error
	DeleteIfIdle(examID string)
}

// Recorder receives submission outcomes for metrics.
type Recorder interface {
	ObserveSubmission(outcome string, score float64)
}

// ExamService contains the exam, submission and report use cases.
type ExamService struct {
	exams   ExamRepository
	results ResultRepository
	cache   ExamCache
	feeds   FeedRepository
	rec     Recorder
	policy  domain.DuplicatePolicy
	log     *logger.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*ExamService)

func WithCache(c ExamCache) Option      { return func(s *ExamService) { s.cache = c } }
func WithFeeds(f FeedRepository) Option { return func(s *ExamService) { s.feeds = f } }
func WithRecorder(r Recorder) Option    { return func(s *ExamService) { s.rec = r } }
func WithDuplicatePolicy(p domain.DuplicatePolicy) Option {
	return func(s *ExamService) { s.policy = p }
}
func WithLogger(l *logger.Logger) Option { return func(s *ExamService) { s.log = l } }

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option { return func(s *ExamService) { s.now = now } }

// WithIDGenerator overrides how result ids are minted.
func WithIDGenerator(f func() string) Option { return func(s *ExamService) { s.newID = f } }

func NewExamService(exams ExamRepository, results ResultRepository, opts ...Option) *ExamService {
	s := &ExamService{
		exams:   exams,
		results: results,
		policy:  domain.DuplicateReject,
		log:     logger.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateExam validates a draft and stores it as a new, inactive exam owned by ownerID.
func (s *ExamService) CreateExam(ctx context.Context, ownerID string, draft domain.Exam) (domain.Exam, error) {
	if err := domain.NormalizeExam(&draft); err != nil {
		return domain.Exam{}, err
	}
	draft.ID = ""
	draft.OwnerID = ownerID
	draft.Active = false
	draft.CreatedAt = s.now().UTC()

	exam, err := s.exams.CreateExam(ctx, draft)
	if err != nil {
		return domain.Exam{}, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info("exam created", "exam_id", exam.ID, "owner_id", ownerID, "questions", len(exam.Questions))
	return exam, nil
}

// GetExam returns an exam, through the cache when one is configured.
func (s *ExamService) GetExam(ctx context.Context, id string) (domain.Exam, error) {
	if s.cache != nil {
		return s.cache.GetExam(ctx, id)
	}
	return s.exams.GetExam(ctx, id)
}

// ListExams lists exams matching filter in creation order.
func (s *ExamService) ListExams(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error) {
	return s.exams.ListExams(ctx, filter)
}

// DeleteExam removes an exam and its results. Only the owner may delete.
func (s *ExamService) DeleteExam(ctx context.Context, ownerID, id string) error {
	if err := s.checkOwner(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.exams.DeleteExam(ctx, id); err != nil {
		return err
	}
	s.forget(ctx, id)
	s.log.Info("exam deleted", "exam_id", id, "owner_id", ownerID)
	return nil
}

// SetActive opens or closes an exam for submissions. Only the owner may toggle.
func (s *ExamService) SetActive(ctx context.Context, ownerID, id string, active bool) (domain.Exam, error) {
	if err := s.checkOwner(ctx, ownerID, id); err != nil {
		return domain.Exam{}, err
	}
	exam, err := s.exams.SetExamActive(ctx, id, active)
	if err != nil {
		return domain.Exam{}, err
	}
	s.forget(ctx, id)
	return exam, nil
}

// RecordResult grades a complete answer set and stores the result.
func (s *ExamService) RecordResult(ctx context.Context, examID string, student domain.Student, answers map[string]int) (domain.Result, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return domain.Result{}, err
	}
	if !exam.Active {
		s.observe("inactive", 0)
		return domain.Result{}, domain.ErrExamInactive
	}
	if missing := domain.MissingAnswers(exam, answers); len(missing) > 0 {
		s.observe("incomplete", 0)
		return domain.Result{}, &domain.IncompleteSubmissionError{Missing: missing}
	}

	kept := make(map[string]int, len(exam.Questions))
	for _, q := range exam.Questions {
		kept[q.ID] = answers[q.ID]
	}
	result := domain.Result{
		ID:          s.newID(),
		ExamID:      exam.ID,
		Student:     student,
		Answers:     kept,
		Score:       grading.Grade(exam, kept),
		SubmittedAt: s.now().UTC(),
	}

	saved, err := s.results.SaveResult(ctx, result, s.policy)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateSubmission) {
			s.observe("duplicate", 0)
			return domain.Result{}, err
		}
		s.observe("error", 0)
		return domain.Result{}, fmt.Errorf("save result: %w", err)
	}
	s.observe("recorded", saved.Score.Value)
	s.log.Info("result recorded",
		"exam_id", exam.ID,
		"student_id", student.ID,
		"correct", saved.Score.Correct,
		"total", saved.Score.Total,
		"score", grading.Format(saved.Score.Value),
	)
	s.publish(ctx, exam)
	return saved, nil
}

// StudentResult returns the result a student recorded for an exam.
func (s *ExamService) StudentResult(ctx context.Context, examID, studentID string) (domain.Result, error) {
	return s.results.FindResult(ctx, examID, studentID)
}

// HasSubmitted reports whether the student already has a result for the exam.
func (s *ExamService) HasSubmitted(ctx context.Context, examID, studentID string) (bool, error) {
	_, err := s.results.FindResult(ctx, examID, studentID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrResultNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ClassReport recomputes the report of an exam from its stored results.
func (s *ExamService) ClassReport(ctx context.Context, examID string) (domain.ClassReport, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return domain.ClassReport{}, err
	}
	return s.reportFor(ctx, exam)
}

// ExportReport writes the text export of an exam's report to w and returns
// the suggested file name.
func (s *ExamService) ExportReport(ctx context.Context, examID string, w io.Writer) (string, error) {
	r, err := s.ClassReport(ctx, examID)
	if err != nil {
		return "", err
	}
	if err := report.Write(w, r); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return report.FileName(r.Exam), nil
}

// Subscribe returns a channel receiving the exam's report now and after each
// recorded result. The caller must invoke the returned cancel function.
func (s *ExamService) Subscribe(ctx context.Context, examID string) (<-chan domain.ClassReport, func(), error) {
	if s.feeds == nil {
		return nil, nil, domain.ErrUnsupported
	}
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, nil, err
	}
	feed, err := s.feeds.GetOrCreate(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("open report feed: %w", err)
	}
	initial, err := s.reportFor(ctx, exam)
	if err != nil {
		s.feeds.DeleteIfIdle(examID)
		return nil, nil, err
	}
	ch, cancelFeed := feed.Subscribe(initial)
	cancel := func() {
		cancelFeed()
		s.feeds.DeleteIfIdle(examID)
	}
	return ch, cancel, nil
}

func (s *ExamService) reportFor(ctx context.Context, exam domain.Exam) (domain.ClassReport, error) {
	results, err := s.results.ListResults(ctx, exam.ID)
	if err != nil {
		return domain.ClassReport{}, fmt.Errorf("list results: %w", err)
	}
	return grading.BuildReport(exam, results), nil
}

func (s *ExamService) publish(ctx context.Context, exam domain.Exam) {
	if s.feeds == nil {
		return
	}
	r, err := s.reportFor(ctx, exam)
	if err != nil {
		s.log.Warn("report feed refresh failed", "exam_id", exam.ID, "error", err)
		return
	}
	if err := s.feeds.Publish(ctx, r); err != nil {
		s.log.Warn("report feed publish failed", "exam_id", exam.ID, "error", err)
	}
}

func (s *ExamService) checkOwner(ctx context.Context, ownerID, id string) error {
	exam, err := s.exams.GetExam(ctx, id)
	if err != nil {
		return err
	}
	if exam.OwnerID != "" && exam.OwnerID != ownerID {
		return domain.ErrForbidden
	}
	return nil
}

func (s *ExamService) forget(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Forget(ctx, id); err != nil {
		s.log.Warn("exam cache invalidation failed", "exam_id", id, "error", err)
	}
}

func (s *ExamService) observe(outcome string, score float64) {
	if s.rec != nil {
		s.rec.ObserveSubmission(outcome, score)
	}
}
