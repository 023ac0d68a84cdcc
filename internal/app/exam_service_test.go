package app_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"exam-service/internal/app"
	"exam-service/internal/domain"
	"exam-service/internal/infra/blob"
	"exam-service/internal/infra/memory"
	infraredis "exam-service/internal/infra/redis"
)

func TestCreateExamStartsInactive(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	exam, err := service.CreateExam(ctx, "t1", draftExam())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if exam.Active || exam.OwnerID != "t1" || exam.ID == "" {
		t.Fatalf("unexpected exam %+v", exam)
	}

	bad := draftExam()
	bad.Title = "  "
	var verr *domain.ValidationError
	if _, err := service.CreateExam(ctx, "t1", bad); !errors.As(err, &verr) || verr.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
}

func TestRecordResultGradesAndStores(t *testing.T) {
	ctx := context.Background()
	service, rec := newTestService()
	exam := activeExam(t, service)

	result, err := service.RecordResult(ctx, exam.ID, domain.Student{ID: "s1", Name: "Ana"}, map[string]int{
		"q1": 1, "q2": 0, "q3": 2, "extra": 1,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if result.Score.Correct != 2 || result.Score.Total != 3 || result.Score.Value != 6.7 {
		t.Fatalf("unexpected score %+v", result.Score)
	}
	if _, ok := result.Answers["extra"]; ok {
		t.Fatalf("expected unknown question ids dropped")
	}
	if result.ID != "r1" || !result.SubmittedAt.Equal(fixedNow) {
		t.Fatalf("expected injected id and clock, got %q at %v", result.ID, result.SubmittedAt)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "recorded" {
		t.Fatalf("expected one recorded outcome, got %v", rec.outcomes)
	}

	ok, err := service.HasSubmitted(ctx, exam.ID, "s1")
	if err != nil || !ok {
		t.Fatalf("expected s1 submitted, got %v err %v", ok, err)
	}
	ok, err = service.HasSubmitted(ctx, exam.ID, "s2")
	if err != nil || ok {
		t.Fatalf("expected s2 not submitted, got %v err %v", ok, err)
	}
}

func TestRecordResultRejections(t *testing.T) {
	ctx := context.Background()
	service, rec := newTestService()

	exam, err := service.CreateExam(ctx, "t1", draftExam())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	full := map[string]int{"q1": 1, "q2": 1, "q3": 2}
	if _, err := service.RecordResult(ctx, exam.ID, domain.Student{ID: "s1"}, full); !errors.Is(err, domain.ErrExamInactive) {
		t.Fatalf("expected inactive exam rejection, got %v", err)
	}

	if _, err := service.SetActive(ctx, "t1", exam.ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	var incomplete *domain.IncompleteSubmissionError
	_, err = service.RecordResult(ctx, exam.ID, domain.Student{ID: "s1"}, map[string]int{"q1": 1})
	if !errors.As(err, &incomplete) || len(incomplete.Missing) != 2 {
		t.Fatalf("expected two missing answers, got %v", err)
	}

	if _, err := service.RecordResult(ctx, exam.ID, domain.Student{ID: "s1"}, full); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := service.RecordResult(ctx, exam.ID, domain.Student{ID: "s1"}, full); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := service.RecordResult(ctx, "missing", domain.Student{ID: "s1"}, full); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	want := []string{"inactive", "incomplete", "recorded", "duplicate"}
	if strings.Join(rec.outcomes, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected outcomes %v", rec.outcomes)
	}
}

func TestOverwritePolicyReplacesResult(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.WithDuplicatePolicy(domain.DuplicateOverwrite))
	exam := activeExam(t, service)

	_, _ = service.RecordResult(ctx, exam.ID, domain.Student{ID: "s1", Name: "Ana"}, map[string]int{"q1": 0, "q2": 0, "q3": 0})
	_, _ = service.RecordResult(ctx, exam.ID, domain.Student{ID: "s2", Name: "Bia"}, map[string]int{"q1": 1, "q2": 0, "q3": 0})
	if _, err := service.RecordResult(ctx, exam.ID, domain.Student{ID: "s1", Name: "Ana"}, map[string]int{"q1": 1, "q2": 1, "q3": 2}); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	report, err := service.ClassReport(ctx, exam.ID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.Stats == nil || report.Stats.Count != 2 {
		t.Fatalf("expected two results, got %+v", report.Stats)
	}
	if report.Results[0].Student.ID != "s1" || report.Results[0].Score.Value != 10 {
		t.Fatalf("expected overwritten result to lead, got %+v", report.Results[0])
	}
}

func TestOnlyOwnerMayMutate(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	exam, _ := service.CreateExam(ctx, "t1", draftExam())

	if _, err := service.SetActive(ctx, "t2", exam.ID, true); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden toggle, got %v", err)
	}
	if err := service.DeleteExam(ctx, "t2", exam.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if err := service.DeleteExam(ctx, "t1", exam.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := service.GetExam(ctx, exam.ID); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected deleted exam gone from cache too, got %v", err)
	}
}

func TestEmptyReportAndExport(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	exam := activeExam(t, service)

	report, err := service.ClassReport(ctx, exam.ID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.Stats != nil || len(report.Results) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}

	_, _ = service.RecordResult(ctx, exam.ID, domain.Student{ID: "s1", Name: "Ana Souza"}, map[string]int{"q1": 1, "q2": 1, "q3": 2})
	var buf bytes.Buffer
	name, err := service.ExportReport(ctx, exam.ID, &buf)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if name != "report-Unit-Test.txt" {
		t.Fatalf("unexpected file name %q", name)
	}
	if !strings.Contains(buf.String(), "Ana Souza - Score: 10.0 (3/3) - Approved") {
		t.Fatalf("unexpected export:\n%s", buf.String())
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()
	exam := activeExam(t, service)

	ch, cancel, err := service.Subscribe(ctx, exam.ID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	initial := <-ch
	if initial.Stats != nil {
		t.Fatalf("expected empty initial report")
	}

	if _, err := service.RecordResult(ctx, exam.ID, domain.Student{ID: "s1", Name: "Ana"}, map[string]int{"q1": 1, "q2": 1, "q3": 0}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	select {
	case update := <-ch:
		if update.Stats == nil || update.Stats.Count != 1 {
			t.Fatalf("expected one result in update, got %+v", update.Stats)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected report update")
	}
}

func TestSubscriberSeesResultsRecordedByAnotherInstance(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	ctx := context.Background()

	instance := func() *app.ExamService {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		feeds := infraredis.NewFeedStore(client, nil)
		t.Cleanup(feeds.Close)
		store := blob.NewStore(infraredis.NewBucket(client, "exams:"))
		return app.NewExamService(store, store, app.WithFeeds(feeds))
	}
	a, b := instance(), instance()
	exam := activeExam(t, a)

	ch, cancel, err := a.Subscribe(ctx, exam.ID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()
	<-ch

	if _, err := b.RecordResult(ctx, exam.ID, domain.Student{ID: "s1", Name: "Ana"}, map[string]int{"q1": 1, "q2": 1, "q3": 2}); err != nil {
		t.Fatalf("record on second instance failed: %v", err)
	}

	select {
	case update := <-ch:
		if update.Stats == nil || update.Stats.Count != 1 || update.Results[0].Student.Name != "Ana" {
			t.Fatalf("unexpected update %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected update recorded by the other instance")
	}
}

func TestSubscribeUnknownExam(t *testing.T) {
	service, _ := newTestService()
	if _, _, err := service.Subscribe(context.Background(), "nope"); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type recorder struct{ outcomes []string }

func (r *recorder) ObserveSubmission(outcome string, _ float64) {
	r.outcomes = append(r.outcomes, outcome)
}

func newTestService(opts ...app.Option) (*app.ExamService, *recorder) {
	store := blob.NewStore(memory.NewBucket())
	rec := &recorder{}
	n := 0
	base := []app.Option{
		app.WithCache(memory.NewExamCache(store, time.Minute)),
		app.WithFeeds(memory.NewFeedStore()),
		app.WithRecorder(rec),
		app.WithClock(func() time.Time { return fixedNow }),
		app.WithIDGenerator(func() string {
			n++
			return "r" + string(rune('0'+n))
		}),
	}
	return app.NewExamService(store, store, append(base, opts...)...), rec
}

func activeExam(t *testing.T, service *app.ExamService) domain.Exam {
	t.Helper()
	ctx := context.Background()
	exam, err := service.CreateExam(ctx, "t1", draftExam())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	exam, err = service.SetActive(ctx, "t1", exam.ID, true)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	return exam
}

func draftExam() domain.Exam {
	return domain.Exam{
		Title:       "Unit Test",
		Description: "three questions",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "2 + 2?", Options: []string{"3", "4"}, Correct: 1},
			{ID: "q2", Prompt: "Capital of France?", Options: []string{"Lyon", "Paris"}, Correct: 1},
			{ID: "q3", Prompt: "Largest?", Options: []string{"1", "2", "3"}, Correct: 2},
		},
	}
}
