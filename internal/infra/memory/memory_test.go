package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exam-service/internal/domain"
	"exam-service/internal/infra/blob"
)

func TestExamCacheCaches(t *testing.T) {
	loader := &countingLoader{exams: map[string]domain.Exam{"e1": sampleExam()}}
	cache := NewExamCache(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetExam(context.Background(), "e1"); err != nil {
			t.Fatalf("get exam: %v", err)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}
}

func TestExamCacheForgetReloads(t *testing.T) {
	loader := &countingLoader{exams: map[string]domain.Exam{"e1": sampleExam()}}
	cache := NewExamCache(loader, time.Minute)
	ctx := context.Background()

	if _, err := cache.GetExam(ctx, "e1"); err != nil {
		t.Fatalf("get exam: %v", err)
	}
	loader.exams["e1"] = domain.Exam{ID: "e1", Title: "changed", Active: true}
	if err := cache.Forget(ctx, "e1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	exam, err := cache.GetExam(ctx, "e1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if exam.Title != "changed" || loader.calls != 2 {
		t.Fatalf("expected reload after forget, got %q after %d calls", exam.Title, loader.calls)
	}
}

func TestExamCacheForgetDuringLoad(t *testing.T) {
	loader := &gatedLoader{
		exam:    sampleExam(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache := NewExamCache(loader, time.Minute)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.GetExam(ctx, "e1")
	}()
	<-loader.entered

	updated := sampleExam()
	updated.Title = "Renamed"
	loader.set(updated)
	if err := cache.Forget(ctx, "e1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	close(loader.release)
	<-done

	exam, err := cache.GetExam(ctx, "e1")
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if exam.Title != "Renamed" {
		t.Fatalf("expected the load started before Forget not to be cached, got %q", exam.Title)
	}
}

func TestExamCacheExpires(t *testing.T) {
	loader := &countingLoader{exams: map[string]domain.Exam{"e1": sampleExam()}}
	cache := NewExamCache(loader, time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	if _, err := cache.GetExam(context.Background(), "e1"); err != nil {
		t.Fatalf("get exam: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cache.GetExam(context.Background(), "e1"); err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", loader.calls)
	}
}

func TestExamCacheDoesNotCacheMisses(t *testing.T) {
	loader := &countingLoader{exams: map[string]domain.Exam{}}
	cache := NewExamCache(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetExam(context.Background(), "nope"); !errors.Is(err, domain.ErrExamNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if loader.calls != 2 {
		t.Fatalf("expected misses to reach loader, got %d calls", loader.calls)
	}
}

func TestBucketRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewBucket()

	if _, err := b.Get(ctx, "exams"); !errors.Is(err, blob.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	data := []byte(`[1]`)
	if err := b.Put(ctx, "exams", data); err != nil {
		t.Fatalf("put: %v", err)
	}
	data[0] = 'x'
	got, err := b.Get(ctx, "exams")
	if err != nil || string(got) != "[1]" {
		t.Fatalf("expected stored copy, got %q err %v", got, err)
	}
	if err := b.Delete(ctx, "exams"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := b.Get(ctx, "exams"); !errors.Is(err, blob.ErrNotExist) {
		t.Fatalf("expected ErrNotExist after delete, got %v", err)
	}
}

func TestFeedStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewFeedStore()

	feed, err := store.GetOrCreate(ctx, "e1")
	if err != nil || feed == nil || feed.ExamID() != "e1" {
		t.Fatalf("expected feed for e1, got %v", err)
	}
	if again, _ := store.GetOrCreate(ctx, "e1"); again != feed {
		t.Fatalf("expected same feed instance")
	}
	if _, ok := store.Get("e1"); !ok {
		t.Fatalf("expected feed present")
	}
	if err := store.Publish(ctx, domain.ClassReport{Exam: domain.Exam{ID: "e2"}}); err != nil {
		t.Fatalf("publish without feed: %v", err)
	}

	store.DeleteIfIdle("e1")
	if _, ok := store.Get("e1"); ok {
		t.Fatalf("expected idle feed removed")
	}
}

// gatedLoader returns whatever exam it holds when released; the first call
// blocks until release is closed.
type gatedLoader struct {
	mu      sync.Mutex
	exam    domain.Exam
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (l *gatedLoader) GetExam(_ context.Context, _ string) (domain.Exam, error) {
	l.mu.Lock()
	exam := l.exam
	l.mu.Unlock()
	first := false
	l.once.Do(func() { first = true })
	if first {
		close(l.entered)
		<-l.release
	}
	return exam, nil
}

func (l *gatedLoader) set(exam domain.Exam) {
	l.mu.Lock()
	l.exam = exam
	l.mu.Unlock()
}

type countingLoader struct {
	exams map[string]domain.Exam
	calls int
}

func (l *countingLoader) GetExam(_ context.Context, id string) (domain.Exam, error) {
	l.calls++
	if exam, ok := l.exams[id]; ok {
		return exam, nil
	}
	return domain.Exam{}, domain.ErrExamNotFound
}

func sampleExam() domain.Exam {
	return domain.Exam{
		ID:     "e1",
		Title:  "Arithmetic",
		Active: true,
		Questions: []domain.Question{
			{ID: "q1", Prompt: "2 + 2?", Options: []string{"3", "4"}, Correct: 1},
		},
	}
}
