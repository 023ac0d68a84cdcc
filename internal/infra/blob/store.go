package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"exam-service/internal/auth"
	"exam-service/internal/domain"
)

// Blob keys.
const (
	KeySession = "session"
	KeyExams   = "exams"
	KeyResults = "results"
)

// Store implements the exam and result repositories on top of a Bucket.
// Every mutation is one Bucket.Update of a whole list, so writers sharing the
// bucket (other goroutines or other instances on the same Redis) never
// overwrite each other's changes.
type Store struct {
	bucket Bucket
	now    func() time.Time

	idMu   sync.Mutex
	lastID int64
}

func NewStore(bucket Bucket) *Store {
	return &Store{bucket: bucket, now: time.Now}
}

func (s *Store) CreateExam(ctx context.Context, exam domain.Exam) (domain.Exam, error) {
	var created domain.Exam
	err := updateList(ctx, s.bucket, KeyExams, func(exams []domain.Exam) ([]domain.Exam, error) {
		e := exam
		if e.ID == "" {
			e.ID = s.nextID()
			for examIndex(exams, e.ID) >= 0 {
				e.ID = s.nextID()
			}
		} else if examIndex(exams, e.ID) >= 0 {
			return nil, fmt.Errorf("exam %s already exists", e.ID)
		}
		created = e
		return append(exams, e), nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return created, nil
}

func (s *Store) GetExam(ctx context.Context, id string) (domain.Exam, error) {
	exams, err := s.loadExams(ctx)
	if err != nil {
		return domain.Exam{}, err
	}
	if idx := examIndex(exams, id); idx >= 0 {
		return exams[idx], nil
	}
	return domain.Exam{}, domain.ErrExamNotFound
}

func (s *Store) ListExams(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error) {
	exams, err := s.loadExams(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Exam, 0, len(exams))
	for _, e := range exams {
		if filter.OwnerID != "" && e.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ActiveOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteExam removes the exam and then every result recorded for it. The two
// blobs are separate keys, so the pair is not atomic.
func (s *Store) DeleteExam(ctx context.Context, id string) error {
	err := updateList(ctx, s.bucket, KeyExams, func(exams []domain.Exam) ([]domain.Exam, error) {
		idx := examIndex(exams, id)
		if idx < 0 {
			return nil, domain.ErrExamNotFound
		}
		return append(exams[:idx], exams[idx+1:]...), nil
	})
	if err != nil {
		return err
	}
	return updateList(ctx, s.bucket, KeyResults, func(results []domain.Result) ([]domain.Result, error) {
		kept := results[:0]
		for _, r := range results {
			if r.ExamID != id {
				kept = append(kept, r)
			}
		}
		return kept, nil
	})
}

func (s *Store) SetExamActive(ctx context.Context, id string, active bool) (domain.Exam, error) {
	var updated domain.Exam
	err := updateList(ctx, s.bucket, KeyExams, func(exams []domain.Exam) ([]domain.Exam, error) {
		idx := examIndex(exams, id)
		if idx < 0 {
			return nil, domain.ErrExamNotFound
		}
		exams[idx].Active = active
		updated = exams[idx]
		return exams, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return updated, nil
}

// SaveResult appends a result, applying policy when the student already has
// one for the exam. The duplicate check and the write are one Update.
func (s *Store) SaveResult(ctx context.Context, result domain.Result, policy domain.DuplicatePolicy) (domain.Result, error) {
	if _, err := s.GetExam(ctx, result.ExamID); err != nil {
		return domain.Result{}, err
	}
	var saved domain.Result
	err := updateList(ctx, s.bucket, KeyResults, func(results []domain.Result) ([]domain.Result, error) {
		for i, r := range results {
			if r.ExamID != result.ExamID || r.Student.ID != result.Student.ID {
				continue
			}
			if policy != domain.DuplicateOverwrite {
				return nil, domain.ErrDuplicateSubmission
			}
			results = append(results[:i:i], results[i+1:]...)
			break
		}
		saved = result
		if saved.ID == "" {
			saved.ID = s.nextID()
			for resultIndex(results, saved.ID) >= 0 {
				saved.ID = s.nextID()
			}
		}
		return append(results, saved), nil
	})
	if err != nil {
		return domain.Result{}, err
	}
	return saved, nil
}

func (s *Store) ListResults(ctx context.Context, examID string) ([]domain.Result, error) {
	results, err := s.loadResults(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Result, 0)
	for _, r := range results {
		if r.ExamID == examID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) FindResult(ctx context.Context, examID, studentID string) (domain.Result, error) {
	results, err := s.loadResults(ctx)
	if err != nil {
		return domain.Result{}, err
	}
	for _, r := range results {
		if r.ExamID == examID && r.Student.ID == studentID {
			return r, nil
		}
	}
	return domain.Result{}, domain.ErrResultNotFound
}

// SaveSession remembers the token of the signed-in user.
func (s *Store) SaveSession(ctx context.Context, session auth.Session) error {
	return s.save(ctx, KeySession, session)
}

// LoadSession returns the remembered session, or ErrNotExist after logout.
func (s *Store) LoadSession(ctx context.Context) (auth.Session, error) {
	var session auth.Session
	found, err := s.load(ctx, KeySession, &session)
	if err != nil {
		return auth.Session{}, err
	}
	if !found {
		return auth.Session{}, ErrNotExist
	}
	return session, nil
}

func (s *Store) ClearSession(ctx context.Context) error {
	return s.bucket.Delete(ctx, KeySession)
}

func (s *Store) loadExams(ctx context.Context) ([]domain.Exam, error) {
	var exams []domain.Exam
	if _, err := s.load(ctx, KeyExams, &exams); err != nil {
		return nil, err
	}
	return exams, nil
}

func (s *Store) loadResults(ctx context.Context) ([]domain.Result, error) {
	var results []domain.Result
	if _, err := s.load(ctx, KeyResults, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) load(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := s.bucket.Get(ctx, key)
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s blob: %w", key, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s blob: %w", key, err)
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s blob: %w", key, err)
	}
	if err := s.bucket.Put(ctx, key, data); err != nil {
		return fmt.Errorf("write %s blob: %w", key, err)
	}
	return nil
}

// nextID mints a millisecond timestamp id, bumped when two land in the same
// millisecond.
func (s *Store) nextID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

func resultIndex(results []domain.Result, id string) int {
	for i, r := range results {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// updateList decodes the list stored under key, lets fn change it and writes
// it back in one Bucket.Update. Errors from fn are returned unwrapped.
func updateList[T any](ctx context.Context, bucket Bucket, key string, fn func([]T) ([]T, error)) error {
	var fnErr error
	err := bucket.Update(ctx, key, func(current []byte) ([]byte, error) {
		var list []T
		if len(current) > 0 {
			if err := json.Unmarshal(current, &list); err != nil {
				return nil, fmt.Errorf("decode %s blob: %w", key, err)
			}
		}
		next, err := fn(list)
		if err != nil {
			fnErr = err
			return nil, err
		}
		return json.Marshal(next)
	})
	if err != nil && err == fnErr {
		return err
	}
	if err != nil {
		return fmt.Errorf("update %s blob: %w", key, err)
	}
	return nil
}

func examIndex(exams []domain.Exam, id string) int {
	for i := range exams {
		if exams[i].ID == id {
			return i
		}
	}
	return -1
}
