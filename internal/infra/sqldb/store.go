package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"exam-service/internal/domain"
)

type examRow struct {
	bun.BaseModel `bun:"table:exams,alias:e"`

	Seq       int64     `bun:"seq,pk,autoincrement"`
	ID        string    `bun:"id"`
	OwnerID   string    `bun:"owner_id"`
	Active    bool      `bun:"active"`
	Data      string    `bun:"data"`
	CreatedAt time.Time `bun:"created_at"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:results,alias:r"`

	Seq          int64     `bun:"seq,pk,autoincrement"`
	ID           string    `bun:"id"`
	ExamID       string    `bun:"exam_id"`
	StudentID    string    `bun:"student_id"`
	StudentName  string    `bun:"student_name"`
	StudentEmail string    `bun:"student_email"`
	Answers      string    `bun:"answers"`
	Correct      int       `bun:"correct"`
	Total        int       `bun:"total"`
	Score        float64   `bun:"score"`
	SubmittedAt  time.Time `bun:"submitted_at"`
}

// Store implements the exam and result repositories with bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateExam(ctx context.Context, exam domain.Exam) (domain.Exam, error) {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	row, err := toExamRow(exam)
	if err != nil {
		return domain.Exam{}, err
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Exam{}, fmt.Errorf("insert exam: %w", err)
	}
	return exam, nil
}

func (s *Store) GetExam(ctx context.Context, id string) (domain.Exam, error) {
	var row examRow
	err := s.db.NewSelect().Model(&row).Where("e.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("select exam: %w", err)
	}
	return row.toDomain()
}

func (s *Store) ListExams(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error) {
	var rows []examRow
	q := s.db.NewSelect().Model(&rows).Order("e.seq ASC")
	if filter.OwnerID != "" {
		q = q.Where("e.owner_id = ?", filter.OwnerID)
	}
	if filter.ActiveOnly {
		q = q.Where("e.active = ?", true)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	exams := make([]domain.Exam, 0, len(rows))
	for _, row := range rows {
		exam, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		exams = append(exams, exam)
	}
	return exams, nil
}

// DeleteExam removes the exam and its results in one transaction.
func (s *Store) DeleteExam(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*resultRow)(nil)).Where("exam_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete results: %w", err)
		}
		res, err := tx.NewDelete().Model((*examRow)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete exam: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.ErrExamNotFound
		}
		return nil
	})
}

func (s *Store) SetExamActive(ctx context.Context, id string, active bool) (domain.Exam, error) {
	res, err := s.db.NewUpdate().
		Model((*examRow)(nil)).
		Set("active = ?", active).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return domain.Exam{}, fmt.Errorf("update exam: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	return s.GetExam(ctx, id)
}

// SaveResult inserts a result. Under DuplicateOverwrite an earlier result of
// the same student is deleted first, so the new row takes the latest position.
func (s *Store) SaveResult(ctx context.Context, result domain.Result, policy domain.DuplicatePolicy) (domain.Result, error) {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	row, err := toResultRow(result)
	if err != nil {
		return domain.Result{}, err
	}

	for attempt := 1; ; attempt++ {
		err = s.saveResult(ctx, &row, policy)
		if !errors.Is(err, errResultConflict) {
			break
		}
		// a concurrent writer inserted the same student between our delete and insert
		if policy != domain.DuplicateOverwrite || attempt == maxSaveAttempts {
			err = domain.ErrDuplicateSubmission
			break
		}
	}
	if err != nil {
		return domain.Result{}, err
	}
	return result, nil
}

const maxSaveAttempts = 3

var errResultConflict = errors.New("result already stored")

func (s *Store) saveResult(ctx context.Context, row *resultRow, policy domain.DuplicatePolicy) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*examRow)(nil)).Where("id = ?", row.ExamID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check exam: %w", err)
		}
		if !exists {
			return domain.ErrExamNotFound
		}

		if policy == domain.DuplicateOverwrite {
			if _, err := tx.NewDelete().
				Model((*resultRow)(nil)).
				Where("exam_id = ? AND student_id = ?", row.ExamID, row.StudentID).
				Exec(ctx); err != nil {
				return fmt.Errorf("replace result: %w", err)
			}
		}

		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			if isStudentConflict(err) {
				return errResultConflict
			}
			return fmt.Errorf("insert result: %w", err)
		}
		return nil
	})
}

// isStudentConflict reports whether err is a violation of
// results_exam_student_idx on either driver.
func isStudentConflict(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgUniqueViolation && pgErr.Field('n') == "results_exam_student_idx"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
			strings.Contains(liteErr.Error(), "results.exam_id, results.student_id")
	}
	return false
}

const pgUniqueViolation = "23505"

func (s *Store) ListResults(ctx context.Context, examID string) ([]domain.Result, error) {
	var rows []resultRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("r.exam_id = ?", examID).
		Order("r.seq ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	results := make([]domain.Result, 0, len(rows))
	for _, row := range rows {
		r, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Store) FindResult(ctx context.Context, examID, studentID string) (domain.Result, error) {
	var row resultRow
	err := s.db.NewSelect().
		Model(&row).
		Where("r.exam_id = ? AND r.student_id = ?", examID, studentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Result{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("select result: %w", err)
	}
	return row.toDomain()
}

func toExamRow(exam domain.Exam) (examRow, error) {
	data, err := json.Marshal(exam)
	if err != nil {
		return examRow{}, fmt.Errorf("encode exam: %w", err)
	}
	return examRow{
		ID:        exam.ID,
		OwnerID:   exam.OwnerID,
		Active:    exam.Active,
		Data:      string(data),
		CreatedAt: exam.CreatedAt.UTC(),
	}, nil
}

// toDomain decodes the stored definition; the active column wins over the
// copy inside data since only the column is updated.
func (r examRow) toDomain() (domain.Exam, error) {
	var exam domain.Exam
	if err := json.Unmarshal([]byte(r.Data), &exam); err != nil {
		return domain.Exam{}, fmt.Errorf("decode exam %s: %w", r.ID, err)
	}
	exam.ID = r.ID
	exam.Active = r.Active
	return exam, nil
}

func toResultRow(r domain.Result) (resultRow, error) {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return resultRow{}, fmt.Errorf("encode answers: %w", err)
	}
	return resultRow{
		ID:           r.ID,
		ExamID:       r.ExamID,
		StudentID:    r.Student.ID,
		StudentName:  r.Student.Name,
		StudentEmail: r.Student.Email,
		Answers:      string(answers),
		Correct:      r.Score.Correct,
		Total:        r.Score.Total,
		Score:        r.Score.Value,
		SubmittedAt:  r.SubmittedAt.UTC(),
	}, nil
}

func (row resultRow) toDomain() (domain.Result, error) {
	answers := map[string]int{}
	if err := json.Unmarshal([]byte(row.Answers), &answers); err != nil {
		return domain.Result{}, fmt.Errorf("decode answers of %s: %w", row.ID, err)
	}
	return domain.Result{
		ID:      row.ID,
		ExamID:  row.ExamID,
		Student: domain.Student{ID: row.StudentID, Name: row.StudentName, Email: row.StudentEmail},
		Answers: answers,
		Score: domain.Score{
			Correct: row.Correct,
			Total:   row.Total,
			Value:   row.Score,
		},
		SubmittedAt: row.SubmittedAt,
	}, nil
}
