package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"exam-service/internal/domain"
)

// ExamLoader reads exam definitions straight from the exams table written by
// the SQL store. It feeds the exam caches without going through bun.
type ExamLoader struct {
	pool *pgxpool.Pool
}

func NewExamLoader(pool *pgxpool.Pool) *ExamLoader {
	return &ExamLoader{pool: pool}
}

func (l *ExamLoader) GetExam(ctx context.Context, id string) (domain.Exam, error) {
	var (
		raw    string
		active bool
	)
	err := l.pool.QueryRow(ctx, `SELECT data, active FROM exams WHERE id=$1`, id).Scan(&raw, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam: %w", err)
	}
	var exam domain.Exam
	if err := json.Unmarshal([]byte(raw), &exam); err != nil {
		return domain.Exam{}, fmt.Errorf("unmarshal exam: %w", err)
	}
	exam.ID = id
	exam.Active = active
	return exam, nil
}
