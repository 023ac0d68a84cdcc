package migrations

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type resultV1 struct {
	bun.BaseModel `bun:"table:results"`

	Seq          int64     `bun:"seq,pk,autoincrement"`
	ID           string    `bun:"id,notnull,unique"`
	ExamID       string    `bun:"exam_id,notnull"`
	StudentID    string    `bun:"student_id,notnull"`
	StudentName  string    `bun:"student_name"`
	StudentEmail string    `bun:"student_email"`
	Answers      string    `bun:"answers,notnull"`
	Correct      int       `bun:"correct,notnull"`
	Total        int       `bun:"total,notnull"`
	Score        float64   `bun:"score,notnull"`
	SubmittedAt  time.Time `bun:"submitted_at,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.NewCreateTable().Model((*resultV1)(nil)).IfNotExists().Exec(ctx); err != nil {
				return err
			}
			// one result per student per exam
			_, err := db.NewCreateIndex().
				Model((*resultV1)(nil)).
				Unique().
				Index("results_exam_student_idx").
				Column("exam_id", "student_id").
				IfNotExists().
				Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDropTable().Model((*resultV1)(nil)).IfExists().Exec(ctx)
			return err
		},
	)
}
