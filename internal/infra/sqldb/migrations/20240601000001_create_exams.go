package migrations

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type examV1 struct {
	bun.BaseModel `bun:"table:exams"`

	Seq       int64     `bun:"seq,pk,autoincrement"`
	ID        string    `bun:"id,notnull,unique"`
	OwnerID   string    `bun:"owner_id,notnull"`
	Active    bool      `bun:"active,notnull"`
	Data      string    `bun:"data,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.NewCreateTable().Model((*examV1)(nil)).IfNotExists().Exec(ctx); err != nil {
				return err
			}
			_, err := db.NewCreateIndex().
				Model((*examV1)(nil)).
				Index("exams_owner_idx").
				Column("owner_id").
				IfNotExists().
				Exec(ctx)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDropTable().Model((*examV1)(nil)).IfExists().Exec(ctx)
			return err
		},
	)
}
