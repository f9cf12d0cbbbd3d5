package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS items (
					id             TEXT PRIMARY KEY,
					list_id        BIGINT NOT NULL,
					name           TEXT NOT NULL,
					name_key       TEXT NOT NULL,
					category       TEXT NOT NULL,
					rating         DOUBLE PRECISION NOT NULL DEFAULT 1000,
					wins           INTEGER NOT NULL DEFAULT 0,
					losses         INTEGER NOT NULL DEFAULT 0,
					matches        INTEGER NOT NULL DEFAULT 0,
					last_played    TIMESTAMPTZ,
					approved       BOOLEAN NOT NULL DEFAULT FALSE,
					submitter_id   TEXT NOT NULL DEFAULT '',
					submitter_name TEXT NOT NULL DEFAULT '',
					created_at     TIMESTAMPTZ NOT NULL,
					year           INTEGER
				)
			`); err != nil {
				return fmt.Errorf("create items: %w", err)
			}
			for _, stmt := range []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS items_list_name_key_idx ON items (list_id, name_key)`,
				`CREATE INDEX IF NOT EXISTS items_list_rating_idx ON items (list_id, approved, rating DESC, id)`,
				`CREATE INDEX IF NOT EXISTS items_list_submitter_idx ON items (list_id, submitter_name, created_at)`,
			} {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("index items: %w", err)
				}
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS items`)
		return err
	})
}
