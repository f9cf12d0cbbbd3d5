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
				CREATE TABLE IF NOT EXISTS votes (
					id         TEXT PRIMARY KEY,
					list_id    BIGINT NOT NULL,
					winner_id  TEXT NOT NULL REFERENCES items (id),
					loser_id   TEXT NOT NULL REFERENCES items (id),
					voter_id   TEXT NOT NULL DEFAULT '',
					voter_name TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL
				)
			`); err != nil {
				return fmt.Errorf("create votes: %w", err)
			}
			for _, stmt := range []string{
				`CREATE INDEX IF NOT EXISTS votes_list_voter_id_idx ON votes (list_id, voter_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS votes_list_voter_name_idx ON votes (list_id, voter_name, created_at)`,
			} {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("index votes: %w", err)
				}
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS votes`)
		return err
	})
}
