package migrations

import (
	"context"
	"time"

	"github.com/eduverse-labs/eduverse/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddSectionRetries{})
}

type AddSectionRetries struct{}

func (m AddSectionRetries) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 9, 20, 16, 42, 10, 0, time.UTC))
}

func (m AddSectionRetries) Name() string {
	return "AddSectionRetries"
}

func (m AddSectionRetries) Description() string {
	return "Track when failed sections were retried, and index the failures"
}

func (m AddSectionRetries) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		ALTER TABLE section_submission
			ADD COLUMN retried_at TIMESTAMP WITH TIME ZONE;

		CREATE INDEX section_submission_pending_retry
			ON section_submission (course_id, order_index)
			WHERE NOT success AND retried_at IS NULL;
		`,
	)
	return err
}

func (m AddSectionRetries) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP INDEX section_submission_pending_retry;

		ALTER TABLE section_submission
			DROP COLUMN retried_at;
		`,
	)
	return err
}
