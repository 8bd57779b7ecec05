package migrations

import (
	"context"
	"time"

	"github.com/eduverse-labs/eduverse/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddCreationJournal{})
}

type AddCreationJournal struct{}

func (m AddCreationJournal) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 9, 2, 10, 15, 0, 0, time.UTC))
}

func (m AddCreationJournal) Name() string {
	return "AddCreationJournal"
}

func (m AddCreationJournal) Description() string {
	return "Add tables recording course creation attempts and section submissions"
}

func (m AddCreationJournal) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE creation_attempt (
			id UUID PRIMARY KEY,
			title VARCHAR(200) NOT NULL,
			creator VARCHAR(64) NOT NULL DEFAULT '',
			course_id BIGINT,
			status VARCHAR(16) NOT NULL DEFAULT 'started',
			error TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE section_submission (
			id BIGSERIAL PRIMARY KEY,
			attempt_id UUID NOT NULL REFERENCES creation_attempt (id) ON DELETE CASCADE,
			course_id BIGINT NOT NULL,
			order_index INTEGER NOT NULL,
			title VARCHAR(200) NOT NULL,
			duration_seconds BIGINT NOT NULL,
			content_cid TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			section_id TEXT,
			reason TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			CONSTRAINT section_submission_outcome CHECK (success = (section_id IS NOT NULL))
		);
		`,
	)
	return err
}

func (m AddCreationJournal) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE section_submission;
		DROP TABLE creation_attempt;
		`,
	)
	return err
}
