package journal

import (
	"context"
	"time"

	"github.com/eduverse-labs/eduverse/src/db"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/eduverse-labs/eduverse/src/perf"
	"github.com/google/uuid"
)

// Store records creation attempts and the outcome of every section
// submission in Postgres.
type Store struct {
	Conn db.ConnOrTx
	Now  func() time.Time
}

func NewStore(conn db.ConnOrTx) *Store {
	return &Store{
		Conn: conn,
		Now:  time.Now,
	}
}

func (s *Store) StartAttempt(ctx context.Context, title, creator string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.Conn.Exec(ctx,
		`
		---- Start creation attempt
		INSERT INTO creation_attempt (id, title, creator, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		`,
		id,
		title,
		creator,
		models.CreationStarted,
		s.Now(),
	)
	if err != nil {
		return uuid.Nil, oops.New(err, "failed to insert creation attempt")
	}
	return id, nil
}

func (s *Store) RecordCourse(ctx context.Context, attemptID uuid.UUID, courseID uint64) error {
	tag, err := s.Conn.Exec(ctx,
		`
		---- Record minted course
		UPDATE creation_attempt
		SET course_id = $2, status = $3
		WHERE id = $1
		`,
		attemptID,
		int64(courseID),
		models.CreationMinted,
	)
	if err != nil {
		return oops.New(err, "failed to record course %d for attempt %s", courseID, attemptID)
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound
	}
	return nil
}

func (s *Store) RecordSection(ctx context.Context, sub models.SectionSubmission) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.Now()
	}
	_, err := s.Conn.Exec(ctx,
		`
		---- Record section submission
		INSERT INTO section_submission (
			attempt_id, course_id, order_index, title, duration_seconds,
			content_cid, success, section_id, reason, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
		sub.AttemptID,
		sub.CourseID,
		sub.OrderIndex,
		sub.Title,
		sub.DurationSeconds,
		sub.ContentCID,
		sub.Success,
		sub.SectionID,
		sub.Reason,
		sub.CreatedAt,
	)
	if err != nil {
		return oops.New(err, "failed to record section %q", sub.Title)
	}
	return nil
}

func (s *Store) FinishAttempt(ctx context.Context, attemptID uuid.UUID, status models.CreationStatus, reason string) error {
	var errText *string
	if reason != "" {
		errText = &reason
	}
	_, err := s.Conn.Exec(ctx,
		`
		---- Finish creation attempt
		UPDATE creation_attempt
		SET status = $2, error = $3
		WHERE id = $1
		`,
		attemptID,
		status,
		errText,
	)
	if err != nil {
		return oops.New(err, "failed to finish attempt %s", attemptID)
	}
	return nil
}

func (s *Store) FetchAttempt(ctx context.Context, id uuid.UUID) (*models.CreationAttempt, error) {
	attempt, err := db.QueryOne[models.CreationAttempt](ctx, s.Conn,
		`
		---- Fetch creation attempt
		SELECT $columns
		FROM creation_attempt
		WHERE id = $1
		`,
		id,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch attempt %s", id)
	}
	return attempt, nil
}

type SubmissionQuery struct {
	CourseID  int64
	AttemptID uuid.UUID

	OnlyFailed     bool
	IncludeRetried bool

	Limit int // if empty, no limit
}

func (q SubmissionQuery) build() *db.QueryBuilder {
	var qb db.QueryBuilder
	qb.Add(
		`
		---- Fetch section submissions
		SELECT $columns
		FROM section_submission
		WHERE
			TRUE
		`,
	)
	qb.AddIf(q.CourseID != 0, `AND course_id = $?`, q.CourseID)
	qb.AddIf(q.AttemptID != uuid.Nil, `AND attempt_id = $?`, q.AttemptID)
	qb.AddIf(q.OnlyFailed, `AND NOT success`)
	qb.AddIf(!q.IncludeRetried, `AND retried_at IS NULL`)
	qb.Add(`ORDER BY course_id, order_index, id`)
	qb.AddIf(q.Limit > 0, `LIMIT $?`, q.Limit)
	return &qb
}

func (s *Store) FetchSubmissions(ctx context.Context, q SubmissionQuery) ([]models.SectionSubmission, error) {
	block := perf.ExtractPerf(ctx).StartBlock("SQL", "Fetch section submissions")
	defer block.End()

	qb := q.build()
	subs, err := db.Query[models.SectionSubmission](ctx, s.Conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch section submissions")
	}
	return subs, nil
}

// FailedSections lists failed submissions for a course that have not been
// retried yet.
func (s *Store) FailedSections(ctx context.Context, courseID uint64) ([]models.SectionSubmission, error) {
	return s.FetchSubmissions(ctx, SubmissionQuery{
		CourseID:   int64(courseID),
		OnlyFailed: true,
	})
}

// MarkSectionRetried stamps a failed submission so it no longer shows up in
// FailedSections. It returns db.NotFound if there is no such submission or
// it was already retried.
func (s *Store) MarkSectionRetried(ctx context.Context, id int64) error {
	tag, err := s.Conn.Exec(ctx,
		`
		---- Mark section retried
		UPDATE section_submission
		SET retried_at = $2
		WHERE id = $1 AND NOT success AND retried_at IS NULL
		`,
		id,
		s.Now(),
	)
	if err != nil {
		return oops.New(err, "failed to mark submission %d retried", id)
	}
	if tag.RowsAffected() == 0 {
		return db.NotFound
	}
	return nil
}
