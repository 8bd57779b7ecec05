package models

import (
	"time"

	"github.com/google/uuid"
)

type CreationStatus string

const (
	CreationStarted   CreationStatus = "started"
	CreationAborted   CreationStatus = "aborted"
	CreationMinted    CreationStatus = "minted"
	CreationCompleted CreationStatus = "completed"
)

type CreationAttempt struct {
	ID        uuid.UUID      `db:"id"`
	Title     string         `db:"title"`
	Creator   string         `db:"creator"`
	CourseID  *int64         `db:"course_id"`
	Status    CreationStatus `db:"status"`
	Error     *string        `db:"error"`
	CreatedAt time.Time      `db:"created_at"`
}

type SectionSubmission struct {
	ID              int64      `db:"id"`
	AttemptID       uuid.UUID  `db:"attempt_id"`
	CourseID        int64      `db:"course_id"`
	OrderIndex      int        `db:"order_index"`
	Title           string     `db:"title"`
	DurationSeconds int64      `db:"duration_seconds"`
	ContentCID      string     `db:"content_cid"`
	Success         bool       `db:"success"`
	SectionID       *string    `db:"section_id"`
	Reason          *string    `db:"reason"`
	RetriedAt       *time.Time `db:"retried_at"`
	CreatedAt       time.Time  `db:"created_at"`
}
