package models

import (
	"fmt"

	"github.com/google/uuid"
)

type Section struct {
	ID              string
	CourseID        uint64
	Title           string
	DurationSeconds uint32
	ContentCID      string
	OrderIndex      int
}

func SectionID(courseID uint64, orderIndex int) string {
	return fmt.Sprintf("%d-%d", courseID, orderIndex)
}

type MintedSection struct {
	ID     string
	TxHash string
}

type UploadStatus int

const (
	UploadPending UploadStatus = iota
	UploadNoVideo
	UploadUploaded
)

func (s UploadStatus) String() string {
	switch s {
	case UploadPending:
		return "pending"
	case UploadNoVideo:
		return "no-video"
	case UploadUploaded:
		return "uploaded"
	}
	return fmt.Sprintf("UploadStatus(%d)", int(s))
}

// A LocalFile is a file on disk that has not been uploaded yet.
type LocalFile struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

// PendingSection only exists on the client, between the user adding a
// section to a new course and that section being minted.
type PendingSection struct {
	LocalID         uuid.UUID
	Title           string `validate:"required,max=200"`
	DurationSeconds uint32 `validate:"min=1,max=86400"`
	Video           *LocalFile
	Status          UploadStatus
}

func NewPendingSection(title string, durationSeconds uint32, video *LocalFile) PendingSection {
	status := UploadPending
	if video == nil {
		status = UploadNoVideo
	}
	return PendingSection{
		LocalID:         uuid.New(),
		Title:           title,
		DurationSeconds: durationSeconds,
		Video:           video,
		Status:          status,
	}
}
