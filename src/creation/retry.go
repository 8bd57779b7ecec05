package creation

import (
	"github.com/eduverse-labs/eduverse/src/cid"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/google/uuid"
)

// PendingFromSubmissions rebuilds pending sections from journaled failures,
// so they can go through SectionMinter again with the content that was
// already uploaded.
func PendingFromSubmissions(subs []models.SectionSubmission) ([]models.PendingSection, UploadResult) {
	sections := make([]models.PendingSection, 0, len(subs))
	cids := make(UploadResult, len(subs))
	for _, sub := range subs {
		section := models.PendingSection{
			LocalID:         uuid.New(),
			Title:           sub.Title,
			DurationSeconds: uint32(sub.DurationSeconds),
			Status:          models.UploadNoVideo,
		}
		if !cid.IsNoContent(sub.ContentCID) {
			section.Status = models.UploadUploaded
			cids[section.LocalID.String()] = sub.ContentCID
		}
		sections = append(sections, section)
	}
	return sections, cids
}
