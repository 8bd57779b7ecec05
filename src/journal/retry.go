package journal

import (
	"context"
	"fmt"

	"github.com/eduverse-labs/eduverse/src/creation"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/models"
)

/*
Retry submits previously failed sections again. The retry is journaled as
an attempt of its own, and the old submissions are stamped as retried once
the new results are recorded, so a section that fails again shows up in
FailedSections exactly once.
*/
func (s *Store) Retry(
	ctx context.Context,
	minter *creation.SectionMinter,
	courseID uint64,
	creator string,
	failed []models.SectionSubmission,
) (creation.SectionsOutcome, error) {
	ctx, log := logging.WithModule(ctx, "journal")
	if len(failed) == 0 {
		return creation.SectionsOutcome{}, nil
	}

	attemptID, err := s.StartAttempt(ctx, fmt.Sprintf("retry sections of course %d", courseID), creator)
	if err != nil {
		return creation.SectionsOutcome{}, err
	}
	if err := s.RecordCourse(ctx, attemptID, courseID); err != nil {
		return creation.SectionsOutcome{}, err
	}

	sections, cids := creation.PendingFromSubmissions(failed)
	outcome, mintErr := minter.Mint(ctx, courseID, sections, cids)

	recorded := true
	for _, sub := range creation.Submissions(attemptID, courseID, sections, cids, outcome) {
		if err := s.RecordSection(ctx, sub); err != nil {
			log.Error().Err(err).Str("section", sub.Title).Msg("failed to journal retried section")
			recorded = false
		}
	}
	if recorded {
		for _, old := range failed {
			if err := s.MarkSectionRetried(ctx, old.ID); err != nil {
				log.Error().Err(err).Int64("submission", old.ID).Msg("failed to mark section retried")
			}
		}
	}

	status := models.CreationCompleted
	reason := ""
	if mintErr != nil {
		status = models.CreationMinted
		reason = mintErr.Error()
	}
	if err := s.FinishAttempt(ctx, attemptID, status, reason); err != nil {
		log.Error().Err(err).Msg("failed to journal retry result")
	}
	return outcome, mintErr
}
