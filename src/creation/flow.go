package creation

import (
	"context"

	"github.com/eduverse-labs/eduverse/src/cid"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/eduverse-labs/eduverse/src/perf"
	"github.com/eduverse-labs/eduverse/src/utils"
	"github.com/google/uuid"
)

// Journal keeps a durable record of creation attempts so failed sections can
// be found again later. Implementations must be safe to leave nil.
type Journal interface {
	StartAttempt(ctx context.Context, title, creator string) (uuid.UUID, error)
	RecordCourse(ctx context.Context, attemptID uuid.UUID, courseID uint64) error
	RecordSection(ctx context.Context, sub models.SectionSubmission) error
	FinishAttempt(ctx context.Context, attemptID uuid.UUID, status models.CreationStatus, reason string) error
}

type FlowResult struct {
	AttemptID    uuid.UUID
	CourseID     uint64
	CourseTx     string
	ThumbnailCID string
	Uploads      UploadResult
	Sections     SectionsOutcome
}

type Flow struct {
	Uploader      *Uploader
	CourseMinter  *CourseMinter
	SectionMinter *SectionMinter
	Journal       Journal
	Creator       string
}

/*
Run takes a session through upload, course mint and section mint. Each
phase only starts if the one before it worked. Upload and course mint
failures end the attempt; section failures are part of the result. A form
that fails validation leaves the session untouched; once the flow has
started, the session is reset afterwards in every case.
*/
func (f *Flow) Run(ctx context.Context, session *Session) (FlowResult, error) {
	var result FlowResult

	form := session.Form
	if err := ValidateForm(form); err != nil {
		return result, err
	}

	ctx, log := logging.WithModule(ctx, "creation")
	defer session.Reset()

	p := perf.ExtractPerf(ctx)
	if p == nil {
		p = perf.MakeNewRunPerf("create course")
		ctx = perf.AttachPerf(ctx, p)
		defer func() {
			p.EndRun()
			log.Debug().Dur("took", p.End.Sub(p.Start)).Msg("creation flow finished")
		}()
	}

	sections := session.Sections()

	result.AttemptID = f.startAttempt(ctx, form.Title)

	block := p.StartBlock("CREATE", "upload files")
	uploads, err := f.Uploader.Upload(ctx, form, sections)
	block.End()
	if err != nil {
		f.finish(ctx, result.AttemptID, models.CreationAborted, err)
		return result, err
	}
	result.Uploads = uploads
	result.ThumbnailCID = uploads.Thumbnail()
	for _, s := range sections {
		if _, ok := uploads[s.LocalID.String()]; ok {
			session.setStatus(s.LocalID, models.UploadUploaded)
		}
	}

	block = p.StartBlock("CREATE", "mint course")
	course, err := f.CourseMinter.Mint(ctx, form, result.ThumbnailCID)
	block.End()
	if err != nil {
		f.finish(ctx, result.AttemptID, models.CreationAborted, err)
		return result, err
	}
	result.CourseID = course.ID
	result.CourseTx = course.TxHash
	f.recordCourse(ctx, result.AttemptID, course.ID)

	block = p.StartBlock("CREATE", "mint sections")
	outcome, err := f.SectionMinter.Mint(ctx, course.ID, sections, uploads)
	block.End()
	result.Sections = outcome
	f.recordSections(ctx, result.AttemptID, course.ID, sections, uploads, outcome)
	if err != nil {
		f.finish(ctx, result.AttemptID, models.CreationMinted, err)
		return result, oops.New(err, "course %d was created but adding sections was interrupted", course.ID)
	}

	f.finish(ctx, result.AttemptID, models.CreationCompleted, nil)
	log.Info().
		Uint64("courseId", course.ID).
		Int("added", len(outcome.Succeeded())).
		Int("failed", len(outcome.Failed())).
		Msg("course created")
	return result, nil
}

func (f *Flow) startAttempt(ctx context.Context, title string) uuid.UUID {
	if f.Journal == nil {
		return uuid.Nil
	}
	id, err := f.Journal.StartAttempt(ctx, title, f.Creator)
	if err != nil {
		logging.ExtractLogger(ctx).Error().Err(err).Msg("failed to journal creation attempt")
		return uuid.Nil
	}
	return id
}

func (f *Flow) recordCourse(ctx context.Context, attemptID uuid.UUID, courseID uint64) {
	if f.Journal == nil || attemptID == uuid.Nil {
		return
	}
	if err := f.Journal.RecordCourse(ctx, attemptID, courseID); err != nil {
		logging.ExtractLogger(ctx).Error().Err(err).Msg("failed to journal minted course")
	}
}

func (f *Flow) recordSections(ctx context.Context, attemptID uuid.UUID, courseID uint64, sections []models.PendingSection, cids UploadResult, outcome SectionsOutcome) {
	if f.Journal == nil || attemptID == uuid.Nil {
		return
	}
	for _, sub := range Submissions(attemptID, courseID, sections, cids, outcome) {
		if err := f.Journal.RecordSection(ctx, sub); err != nil {
			logging.ExtractLogger(ctx).Error().Err(err).Str("section", sub.Title).Msg("failed to journal section")
		}
	}
}

func (f *Flow) finish(ctx context.Context, attemptID uuid.UUID, status models.CreationStatus, cause error) {
	if f.Journal == nil || attemptID == uuid.Nil {
		return
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if err := f.Journal.FinishAttempt(ctx, attemptID, status, reason); err != nil {
		logging.ExtractLogger(ctx).Error().Err(err).Msg("failed to journal attempt result")
	}
}

// Submissions turns section results into journal rows. Sections that were
// never tried are recorded as failures so they can be retried too.
func Submissions(attemptID uuid.UUID, courseID uint64, sections []models.PendingSection, cids UploadResult, outcome SectionsOutcome) []models.SectionSubmission {
	byID := make(map[uuid.UUID]SectionResult, len(outcome.Results))
	for _, r := range outcome.Results {
		byID[r.LocalID] = r
	}

	subs := make([]models.SectionSubmission, 0, len(sections))
	for i, s := range sections {
		sub := models.SectionSubmission{
			AttemptID:       attemptID,
			CourseID:        int64(courseID),
			OrderIndex:      i,
			Title:           s.Title,
			DurationSeconds: int64(s.DurationSeconds),
		}
		r, tried := byID[s.LocalID]
		switch {
		case !tried:
			reason := "not submitted"
			sub.Reason = &reason
			sub.ContentCID = utils.OrDefault(cids[s.LocalID.String()], cid.NoContent)
		case r.Success:
			id := r.SectionID
			sub.Success = true
			sub.SectionID = &id
			sub.ContentCID = r.ContentCID
		default:
			reason := r.Reason
			sub.Reason = &reason
			sub.ContentCID = r.ContentCID
		}
		subs = append(subs, sub)
	}
	return subs
}
