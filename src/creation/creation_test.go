package creation

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eduverse-labs/eduverse/src/cid"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/pinning"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu       sync.Mutex
	uploaded []string
	cids     map[string]string
	failOn   string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *fakeStorage) upload(file models.LocalFile) (pinning.UploadResult, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxInFlight.Load()
		if n <= max || s.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded = append(s.uploaded, file.Name)
	if file.Name == s.failOn {
		return pinning.UploadResult{}, errors.New("storage unavailable")
	}
	c := s.cids[file.Name]
	if c == "" {
		c = "cid-" + file.Name
	}
	return pinning.UploadResult{CID: c}, nil
}

func (s *fakeStorage) UploadFile(ctx context.Context, file models.LocalFile, meta map[string]string) (pinning.UploadResult, error) {
	return s.upload(file)
}

func (s *fakeStorage) UploadVideo(ctx context.Context, file models.LocalFile, meta map[string]string) (pinning.UploadResult, error) {
	if !strings.HasPrefix(file.ContentType, "video/") {
		return pinning.UploadResult{}, pinning.ErrNotVideo
	}
	return s.upload(file)
}

type fakeContract struct {
	mu           sync.Mutex
	courseID     uint64
	courseErr    error
	courseCalls  int
	sectionCalls []string
	sectionErrs  map[string]error
	maxPrice     *big.Int
	oracleCalls  int
}

func (c *fakeContract) CreateCourse(ctx context.Context, title, description, thumbnailCID string, price *big.Int) (models.MintedCourse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courseCalls++
	if c.courseErr != nil {
		return models.MintedCourse{}, c.courseErr
	}
	return models.MintedCourse{ID: c.courseID, TxHash: "0xcourse"}, nil
}

func (c *fakeContract) AddCourseSection(ctx context.Context, courseID uint64, title, contentCID string, durationSeconds uint32) (models.MintedSection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sectionCalls = append(c.sectionCalls, title)
	if err := c.sectionErrs[title]; err != nil {
		return models.MintedSection{}, err
	}
	added := 0
	for _, t := range c.sectionCalls {
		if c.sectionErrs[t] == nil {
			added++
		}
	}
	return models.MintedSection{ID: models.SectionID(courseID, added-1), TxHash: "0x" + title}, nil
}

func (c *fakeContract) MaxPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oracleCalls++
	if c.maxPrice == nil {
		return nil, errors.New("oracle down")
	}
	return c.maxPrice, nil
}

type scriptedPrompter struct {
	confirm    []Decision
	rejection  []Decision
	confirmed  []string
	rejections []string
}

func (p *scriptedPrompter) ConfirmNext(ctx context.Context, next models.PendingSection, index, total int) (Decision, error) {
	p.confirmed = append(p.confirmed, next.Title)
	if len(p.confirm) == 0 {
		return Continue, nil
	}
	d := p.confirm[0]
	p.confirm = p.confirm[1:]
	return d, nil
}

func (p *scriptedPrompter) AfterRejection(ctx context.Context, rejected models.PendingSection, err error) (Decision, error) {
	p.rejections = append(p.rejections, rejected.Title)
	if len(p.rejection) == 0 {
		return Continue, nil
	}
	d := p.rejection[0]
	p.rejection = p.rejection[1:]
	return d, nil
}

func video(name string) *models.LocalFile {
	return &models.LocalFile{Path: "/videos/" + name, Name: name, ContentType: "video/mp4"}
}

func thumbnail(name string) *models.LocalFile {
	return &models.LocalFile{Path: "/images/" + name, Name: name, ContentType: "image/png"}
}

func noSleep(sleeps *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return ctx.Err()
	}
}

func TestSession(t *testing.T) {
	t.Run("duplicate titles are rejected without changes", func(t *testing.T) {
		s := NewSession()
		require.Nil(t, s.AddSection(models.NewPendingSection("Getting Started", 600, nil)))
		require.Nil(t, s.AddSection(models.NewPendingSection("Variables", 300, video("vars.mp4"))))
		before := s.Sections()

		err := s.AddSection(models.NewPendingSection("  getting STARTED ", 120, nil))
		assert.ErrorIs(t, err, ErrDuplicateTitle)
		assert.Equal(t, before, s.Sections())
	})
	t.Run("at most fifty sections", func(t *testing.T) {
		s := NewSession()
		for i := 0; i < models.MaxPendingSections; i++ {
			require.Nil(t, s.AddSection(models.NewPendingSection(uuid.NewString(), 60, nil)))
		}
		err := s.AddSection(models.NewPendingSection("one too many", 60, nil))
		assert.ErrorIs(t, err, ErrTooManySections)
		assert.Len(t, s.Sections(), models.MaxPendingSections)
	})
	t.Run("section limits", func(t *testing.T) {
		s := NewSession()
		var verrs validator.ValidationErrors

		err := s.AddSection(models.NewPendingSection("Too long", models.MaxSectionDuration+1, nil))
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "DurationSeconds", verrs[0].Field())

		err = s.AddSection(models.NewPendingSection("", 60, nil))
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "Title", verrs[0].Field())

		err = s.AddSection(models.NewPendingSection(strings.Repeat("a", models.MaxTitleLength+1), 60, nil))
		assert.Error(t, err)
		assert.Empty(t, s.Sections())
	})
	t.Run("remove and reset", func(t *testing.T) {
		s := NewSession()
		a := models.NewPendingSection("A", 60, nil)
		require.Nil(t, s.AddSection(a))
		require.Nil(t, s.AddSection(models.NewPendingSection("B", 60, nil)))

		assert.True(t, s.RemoveSection(a.LocalID))
		assert.False(t, s.RemoveSection(a.LocalID))
		require.Len(t, s.Sections(), 1)

		// A removed title can be used again.
		require.Nil(t, s.AddSection(models.NewPendingSection("a", 60, nil)))

		s.Form.Title = "Course"
		s.Reset()
		assert.Empty(t, s.Sections())
		assert.Equal(t, "", s.Form.Title)
	})
}

func TestValidateForm(t *testing.T) {
	form := CourseForm{Title: "Intro", Description: "Learn things", Thumbnail: thumbnail("t.png")}
	assert.Nil(t, ValidateForm(form))

	noThumb := form
	noThumb.Thumbnail = nil
	assert.ErrorIs(t, ValidateForm(noThumb), ErrNoThumbnail)

	long := form
	long.Description = strings.Repeat("x", models.MaxDescriptionLength+1)
	assert.Error(t, ValidateForm(long))

	negative := form
	negative.Price = big.NewInt(-1)
	assert.Error(t, ValidateForm(negative))
}

func TestUploader(t *testing.T) {
	form := CourseForm{Title: "Intro", Description: "d", Thumbnail: thumbnail("thumb.png")}
	sections := []models.PendingSection{
		models.NewPendingSection("One", 60, video("one.mp4")),
		models.NewPendingSection("Two", 60, nil),
		models.NewPendingSection("Three", 60, video("three.mp4")),
		models.NewPendingSection("Four", 60, video("four.mp4")),
	}

	t.Run("one cid per item, in order, one at a time", func(t *testing.T) {
		storage := &fakeStorage{}
		var sleeps []time.Duration
		u := NewUploader(storage, 750*time.Millisecond)
		u.Queue.Sleep = noSleep(&sleeps)

		var progress []int
		u.Progress = func(done, total int, item UploadItem) {
			assert.Equal(t, 4, total)
			progress = append(progress, done)
		}

		res, err := u.Upload(context.Background(), form, sections)
		require.Nil(t, err)

		assert.Equal(t, []string{"thumb.png", "one.mp4", "three.mp4", "four.mp4"}, storage.uploaded)
		assert.Equal(t, int32(1), storage.maxInFlight.Load())
		assert.Len(t, res, 4)
		assert.Equal(t, "cid-thumb.png", res.Thumbnail())
		assert.Equal(t, "cid-one.mp4", res[sections[0].LocalID.String()])
		assert.NotContains(t, res, sections[1].LocalID.String())
		assert.Equal(t, []int{1, 2, 3, 4}, progress)
		assert.Equal(t, []time.Duration{750 * time.Millisecond, 750 * time.Millisecond, 750 * time.Millisecond}, sleeps)
	})
	t.Run("first failure aborts", func(t *testing.T) {
		storage := &fakeStorage{failOn: "three.mp4"}
		u := NewUploader(storage, 0)

		_, err := u.Upload(context.Background(), form, sections)
		var uploadErr *UploadError
		require.ErrorAs(t, err, &uploadErr)
		assert.Equal(t, sections[2].LocalID.String(), uploadErr.Item.Slot)
		assert.Contains(t, err.Error(), `section "Three"`)
		assert.Equal(t, []string{"thumb.png", "one.mp4", "three.mp4"}, storage.uploaded)
	})
	t.Run("thumbnail is mandatory", func(t *testing.T) {
		u := NewUploader(&fakeStorage{}, 0)
		_, err := u.Upload(context.Background(), CourseForm{Title: "x"}, sections)
		assert.ErrorIs(t, err, ErrNoThumbnail)
	})
}

func TestCourseMinter(t *testing.T) {
	form := CourseForm{Title: "Intro", Description: "d", Thumbnail: thumbnail("t.png")}

	t.Run("price ceiling is read once", func(t *testing.T) {
		contract := &fakeContract{courseID: 7, maxPrice: big.NewInt(1000)}
		m := &CourseMinter{Contract: contract, Oracle: contract}

		paid := form
		paid.Price = big.NewInt(500)
		_, err := m.Mint(context.Background(), paid, "abc123")
		require.Nil(t, err)
		_, err = m.Mint(context.Background(), paid, "abc123")
		require.Nil(t, err)
		assert.Equal(t, 1, contract.oracleCalls)
	})
	t.Run("too expensive never writes", func(t *testing.T) {
		contract := &fakeContract{courseID: 7, maxPrice: big.NewInt(1000)}
		m := &CourseMinter{Contract: contract, Oracle: contract}

		paid := form
		paid.Price = big.NewInt(1001)
		_, err := m.Mint(context.Background(), paid, "abc123")
		assert.ErrorIs(t, err, ErrPriceTooHigh)
		assert.Equal(t, 0, contract.courseCalls)
	})
	t.Run("free courses skip the oracle", func(t *testing.T) {
		contract := &fakeContract{courseID: 7}
		m := &CourseMinter{Contract: contract, Oracle: contract}

		minted, err := m.Mint(context.Background(), form, "abc123")
		require.Nil(t, err)
		assert.Equal(t, uint64(7), minted.ID)
		assert.Equal(t, 0, contract.oracleCalls)
	})
	t.Run("failures are classified", func(t *testing.T) {
		contract := &fakeContract{courseErr: errors.New("user rejected transaction")}
		m := &CourseMinter{Contract: contract}

		_, err := m.Mint(context.Background(), form, "abc123")
		var mintErr *MintError
		require.ErrorAs(t, err, &mintErr)
		assert.Equal(t, "user-rejected", mintErr.Class.String())
	})
}

func TestSectionMinter(t *testing.T) {
	five := []models.PendingSection{
		models.NewPendingSection("S1", 60, nil),
		models.NewPendingSection("S2", 60, nil),
		models.NewPendingSection("S3", 60, nil),
		models.NewPendingSection("S4", 60, nil),
		models.NewPendingSection("S5", 60, nil),
	}

	t.Run("stop after rejection", func(t *testing.T) {
		contract := &fakeContract{sectionErrs: map[string]error{"S3": errors.New("user rejected the request")}}
		prompter := &scriptedPrompter{rejection: []Decision{Stop}}
		m := NewSectionMinter(contract, prompter, time.Second)
		m.Queue.Sleep = noSleep(nil)

		outcome, err := m.Mint(context.Background(), 7, five, UploadResult{})
		require.Nil(t, err)

		assert.Equal(t, []string{"S1", "S2", "S3"}, contract.sectionCalls)
		require.Len(t, outcome.Results, 3)
		assert.True(t, outcome.Results[0].Success)
		assert.True(t, outcome.Results[1].Success)
		assert.False(t, outcome.Results[2].Success)
		assert.True(t, outcome.Stopped)
		assert.Equal(t, 2, outcome.Untried())
		assert.Equal(t, []string{"S3"}, prompter.rejections)
	})
	t.Run("skip remaining", func(t *testing.T) {
		contract := &fakeContract{}
		prompter := &scriptedPrompter{confirm: []Decision{Continue, SkipRemaining}}
		m := NewSectionMinter(contract, prompter, 0)

		outcome, err := m.Mint(context.Background(), 7, five, UploadResult{})
		require.Nil(t, err)
		assert.Equal(t, []string{"S1", "S2"}, contract.sectionCalls)
		assert.Equal(t, []string{"S2", "S3"}, prompter.confirmed)
		assert.True(t, outcome.Skipped)
		assert.Contains(t, outcome.Summary(), "2/5 sections added")
	})
	t.Run("non-rejection failures keep going without asking", func(t *testing.T) {
		contract := &fakeContract{sectionErrs: map[string]error{"S2": errors.New("execution reverted")}}
		prompter := &scriptedPrompter{}
		m := NewSectionMinter(contract, prompter, 0)

		outcome, err := m.Mint(context.Background(), 7, five, UploadResult{five[0].LocalID.String(): "bafyvideo"})
		require.Nil(t, err)
		assert.Len(t, contract.sectionCalls, 5)
		assert.Empty(t, prompter.rejections)
		assert.Len(t, outcome.Succeeded(), 4)
		assert.Equal(t, "bafyvideo", outcome.Results[0].ContentCID)
		assert.Equal(t, cid.NoContent, outcome.Results[1].ContentCID)
		assert.Equal(t, 1, outcome.Results[1].OrderIndex)
	})
	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		contract := &fakeContract{}
		prompter := &scriptedPrompter{}
		m := NewSectionMinter(contract, prompter, time.Second)
		m.Queue.Sleep = func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}

		outcome, err := m.Mint(ctx, 7, five, UploadResult{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, outcome.Results, 1)
	})
}

type fakeJournal struct {
	attempts []string
	courses  []uint64
	sections []models.SectionSubmission
	statuses []models.CreationStatus
}

func (j *fakeJournal) StartAttempt(ctx context.Context, title, creator string) (uuid.UUID, error) {
	j.attempts = append(j.attempts, title)
	return uuid.New(), nil
}

func (j *fakeJournal) RecordCourse(ctx context.Context, attemptID uuid.UUID, courseID uint64) error {
	j.courses = append(j.courses, courseID)
	return nil
}

func (j *fakeJournal) RecordSection(ctx context.Context, sub models.SectionSubmission) error {
	j.sections = append(j.sections, sub)
	return nil
}

func (j *fakeJournal) FinishAttempt(ctx context.Context, attemptID uuid.UUID, status models.CreationStatus, reason string) error {
	j.statuses = append(j.statuses, status)
	return nil
}

func newFlow(storage *fakeStorage, contract *fakeContract, prompter Prompter, journal Journal) *Flow {
	flow := &Flow{
		Uploader:      NewUploader(storage, 0),
		CourseMinter:  &CourseMinter{Contract: contract, Oracle: contract},
		SectionMinter: NewSectionMinter(contract, prompter, 0),
	}
	if journal != nil {
		flow.Journal = journal
	}
	return flow
}

func TestFlow(t *testing.T) {
	t.Run("one of two sections added", func(t *testing.T) {
		storage := &fakeStorage{cids: map[string]string{"thumb.png": "abc123"}}
		contract := &fakeContract{
			courseID:    7,
			sectionErrs: map[string]error{"B": errors.New("network error")},
		}
		prompter := &scriptedPrompter{}
		journal := &fakeJournal{}
		flow := newFlow(storage, contract, prompter, journal)

		session := NewSession()
		session.Form = CourseForm{Title: "Intro", Description: "d", Thumbnail: thumbnail("thumb.png")}
		require.Nil(t, session.AddSection(models.NewPendingSection("A", 60, nil)))
		require.Nil(t, session.AddSection(models.NewPendingSection("B", 60, nil)))

		res, err := flow.Run(context.Background(), session)
		require.Nil(t, err)

		assert.Equal(t, "abc123", res.ThumbnailCID)
		assert.Equal(t, uint64(7), res.CourseID)
		require.Len(t, res.Sections.Results, 2)
		assert.True(t, res.Sections.Results[0].Success)
		assert.Equal(t, "7-0", res.Sections.Results[0].SectionID)
		assert.False(t, res.Sections.Results[1].Success)
		assert.Equal(t, "network error", res.Sections.Results[1].Reason)

		summary := res.Sections.Summary()
		assert.True(t, strings.HasPrefix(summary, "1/2 sections added"))
		assert.Contains(t, summary, `Section "B" failed (network error). It can be retried later`)

		assert.Empty(t, session.Sections())
		assert.Equal(t, []uint64{7}, journal.courses)
		require.Len(t, journal.sections, 2)
		assert.True(t, journal.sections[0].Success)
		assert.Equal(t, "network error", *journal.sections[1].Reason)
		assert.Equal(t, []models.CreationStatus{models.CreationCompleted}, journal.statuses)
	})
	t.Run("upload failure stops before minting", func(t *testing.T) {
		storage := &fakeStorage{failOn: "thumb.png"}
		contract := &fakeContract{courseID: 7}
		journal := &fakeJournal{}
		flow := newFlow(storage, contract, &scriptedPrompter{}, journal)

		session := NewSession()
		session.Form = CourseForm{Title: "Intro", Description: "d", Thumbnail: thumbnail("thumb.png")}
		require.Nil(t, session.AddSection(models.NewPendingSection("A", 60, video("a.mp4"))))

		_, err := flow.Run(context.Background(), session)
		var uploadErr *UploadError
		require.ErrorAs(t, err, &uploadErr)
		assert.Equal(t, ThumbnailSlot, uploadErr.Item.Slot)
		assert.Equal(t, 0, contract.courseCalls)
		assert.Empty(t, contract.sectionCalls)
		assert.Empty(t, session.Sections())
		assert.Equal(t, []models.CreationStatus{models.CreationAborted}, journal.statuses)
	})
	t.Run("course mint failure stops before sections", func(t *testing.T) {
		contract := &fakeContract{courseErr: errors.New("insufficient funds for gas")}
		flow := newFlow(&fakeStorage{}, contract, &scriptedPrompter{}, nil)

		session := NewSession()
		session.Form = CourseForm{Title: "Intro", Description: "d", Thumbnail: thumbnail("thumb.png")}
		require.Nil(t, session.AddSection(models.NewPendingSection("A", 60, nil)))

		_, err := flow.Run(context.Background(), session)
		var mintErr *MintError
		require.ErrorAs(t, err, &mintErr)
		assert.Equal(t, "insufficient-funds", mintErr.Class.String())
		assert.Empty(t, contract.sectionCalls)
	})
	t.Run("invalid form keeps pending sections", func(t *testing.T) {
		storage := &fakeStorage{}
		contract := &fakeContract{courseID: 7}
		journal := &fakeJournal{}
		flow := newFlow(storage, contract, &scriptedPrompter{}, journal)

		session := NewSession()
		session.Form = CourseForm{Title: "Intro", Description: "d"}
		require.Nil(t, session.AddSection(models.NewPendingSection("A", 60, nil)))

		_, err := flow.Run(context.Background(), session)
		assert.ErrorIs(t, err, ErrNoThumbnail)
		assert.Len(t, session.Sections(), 1)
		assert.Empty(t, journal.attempts)
		assert.Equal(t, 0, contract.courseCalls)
	})
}

func TestPendingFromSubmissions(t *testing.T) {
	reason := "network error"
	subs := []models.SectionSubmission{
		{Title: "B", DurationSeconds: 120, ContentCID: "bafyB", Reason: &reason},
		{Title: "C", DurationSeconds: 60, ContentCID: cid.NoContent, Reason: &reason},
	}
	sections, cids := PendingFromSubmissions(subs)
	require.Len(t, sections, 2)
	assert.Equal(t, "bafyB", cids[sections[0].LocalID.String()])
	assert.Equal(t, models.UploadUploaded, sections[0].Status)
	assert.NotContains(t, cids, sections[1].LocalID.String())
	assert.Equal(t, uint32(120), sections[0].DurationSeconds)
}
