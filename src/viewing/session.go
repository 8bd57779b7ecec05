package viewing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eduverse-labs/eduverse/src/cache"
	"github.com/eduverse-labs/eduverse/src/jobs"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/oops"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSessionClosed = errors.New("view session is closed")
	ErrNoLicense     = errors.New("no valid license for this course")
)

type Contract interface {
	LicenseReader
	GetCourse(ctx context.Context, courseID uint64) (models.Course, error)
	GetCourseSections(ctx context.Context, courseID uint64) ([]models.Section, error)
	CompleteSection(ctx context.Context, courseID uint64, sectionIndex int) (string, error)
}

type State struct {
	Course   models.Course
	Sections []models.Section
	Access   Access
	Loaded   bool
}

// SectionCache holds section lists by course id. It outlives any single
// session, so revisiting a course doesn't refetch its sections.
type SectionCache = cache.Cache[uint64, []models.Section]

/*
Session is everything a viewer has open for one course. It owns a job, and
every call runs under the job's context: Close cancels whatever is in flight,
and any result that arrives afterwards is thrown away instead of being
written into state nobody is looking at.
*/
type Session struct {
	Holder   string
	CourseID uint64

	job      *jobs.Job
	contract Contract
	licenses *LicenseResolver
	videos   *VideoResolver
	sections *SectionCache

	mu    sync.Mutex
	state State
}

func NewSession(parent context.Context, contract Contract, licenses *LicenseResolver, videos *VideoResolver, sections *SectionCache, holder string, courseID uint64) *Session {
	if sections == nil {
		sections = cache.New[uint64, []models.Section](0)
	}
	return &Session{
		Holder:   holder,
		CourseID: courseID,
		job:      jobs.NewWithParent(parent, fmt.Sprintf("view course %d", courseID)),
		contract: contract,
		licenses: licenses,
		videos:   videos,
		sections: sections,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// update applies fn to the session state unless the session has closed.
func (s *Session) update(fn func(state *State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job.IsCanceled() {
		return ErrSessionClosed
	}
	fn(&s.state)
	return nil
}

// Load fetches the course, its sections, and the viewer's access at the
// same time.
func (s *Session) Load() (State, error) {
	ctx := s.job.Ctx
	if s.job.IsCanceled() {
		return State{}, ErrSessionClosed
	}

	var (
		course   models.Course
		sections []models.Section
		access   Access
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		course, err = s.contract.GetCourse(gctx, s.CourseID)
		if err != nil {
			return oops.New(err, "failed to load course %d", s.CourseID)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sections, err = s.loadSections(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		access, err = s.licenses.Resolve(gctx, s.Holder, s.CourseID)
		return err
	})
	if err := g.Wait(); err != nil {
		if s.job.IsCanceled() {
			return State{}, ErrSessionClosed
		}
		return State{}, err
	}

	var loaded State
	err := s.update(func(state *State) {
		state.Course = course
		state.Sections = sections
		state.Access = access
		state.Loaded = true
		loaded = *state
	})
	return loaded, err
}

func (s *Session) loadSections(ctx context.Context) ([]models.Section, error) {
	if cached, ok := s.sections.Get(s.CourseID); ok {
		return cached, nil
	}
	sections, err := s.contract.GetCourseSections(ctx, s.CourseID)
	if err != nil {
		return nil, oops.New(err, "failed to load sections of course %d", s.CourseID)
	}
	s.sections.Set(s.CourseID, sections)
	return sections, nil
}

func (s *Session) section(index int) (models.Section, error) {
	state := s.State()
	if !state.Loaded {
		return models.Section{}, oops.New(nil, "course is not loaded yet")
	}
	if !state.Access.Valid {
		return models.Section{}, ErrNoLicense
	}
	for _, sec := range state.Sections {
		if sec.OrderIndex == index {
			return sec, nil
		}
	}
	return models.Section{}, oops.New(nil, "course %d has no section %d", s.CourseID, index)
}

func (s *Session) SectionVideo(index int) (Resolution, error) {
	sec, err := s.section(index)
	if err != nil {
		return Resolution{}, err
	}
	res := s.videos.Resolve(s.job.Ctx, sec.ContentCID)
	if s.job.IsCanceled() {
		return Resolution{}, ErrSessionClosed
	}
	return res, nil
}

// RetryVideo drops the cached URL for a section and resolves it again.
func (s *Session) RetryVideo(index int) (Resolution, error) {
	sec, err := s.section(index)
	if err != nil {
		return Resolution{}, err
	}
	res := s.videos.Retry(s.job.Ctx, sec.ContentCID)
	if s.job.IsCanceled() {
		return Resolution{}, ErrSessionClosed
	}
	return res, nil
}

// CompleteSection marks a section as done on chain, then refetches
// progress since the old snapshot is stale.
func (s *Session) CompleteSection(index int) (models.Progress, error) {
	if _, err := s.section(index); err != nil {
		return models.Progress{}, err
	}
	ctx := s.job.Ctx

	if _, err := s.contract.CompleteSection(ctx, s.CourseID, index); err != nil {
		return models.Progress{}, oops.New(err, "failed to complete section %d", index)
	}

	if err := s.update(func(state *State) {
		state.Access.Progress = models.ZeroProgress(s.Holder, s.CourseID)
	}); err != nil {
		return models.Progress{}, err
	}

	progress := s.licenses.Progress(ctx, s.Holder, s.CourseID)
	err := s.update(func(state *State) {
		state.Access.Progress = progress
	})
	return progress, err
}

// Close cancels anything the session still has running. It is safe to call
// more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Cancel()
	s.job.Finish()
}
