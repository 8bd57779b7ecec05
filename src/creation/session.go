package creation

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrDuplicateTitle  = errors.New("a section with this title already exists")
	ErrTooManySections = errors.New("too many sections")
	ErrNoThumbnail     = errors.New("a thumbnail is required")
)

var validate = validator.New()

// CourseForm is everything a creator fills in about the course itself.
type CourseForm struct {
	Title       string            `validate:"required,max=200"`
	Description string            `validate:"required,max=1000"`
	Price       *big.Int          // wei per period; nil or zero means free
	Thumbnail   *models.LocalFile `validate:"required"`
}

func (f *CourseForm) IsFree() bool {
	return f.Price == nil || f.Price.Sign() == 0
}

func ValidateForm(form CourseForm) error {
	if form.Thumbnail == nil {
		return ErrNoThumbnail
	}
	if err := validate.Struct(form); err != nil {
		return oops.New(err, "invalid course details")
	}
	if form.Price != nil && form.Price.Sign() < 0 {
		return oops.New(nil, "price cannot be negative")
	}
	return nil
}

/*
Session holds a course that is being put together: the form and the list of
sections that haven't been minted yet. Pending sections only ever live here,
and the session is reset once a creation flow ends, whether it worked or not.
*/
type Session struct {
	Form CourseForm

	mu      sync.Mutex
	pending []models.PendingSection
}

func NewSession() *Session {
	return &Session{}
}

// AddSection validates a pending section and appends it. Nothing changes if
// it is rejected.
func (s *Session) AddSection(section models.PendingSection) error {
	if err := validate.Struct(section); err != nil {
		return oops.New(err, "invalid section %q", section.Title)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) >= models.MaxPendingSections {
		return oops.New(ErrTooManySections, "a course can have at most %d sections", models.MaxPendingSections)
	}
	title := strings.TrimSpace(section.Title)
	for _, existing := range s.pending {
		if strings.EqualFold(strings.TrimSpace(existing.Title), title) {
			return oops.New(ErrDuplicateTitle, "section %q", section.Title)
		}
	}
	if section.LocalID == uuid.Nil {
		section.LocalID = uuid.New()
	}

	s.pending = append(s.pending, section)
	return nil
}

func (s *Session) RemoveSection(localID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.pending {
		if p.LocalID == localID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Sections returns a copy of the pending list in order.
func (s *Session) Sections() []models.PendingSection {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]models.PendingSection, len(s.pending))
	copy(res, s.pending)
	return res
}

func (s *Session) setStatus(localID uuid.UUID, status models.UploadStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.pending {
		if s.pending[i].LocalID == localID {
			s.pending[i].Status = status
		}
	}
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Form = CourseForm{}
	s.pending = nil
}
