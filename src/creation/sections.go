package creation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eduverse-labs/eduverse/src/chain"
	"github.com/eduverse-labs/eduverse/src/cid"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/queue"
	"github.com/google/uuid"
)

type SectionContract interface {
	AddCourseSection(ctx context.Context, courseID uint64, title, contentCID string, durationSeconds uint32) (models.MintedSection, error)
}

type Decision int

const (
	Continue Decision = iota
	SkipRemaining
	Stop
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case SkipRemaining:
		return "skip remaining"
	case Stop:
		return "stop"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Prompter asks the person driving the flow what to do next. ConfirmNext
// answers Continue or SkipRemaining; AfterRejection answers Continue or Stop.
type Prompter interface {
	ConfirmNext(ctx context.Context, next models.PendingSection, index, total int) (Decision, error)
	AfterRejection(ctx context.Context, rejected models.PendingSection, err error) (Decision, error)
}

// AlwaysContinue never stops the loop. Useful for scripted runs.
type AlwaysContinue struct{}

func (AlwaysContinue) ConfirmNext(context.Context, models.PendingSection, int, int) (Decision, error) {
	return Continue, nil
}

func (AlwaysContinue) AfterRejection(context.Context, models.PendingSection, error) (Decision, error) {
	return Continue, nil
}

type SectionResult struct {
	LocalID    uuid.UUID
	Title      string
	OrderIndex int
	ContentCID string

	Success   bool
	SectionID string
	TxHash    string
	Reason    string
	Class     chain.ErrorClass
}

type SectionsOutcome struct {
	Results []SectionResult
	Total   int

	// Skipped is true if the person chose to skip the remaining sections.
	Skipped bool
	// Stopped is true if the person chose to stop after a rejected signature.
	Stopped bool
}

func (o SectionsOutcome) Succeeded() []SectionResult {
	var res []SectionResult
	for _, r := range o.Results {
		if r.Success {
			res = append(res, r)
		}
	}
	return res
}

func (o SectionsOutcome) Failed() []SectionResult {
	var res []SectionResult
	for _, r := range o.Results {
		if !r.Success {
			res = append(res, r)
		}
	}
	return res
}

// Untried is how many sections were never submitted.
func (o SectionsOutcome) Untried() int {
	return o.Total - len(o.Results)
}

func (o SectionsOutcome) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d sections added", len(o.Succeeded()), o.Total)

	for _, f := range o.Failed() {
		fmt.Fprintf(&b, "\nSection %q failed (%s). It can be retried later from course management.", f.Title, f.Reason)
	}
	if n := o.Untried(); n > 0 {
		fmt.Fprintf(&b, "\n%d section(s) were not submitted and can be added later from course management.", n)
	}
	return b.String()
}

type SectionMinter struct {
	Contract SectionContract
	Prompter Prompter
	Queue    *queue.Serial
}

func NewSectionMinter(contract SectionContract, prompter Prompter, delay time.Duration) *SectionMinter {
	return &SectionMinter{
		Contract: contract,
		Prompter: prompter,
		Queue:    queue.NewSerial(delay),
	}
}

// Mint submits sections one by one. A failed section is recorded and the
// loop moves on, unless the failure was a rejected signature and the person
// decides to stop. The outcome is valid even when an error is returned.
func (m *SectionMinter) Mint(ctx context.Context, courseID uint64, sections []models.PendingSection, cids UploadResult) (SectionsOutcome, error) {
	ctx, log := logging.WithModule(ctx, "sections")

	prompter := m.Prompter
	if prompter == nil {
		prompter = AlwaysContinue{}
	}

	outcome := SectionsOutcome{Total: len(sections)}
	_, err := m.Queue.Each(ctx, len(sections), func(ctx context.Context, i int) error {
		section := sections[i]

		if i > 0 {
			decision, err := prompter.ConfirmNext(ctx, section, i, len(sections))
			if err != nil {
				return err
			}
			if decision == SkipRemaining {
				log.Info().Int("remaining", len(sections)-i).Msg("skipping remaining sections")
				outcome.Skipped = true
				return queue.ErrStop
			}
		}

		contentCID := cids[section.LocalID.String()]
		if contentCID == "" {
			contentCID = cid.NoContent
		}

		result := SectionResult{
			LocalID:    section.LocalID,
			Title:      section.Title,
			OrderIndex: i,
			ContentCID: contentCID,
		}

		minted, err := m.Contract.AddCourseSection(ctx, courseID, section.Title, contentCID, section.DurationSeconds)
		if err != nil {
			result.Reason = err.Error()
			result.Class = chain.Classify(err)
			outcome.Results = append(outcome.Results, result)
			log.Warn().Err(err).Str("section", section.Title).Stringer("class", result.Class).Msg("section failed")

			if result.Class == chain.ClassUserRejected {
				decision, perr := prompter.AfterRejection(ctx, section, err)
				if perr != nil {
					return perr
				}
				if decision == Stop {
					outcome.Stopped = true
					return queue.ErrStop
				}
			}
			return nil
		}

		result.Success = true
		result.SectionID = minted.ID
		result.TxHash = minted.TxHash
		outcome.Results = append(outcome.Results, result)
		log.Info().Str("section", section.Title).Str("id", minted.ID).Msg("section added")
		return nil
	})
	return outcome, err
}
