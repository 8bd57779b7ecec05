package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eduverse-labs/eduverse/src/chain"
	"github.com/eduverse-labs/eduverse/src/creation"
	"github.com/eduverse-labs/eduverse/src/models"
)

// TerminalPrompter asks on a terminal before each section write. Running out
// of input counts as skipping the rest (or stopping, after a rejection).
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

var _ creation.Prompter = &TerminalPrompter{}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

func (p *TerminalPrompter) ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

func (p *TerminalPrompter) ConfirmNext(ctx context.Context, next models.PendingSection, index, total int) (creation.Decision, error) {
	answer, err := p.ask(ctx, fmt.Sprintf("Add section %d of %d, %q? [Y]es / [s]kip remaining: ", index+1, total, next.Title))
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(p.out)
		return creation.SkipRemaining, nil
	} else if err != nil {
		return creation.Stop, err
	}

	switch answer {
	case "", "y", "yes", "c", "continue":
		return creation.Continue, nil
	default:
		return creation.SkipRemaining, nil
	}
}

func (p *TerminalPrompter) AfterRejection(ctx context.Context, rejected models.PendingSection, cause error) (creation.Decision, error) {
	fmt.Fprintf(p.out, "Section %q: %s\n", rejected.Title, chain.ClassUserRejected.UserMessage())
	answer, err := p.ask(ctx, "Keep going with the next section? [y]es / [N]o, stop: ")
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(p.out)
		return creation.Stop, nil
	} else if err != nil {
		return creation.Stop, err
	}

	switch answer {
	case "y", "yes", "c", "continue":
		return creation.Continue, nil
	default:
		return creation.Stop, nil
	}
}
