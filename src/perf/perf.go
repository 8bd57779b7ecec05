package perf

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// RunPerf records how long each phase of a single run took (for example
// uploads, the course mint and each section mint of a course creation).
type RunPerf struct {
	Name   string
	Start  time.Time
	End    time.Time
	Blocks []PerfBlock

	mu sync.Mutex
}

func MakeNewRunPerf(name string) *RunPerf {
	return &RunPerf{
		Name:  name,
		Start: time.Now(),
	}
}

func (rp *RunPerf) EndRun() {
	for rp.EndBlock() {
	}
	rp.mu.Lock()
	rp.End = time.Now()
	rp.mu.Unlock()
}

func (rp *RunPerf) Checkpoint(category, description string) {
	now := time.Now()
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       now,
		End:         now,
		Category:    category,
		Description: description,
	})
}

// StartBlock opens a block that is closed either through the returned handle
// or by EndBlock/EndRun.
func (rp *RunPerf) StartBlock(category, description string) *BlockHandle {
	if rp == nil {
		return nil
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
	return &BlockHandle{rp: rp, index: len(rp.Blocks) - 1}
}

// EndBlock closes the most recently opened block that is still open.
func (rp *RunPerf) EndBlock() bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	for i := len(rp.Blocks) - 1; i >= 0; i -= 1 {
		if rp.Blocks[i].End.IsZero() {
			rp.Blocks[i].End = time.Now()
			return true
		}
	}
	return false
}

func (rp *RunPerf) MsFromStart(block *PerfBlock) float64 {
	return float64(block.Start.Sub(rp.Start).Nanoseconds()) / 1000 / 1000
}

// Report writes a human-readable timing table.
func (rp *RunPerf) Report(w io.Writer) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	total := rp.End.Sub(rp.Start)
	if rp.End.IsZero() {
		total = time.Since(rp.Start)
	}
	fmt.Fprintf(w, "%s (%s total)\n", rp.Name, total.Round(time.Millisecond))
	for i := range rp.Blocks {
		b := &rp.Blocks[i]
		fmt.Fprintf(w, "  %8.1fms  %-10s %-40s %8.1fms\n", rp.MsFromStart(b), b.Category, b.Description, b.DurationMs())
	}
}

type BlockHandle struct {
	rp    *RunPerf
	index int
}

func (h *BlockHandle) End() {
	if h == nil {
		return
	}
	h.rp.mu.Lock()
	defer h.rp.mu.Unlock()
	if h.rp.Blocks[h.index].End.IsZero() {
		h.rp.Blocks[h.index].End = time.Now()
	}
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

func (pb *PerfBlock) DurationMs() float64 {
	return float64(pb.Duration().Nanoseconds()) / 1000 / 1000
}

type perfContextKey struct{}

func AttachPerf(ctx context.Context, rp *RunPerf) context.Context {
	return context.WithValue(ctx, perfContextKey{}, rp)
}

// ExtractPerf returns the run attached to ctx, or nil. A nil *RunPerf is safe
// to call StartBlock on.
func ExtractPerf(ctx context.Context) *RunPerf {
	rp, _ := ctx.Value(perfContextKey{}).(*RunPerf)
	return rp
}
