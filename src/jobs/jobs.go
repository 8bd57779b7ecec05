package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/rs/zerolog"
)

/*
A Job is a cancellable scope for work that outlives a single call: a running
command, the dev pinning server, an open view session. Everything done on the
job's behalf should use Ctx, so that one Cancel stops all of it. The job
reports back through Finish once its work has actually wound down.
*/
type Job struct {
	Name   string
	Ctx    context.Context
	Logger zerolog.Logger

	cancel     context.CancelFunc
	done       chan struct{}
	finishOnce sync.Once
}

func New(name string) *Job {
	return NewWithParent(context.Background(), name)
}

// NewWithParent ties the job to parent. The job's logger is the parent's,
// tagged with the job name.
func NewWithParent(parent context.Context, name string) *Job {
	logger := logging.ExtractLogger(parent).With().Str("job", name).Logger()
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		Name:   name,
		Ctx:    logging.AttachLoggerToContext(&logger, ctx),
		Logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Go runs fn on its own goroutine and finishes the job when fn returns. An
// error other than cancellation is logged.
func (j *Job) Go(fn func(ctx context.Context) error) *Job {
	go func() {
		defer j.Finish()
		defer logging.LogPanics(&j.Logger)
		if err := fn(j.Ctx); err != nil && j.Ctx.Err() == nil {
			j.Logger.Error().Err(err).Msg("job failed")
		}
	}()
	return j
}

func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) Canceled() <-chan struct{} {
	return j.Ctx.Done()
}

func (j *Job) IsCanceled() bool {
	return j.Ctx.Err() != nil
}

// Finish marks the job's work as done. Calling it again does nothing.
func (j *Job) Finish() *Job {
	j.finishOnce.Do(func() {
		close(j.done)
	})
	return j
}

func (j *Job) Finished() <-chan struct{} {
	return j.done
}

type Jobs []*Job

// CancelAndWait cancels every job and waits up to timeout for them to
// finish. It returns the names of the ones that didn't.
func (jobs Jobs) CancelAndWait(timeout time.Duration) []string {
	for _, job := range jobs {
		job.Cancel()
	}

	allDone := make(chan struct{})
	go func() {
		for _, job := range jobs {
			<-job.Finished()
		}
		close(allDone)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return jobs.ListUnfinished()
	case <-allDone:
		return nil
	}
}

func (jobs Jobs) ListUnfinished() []string {
	var unfinished []string
	for _, job := range jobs {
		select {
		case <-job.Finished():
		default:
			unfinished = append(unfinished, job.Name)
		}
	}
	return unfinished
}
