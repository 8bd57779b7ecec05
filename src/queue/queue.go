package queue

import (
	"context"
	"errors"
	"time"

	"github.com/eduverse-labs/eduverse/src/utils"
)

// ErrStop can be returned from a task to end the run early without reporting
// an error. Tasks after it are never started.
var ErrStop = errors.New("stop remaining tasks")

/*
Serial runs tasks one at a time, in order, with a fixed pause between the end
of one task and the start of the next. This is how uploads and section mints
are throttled: the storage provider and the chain client both misbehave when
several requests are in flight for the same account.
*/
type Serial struct {
	Delay time.Duration

	// Sleep is swappable so tests can observe the pauses. Defaults to
	// utils.SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewSerial(delay time.Duration) *Serial {
	return &Serial{Delay: delay}
}

// Each calls fn for i = 0..n-1. It stops at the first error; ErrStop is
// swallowed and reported as ran < n. ran is the number of tasks that were
// started.
func (q *Serial) Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) (ran int, err error) {
	sleep := q.Sleep
	if sleep == nil {
		sleep = utils.SleepContext
	}

	for i := 0; i < n; i++ {
		if i > 0 && q.Delay > 0 {
			if err := sleep(ctx, q.Delay); err != nil {
				return ran, err
			}
		}
		if err := ctx.Err(); err != nil {
			return ran, err
		}

		ran++
		if err := fn(ctx, i); err != nil {
			if errors.Is(err, ErrStop) {
				return ran, nil
			}
			return ran, err
		}
	}
	return ran, nil
}
