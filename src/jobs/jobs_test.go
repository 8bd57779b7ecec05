package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerCancelAndWait(t *testing.T) {
	t.Run("finishes fast enough", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Millisecond*200),
		}

		before := time.Now()
		unfinished := testJobs.CancelAndWait(time.Second * 1)
		after := time.Now()
		assert.WithinDuration(t, after, before, time.Millisecond*500, "tracker.Finish did not finish fast enough")
		assert.Len(t, unfinished, 0)
	})
	t.Run("reports unfinished jobs", func(t *testing.T) {
		testJobs := Jobs{
			FakeJob("Job A", time.Millisecond*100),
			FakeJob("Job B", time.Second*10),
		}

		unfinished := testJobs.CancelAndWait(time.Second * 1)
		assert.Equal(t, []string{"Job B"}, unfinished)
	})
}

func TestParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	job := NewWithParent(parent, "view session")
	assert.False(t, job.IsCanceled())

	cancel()
	select {
	case <-job.Canceled():
	case <-time.After(time.Second):
		assert.Fail(t, "job was not canceled with its parent")
	}
	assert.True(t, job.IsCanceled())
}

func TestGo(t *testing.T) {
	t.Run("finishes when the work returns", func(t *testing.T) {
		job := New("upload").Go(func(ctx context.Context) error {
			return errors.New("pinning service unavailable")
		})
		select {
		case <-job.Finished():
		case <-time.After(time.Second):
			assert.Fail(t, "job did not finish")
		}
	})
	t.Run("work sees cancellation", func(t *testing.T) {
		job := New("server").Go(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		assert.Equal(t, []string{"server"}, Jobs{job}.ListUnfinished())
		assert.Empty(t, Jobs{job}.CancelAndWait(time.Second))
	})
	t.Run("finish twice", func(t *testing.T) {
		job := New("session")
		job.Finish()
		assert.NotPanics(t, func() { job.Finish() })
	})
}

func FakeJob(name string, timeout time.Duration) *Job {
	job := New(name)
	go func() {
		<-job.Ctx.Done()
		timer := time.NewTimer(timeout)
		<-timer.C
		job.Finish()
	}()
	return job
}
