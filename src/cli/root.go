package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/eduverse-labs/eduverse/src/jobs"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/spf13/cobra"
)

var RootCommand = &cobra.Command{
	Use:   "eduverse",
	Short: "Publish and watch courses on the Eduverse marketplace",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// CommandJob wraps the lifetime of a single command invocation. It is
// canceled on SIGINT/SIGTERM.
func CommandJob(cmd *cobra.Command) *jobs.Job {
	job := jobs.New(cmd.Name())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			logging.Info().Str("command", cmd.Name()).Msg("interrupted, shutting down")
			job.Cancel()
		case <-job.Canceled():
		case <-job.Finished():
		}
	}()
	return job
}
