package cli

import (
	"time"

	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/devpin"
	"github.com/eduverse-labs/eduverse/src/jobs"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/spf13/cobra"
)

func init() {
	devpinCommand := &cobra.Command{
		Use:   "devpin [storage folder]",
		Short: "Run a local pinning service that stores in the filesystem",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config.DevPin
			if len(args) > 0 {
				cfg.Folder = args[0]
			}

			job, err := devpin.StartServer(cfg)
			if err != nil {
				return err
			}
			commandJob := CommandJob(cmd)
			defer commandJob.Finish()
			select {
			case <-commandJob.Canceled():
				if unfinished := (jobs.Jobs{job}).CancelAndWait(10 * time.Second); len(unfinished) > 0 {
					commandJob.Logger.Warn().Strs("jobs", unfinished).Msg("timed out waiting for shutdown")
				}
			case <-job.Finished():
				commandJob.Cancel()
				return oops.New(nil, "devpin server stopped; see the log for why")
			}
			return nil
		},
	}

	RootCommand.AddCommand(devpinCommand)
}
