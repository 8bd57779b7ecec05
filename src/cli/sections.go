package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/creation"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/spf13/cobra"
)

func init() {
	sectionsCommand := &cobra.Command{
		Use:   "sections",
		Short: "Manage sections that failed to be added to a course",
	}

	failedCommand := &cobra.Command{
		Use:   "failed <courseId>",
		Short: "List sections of a course that failed and have not been retried",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := CommandJob(cmd)
			defer job.Finish()

			courseID, err := parseCourseID(args[0])
			if err != nil {
				return err
			}
			store, closeJournal, err := requireJournal(job.Ctx)
			if err != nil {
				return err
			}
			defer closeJournal()

			failed, err := store.FailedSections(job.Ctx, courseID)
			if err != nil {
				return err
			}
			printFailed(cmd.OutOrStdout(), courseID, failed)
			return nil
		},
	}

	var assumeYes bool
	retryCommand := &cobra.Command{
		Use:   "retry <courseId>",
		Short: "Submit a course's failed sections again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := CommandJob(cmd)
			defer job.Finish()
			out := cmd.OutOrStdout()

			courseID, err := parseCourseID(args[0])
			if err != nil {
				return err
			}
			store, closeJournal, err := requireJournal(job.Ctx)
			if err != nil {
				return err
			}
			defer closeJournal()

			failed, err := store.FailedSections(job.Ctx, courseID)
			if err != nil {
				return err
			}
			if len(failed) == 0 {
				printf(out, "Course %d has no failed sections.\n", courseID)
				return nil
			}

			engine, wallet, err := connectChain(job.Ctx, config.Config.Chain)
			if err != nil {
				return err
			}

			var prompter creation.Prompter = NewTerminalPrompter(cmd.InOrStdin(), out)
			if assumeYes {
				prompter = creation.AlwaysContinue{}
			}
			minter := creation.NewSectionMinter(engine, prompter, config.Config.Throttle.SectionDelay)

			outcome, err := store.Retry(job.Ctx, minter, courseID, wallet.Address(), failed)
			fmt.Fprintln(out, outcome.Summary())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), DescribeError(err))
				return err
			}
			return nil
		},
	}
	retryCommand.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Retry every section without asking")

	sectionsCommand.AddCommand(failedCommand)
	sectionsCommand.AddCommand(retryCommand)
	RootCommand.AddCommand(sectionsCommand)
}

func printFailed(out io.Writer, courseID uint64, failed []models.SectionSubmission) {
	if len(failed) == 0 {
		printf(out, "Course %d has no failed sections.\n", courseID)
		return
	}
	printf(out, "Course %d has %d failed section(s):\n", courseID, len(failed))
	for _, sub := range failed {
		reason := "unknown"
		if sub.Reason != nil {
			reason = *sub.Reason
		}
		printf(out, "  %d. %s (%s) failed %s: %s\n",
			sub.OrderIndex+1,
			sub.Title,
			time.Duration(sub.DurationSeconds)*time.Second,
			sub.CreatedAt.Local().Format(time.DateTime),
			reason,
		)
	}
}
