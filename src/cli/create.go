package cli

import (
	"fmt"
	"io"

	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/creation"
	"github.com/eduverse-labs/eduverse/src/manifest"
	"github.com/eduverse-labs/eduverse/src/perf"
	"github.com/eduverse-labs/eduverse/src/pinning"
	"github.com/spf13/cobra"
)

func init() {
	var assumeYes, showTimings bool

	createCommand := &cobra.Command{
		Use:   "create <manifest.yaml>",
		Short: "Upload a course's files and publish it with its sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := CommandJob(cmd)
			defer job.Finish()
			ctx := job.Ctx
			out := cmd.OutOrStdout()

			session, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			engine, wallet, err := connectChain(ctx, config.Config.Chain)
			if err != nil {
				return err
			}
			storage, err := pinning.NewS3Client(ctx, config.Config.Storage)
			if err != nil {
				return err
			}
			store, closeJournal, err := openJournal(ctx)
			if err != nil {
				return err
			}
			defer closeJournal()

			var prompter creation.Prompter = NewTerminalPrompter(cmd.InOrStdin(), out)
			if assumeYes {
				prompter = creation.AlwaysContinue{}
			}

			uploader := creation.NewUploader(storage, config.Config.Throttle.UploadDelay)
			uploader.Progress = func(done, total int, item creation.UploadItem) {
				printf(out, "Uploaded %d/%d: %s\n", done, total, item.Label)
			}
			flow := &creation.Flow{
				Uploader:      uploader,
				CourseMinter:  &creation.CourseMinter{Contract: engine, Oracle: engine},
				SectionMinter: creation.NewSectionMinter(engine, prompter, config.Config.Throttle.SectionDelay),
				Creator:       wallet.Address(),
			}
			if store != nil {
				flow.Journal = store
			}

			p := perf.MakeNewRunPerf("create course")
			ctx = perf.AttachPerf(ctx, p)
			result, err := flow.Run(ctx, session)
			p.EndRun()
			if showTimings {
				p.Report(cmd.ErrOrStderr())
			}

			if result.CourseID != 0 {
				printCreated(out, result)
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), DescribeError(err))
				return err
			}
			return nil
		},
	}
	createCommand.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Add every section without asking")
	createCommand.Flags().BoolVar(&showTimings, "timings", false, "Print how long each phase took")

	RootCommand.AddCommand(createCommand)
}

func printCreated(out io.Writer, result creation.FlowResult) {
	printf(out, "Course %d created (tx %s)\n", result.CourseID, result.CourseTx)
	if result.ThumbnailCID != "" {
		printf(out, "Thumbnail: %s\n", result.ThumbnailCID)
	}
	for _, r := range result.Sections.Succeeded() {
		printf(out, "  + %s (section %s)\n", r.Title, r.SectionID)
	}
	fmt.Fprintln(out, result.Sections.Summary())
}
