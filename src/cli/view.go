package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/eduverse-labs/eduverse/src/chain"
	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/eduverse-labs/eduverse/src/viewing"
	"github.com/spf13/cobra"
)

func init() {
	accessCommand := &cobra.Command{
		Use:   "access <address> <courseId>",
		Short: "Show whether an address holds a valid license for a course, and its progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := CommandJob(cmd)
			defer job.Finish()

			courseID, err := parseCourseID(args[1])
			if err != nil {
				return err
			}

			resolver := viewing.NewLicenseResolver(chain.NewEngine(config.Config.Chain), config.Config.Viewing)
			access, err := resolver.Resolve(job.Ctx, args[0], courseID)
			if err != nil {
				return err
			}
			printAccess(cmd.OutOrStdout(), access)
			return nil
		},
	}

	var retry bool
	resolveCommand := &cobra.Command{
		Use:   "resolve <cid>",
		Short: "Find a playable URL for a piece of content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := CommandJob(cmd)
			defer job.Finish()

			_, videos, err := newViewer(job.Ctx, chain.NewEngine(config.Config.Chain))
			if err != nil {
				return err
			}

			var res viewing.Resolution
			if retry {
				res = videos.Retry(job.Ctx, args[0])
			} else {
				res = videos.Resolve(job.Ctx, args[0])
			}
			printResolution(cmd.OutOrStdout(), res)
			return res.Err
		},
	}
	resolveCommand.Flags().BoolVar(&retry, "retry", false, "Forget any cached URL and resolve again")

	var holder string
	courseCommand := &cobra.Command{
		Use:   "course <courseId>",
		Short: "Show a course, its sections and where to watch them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := CommandJob(cmd)
			defer job.Finish()
			out := cmd.OutOrStdout()

			courseID, err := parseCourseID(args[0])
			if err != nil {
				return err
			}
			engine := chain.NewEngine(config.Config.Chain)
			licenses, videos, err := newViewer(job.Ctx, engine)
			if err != nil {
				return err
			}

			session := viewing.NewSession(job.Ctx, engine, licenses, videos, nil, holderOrWallet(holder), courseID)
			defer session.Close()

			state, err := session.Load()
			if err != nil {
				return err
			}
			printCourse(out, state.Course)
			printAccess(out, state.Access)
			for _, section := range state.Sections {
				res, err := session.SectionVideo(section.OrderIndex)
				printSection(out, section, state.Access.Progress.IsSectionCompleted(section.OrderIndex))
				if err != nil {
					printf(out, "      (%v)\n", err)
					continue
				}
				printResolution(out, res)
			}
			return nil
		},
	}
	courseCommand.Flags().StringVar(&holder, "as", "", "Address to check access for (defaults to the configured wallet)")

	completeCommand := &cobra.Command{
		Use:   "complete <courseId> <sectionIndex>",
		Short: "Mark a section as completed and show the new progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := CommandJob(cmd)
			defer job.Finish()

			courseID, err := parseCourseID(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil || index < 0 {
				return oops.New(err, "bad section index %q", args[1])
			}

			engine, wallet, err := connectChain(job.Ctx, config.Config.Chain)
			if err != nil {
				return err
			}
			licenses, videos, err := newViewer(job.Ctx, engine)
			if err != nil {
				return err
			}

			session := viewing.NewSession(job.Ctx, engine, licenses, videos, nil, wallet.Address(), courseID)
			defer session.Close()
			if _, err := session.Load(); err != nil {
				return err
			}

			progress, err := session.CompleteSection(index)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), chain.Classify(err).UserMessage())
				return err
			}
			printProgress(cmd.OutOrStdout(), progress)
			return nil
		},
	}

	RootCommand.AddCommand(accessCommand)
	RootCommand.AddCommand(resolveCommand)
	RootCommand.AddCommand(courseCommand)
	RootCommand.AddCommand(completeCommand)
}

func holderOrWallet(holder string) string {
	if holder != "" {
		return holder
	}
	return config.Config.Chain.WalletAddress
}

func printCourse(out io.Writer, course models.Course) {
	printf(out, "#%d %s\n", course.ID, course.Title)
	if course.Description != "" {
		printf(out, "%s\n", course.Description)
	}
	price := "free"
	if course.PricePerPeriod != nil && course.PricePerPeriod.Sign() > 0 {
		price = chain.FormatEther(course.PricePerPeriod) + " ETH"
	}
	printf(out, "Creator: %s  Price: %s  Active: %v\n", course.Creator, price, course.IsActive)
}

func printAccess(out io.Writer, access viewing.Access) {
	switch {
	case access.Valid && access.License != nil:
		printf(out, "License: valid until %s\n", access.License.ExpiresAt.Format(time.RFC1123))
	case access.Valid:
		printf(out, "License: valid\n")
	case access.CheckErr != nil:
		printf(out, "License: could not be checked (%v)\n", access.CheckErr)
	default:
		printf(out, "License: none\n")
	}
	printProgress(out, access.Progress)
}

func printProgress(out io.Writer, progress models.Progress) {
	printf(out, "Progress: %d/%d sections (%d%%)\n", progress.CompletedSections, progress.TotalSections, progress.Percentage)
}

func printSection(out io.Writer, section models.Section, completed bool) {
	mark := " "
	if completed {
		mark = "x"
	}
	printf(out, "  [%s] %d. %s (%s)\n", mark, section.OrderIndex+1, section.Title, time.Duration(section.DurationSeconds)*time.Second)
}

func printResolution(out io.Writer, res viewing.Resolution) {
	if res.URL == "" {
		printf(out, "      no video\n")
		return
	}
	printf(out, "      %s [%s]\n", res.URL, res.Source)
	if res.Err != nil {
		printf(out, "      (%v)\n", res.Err)
	}
}
