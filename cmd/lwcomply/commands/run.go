package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yairfalse/lwcomply/internal/app"
	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/output"
	"github.com/yairfalse/lwcomply/pkg/config"
	"github.com/yairfalse/lwcomply/pkg/progress"
	"github.com/yairfalse/lwcomply/pkg/types"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Aggregate a compliance report across accounts",
		Long: `Fetches the compliance report of every selected account, resolves the
violating resources against the inventory and fills missing ownership tags.

Without --start/--end the previous Monday to Sunday week is used. Results
from earlier runs over the same window are served from the cache.`,
		Example: `  # Previous week, all enabled accounts
  lwcomply run

  # Explicit window and accounts, written to a file
  lwcomply run --start 2024-06-03 --end 2024-06-09 \
    --accounts 123456789012,210987654321 --output-file report.json`,
		RunE: runRun,
	}

	cmd.Flags().String("start", "", "window start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "window end date (YYYY-MM-DD)")
	cmd.Flags().StringSlice("accounts", nil, "account IDs to process (default: all enabled)")
	cmd.Flags().String("report", "", "compliance report name")
	cmd.Flags().Bool("include-disabled", false, "also process disabled accounts")
	cmd.Flags().Bool("skip-tags", false, "skip ownership tag resolution")
	cmd.Flags().String("inventory-source", "", "inventory source (lacework, aws)")
	cmd.Flags().Duration("account-pause", -1, "pause between accounts")
	cmd.Flags().StringP("output-file", "f", "", "write the report to a file")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	window, err := resolveWindow(cmd, time.Now())
	if err != nil {
		return errors.ConfigurationError("window", err.Error())
	}
	applyRunFlags(cmd, cfg)

	formatter, err := output.NewFormatter(cfg.Output.Format, true, cfg.Output.NoColor)
	if err != nil {
		return errors.ConfigurationError("output.format", err.Error())
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := app.NewFactory()
	if isTerminal(os.Stderr) {
		factory.Progress = progress.NewReporter(os.Stderr, cfg.Output.NoColor)
	}
	a, err := factory.Create(ctx, cfg, window)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Run(ctx, window)
	if err != nil {
		// An interrupted run still writes what it finished.
		if report != nil {
			if werr := writeReport(cmd.OutOrStdout(), formatter, report, cmd); werr != nil {
				return werr
			}
		}
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), formatter, report, cmd); err != nil {
		return err
	}

	if report.PartialAccountFailure {
		return errors.PartialAccountFailure(report.FailedAccounts())
	}
	return nil
}

// resolveWindow reads --start/--end, defaulting to the week before now.
func resolveWindow(cmd *cobra.Command, now time.Time) (types.DateRange, error) {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")

	switch {
	case start == "" && end == "":
		return types.PreviousWeek(now), nil
	case start == "" || end == "":
		return types.DateRange{}, fmt.Errorf("--start and --end must be given together")
	default:
		return types.ParseDateRange(start, end)
	}
}

// applyRunFlags overrides configuration with the flags the user set.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("accounts") {
		c.Aggregator.Accounts, _ = flags.GetStringSlice("accounts")
	}
	if flags.Changed("report") {
		c.Aggregator.ReportName, _ = flags.GetString("report")
	}
	if flags.Changed("include-disabled") {
		c.Aggregator.IncludeDisabled, _ = flags.GetBool("include-disabled")
	}
	if flags.Changed("skip-tags") {
		c.Aggregator.SkipTags, _ = flags.GetBool("skip-tags")
	}
	if flags.Changed("inventory-source") {
		c.Inventory.Source, _ = flags.GetString("inventory-source")
	}
	if flags.Changed("account-pause") {
		if d, _ := flags.GetDuration("account-pause"); d >= 0 {
			c.Aggregator.AccountPause = d
		}
	}
}

// writeReport renders the report to stdout, or to --output-file with a
// short table summary on stdout when it is a terminal.
func writeReport(stdout io.Writer, formatter output.Formatter, report *types.AggregateReport, cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("output-file")
	if file == "" {
		return formatter.FormatReport(report, stdout)
	}

	if err := output.WriteToFile(formatter, report, file); err != nil {
		return err
	}
	if isTerminal(os.Stdout) {
		if err := output.NewTableFormatter(cfg.Output.NoColor).FormatReport(report, stdout); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "Report written to %s\n", file)
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// contextOrBackground returns ctx, or a background context for commands
// invoked without one.
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
