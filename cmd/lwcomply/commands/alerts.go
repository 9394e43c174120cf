package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/lwcomply/internal/app"
	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/internal/output"
	"github.com/yairfalse/lwcomply/pkg/types"
)

func newAlertsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List the compliance alerts raised over a window",
		Long: `Lists the alerts raised over the window, keeps the compliance ones and
adds the affected resources, account and region from each alert's details
together with the title and remediation of the policy that raised it.

Without --start/--end the previous Monday to Sunday week is used. Alert
and policy details are served from the cache on repeated runs.`,
		Example: `  # Compliance alerts of the previous week
  lwcomply alerts -o table

  # Every alert category, scoped to a report, written to a file
  lwcomply alerts --all --report "AWS CIS Benchmark and S3 Report" \
    --start 2024-06-03 --end 2024-06-09 --output-file alerts.json`,
		RunE: runAlerts,
	}

	cmd.Flags().String("start", "", "window start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "window end date (YYYY-MM-DD)")
	cmd.Flags().String("report", "", "only alerts of this report (cli mode)")
	cmd.Flags().Bool("all", false, "keep alerts of every category")
	cmd.Flags().StringP("output-file", "f", "", "write the alerts to a file")

	return cmd
}

func runAlerts(cmd *cobra.Command, args []string) error {
	window, err := resolveWindow(cmd, time.Now())
	if err != nil {
		return errors.ConfigurationError("window", err.Error())
	}

	formatter, err := output.NewFormatter(cfg.Output.Format, true, cfg.Output.NoColor)
	if err != nil {
		return errors.ConfigurationError("output.format", err.Error())
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := app.NewFactory()
	factory.AllAlerts, _ = cmd.Flags().GetBool("all")
	a, err := factory.Create(ctx, cfg, window)
	if err != nil {
		return err
	}
	defer a.Close()

	report, _ := cmd.Flags().GetString("report")
	alerts, err := a.CollectAlerts(ctx, window, report)
	if err != nil {
		return err
	}
	return writeAlerts(cmd.OutOrStdout(), formatter, alerts, cmd)
}

// writeAlerts renders the alerts to stdout, or to --output-file.
func writeAlerts(stdout io.Writer, formatter output.Formatter, report *types.AlertReport, cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("output-file")
	if file == "" {
		return formatter.FormatAlerts(report, stdout)
	}

	if err := output.WriteAlertsToFile(formatter, report, file); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d alert(s) written to %s\n", len(report.Alerts), file)
	return nil
}
