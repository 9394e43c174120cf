package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yairfalse/lwcomply/pkg/config"
)

func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, tools and credentials",
		Long: `Validates the configuration and reports which Lacework and AWS tooling and
credentials a run would use. Nothing is contacted over the network.`,
		RunE: runDoctor,
	}
}

// check is one doctor finding. A failed required check fails the command.
type check struct {
	name     string
	ok       bool
	detail   string
	required bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	color.NoColor = color.NoColor || cfg.Output.NoColor

	checks := doctorChecks(cfg, config.NewProviderDetector(cfg.Lacework.CLIPath))
	printChecks(cmd.OutOrStdout(), checks)

	for _, c := range checks {
		if c.required && !c.ok {
			return fmt.Errorf("%s: %s", c.name, c.detail)
		}
	}
	return nil
}

func doctorChecks(c *config.Config, detector *config.ProviderDetector) []check {
	var checks []check

	if err := c.Validate(); err != nil {
		checks = append(checks, check{name: "configuration", detail: err.Error(), required: true})
	} else {
		checks = append(checks, check{name: "configuration", ok: true, detail: "valid", required: true})
	}

	lw := config.CheckLacework(c)
	checks = append(checks, check{name: "lacework credentials", ok: lw.Authenticated, detail: lw.Message, required: true})

	if c.Lacework.Mode == "cli" {
		cli := detector.DetectLaceworkCLI()
		checks = append(checks, check{name: "lacework CLI", ok: cli.Available, detail: cli.Status, required: true})
	}

	if c.Inventory.Source == "aws" {
		aws := config.CheckAWS()
		checks = append(checks, check{name: "aws credentials", ok: aws.Authenticated, detail: aws.Message, required: true})
	} else if c.Lacework.Mode == "cli" && !c.HasLaceworkCredentials() {
		checks = append(checks, check{name: "lacework inventory", detail: "inventory search needs API key credentials", required: true})
	}

	awsCLI := detector.DetectAWS()
	checks = append(checks, check{name: "aws CLI", ok: awsCLI.Available, detail: awsCLI.Status})

	return checks
}

func printChecks(w io.Writer, checks []check) {
	for _, c := range checks {
		mark := color.GreenString("✓")
		if !c.ok {
			mark = color.YellowString("-")
			if c.required {
				mark = color.RedString("✗")
			}
		}
		fmt.Fprintf(w, "%s %-22s %s\n", mark, c.name, c.detail)
	}
}
