package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/polisai/polis-expose/internal/exposure"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the interfaces serve would start, without binding them",
		RunE:  runPlan,
	}
	addPlanFlags(cmd)
	return cmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	cli, err := parseCLIConfig(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	c, err := buildComponents(cfg, logger, exposure.NewDryRunTransport())
	if err != nil {
		return err
	}

	ifaces, err := c.plan(cmd.Context(), cli.StartupTimeout, http.NotFoundHandler())
	if err != nil {
		return err
	}

	report := exposure.NewReport(c.planner.Policy(), c.planner.Mode(), ifaces)
	if err := report.WriteYAML(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}
