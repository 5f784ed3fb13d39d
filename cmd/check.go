package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/stockwatch/internal/scheduler"
)

func newCheckCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Runs a single cycle over every target and exits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheckCommand(cmd, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any target check failed")
	return cmd
}

func runCheckCommand(cmd *cobra.Command, strict bool) (err error) {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp(appInstance, &err)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report := appInstance.RunOnce(ctx)
	printReport(cmd.OutOrStdout(), report)
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("check interrupted: %w", cause)
	}
	if strict && report.Failed > 0 {
		return fmt.Errorf("%d of %d targets failed", report.Failed, report.Checked)
	}
	return nil
}

func printReport(w io.Writer, r scheduler.CycleReport) {
	fmt.Fprintf(w, "cycle %s: checked=%d transitioned=%d failed=%d notified=%d skipped=%d in %s\n",
		r.ID, r.Checked, r.Transitioned, r.Failed, r.Notified, r.Skipped, r.Duration.Round(time.Millisecond))
}
