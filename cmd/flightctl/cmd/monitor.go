package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// rolledBackExitCode is returned by `flightctl monitor` when the watched
// deployment ends in rolled_back, distinguishing it at the shell level from
// both success (0) and operational failure (1), per spec.md §4.CLI's exit
// code contract.
const rolledBackExitCode = 2

var monitorCmd = &cobra.Command{
	Use:   "monitor <deployment-id>",
	Short: "Poll a deployment's status until it reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		interval, _ := c.Flags().GetDuration("interval")
		duration, _ := c.Flags().GetDuration("duration")
		jsonOut, _ := c.Flags().GetBool("json")
		return runMonitor(c.Context(), args[0], interval, duration, jsonOut)
	},
}

// runMonitor polls a deployment's status on a fixed cadence and prints one
// line per tick, exiting the process directly on rollback so the shell sees
// a distinct exit code from both success and ordinary operational failure.
// It is shared by monitorCmd and start --auto-promote.
func runMonitor(ctx context.Context, deploymentID string, interval, duration time.Duration, jsonOut bool) error {
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var d deployment
		if err := client().do(ctx, "GET", "/deployments/"+deploymentID, nil, &d); err != nil {
			return err
		}

		if jsonOut {
			if err := printJSON(d); err != nil {
				return err
			}
		} else {
			printMonitorLine(d)
		}

		switch d.Status {
		case "completed":
			return nil
		case "rolled_back":
			os.Exit(rolledBackExitCode)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("timed out after %s waiting for deployment %s to reach a terminal state", duration, deploymentID)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// printMonitorLine prints the one compact status line per tick spec.md
// §4.CLI requires: stage, weight, error rate, P95, budget status.
func printMonitorLine(d deployment) {
	fmt.Printf("[%s] %s stage=%d weight=%.0f%% error_rate=%.4f p95=%.0fms budget=%s\n",
		time.Now().Format(time.RFC3339), d.Status, d.CurrentStage, d.CurrentWeight*100,
		d.Metrics.ErrorRate, d.Metrics.LatencyP95Ms, d.ErrorBudget.Status)
}

// printJSON writes v to stdout as indented JSON, the --json escape hatch
// spec.md §4.CLI offers on monitor and status.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	monitorCmd.Flags().Duration("interval", 5*time.Second, "polling cadence")
	monitorCmd.Flags().Duration("duration", 0, "give up and exit 1 after this long (0 = no limit)")
	monitorCmd.Flags().Bool("json", false, "print each poll as a JSON object instead of a compact line")
	Root.AddCommand(monitorCmd)
}
