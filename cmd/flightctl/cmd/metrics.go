package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <deployment-id>",
	Short: "Show a deployment's live metric snapshot and error budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		jsonOut, _ := c.Flags().GetBool("json")

		var d deployment
		if err := client().do(c.Context(), "GET", "/deployments/"+args[0], nil, &d); err != nil {
			return err
		}

		if jsonOut {
			return printJSON(struct {
				Metrics     metrics     `json:"metrics"`
				ErrorBudget errorBudget `json:"errorBudget"`
			}{d.Metrics, d.ErrorBudget})
		}

		printMetrics(d)
		return nil
	},
}

func printMetrics(d deployment) {
	fmt.Printf("requests:     %d\n", d.Metrics.RequestCount)
	fmt.Printf("errors:       %d (rate %.4f)\n", d.Metrics.ErrorCount, d.Metrics.ErrorRate)
	fmt.Printf("latency p50:  %.0fms\n", d.Metrics.LatencyP50Ms)
	fmt.Printf("latency p95:  %.0fms\n", d.Metrics.LatencyP95Ms)
	fmt.Printf("latency p99:  %.0fms\n", d.Metrics.LatencyP99Ms)
	fmt.Printf("availability: %.3f%%\n", d.Metrics.Availability)
	fmt.Printf("budget total:     %.2f%%\n", d.ErrorBudget.TotalPct)
	fmt.Printf("budget consumed:  %.2f%%\n", d.ErrorBudget.ConsumedPct)
	fmt.Printf("budget remaining: %.2f%%\n", d.ErrorBudget.RemainingPct)
	fmt.Printf("burn rate:        %.2fx\n", d.ErrorBudget.BurnRate)
	fmt.Printf("status:           %s\n", d.ErrorBudget.Status)
}

func init() {
	metricsCmd.Flags().Bool("json", false, "print as a JSON object instead of key: value lines")
	Root.AddCommand(metricsCmd)
}
