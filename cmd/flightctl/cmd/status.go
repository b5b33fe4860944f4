package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <deployment-id>",
	Short: "Show a deployment's current stage, weight, and error budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		jsonOut, _ := c.Flags().GetBool("json")

		var d deployment
		if err := client().do(c.Context(), "GET", "/deployments/"+args[0], nil, &d); err != nil {
			return err
		}

		if jsonOut {
			return printJSON(d)
		}
		printDeployment(d)
		return nil
	},
}

func printDeployment(d deployment) {
	fmt.Printf("id:          %s\n", d.ID)
	fmt.Printf("service:     %s/%s (%s)\n", d.Service, d.Version, d.Region)
	fmt.Printf("status:      %s\n", d.Status)
	fmt.Printf("stage:       %d (weight %.1f%%)\n", d.CurrentStage, d.CurrentWeight*100)
	fmt.Printf("requests:    %d (errors %d, rate %.4f)\n", d.Metrics.RequestCount, d.Metrics.ErrorCount, d.Metrics.ErrorRate)
	fmt.Printf("availability: %.3f%%\n", d.Metrics.Availability)
	fmt.Printf("error budget: %s (remaining %.2f%%, burn rate %.2fx)\n",
		d.ErrorBudget.Status, d.ErrorBudget.RemainingPct, d.ErrorBudget.BurnRate)
}

func init() {
	statusCmd.Flags().Bool("json", false, "print as a JSON object instead of key: value lines")
	Root.AddCommand(statusCmd)
}
