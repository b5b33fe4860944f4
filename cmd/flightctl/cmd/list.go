package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all canary deployments",
	RunE: func(c *cobra.Command, args []string) error {
		var deployments []deployment
		if err := client().do(c.Context(), "GET", "/deployments", nil, &deployments); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSERVICE\tVERSION\tREGION\tSTATUS\tSTAGE\tWEIGHT\tBUDGET")
		for _, d := range deployments {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.0f%%\t%s\n",
				d.ID, d.Service, d.Version, d.Region, d.Status, d.CurrentStage, d.CurrentWeight*100, d.ErrorBudget.Status)
		}
		return tw.Flush()
	},
}

func init() {
	Root.AddCommand(listCmd)
}
