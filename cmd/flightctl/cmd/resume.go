package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <deployment-id>",
	Short: "Confirm a paused deployment to resume monitor ticks",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		var d deployment
		if err := client().do(c.Context(), "POST", "/deployments/"+args[0]+"/resume", nil, &d); err != nil {
			return err
		}
		fmt.Printf("deployment %s is now %s\n", d.ID, d.Status)
		return nil
	},
}

func init() {
	Root.AddCommand(resumeCmd)
}
