package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <deployment-id>",
	Short: "Cut a deployment's traffic weight to zero and mark it rolled back",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		reason, _ := c.Flags().GetString("reason")

		var body any
		if reason != "" {
			body = map[string]string{"reason": reason}
		}

		var d deployment
		if err := client().do(c.Context(), "POST", "/deployments/"+args[0]+"/rollback", body, &d); err != nil {
			return err
		}

		fmt.Printf("deployment %s is now %s\n", d.ID, d.Status)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().String("reason", "", "reason recorded on the rollback notification")
	Root.AddCommand(rollbackCmd)
}
