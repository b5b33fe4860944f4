package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a canary deployment",
	RunE: func(c *cobra.Command, args []string) error {
		service, _ := c.Flags().GetString("service")
		version, _ := c.Flags().GetString("version")
		region, _ := c.Flags().GetString("region")
		autoPromote, _ := c.Flags().GetBool("auto-promote")
		duration, _ := c.Flags().GetDuration("duration")

		var d deployment
		err := client().do(c.Context(), "POST", "/deployments", map[string]string{
			"service": service,
			"version": version,
			"region":  region,
		}, &d)
		if err != nil {
			return err
		}

		fmt.Printf("started deployment %s (%s/%s in %s), stage %d at %.0f%%\n",
			d.ID, d.Service, d.Version, d.Region, d.CurrentStage, d.CurrentWeight*100)

		if !autoPromote {
			return nil
		}

		fmt.Println("auto-promote enabled, monitoring until a terminal state is reached")
		return runMonitor(c.Context(), d.ID, 5*time.Second, duration, false)
	},
}

func init() {
	startCmd.Flags().String("service", "", "service name (required)")
	startCmd.Flags().String("version", "", "version identifier (required)")
	startCmd.Flags().String("region", "", "target region (required)")
	startCmd.Flags().Bool("auto-promote", false, "monitor the deployment to a terminal state after starting it")
	startCmd.Flags().Duration("duration", 0, "with --auto-promote, give up monitoring after this long (0 = no limit)")
	_ = startCmd.MarkFlagRequired("service")
	_ = startCmd.MarkFlagRequired("version")
	_ = startCmd.MarkFlagRequired("region")
	Root.AddCommand(startCmd)
}
