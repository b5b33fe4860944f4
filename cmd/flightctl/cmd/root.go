// Package cmd implements the flightctl operator CLI: a thin client over
// the Flightline HTTP API for starting, watching, and rolling back canary
// deployments.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	apiAddr string
	apiKey  string
)

// Root is the flightctl root command.
var Root = &cobra.Command{
	Use:   "flightctl",
	Short: "Operate Flightline canary deployments",
}

func init() {
	Root.PersistentFlags().StringVar(&apiAddr, "api-addr", "http://localhost:8080", "Flightline API base URL")
	Root.PersistentFlags().StringVar(&apiKey, "api-key", "", "operator API bearer token (defaults to FLIGHTCTL_API_KEY)")
}

func client() *apiClient {
	key := apiKey
	if key == "" {
		key = envAPIKey()
	}
	return newAPIClient(apiAddr, key)
}
