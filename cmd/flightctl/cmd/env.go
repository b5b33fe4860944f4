package cmd

import "os"

func envAPIKey() string {
	return os.Getenv("FLIGHTCTL_API_KEY")
}
