package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "neurogrid-gateway",
		Short: "NeuroGrid real-time connection gateway",
		Long: `neurogrid-gateway accepts WebSocket connections from users and compute
nodes, authenticates them, and fans coordinator events out to topic
subscribers and room members.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
