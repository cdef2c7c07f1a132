package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewRootCommand creates the root command for the PatriotGo chat API
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patriotgo-chat-api",
		Short: "PatriotGo rider/driver chat API",
		Long: `Messaging backend for PatriotGo rides.

Riders and drivers hold direct or group conversations. Conversations,
memberships and messages live in one key-value table on the backend
selected by STORE_BACKEND (gorm, dynamodb or redis).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewSeedCommand())
	cmd.AddCommand(NewTokenCommand())

	return cmd
}
