package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "soullink",
	Short: "Local companion chat engine",
	Long: `soullink runs a local companion chat engine: personas, group chats,
a social feed, and a pixel pet, served over an HTTP API and MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the soullink version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("soullink version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(personaCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(petCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
