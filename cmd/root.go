package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "maru",
	Short: "Maru - Korean project management assistant",
	Long: `Maru answers Korean project management questions through a staged
pipeline: query normalization, answer-type classification, a policy gate,
plan-driven retrieval from whitelisted backends, and verified generation.

Status numbers always come from the database; documents answer how-to and
policy questions. Answers that cannot be grounded ship with recovery steps
instead of guesses.`,
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "maru.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Show detailed progress and the transparency record")
}
