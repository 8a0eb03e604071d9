package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "txretry",
	Short: "Run PostgreSQL transactions with automatic conflict retry",
	Long: `txretry runs SQL inside a single transaction and re-runs it when
PostgreSQL reports a serialization failure (40001) or a deadlock (40P01).

Retries wait 0s, 1s, 2s, 4s, 8s, 16s, 32s (then 32s) with ±25% jitter.
Other error kinds are retried only when listed with --retry-on or in
txretry.yaml.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration
  11 - Database connection failed
  13 - SQL execution failed
  15 - Serialization conflict persisted after all retries
  130 - Interrupted (Ctrl+C or --timeout) before finishing`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo(os.Stdout)
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("help", false, "Help for txretry")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}
