// Package commands implements the docflow subcommands.
package commands

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "docflow",
	Short:        "Operate the PDF page extraction pipeline",
	Long:         "Render PDFs, run page extraction locally, and inspect or submit documents in the configured store and queue.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall command timeout")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
