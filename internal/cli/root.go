// Package cli implements the tysttext command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tysttext/host/internal/paths"
)

// baseDir is the global --dir flag value.
var baseDir string

var rootCmd = &cobra.Command{
	Use:   "tysttext",
	Short: "Desktop host for the tysttext backend",
	Long:  "tysttext runs the host window, supervises the bundled backend sidecar and controls it from other terminals.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Every path helper honors the base directory override.
		if baseDir != "" {
			if err := os.Setenv(paths.EnvBaseDir, baseDir); err != nil {
				return err
			}
		}
		return nil
	},
	SilenceUsage: true,
}

// BaseDir returns the value of the --dir flag.
func BaseDir() string {
	return baseDir
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDir, "dir", "", "base directory for host data (overrides ~/.tysttext)")
}

func Execute() error {
	return rootCmd.Execute()
}
