package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsbundle/tsbundle/cli/output"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version, commit hash, and build date of tsbundle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := GetFormatter()
		if f.Format != output.FormatTable {
			return f.Print(map[string]string{
				"version":    Version,
				"commit":     Commit,
				"build_date": BuildDate,
			})
		}
		_, _ = fmt.Fprintf(f.Writer, "tsbundle %s\n", Version)
		f.PrintKeyValue("Commit", Commit)
		f.PrintKeyValue("Build Date", BuildDate)
		return nil
	},
}
