// Package cmd provides the Cobra commands for the tsbundle CLI.
package cmd

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tsbundle/tsbundle/cli/output"
	"github.com/tsbundle/tsbundle/internal/config"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	projects  []string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	settings  *config.Settings
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tsbundle",
	Short: "tsbundle - Build TypeScript libraries in several formats",
	Long: `tsbundle compiles the entry points declared in the "tsbundle" section of
package.json once per output format: CommonJS (.cjs), native modules (.mjs)
and single-file minified browser bundles (.min.js).

Get started:
  tsbundle build            Build the package in the current directory
  tsbundle build -p a -p b  Build several packages
  tsbundle dev              Rebuild on change
  tsbundle --help           Show available commands`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

// Execute runs the CLI. Builds stop between pairs when ctx is cancelled.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./tsbundle.yaml or ~/.tsbundle/tsbundle.yaml)")
	rootCmd.PersistentFlags().StringArrayVarP(&projects, "project", "p", nil,
		"package root to build (repeatable, default is the current directory)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(devCmd)
}

func initConfig() {
	viper.SetEnvPrefix("TSBUNDLE")
	_ = viper.BindEnv("debug") // TSBUNDLE_DEBUG
}

// requireSettings loads the tool settings for commands that build
// packages. It is used as PreRunE.
func requireSettings(cmd *cobra.Command, args []string) error {
	s, err := config.LoadSettings(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	settings = s

	if settings.Debug || viper.GetBool("debug") {
		debug = true
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, noHeaders, quiet)

	return nil
}

// GetFormatter returns the output formatter (for use by subcommands)
func GetFormatter() *output.Formatter {
	if formatter == nil {
		format, _ := output.ParseFormat(outputFmt)
		formatter = output.NewFormatter(format, noHeaders, quiet)
	}
	return formatter
}

// IsDebug returns true if debug mode is enabled
func IsDebug() bool {
	return debug
}
