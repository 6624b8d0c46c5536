package cmd

import (
	"alsolved/internal/config"
	"alsolved/internal/logger"
	sentryutil "alsolved/internal/sentry"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "alsolved",
	Short: "Catalogo dei bandi di finanza agevolata AlSolved.",
	Long: `alsolved serves the AlSolved grant catalog, builds it as a static site
for a base-path host, and exports the grant document from the ingestion
database.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Load()
		if logLevel != "" {
			config.Cfg.LogLevel = logLevel
		}
		logger.SetLevel(config.Cfg.LogLevel)
		sentryutil.Init()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	sentryutil.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "loglevel", "l", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")
}
