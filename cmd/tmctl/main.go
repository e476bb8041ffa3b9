// Command tmctl is the operator CLI for a translation-memory data directory
// or a running tmserver: import and publish units, run fuzzy and
// concordance queries, and print index statistics.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/logger"
)

type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
	noColor    bool
}

var (
	flags globalFlags
	cfg   *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "tmctl",
	Short:         "Manage and query a fuzzy translation memory",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return err
		}
		if flags.dataDir != "" {
			loaded.Index.DataDir = flags.dataDir
			loaded.Index.Persist = true
		}
		cfg = loaded
		logger.SetupWriter(os.Stderr, flags.logLevel, "text")
		if flags.noColor {
			color.NoColor = true
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (YAML)")
	pf.StringVarP(&flags.dataDir, "data-dir", "d", "", "index data directory (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newImportCmd(), newPublishCmd(), newQueryCmd(), newConcordanceCmd(), newStatsCmd(), newBenchCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// openEngine opens the local index in cfg.Index.DataDir.
func openEngine() (*indexer.Engine, error) {
	return indexer.NewEngine(cfg.Index)
}

func localeTable() (*locale.Table, error) {
	return locale.NewTable(cfg.Locales.Supported...)
}
