package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
)

var (
	cfg *config.Config

	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "prospect",
	Short:         "Sales prospecting pipeline",
	Long:          "Enriches seed companies, synthesizes contacts, scores fit, drafts compliant outreach and prepares sales handoffs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyLogFlags(&c.Log, logLevel, logFormat)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyLogFlags overrides the configured log settings with non-empty flags.
func applyLogFlags(lc *config.LogConfig, level, format string) {
	if level != "" {
		lc.Level = level
	}
	if format != "" {
		lc.Format = format
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "", "override log.format (json, console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
