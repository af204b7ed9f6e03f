package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/michaelpento.lv/flashbridge/config"
	"github.com/michaelpento.lv/flashbridge/market"
	"github.com/michaelpento.lv/flashbridge/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
	debug   bool

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "flashbridge",
	Short: "An ERC-3156 flash lender backed by an Aave-style lending pool",
	Long: `flashbridge runs an in-process lending market and exposes its reserves
through an ERC-3156 flash lender adapter. Use it to quote, borrow and
dry-run flash loans and to inspect the adapter's metrics.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+config.DefaultConfigName+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}

	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = loaded

	opts := utils.LogOptions{Debug: debug || cfg.Debug}
	if !opts.Debug {
		opts.Level = cfg.LogLevel
	}
	log = utils.InitLoggerWithOptions(opts)
	cfg.Logger = log
	return nil
}

// loadConfig falls back to the built-in defaults when no file was given and
// the default file does not exist.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadConfig(cfgFile)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, config.DefaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return config.LoadConfig(path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	defaults := config.DefaultConfig()
	if err := config.ApplyEnv(defaults); err != nil {
		return nil, err
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return defaults, nil
}

func newMarket(reg prometheus.Registerer) (*market.Market, error) {
	m, err := market.Bootstrap(cfg, reg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap market: %w", err)
	}
	return m, nil
}
