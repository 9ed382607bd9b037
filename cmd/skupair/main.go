package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skupair/internal/browser"
	"skupair/internal/config"
	"skupair/internal/logging"
	"skupair/internal/sku"
)

var (
	// Global flags
	cfgPath  string
	verbose  bool
	stateDir string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "skupair",
	Short: "SKU generation and order pairing for the Dianxiaomi ERP",
	Long: `skupair derives unique internal SKUs for custom-engraved jewelry
orders and binds unpaired order lines to them in the Dianxiaomi ERP.

Typical flow:
  skupair login                 interactive ERP login, persists the session
  skupair generate orders.csv   derive SKUs and build the import tables
  skupair pair                  pair unpaired engraved orders in the web UI
  skupair history               inspect past runs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if stateDir != "" {
			cfg.StateDir = stateDir
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger = logging.New(logging.Options{
			Level:      level,
			File:       cfg.LogFile(),
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "skupair.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Override the state directory (auth, history, artifacts, logs)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(historyCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM so a run
// can finish its current order and flush its report before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func loadCardMapping() (*sku.Mapping, error) {
	mapping, err := sku.LoadMapping(cfg.Store.CardMappingPath)
	if err != nil {
		return nil, err
	}
	if mapping.Len() == 0 {
		logger.Warn("card mapping is empty, card components will be left out of combo SKUs",
			zap.String("path", cfg.Store.CardMappingPath))
	}
	return mapping, nil
}

func browserConfig() browser.Config {
	return browser.Config{
		DebuggerURL:       cfg.Browser.DebuggerURL,
		Headless:          cfg.Browser.Headless,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: cfg.GetNavigationTimeout(),
		ElementTimeout:    cfg.GetElementTimeout(),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
