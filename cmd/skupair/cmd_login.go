package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skupair/internal/browser"
)

var loginTimeout time.Duration

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the ERP interactively and persist the session",
	Long: `Opens a visible browser on the ERP and waits for you to finish logging
in, verification steps included. Once the order workspace loads, cookies
and origin storage are saved so later runs can reuse the session headless.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "How long to wait for the login to complete")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	// Login is always headful: the operator types credentials and clears
	// whatever verification the ERP throws at them.
	bcfg := browserConfig()
	bcfg.Headless = false

	session := browser.NewSession(bcfg, logger)
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer session.Close()

	if err := session.Navigate(ctx, cfg.ERP.BaseURL); err != nil {
		return fmt.Errorf("failed to open ERP: %w", err)
	}

	fmt.Println("Complete the login in the browser window...")

	domain := browser.Domain(cfg.ERP.BaseURL)
	if err := session.WaitForLogin(ctx, domain, loginTimeout); err != nil {
		return err
	}

	state, err := session.SnapshotAuth()
	if err != nil {
		return fmt.Errorf("failed to capture auth state: %w", err)
	}
	if err := browser.SaveAuthState(cfg.AuthStatePath(), state); err != nil {
		return err
	}

	logger.Info("auth state saved", zap.String("path", cfg.AuthStatePath()))
	fmt.Printf("Logged in. Session saved to %s\n", cfg.AuthStatePath())
	return nil
}
