package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skupair/internal/browser"
	"skupair/internal/history"
	"skupair/internal/pairing"
	"skupair/internal/sku"
)

var (
	pairMaxOrders    int
	pairOrderNo      string
	pairHeadless     bool
	pairArtifactsDir string
	pairDate         string
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair unpaired engraved orders in the ERP",
	Long: `Restores the saved ERP session, walks the unpaired order list, and pairs
each engraved order with its generated SKU. Every order is recorded in the
run report and in history; failures capture a screenshot and page snapshot
under the artifacts directory.`,
	RunE: runPair,
}

func init() {
	pairCmd.Flags().IntVar(&pairMaxOrders, "max-orders", 0, "Stop after this many orders (0 uses the config value)")
	pairCmd.Flags().StringVar(&pairOrderNo, "order", "", "Pair only the order with this order number")
	pairCmd.Flags().BoolVar(&pairHeadless, "headless", false, "Run the browser headless")
	pairCmd.Flags().StringVar(&pairArtifactsDir, "artifacts-dir", "", "Directory for failure artifacts and reports")
	pairCmd.Flags().StringVar(&pairDate, "date", "", "Date stamp for generated SKUs, MMDD or YYYYMMDD (default today)")
}

func runPair(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	state, err := browser.LoadAuthState(cfg.AuthStatePath())
	if err != nil {
		if errors.Is(err, browser.ErrNoAuthState) {
			return fmt.Errorf("no saved ERP session, run `skupair login` first")
		}
		return err
	}

	mapping, err := loadCardMapping()
	if err != nil {
		return err
	}
	gen := sku.NewGenerator(cfg.Store.Name, cfg.Store.RedBoxSKU, mapping, nil)

	bcfg := browserConfig()
	if pairHeadless {
		bcfg.Headless = true
	}

	session := browser.NewSession(bcfg, logger)
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer session.Close()

	if err := session.RestoreAuth(ctx, state, cfg.ERP.BaseURL); err != nil {
		return fmt.Errorf("failed to restore ERP session: %w", err)
	}

	date := pairDate
	if date == "" {
		date = time.Now().Format("0102")
	}
	artifacts := pairArtifactsDir
	if artifacts == "" {
		artifacts = cfg.ArtifactsDir()
	}
	maxOrders := pairMaxOrders
	if maxOrders == 0 {
		maxOrders = cfg.Pairing.MaxOrders
	}
	reportPath := filepath.Join(artifacts, "report_"+time.Now().Format("20060102_150405")+".json")

	wf := pairing.New(session, session, gen, pairing.Options{
		OrderListURL:  cfg.ERP.OrderListURL(),
		Domain:        browser.Domain(cfg.ERP.BaseURL),
		Date:          date,
		MaxOrders:     maxOrders,
		OrderNo:       pairOrderNo,
		StepTimeout:   cfg.GetStepTimeout(),
		FilterTimeout: cfg.GetFilterTimeout(),
		ArtifactsDir:  artifacts,
		ReportPath:    reportPath,
	}, logger)

	report, runErr := wf.Run(ctx)

	recordPairRun(report, reportPath)
	printPairSummary(report, reportPath)
	return runErr
}

func recordPairRun(report *pairing.Report, reportPath string) {
	store, err := history.NewStore(cfg.HistoryPath(), logger)
	if err != nil {
		logger.Warn("history unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	run, tasks := history.FromReport(report, reportPath)
	if err := store.RecordRun(run, tasks); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}
}

func printPairSummary(report *pairing.Report, reportPath string) {
	paired := report.Counts[pairing.StatusPaired.String()]
	skipped := report.Counts[pairing.StatusSkipped.String()]
	failed := report.Counts[pairing.StatusFailed.String()]

	fmt.Printf("Paired %d, skipped %d, failed %d (report: %s)\n",
		paired, skipped, failed, reportPath)
	if report.DegradedFilter {
		fmt.Println("Unpaired filter could not be applied; visible orders were processed anyway.")
	}
	if failed > 0 {
		fmt.Printf("Failure artifacts are under %s\n", filepath.Dir(reportPath))
	}
	if report.FatalError != "" {
		fmt.Printf("Run stopped early: %s\n", report.FatalError)
	}
}
