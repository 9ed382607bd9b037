package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skupair/internal/batch"
	"skupair/internal/history"
	"skupair/internal/sku"
)

var (
	generateDate         string
	generateOutputDir    string
	generateImportTables bool
	generateWatch        string
)

var generateCmd = &cobra.Command{
	Use:   "generate [input.csv]",
	Short: "Generate SKU tables from an exported order sheet",
	Long: `Reads an exported order sheet, keeps the engraved rows, derives the
identifier, single SKU and combo SKU for each order, and writes a results
table plus optional ERP import tables next to the input.

With --watch DIR the command runs until interrupted and processes every
sheet dropped into the directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateDate, "date", "", "Date stamp for generated SKUs, MMDD or YYYYMMDD (default today)")
	generateCmd.Flags().StringVarP(&generateOutputDir, "output-dir", "o", "", "Directory for output tables (default beside the input)")
	generateCmd.Flags().BoolVar(&generateImportTables, "import-tables", true, "Write the single and combo ERP import tables")
	generateCmd.Flags().StringVar(&generateWatch, "watch", "", "Watch a directory and process sheets as they appear")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if generateWatch != "" {
		return runGenerateWatch()
	}
	if len(args) == 0 {
		return fmt.Errorf("need an input sheet or --watch")
	}
	return runGenerateOnce(args[0])
}

func runGenerateOnce(input string) error {
	started := time.Now()

	mapping, err := loadCardMapping()
	if err != nil {
		return err
	}
	gen := sku.NewGenerator(cfg.Store.Name, cfg.Store.RedBoxSKU, mapping, nil)

	rows, err := batch.ReadFile(input)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s has no order rows", filepath.Base(input))
	}

	date := generateDate
	if date == "" {
		date = time.Now().Format("0102")
	}

	results := batch.NewProcessor(gen, logger).Process(rows, date)
	if len(results) == 0 {
		return fmt.Errorf("%s has no engraved rows", filepath.Base(input))
	}

	dir := generateOutputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	paths, err := batch.WriteOutputs(dir, stem, results, generateImportTables)
	if err != nil {
		return err
	}

	recordGenerateRun(started, results, len(rows), paths[0])

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	fmt.Printf("Processed %d engraved rows (%d errors, %d non-engraved dropped)\n",
		len(results), failed, len(rows)-len(results))
	for _, p := range paths {
		fmt.Printf("  %s\n", p)
	}
	return nil
}

// recordGenerateRun stores the run in history. Failures are logged rather
// than returned: the output tables are already on disk and losing the
// history row should not fail the command.
func recordGenerateRun(started time.Time, results []batch.ResultRow, total int, reportPath string) {
	store, err := history.NewStore(cfg.HistoryPath(), logger)
	if err != nil {
		logger.Warn("history unavailable", zap.Error(err))
		return
	}
	defer store.Close()

	run, tasks := history.FromResults(uuid.NewString(), started, time.Now(), results, total, reportPath)
	if err := store.RecordRun(run, tasks); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}
}

func runGenerateWatch() error {
	ctx, cancel := signalContext()
	defer cancel()

	mapping, err := loadCardMapping()
	if err != nil {
		return err
	}
	prefix, redBox := cfg.Store.Name, cfg.Store.RedBoxSKU

	w, err := batch.NewWatcher(generateWatch, batch.WatcherOptions{
		Date:         generateDate,
		ImportTables: generateImportTables,
		Debounce:     cfg.GetWatchDebounce(),
		NewGenerator: func() *sku.Generator {
			return sku.NewGenerator(prefix, redBox, mapping, nil)
		},
		Log: logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", generateWatch)
	return w.Run(ctx)
}
