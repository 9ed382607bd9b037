// Package pairing drives the ERP order UI: it discovers unpaired engraved
// orders, extracts their personalization, derives the internal SKU and
// binds the order line to it through the product-search dialog. One
// workflow processes orders strictly in sequence; every wait is bounded
// and every non-paired outcome carries a machine-readable reason.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"skupair/internal/browser"
	"skupair/internal/sku"
)

const (
	defaultStepTimeout   = 10 * time.Second
	defaultFilterTimeout = 15 * time.Second
)

// Authenticator gates the run on a live ERP session. *browser.Session is
// the production implementation.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context, target, domain string) error
}

// Options configures one pairing run.
type Options struct {
	// OrderListURL is the ERP order-list route discovery navigates to.
	OrderListURL string
	// Domain is the authenticated ERP host, for auth-expiry detection.
	Domain string
	// Date is the normalized MMDD stamp handed to the generator.
	Date string
	// MaxOrders bounds discovery; zero or negative means unbounded.
	MaxOrders int
	// OrderNo restricts the run to a single order from the unpaired list.
	OrderNo string

	StepTimeout   time.Duration
	FilterTimeout time.Duration
	// ArtifactsDir receives the screenshot and HTML dump captured for
	// every Failed task.
	ArtifactsDir string
	// ReportPath is where the run report JSON lands; empty skips the file
	// and keeps the report in-memory only.
	ReportPath string
}

// Workflow owns one sequential pairing run over one browser session.
type Workflow struct {
	drv  browser.Driver
	auth Authenticator
	gen  *sku.Generator
	opts Options
	log  *zap.Logger
}

// New wires a workflow. Zero timeouts fall back to the step and filter
// defaults; a nil logger is replaced with a no-op one.
func New(drv browser.Driver, auth Authenticator, gen *sku.Generator, opts Options, log *zap.Logger) *Workflow {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = defaultStepTimeout
	}
	if opts.FilterTimeout <= 0 {
		opts.FilterTimeout = defaultFilterTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Workflow{drv: drv, auth: auth, gen: gen, opts: opts, log: log}
}

// Run executes the full pairing pass: authenticate, discover, then drive
// each task to a terminal state. The report is returned even on fatal
// errors, and flushed to disk first, so partial batches stay observable.
func (w *Workflow) Run(ctx context.Context) (*Report, error) {
	report := NewReport()
	defer func() {
		report.Finish()
		w.flushReport(report)
	}()

	if err := w.auth.EnsureAuthenticated(ctx, w.opts.OrderListURL, w.opts.Domain); err != nil {
		report.FatalError = err.Error()
		return report, err
	}

	tasks, err := w.Discover(ctx)
	var ft *FilterTimeoutError
	switch {
	case err == nil:
	case errors.As(err, &ft):
		report.DegradedFilter = true
	default:
		report.FatalError = err.Error()
		return report, err
	}

	if w.opts.OrderNo != "" {
		tasks = selectOrder(tasks, w.opts.OrderNo)
		if len(tasks) == 0 {
			err := fmt.Errorf("order %s is not in the unpaired list", w.opts.OrderNo)
			report.FatalError = err.Error()
			return report, err
		}
	}

	w.log.Info("pairing run starting",
		zap.String("run_id", report.RunID),
		zap.Int("tasks", len(tasks)),
		zap.Bool("degraded_filter", report.DegradedFilter))

	for i := range tasks {
		t := &tasks[i]
		if err := ctx.Err(); err != nil {
			report.Add(t)
			report.FatalError = err.Error()
			return report, err
		}
		err := w.runTask(ctx, t)
		report.Add(t)
		if err != nil {
			report.FatalError = err.Error()
			return report, err
		}
	}
	return report, nil
}

// runTask drives one task to a terminal state. The returned error is fatal
// to the whole run (auth expiry, context cancellation, state-machine
// violations); per-task UI failures terminate the task, not the run.
func (w *Workflow) runTask(ctx context.Context, t *Task) error {
	log := w.log.With(zap.String("order", t.OrderNo))

	container, err := w.openDetail(ctx, t)
	if err != nil {
		if fatal := w.checkAuth(); fatal != nil {
			_ = t.Fail(FailDetailNotFound)
			return fatal
		}
		log.Warn("detail view not reached", zap.Error(err))
		w.fail(ctx, t, FailDetailNotFound)
		w.reopenList(ctx)
		return nil
	}
	defer w.closeDetail(ctx, container)

	if err := t.transition(StatusDetailOpened); err != nil {
		return err
	}

	skip, err := w.extract(ctx, t, container)
	if err != nil {
		return err
	}
	if skip != "" {
		log.Info("order skipped", zap.String("reason", string(skip)), zap.String("raw_sku", t.RawSKU))
		return t.Skip(skip)
	}
	if err := t.transition(StatusExtracted); err != nil {
		return err
	}
	log.Debug("order extracted",
		zap.String("raw_sku", t.RawSKU),
		zap.Int("blocks", t.Blocks))

	result, err := w.gen.Generate(t.OrderNo, w.opts.Date, t.Attrs, t.Names)
	if err != nil {
		reason := classifySkip(err)
		log.Warn("sku generation failed",
			zap.String("raw_sku", t.RawSKU),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return t.Skip(reason)
	}
	t.Generated = result

	return w.pairLine(ctx, t, container, log)
}

// pairLine binds the order line to the generated SKU through the
// product-search dialog. Extracted -> Searching -> Paired | Failed, with
// Skipped for lines that turn out to be paired already.
func (w *Workflow) pairLine(ctx context.Context, t *Task, container browser.Element, log *zap.Logger) error {
	control, err := container.Find(ctx, w.opts.StepTimeout, chainPairControl...)
	if err != nil {
		if _, merr := container.Find(ctx, overlayBudget, chainPairedMarker...); merr == nil {
			log.Info("line already paired")
			return t.Skip(SkipAlreadyPaired)
		}
		w.fail(ctx, t, FailPairButtonNotFound)
		return nil
	}
	if err := t.transition(StatusSearching); err != nil {
		return err
	}
	if err := control.Click(ctx); err != nil {
		w.fail(ctx, t, FailPairButtonNotFound)
		return nil
	}

	input, err := w.drv.Find(ctx, w.opts.StepTimeout, chainSearchInput...)
	if err != nil {
		w.failInDialog(ctx, t, FailSearchTimeout)
		return nil
	}
	if err := input.Input(ctx, t.Generated.SKU); err != nil {
		w.failInDialog(ctx, t, FailSearchTimeout)
		return nil
	}
	dialog, err := w.drv.Find(ctx, w.opts.StepTimeout, chainSearchDialog...)
	if err != nil {
		w.failInDialog(ctx, t, FailSearchTimeout)
		return nil
	}
	searchBtn, err := dialog.Find(ctx, w.opts.StepTimeout, chainSearchButton...)
	if err != nil {
		w.failInDialog(ctx, t, FailSearchTimeout)
		return nil
	}
	if err := searchBtn.Click(ctx); err != nil {
		w.failInDialog(ctx, t, FailSearchTimeout)
		return nil
	}
	_ = w.drv.WaitStable(ctx, settleWindow)

	rows, err := dialog.FindAll(ctx, w.opts.StepTimeout, chainResultRows...)
	if err != nil {
		w.failInDialog(ctx, t, FailSearchTimeout)
		return nil
	}
	match := w.exactResultRow(ctx, rows, t.Generated.SKU)
	if match == nil {
		log.Warn("generated sku not in catalog, import it first",
			zap.String("sku", t.Generated.SKU))
		w.failInDialog(ctx, t, FailSkuNotInCatalog)
		return nil
	}
	choose, err := match.Find(ctx, rowBudget, chainChooseControl...)
	if err != nil {
		w.failInDialog(ctx, t, FailSkuNotInCatalog)
		return nil
	}
	if err := choose.Click(ctx); err != nil {
		w.failInDialog(ctx, t, FailSkuNotInCatalog)
		return nil
	}

	confirm, err := dialog.Find(ctx, w.opts.StepTimeout, chainConfirmControl...)
	if err != nil {
		w.failInDialog(ctx, t, FailConfirmNotFound)
		return nil
	}
	if err := confirm.Click(ctx); err != nil {
		w.failInDialog(ctx, t, FailConfirmNotFound)
		return nil
	}
	_ = w.drv.WaitStable(ctx, settleWindow)

	// Paired is only claimed structurally: the line must now carry the
	// replace/unbind controls.
	if _, err := container.Find(ctx, w.opts.StepTimeout, chainPairedMarker...); err != nil {
		w.failInDialog(ctx, t, FailConfirmNotFound)
		return nil
	}
	log.Info("order paired",
		zap.String("identifier", t.Generated.Identifier),
		zap.String("sku", t.Generated.SKU))
	return t.transition(StatusPaired)
}

// exactResultRow returns the search-result row whose SKU cell equals the
// generated SKU exactly. Substring matches are rejected: SKUs of the same
// product and date share long prefixes.
func (w *Workflow) exactResultRow(ctx context.Context, rows []browser.Element, wanted string) browser.Element {
	for _, row := range rows {
		cells, err := row.FindAll(ctx, rowBudget, chainResultCells...)
		if err != nil {
			continue
		}
		for _, cell := range cells {
			text, err := cell.Text()
			if err != nil {
				continue
			}
			if strings.TrimSpace(text) == wanted {
				return row
			}
		}
	}
	return nil
}

// failInDialog fails the task, then clears the product-search dialog so it
// cannot shadow the next task's detail view. Artifacts are captured first:
// the open dialog is the evidence.
func (w *Workflow) failInDialog(ctx context.Context, t *Task, reason FailReason) {
	w.fail(ctx, t, reason)
	w.closeSearchDialog(ctx)
}

func (w *Workflow) closeSearchDialog(ctx context.Context) {
	dialog, err := w.drv.Find(ctx, overlayBudget, chainSearchDialog...)
	if err != nil {
		return
	}
	closeBtn, err := dialog.Find(ctx, overlayBudget, chainDialogClose...)
	if err != nil {
		return
	}
	_ = closeBtn.Click(ctx)
	_ = w.drv.WaitStable(ctx, settleWindow)
}

// fail moves the task to Failed and captures the diagnostic artifacts,
// named by reason and order so a failure maps straight to its evidence.
func (w *Workflow) fail(ctx context.Context, t *Task, reason FailReason) {
	if err := t.Fail(reason); err != nil {
		w.log.Error("task state violation", zap.Error(err))
		return
	}
	label := string(reason) + "_" + t.OrderNo
	art, err := browser.CaptureFailure(ctx, w.drv, w.opts.ArtifactsDir, label, w.log)
	if err != nil {
		w.log.Warn("artifact capture failed",
			zap.String("order", t.OrderNo), zap.Error(err))
		return
	}
	t.ArtifactPNG, t.ArtifactHTML = art.Screenshot, art.HTML
}

// checkAuth maps a page that drifted off the authenticated ERP surface to
// the fatal auth-expired error.
func (w *Workflow) checkAuth() error {
	url, err := w.drv.CurrentURL()
	if err != nil {
		return nil
	}
	if browser.IsAuthenticatedURL(w.opts.Domain, url) {
		return nil
	}
	return fmt.Errorf("%w: landed on %s", browser.ErrAuthExpired, url)
}

func (w *Workflow) flushReport(r *Report) {
	if w.opts.ReportPath != "" {
		if err := r.WriteJSON(w.opts.ReportPath); err != nil {
			w.log.Error("report flush failed", zap.String("path", w.opts.ReportPath), zap.Error(err))
		}
	}
	w.log.Info("pairing run finished",
		zap.String("run_id", r.RunID),
		zap.Int("paired", r.Counts[StatusPaired.String()]),
		zap.Int("skipped", r.Counts[StatusSkipped.String()]),
		zap.Int("failed", r.Counts[StatusFailed.String()]),
		zap.Bool("degraded_filter", r.DegradedFilter),
		zap.String("report", w.opts.ReportPath))
}

func classifySkip(err error) SkipReason {
	var pe *sku.ParseError
	switch {
	case errors.As(err, &pe):
		return SkipUnparsableSku
	case errors.Is(err, sku.ErrNoNames):
		return SkipNamesMissing
	case sku.IsConflict(err):
		return SkipConflict
	default:
		return SkipGenerateFailed
	}
}

func selectOrder(tasks []Task, orderNo string) []Task {
	for _, t := range tasks {
		if t.OrderNo == orderNo {
			return []Task{t}
		}
	}
	return nil
}
