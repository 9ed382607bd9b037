package pairing

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"skupair/internal/browser"
)

const (
	overlayBudget = 2 * time.Second
	rowBudget     = time.Second
	filterPasses  = 3
	settleWindow  = 800 * time.Millisecond
)

// Discover navigates to the order list, applies the unpaired-SKU filter and
// returns one task per visible order row. Every call starts from a fresh
// navigation, so the workflow can re-enter discovery after page drift.
//
// A *FilterTimeoutError is returned together with whatever rows were
// visible without the filter; the caller decides whether degraded rows are
// still worth pairing.
func (w *Workflow) Discover(ctx context.Context) ([]Task, error) {
	if err := w.drv.Navigate(ctx, w.opts.OrderListURL); err != nil {
		return nil, err
	}
	_ = w.drv.WaitStable(ctx, settleWindow)
	w.dismissOverlays(ctx)

	filterErr := w.applyFilter(ctx)
	if filterErr != nil {
		w.log.Warn("unpaired filter missed, collecting visible rows", zap.Error(filterErr))
	}

	tasks, err := w.collectRows(ctx)
	if err != nil {
		return nil, err
	}
	w.log.Info("discovery complete",
		zap.Int("tasks", len(tasks)),
		zap.Bool("filtered", filterErr == nil))
	return tasks, filterErr
}

// dismissOverlays closes the transient dialogs the ERP raises over the
// order list. Each overlay is matched by content signature and closed via
// its own close control; unknown dialogs are left alone.
func (w *Workflow) dismissOverlays(ctx context.Context) {
	for pass := 0; pass < 2; pass++ {
		dismissed := false
		for _, sig := range overlaySignatures {
			overlay, err := w.drv.Find(ctx, overlayBudget, browser.Text(".ant-modal-root", sig))
			if err != nil {
				continue
			}
			if visible, err := overlay.Visible(); err != nil || !visible {
				continue
			}
			closeBtn, err := overlay.Find(ctx, overlayBudget, chainOverlayClose...)
			if err != nil {
				w.log.Warn("overlay has no close control", zap.String("signature", sig))
				continue
			}
			if err := closeBtn.Click(ctx); err != nil {
				w.log.Warn("overlay close failed", zap.String("signature", sig), zap.Error(err))
				continue
			}
			w.log.Debug("overlay dismissed", zap.String("signature", sig))
			dismissed = true
		}
		if !dismissed {
			return
		}
		_ = w.drv.WaitStable(ctx, settleWindow)
	}
}

// applyFilter activates the unpaired-SKU filter control. The count-annotated
// label is preferred; overlays are re-checked between passes because the
// sync dialog tends to appear a beat after navigation.
func (w *Workflow) applyFilter(ctx context.Context) error {
	budget := w.opts.FilterTimeout / filterPasses
	for attempt := 1; attempt <= filterPasses; attempt++ {
		control, err := w.drv.Find(ctx, budget, chainUnpairedFilter...)
		if err == nil {
			if err := control.Click(ctx); err == nil {
				_ = w.drv.WaitStable(ctx, settleWindow)
				return nil
			}
			w.log.Debug("filter click failed, retrying", zap.Int("attempt", attempt))
		}
		w.dismissOverlays(ctx)
	}
	return &FilterTimeoutError{Budget: w.opts.FilterTimeout, Attempts: filterPasses}
}

// collectRows enumerates the visible order rows and builds one task per
// distinct order number. Group-header rows and rows without an order number
// are skipped.
func (w *Workflow) collectRows(ctx context.Context) ([]Task, error) {
	rows, err := w.drv.FindAll(ctx, w.opts.StepTimeout, chainOrderRows...)
	if err != nil {
		var nf *browser.NotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[string]bool)
	var tasks []Task
	for _, row := range rows {
		if w.opts.MaxOrders > 0 && len(tasks) >= w.opts.MaxOrders {
			break
		}
		if class, _ := row.Attribute("class"); strings.Contains(class, "first-level-row") {
			continue
		}
		orderNo := w.rowOrderNo(ctx, row)
		if orderNo == "" || seen[orderNo] {
			continue
		}
		seen[orderNo] = true

		task := Task{
			OrderNo:   orderNo,
			RowID:     rowToken(row),
			RawSKU:    w.rowSKU(ctx, row),
			Status:    StatusDiscovered,
			StartedAt: time.Now(),
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (w *Workflow) rowOrderNo(ctx context.Context, row browser.Element) string {
	cell, err := row.Find(ctx, rowBudget, chainRowOrderNo...)
	if err != nil {
		return ""
	}
	text, err := cell.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "#"))
}

func (w *Workflow) rowSKU(ctx context.Context, row browser.Element) string {
	cell, err := row.Find(ctx, rowBudget, chainRowSKU...)
	if err != nil {
		return ""
	}
	text, err := cell.Text()
	if err != nil {
		return ""
	}
	return firstSKUCandidate(text, w.gen.Mapping())
}

// rowToken returns the stable row identifier the table exposes, if any.
func rowToken(row browser.Element) string {
	for _, attr := range []string{"data-id", "rowid"} {
		if v, _ := row.Attribute(attr); v != "" {
			return v
		}
	}
	return ""
}

// reopenList recovers the order list after page drift: fresh navigation,
// overlays cleared, filter re-applied best-effort.
func (w *Workflow) reopenList(ctx context.Context) {
	if err := w.drv.Navigate(ctx, w.opts.OrderListURL); err != nil {
		w.log.Warn("order list re-navigation failed", zap.Error(err))
		return
	}
	_ = w.drv.WaitStable(ctx, settleWindow)
	w.dismissOverlays(ctx)
	if err := w.applyFilter(ctx); err != nil {
		w.log.Warn("filter re-apply missed after recovery", zap.Error(err))
	}
}
