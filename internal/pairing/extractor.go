package pairing

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"skupair/internal/browser"
	"skupair/internal/sku"
)

// openDetail brings up the order's detail dialog. Strategies in order:
// the row by its stable token, the row by order-number text, then the
// first detail link on the page. The detail link is matched exactly; the
// adjacent review control shares a substring and must never be hit.
func (w *Workflow) openDetail(ctx context.Context, t *Task) (browser.Element, error) {
	budget := w.opts.StepTimeout / 3
	if link := w.rowDetailLink(ctx, budget, t); link != nil {
		if err := link.Click(ctx); err == nil {
			if container, err := w.awaitDetail(ctx); err == nil {
				return container, nil
			}
		}
	}
	link, err := w.drv.Find(ctx, budget, chainDetailLink...)
	if err != nil {
		return nil, err
	}
	if err := link.Click(ctx); err != nil {
		return nil, err
	}
	return w.awaitDetail(ctx)
}

// rowDetailLink locates the detail link scoped to the task's own row, by
// stable token first and order-number text second. Returns nil when neither
// row strategy lands; the caller falls back to the page-global link.
func (w *Workflow) rowDetailLink(ctx context.Context, budget time.Duration, t *Task) browser.Element {
	if t.RowID != "" {
		sel := fmt.Sprintf("tr[data-id=%q], tr[rowid=%q]", t.RowID, t.RowID)
		if row, err := w.drv.Find(ctx, budget, browser.CSS(sel)); err == nil {
			if link, err := row.Find(ctx, budget, chainDetailLink...); err == nil {
				return link
			}
		}
	}
	if t.OrderNo != "" {
		rowByNo := browser.TextPattern("tr", regexp.QuoteMeta(t.OrderNo))
		if row, err := w.drv.Find(ctx, budget, rowByNo); err == nil {
			if link, err := row.Find(ctx, budget, chainDetailLink...); err == nil {
				return link
			}
		}
	}
	return nil
}

func (w *Workflow) awaitDetail(ctx context.Context) (browser.Element, error) {
	return w.drv.Find(ctx, w.opts.StepTimeout, chainDetailContainer...)
}

// closeDetail dismisses the task's own detail dialog. A missed close falls
// back to reopening the order list so the next task starts clean.
func (w *Workflow) closeDetail(ctx context.Context, container browser.Element) {
	closeBtn, err := container.Find(ctx, overlayBudget, chainDialogClose...)
	if err == nil {
		if err := closeBtn.Click(ctx); err == nil {
			_ = w.drv.WaitStable(ctx, settleWindow)
			return
		}
	}
	w.log.Debug("detail close missed, reopening order list")
	w.reopenList(ctx)
}

// extract reads the platform SKU and personalization for the first engraved
// line in the detail view. It tries the product blocks, then the whole
// container text, then one HTML snapshot walked offline, and finally the
// SKU already captured from the list row. The returned SkipReason is empty
// on success.
func (w *Workflow) extract(ctx context.Context, t *Task, container browser.Element) (SkipReason, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	mapping := w.gen.Mapping()
	var scan textScan

	blocks, err := container.FindAll(ctx, w.opts.StepTimeout, chainProductBlocks...)
	if err == nil {
		t.Blocks = len(blocks)
		for _, block := range blocks {
			text, err := block.Text()
			if err != nil {
				continue
			}
			s := scanForEngraved(text, mapping)
			scan.merge(s)
			if !s.found {
				continue
			}
			t.RawSKU, t.Attrs = s.raw, s.attrs
			t.Names = w.blockNames(ctx, text, container)
			t.Quantity = w.blockQuantity(ctx, block)
			return "", nil
		}
	}

	if text, err := container.Text(); err == nil {
		s := scanForEngraved(text, mapping)
		scan.merge(s)
		if s.found {
			t.RawSKU, t.Attrs = s.raw, s.attrs
			t.Names = scanPersonalization(text)
			t.Quantity = 1
			return "", nil
		}
	}

	if src, err := w.drv.HTML(); err == nil {
		text := htmlText(src)
		s := scanForEngraved(text, mapping)
		scan.merge(s)
		if s.found {
			t.RawSKU, t.Attrs = s.raw, s.attrs
			t.Names = scanPersonalization(text)
			t.Quantity = 1
			return "", nil
		}
	}

	// The list row is the last word when the detail view renders nothing
	// usable.
	if t.RawSKU != "" {
		if attrs, err := sku.Parse(t.RawSKU, mapping); err == nil {
			scan.parsed = true
			if attrs.CustomType == sku.CustomEngraved {
				t.Attrs = attrs
				if text, err := container.Text(); err == nil {
					t.Names = scanPersonalization(text)
				}
				t.Quantity = 1
				return "", nil
			}
		} else {
			scan.candidates = true
		}
	}

	if scan.parsed {
		return SkipNoEngravedLine, nil
	}
	if scan.candidates {
		return SkipUnparsableSku, nil
	}
	return SkipNoEngravedLine, nil
}

// blockNames scans the product block for name labels, widening to the full
// container when the block itself carries none; storefronts place the
// personalization section outside the line item on some layouts.
func (w *Workflow) blockNames(ctx context.Context, blockText string, container browser.Element) sku.Personalization {
	names := scanPersonalization(blockText)
	if !names.Empty() {
		return names
	}
	if text, err := container.Text(); err == nil {
		return scanPersonalization(text)
	}
	return names
}

func (w *Workflow) blockQuantity(ctx context.Context, block browser.Element) int {
	cell, err := block.Find(ctx, rowBudget, chainQuantity...)
	if err != nil {
		return 1
	}
	text, err := cell.Text()
	if err != nil {
		return 1
	}
	return parseQuantity(text)
}

// textScan accumulates what the engraved-line scan saw, so a miss can be
// attributed to either an unparsable SKU or a genuinely non-engraved order.
type textScan struct {
	raw        string
	attrs      sku.Attributes
	found      bool
	candidates bool
	parsed     bool
}

func (s *textScan) merge(other textScan) {
	s.candidates = s.candidates || other.candidates
	s.parsed = s.parsed || other.parsed
}

// scanForEngraved pulls SKU-shaped strings out of free text and returns the
// first one the parser accepts as an engraved line.
func scanForEngraved(text string, mapping *sku.Mapping) textScan {
	var scan textScan
	for _, candidate := range skuCandidate.FindAllString(text, -1) {
		scan.candidates = true
		attrs, err := sku.Parse(candidate, mapping)
		if err != nil {
			continue
		}
		scan.parsed = true
		if attrs.CustomType != sku.CustomEngraved {
			continue
		}
		scan.raw, scan.attrs, scan.found = candidate, attrs, true
		return scan
	}
	return scan
}

// firstSKUCandidate returns the first SKU-shaped string the parser accepts,
// then the first raw regex hit, then the first dashed whitespace-free token
// line. The last form keeps evidence for lowercase or otherwise odd SKUs
// the pattern misses; the detail extractor re-parses it later.
func firstSKUCandidate(text string, mapping *sku.Mapping) string {
	candidates := skuCandidate.FindAllString(text, -1)
	for _, candidate := range candidates {
		if _, err := sku.Parse(candidate, mapping); err == nil {
			return candidate
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.Contains(line, "-") && !strings.ContainsAny(line, " \t") {
			return line
		}
	}
	return ""
}

// scanPersonalization reads the tolerated name labels out of free text.
func scanPersonalization(text string) sku.Personalization {
	return sku.Personalization{
		Name1:         labelValue(text, name1Labels),
		Name2:         labelValue(text, name2Labels),
		NameEngraving: labelValue(text, engravingLabels),
	}
}

// labelValue finds the first label variant in the text and returns its
// value: the rest of the line after the colon (ASCII or full-width), or the
// next non-empty line when the label stands alone. A label immediately
// followed by other word characters does not match, so 刻字 never steals
// 刻字1's line.
func labelValue(text string, labels []string) string {
	lines := strings.Split(text, "\n")
	for _, label := range labels {
		for i, line := range lines {
			idx := strings.Index(line, label)
			if idx < 0 {
				continue
			}
			rest := strings.TrimSpace(line[idx+len(label):])
			if v, ok := cutColon(rest); ok {
				if v != "" {
					return v
				}
				rest = ""
			}
			if rest == "" && strings.TrimSpace(line[:idx]) == "" {
				for _, next := range lines[i+1:] {
					if v := strings.TrimSpace(next); v != "" {
						return v
					}
				}
			}
		}
	}
	return ""
}

func cutColon(s string) (string, bool) {
	for _, colon := range []string{":", "："} {
		if v, ok := strings.CutPrefix(s, colon); ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// parseQuantity reads the first run of digits out of a quantity cell such
// as "x2" or "×2"; anything unreadable means a single unit.
func parseQuantity(text string) int {
	m := quantityDigits.FindStringSubmatch(text)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// htmlText flattens an HTML snapshot into line-oriented text, one text node
// per line, skipping script and style subtrees. Labels and values split
// across inline elements land on adjacent lines, which the label scan's
// next-line rule picks up.
func htmlText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}
