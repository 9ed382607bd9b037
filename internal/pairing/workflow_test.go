package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"skupair/internal/browser"
	"skupair/internal/sku"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDOM resolves locator chains against scripted rules. A rule fires when
// its key is a substring of a rung's String(), in chain order, so tests
// exercise the same fallback ordering production does.
type fakeDOM struct {
	rules []fakeRule
}

type fakeRule struct {
	key string
	els []*fakeElement
}

func (d *fakeDOM) add(key string, els ...*fakeElement) {
	d.rules = append(d.rules, fakeRule{key: key, els: els})
}

func (d *fakeDOM) resolve(chain []browser.Locator) []*fakeElement {
	for _, loc := range chain {
		s := loc.String()
		for _, r := range d.rules {
			if strings.Contains(s, r.key) {
				return r.els
			}
		}
	}
	return nil
}

func notFound(budget time.Duration, chain []browser.Locator) error {
	return &browser.NotFoundError{Chain: browser.Describe(chain), Budget: budget}
}

type fakeElement struct {
	text   string
	attrs  map[string]string
	clicks int
	inputs []string
	dom    fakeDOM
}

var _ browser.Element = (*fakeElement)(nil)

func (e *fakeElement) Click(context.Context) error { e.clicks++; return nil }

func (e *fakeElement) Input(_ context.Context, text string) error {
	e.inputs = append(e.inputs, text)
	return nil
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Attribute(name string) (string, error) { return e.attrs[name], nil }

func (e *fakeElement) Visible() (bool, error) { return true, nil }

func (e *fakeElement) Find(_ context.Context, budget time.Duration, chain ...browser.Locator) (browser.Element, error) {
	if els := e.dom.resolve(chain); len(els) > 0 {
		return els[0], nil
	}
	return nil, notFound(budget, chain)
}

func (e *fakeElement) FindAll(_ context.Context, budget time.Duration, chain ...browser.Locator) ([]browser.Element, error) {
	els := e.dom.resolve(chain)
	if len(els) == 0 {
		return nil, notFound(budget, chain)
	}
	out := make([]browser.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

type fakeDriver struct {
	dom  fakeDOM
	url  string
	html string
	png  []byte
	navs []string
}

var _ browser.Driver = (*fakeDriver)(nil)

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		url:  "https://www.dianxiaomi.com/web/order/orderList.htm",
		html: "<html><body>order list</body></html>",
		png:  []byte{0x89, 0x50, 0x4e, 0x47},
	}
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.navs = append(d.navs, url)
	return nil
}

func (d *fakeDriver) CurrentURL() (string, error) { return d.url, nil }

func (d *fakeDriver) Find(_ context.Context, budget time.Duration, chain ...browser.Locator) (browser.Element, error) {
	if els := d.dom.resolve(chain); len(els) > 0 {
		return els[0], nil
	}
	return nil, notFound(budget, chain)
}

func (d *fakeDriver) FindAll(_ context.Context, budget time.Duration, chain ...browser.Locator) ([]browser.Element, error) {
	els := d.dom.resolve(chain)
	if len(els) == 0 {
		return nil, notFound(budget, chain)
	}
	out := make([]browser.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

func (d *fakeDriver) HTML() (string, error) { return d.html, nil }

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) { return d.png, nil }

func (d *fakeDriver) WaitStable(context.Context, time.Duration) error { return nil }

type fakeAuth struct{ err error }

func (a fakeAuth) EnsureAuthenticated(context.Context, string, string) error { return a.err }

// fixture assembles the scripted order page: one unpaired engraved order
// reachable through filter, row, detail dialog and product-search dialog.
type fixture struct {
	drv       *fakeDriver
	filter    *fakeElement
	row       *fakeElement
	container *fakeElement
	input     *fakeElement
	dialog    *fakeElement
	cell      *fakeElement
	choose    *fakeElement
	confirm   *fakeElement
}

const (
	testOrderNo = "PO-2024-88012"
	testRawSKU  = "J20-S-Engraved-MAN12-LEDx1"
	testGenSKU  = "Michael-J20-0124-Xaviar+Suzi"
	testIdent   = "88012-J20-XaviarSuzi"
)

func buildRow(orderNo, rawSKU string) *fakeElement {
	row := &fakeElement{attrs: map[string]string{"data-id": "8801"}}
	row.dom.add(".orderCode", &fakeElement{text: "#" + orderNo})
	row.dom.add(".order-sku__name", &fakeElement{text: rawSKU})
	row.dom.add("详情", &fakeElement{})
	return row
}

func buildContainer(blockText string, withPairControl, withPairedMarker bool) *fakeElement {
	container := &fakeElement{text: blockText}
	block := &fakeElement{text: blockText}
	block.dom.add(".order-sku__quantity", &fakeElement{text: "x1"})
	container.dom.add("css(.order-sku)", block)
	if withPairControl {
		container.dom.add("配对商品SKU", &fakeElement{})
	}
	if withPairedMarker {
		container.dom.add("更换", &fakeElement{})
	}
	container.dom.add(".ant-modal-close", &fakeElement{})
	return container
}

func newFixture(cellSKU string) *fixture {
	f := &fixture{
		drv:     newFakeDriver(),
		filter:  &fakeElement{text: "未配对SKU(1)"},
		row:     buildRow(testOrderNo, testRawSKU),
		input:   &fakeElement{},
		dialog:  &fakeElement{},
		cell:    &fakeElement{text: " " + cellSKU + " "},
		choose:  &fakeElement{},
		confirm: &fakeElement{},
	}
	f.container = buildContainer(
		testRawSKU+"\nName 1: Xaviar\nName 2: Suzi\nx1",
		true, true)

	resultRow := &fakeElement{}
	resultRow.dom.add("css(td)", f.cell)
	resultRow.dom.add("选择", f.choose)

	f.dialog.dom.add("搜 索", &fakeElement{})
	f.dialog.dom.add("table tbody tr", resultRow)
	f.dialog.dom.add("确定", f.confirm)

	f.drv.dom.add("未配对SKU", f.filter)
	f.drv.dom.add("tr[data-id", f.row)
	f.drv.dom.add("包裹", f.container)
	f.drv.dom.add("#searchWareHoseProductsValue", f.input)
	f.drv.dom.add("商品搜索", f.dialog)
	return f
}

func testGenerator() *sku.Generator {
	mapping := sku.NewMapping(map[string]string{"MAN12": "CARD-MAN12"})
	return sku.NewGenerator("", "", mapping, nil)
}

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		OrderListURL:  "https://www.dianxiaomi.com/web/order/orderList.htm",
		Domain:        "dianxiaomi.com",
		Date:          "0124",
		StepTimeout:   200 * time.Millisecond,
		FilterTimeout: 90 * time.Millisecond,
		ArtifactsDir:  filepath.Join(dir, "artifacts"),
		ReportPath:    filepath.Join(dir, "report.json"),
	}
}

func TestRunPairsOrder(t *testing.T) {
	f := newFixture(testGenSKU)
	opts := testOptions(t)
	w := New(f.drv, fakeAuth{}, testGenerator(), opts, nil)

	report, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Tasks, 1)
	entry := report.Tasks[0]
	assert.Equal(t, testOrderNo, entry.OrderNo)
	assert.Equal(t, "paired", entry.Status)
	assert.Equal(t, testIdent, entry.Identifier)
	assert.Equal(t, testGenSKU, entry.SKU)
	assert.Equal(t, testRawSKU, entry.RawSKU)
	assert.Equal(t, 1, report.Counts["paired"])
	assert.False(t, report.DegradedFilter)

	assert.Equal(t, 1, f.filter.clicks, "filter control should be activated once")
	assert.Equal(t, []string{testGenSKU}, f.input.inputs, "search input gets the generated sku")
	assert.Equal(t, 1, f.choose.clicks)
	assert.Equal(t, 1, f.confirm.clicks)
	require.NotEmpty(t, f.drv.navs)
	assert.Equal(t, opts.OrderListURL, f.drv.navs[0])

	data, err := os.ReadFile(opts.ReportPath)
	require.NoError(t, err, "report must be flushed to disk")
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.NotEmpty(t, onDisk["run_id"])
}

func TestRunRejectsSharedPrefixCatalogRow(t *testing.T) {
	// The catalog row differs from the generated SKU only by a trailing
	// rune; substring matching would wrongly pair it.
	f := newFixture(testGenSKU + "e")
	opts := testOptions(t)
	w := New(f.drv, fakeAuth{}, testGenerator(), opts, nil)

	report, err := w.Run(context.Background())
	require.NoError(t, err, "a per-task failure must not kill the run")

	require.Len(t, report.Tasks, 1)
	entry := report.Tasks[0]
	assert.Equal(t, "failed", entry.Status)
	assert.Equal(t, string(FailSkuNotInCatalog), entry.FailReason)
	assert.Equal(t, 0, f.choose.clicks)

	require.NotEmpty(t, entry.ArtifactPNG)
	require.NotEmpty(t, entry.ArtifactHTML)
	png, err := os.ReadFile(entry.ArtifactPNG)
	require.NoError(t, err)
	assert.Equal(t, f.drv.png, png)
	assert.Contains(t, entry.ArtifactPNG, "SkuNotInCatalog")
	assert.Contains(t, entry.ArtifactPNG, "88012")
}

func TestRunSkipsAlreadyPairedLine(t *testing.T) {
	f := newFixture(testGenSKU)
	f.container = buildContainer(
		testRawSKU+"\nName 1: Xaviar\nName 2: Suzi",
		false, true)
	f.drv.dom = fakeDOM{}
	f.drv.dom.add("未配对SKU", f.filter)
	f.drv.dom.add("tr[data-id", f.row)
	f.drv.dom.add("包裹", f.container)

	w := New(f.drv, fakeAuth{}, testGenerator(), testOptions(t), nil)
	report, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Tasks, 1)
	entry := report.Tasks[0]
	assert.Equal(t, "skipped", entry.Status)
	assert.Equal(t, string(SkipAlreadyPaired), entry.SkipReason)
	assert.Empty(t, entry.ArtifactPNG, "skips capture no artifacts")
}

func TestRunSkipsNonEngravedOrder(t *testing.T) {
	f := newFixture(testGenSKU)
	f.row = buildRow(testOrderNo, "B09-B-MAN10-whitebox")
	f.container = buildContainer("B09-B-MAN10-whitebox\nQuantity: 1", true, false)
	f.drv.dom = fakeDOM{}
	f.drv.dom.add("未配对SKU", f.filter)
	f.drv.dom.add("tr[data-id", f.row)
	f.drv.dom.add("包裹", f.container)

	w := New(f.drv, fakeAuth{}, testGenerator(), testOptions(t), nil)
	report, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Tasks, 1)
	assert.Equal(t, string(SkipNoEngravedLine), report.Tasks[0].SkipReason)
}

func TestRunSkipsConflictingGeneration(t *testing.T) {
	f := newFixture(testGenSKU)
	gen := testGenerator()
	// Claim both the identifier and its one-shot disambiguation so the
	// generator reports a conflict.
	require.True(t, gen.Registry().ClaimIdentifier(testIdent))
	require.True(t, gen.Registry().ClaimIdentifier(testIdent+"-88012"))

	w := New(f.drv, fakeAuth{}, gen, testOptions(t), nil)
	report, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Tasks, 1)
	entry := report.Tasks[0]
	assert.Equal(t, "skipped", entry.Status)
	assert.Equal(t, string(SkipConflict), entry.SkipReason)
}

func TestRunFailsTaskWhenDetailNeverOpens(t *testing.T) {
	f := newFixture(testGenSKU)
	f.row = &fakeElement{attrs: map[string]string{"data-id": "8801"}}
	f.row.dom.add(".orderCode", &fakeElement{text: testOrderNo})
	f.drv.dom = fakeDOM{}
	f.drv.dom.add("未配对SKU", f.filter)
	f.drv.dom.add("tr[data-id", f.row)

	w := New(f.drv, fakeAuth{}, testGenerator(), testOptions(t), nil)
	report, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Tasks, 1)
	entry := report.Tasks[0]
	assert.Equal(t, "failed", entry.Status)
	assert.Equal(t, string(FailDetailNotFound), entry.FailReason)
	assert.NotEmpty(t, entry.ArtifactHTML)
	// The workflow recovers the order list for whatever would come next.
	assert.GreaterOrEqual(t, len(f.drv.navs), 2)
}

func TestRunContinuesDegradedWhenFilterMissing(t *testing.T) {
	f := newFixture(testGenSKU)
	f.drv.dom = fakeDOM{}
	f.drv.dom.add("tr[data-id", f.row)
	f.drv.dom.add("包裹", f.container)
	f.drv.dom.add("#searchWareHoseProductsValue", f.input)
	f.drv.dom.add("商品搜索", f.dialog)

	w := New(f.drv, fakeAuth{}, testGenerator(), testOptions(t), nil)
	report, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.DegradedFilter)
	assert.Equal(t, 1, report.Counts["paired"], "visible rows are still paired")
}

func TestRunFatalOnAuthExpiry(t *testing.T) {
	f := newFixture(testGenSKU)
	opts := testOptions(t)
	authErr := fmt.Errorf("landed on login: %w", browser.ErrAuthExpired)
	w := New(f.drv, fakeAuth{err: authErr}, testGenerator(), opts, nil)

	report, err := w.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrAuthExpired)
	assert.NotEmpty(t, report.FatalError)
	assert.Empty(t, report.Tasks)

	_, statErr := os.Stat(opts.ReportPath)
	assert.NoError(t, statErr, "report flushes even on fatal auth expiry")
}

func TestRunSingleOrderMode(t *testing.T) {
	f := newFixture(testGenSKU)
	opts := testOptions(t)

	t.Run("unknown order aborts", func(t *testing.T) {
		o := opts
		o.OrderNo = "PO-0000-00000"
		w := New(f.drv, fakeAuth{}, testGenerator(), o, nil)
		report, err := w.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not in the unpaired list")
		assert.Empty(t, report.Tasks)
	})

	t.Run("matching order runs", func(t *testing.T) {
		o := opts
		o.OrderNo = testOrderNo
		w := New(f.drv, fakeAuth{}, testGenerator(), o, nil)
		report, err := w.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, report.Tasks, 1)
		assert.Equal(t, testOrderNo, report.Tasks[0].OrderNo)
	})
}

func TestDiscoverDedupesAndBounds(t *testing.T) {
	drv := newFakeDriver()
	header := &fakeElement{attrs: map[string]string{"class": "first-level-row"}}
	rowA := buildRow("PO-2024-00001", "J20-G-engraved-D17-whitebox")
	rowADup := buildRow("PO-2024-00001", "J20-G-engraved-D17-whitebox")
	rowB := buildRow("PO-2024-00002", "J02-S-engraved-MAN10-LEDx1")
	drv.dom.add("未配对SKU", &fakeElement{})
	drv.dom.add("tr[data-id", header, rowA, rowADup, rowB)

	w := New(drv, fakeAuth{}, testGenerator(), Options{
		OrderListURL:  "https://www.dianxiaomi.com/web/order/orderList.htm",
		Domain:        "dianxiaomi.com",
		StepTimeout:   100 * time.Millisecond,
		FilterTimeout: 60 * time.Millisecond,
	}, nil)

	tasks, err := w.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2, "header skipped, duplicate collapsed")
	assert.Equal(t, "PO-2024-00001", tasks[0].OrderNo)
	assert.Equal(t, "PO-2024-00002", tasks[1].OrderNo)
	assert.Equal(t, "8801", tasks[0].RowID)
	assert.Equal(t, "J20-G-engraved-D17-whitebox", tasks[0].RawSKU)

	w.opts.MaxOrders = 1
	tasks, err = w.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestDiscoverDismissesKnownOverlaysOnly(t *testing.T) {
	drv := newFakeDriver()

	syncClose := &fakeElement{}
	syncOverlay := &fakeElement{text: "同步订单进行中"}
	syncOverlay.dom.add(".ant-modal-close", syncClose)

	otherClose := &fakeElement{}
	otherOverlay := &fakeElement{text: "系统维护公告"}
	otherOverlay.dom.add(".ant-modal-close", otherClose)

	drv.dom.add("同步订单", syncOverlay)
	drv.dom.add("系统维护公告", otherOverlay)
	drv.dom.add("未配对SKU", &fakeElement{})
	drv.dom.add("tr[data-id", buildRow("PO-2024-00003", "J20-G-engraved-D17-whitebox"))

	w := New(drv, fakeAuth{}, testGenerator(), Options{
		OrderListURL:  "https://www.dianxiaomi.com/web/order/orderList.htm",
		Domain:        "dianxiaomi.com",
		StepTimeout:   100 * time.Millisecond,
		FilterTimeout: 60 * time.Millisecond,
	}, nil)

	tasks, err := w.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	assert.NotZero(t, syncClose.clicks, "signature overlay closed via its own control")
	assert.Zero(t, otherClose.clicks, "unrecognized dialog left alone")
}

func TestClassifySkip(t *testing.T) {
	assert.Equal(t, SkipUnparsableSku, classifySkip(&sku.ParseError{Raw: "x", Reason: "short"}))
	assert.Equal(t, SkipNamesMissing, classifySkip(fmt.Errorf("order 1: %w", sku.ErrNoNames)))
	assert.Equal(t, SkipConflict, classifySkip(&sku.ConflictError{Kind: sku.ConflictSKU, Value: "v"}))
	assert.Equal(t, SkipGenerateFailed, classifySkip(fmt.Errorf("anything else")))
}
