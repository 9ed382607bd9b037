package pairing

import (
	"regexp"

	"skupair/internal/browser"
)

// Locator chains for the dianxiaomi order UI, ordered from the most
// specific markup observed in production to the loosest fallback. Action
// controls use exact text matches: the list and detail views reuse short
// labels, and a substring match has hit the wrong control before.
var (
	clickableSel = "a, span, button, div"

	chainUnpairedFilter = []browser.Locator{
		browser.TextPattern(clickableSel, `未配对SKU\(\d+\)`),
		browser.TextExact(clickableSel, "未配对SKU"),
		browser.Text(clickableSel, "未配对SKU"),
	}

	chainOrderRows = []browser.Locator{
		browser.CSS("tr[data-id]"),
		browser.CSS(".order-item"),
		browser.CSS(".order-row"),
		browser.CSS("table tbody tr"),
	}

	chainRowOrderNo = []browser.Locator{
		browser.CSS(".orderCode .pointer"),
		browser.CSS(".orderBagInfo a"),
	}

	chainRowSKU = []browser.Locator{
		browser.CSS(".order-sku__name"),
	}

	chainDetailLink = []browser.Locator{
		browser.TextExact("a", "详情"),
	}

	chainDetailContainer = []browser.Locator{
		browser.Text(".ant-modal", "包裹"),
		browser.Text(".ant-modal", "详情 - 来源"),
		browser.CSS(".ant-modal.order-default-modal"),
		browser.CSS(".ant-modal"),
	}

	chainPairControl = []browser.Locator{
		browser.TextExact("span, a, button", "配对商品SKU"),
	}

	chainPairedMarker = []browser.Locator{
		browser.TextExact("a, span, button", "更换"),
		browser.TextExact("a, span, button", "解除"),
	}

	chainSearchInput = []browser.Locator{
		browser.CSS("#searchWareHoseProductsValue"),
	}

	chainSearchDialog = []browser.Locator{
		browser.Text(".ant-modal", "商品搜索"),
		browser.XPath("//input[@id='searchWareHoseProductsValue']/ancestor::div[contains(@class,'ant-modal')]"),
	}

	chainSearchButton = []browser.Locator{
		browser.TextExact("button", "搜 索"),
		browser.TextExact("button", "搜索"),
		browser.Text("button, a", "搜索"),
	}

	chainResultRows = []browser.Locator{
		browser.CSS("table tbody tr"),
		browser.CSS("tr"),
	}

	chainResultCells = []browser.Locator{
		browser.CSS("td"),
	}

	chainChooseControl = []browser.Locator{
		browser.TextExact("a, button", "选择"),
	}

	chainConfirmControl = []browser.Locator{
		browser.TextExact("button", "确定"),
		browser.TextExact("button", "确 定"),
	}

	chainProductBlocks = []browser.Locator{
		browser.CSS(".order-sku"),
		browser.CSS(".product-item"),
		browser.CSS(".sku-item"),
		browser.CSS("[class*='product']"),
	}

	chainQuantity = []browser.Locator{
		browser.CSS(".order-sku__meta .order-sku__quantity"),
		browser.CSS(".order-sku__quantity"),
	}

	chainDialogClose = []browser.Locator{
		browser.CSS(".ant-modal-close"),
		browser.TextExact("button", "关闭"),
	}
)

// Transient dialogs the ERP raises over the order list. Each is recognized
// by a content signature and dismissed only through its own close control;
// a page-wide dismiss has closed the order detail itself.
var (
	overlaySignatures = []string{"同步订单", "产品动态"}

	chainOverlayClose = []browser.Locator{
		browser.CSS(".ant-modal-close"),
		browser.TextExact("button", "关闭"),
		browser.TextExact("button", "我知道了"),
		browser.TextExact("button", "知道了"),
	}
)

// Personalization field labels seen across storefronts, checked in order.
// Colon matching tolerates both ASCII and full-width variants, so the
// Chinese labels here carry no trailing punctuation.
var (
	name1Labels = []string{
		"Name 1", "Name1", "name 1", "name1",
		"Text 1", "text 1", "Line 1", "line 1",
		"刻字1", "刻字 1", "定制1", "定制 1",
	}

	name2Labels = []string{
		"Name 2", "Name2", "name 2", "name2",
		"Text 2", "text 2", "Line 2", "line 2",
		"刻字2", "刻字 2", "定制2", "定制 2",
	}

	engravingLabels = []string{
		"Name Engraving", "name engraving", "Name engraving",
		"Engraving Name", "engraving name",
		"刻字", "定制名",
	}
)

var (
	// skuCandidate matches raw platform SKU shapes inside free text. Hits
	// are only trusted after the parser accepts them.
	skuCandidate = regexp.MustCompile(`[A-Z]\d{2,}-[A-Za-z0-9]+(?:-[A-Za-z0-9]+)*`)

	quantityDigits = regexp.MustCompile(`(\d+)`)
)
