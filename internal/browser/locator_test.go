package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocatorString(t *testing.T) {
	assert.Equal(t, "css(tr[data-id])", CSS("tr[data-id]").String())
	assert.Equal(t, "xpath(//td[2])", XPath("//td[2]").String())
	assert.Equal(t, `text(button, "搜 索")`, Text("button", "搜 索").String())
	assert.Equal(t, `text=(a, "详情")`, TextExact("a", "详情").String())
	assert.Equal(t, `text(a, /未配对SKU\(\d+\)/)`, TextPattern("a", `未配对SKU\(\d+\)`).String())
}

func TestDescribe(t *testing.T) {
	chain := []Locator{
		CSS("#searchWareHoseProductsValue"),
		Text("button, a", "搜索"),
	}
	assert.Equal(t, `css(#searchWareHoseProductsValue) | text(button, a, "搜索")`, Describe(chain))
	assert.Equal(t, "", Describe(nil))
}

func TestPatternQuotesMeta(t *testing.T) {
	assert.Equal(t, "搜 索", Text("button", "搜 索").Pattern())
	assert.Equal(t, `未配对SKU\(3\)`, Text("a", "未配对SKU(3)").Pattern())
}

func TestPatternExactAnchorsAndQuotes(t *testing.T) {
	assert.Equal(t, `^\s*详情\s*$`, TextExact("a", "详情").Pattern())
	assert.Equal(t, `^\s*确定\(1\)\s*$`, TextExact("button", "确定(1)").Pattern())
}

func TestPatternRegexPassthrough(t *testing.T) {
	assert.Equal(t, `未配对SKU\(\d+\)`, TextPattern("a", `未配对SKU\(\d+\)`).Pattern())
}

func TestRungBudget(t *testing.T) {
	assert.Equal(t, 3*time.Second, rungBudget(9*time.Second, 3))
	assert.Equal(t, 9*time.Second, rungBudget(9*time.Second, 1))
	assert.Equal(t, time.Duration(0), rungBudget(9*time.Second, 0))
	assert.Equal(t, time.Duration(0), rungBudget(-time.Second, 2))
	assert.Equal(t, time.Duration(0), rungBudget(0, 2))
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{Chain: Describe([]Locator{CSS("a"), CSS("b")}), Budget: 10 * time.Second}
	assert.Equal(t, "no element matched css(a) | css(b) within 10s", err.Error())
}
