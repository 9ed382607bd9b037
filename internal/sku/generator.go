package sku

import (
	"fmt"
	"strings"
)

// Defaults for the store the tool was built around; both are configurable.
const (
	DefaultStorePrefix = "Michael"
	DefaultRedBoxSKU   = "Michael-RED BOX"
)

// productNamesCN maps product codes to their catalog display names.
var productNamesCN = map[string]string{
	"J20": "爱心双扣项链",
	"J02": "环环相扣项链",
	"J01": "镂空镶钻爱心手链",
	"B09": "不锈钢皮革手链",
	"B11": "编织皮革手链",
}

// colorNamesCN maps color codes to display names.
var colorNamesCN = map[string]string{
	"G": "金色",
	"S": "银色",
	"B": "黑色",
	"R": "玫瑰金",
}

// declareNames maps a product-code prefix to customs declaration names.
var declareNames = map[string][2]string{
	"J": {"Necklace", "项链"},
	"B": {"Bracelet", "手链"},
}

// Result is everything the generator derives for one order line.
type Result struct {
	Identifier  string
	SKU         string
	ComboSKU    string
	Auxiliary   []string
	ChineseName string
	DeclareEN   string
	DeclareCN   string
}

// Generator builds identifiers, internal SKUs and auxiliary SKU sets from
// parsed attributes plus personalization. It is pure except for the
// registry, which enforces batch-wide uniqueness.
type Generator struct {
	storePrefix string
	redBoxSKU   string
	mapping     *Mapping
	registry    *Registry
}

// NewGenerator wires a generator to a card mapping and a batch registry.
// Empty prefix and red-box SKU fall back to the store defaults; a nil
// registry gets a fresh one.
func NewGenerator(storePrefix, redBoxSKU string, mapping *Mapping, registry *Registry) *Generator {
	if storePrefix == "" {
		storePrefix = DefaultStorePrefix
	}
	if redBoxSKU == "" {
		redBoxSKU = DefaultRedBoxSKU
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Generator{
		storePrefix: storePrefix,
		redBoxSKU:   redBoxSKU,
		mapping:     mapping,
		registry:    registry,
	}
}

// Registry exposes the batch registry the generator claims against.
func (g *Generator) Registry() *Registry { return g.registry }

// Mapping exposes the card mapping the generator resolves against.
func (g *Generator) Mapping() *Mapping { return g.mapping }

// Generate derives the identifier, SKU, combo SKU and auxiliary SKUs for
// one order line. Identical inputs against an empty registry produce
// identical outputs. Collisions are disambiguated once (identifiers by
// re-appending the order suffix, SKUs by appending the full order number);
// a collision that survives disambiguation is a ConflictError.
func (g *Generator) Generate(orderNo, date string, attrs Attributes, names Personalization) (Result, error) {
	name1, name2 := names.Resolved()
	if name1 == "" && name2 == "" {
		return Result{}, fmt.Errorf("order %s: %w", orderNo, ErrNoNames)
	}
	for _, n := range []string{name1, name2} {
		if err := ValidateName(n); err != nil {
			return Result{}, fmt.Errorf("order %s: %w", orderNo, err)
		}
	}

	mmdd, err := NormalizeDate(date)
	if err != nil {
		return Result{}, fmt.Errorf("order %s: %w", orderNo, err)
	}

	suffix := OrderSuffix(orderNo)

	identifier := fmt.Sprintf("%s-%s-%s", suffix, attrs.ProductCode, name1+name2)
	if !g.registry.ClaimIdentifier(identifier) {
		identifier = identifier + "-" + suffix
		if !g.registry.ClaimIdentifier(identifier) {
			return Result{}, &ConflictError{Kind: ConflictIdentifier, Value: identifier, OrderNo: orderNo}
		}
	}

	skuValue := fmt.Sprintf("%s-%s-%s-%s", g.storePrefix, attrs.ProductCode, mmdd, joinNames(name1, name2))
	if !g.registry.ClaimSKU(skuValue) {
		skuValue = skuValue + "-" + orderNo
		if !g.registry.ClaimSKU(skuValue) {
			return Result{}, &ConflictError{Kind: ConflictSKU, Value: skuValue, OrderNo: orderNo}
		}
	}

	res := Result{
		Identifier:  identifier,
		SKU:         skuValue,
		ComboSKU:    comboSKU(skuValue, attrs.CardCode, attrs.BoxType),
		ChineseName: g.chineseName(attrs, name1, name2),
	}
	res.DeclareEN, res.DeclareCN = DeclareNames(attrs.ProductCode)

	if target, ok := g.mapping.Lookup(attrs.CardCode); ok {
		res.Auxiliary = append(res.Auxiliary, target)
	}
	if attrs.BoxType == BoxLED {
		res.Auxiliary = append(res.Auxiliary, g.redBoxSKU)
	}

	return res, nil
}

// joinNames joins the non-empty names with "+".
func joinNames(names ...string) string {
	kept := names[:0:0]
	for _, n := range names {
		if n != "" {
			kept = append(kept, n)
		}
	}
	return strings.Join(kept, "+")
}

// comboSKU is the combined-product import form: the single SKU plus the
// card code (when present) and the box shorthand.
func comboSKU(single, cardCode string, box BoxType) string {
	short := "WH"
	if box == BoxLED {
		short = "LED"
	}
	if cardCode == "" {
		return single + "-" + short
	}
	return single + "-" + cardCode + "-" + short
}

// chineseName builds the catalog display name from the product and color
// maps; unknown codes pass through unchanged.
func (g *Generator) chineseName(attrs Attributes, name1, name2 string) string {
	product := attrs.ProductCode
	if cn, ok := productNamesCN[attrs.ProductCode]; ok {
		product = cn
	}
	color := attrs.ColorCode
	if cn, ok := colorNamesCN[strings.ToUpper(attrs.ColorCode)]; ok {
		color = cn
	}
	return fmt.Sprintf("%s-%s-%s-%s", g.storePrefix, product, color, joinNames(name1, name2))
}

// DeclareNames returns the customs declaration names (en, cn) for a product
// code, keyed by its first letter.
func DeclareNames(productCode string) (string, string) {
	if productCode != "" {
		if pair, ok := declareNames[strings.ToUpper(productCode[:1])]; ok {
			return pair[0], pair[1]
		}
	}
	return "Jewelry", "饰品"
}

// OrderSuffix is the disambiguating tail of an order number: the last 5
// characters of its final dash segment (shorter segments pass through).
func OrderSuffix(orderNo string) string {
	segs := strings.Split(orderNo, "-")
	last := segs[len(segs)-1]
	if len(last) > 5 {
		return last[len(last)-5:]
	}
	return last
}

// NormalizeDate reduces a date to MMDD. Accepted forms: "0121", "01-21",
// "2025-01-21", "20250121".
func NormalizeDate(date string) (string, error) {
	var digits strings.Builder
	for _, r := range date {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	switch s := digits.String(); len(s) {
	case 4:
		return s, nil
	case 8:
		return s[4:], nil
	default:
		return "", fmt.Errorf("date %q: want MMDD or a full date", date)
	}
}
