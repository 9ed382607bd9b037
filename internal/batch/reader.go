package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"skupair/internal/sku"
)

// Row is one order line from an input sheet.
type Row struct {
	Line        int // 1-based data row, for error reporting
	OrderNo     string
	PlatformSKU string
	Date        string // optional per-row override, MMDD or a full date
	Names       sku.Personalization
}

// headerAliases maps normalized header cells to canonical column names.
// The ERP order export uses the Chinese headers; hand-built sheets use the
// English ones.
var headerAliases = map[string]string{
	"order_no": "order_no",
	"orderno":  "order_no",
	"order no": "order_no",
	"订单号":      "order_no",

	"platform_sku": "platform_sku",
	"sku":          "platform_sku",
	"平台sku":        "platform_sku",

	"product_spec": "product_spec",
	"spec":         "product_spec",
	"产品规格":         "product_spec",

	"name1":  "name1",
	"name 1": "name1",
	"name2":  "name2",
	"name 2": "name2",

	"name_engraving": "name_engraving",
	"name engraving": "name_engraving",

	"date": "date",
	"日期":   "date",
}

// ReadFile reads and parses an order sheet from disk.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ReadOrders(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// ReadOrders parses an order sheet. The order-number and platform-SKU
// columns are required; personalization comes from a product-spec block
// column, discrete name columns, or both (discrete columns win where
// both are present). Fully blank records are skipped.
func ReadOrders(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("input sheet is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, cell := range header {
		canon, ok := headerAliases[normalizeHeader(cell)]
		if !ok {
			continue
		}
		if _, dup := cols[canon]; !dup {
			cols[canon] = i
		}
	}
	if _, ok := cols["order_no"]; !ok {
		return nil, fmt.Errorf("no order number column (order_no or 订单号)")
	}
	if _, ok := cols["platform_sku"]; !ok {
		return nil, fmt.Errorf("no platform SKU column (platform_sku or SKU)")
	}

	field := func(rec []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Row
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		if blankRecord(rec) {
			continue
		}

		row := Row{
			Line:        n,
			OrderNo:     field(rec, "order_no"),
			PlatformSKU: field(rec, "platform_sku"),
			Date:        field(rec, "date"),
		}

		spec := ParseProductSpec(field(rec, "product_spec"))
		row.Names = spec.Names
		if v := field(rec, "name1"); v != "" {
			row.Names.Name1 = v
		}
		if v := field(rec, "name2"); v != "" {
			row.Names.Name2 = v
		}
		if v := field(rec, "name_engraving"); v != "" {
			row.Names.NameEngraving = v
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// Spec is one parsed product-spec block.
type Spec struct {
	Variants string
	Names    sku.Personalization
}

// ParseProductSpec parses the multi-line personalization block platforms
// attach to an order line. Lines are Key:Value pairs; keys are matched
// case-insensitively, both colon widths are accepted, and unknown keys
// (option hashes and the like) are ignored. A bare "Name" key counts as
// the engraving fallback when no explicit engraving line is present.
func ParseProductSpec(block string) Spec {
	var s Spec
	for _, line := range strings.Split(block, "\n") {
		key, value, ok := splitSpecLine(line)
		if !ok {
			continue
		}
		switch key {
		case "variants":
			s.Variants = value
		case "name 1", "name1":
			s.Names.Name1 = value
		case "name 2", "name2":
			s.Names.Name2 = value
		case "name engraving", "engraving name":
			s.Names.NameEngraving = value
		case "name":
			if s.Names.NameEngraving == "" {
				s.Names.NameEngraving = value
			}
		}
	}
	return s
}

// splitSpecLine splits a spec line at its first colon. Keys are lowered
// and inner runs of whitespace collapse to one space so "NAME  1" and
// "name 1" match the same case.
func splitSpecLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	idx := strings.IndexAny(line, ":：")
	if idx < 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.Join(strings.Fields(line[:idx]), " "))
	if key == "" {
		return "", "", false
	}
	rest := line[idx:]
	_, size := utf8.DecodeRuneInString(rest)
	return key, strings.TrimSpace(rest[size:]), true
}

func normalizeHeader(cell string) string {
	cell = strings.TrimPrefix(cell, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(cell), " "))
}

func blankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
