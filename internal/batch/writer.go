package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Catalog defaults carried over from the store's import sheets.
const (
	defaultCategoryID    = "1422034"
	defaultWeightGrams   = "60"
	defaultPurchasePrice = "1"
	defaultDeclareUSD    = "12"
	defaultPurchaser     = "露露"
	defaultDeveloper     = "露露"
	defaultSalesType     = "售卖品"
)

var resultsHeader = []string{
	"order_no", "platform_sku", "identifier", "sku", "combo_sku", "auxiliary_skus", "error",
}

// The import headers reproduce the ERP template cells verbatim, embedded
// newlines included; encoding/csv quotes them on write.
var singleImportHeader = []string{
	"*SKU\n(必填)",
	"平台SKU",
	"识别码",
	"中文名称",
	"英文名称",
	"分类ID",
	"图片URL\n（必须以http://或https：//开头）",
	"商品净重\n（g）",
	"采购参考价\n（RMB）",
	"采购员\n（输入子账号姓名或名称）",
	"长（cm）",
	"宽（cm）",
	"高（cm）",
	"来源URL\n（必须以http://或https：//开头）",
	"备注",
	"英文报关名",
	"中文报关名",
	"申报重量\n(g)",
	"申报金额\n（USD）",
	"出口申报金额（USD）",
	"危险运输品",
	"材质",
	"用途",
	"海关编码",
	"开发员\n（输入子账号姓名或名称）",
	"销售方式",
	"销售员\n（输入子账号姓名或名称）",
}

var comboImportHeader = []string{
	"*组合sku",
	"平台SKU",
	"识别码",
	"中文名称",
	"英文名称",
	"分类ID",
	"组合SKU主图URL\n（必须以http://或https：//开头）",
	"*包含的商品sku",
	"*数量",
	"长（cm）",
	"宽（cm）",
	"高（cm）",
	"来源URL(必须以http://或https://开头)",
	"备注",
	"英文报关名",
	"中文报关名",
	"申报重量(g)",
	"申报金额\n（USD）",
	"出口申报金额（USD）",
	"危险运输品",
	"材质",
	"用途",
	"海关编码",
	"销售方式",
}

// WriteResults writes one row per processed line, error rows included.
// Auxiliary SKUs join with ";".
func WriteResults(w io.Writer, rows []ResultRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.OrderNo, r.PlatformSKU, r.Identifier, r.SKU, r.ComboSKU,
			strings.Join(r.Auxiliary, ";"), r.Err,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSingleImport writes the single-product catalog import sheet. Error
// rows are left out: the sheet has no error column and the ERP rejects
// blank SKUs.
func WriteSingleImport(w io.Writer, rows []ResultRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(singleImportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if r.Failed() {
			continue
		}
		rec := []string{
			r.SKU,
			r.PlatformSKU,
			r.OrderNo,
			r.ChineseName,
			"",
			defaultCategoryID,
			"",
			defaultWeightGrams,
			defaultPurchasePrice,
			defaultPurchaser,
			"", "", "", "", "",
			r.DeclareEN,
			r.DeclareCN,
			defaultWeightGrams,
			defaultDeclareUSD,
			"", "", "", "", "",
			defaultDeveloper,
			defaultSalesType,
			"",
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteComboImport writes the combined-product import sheet: one main row
// per generated combo plus a component row per auxiliary product (the
// mapped card, then the red LED box). Component rows fill only the three
// required columns, the way the ERP template expects.
func WriteComboImport(w io.Writer, rows []ResultRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(comboImportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if r.Failed() {
			continue
		}
		name := r.ChineseName
		if r.CardCode != "" {
			name += "-" + r.CardCode
		}
		main := []string{
			r.ComboSKU,
			r.PlatformSKU,
			r.OrderNo,
			name,
			"",
			defaultCategoryID,
			"",
			r.SKU,
			"1",
			"", "", "", "", "",
			r.DeclareEN,
			r.DeclareCN,
			defaultWeightGrams,
			defaultDeclareUSD,
			"", "", "", "", "",
			defaultSalesType,
		}
		if err := cw.Write(main); err != nil {
			return err
		}
		for _, aux := range r.Auxiliary {
			if err := cw.Write(componentRow(r.ComboSKU, aux)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// componentRow fills *组合sku, *包含的商品sku and *数量, leaving the rest blank.
func componentRow(comboSKU, componentSKU string) []string {
	rec := make([]string, len(comboImportHeader))
	rec[0] = comboSKU
	rec[7] = componentSKU
	rec[8] = "1"
	return rec
}

// WriteOutputs writes the results table and, when importTables is set,
// the two ERP import tables, all under dir with stem-derived names. It
// returns the written paths.
func WriteOutputs(dir, stem string, rows []ResultRow, importTables bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	type output struct {
		suffix string
		write  func(io.Writer, []ResultRow) error
	}
	outputs := []output{{resultsSuffix, WriteResults}}
	if importTables {
		outputs = append(outputs,
			output{singleSuffix, WriteSingleImport},
			output{comboSuffix, WriteComboImport})
	}

	var paths []string
	for _, out := range outputs {
		path := filepath.Join(dir, stem+out.suffix)
		if err := writeFile(path, rows, out.write); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

const (
	resultsSuffix = "_results.csv"
	singleSuffix  = "_单个SKU.csv"
	comboSuffix   = "_组合SKU.csv"
)

func writeFile(path string, rows []ResultRow, write func(io.Writer, []ResultRow) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := write(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
