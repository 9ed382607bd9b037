// Package batch turns exported order sheets into generated SKU tables.
//
// The input is the ERP order export (or a hand-built sheet with the same
// columns); the output is a results table plus optional ERP import tables
// for the single and combined product catalogs.
package batch

import (
	"strings"

	"go.uber.org/zap"

	"skupair/internal/sku"
)

// ResultRow is the outcome of one engraved order line. Rows that fail to
// parse or generate carry the error text instead of SKUs.
type ResultRow struct {
	OrderNo     string
	PlatformSKU string
	Identifier  string
	SKU         string
	ComboSKU    string
	Auxiliary   []string
	ChineseName string
	CardCode    string
	DeclareEN   string
	DeclareCN   string
	Err         string
}

// Failed reports whether the row carries an error instead of generated SKUs.
func (r ResultRow) Failed() bool { return r.Err != "" }

// Processor runs order rows through parsing and SKU generation.
type Processor struct {
	gen *sku.Generator
	log *zap.Logger
}

// NewProcessor wires a processor to a generator. The generator's registry
// scopes uniqueness to this batch, so callers hand each input sheet a
// fresh generator.
func NewProcessor(gen *sku.Generator, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{gen: gen, log: log}
}

// Process runs every engraved row through parse and generate, in sheet
// order. Rows whose SKU never mentions engraving are dropped; rows that
// fail come back with the error column set so one bad line never aborts
// the batch. date applies to rows without their own date column.
func (p *Processor) Process(rows []Row, date string) []ResultRow {
	results := make([]ResultRow, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		if !strings.Contains(strings.ToLower(row.PlatformSKU), "engraved") {
			dropped++
			continue
		}
		results = append(results, p.processRow(row, date))
	}
	if dropped > 0 {
		p.log.Info("dropped non-engraved rows", zap.Int("count", dropped))
	}
	return results
}

func (p *Processor) processRow(row Row, date string) ResultRow {
	out := ResultRow{OrderNo: row.OrderNo, PlatformSKU: row.PlatformSKU}

	attrs, err := sku.Parse(row.PlatformSKU, p.gen.Mapping())
	if err != nil {
		out.Err = err.Error()
		p.log.Warn("unparsable platform sku",
			zap.String("order", row.OrderNo),
			zap.Int("row", row.Line),
			zap.Error(err))
		return out
	}
	out.CardCode = attrs.CardCode

	if row.Date != "" {
		date = row.Date
	}

	res, err := p.gen.Generate(row.OrderNo, date, attrs, row.Names)
	if err != nil {
		out.Err = err.Error()
		p.log.Warn("generation failed",
			zap.String("order", row.OrderNo),
			zap.Int("row", row.Line),
			zap.Error(err))
		return out
	}

	if attrs.CardCode != "" && !p.gen.Mapping().Has(attrs.CardCode) {
		p.log.Warn("card code has no mapped product",
			zap.String("order", row.OrderNo),
			zap.String("card", attrs.CardCode))
	}

	out.Identifier = res.Identifier
	out.SKU = res.SKU
	out.ComboSKU = res.ComboSKU
	out.Auxiliary = res.Auxiliary
	out.ChineseName = res.ChineseName
	out.DeclareEN = res.DeclareEN
	out.DeclareCN = res.DeclareCN
	return out
}
