package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skupair/internal/sku"
)

func testMapping() *sku.Mapping {
	return sku.NewMapping(map[string]string{
		"D17": "Michael-贺卡-D17",
	})
}

func newTestProcessor() *Processor {
	gen := sku.NewGenerator("", "", testMapping(), nil)
	return NewProcessor(gen, nil)
}

func TestProcessEngravedOrder(t *testing.T) {
	rows := []Row{{
		OrderNo:     "5261219-59178",
		PlatformSKU: "J20-G-engraved-D17-whitebox",
		Names:       sku.Personalization{Name1: "Xaviar", Name2: "Suzi"},
	}}

	results := newTestProcessor().Process(rows, "01-21")
	require.Len(t, results, 1)

	r := results[0]
	require.Empty(t, r.Err)
	assert.Equal(t, "5261219-59178", r.OrderNo)
	assert.Equal(t, "59178-J20-XaviarSuzi", r.Identifier)
	assert.Equal(t, "Michael-J20-0121-Xaviar+Suzi", r.SKU)
	assert.Equal(t, "Michael-J20-0121-Xaviar+Suzi-D17-WH", r.ComboSKU)
	assert.Equal(t, []string{"Michael-贺卡-D17"}, r.Auxiliary)
	assert.Equal(t, "Michael-爱心双扣项链-金色-Xaviar+Suzi", r.ChineseName)
	assert.Equal(t, "D17", r.CardCode)
	assert.Equal(t, "Necklace", r.DeclareEN)
	assert.Equal(t, "项链", r.DeclareCN)
}

func TestProcessDropsNonEngravedRows(t *testing.T) {
	rows := []Row{
		{OrderNo: "PO-1", PlatformSKU: "B09-B-MAN10-whitebox"},
		{OrderNo: "PO-2", PlatformSKU: "J20-G-Engraved-D17-whitebox",
			Names: sku.Personalization{Name1: "Tom"}},
	}

	results := newTestProcessor().Process(rows, "0121")
	require.Len(t, results, 1)
	assert.Equal(t, "PO-2", results[0].OrderNo)
}

func TestProcessErrorColumn(t *testing.T) {
	t.Run("unparsable sku", func(t *testing.T) {
		rows := []Row{{OrderNo: "PO-1", PlatformSKU: "engraved"}}

		results := newTestProcessor().Process(rows, "0121")
		require.Len(t, results, 1)
		assert.True(t, results[0].Failed())
		assert.Contains(t, results[0].Err, "parse platform sku")
		assert.Empty(t, results[0].SKU)
	})

	t.Run("names missing", func(t *testing.T) {
		rows := []Row{{OrderNo: "PO-2", PlatformSKU: "J20-G-engraved-D17-whitebox"}}

		results := newTestProcessor().Process(rows, "0121")
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Err, sku.ErrNoNames.Error())
	})

	t.Run("conflict after disambiguation", func(t *testing.T) {
		gen := sku.NewGenerator("", "", testMapping(), nil)
		require.True(t, gen.Registry().ClaimIdentifier("59178-J20-XaviarSuzi"))
		require.True(t, gen.Registry().ClaimIdentifier("59178-J20-XaviarSuzi-59178"))

		rows := []Row{{
			OrderNo:     "5261219-59178",
			PlatformSKU: "J20-G-engraved-D17-whitebox",
			Names:       sku.Personalization{Name1: "Xaviar", Name2: "Suzi"},
		}}

		results := NewProcessor(gen, nil).Process(rows, "0121")
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Err, "still collides")
	})

	t.Run("bad row keeps the batch going", func(t *testing.T) {
		rows := []Row{
			{OrderNo: "PO-1", PlatformSKU: "engraved"},
			{OrderNo: "PO-2", PlatformSKU: "J20-G-engraved-D17-whitebox",
				Names: sku.Personalization{Name1: "Tom"}},
		}

		results := newTestProcessor().Process(rows, "0121")
		require.Len(t, results, 2)
		assert.True(t, results[0].Failed())
		assert.False(t, results[1].Failed())
	})
}

func TestProcessPerRowDateOverride(t *testing.T) {
	rows := []Row{
		{OrderNo: "PO-1", PlatformSKU: "J20-G-engraved-D17-whitebox",
			Names: sku.Personalization{Name1: "Tom"}, Date: "02-03"},
		{OrderNo: "PO-2", PlatformSKU: "J20-G-engraved-D17-whitebox",
			Names: sku.Personalization{Name1: "Lisa"}},
	}

	results := newTestProcessor().Process(rows, "0121")
	require.Len(t, results, 2)
	assert.Equal(t, "Michael-J20-0203-Tom", results[0].SKU)
	assert.Equal(t, "Michael-J20-0121-Lisa", results[1].SKU)
}

func TestProcessLEDBoxAuxiliary(t *testing.T) {
	rows := []Row{{
		OrderNo:     "PO-7",
		PlatformSKU: "J02-S-engraved-MAN12-LEDx1",
		Names:       sku.Personalization{NameEngraving: "Forever"},
	}}

	results := newTestProcessor().Process(rows, "0121")
	require.Len(t, results, 1)

	r := results[0]
	require.Empty(t, r.Err)
	assert.Equal(t, "Michael-J02-0121-Forever", r.SKU)
	assert.Equal(t, "Michael-J02-0121-Forever-MAN12-LED", r.ComboSKU)
	assert.Equal(t, []string{"Michael-RED BOX"}, r.Auxiliary)
	assert.Equal(t, "MAN12", r.CardCode)
}
