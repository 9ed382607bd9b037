package batch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOrdersEnglishHeaders(t *testing.T) {
	input := strings.Join([]string{
		`order_no,platform_sku,product_spec,date`,
		`5261219-59178,J20-G-engraved-D17-whitebox,"Variants:Gold`,
		`Name 1:Xaviar`,
		`Name 2:Suzi`,
		`_cl_options:cljhgyefn2ay",01-21`,
	}, "\n")

	rows, err := ReadOrders(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 1, row.Line)
	assert.Equal(t, "5261219-59178", row.OrderNo)
	assert.Equal(t, "J20-G-engraved-D17-whitebox", row.PlatformSKU)
	assert.Equal(t, "01-21", row.Date)
	assert.Equal(t, "Xaviar", row.Names.Name1)
	assert.Equal(t, "Suzi", row.Names.Name2)
	assert.Empty(t, row.Names.NameEngraving)
}

func TestReadOrdersChineseHeaders(t *testing.T) {
	input := "\ufeff订单号,SKU,产品规格\n" +
		"PO-1001,J02-S-engraved-MAN12-LEDx1,\"Name 1:Tom\nName 2:Lisa\"\n"

	rows, err := ReadOrders(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "PO-1001", rows[0].OrderNo)
	assert.Equal(t, "J02-S-engraved-MAN12-LEDx1", rows[0].PlatformSKU)
	assert.Equal(t, "Tom", rows[0].Names.Name1)
	assert.Equal(t, "Lisa", rows[0].Names.Name2)
}

func TestReadOrdersDiscreteNameColumnsWin(t *testing.T) {
	input := strings.Join([]string{
		`order_no,platform_sku,product_spec,name1,name_engraving`,
		`PO-1,J20-G-engraved-D17-whitebox,"Name 1:Blockname",Colname,Etched`,
		`PO-2,J20-G-engraved-D17-whitebox,"Name 1:Blockonly",,`,
	}, "\n")

	rows, err := ReadOrders(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Colname", rows[0].Names.Name1)
	assert.Equal(t, "Etched", rows[0].Names.NameEngraving)
	assert.Equal(t, "Blockonly", rows[1].Names.Name1)
	assert.Empty(t, rows[1].Names.NameEngraving)
}

func TestReadOrdersMissingColumns(t *testing.T) {
	_, err := ReadOrders(strings.NewReader("platform_sku\nJ20-G-engraved\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order number")

	_, err = ReadOrders(strings.NewReader("order_no\nPO-1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "platform SKU")

	_, err = ReadOrders(strings.NewReader(""))
	require.Error(t, err)
}

func TestReadOrdersSkipsBlankRecords(t *testing.T) {
	input := "order_no,platform_sku\nPO-1,J20-G-engraved\n,\nPO-2,J02-S-engraved\n"

	rows, err := ReadOrders(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "PO-1", rows[0].OrderNo)
	assert.Equal(t, "PO-2", rows[1].OrderNo)
	assert.Equal(t, 3, rows[1].Line)
}

func TestParseProductSpec(t *testing.T) {
	tests := []struct {
		name      string
		block     string
		variants  string
		name1     string
		name2     string
		engraving string
	}{
		{
			name:     "platform block",
			block:    "Variants:Gold\nName 1:Xaviar\nName 2:Suzi\n_cl_options:cljhgyefn2ay",
			variants: "Gold",
			name1:    "Xaviar",
			name2:    "Suzi",
		},
		{
			name:  "full width colons",
			block: "Name 1：Tom\nName 2：Lisa",
			name1: "Tom",
			name2: "Lisa",
		},
		{
			name:      "engraving line",
			block:     "Name Engraving: Forever",
			engraving: "Forever",
		},
		{
			name:      "bare name falls back to engraving",
			block:     "Name: Etched",
			engraving: "Etched",
		},
		{
			name:      "explicit engraving wins over bare name",
			block:     "Name Engraving: First\nName: Second",
			engraving: "First",
		},
		{
			name:  "case and spacing tolerated",
			block: "NAME  1 : Anna\nname2:Bea",
			name1: "Anna",
			name2: "Bea",
		},
		{
			name:  "value keeps its own colons",
			block: "Name 1: Mr: T",
			name1: "Mr: T",
		},
		{
			name:  "unknown keys ignored",
			block: "Name 3:Carol\nGift Wrap:yes",
		},
		{
			name:  "empty block",
			block: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := ParseProductSpec(tt.block)
			assert.Equal(t, tt.variants, spec.Variants)
			assert.Equal(t, tt.name1, spec.Names.Name1)
			assert.Equal(t, tt.name2, spec.Names.Name2)
			assert.Equal(t, tt.engraving, spec.Names.NameEngraving)
		})
	}
}
