package pricelist

import (
	"errors"
	"testing"

	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
shop: Связной
categories:
  - id: 224
    name: Смартфоны
goods:
  - id: 4216292
    category: 224
    model: apple/iphone/xs-max
    name: "Смартфон Apple iPhone XS Max 512GB (золотистый)"
    price: 110000
    price_rrc: 116990.50
    quantity: 14
    parameters:
      "Диагональ (дюйм)": 6.5
      "Разрешение (пикс)": 2688x1242
      "Цвет": золотистый
      "NFC": true
`

func TestCodec_DecodeYAML(t *testing.T) {
	doc, err := NewCodec().Decode([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "Связной", doc.Shop)
	require.Len(t, doc.Categories, 1)
	assert.Equal(t, catalog.PriceListCategory{ID: 224, Name: "Смартфоны"}, doc.Categories[0])

	require.Len(t, doc.Goods, 1)
	item := doc.Goods[0]
	assert.Equal(t, int64(4216292), item.ID)
	assert.Equal(t, "apple/iphone/xs-max", item.Model)
	assert.True(t, item.Price.Equal(decimal.NewFromInt(110000)))
	assert.True(t, item.PriceRRC.Equal(decimal.RequireFromString("116990.5")))
	assert.Equal(t, 14, *item.Quantity)
	assert.Equal(t, map[string]string{
		"Диагональ (дюйм)":  "6.5",
		"Разрешение (пикс)": "2688x1242",
		"Цвет":              "золотистый",
		"NFC":               "true",
	}, item.Parameters)
	assert.NoError(t, doc.Validate())
}

func TestCodec_DecodeJSONMatchesYAML(t *testing.T) {
	raw := `{
	  "shop": "Связной",
	  "categories": [{"id": 224, "name": "Смартфоны"}],
	  "goods": [{
	    "id": 4216292, "category": 224, "model": "apple/iphone/xs-max",
	    "name": "Смартфон Apple iPhone XS Max 512GB (золотистый)",
	    "price": 110000, "price_rrc": "116990.50", "quantity": 14,
	    "parameters": {"Диагональ (дюйм)": 6.5, "Разрешение (пикс)": "2688x1242", "Цвет": "золотистый", "NFC": true}
	  }]
	}`
	codec := NewCodec()
	fromJSON, err := codec.Decode([]byte(raw), "")
	require.NoError(t, err)
	fromYAML, err := codec.Decode([]byte(sampleYAML), "")
	require.NoError(t, err)

	assert.Equal(t, fromYAML.Goods[0].Parameters, fromJSON.Goods[0].Parameters)
	assert.True(t, fromYAML.Goods[0].PriceRRC.Equal(*fromJSON.Goods[0].PriceRRC))
}

func TestCodec_MissingPriceFailsValidation(t *testing.T) {
	raw := `
shop: s
categories: [{id: 1, name: c}]
goods:
  - {id: 1, category: 1, model: m, name: n, price_rrc: 1, quantity: 1}
`
	doc, err := NewCodec().Decode([]byte(raw), FormatYAML)
	require.NoError(t, err)
	assert.Nil(t, doc.Goods[0].Price)

	err = doc.Validate()
	var de *catalog.DocumentError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "goods[0].price", de.Path())
}

func TestCodec_DecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		format string
	}{
		{name: "empty", raw: "   \n"},
		{name: "malformed yaml", raw: "shop: [unterminated", format: FormatYAML},
		{name: "malformed json", raw: `{"shop": `, format: FormatJSON},
		{name: "non-numeric price", raw: "goods:\n  - {price: cheap}\n", format: FormatYAML},
		{name: "nested parameter value", raw: `{"goods":[{"parameters":{"a":{"b":1}}}]}`, format: FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodec().Decode([]byte(tt.raw), tt.format)
			require.Error(t, err)
			var de *catalog.DocumentError
			assert.True(t, errors.As(err, &de))
			assert.True(t, shared.IsKind(err, shared.KindValidation))
		})
	}
}

func TestCodec_RejectsUnknownFormatAndOversize(t *testing.T) {
	_, err := NewCodec().Decode([]byte("shop: x"), "xml")
	assert.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = NewCodec(WithMaxSize(4)).Decode([]byte("shop: too long"), FormatYAML)
	var de *catalog.DocumentError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, de.Reason, "larger than 4 bytes")
}

func TestCodec_EncodeRoundTrip(t *testing.T) {
	codec := NewCodec()
	doc, err := codec.Decode([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	for _, format := range []string{FormatYAML, FormatJSON} {
		t.Run(format, func(t *testing.T) {
			raw, err := codec.Encode(doc, format)
			require.NoError(t, err)

			again, err := codec.Decode(raw, format)
			require.NoError(t, err)
			assert.Equal(t, doc.Shop, again.Shop)
			assert.Equal(t, doc.Categories, again.Categories)
			assert.Equal(t, doc.Goods[0].Parameters, again.Goods[0].Parameters)
			assert.True(t, doc.Goods[0].Price.Equal(*again.Goods[0].Price))
			assert.True(t, doc.Goods[0].PriceRRC.Equal(*again.Goods[0].PriceRRC))
		})
	}
}

func TestCodec_EncodeWritesBareNumbers(t *testing.T) {
	qty := 3
	price := decimal.NewFromInt(100)
	rrc := decimal.RequireFromString("119.90")
	doc := &catalog.PriceList{
		Shop:       "s",
		Categories: []catalog.PriceListCategory{{ID: 1, Name: "c"}},
		Goods: []catalog.PriceListItem{
			{ID: 1, Category: 1, Model: "m", Name: "n", Price: &price, PriceRRC: &rrc, Quantity: &qty},
		},
	}

	raw, err := NewCodec().Encode(doc, "")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "price: 100\n")
	assert.Contains(t, string(raw), "price_rrc: 119.9\n")

	raw, err = NewCodec().Encode(doc, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price": 100,`)
}

func TestFormatDetection(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromContentType("application/json; charset=utf-8"))
	assert.Equal(t, FormatYAML, FormatFromContentType("application/x-yaml"))
	assert.Equal(t, FormatYAML, FormatFromContentType("text/yaml"))
	assert.Equal(t, "", FormatFromContentType("text/plain"))
	assert.Equal(t, "", FormatFromContentType(""))

	assert.Equal(t, FormatYAML, FormatFromPath("/feeds/shop1.YML"))
	assert.Equal(t, FormatJSON, FormatFromPath("shop.json"))
	assert.Equal(t, "", FormatFromPath("shop.xml"))
}
