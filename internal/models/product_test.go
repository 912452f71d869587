package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProduct() *Product {
	override := decimal.RequireFromString("1450")
	return &Product{
		ID:        "bag-1",
		Name:      "Leather tote",
		BasePrice: decimal.RequireFromString("1200"),
		Colors: []ColorVariant{
			{ID: "v-red-2", Position: 2, Name: "Rouge", Code: "#B22222", Stock: 1, InStock: true},
			{ID: "v-black", Position: 0, Name: "Noir", Code: "#000000", Stock: 4, InStock: true},
			{ID: "v-red-1", Position: 1, Name: "rouge", Code: "#FF0000", Stock: 2, InStock: true, Price: &override},
		},
	}
}

func TestSelectVariant(t *testing.T) {
	p := sampleProduct()

	v, ok := p.SelectVariant(ColorSelector{VariantID: "v-red-2"})
	require.True(t, ok)
	assert.Equal(t, "v-red-2", v.ID)

	// duplicated names resolve to the lowest position
	v, ok = p.SelectVariant(ColorSelector{Value: "ROUGE"})
	require.True(t, ok)
	assert.Equal(t, "v-red-1", v.ID)

	v, ok = p.SelectVariant(ColorSelector{Value: "#000000"})
	require.True(t, ok)
	assert.Equal(t, "v-black", v.ID)

	_, ok = p.SelectVariant(ColorSelector{Value: "Bleu"})
	assert.False(t, ok)

	_, ok = p.SelectVariant(ColorSelector{VariantID: "missing", Value: "Noir"})
	assert.False(t, ok)

	_, ok = p.SelectVariant(ColorSelector{})
	assert.False(t, ok)
}

func TestSnapshotPrice(t *testing.T) {
	p := sampleProduct()

	black, _ := p.SelectVariant(ColorSelector{VariantID: "v-black"})
	assert.True(t, p.Snapshot(black).Price.Equal(decimal.RequireFromString("1200")))

	red, _ := p.SelectVariant(ColorSelector{VariantID: "v-red-1"})
	snap := p.Snapshot(red)
	assert.True(t, snap.Price.Equal(decimal.RequireFromString("1450")))
	assert.Equal(t, VariantRef{ProductID: "bag-1", VariantID: "v-red-1"}, snap.Ref)
	assert.Equal(t, "Leather tote", snap.ProductName)
}
