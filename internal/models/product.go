package models

import (
	"sort"
	"strings"
)

// SelectVariant resolves a color selector against the product's variants.
// A VariantID matches exactly. A Value matches the first variant by position
// whose name or color code equals it, ignoring case.
func (p *Product) SelectVariant(sel ColorSelector) (*ColorVariant, bool) {
	if sel.VariantID != "" {
		for i := range p.Colors {
			if p.Colors[i].ID == sel.VariantID {
				return &p.Colors[i], true
			}
		}
		return nil, false
	}

	value := strings.TrimSpace(sel.Value)
	if value == "" {
		return nil, false
	}

	ordered := make([]int, len(p.Colors))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return p.Colors[ordered[a]].Position < p.Colors[ordered[b]].Position
	})

	for _, i := range ordered {
		c := &p.Colors[i]
		if strings.EqualFold(c.Name, value) || strings.EqualFold(c.Code, value) {
			return c, true
		}
	}
	return nil, false
}

// Snapshot captures the fields checkout copies into an order line.
func (p *Product) Snapshot(v *ColorVariant) *VariantSnapshot {
	price := p.BasePrice
	if v.Price != nil {
		price = *v.Price
	}
	return &VariantSnapshot{
		Ref:         VariantRef{ProductID: p.ID, VariantID: v.ID},
		ProductName: p.Name,
		ColorName:   v.Name,
		ColorCode:   v.Code,
		Price:       price,
		Stock:       v.Stock,
		InStock:     v.InStock,
	}
}
