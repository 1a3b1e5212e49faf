package catalog

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProduct(t *testing.T) {
	t.Run("normalises the code", func(t *testing.T) {
		p, err := NewProduct("  sku-001 ", "Widget", "pcs", decimal.NewFromFloat(9.99))
		require.NoError(t, err)

		assert.Equal(t, "SKU-001", p.Code)
		assert.Equal(t, ProductStatusActive, p.Status)
		assert.True(t, p.IsActive())
		assert.True(t, p.SellingPrice.Equal(decimal.RequireFromString("9.99")))
	})

	tests := []struct {
		name    string
		code    string
		title   string
		unit    string
		price   decimal.Decimal
		wantErr error
	}{
		{"empty code", "", "Widget", "pcs", decimal.Zero, ErrInvalidProductCode},
		{"long code", strings.Repeat("X", 51), "Widget", "pcs", decimal.Zero, ErrInvalidProductCode},
		{"empty name", "SKU", " ", "pcs", decimal.Zero, ErrInvalidProductName},
		{"empty unit", "SKU", "Widget", "", decimal.Zero, ErrInvalidProductUnit},
		{"negative price", "SKU", "Widget", "pcs", decimal.NewFromInt(-1), ErrInvalidProductPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProduct(tt.code, tt.title, tt.unit, tt.price)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProduct_Deactivate(t *testing.T) {
	p, err := NewProduct("SKU", "Widget", "pcs", decimal.Zero)
	require.NoError(t, err)
	before := p.UpdatedAt

	p.Deactivate()

	assert.False(t, p.IsActive())
	assert.False(t, p.UpdatedAt.Before(before))
}
