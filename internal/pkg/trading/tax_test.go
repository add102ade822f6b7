package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTax(t *testing.T) {
	r := DefaultTaxRule
	assert.Equal(t, 0.0, r.Tax(900))
	assert.Equal(t, 0.0, r.Tax(1000))
	assert.Equal(t, 2000.0, r.Tax(100000))
	assert.Equal(t, 20.0, r.Tax(1049))
	assert.Equal(t, 5_000_000.0, r.Tax(1_000_000_000))
}

func TestNetProfit(t *testing.T) {
	r := DefaultTaxRule

	t.Run("taxed sale", func(t *testing.T) {
		b := r.NetProfit(90000, 100000, 2)
		assert.Equal(t, 20000.0, b.Gross)
		assert.Equal(t, 4000.0, b.Tax)
		assert.Equal(t, 16000.0, b.Net)
	})

	t.Run("exempt sale", func(t *testing.T) {
		b := r.NetProfit(800, 900, 10)
		assert.Equal(t, 1000.0, b.Gross)
		assert.Zero(t, b.Tax)
		assert.Equal(t, 1000.0, b.Net)
	})

	t.Run("zero quantity", func(t *testing.T) {
		assert.Equal(t, Breakdown{}, r.NetProfit(1, 2, 0))
	})
}

func TestMarginAfterTax(t *testing.T) {
	r := DefaultTaxRule
	assert.InDelta(t, 8000.0/90000.0, r.MarginAfterTax(90000, 100000), 1e-9)
	assert.Zero(t, r.MarginAfterTax(0, 100))
}
