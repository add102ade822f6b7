// Package trading provides exchange tax and profit calculations.
package trading

import "github.com/shopspring/decimal"

// TaxRule describes the exchange sale tax. Sales at or below Threshold are
// exempt; the per-unit tax is floor(price*Rate) and never exceeds Cap.
type TaxRule struct {
	Rate      float64
	Threshold float64
	Cap       float64
}

// DefaultTaxRule is the 2% Grand Exchange tax.
var DefaultTaxRule = TaxRule{Rate: 0.02, Threshold: 1000, Cap: 5_000_000}

// Tax returns the per-unit tax charged on a sale at sellPrice.
func (r TaxRule) Tax(sellPrice float64) float64 {
	if sellPrice <= r.Threshold || r.Rate <= 0 {
		return 0
	}
	tax := decimal.NewFromFloat(sellPrice).Mul(decimal.NewFromFloat(r.Rate)).Floor()
	if r.Cap > 0 {
		tax = decimal.Min(tax, decimal.NewFromFloat(r.Cap))
	}
	return tax.InexactFloat64()
}

// Breakdown is the result of a buy/sell round trip.
type Breakdown struct {
	Gross float64 `json:"gross"`
	Tax   float64 `json:"tax"`
	Net   float64 `json:"net"`
}

// NetProfit computes gross, tax and net profit of buying qty units at buy and
// selling them at sell.
func (r TaxRule) NetProfit(buy, sell float64, qty int) Breakdown {
	if qty <= 0 {
		return Breakdown{}
	}
	q := decimal.NewFromInt(int64(qty))
	gross := decimal.NewFromFloat(sell).Sub(decimal.NewFromFloat(buy)).Mul(q)
	tax := decimal.NewFromFloat(r.Tax(sell)).Mul(q)
	return Breakdown{
		Gross: gross.InexactFloat64(),
		Tax:   tax.InexactFloat64(),
		Net:   gross.Sub(tax).InexactFloat64(),
	}
}

// MarginAfterTax returns the relative per-unit margin of the round trip,
// (sell - tax - buy) / buy. Zero when buy is not positive.
func (r TaxRule) MarginAfterTax(buy, sell float64) float64 {
	if buy <= 0 {
		return 0
	}
	b := decimal.NewFromFloat(buy)
	net := decimal.NewFromFloat(sell).Sub(decimal.NewFromFloat(r.Tax(sell))).Sub(b)
	return net.Div(b).InexactFloat64()
}
