// Package stats holds the trading statistics shared by the tracker, the
// learning controller and the model registry.
package stats

import (
	"encoding/json"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// Ratio is a float that may legitimately be +Inf (e.g. a profit factor with
// no losses). It encodes +Inf as the JSON string "Infinity".
type Ratio float64

func (r Ratio) IsInf() bool { return math.IsInf(float64(r), 1) }

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1), math.IsNaN(f):
		return []byte("0"), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "Infinity" {
			*r = Ratio(math.Inf(1))
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*r = Ratio(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

// Finite returns r with +Inf replaced by ceiling, for consumers that cannot
// handle infinities (weighted scores, numeric columns).
func (r Ratio) Finite(ceiling float64) float64 {
	if r.IsInf() {
		return ceiling
	}
	return float64(r)
}

// ProfitFactor is gross profit over gross loss. With no losses it is +Inf
// when there was any profit, else 0.
func ProfitFactor(totalProfit, totalLoss float64) Ratio {
	if totalLoss <= 0 {
		if totalProfit > 0 {
			return Ratio(math.Inf(1))
		}
		return 0
	}
	return Ratio(totalProfit / totalLoss)
}

// Sharpe returns mean/stddev of the per-trade returns, 0 when undefined.
func Sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std
}

// MaxDrawdown scans the cumulative profit curve and returns the largest
// drop from a running peak. The curve starts at zero.
func MaxDrawdown(profits []float64) float64 {
	var cum, peak, maxDD float64
	for _, p := range profits {
		cum += p
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Percent returns part/total*100, 0 when total is 0.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
