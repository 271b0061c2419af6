package domain

import "github.com/shopspring/decimal"

// ─── Net Weight Rules ───────────────────────────────────────────────────────
// Gross weight is order independent: a purchase truck may arrive loaded or
// empty, so only the absolute difference between the two readings counts.

var hundred = decimal.NewFromInt(100)

// NetResult is the derived outcome of a stage-2 weighing.
type NetResult struct {
	Gross      int64 `json:"gross_weight"`
	Deduction  int64 `json:"deduction"`
	Net        int64 `json:"net_weight"`
	Difference int64 `json:"weight_difference"`
}

// ComputeNet derives gross, rebate deduction, net and the noted-weight
// difference. The deduction is rounded half away from zero.
func ComputeNet(stage1, stage2 int64, rebatePercent decimal.Decimal, noted int64) NetResult {
	gross := absDiff(stage1, stage2)
	deduction := int64(0)
	if rebatePercent.IsPositive() {
		deduction = decimal.NewFromInt(gross).Mul(rebatePercent).Div(hundred).Round(0).IntPart()
	}
	net := gross - deduction
	return NetResult{
		Gross:      gross,
		Deduction:  deduction,
		Net:        net,
		Difference: net - noted,
	}
}

// ValidateRebate checks 0 <= r <= 100.
func ValidateRebate(r decimal.Decimal) error {
	if r.IsNegative() || r.GreaterThan(hundred) {
		return &ValidationError{Field: "rebate_percent", Reason: "must be between 0 and 100"}
	}
	return nil
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
