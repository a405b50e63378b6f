// Package money provides smallest-unit integer arithmetic for settlement.
//
// All amounts in the system are int64 values denominated in the token's
// smallest unit. Fees are expressed in basis points (1 bps = 0.01%,
// 10000 bps = 100%).
package money

import "errors"

// BpsDenominator is the basis-point denominator (10000 bps = 100%).
const BpsDenominator = 10_000

var (
	ErrOverflow       = errors.New("money: arithmetic overflow")
	ErrInvalidAmount  = errors.New("money: amount must be positive")
	ErrInvalidPercent = errors.New("money: basis points out of range")
)

// Mul multiplies two non-negative amounts with overflow detection.
func Mul(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrInvalidAmount
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, ErrOverflow
	}
	return product, nil
}

// SplitFee computes the fee on total at feeBps and the exact remainder.
// The fee is floored; the remainder absorbs any rounding so that
// fee + remainder == total always holds.
func SplitFee(total int64, feeBps uint32) (fee, remainder int64, err error) {
	if total < 0 {
		return 0, 0, ErrInvalidAmount
	}
	if feeBps > BpsDenominator {
		return 0, 0, ErrInvalidPercent
	}
	// total * feeBps can overflow int64 for very large totals; go through
	// the checked multiply rather than assuming headroom.
	scaled, err := Mul(total, int64(feeBps))
	if err != nil {
		return 0, 0, err
	}
	fee = scaled / BpsDenominator
	return fee, total - fee, nil
}

// ApplyBps returns floor(amount * bps / 10000).
func ApplyBps(amount int64, bps uint32) (int64, error) {
	if bps > BpsDenominator {
		return 0, ErrInvalidPercent
	}
	scaled, err := Mul(amount, int64(bps))
	if err != nil {
		return 0, err
	}
	return scaled / BpsDenominator, nil
}

// PerUnit divides an amount evenly across quantity units, discarding the
// remainder. The caller is responsible for accounting for the dust.
func PerUnit(amount int64, quantity uint32) int64 {
	if quantity == 0 {
		return 0
	}
	return amount / int64(quantity)
}
