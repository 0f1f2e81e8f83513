package math

import (
	"errors"
	gomath "math"
	"math/big"
	"sync"
)

// Fixed-point conventions:
//   - token amounts are int64 in native units
//   - oracle prices are int64 with PriceScale decimals
//   - ratios (LTV, leverage, penalty) are int64 basis points, BpsScale = 100%
const (
	PriceDecimals = 6
	PriceScale    = 1_000_000
	BpsScale      = 10_000
)

var (
	ErrOverflow  = errors.New("math: overflow")
	ErrDivByZero = errors.New("math: division by zero")
)

// Intermediate products of two int64 values need 128 bits. big.Ints are
// pooled to keep the hot valuation path allocation-free.
var wideIntPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getWide() *big.Int {
	return wideIntPool.Get().(*big.Int)
}

func putWide(v *big.Int) {
	v.SetInt64(0)
	wideIntPool.Put(v)
}

// MulDiv computes a * b / denom through a 128-bit intermediate.
// Returns ErrOverflow if the quotient does not fit in int64; silent
// truncation here would corrupt solvency accounting.
func MulDiv(a, b, denom int64) (int64, error) {
	if denom == 0 {
		return 0, ErrDivByZero
	}

	product := getWide()
	defer putWide(product)

	product.Mul(big.NewInt(a), big.NewInt(b))
	product.Quo(product, big.NewInt(denom))

	if !product.IsInt64() {
		return 0, ErrOverflow
	}
	return product.Int64(), nil
}

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b int64) (int64, error) {
	if b > 0 && a > gomath.MaxInt64-b {
		return 0, ErrOverflow
	}
	if b < 0 && a < gomath.MinInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// CheckedSub returns a - b or ErrOverflow on underflow past int64 range.
func CheckedSub(a, b int64) (int64, error) {
	if b > 0 && a < gomath.MinInt64+b {
		return 0, ErrOverflow
	}
	if b < 0 && a > gomath.MaxInt64+b {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// ApplyBps scales an amount by a basis-point ratio: amount * bps / 10_000.
func ApplyBps(amount, bps int64) (int64, error) {
	return MulDiv(amount, bps, BpsScale)
}

// Value converts a native amount to quote value at an oracle price:
// amount * price / PriceScale.
func Value(amount, price int64) (int64, error) {
	return MulDiv(amount, price, PriceScale)
}

// RatioBps expresses part/whole in basis points: part * 10_000 / whole.
func RatioBps(part, whole int64) (int64, error) {
	return MulDiv(part, BpsScale, whole)
}
