package math_test

import (
	"errors"
	gomath "math"
	"testing"

	fpmath "levengine/internal/math"
)

func TestMulDiv_Basic(t *testing.T) {
	got, err := fpmath.MulDiv(100, 7500, 10_000)
	if err != nil {
		t.Fatalf("MulDiv failed: %v", err)
	}
	if got != 75 {
		t.Errorf("got %d, want 75", got)
	}
}

func TestMulDiv_WideIntermediate(t *testing.T) {
	// a * b overflows int64 but the quotient fits
	a := int64(gomath.MaxInt64 / 2)
	got, err := fpmath.MulDiv(a, 4, 4)
	if err != nil {
		t.Fatalf("MulDiv failed: %v", err)
	}
	if got != a {
		t.Errorf("got %d, want %d", got, a)
	}
}

func TestMulDiv_QuotientOverflow(t *testing.T) {
	_, err := fpmath.MulDiv(gomath.MaxInt64, 2, 1)
	if !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestMulDiv_DivByZero(t *testing.T) {
	_, err := fpmath.MulDiv(1, 1, 0)
	if !errors.Is(err, fpmath.ErrDivByZero) {
		t.Errorf("expected ErrDivByZero, got %v", err)
	}
}

func TestCheckedAdd(t *testing.T) {
	if _, err := fpmath.CheckedAdd(gomath.MaxInt64, 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Error("expected overflow on MaxInt64 + 1")
	}
	got, err := fpmath.CheckedAdd(40, 2)
	if err != nil || got != 42 {
		t.Errorf("got (%d, %v), want (42, nil)", got, err)
	}
}

func TestCheckedSub(t *testing.T) {
	if _, err := fpmath.CheckedSub(gomath.MinInt64, 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Error("expected overflow on MinInt64 - 1")
	}
	got, err := fpmath.CheckedSub(40, 2)
	if err != nil || got != 38 {
		t.Errorf("got (%d, %v), want (38, nil)", got, err)
	}
}

func TestApplyBps(t *testing.T) {
	// 5% of 100_000 = 5_000
	got, err := fpmath.ApplyBps(100_000, 500)
	if err != nil {
		t.Fatalf("ApplyBps failed: %v", err)
	}
	if got != 5_000 {
		t.Errorf("got %d, want 5_000", got)
	}
}

func TestValue(t *testing.T) {
	// 2 units at price 1.5 (1_500_000) = 3 units of quote
	got, err := fpmath.Value(2_000_000, 1_500_000)
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != 3_000_000 {
		t.Errorf("got %d, want 3_000_000", got)
	}
}

func TestRatioBps(t *testing.T) {
	// 75_000 / 100_000 = 7500 bps
	got, err := fpmath.RatioBps(75_000, 100_000)
	if err != nil {
		t.Fatalf("RatioBps failed: %v", err)
	}
	if got != 7500 {
		t.Errorf("got %d, want 7500", got)
	}
}
