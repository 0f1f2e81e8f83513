package risk_test

import (
	"errors"
	gomath "math"
	"testing"
	"time"

	fpmath "levengine/internal/math"
	"levengine/internal/risk"
)

const priceOne = fpmath.PriceScale // 1.0

func TestLoanToValueBps(t *testing.T) {
	// debt 50k against collateral 100k at price 1.0 → 50%
	ltv, err := risk.LoanToValueBps(100_000, priceOne, 50_000, priceOne)
	if err != nil {
		t.Fatalf("ltv failed: %v", err)
	}
	if ltv != 5000 {
		t.Errorf("got %d, want 5000", ltv)
	}

	// debt 75k against 100k → 75%
	ltv, err = risk.LoanToValueBps(100_000, priceOne, 75_000, priceOne)
	if err != nil {
		t.Fatalf("ltv failed: %v", err)
	}
	if ltv != 7500 {
		t.Errorf("got %d, want 7500", ltv)
	}
}

func TestLoanToValueBps_PriceMoves(t *testing.T) {
	// Collateral price halves: debt 50k, collateral 100k at 0.5 → 100%
	ltv, err := risk.LoanToValueBps(100_000, priceOne/2, 50_000, priceOne)
	if err != nil {
		t.Fatalf("ltv failed: %v", err)
	}
	if ltv != 10_000 {
		t.Errorf("got %d, want 10000", ltv)
	}
}

func TestLoanToValueBps_ZeroDebt(t *testing.T) {
	ltv, err := risk.LoanToValueBps(100_000, priceOne, 0, priceOne)
	if err != nil {
		t.Fatalf("ltv failed: %v", err)
	}
	if ltv != 0 {
		t.Errorf("zero debt should give 0 LTV, got %d", ltv)
	}
}

func TestLoanToValueBps_ZeroCollateral(t *testing.T) {
	_, err := risk.LoanToValueBps(0, priceOne, 50_000, priceOne)
	if !errors.Is(err, risk.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestHealthFactorBps(t *testing.T) {
	// 200% collateralization → 2.0
	hf, err := risk.HealthFactorBps(200_000, priceOne, 100_000, priceOne)
	if err != nil {
		t.Fatalf("health factor failed: %v", err)
	}
	if hf != 20_000 {
		t.Errorf("got %d, want 20000", hf)
	}

	hf, err = risk.HealthFactorBps(100_000, priceOne, 0, priceOne)
	if err != nil {
		t.Fatalf("health factor failed: %v", err)
	}
	if hf != gomath.MaxInt64 {
		t.Error("debt-free position should have infinite health")
	}
}

func TestValidatePrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	if err := risk.ValidatePrice(priceOne, now.Add(-10*time.Second), 60*time.Second, now); err != nil {
		t.Errorf("fresh price rejected: %v", err)
	}

	err := risk.ValidatePrice(priceOne, now.Add(-70*time.Second), 60*time.Second, now)
	if !errors.Is(err, risk.ErrStaleOracle) {
		t.Errorf("expected ErrStaleOracle, got %v", err)
	}

	if err := risk.ValidatePrice(0, now, 60*time.Second, now); !errors.Is(err, risk.ErrPriceUnavailable) {
		t.Errorf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestEvaluate_LiquidatableAtThreshold(t *testing.T) {
	cfg := validConfig() // threshold 8000

	// Exactly at threshold: 80k debt vs 100k collateral
	h, err := risk.Evaluate(cfg, 100_000, priceOne, 80_000, priceOne)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !h.Liquidatable {
		t.Error("LTV == threshold must be liquidatable")
	}

	// One unit below
	h, err = risk.Evaluate(cfg, 100_000, priceOne, 79_999, priceOne)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if h.Liquidatable {
		t.Errorf("LTV %d below threshold must not be liquidatable", h.LTVBps)
	}
}
