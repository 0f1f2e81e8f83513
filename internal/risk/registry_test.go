package risk_test

import (
	"errors"
	"testing"
	"time"

	"levengine/internal/risk"
)

func validConfig() risk.CollateralConfig {
	return risk.CollateralConfig{
		Asset:                "SOL",
		Oracle:               "pyth:SOL/USD",
		MaxLTV:               7500,
		LiquidationThreshold: 8000,
		LiquidationPenalty:   500,
		MinDeposit:           1_000_000,
		InterestRateBps:      500,
		OracleMaxAge:         60 * time.Second,
		Enabled:              true,
	}
}

func TestRegistry_Register(t *testing.T) {
	r := risk.NewRegistry()
	if err := r.Register(validConfig()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	cfg, ok := r.Get("SOL")
	if !ok {
		t.Fatal("SOL should be registered")
	}
	if cfg.MaxLTV != 7500 || cfg.LiquidationThreshold != 8000 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestRegistry_RegisterThresholdBelowMaxLTV(t *testing.T) {
	r := risk.NewRegistry()
	cfg := validConfig()
	cfg.LiquidationThreshold = 7500 // equal is also invalid

	err := r.Register(cfg)
	if !errors.Is(err, risk.ErrInvalidLiquidationThreshold) {
		t.Errorf("expected ErrInvalidLiquidationThreshold, got %v", err)
	}
	if _, ok := r.Get("SOL"); ok {
		t.Error("failed register must not leave a config behind")
	}
}

func TestRegistry_RegisterPenaltyTooHigh(t *testing.T) {
	r := risk.NewRegistry()
	cfg := validConfig()
	cfg.LiquidationPenalty = 2001

	err := r.Register(cfg)
	if !errors.Is(err, risk.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := risk.NewRegistry()
	if err := r.Register(validConfig()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(validConfig()); err == nil {
		t.Error("duplicate register should fail")
	}
}

func TestRegistry_PartialUpdate(t *testing.T) {
	r := risk.NewRegistry()
	if err := r.Register(validConfig()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	newPenalty := int64(1000)
	if err := r.Update("SOL", risk.CollateralUpdate{LiquidationPenalty: &newPenalty}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	cfg, _ := r.Get("SOL")
	if cfg.LiquidationPenalty != 1000 {
		t.Errorf("penalty: got %d, want 1000", cfg.LiquidationPenalty)
	}
	if cfg.MaxLTV != 7500 {
		t.Errorf("untouched field changed: max_ltv %d", cfg.MaxLTV)
	}
}

func TestRegistry_UpdateRevalidatesInvariant(t *testing.T) {
	r := risk.NewRegistry()
	if err := r.Register(validConfig()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// Raising max_ltv above the threshold must fail even though the
	// field alone is in range.
	badLTV := int64(8500)
	err := r.Update("SOL", risk.CollateralUpdate{MaxLTV: &badLTV})
	if !errors.Is(err, risk.ErrInvalidLiquidationThreshold) {
		t.Errorf("expected ErrInvalidLiquidationThreshold, got %v", err)
	}

	// Prior config must be intact.
	cfg, _ := r.Get("SOL")
	if cfg.MaxLTV != 7500 {
		t.Errorf("failed update mutated config: max_ltv %d", cfg.MaxLTV)
	}
}

func TestRegistry_UpdateBothLTVParams(t *testing.T) {
	r := risk.NewRegistry()
	if err := r.Register(validConfig()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	maxLTV := int64(8500)
	threshold := int64(9000)
	err := r.Update("SOL", risk.CollateralUpdate{
		MaxLTV:               &maxLTV,
		LiquidationThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("joint update should pass: %v", err)
	}
}

func TestRegistry_SetEnabled(t *testing.T) {
	r := risk.NewRegistry()
	if err := r.Register(validConfig()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.SetEnabled("SOL", false); err != nil {
		t.Fatalf("set_enabled failed: %v", err)
	}
	cfg, _ := r.Get("SOL")
	if cfg.Enabled {
		t.Error("SOL should be disabled")
	}

	if err := r.SetEnabled("DOGE", false); !errors.Is(err, risk.ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
}
