package risk

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidLiquidationThreshold = errors.New("risk: liquidation threshold must exceed max LTV")
	ErrInvalidAmount               = errors.New("risk: invalid amount")
	ErrUnknownAsset                = errors.New("risk: unknown collateral asset")
)

// MaxLiquidationPenaltyBps caps the keeper reward at 20% of collateral.
const MaxLiquidationPenaltyBps = 2000

// CollateralConfig holds per-asset risk parameters. All ratio fields are
// basis points (10_000 = 100%).
type CollateralConfig struct {
	Asset                string
	Oracle               string // oracle feed identifier for this asset
	MaxLTV               int64
	LiquidationThreshold int64
	LiquidationPenalty   int64
	MinDeposit           int64
	InterestRateBps      int64 // flat annual borrow rate
	OracleMaxAge         time.Duration
	Enabled              bool
}

// CollateralUpdate is a partial parameter update. Nil fields are untouched.
// The merged config is re-validated in full before it replaces the old one.
type CollateralUpdate struct {
	Oracle               *string
	MaxLTV               *int64
	LiquidationThreshold *int64
	LiquidationPenalty   *int64
	MinDeposit           *int64
	InterestRateBps      *int64
	OracleMaxAge         *time.Duration
}

// Validate checks the full config invariant set. Violations reject the
// config outright; values are never clamped.
func (c *CollateralConfig) Validate() error {
	if c.MaxLTV <= 0 || c.MaxLTV >= 10_000 {
		return fmt.Errorf("%w: max_ltv %d out of range (0, 10000)", ErrInvalidAmount, c.MaxLTV)
	}
	if c.LiquidationThreshold <= c.MaxLTV {
		return fmt.Errorf("%w: threshold %d <= max_ltv %d",
			ErrInvalidLiquidationThreshold, c.LiquidationThreshold, c.MaxLTV)
	}
	if c.LiquidationThreshold > 10_000 {
		return fmt.Errorf("%w: threshold %d > 10000", ErrInvalidAmount, c.LiquidationThreshold)
	}
	if c.LiquidationPenalty < 0 || c.LiquidationPenalty > MaxLiquidationPenaltyBps {
		return fmt.Errorf("%w: liquidation_penalty %d > %d",
			ErrInvalidAmount, c.LiquidationPenalty, MaxLiquidationPenaltyBps)
	}
	if c.MinDeposit <= 0 {
		return fmt.Errorf("%w: min_deposit must be > 0", ErrInvalidAmount)
	}
	if c.InterestRateBps < 0 {
		return fmt.Errorf("%w: interest_rate_bps must be >= 0", ErrInvalidAmount)
	}
	if c.OracleMaxAge <= 0 {
		return fmt.Errorf("%w: oracle_max_age must be > 0", ErrInvalidAmount)
	}
	return nil
}

// Registry is the per-asset risk parameter store. Assets are data, not
// code: registering a new collateral asset is a runtime operation keyed
// by asset identifier. The registry performs no authorization; the
// engine gates admin access before calling mutators.
type Registry struct {
	configs map[string]*CollateralConfig
}

func NewRegistry() *Registry {
	return &Registry{
		configs: make(map[string]*CollateralConfig),
	}
}

// Register adds a new collateral asset. Re-registering an existing asset
// is rejected; use Update instead.
func (r *Registry) Register(cfg CollateralConfig) error {
	if cfg.Asset == "" {
		return fmt.Errorf("%w: empty asset identifier", ErrInvalidAmount)
	}
	if _, exists := r.configs[cfg.Asset]; exists {
		return fmt.Errorf("%w: asset %s already registered", ErrInvalidAmount, cfg.Asset)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.configs[cfg.Asset] = &cfg
	return nil
}

// Update applies a partial update. The prior config is left unchanged if
// the merged result fails validation.
func (r *Registry) Update(asset string, upd CollateralUpdate) error {
	cur, ok := r.configs[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}

	merged := *cur
	if upd.Oracle != nil {
		merged.Oracle = *upd.Oracle
	}
	if upd.MaxLTV != nil {
		merged.MaxLTV = *upd.MaxLTV
	}
	if upd.LiquidationThreshold != nil {
		merged.LiquidationThreshold = *upd.LiquidationThreshold
	}
	if upd.LiquidationPenalty != nil {
		merged.LiquidationPenalty = *upd.LiquidationPenalty
	}
	if upd.MinDeposit != nil {
		merged.MinDeposit = *upd.MinDeposit
	}
	if upd.InterestRateBps != nil {
		merged.InterestRateBps = *upd.InterestRateBps
	}
	if upd.OracleMaxAge != nil {
		merged.OracleMaxAge = *upd.OracleMaxAge
	}

	if err := merged.Validate(); err != nil {
		return err
	}

	r.configs[asset] = &merged
	return nil
}

// SetEnabled flips the enabled flag. Assets are never deleted, only disabled.
func (r *Registry) SetEnabled(asset string, enabled bool) error {
	cfg, ok := r.configs[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	cfg.Enabled = enabled
	return nil
}

// Get returns a copy of the asset's config.
func (r *Registry) Get(asset string) (CollateralConfig, bool) {
	cfg, ok := r.configs[asset]
	if !ok {
		return CollateralConfig{}, false
	}
	return *cfg, true
}

// Assets lists all registered asset identifiers.
func (r *Registry) Assets() []string {
	out := make([]string, 0, len(r.configs))
	for asset := range r.configs {
		out = append(out, asset)
	}
	return out
}
