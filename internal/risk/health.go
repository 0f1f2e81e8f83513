package risk

import (
	"errors"
	"fmt"
	gomath "math"
	"time"

	fpmath "levengine/internal/math"
)

var (
	ErrStaleOracle      = errors.New("risk: oracle price is stale")
	ErrPriceUnavailable = errors.New("risk: oracle price unavailable")
)

// Health is the solvency snapshot for a position at one oracle price.
type Health struct {
	LTVBps       int64
	Liquidatable bool
}

// ValidatePrice rejects a zero price or one older than maxAge relative
// to now.
func ValidatePrice(price int64, timestamp time.Time, maxAge time.Duration, now time.Time) error {
	if price <= 0 {
		return ErrPriceUnavailable
	}
	if age := now.Sub(timestamp); age > maxAge {
		return fmt.Errorf("%w: age %s exceeds max %s", ErrStaleOracle, age, maxAge)
	}
	return nil
}

// LoanToValueBps computes debt_value / collateral_value in basis points.
// Values are native amounts priced through the oracle: all
// multiplications go through 128-bit intermediates.
func LoanToValueBps(collateralAmount, collateralPrice, debtAmount, debtPrice int64) (int64, error) {
	if debtAmount == 0 {
		return 0, nil
	}

	collateralValue, err := fpmath.Value(collateralAmount, collateralPrice)
	if err != nil {
		return 0, fmt.Errorf("collateral value: %w", err)
	}
	if collateralValue == 0 {
		return 0, fmt.Errorf("%w: zero collateral value", ErrInvalidAmount)
	}

	debtValue, err := fpmath.Value(debtAmount, debtPrice)
	if err != nil {
		return 0, fmt.Errorf("debt value: %w", err)
	}

	return fpmath.RatioBps(debtValue, collateralValue)
}

// HealthFactorBps is collateral_value / debt_value in basis points;
// 10_000 = 1.0. A debt-free position has infinite health.
func HealthFactorBps(collateralAmount, collateralPrice, debtAmount, debtPrice int64) (int64, error) {
	if debtAmount == 0 {
		return gomath.MaxInt64, nil
	}

	collateralValue, err := fpmath.Value(collateralAmount, collateralPrice)
	if err != nil {
		return 0, fmt.Errorf("collateral value: %w", err)
	}
	debtValue, err := fpmath.Value(debtAmount, debtPrice)
	if err != nil {
		return 0, fmt.Errorf("debt value: %w", err)
	}
	if debtValue == 0 {
		return gomath.MaxInt64, nil
	}

	return fpmath.RatioBps(collateralValue, debtValue)
}

// Evaluate derives the health snapshot for a position under cfg.
// Liquidation eligibility is LTV >= threshold, inclusive at the boundary.
func Evaluate(cfg CollateralConfig, collateralAmount, collateralPrice, debtAmount, debtPrice int64) (Health, error) {
	ltv, err := LoanToValueBps(collateralAmount, collateralPrice, debtAmount, debtPrice)
	if err != nil {
		return Health{}, err
	}
	return Health{
		LTVBps:       ltv,
		Liquidatable: ltv >= cfg.LiquidationThreshold,
	}, nil
}
