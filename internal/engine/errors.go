package engine

import "errors"

var (
	ErrProtocolPaused         = errors.New("engine: protocol is paused")
	ErrUnauthorized           = errors.New("engine: caller is not the authority")
	ErrExceedsMaxLTV          = errors.New("engine: requested leverage exceeds max LTV")
	ErrPositionHealthy        = errors.New("engine: position LTV is below the liquidation threshold")
	ErrInsufficientCollateral = errors.New("engine: deposit below the asset minimum")
	ErrCollateralLocked       = errors.New("engine: collateral is backing an active position")
	ErrInvariantViolation     = errors.New("engine: state invariant violated")
)
