// Package engine is the serialized core of the leveraged liquidity
// protocol. All state transitions run under one mutex in strict order:
// validate, reserve, act externally, commit. External calls that fail
// after a reservation are compensated before the error returns, so a
// rejected operation never leaves partial state behind.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"levengine/internal/amm"
	"levengine/internal/event"
	"levengine/internal/lending"
	fpmath "levengine/internal/math"
	"levengine/internal/observability"
	"levengine/internal/oracle"
	"levengine/internal/position"
	"levengine/internal/risk"
)

// Config wires the engine's collaborators.
type Config struct {
	// Authority is the only account allowed to mutate risk parameters
	// and the pause flag.
	Authority uuid.UUID

	// BorrowAsset is the single borrowable pool asset (the quote side
	// of every liquidity position).
	BorrowAsset string

	// BorrowRateBps is the flat annual rate paid to pool suppliers.
	BorrowRateBps int64

	Pool   amm.LiquidityProtocol
	Prices oracle.PriceSource

	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// PersistCh receives every committed operation record; sends block
	// so the operation log never silently loses records.
	PersistCh chan<- event.Envelope

	// PublishCh feeds the outbound publisher; sends never block and
	// drop on overflow.
	PublishCh chan<- event.Envelope

	// StartSequence seeds record numbering, typically the highest
	// sequence already in the operation log.
	StartSequence int64

	// Now overrides the engine clock. Nil means time.Now.
	Now func() time.Time
}

// Engine owns all protocol state. Public methods serialize on one
// mutex; the managers underneath hold no locks of their own.
type Engine struct {
	mu sync.Mutex

	authority uuid.UUID
	paused    bool

	registry  *risk.Registry
	ledger    *lending.Ledger
	positions *position.Manager
	vault     *position.Vault

	pool   amm.LiquidityProtocol
	prices oracle.PriceSource

	borrowAsset string
	sequence    int64
	now         func() time.Time

	log     zerolog.Logger
	metrics *observability.Metrics

	persistCh chan<- event.Envelope
	publishCh chan<- event.Envelope
}

func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		authority:   cfg.Authority,
		registry:    risk.NewRegistry(),
		ledger:      lending.NewLedger(cfg.BorrowAsset, cfg.BorrowRateBps),
		positions:   position.NewManager(),
		vault:       position.NewVault(),
		pool:        cfg.Pool,
		prices:      cfg.Prices,
		borrowAsset: cfg.BorrowAsset,
		sequence:    cfg.StartSequence,
		now:         now,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		persistCh:   cfg.PersistCh,
		publishCh:   cfg.PublishCh,
	}
}

// --- Admin -----------------------------------------------------------

// SetPaused flips the global pause flag. While paused, risk-increasing
// operations (deposit, supply, open) are rejected; exits and
// liquidations keep working.
func (e *Engine) SetPaused(caller uuid.UUID, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.authority {
		return ErrUnauthorized
	}
	e.paused = paused
	e.log.Info().Bool("paused", paused).Msg("pause flag changed")
	e.emit(&event.ConfigUpdated{
		OperationID: uuid.New(),
		Change:      fmt.Sprintf("paused=%v", paused),
	})
	return nil
}

// RegisterCollateral adds a new collateral asset at runtime.
func (e *Engine) RegisterCollateral(caller uuid.UUID, cfg risk.CollateralConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.authority {
		return ErrUnauthorized
	}
	if err := e.registry.Register(cfg); err != nil {
		return err
	}
	e.log.Info().Str("asset", cfg.Asset).Msg("collateral asset registered")
	e.emit(&event.ConfigUpdated{
		OperationID: uuid.New(),
		Asset:       cfg.Asset,
		Change:      "registered",
	})
	return nil
}

// UpdateCollateral applies a partial risk-parameter update.
func (e *Engine) UpdateCollateral(caller uuid.UUID, asset string, upd risk.CollateralUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.authority {
		return ErrUnauthorized
	}
	if err := e.registry.Update(asset, upd); err != nil {
		return err
	}
	e.log.Info().Str("asset", asset).Msg("collateral parameters updated")
	e.emit(&event.ConfigUpdated{
		OperationID: uuid.New(),
		Asset:       asset,
		Change:      "updated",
	})
	return nil
}

// SetCollateralEnabled enables or disables new positions for an asset.
func (e *Engine) SetCollateralEnabled(caller uuid.UUID, asset string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.authority {
		return ErrUnauthorized
	}
	if err := e.registry.SetEnabled(asset, enabled); err != nil {
		return err
	}
	e.emit(&event.ConfigUpdated{
		OperationID: uuid.New(),
		Asset:       asset,
		Change:      fmt.Sprintf("enabled=%v", enabled),
	})
	return nil
}

// CollateralConfig exposes the current parameters for an asset.
func (e *Engine) CollateralConfig(asset string) (risk.CollateralConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Get(asset)
}

// --- Collateral ------------------------------------------------------

// Deposit escrows collateral for (owner, asset), creating a Funded
// position or topping up an existing one. A terminal position whose
// escrow has been fully withdrawn is reclaimed so the slot can be
// reused.
func (e *Engine) Deposit(ctx context.Context, owner uuid.UUID, asset string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.trackOp("deposit", time.Now())

	if e.paused {
		e.countRejected("deposit", "paused")
		return ErrProtocolPaused
	}

	cfg, ok := e.registry.Get(asset)
	if !ok || !cfg.Enabled {
		e.countRejected("deposit", "unknown_asset")
		return fmt.Errorf("%w: %s", risk.ErrUnknownAsset, asset)
	}
	if amount <= 0 {
		e.countRejected("deposit", "invalid_amount")
		return fmt.Errorf("%w: deposit amount %d", risk.ErrInvalidAmount, amount)
	}

	pos := e.positions.Get(owner, asset)
	if pos != nil {
		switch {
		case pos.IsActive():
			e.countRejected("deposit", "already_open")
			return position.ErrAlreadyOpen
		case pos.Status.Terminal():
			if e.vault.Balance(owner, asset) > 0 {
				e.countRejected("deposit", "pending_withdrawal")
				return fmt.Errorf("%w: withdraw settled escrow first", position.ErrAlreadyOpen)
			}
			e.positions.Remove(owner, asset)
			pos = nil
		}
	}

	// The minimum binds the first deposit only; top-ups on a Funded
	// position may be any positive amount.
	if pos == nil && amount < cfg.MinDeposit {
		e.countRejected("deposit", "below_minimum")
		return fmt.Errorf("%w: %d < min %d", ErrInsufficientCollateral, amount, cfg.MinDeposit)
	}

	if err := e.vault.Credit(owner, asset, amount); err != nil {
		e.countRejected("deposit", "escrow")
		return err
	}
	if pos == nil {
		e.positions.Create(owner, asset, amount, e.now())
	} else {
		pos.CollateralAmount += amount
		pos.Version++
	}

	e.countApplied("deposit")
	e.log.Info().
		Str("owner", owner.String()).
		Str("asset", asset).
		Int64("amount", amount).
		Msg("collateral deposited")
	e.emit(&event.CollateralDeposited{
		OperationID: uuid.New(),
		Owner:       owner,
		Asset:       asset,
		Amount:      amount,
	})
	return nil
}

// WithdrawCollateral releases escrowed funds back to the owner. Escrow
// backing an active position cannot leave. Withdrawals work while
// paused. Draining the escrow of a terminal position reclaims its
// record. Keeper reward balances, which have no position record, use
// this same path.
func (e *Engine) WithdrawCollateral(ctx context.Context, owner uuid.UUID, asset string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.trackOp("withdraw_collateral", time.Now())

	pos := e.positions.Get(owner, asset)
	if pos != nil && pos.IsActive() {
		e.countRejected("withdraw_collateral", "active_position")
		return ErrCollateralLocked
	}

	if err := e.vault.Debit(owner, asset, amount); err != nil {
		e.countRejected("withdraw_collateral", "escrow")
		return err
	}

	if pos != nil {
		if pos.Status == position.StatusFunded {
			pos.CollateralAmount -= amount
			pos.Version++
		}
		if e.vault.Balance(owner, asset) == 0 {
			e.positions.Remove(owner, asset)
		}
	}

	e.countApplied("withdraw_collateral")
	e.emit(&event.CollateralWithdrawn{
		OperationID: uuid.New(),
		Owner:       owner,
		Asset:       asset,
		Amount:      amount,
	})
	return nil
}

// --- Lending pool ----------------------------------------------------

// Supply deposits liquidity into the borrow pool.
func (e *Engine) Supply(ctx context.Context, supplier uuid.UUID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.trackOp("supply", time.Now())

	if e.paused {
		e.countRejected("supply", "paused")
		return ErrProtocolPaused
	}

	if err := e.ledger.Supply(supplier, amount, e.now()); err != nil {
		e.countRejected("supply", "ledger")
		return err
	}
	if err := e.checkSolvency(); err != nil {
		return err
	}

	e.countApplied("supply")
	e.updatePoolGauges()
	e.emit(&event.PoolSupplied{
		OperationID:   uuid.New(),
		Supplier:      supplier,
		Asset:         e.borrowAsset,
		Amount:        amount,
		TotalSupplied: e.ledger.TotalSupplied(),
	})
	return nil
}

// WithdrawSupply exits the pool, paying out principal plus accrued
// interest, and reports the payout. Fails while the principal is lent
// out; the supplier can retry after repayments land. Works while
// paused.
func (e *Engine) WithdrawSupply(ctx context.Context, supplier uuid.UUID) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.trackOp("withdraw_supply", time.Now())

	sp, ok := e.ledger.Supplier(supplier)
	if !ok {
		e.countRejected("withdraw_supply", "not_found")
		return 0, lending.ErrSupplierNotFound
	}

	payout, err := e.ledger.Withdraw(supplier, e.now())
	if err != nil {
		e.countRejected("withdraw_supply", "liquidity")
		return 0, err
	}
	if err := e.checkSolvency(); err != nil {
		return 0, err
	}

	e.countApplied("withdraw_supply")
	e.updatePoolGauges()
	e.emit(&event.PoolWithdrawn{
		OperationID: uuid.New(),
		Supplier:    supplier,
		Asset:       e.borrowAsset,
		Principal:   sp.SuppliedAmount,
		Interest:    payout - sp.SuppliedAmount,
	})
	return payout, nil
}

// PoolState reports the pool totals.
func (e *Engine) PoolState() (supplied, borrowed int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.TotalSupplied(), e.ledger.TotalBorrowed()
}

// --- Positions -------------------------------------------------------

// OpenRequest parameterizes a leveraged entry.
type OpenRequest struct {
	Owner uuid.UUID
	Asset string

	// LeverageBps is borrowed value over collateral value in basis
	// points. It equals the position's LTV at open and may not exceed
	// the asset's MaxLTV.
	LeverageBps int64

	Range             amm.BucketRange
	ReferenceBucket   int32
	MaxBucketSlippage int32
	Distribution      []amm.BucketWeight
}

// Open borrows against a Funded position and deploys the borrowed
// funds one-sided into the external pool. Order: validate, reserve the
// borrow, open externally, commit. An external failure repays the
// reservation before returning, so no partial state survives.
func (e *Engine) Open(ctx context.Context, req OpenRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.trackOp("open", time.Now())

	if e.paused {
		e.countRejected("open", "paused")
		return ErrProtocolPaused
	}

	cfg, ok := e.registry.Get(req.Asset)
	if !ok || !cfg.Enabled {
		e.countRejected("open", "unknown_asset")
		return fmt.Errorf("%w: %s", risk.ErrUnknownAsset, req.Asset)
	}

	pos := e.positions.Get(req.Owner, req.Asset)
	if pos == nil {
		e.countRejected("open", "not_found")
		return position.ErrNotFound
	}
	if pos.IsActive() {
		e.countRejected("open", "already_open")
		return position.ErrAlreadyOpen
	}
	if !pos.Status.CanTransitionTo(position.StatusActive) {
		e.countRejected("open", "terminal")
		return position.ErrNotActive
	}

	collPrice, debtPrice, err := e.quotePair(ctx, cfg)
	if err != nil {
		e.countRejected("open", "oracle")
		return err
	}

	debtAmount, err := e.sizeDebt(pos.CollateralAmount, collPrice, debtPrice, req.LeverageBps)
	if err != nil {
		e.countRejected("open", "sizing")
		return err
	}

	ltv, err := risk.LoanToValueBps(pos.CollateralAmount, collPrice, debtAmount, debtPrice)
	if err != nil {
		e.countRejected("open", "sizing")
		return err
	}
	if ltv > cfg.MaxLTV {
		e.countRejected("open", "max_ltv")
		return fmt.Errorf("%w: ltv %d > max %d", ErrExceedsMaxLTV, ltv, cfg.MaxLTV)
	}

	if err := e.ledger.Borrow(debtAmount); err != nil {
		e.countRejected("open", "liquidity")
		return err
	}

	ref, err := e.pool.OpenPosition(ctx, amm.OpenParams{
		Range:             req.Range,
		ReferenceBucket:   req.ReferenceBucket,
		MaxBucketSlippage: req.MaxBucketSlippage,
		Distribution:      req.Distribution,
		Asset:             e.borrowAsset,
		Amount:            debtAmount,
	})
	if err != nil {
		// Compensate the reservation before surfacing the failure.
		if rerr := e.ledger.Repay(debtAmount); rerr != nil {
			e.log.Error().Err(rerr).Msg("compensating repay failed")
			return fmt.Errorf("%w: %v", ErrInvariantViolation, rerr)
		}
		e.countRejected("open", "external")
		return fmt.Errorf("external open: %w", err)
	}

	pos.Status = position.StatusActive
	pos.DebtAmount = debtAmount
	pos.ExternalRef = &ref
	pos.Version++

	if err := e.checkSolvency(); err != nil {
		return err
	}

	e.countApplied("open")
	e.updatePoolGauges()
	if e.metrics != nil {
		e.metrics.PositionsOpened.WithLabelValues(req.Asset).Inc()
		e.metrics.PositionsActive.WithLabelValues(req.Asset).Inc()
	}
	e.log.Info().
		Str("owner", req.Owner.String()).
		Str("asset", req.Asset).
		Int64("collateral", pos.CollateralAmount).
		Int64("debt", debtAmount).
		Int64("ltv_bps", ltv).
		Msg("position opened")
	e.emit(&event.PositionOpened{
		OperationID:      uuid.New(),
		Owner:            req.Owner,
		Asset:            req.Asset,
		CollateralAmount: pos.CollateralAmount,
		DebtAmount:       debtAmount,
		LeverageBps:      req.LeverageBps,
		ExternalRef:      ref,
	})
	return nil
}

// Close voluntarily unwinds the owner's active position: remove
// liquidity, cover the debt, repay the pool, credit residual proceeds
// to the owner's escrow. Works while paused.
func (e *Engine) Close(ctx context.Context, owner uuid.UUID, asset string, rng amm.BucketRange) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.trackOp("close", time.Now())

	pos := e.positions.Get(owner, asset)
	if pos == nil {
		e.countRejected("close", "not_found")
		return position.ErrNotFound
	}
	if !pos.IsActive() {
		e.countRejected("close", "not_active")
		return position.ErrNotActive
	}

	debt := pos.DebtAmount
	baseOut, quoteOut, err := e.unwind(ctx, pos, asset, rng)
	if err != nil {
		e.countRejected("close", "unwind")
		return err
	}

	residual, shortfall, err := e.settleDebt(owner, asset, debt, baseOut, quoteOut)
	if err != nil {
		return err
	}

	pos.Status = position.StatusClosed
	pos.DebtAmount = 0
	pos.ExternalRef = nil
	pos.Version++

	if err := e.checkSolvency(); err != nil {
		return err
	}

	e.countApplied("close")
	e.updatePoolGauges()
	if e.metrics != nil {
		e.metrics.PositionsClosed.WithLabelValues(asset).Inc()
		e.metrics.PositionsActive.WithLabelValues(asset).Dec()
		if shortfall > 0 {
			e.metrics.UnwindShortfall.WithLabelValues(asset).Inc()
		}
	}
	e.log.Info().
		Str("owner", owner.String()).
		Str("asset", asset).
		Int64("debt_repaid", debt-shortfall).
		Int64("residual", residual).
		Int64("shortfall", shortfall).
		Msg("position closed")
	e.emit(&event.PositionClosed{
		OperationID: uuid.New(),
		Owner:       owner,
		Asset:       asset,
		DebtRepaid:  debt - shortfall,
		Residual:    residual,
		Shortfall:   shortfall,
	})
	return nil
}

// Liquidate lets any keeper force-unwind a position whose LTV has
// reached the asset's liquidation threshold. The keeper earns the
// liquidation penalty, carved from the owner's collateral escrow, and
// claims it through the ordinary withdrawal path. Works while paused.
func (e *Engine) Liquidate(ctx context.Context, keeper, owner uuid.UUID, asset string, rng amm.BucketRange) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.trackOp("liquidate", time.Now())

	cfg, ok := e.registry.Get(asset)
	if !ok {
		e.countRejected("liquidate", "unknown_asset")
		return fmt.Errorf("%w: %s", risk.ErrUnknownAsset, asset)
	}

	pos := e.positions.Get(owner, asset)
	if pos == nil {
		e.countRejected("liquidate", "not_found")
		return position.ErrNotFound
	}
	if !pos.IsActive() {
		e.countRejected("liquidate", "not_active")
		return position.ErrNotActive
	}

	collPrice, debtPrice, err := e.quotePair(ctx, cfg)
	if err != nil {
		e.countRejected("liquidate", "oracle")
		return err
	}

	health, err := risk.Evaluate(cfg, pos.CollateralAmount, collPrice, pos.DebtAmount, debtPrice)
	if err != nil {
		e.countRejected("liquidate", "health")
		return err
	}
	if !health.Liquidatable {
		e.countRejected("liquidate", "healthy")
		return fmt.Errorf("%w: ltv %d < threshold %d",
			ErrPositionHealthy, health.LTVBps, cfg.LiquidationThreshold)
	}

	debt := pos.DebtAmount
	baseOut, quoteOut, err := e.unwind(ctx, pos, asset, rng)
	if err != nil {
		e.countRejected("liquidate", "unwind")
		return err
	}

	_, shortfall, err := e.settleDebt(owner, asset, debt, baseOut, quoteOut)
	if err != nil {
		return err
	}

	reward, err := fpmath.ApplyBps(pos.CollateralAmount, cfg.LiquidationPenalty)
	if err != nil {
		return fmt.Errorf("%w: reward: %v", ErrInvariantViolation, err)
	}
	if reward > 0 {
		if err := e.vault.Debit(owner, asset, reward); err != nil {
			return fmt.Errorf("%w: reward debit: %v", ErrInvariantViolation, err)
		}
		if err := e.vault.Credit(keeper, asset, reward); err != nil {
			return fmt.Errorf("%w: reward credit: %v", ErrInvariantViolation, err)
		}
	}

	pos.Status = position.StatusLiquidated
	pos.DebtAmount = 0
	pos.ExternalRef = nil
	pos.Version++

	if err := e.checkSolvency(); err != nil {
		return err
	}

	e.countApplied("liquidate")
	e.updatePoolGauges()
	if e.metrics != nil {
		e.metrics.LiquidationsTotal.WithLabelValues(asset).Inc()
		e.metrics.KeeperRewardsPaid.WithLabelValues(asset).Add(float64(reward))
		e.metrics.PositionsActive.WithLabelValues(asset).Dec()
		if shortfall > 0 {
			e.metrics.UnwindShortfall.WithLabelValues(asset).Inc()
		}
	}
	e.log.Warn().
		Str("owner", owner.String()).
		Str("keeper", keeper.String()).
		Str("asset", asset).
		Int64("debt_repaid", debt-shortfall).
		Int64("keeper_reward", reward).
		Int64("shortfall", shortfall).
		Int64("ltv_bps", health.LTVBps).
		Msg("position liquidated")
	e.emit(&event.PositionLiquidated{
		OperationID:  uuid.New(),
		Owner:        owner,
		Keeper:       keeper,
		Asset:        asset,
		DebtRepaid:   debt - shortfall,
		KeeperReward: reward,
		Shortfall:    shortfall,
		LTVBps:       health.LTVBps,
	})
	return nil
}

// PositionView is a read-only snapshot for queries.
type PositionView struct {
	Owner            uuid.UUID
	Asset            string
	Status           string
	CollateralAmount int64
	DebtAmount       int64
	EscrowBalance    int64
	Version          int64
}

// Position returns a snapshot of (owner, asset), or false.
func (e *Engine) Position(owner uuid.UUID, asset string) (PositionView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.positions.Get(owner, asset)
	if pos == nil {
		return PositionView{}, false
	}
	return PositionView{
		Owner:            pos.Owner,
		Asset:            pos.Asset,
		Status:           pos.Status.String(),
		CollateralAmount: pos.CollateralAmount,
		DebtAmount:       pos.DebtAmount,
		EscrowBalance:    e.vault.Balance(owner, asset),
		Version:          pos.Version,
	}, true
}

// EscrowBalance returns the vault balance for (owner, asset). Nonzero
// balances without a position record are keeper rewards.
func (e *Engine) EscrowBalance(owner uuid.UUID, asset string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.Balance(owner, asset)
}

// QueryHealth evaluates a position at the current oracle prices. A
// stale or missing price fails the query rather than reporting a
// number nobody should act on.
func (e *Engine) QueryHealth(ctx context.Context, owner uuid.UUID, asset string) (risk.Health, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, ok := e.registry.Get(asset)
	if !ok {
		return risk.Health{}, fmt.Errorf("%w: %s", risk.ErrUnknownAsset, asset)
	}
	pos := e.positions.Get(owner, asset)
	if pos == nil {
		return risk.Health{}, position.ErrNotFound
	}

	collPrice, debtPrice, err := e.quotePair(ctx, cfg)
	if err != nil {
		return risk.Health{}, err
	}

	health, err := risk.Evaluate(cfg, pos.CollateralAmount, collPrice, pos.DebtAmount, debtPrice)
	if err != nil {
		return risk.Health{}, err
	}
	if e.metrics != nil {
		e.metrics.HealthCheckLTV.WithLabelValues(asset).Observe(float64(health.LTVBps))
	}
	return health, nil
}

// --- Internals -------------------------------------------------------

// quotePair fetches and validates oracle prices for the collateral
// asset and the borrow asset under the collateral's staleness bound.
func (e *Engine) quotePair(ctx context.Context, cfg risk.CollateralConfig) (collPrice, debtPrice int64, err error) {
	now := e.now()

	collQuote, err := e.prices.Price(ctx, cfg.Asset)
	if err != nil {
		return 0, 0, err
	}
	if err := risk.ValidatePrice(collQuote.Price, collQuote.Timestamp, cfg.OracleMaxAge, now); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", cfg.Asset, err)
	}

	debtQuote, err := e.prices.Price(ctx, e.borrowAsset)
	if err != nil {
		return 0, 0, err
	}
	if err := risk.ValidatePrice(debtQuote.Price, debtQuote.Timestamp, cfg.OracleMaxAge, now); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", e.borrowAsset, err)
	}

	return collQuote.Price, debtQuote.Price, nil
}

// sizeDebt converts a leverage ratio into borrow-asset units:
// debt_value = collateral_value * leverage_bps / 10_000.
func (e *Engine) sizeDebt(collateralAmount, collPrice, debtPrice, leverageBps int64) (int64, error) {
	if leverageBps <= 0 {
		return 0, fmt.Errorf("%w: leverage_bps %d", risk.ErrInvalidAmount, leverageBps)
	}
	collValue, err := fpmath.Value(collateralAmount, collPrice)
	if err != nil {
		return 0, err
	}
	debtValue, err := fpmath.ApplyBps(collValue, leverageBps)
	if err != nil {
		return 0, err
	}
	if debtValue <= 0 {
		return 0, fmt.Errorf("%w: zero debt for leverage_bps %d", risk.ErrInvalidAmount, leverageBps)
	}
	return fpmath.MulDiv(debtValue, fpmath.PriceScale, debtPrice)
}

// unwind removes the external liquidity position and converts the
// proceeds toward the debt. Removal is irreversible on the venue, so
// once it succeeds the realized outcome always commits; only a failed
// removal aborts the operation. The borrow-asset leg comes back first;
// if it falls short the entire collateral-asset leg is swapped, and
// when even the shortfall floor cannot be met the swap is retaken at
// whatever the venue gives rather than stranding the proceeds.
func (e *Engine) unwind(ctx context.Context, pos *position.Position, asset string, rng amm.BucketRange) (baseOut, quoteOut int64, err error) {
	if pos.ExternalRef == nil {
		return 0, 0, fmt.Errorf("%w: missing external ref", ErrInvariantViolation)
	}

	baseOut, quoteOut, err = e.pool.RemoveLiquidity(ctx, *pos.ExternalRef, rng)
	if err != nil {
		return 0, 0, fmt.Errorf("remove liquidity: %w", err)
	}

	if quoteOut >= pos.DebtAmount || baseOut == 0 {
		return baseOut, quoteOut, nil
	}

	shortfall := pos.DebtAmount - quoteOut
	swapped, err := e.pool.Swap(ctx, asset, e.borrowAsset, baseOut, shortfall)
	if err != nil {
		swapped, err = e.pool.Swap(ctx, asset, e.borrowAsset, baseOut, 0)
		if err != nil {
			// Even the floorless swap failed; keep the base leg as
			// proceeds and let settlement absorb the shortfall.
			return baseOut, quoteOut, nil
		}
	}
	return 0, quoteOut + swapped, nil
}

// settleDebt repays the pool from the unwind proceeds and credits the
// remainder to the owner's escrow: leftover borrow-asset units and any
// unswapped collateral-asset leg. Proceeds that fall short of the debt
// leave a shortfall, written off against the pool.
func (e *Engine) settleDebt(owner uuid.UUID, asset string, debt, baseOut, quoteOut int64) (residual, shortfall int64, err error) {
	repay := debt
	if quoteOut < debt {
		repay = quoteOut
		shortfall = debt - quoteOut
	}

	if repay > 0 {
		if err := e.ledger.Repay(repay); err != nil {
			return 0, 0, fmt.Errorf("%w: repay: %v", ErrInvariantViolation, err)
		}
	}
	if shortfall > 0 {
		if err := e.ledger.WriteOff(shortfall); err != nil {
			return 0, 0, fmt.Errorf("%w: write-off: %v", ErrInvariantViolation, err)
		}
	}

	residual = quoteOut - debt
	if residual > 0 {
		if err := e.vault.Credit(owner, e.borrowAsset, residual); err != nil {
			return 0, 0, fmt.Errorf("%w: residual credit: %v", ErrInvariantViolation, err)
		}
	}
	if residual < 0 {
		residual = 0
	}
	if baseOut > 0 {
		if err := e.vault.Credit(owner, asset, baseOut); err != nil {
			return 0, 0, fmt.Errorf("%w: proceeds credit: %v", ErrInvariantViolation, err)
		}
	}
	return residual, shortfall, nil
}

func (e *Engine) checkSolvency() error {
	if err := e.ledger.CheckSolvency(); err != nil {
		e.log.Error().Err(err).Msg("solvency invariant violated")
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return nil
}

// emit assigns the next sequence, encodes the record, blocks on the
// persistence channel and best-efforts the publish channel.
func (e *Engine) emit(rec event.Record) {
	e.sequence++

	payload, err := json.Marshal(rec)
	if err != nil {
		// Records are engine-built; a failed encode is a programming
		// error and would leave a gap in the operation log.
		panic(fmt.Sprintf("engine: encode record %d (%s): %v", e.sequence, rec.RecordType(), err))
	}

	env := event.Envelope{
		Sequence:       e.sequence,
		IdempotencyKey: rec.IdempotencyKey(),
		RecordType:     rec.RecordType(),
		Asset:          rec.AssetContext(),
		Timestamp:      e.now(),
		Payload:        payload,
	}

	if e.persistCh != nil {
		e.persistCh <- env
	}
	if e.publishCh != nil {
		select {
		case e.publishCh <- env:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

func (e *Engine) updatePoolGauges() {
	if e.metrics == nil {
		return
	}
	supplied := e.ledger.TotalSupplied()
	borrowed := e.ledger.TotalBorrowed()
	e.metrics.PoolTotalSupplied.WithLabelValues(e.borrowAsset).Set(float64(supplied))
	e.metrics.PoolTotalBorrowed.WithLabelValues(e.borrowAsset).Set(float64(borrowed))
	if supplied > 0 {
		util, err := fpmath.RatioBps(borrowed, supplied)
		if err == nil {
			e.metrics.PoolUtilization.WithLabelValues(e.borrowAsset).Set(float64(util))
		}
	}
}

func (e *Engine) countApplied(op string) {
	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
	}
}

func (e *Engine) countRejected(op, reason string) {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
	}
}

func (e *Engine) trackOp(op string, start time.Time) {
	if e.metrics != nil {
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
