package event

import "github.com/google/uuid"

// CollateralDeposited records escrow of owner funds ahead of an open.
type CollateralDeposited struct {
	OperationID uuid.UUID `json:"operation_id"`
	Owner       uuid.UUID `json:"owner"`
	Asset       string    `json:"asset"`
	Amount      int64     `json:"amount"`
}

func (r *CollateralDeposited) IdempotencyKey() string { return r.OperationID.String() }
func (r *CollateralDeposited) RecordType() RecordType { return RecordTypeCollateralDeposited }
func (r *CollateralDeposited) AssetContext() string { return r.Asset }

// CollateralWithdrawn records release of escrowed funds back to the owner.
type CollateralWithdrawn struct {
	OperationID uuid.UUID `json:"operation_id"`
	Owner       uuid.UUID `json:"owner"`
	Asset       string    `json:"asset"`
	Amount      int64     `json:"amount"`
}

func (r *CollateralWithdrawn) IdempotencyKey() string { return r.OperationID.String() }
func (r *CollateralWithdrawn) RecordType() RecordType { return RecordTypeCollateralWithdrawn }
func (r *CollateralWithdrawn) AssetContext() string { return r.Asset }

// PoolSupplied records a lender deposit into the borrow pool.
type PoolSupplied struct {
	OperationID   uuid.UUID `json:"operation_id"`
	Supplier      uuid.UUID `json:"supplier"`
	Asset         string    `json:"asset"`
	Amount        int64     `json:"amount"`
	TotalSupplied int64     `json:"total_supplied"`
}

func (r *PoolSupplied) IdempotencyKey() string { return r.OperationID.String() }
func (r *PoolSupplied) RecordType() RecordType { return RecordTypePoolSupplied }
func (r *PoolSupplied) AssetContext() string { return r.Asset }

// PoolWithdrawn records a lender exit with principal plus accrued interest.
type PoolWithdrawn struct {
	OperationID uuid.UUID `json:"operation_id"`
	Supplier    uuid.UUID `json:"supplier"`
	Asset       string    `json:"asset"`
	Principal   int64     `json:"principal"`
	Interest    int64     `json:"interest"`
}

func (r *PoolWithdrawn) IdempotencyKey() string { return r.OperationID.String() }
func (r *PoolWithdrawn) RecordType() RecordType { return RecordTypePoolWithdrawn }
func (r *PoolWithdrawn) AssetContext() string { return r.Asset }

// PositionOpened records a leveraged entry into the liquidity pool.
type PositionOpened struct {
	OperationID      uuid.UUID `json:"operation_id"`
	Owner            uuid.UUID `json:"owner"`
	Asset            string    `json:"asset"`
	CollateralAmount int64     `json:"collateral_amount"`
	DebtAmount       int64     `json:"debt_amount"`
	LeverageBps      int64     `json:"leverage_bps"`
	ExternalRef      uuid.UUID `json:"external_ref"`
}

func (r *PositionOpened) IdempotencyKey() string { return r.OperationID.String() }
func (r *PositionOpened) RecordType() RecordType { return RecordTypePositionOpened }
func (r *PositionOpened) AssetContext() string { return r.Asset }

// PositionClosed records a voluntary unwind. Shortfall is nonzero when
// the realized proceeds could not cover the debt and the pool absorbed
// the difference.
type PositionClosed struct {
	OperationID uuid.UUID `json:"operation_id"`
	Owner       uuid.UUID `json:"owner"`
	Asset       string    `json:"asset"`
	DebtRepaid  int64     `json:"debt_repaid"`
	Residual    int64     `json:"residual"`
	Shortfall   int64     `json:"shortfall"`
}

func (r *PositionClosed) IdempotencyKey() string { return r.OperationID.String() }
func (r *PositionClosed) RecordType() RecordType { return RecordTypePositionClosed }
func (r *PositionClosed) AssetContext() string { return r.Asset }

// PositionLiquidated records a keeper-forced unwind of an unhealthy
// position, including the reward carved from the owner's collateral.
type PositionLiquidated struct {
	OperationID  uuid.UUID `json:"operation_id"`
	Owner        uuid.UUID `json:"owner"`
	Keeper       uuid.UUID `json:"keeper"`
	Asset        string    `json:"asset"`
	DebtRepaid   int64     `json:"debt_repaid"`
	KeeperReward int64     `json:"keeper_reward"`
	Shortfall    int64     `json:"shortfall"`
	LTVBps       int64     `json:"ltv_bps"`
}

func (r *PositionLiquidated) IdempotencyKey() string { return r.OperationID.String() }
func (r *PositionLiquidated) RecordType() RecordType { return RecordTypePositionLiquidated }
func (r *PositionLiquidated) AssetContext() string { return r.Asset }

// ConfigUpdated records an authority change to collateral risk
// parameters or the protocol pause flag.
type ConfigUpdated struct {
	OperationID uuid.UUID `json:"operation_id"`
	Asset       string    `json:"asset,omitempty"`
	Change      string    `json:"change"`
}

func (r *ConfigUpdated) IdempotencyKey() string { return r.OperationID.String() }
func (r *ConfigUpdated) RecordType() RecordType { return RecordTypeConfigUpdated }
func (r *ConfigUpdated) AssetContext() string { return r.Asset }
