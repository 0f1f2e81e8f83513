package event

import (
	"time"
)

// RecordType discriminator for operation records.
type RecordType int32

const (
	RecordTypeUnknown RecordType = iota
	RecordTypeCollateralDeposited
	RecordTypeCollateralWithdrawn
	RecordTypePoolSupplied
	RecordTypePoolWithdrawn
	RecordTypePositionOpened
	RecordTypePositionClosed
	RecordTypePositionLiquidated
	RecordTypeConfigUpdated
)

func (t RecordType) String() string {
	switch t {
	case RecordTypeCollateralDeposited:
		return "collateral_deposited"
	case RecordTypeCollateralWithdrawn:
		return "collateral_withdrawn"
	case RecordTypePoolSupplied:
		return "pool_supplied"
	case RecordTypePoolWithdrawn:
		return "pool_withdrawn"
	case RecordTypePositionOpened:
		return "position_opened"
	case RecordTypePositionClosed:
		return "position_closed"
	case RecordTypePositionLiquidated:
		return "position_liquidated"
	case RecordTypeConfigUpdated:
		return "config_updated"
	default:
		return "unknown"
	}
}

// Envelope wraps every record appended to the operation log.
type Envelope struct {
	// Global monotonic sequence assigned by the engine.
	Sequence int64

	// Stable idempotency key from the originating operation.
	IdempotencyKey string

	RecordType RecordType

	// Asset context (empty for global records such as config updates).
	Asset string

	// Engine clock at the time the operation committed.
	Timestamp time.Time

	// JSON-encoded record-specific data.
	Payload []byte
}

// Record is the interface all operation payloads implement.
type Record interface {
	// IdempotencyKey returns the stable dedup key.
	IdempotencyKey() string

	// RecordType returns the discriminator.
	RecordType() RecordType

	// AssetContext returns the collateral asset, or "" for global records.
	AssetContext() string
}
