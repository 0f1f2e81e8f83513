// Package amm defines the contract the engine requires from the external
// concentrated-liquidity protocol. The engine never assumes anything
// about the protocol's own bucket math: the two-asset return of
// RemoveLiquidity is the only way it learns the realized outcome of a
// position.
package amm

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPositionNotFound = errors.New("amm: liquidity position not found")
	ErrBucketSlippage   = errors.New("amm: active bucket moved beyond slippage bound")
	ErrSwapSlippage     = errors.New("amm: swap output below minimum")
	ErrUnknownAsset     = errors.New("amm: asset not in pool")
)

// BucketRange is a discrete price-bucket interval, inclusive on both ends.
type BucketRange struct {
	Lower int32
	Upper int32
}

// BucketWeight distributes deposited liquidity across buckets by weight.
type BucketWeight struct {
	Bucket    int32
	WeightBps int64
}

// OpenParams describes a one-sided liquidity deposit.
type OpenParams struct {
	Range BucketRange
	// ReferenceBucket is the active bucket the caller observed when
	// computing the range; the open is rejected if the live bucket has
	// drifted further than MaxBucketSlippage from it.
	ReferenceBucket   int32
	MaxBucketSlippage int32
	Distribution      []BucketWeight
	Asset             string
	Amount            int64
}

// LiquidityProtocol is the external AMM capability.
type LiquidityProtocol interface {
	// OpenPosition deposits Amount of Asset one-sided across the range
	// and returns an opaque position reference.
	OpenPosition(ctx context.Context, p OpenParams) (uuid.UUID, error)

	// RemoveLiquidity withdraws the full position across the range and
	// returns the realized (base asset, quote asset) amounts. The split
	// depends entirely on where the active bucket sits.
	RemoveLiquidity(ctx context.Context, ref uuid.UUID, r BucketRange) (baseOut, quoteOut int64, err error)

	// Swap trades inAmount of inAsset for outAsset, failing if the
	// output would fall below minOut.
	Swap(ctx context.Context, inAsset, outAsset string, inAmount, minOut int64) (int64, error)

	// ActiveBucket returns the pool's current price bucket.
	ActiveBucket(ctx context.Context) (int32, error)
}
