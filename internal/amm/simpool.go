package amm

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	fpmath "levengine/internal/math"
)

// SimPool is a deterministic in-memory liquidity protocol used in dev
// mode and tests, standing in for a real DLMM-style integration. It
// prices both assets from its own internal marks and converts one-sided
// liquidity value-preservingly as the active bucket sweeps the range.
type SimPool struct {
	mu sync.Mutex

	baseAsset  string
	quoteAsset string
	prices     map[string]int64 // PriceScale decimals
	spreadBps  int64
	active     int32

	positions map[uuid.UUID]*simPosition

	// openErr, when set, fails the next OpenPosition call. Used to
	// exercise the engine's borrow rollback path.
	openErr error
}

type simPosition struct {
	asset  string
	amount int64
	rng    BucketRange
}

func NewSimPool(baseAsset, quoteAsset string, spreadBps int64) *SimPool {
	return &SimPool{
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		prices: map[string]int64{
			baseAsset:  fpmath.PriceScale,
			quoteAsset: fpmath.PriceScale,
		},
		spreadBps: spreadBps,
		positions: make(map[uuid.UUID]*simPosition),
	}
}

// SetPrice updates the pool's internal mark for an asset.
func (sp *SimPool) SetPrice(asset string, price int64) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.prices[asset] = price
}

// SetActiveBucket moves the pool's active price bucket.
func (sp *SimPool) SetActiveBucket(bucket int32) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.active = bucket
}

// FailNextOpen makes the next OpenPosition call fail with err.
func (sp *SimPool) FailNextOpen(err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.openErr = err
}

func (sp *SimPool) OpenPosition(_ context.Context, p OpenParams) (uuid.UUID, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.openErr != nil {
		err := sp.openErr
		sp.openErr = nil
		return uuid.Nil, err
	}

	if p.Asset != sp.baseAsset && p.Asset != sp.quoteAsset {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownAsset, p.Asset)
	}
	if p.Amount <= 0 {
		return uuid.Nil, fmt.Errorf("amm: non-positive deposit %d", p.Amount)
	}
	if p.Range.Lower > p.Range.Upper {
		return uuid.Nil, fmt.Errorf("amm: inverted bucket range [%d, %d]", p.Range.Lower, p.Range.Upper)
	}

	drift := sp.active - p.ReferenceBucket
	if drift < 0 {
		drift = -drift
	}
	if drift > p.MaxBucketSlippage {
		return uuid.Nil, fmt.Errorf("%w: drift %d > %d", ErrBucketSlippage, drift, p.MaxBucketSlippage)
	}

	ref := uuid.New()
	sp.positions[ref] = &simPosition{
		asset:  p.Asset,
		amount: p.Amount,
		rng:    p.Range,
	}
	return ref, nil
}

// RemoveLiquidity realizes the position. The deposited one-sided
// liquidity converts into the counter-asset in proportion to how far the
// active bucket has swept through the range, value-preserving at the
// pool's current marks.
func (sp *SimPool) RemoveLiquidity(_ context.Context, ref uuid.UUID, _ BucketRange) (int64, int64, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	pos, ok := sp.positions[ref]
	if !ok {
		return 0, 0, ErrPositionNotFound
	}
	delete(sp.positions, ref)

	converted, err := sp.convertedFraction(pos)
	if err != nil {
		return 0, 0, err
	}

	kept := pos.amount - converted
	other := sp.counterAsset(pos.asset)

	convertedOut, err := sp.convert(pos.asset, other, converted)
	if err != nil {
		return 0, 0, err
	}

	if pos.asset == sp.baseAsset {
		return kept, convertedOut, nil
	}
	return convertedOut, kept, nil
}

func (sp *SimPool) Swap(_ context.Context, inAsset, outAsset string, inAmount, minOut int64) (int64, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if inAmount <= 0 {
		return 0, fmt.Errorf("amm: non-positive swap input %d", inAmount)
	}

	gross, err := sp.convert(inAsset, outAsset, inAmount)
	if err != nil {
		return 0, err
	}
	out, err := fpmath.MulDiv(gross, fpmath.BpsScale-sp.spreadBps, fpmath.BpsScale)
	if err != nil {
		return 0, err
	}
	if out < minOut {
		return 0, fmt.Errorf("%w: out %d < min %d", ErrSwapSlippage, out, minOut)
	}
	return out, nil
}

func (sp *SimPool) ActiveBucket(_ context.Context) (int32, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.active, nil
}

// convertedFraction returns how much of the deposit has crossed to the
// counter-asset: nothing while the active bucket sits at or below the
// range, everything once it has passed above it, linear in between.
func (sp *SimPool) convertedFraction(pos *simPosition) (int64, error) {
	switch {
	case sp.active <= pos.rng.Lower:
		return 0, nil
	case sp.active > pos.rng.Upper:
		return pos.amount, nil
	default:
		width := int64(pos.rng.Upper - pos.rng.Lower + 1)
		crossed := int64(sp.active - pos.rng.Lower)
		return fpmath.MulDiv(pos.amount, crossed, width)
	}
}

func (sp *SimPool) counterAsset(asset string) string {
	if asset == sp.baseAsset {
		return sp.quoteAsset
	}
	return sp.baseAsset
}

func (sp *SimPool) convert(from, to string, amount int64) (int64, error) {
	priceFrom, ok := sp.prices[from]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, from)
	}
	priceTo, ok := sp.prices[to]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, to)
	}
	if amount == 0 {
		return 0, nil
	}
	return fpmath.MulDiv(amount, priceFrom, priceTo)
}
