package lending

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	fpmath "levengine/internal/math"
)

var (
	ErrInsufficientLiquidity = errors.New("lending: insufficient pool liquidity")
	ErrSupplierNotFound      = errors.New("lending: no supplier position")
	ErrInvalidAmount         = errors.New("lending: invalid amount")
	ErrExcessRepayment       = errors.New("lending: repayment exceeds outstanding debt")
)

// secondsPerYear for simple annual interest accrual.
const secondsPerYear = 365 * 24 * 3600

// SupplierPosition tracks one liquidity supplier's proportional claim on
// the pool. Suppliers own a claim, never specific units of liquidity.
type SupplierPosition struct {
	Owner          uuid.UUID
	SuppliedAmount int64
	InterestEarned int64
	LastUpdate     time.Time
}

// accrueInterest adds simple annual interest for the elapsed window:
// principal * rate_bps * elapsed_sec / (seconds_per_year * 10_000).
func (sp *SupplierPosition) accrueInterest(rateBps int64, now time.Time) {
	elapsed := int64(now.Sub(sp.LastUpdate) / time.Second)
	if elapsed <= 0 {
		sp.LastUpdate = now
		return
	}

	perYear, err := fpmath.MulDiv(sp.SuppliedAmount, rateBps, fpmath.BpsScale)
	if err != nil {
		// Saturate rather than mint an absurd amount on overflow.
		sp.LastUpdate = now
		return
	}
	interest, err := fpmath.MulDiv(perYear, elapsed, secondsPerYear)
	if err != nil {
		sp.LastUpdate = now
		return
	}

	sp.InterestEarned += interest
	sp.LastUpdate = now
}

// Claimable is principal plus accrued interest.
func (sp *SupplierPosition) Claimable() int64 {
	return sp.SuppliedAmount + sp.InterestEarned
}

// Ledger is the pooled lending book for one borrowable asset.
// Invariant: TotalBorrowed <= TotalSupplied at all times; every borrow
// and repay is a single atomic update, checked before admission.
// The ledger has no locking of its own; the engine serializes access.
type Ledger struct {
	asset         string
	rateBps       int64
	totalSupplied int64
	totalBorrowed int64
	suppliers     map[uuid.UUID]*SupplierPosition
}

func NewLedger(asset string, rateBps int64) *Ledger {
	return &Ledger{
		asset:     asset,
		rateBps:   rateBps,
		suppliers: make(map[uuid.UUID]*SupplierPosition),
	}
}

func (l *Ledger) Asset() string        { return l.asset }
func (l *Ledger) TotalSupplied() int64 { return l.totalSupplied }
func (l *Ledger) TotalBorrowed() int64 { return l.totalBorrowed }

// AvailableLiquidity is the unborrowed remainder of the pool.
func (l *Ledger) AvailableLiquidity() int64 {
	return l.totalSupplied - l.totalBorrowed
}

// Supply credits the pool and creates or tops up the caller's supplier
// position. Accrued interest on an existing position is settled first so
// the new principal does not earn retroactively.
func (l *Ledger) Supply(owner uuid.UUID, amount int64, now time.Time) error {
	if amount <= 0 {
		return fmt.Errorf("%w: supply amount %d", ErrInvalidAmount, amount)
	}

	newTotal, err := fpmath.CheckedAdd(l.totalSupplied, amount)
	if err != nil {
		return fmt.Errorf("total_supplied: %w", err)
	}

	sp, ok := l.suppliers[owner]
	if !ok {
		sp = &SupplierPosition{Owner: owner, LastUpdate: now}
		l.suppliers[owner] = sp
	} else {
		sp.accrueInterest(l.rateBps, now)
	}

	sp.SuppliedAmount += amount
	l.totalSupplied = newTotal
	return nil
}

// Withdraw pays out the supplier's full claim (principal + interest) and
// destroys the position. Fails with ErrInsufficientLiquidity when the
// unborrowed pool cannot cover the principal, a liveness condition, not
// a correctness one; the caller can retry after repayments land.
func (l *Ledger) Withdraw(owner uuid.UUID, now time.Time) (int64, error) {
	sp, ok := l.suppliers[owner]
	if !ok {
		return 0, ErrSupplierNotFound
	}

	sp.accrueInterest(l.rateBps, now)

	if l.AvailableLiquidity() < sp.SuppliedAmount {
		return 0, fmt.Errorf("%w: available %d < principal %d",
			ErrInsufficientLiquidity, l.AvailableLiquidity(), sp.SuppliedAmount)
	}

	payout := sp.Claimable()
	l.totalSupplied -= sp.SuppliedAmount
	delete(l.suppliers, owner)

	return payout, nil
}

// Borrow reserves liquidity for a position. Checked before any external
// action so a refused borrow leaves no residual state.
func (l *Ledger) Borrow(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: borrow amount %d", ErrInvalidAmount, amount)
	}

	newBorrowed, err := fpmath.CheckedAdd(l.totalBorrowed, amount)
	if err != nil {
		return fmt.Errorf("total_borrowed: %w", err)
	}
	if newBorrowed > l.totalSupplied {
		return fmt.Errorf("%w: borrow %d, available %d",
			ErrInsufficientLiquidity, amount, l.AvailableLiquidity())
	}

	l.totalBorrowed = newBorrowed
	return nil
}

// Repay returns borrowed liquidity to the pool.
func (l *Ledger) Repay(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: repay amount %d", ErrInvalidAmount, amount)
	}
	if amount > l.totalBorrowed {
		return fmt.Errorf("%w: repay %d > borrowed %d", ErrExcessRepayment, amount, l.totalBorrowed)
	}

	l.totalBorrowed -= amount
	return nil
}

// WriteOff socializes unrecoverable debt to the pool: the outstanding
// borrow is cancelled and total supply absorbs the loss. Supplier
// principal records are untouched; the last suppliers out bear the
// loss through the liquidity check on withdrawal.
func (l *Ledger) WriteOff(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: write-off amount %d", ErrInvalidAmount, amount)
	}
	if amount > l.totalBorrowed {
		return fmt.Errorf("%w: write-off %d > borrowed %d", ErrExcessRepayment, amount, l.totalBorrowed)
	}

	l.totalBorrowed -= amount
	l.totalSupplied -= amount
	return nil
}

// Supplier returns a copy of the owner's position.
func (l *Ledger) Supplier(owner uuid.UUID) (SupplierPosition, bool) {
	sp, ok := l.suppliers[owner]
	if !ok {
		return SupplierPosition{}, false
	}
	return *sp, true
}

// CheckSolvency validates the pool invariant. The engine calls this
// after every mutating operation and treats a violation as fatal.
func (l *Ledger) CheckSolvency() error {
	if l.totalBorrowed > l.totalSupplied {
		return fmt.Errorf("lending: pool insolvent: borrowed %d > supplied %d",
			l.totalBorrowed, l.totalSupplied)
	}
	if l.totalBorrowed < 0 || l.totalSupplied < 0 {
		return fmt.Errorf("lending: negative pool totals: supplied %d, borrowed %d",
			l.totalSupplied, l.totalBorrowed)
	}
	return nil
}
