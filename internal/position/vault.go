package position

import (
	"fmt"

	"github.com/google/uuid"

	fpmath "levengine/internal/math"
)

// Vault escrows collateral per (owner, asset). The protocol owns the
// escrow on behalf of the owner; until withdrawal the owner holds a
// claim, not custody. Balances include keeper rewards credited during
// liquidation, which use the same claim mechanism.
type Vault struct {
	balances map[Key]int64
}

func NewVault() *Vault {
	return &Vault{
		balances: make(map[Key]int64),
	}
}

// Balance returns the escrowed amount for (owner, asset).
func (v *Vault) Balance(owner uuid.UUID, asset string) int64 {
	return v.balances[Key{Owner: owner, Asset: asset}]
}

// Credit adds to the escrow.
func (v *Vault) Credit(owner uuid.UUID, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("vault: credit amount %d must be positive", amount)
	}
	key := Key{Owner: owner, Asset: asset}
	next, err := fpmath.CheckedAdd(v.balances[key], amount)
	if err != nil {
		return fmt.Errorf("vault: credit: %w", err)
	}
	v.balances[key] = next
	return nil
}

// Debit removes from the escrow. The escrow can never go negative.
func (v *Vault) Debit(owner uuid.UUID, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("vault: debit amount %d must be positive", amount)
	}
	key := Key{Owner: owner, Asset: asset}
	if v.balances[key] < amount {
		return fmt.Errorf("vault: debit %d exceeds escrow %d", amount, v.balances[key])
	}
	v.balances[key] -= amount
	return nil
}

// Drain zeroes the escrow and returns the released amount.
func (v *Vault) Drain(owner uuid.UUID, asset string) int64 {
	key := Key{Owner: owner, Asset: asset}
	amount := v.balances[key]
	delete(v.balances, key)
	return amount
}
