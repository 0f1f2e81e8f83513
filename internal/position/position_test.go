package position_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"levengine/internal/position"
)

func TestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to position.Status
		allowed  bool
	}{
		{position.StatusFunded, position.StatusActive, true},
		{position.StatusFunded, position.StatusClosed, false},
		{position.StatusActive, position.StatusClosed, true},
		{position.StatusActive, position.StatusLiquidated, true},
		{position.StatusActive, position.StatusFunded, false},
		{position.StatusClosed, position.StatusActive, false},
		{position.StatusLiquidated, position.StatusActive, false},
		{position.StatusClosed, position.StatusLiquidated, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.allowed {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	if position.StatusFunded.Terminal() || position.StatusActive.Terminal() {
		t.Error("Funded/Active must not be terminal")
	}
	if !position.StatusClosed.Terminal() || !position.StatusLiquidated.Terminal() {
		t.Error("Closed/Liquidated must be terminal")
	}
}

func TestManager_CreateGetRemove(t *testing.T) {
	m := position.NewManager()
	owner := uuid.New()
	now := time.Unix(1_700_000_000, 0)

	pos := m.Create(owner, "SOL", 2_000_000, now)
	if pos.Status != position.StatusFunded {
		t.Errorf("new position status: got %s, want Funded", pos.Status)
	}
	if pos.DebtAmount != 0 {
		t.Errorf("new position debt: got %d, want 0", pos.DebtAmount)
	}

	if got := m.Get(owner, "SOL"); got != pos {
		t.Error("Get should return the created position")
	}
	if got := m.Get(owner, "ETH"); got != nil {
		t.Error("Get for another asset should be nil")
	}

	m.Remove(owner, "SOL")
	if got := m.Get(owner, "SOL"); got != nil {
		t.Error("position should be gone after Remove")
	}
}

func TestManager_OnePositionPerOwnerAsset(t *testing.T) {
	m := position.NewManager()
	owner := uuid.New()
	now := time.Unix(1_700_000_000, 0)

	m.Create(owner, "SOL", 1, now)
	m.Create(owner, "ETH", 2, now)

	if len(m.ForOwner(owner)) != 2 {
		t.Errorf("owner should hold 2 positions, got %d", len(m.ForOwner(owner)))
	}
	if len(m.All()) != 2 {
		t.Errorf("All should return 2 positions, got %d", len(m.All()))
	}
}

func TestVault_CreditDebitDrain(t *testing.T) {
	v := position.NewVault()
	owner := uuid.New()

	if err := v.Credit(owner, "SOL", 500); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if v.Balance(owner, "SOL") != 500 {
		t.Errorf("balance: got %d, want 500", v.Balance(owner, "SOL"))
	}

	if err := v.Debit(owner, "SOL", 200); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if err := v.Debit(owner, "SOL", 301); err == nil {
		t.Error("over-debit should fail")
	}

	if got := v.Drain(owner, "SOL"); got != 300 {
		t.Errorf("drain: got %d, want 300", got)
	}
	if v.Balance(owner, "SOL") != 0 {
		t.Error("balance should be zero after drain")
	}
}

func TestVault_RejectsNonPositiveAmounts(t *testing.T) {
	v := position.NewVault()
	owner := uuid.New()

	if err := v.Credit(owner, "SOL", 0); err == nil {
		t.Error("zero credit should fail")
	}
	if err := v.Debit(owner, "SOL", -1); err == nil {
		t.Error("negative debit should fail")
	}
}
