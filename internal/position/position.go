package position

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotActive             = errors.New("position: not active")
	ErrStillActive           = errors.New("position: still active")
	ErrNotFound              = errors.New("position: not found")
	ErrInvalidCollateralType = errors.New("position: collateral asset mismatch")
	ErrAlreadyOpen           = errors.New("position: already open")
)

// Status is the leveraged-position lifecycle state.
// Uninitialized → (deposit) → Funded → (open) → Active → Closed/Liquidated.
type Status int32

const (
	StatusFunded Status = iota
	StatusActive
	StatusClosed
	StatusLiquidated
)

func (s Status) String() string {
	switch s {
	case StatusFunded:
		return "Funded"
	case StatusActive:
		return "Active"
	case StatusClosed:
		return "Closed"
	case StatusLiquidated:
		return "Liquidated"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the position can never become Active again.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusLiquidated
}

// CanTransitionTo validates lifecycle transitions.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusFunded:
		return next == StatusActive
	case StatusActive:
		return next == StatusClosed || next == StatusLiquidated
	default:
		return false
	}
}

// Position is one user's leveraged position, pinned to a single
// collateral asset for its lifetime. DebtAmount > 0 only while Active.
type Position struct {
	Owner            uuid.UUID
	Asset            string
	CollateralAmount int64
	DebtAmount       int64
	ExternalRef      *uuid.UUID // liquidity position held by the external protocol
	CreatedAt        time.Time
	Status           Status
	Version          int64
}

// IsActive reports whether the position holds an open external position.
func (p *Position) IsActive() bool {
	return p.Status == StatusActive
}

// Key identifies a position: one concurrent position per (owner, asset).
type Key struct {
	Owner uuid.UUID
	Asset string
}

// Manager is the in-memory position store. Access is serialized by the
// engine; the manager itself holds no locks.
type Manager struct {
	positions map[Key]*Position
}

func NewManager() *Manager {
	return &Manager{
		positions: make(map[Key]*Position),
	}
}

// Get returns the position for (owner, asset), or nil.
func (m *Manager) Get(owner uuid.UUID, asset string) *Position {
	return m.positions[Key{Owner: owner, Asset: asset}]
}

// Create records a new pre-open position with zero debt.
func (m *Manager) Create(owner uuid.UUID, asset string, collateral int64, now time.Time) *Position {
	pos := &Position{
		Owner:            owner,
		Asset:            asset,
		CollateralAmount: collateral,
		DebtAmount:       0,
		CreatedAt:        now,
		Status:           StatusFunded,
	}
	m.positions[Key{Owner: owner, Asset: asset}] = pos
	return pos
}

// Remove reclaims a position record after post-close collateral withdrawal.
func (m *Manager) Remove(owner uuid.UUID, asset string) {
	delete(m.positions, Key{Owner: owner, Asset: asset})
}

// All returns every tracked position.
func (m *Manager) All() []*Position {
	out := make([]*Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, pos)
	}
	return out
}

// ForOwner returns all positions held by one owner.
func (m *Manager) ForOwner(owner uuid.UUID) []*Position {
	out := make([]*Position, 0)
	for key, pos := range m.positions {
		if key.Owner == owner {
			out = append(out, pos)
		}
	}
	return out
}
