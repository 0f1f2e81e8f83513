package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNoFeed = errors.New("oracle: no feed for asset")

// Quote is one oracle observation. Price carries PriceScale decimals.
// Staleness is judged by the consumer against the per-asset max age.
type Quote struct {
	Price     int64
	Timestamp time.Time
}

// PriceSource is the oracle capability the engine consumes.
type PriceSource interface {
	Price(ctx context.Context, asset string) (Quote, error)
}

// Settable is an in-memory price source for dev mode and tests, in place
// of a real feed integration. Safe for concurrent use: the price updater
// runs outside the engine's serialization boundary.
type Settable struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewSettable() *Settable {
	return &Settable{
		quotes: make(map[string]Quote),
	}
}

// Set records a quote for an asset.
func (s *Settable) Set(asset string, price int64, timestamp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[asset] = Quote{Price: price, Timestamp: timestamp}
}

func (s *Settable) Price(_ context.Context, asset string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[asset]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoFeed, asset)
	}
	return q, nil
}
