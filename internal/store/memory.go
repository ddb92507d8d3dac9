package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridwatt/energy-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence). Each test gets
// its own isolated instance, including its own counters and market status.
type MemoryStore struct {
	mu         sync.RWMutex
	offers     map[uint64]*model.EnergyOffer
	trades     map[uint64]*model.EnergyTrade
	profiles   map[string]*model.UserProfile
	status     *model.MarketStatus
	offerCount uint64
	tradeCount uint64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		offers:   make(map[uint64]*model.EnergyOffer),
		trades:   make(map[uint64]*model.EnergyTrade),
		profiles: make(map[string]*model.UserProfile),
	}
}

func (s *MemoryStore) GetOffer(_ context.Context, offerID uint64) (*model.EnergyOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offers[offerID]
	if !ok {
		return nil, fmt.Errorf("offer %d: %w", offerID, ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) PutOffer(_ context.Context, offer *model.EnergyOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *offer
	s.offers[offer.OfferID] = &cp
	return nil
}

func (s *MemoryStore) GetTrade(_ context.Context, tradeID uint64) (*model.EnergyTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[tradeID]
	if !ok {
		return nil, fmt.Errorf("trade %d: %w", tradeID, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) PutTrade(_ context.Context, trade *model.EnergyTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *trade
	s.trades[trade.TradeID] = &cp
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, address string) (*model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[address]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", address, ErrNotFound)
	}
	cp := *p
	cp.ActiveOffers = append([]uint64(nil), p.ActiveOffers...)
	cp.TradeHistory = append([]uint64(nil), p.TradeHistory...)
	return &cp, nil
}

func (s *MemoryStore) PutProfile(_ context.Context, profile *model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *profile
	cp.ActiveOffers = append([]uint64(nil), profile.ActiveOffers...)
	cp.TradeHistory = append([]uint64(nil), profile.TradeHistory...)
	s.profiles[profile.Address] = &cp
	return nil
}

func (s *MemoryStore) GetMarketStatus(_ context.Context) (*model.MarketStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status == nil {
		return nil, fmt.Errorf("market status: %w", ErrNotFound)
	}
	cp := *s.status
	return &cp, nil
}

func (s *MemoryStore) PutMarketStatus(_ context.Context, status *model.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *status
	s.status = &cp
	return nil
}

func (s *MemoryStore) OfferCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offerCount, nil
}

func (s *MemoryStore) SetOfferCount(_ context.Context, count uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offerCount = count
	return nil
}

func (s *MemoryStore) TradeCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tradeCount, nil
}

func (s *MemoryStore) SetTradeCount(_ context.Context, count uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeCount = count
	return nil
}

// ExtendTTL is a no-op: memory has no expiry model.
func (s *MemoryStore) ExtendTTL(_ context.Context, _, _ time.Duration) error {
	return nil
}
