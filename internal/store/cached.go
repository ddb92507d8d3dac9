package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gridwatt/energy-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the cache;
// reads check Redis first then fall back to the primary. Trades are
// immutable, so cached trade entries are never invalidated, only expired.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Offer book ---

func (s *CachedStore) GetOffer(ctx context.Context, offerID uint64) (*model.EnergyOffer, error) {
	data, err := s.rdb.Get(ctx, offerKey(offerID)).Bytes()
	if err == nil {
		var o model.EnergyOffer
		if json.Unmarshal(data, &o) == nil {
			return &o, nil
		}
	}

	o, err := s.primary.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, offerKey(offerID), o)
	return o, nil
}

func (s *CachedStore) PutOffer(ctx context.Context, o *model.EnergyOffer) error {
	if err := s.primary.PutOffer(ctx, o); err != nil {
		return err
	}
	s.cache(ctx, offerKey(o.OfferID), o)
	return nil
}

// --- Trade book ---

func (s *CachedStore) GetTrade(ctx context.Context, tradeID uint64) (*model.EnergyTrade, error) {
	data, err := s.rdb.Get(ctx, tradeKey(tradeID)).Bytes()
	if err == nil {
		var t model.EnergyTrade
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}

	t, err := s.primary.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, tradeKey(tradeID), t)
	return t, nil
}

func (s *CachedStore) PutTrade(ctx context.Context, t *model.EnergyTrade) error {
	if err := s.primary.PutTrade(ctx, t); err != nil {
		return err
	}
	s.cache(ctx, tradeKey(t.TradeID), t)
	return nil
}

// --- User book ---

func (s *CachedStore) GetProfile(ctx context.Context, address string) (*model.UserProfile, error) {
	data, err := s.rdb.Get(ctx, profileKey(address)).Bytes()
	if err == nil {
		var p model.UserProfile
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetProfile(ctx, address)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, profileKey(address), p)
	return p, nil
}

func (s *CachedStore) PutProfile(ctx context.Context, p *model.UserProfile) error {
	if err := s.primary.PutProfile(ctx, p); err != nil {
		return err
	}
	// Invalidate rather than refresh; next read re-populates.
	s.rdb.Del(ctx, profileKey(p.Address))
	return nil
}

// --- Singletons ---

func (s *CachedStore) GetMarketStatus(ctx context.Context) (*model.MarketStatus, error) {
	data, err := s.rdb.Get(ctx, statusKey).Bytes()
	if err == nil {
		var st model.MarketStatus
		if json.Unmarshal(data, &st) == nil {
			return &st, nil
		}
	}

	st, err := s.primary.GetMarketStatus(ctx)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, statusKey, st)
	return st, nil
}

func (s *CachedStore) PutMarketStatus(ctx context.Context, st *model.MarketStatus) error {
	if err := s.primary.PutMarketStatus(ctx, st); err != nil {
		return err
	}
	s.cache(ctx, statusKey, st)
	return nil
}

// Counters are read on every mutating call; passthrough keeps them exact.

func (s *CachedStore) OfferCount(ctx context.Context) (uint64, error) {
	return s.primary.OfferCount(ctx)
}

func (s *CachedStore) SetOfferCount(ctx context.Context, count uint64) error {
	return s.primary.SetOfferCount(ctx, count)
}

func (s *CachedStore) TradeCount(ctx context.Context) (uint64, error) {
	return s.primary.TradeCount(ctx)
}

func (s *CachedStore) SetTradeCount(ctx context.Context, count uint64) error {
	return s.primary.SetTradeCount(ctx, count)
}

// ExtendTTL refreshes the hot singleton cache entry and defers to the
// primary for backends that carry their own expiry model.
func (s *CachedStore) ExtendTTL(ctx context.Context, min, max time.Duration) error {
	ttl := max
	if ttl < min {
		ttl = min
	}
	s.rdb.Expire(ctx, statusKey, ttl)
	return s.primary.ExtendTTL(ctx, min, max)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const statusKey = "market:status"

func offerKey(id uint64) string    { return "offer:" + strconv.FormatUint(id, 10) }
func tradeKey(id uint64) string    { return "trade:" + strconv.FormatUint(id, 10) }
func profileKey(addr string) string { return fmt.Sprintf("profile:%s", addr) }
