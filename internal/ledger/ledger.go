// Package ledger implements the marketplace state machine: offer lifecycle,
// trade settlement, per-user bookkeeping, and the global market counters.
//
// The ledger owns no I/O of its own. Persistence, authentication, and time
// arrive through the Store, Authorizer, and Clock interfaces, which keeps
// every transition deterministic under test. Payment settlement is out of
// scope: trades record the computed total price but move no value.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gridwatt/energy-engine/internal/model"
	"github.com/gridwatt/energy-engine/internal/store"
)

// Authorizer proves that the invoking request is authorized to act as the
// given identity. It returns ErrUnauthorized-compatible errors on failure
// and nothing on success.
type Authorizer interface {
	RequireAuth(ctx context.Context, identity string) error
}

// TTL refresh window passed to the store after every write sequence.
// Durable backends ignore it; expiring backends keep state alive this long.
const (
	ttlRefreshMin = 24 * time.Hour
	ttlRefreshMax = 24 * time.Hour
)

// Ledger executes marketplace transitions one at a time. A mutex serializes
// mutating operations so each read-modify-write sequence observes a
// consistent snapshot (single-instance; swap for database-level locking
// when scaling horizontally).
type Ledger struct {
	store store.Store
	clock Clock
	auth  Authorizer
	mu    sync.Mutex
}

// New creates a ledger over the given collaborators.
func New(st store.Store, clock Clock, auth Authorizer) *Ledger {
	return &Ledger{
		store: st,
		clock: clock,
		auth:  auth,
	}
}

// CreateOffer lists a new energy offer for seller and returns its ID.
// Offer IDs are strictly monotonic starting at 1 and never reused.
//
// Amount, price, and validity are deliberately not validated for
// positivity; zero-valued offers are accepted as-is (known permissiveness,
// kept until the market owner tightens it).
func (l *Ledger) CreateOffer(ctx context.Context, seller string, energyAmount, pricePerUnit uint64, energyType model.EnergyType, validFor uint64) (uint64, error) {
	if err := l.auth.RequireAuth(ctx, seller); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	offerCount, err := l.store.OfferCount(ctx)
	if err != nil {
		return 0, err
	}
	offerCount++

	now := l.clock.Now()
	offer := &model.EnergyOffer{
		OfferID:        offerCount,
		Seller:         seller,
		EnergyAmount:   energyAmount,
		PricePerUnit:   pricePerUnit,
		EnergyType:     energyType,
		CreationTime:   now,
		ExpirationTime: now + validFor,
		IsActive:       true,
	}

	status, err := l.marketStatus(ctx)
	if err != nil {
		return 0, err
	}
	status.ActiveOffers++
	status.TotalOffersCreated++

	profile, err := l.profile(ctx, seller)
	if err != nil {
		return 0, err
	}
	profile.ActiveOffers = append(profile.ActiveOffers, offerCount)

	if err := l.commit(ctx,
		func() error { return l.store.PutOffer(ctx, offer) },
		func() error { return l.store.PutMarketStatus(ctx, status) },
		func() error { return l.store.PutProfile(ctx, profile) },
		func() error { return l.store.SetOfferCount(ctx, offerCount) },
	); err != nil {
		return 0, err
	}

	slog.Info("energy offer created",
		"offer_id", offerCount,
		"seller", seller,
		"amount_kwh", energyAmount,
		"price_per_unit", pricePerUnit,
		"energy_type", energyType,
		"expires_at", offer.ExpirationTime,
	)
	return offerCount, nil
}

// ExecuteTrade buys energyAmount from the given offer on behalf of buyer
// and returns the new trade ID. A full fill deactivates the offer and
// removes it from the seller's active set; a partial fill only reduces the
// remaining amount.
//
// Self-trades and zero-amount trades are permitted. Replaying the same call
// mints a new trade: deduplication is the caller's concern.
func (l *Ledger) ExecuteTrade(ctx context.Context, buyer string, offerID, energyAmount uint64) (uint64, error) {
	if err := l.auth.RequireAuth(ctx, buyer); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	offer, err := l.store.GetOffer(ctx, offerID)
	if err != nil {
		return 0, notFoundOr(err, "offer %d", offerID)
	}

	if !offer.IsActive {
		slog.Warn("trade rejected: offer inactive", "offer_id", offerID, "buyer", buyer)
		return 0, fmt.Errorf("%w: offer %d", ErrOfferInactive, offerID)
	}
	now := l.clock.Now()
	if now > offer.ExpirationTime {
		slog.Warn("trade rejected: offer expired", "offer_id", offerID, "buyer", buyer, "expired_at", offer.ExpirationTime)
		return 0, fmt.Errorf("%w: offer %d expired at %d", ErrOfferExpired, offerID, offer.ExpirationTime)
	}
	if energyAmount > offer.EnergyAmount {
		slog.Warn("trade rejected: insufficient energy", "offer_id", offerID, "requested", energyAmount, "available", offer.EnergyAmount)
		return 0, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientEnergy, energyAmount, offer.EnergyAmount)
	}

	totalPrice := energyAmount * offer.PricePerUnit

	status, err := l.marketStatus(ctx)
	if err != nil {
		return 0, err
	}

	sellerProfile, err := l.profile(ctx, offer.Seller)
	if err != nil {
		return 0, err
	}

	fullFill := energyAmount == offer.EnergyAmount
	if fullFill {
		offer.IsActive = false
		status.ActiveOffers--
		sellerProfile.ActiveOffers = removeID(sellerProfile.ActiveOffers, offerID)
	} else {
		offer.EnergyAmount -= energyAmount
	}

	tradeCount, err := l.store.TradeCount(ctx)
	if err != nil {
		return 0, err
	}
	tradeCount++

	trade := &model.EnergyTrade{
		TradeID:      tradeCount,
		OfferID:      offerID,
		Seller:       offer.Seller,
		Buyer:        buyer,
		EnergyAmount: energyAmount,
		TotalPrice:   totalPrice,
		EnergyType:   offer.EnergyType,
		TradeTime:    now,
	}

	status.CompletedTrades++
	status.TotalEnergyTraded += energyAmount

	sellerProfile.TotalEnergySold += energyAmount
	sellerProfile.TradeHistory = append(sellerProfile.TradeHistory, tradeCount)

	// A self-trade settles against the one profile: both totals move and
	// the trade appears once in the history.
	buyerProfile := sellerProfile
	if buyer != offer.Seller {
		buyerProfile, err = l.profile(ctx, buyer)
		if err != nil {
			return 0, err
		}
		buyerProfile.TradeHistory = append(buyerProfile.TradeHistory, tradeCount)
	}
	buyerProfile.TotalEnergyBought += energyAmount

	writes := []func() error{
		func() error { return l.store.PutOffer(ctx, offer) },
		func() error { return l.store.PutTrade(ctx, trade) },
		func() error { return l.store.PutMarketStatus(ctx, status) },
		func() error { return l.store.PutProfile(ctx, sellerProfile) },
		func() error { return l.store.SetTradeCount(ctx, tradeCount) },
	}
	if buyerProfile != sellerProfile {
		writes = append(writes, func() error { return l.store.PutProfile(ctx, buyerProfile) })
	}
	if err := l.commit(ctx, writes...); err != nil {
		return 0, err
	}

	slog.Info("trade executed",
		"trade_id", tradeCount,
		"offer_id", offerID,
		"buyer", buyer,
		"seller", offer.Seller,
		"amount_kwh", energyAmount,
		"total_price", totalPrice,
		"full_fill", fullFill,
	)
	return tradeCount, nil
}

// CancelOffer deactivates an active offer owned by seller. Irreversible.
func (l *Ledger) CancelOffer(ctx context.Context, seller string, offerID uint64) error {
	if err := l.auth.RequireAuth(ctx, seller); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	offer, err := l.store.GetOffer(ctx, offerID)
	if err != nil {
		return notFoundOr(err, "offer %d", offerID)
	}

	if offer.Seller != seller {
		slog.Warn("cancel rejected: not the seller", "offer_id", offerID, "caller", seller)
		return fmt.Errorf("%w: only the seller can cancel offer %d", ErrUnauthorized, offerID)
	}
	if !offer.IsActive {
		return fmt.Errorf("%w: offer %d", ErrAlreadyInactive, offerID)
	}

	offer.IsActive = false

	status, err := l.marketStatus(ctx)
	if err != nil {
		return err
	}
	status.ActiveOffers--

	profile, err := l.profile(ctx, seller)
	if err != nil {
		return err
	}
	profile.ActiveOffers = removeID(profile.ActiveOffers, offerID)

	if err := l.commit(ctx,
		func() error { return l.store.PutOffer(ctx, offer) },
		func() error { return l.store.PutMarketStatus(ctx, status) },
		func() error { return l.store.PutProfile(ctx, profile) },
	); err != nil {
		return err
	}

	slog.Info("offer cancelled", "offer_id", offerID, "seller", seller)
	return nil
}

// UpdateReputation overwrites user's reputation score. Any authenticated
// identity may call this; there is no admin role at this layer (documented
// simplification inherited from the market's governance model).
func (l *Ledger) UpdateReputation(ctx context.Context, admin, user string, newScore uint64) error {
	if err := l.auth.RequireAuth(ctx, admin); err != nil {
		return err
	}

	if newScore > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidScore, newScore)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	profile, err := l.profile(ctx, user)
	if err != nil {
		return err
	}
	profile.ReputationScore = newScore

	if err := l.commit(ctx,
		func() error { return l.store.PutProfile(ctx, profile) },
	); err != nil {
		return err
	}

	slog.Info("reputation updated", "user", user, "score", newScore, "by", admin)
	return nil
}

// GetOffer returns the offer with the given ID, or ErrNotFound.
func (l *Ledger) GetOffer(ctx context.Context, offerID uint64) (*model.EnergyOffer, error) {
	offer, err := l.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, notFoundOr(err, "offer %d", offerID)
	}
	return offer, nil
}

// GetTrade returns the trade with the given ID, or ErrNotFound.
func (l *Ledger) GetTrade(ctx context.Context, tradeID uint64) (*model.EnergyTrade, error) {
	trade, err := l.store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, notFoundOr(err, "trade %d", tradeID)
	}
	return trade, nil
}

// GetUserProfile returns the stored profile for address, or a freshly
// materialized default (reputation 50, empty books). The default is not
// persisted; only mutating operations write profiles back.
func (l *Ledger) GetUserProfile(ctx context.Context, address string) (*model.UserProfile, error) {
	return l.profile(ctx, address)
}

// GetMarketStatus returns the global counters, zeroed if the market has
// never seen a write.
func (l *Ledger) GetMarketStatus(ctx context.Context) (*model.MarketStatus, error) {
	return l.marketStatus(ctx)
}

// GetActiveOffers returns the IDs of all currently active offers in
// ascending ID order.
func (l *Ledger) GetActiveOffers(ctx context.Context) ([]uint64, error) {
	return l.scanOffers(ctx, func(o *model.EnergyOffer) bool {
		return o.IsActive
	})
}

// GetOffersByType returns the IDs of active offers with the given energy
// type, in ascending ID order.
func (l *Ledger) GetOffersByType(ctx context.Context, energyType model.EnergyType) ([]uint64, error) {
	return l.scanOffers(ctx, func(o *model.EnergyOffer) bool {
		return o.IsActive && o.EnergyType == energyType
	})
}

// scanOffers walks IDs 1..offerCount and collects those matching keep.
// Linear, but offer counts at this market's scale keep it cheap; an
// incremental active-ID index is the upgrade path if that changes.
func (l *Ledger) scanOffers(ctx context.Context, keep func(*model.EnergyOffer) bool) ([]uint64, error) {
	count, err := l.store.OfferCount(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0)
	for id := uint64(1); id <= count; id++ {
		offer, err := l.store.GetOffer(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if keep(offer) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// profile loads a stored profile or materializes the default in memory.
func (l *Ledger) profile(ctx context.Context, address string) (*model.UserProfile, error) {
	p, err := l.store.GetProfile(ctx, address)
	if err != nil {
		if isNotFound(err) {
			return model.NewUserProfile(address), nil
		}
		return nil, err
	}
	return p, nil
}

// marketStatus loads the singleton or returns zeroed defaults.
func (l *Ledger) marketStatus(ctx context.Context) (*model.MarketStatus, error) {
	st, err := l.store.GetMarketStatus(ctx)
	if err != nil {
		if isNotFound(err) {
			return &model.MarketStatus{}, nil
		}
		return nil, err
	}
	return st, nil
}

// commit runs the staged writes in order, then refreshes storage TTLs.
// All validation happens before the first write, so a failure here is an
// infrastructure fault, not a rejected transition.
func (l *Ledger) commit(ctx context.Context, writes ...func() error) error {
	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}
	if err := l.store.ExtendTTL(ctx, ttlRefreshMin, ttlRefreshMax); err != nil {
		slog.Warn("ttl refresh failed", "err", err)
	}
	return nil
}

func removeID(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func notFoundOr(err error, format string, args ...any) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
	}
	return err
}
