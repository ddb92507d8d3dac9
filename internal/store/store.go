// Package store defines the persistence interface for the energy trading
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
//
// The key space mirrors the ledger's books: offers by offer ID, trades by
// trade ID, profiles by identity, plus three singletons (market status and
// the two ID counters). Each entity kind lives in its own namespace.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gridwatt/energy-engine/internal/model"
)

// ErrNotFound is returned by Get* methods when no record exists for the
// given key. Callers distinguish it from transport failures via errors.Is.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface consumed by the ledger. All writes
// within one ledger operation happen under the ledger's serialization, so
// implementations only need per-call consistency, not cross-method
// transactions.
type Store interface {
	// --- Offer book ---

	// GetOffer retrieves an offer by ID, or ErrNotFound.
	GetOffer(ctx context.Context, offerID uint64) (*model.EnergyOffer, error)

	// PutOffer inserts or replaces an offer.
	PutOffer(ctx context.Context, offer *model.EnergyOffer) error

	// --- Trade book (append-only) ---

	// GetTrade retrieves a trade by ID, or ErrNotFound.
	GetTrade(ctx context.Context, tradeID uint64) (*model.EnergyTrade, error)

	// PutTrade appends an immutable trade record.
	PutTrade(ctx context.Context, trade *model.EnergyTrade) error

	// --- User book ---

	// GetProfile retrieves a profile by identity, or ErrNotFound.
	// The ledger materializes defaults itself; stores never fabricate them.
	GetProfile(ctx context.Context, address string) (*model.UserProfile, error)

	// PutProfile inserts or replaces a profile.
	PutProfile(ctx context.Context, profile *model.UserProfile) error

	// --- Singletons ---

	// GetMarketStatus returns the global counters, or ErrNotFound if the
	// market has never been written.
	GetMarketStatus(ctx context.Context) (*model.MarketStatus, error)

	// PutMarketStatus replaces the global counters.
	PutMarketStatus(ctx context.Context, status *model.MarketStatus) error

	// OfferCount returns the highest issued offer ID (0 if none).
	OfferCount(ctx context.Context) (uint64, error)

	// SetOfferCount records the highest issued offer ID.
	SetOfferCount(ctx context.Context, count uint64) error

	// TradeCount returns the highest issued trade ID (0 if none).
	TradeCount(ctx context.Context) (uint64, error)

	// SetTradeCount records the highest issued trade ID.
	SetTradeCount(ctx context.Context, count uint64) error

	// ExtendTTL refreshes the lifetime of stored state in backends with an
	// expiry model. The ledger calls it after every write sequence; durable
	// backends treat it as a no-op.
	ExtendTTL(ctx context.Context, min, max time.Duration) error
}
