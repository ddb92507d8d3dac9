// Package model defines the core domain types shared across the energy
// trading engine. Energy amounts are whole kWh and prices are whole token
// units per kWh, so all ledger arithmetic stays in uint64.
package model

// EnergyOffer is a seller's standing proposal to sell energy at a fixed
// unit price until expiration. EnergyAmount is the remaining quantity and
// only decreases while the offer is active; IsActive=false is terminal.
type EnergyOffer struct {
	OfferID        uint64     `json:"offer_id" db:"offer_id"`
	Seller         string     `json:"seller" db:"seller"`
	EnergyAmount   uint64     `json:"energy_amount" db:"energy_amount"`     // kWh remaining
	PricePerUnit   uint64     `json:"price_per_unit" db:"price_per_unit"`   // token units per kWh
	EnergyType     EnergyType `json:"energy_type" db:"energy_type"`
	CreationTime   uint64     `json:"creation_time" db:"creation_time"`     // unix seconds
	ExpirationTime uint64     `json:"expiration_time" db:"expiration_time"` // unix seconds
	IsActive       bool       `json:"is_active" db:"is_active"`
}

// EnergyTrade is an immutable record of energy exchanged against an offer.
// Seller and EnergyType are snapshots of the offer at execution time; the
// referenced offer may since have gone inactive. Never modified or deleted.
type EnergyTrade struct {
	TradeID      uint64     `json:"trade_id" db:"trade_id"`
	OfferID      uint64     `json:"offer_id" db:"offer_id"`
	Seller       string     `json:"seller" db:"seller"`
	Buyer        string     `json:"buyer" db:"buyer"`
	EnergyAmount uint64     `json:"energy_amount" db:"energy_amount"`
	TotalPrice   uint64     `json:"total_price" db:"total_price"` // amount × offer price at execution
	EnergyType   EnergyType `json:"energy_type" db:"energy_type"`
	TradeTime    uint64     `json:"trade_time" db:"trade_time"`
}

// UserProfile holds per-identity aggregates. ActiveOffers and TradeHistory
// carry IDs only, never copies of the referenced records.
type UserProfile struct {
	Address           string   `json:"address" db:"address"`
	TotalEnergySold   uint64   `json:"total_energy_sold" db:"total_energy_sold"`
	TotalEnergyBought uint64   `json:"total_energy_bought" db:"total_energy_bought"`
	ReputationScore   uint64   `json:"reputation_score" db:"reputation_score"` // 0-100
	ActiveOffers      []uint64 `json:"active_offers" db:"active_offers"`
	TradeHistory      []uint64 `json:"trade_history" db:"trade_history"` // append-only
}

// DefaultReputation is assigned to profiles materialized on first reference.
const DefaultReputation = 50

// NewUserProfile returns the default profile for an identity that has never
// been written. Callers must not persist it until a mutating operation does.
func NewUserProfile(address string) *UserProfile {
	return &UserProfile{
		Address:         address,
		ReputationScore: DefaultReputation,
	}
}

// MarketStatus is the singleton set of global market counters, maintained
// as a side effect of offer and trade operations.
type MarketStatus struct {
	ActiveOffers       uint64 `json:"active_offers" db:"active_offers"`
	CompletedTrades    uint64 `json:"completed_trades" db:"completed_trades"`
	TotalEnergyTraded  uint64 `json:"total_energy_traded" db:"total_energy_traded"`
	TotalOffersCreated uint64 `json:"total_offers_created" db:"total_offers_created"` // monotonic
}
