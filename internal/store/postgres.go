package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridwatt/energy-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Amounts and prices fit in BIGINT; ID lists are stored as BIGINT[].
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetOffer(ctx context.Context, offerID uint64) (*model.EnergyOffer, error) {
	var o model.EnergyOffer
	var id, amount, price, created, expires int64
	var energyType string

	err := s.pool.QueryRow(ctx,
		`SELECT offer_id, seller, energy_amount, price_per_unit, energy_type,
		        creation_time, expiration_time, is_active
		 FROM offers WHERE offer_id = $1`, int64(offerID)).
		Scan(&id, &o.Seller, &amount, &price, &energyType, &created, &expires, &o.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("offer %d: %w", offerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get offer %d: %w", offerID, err)
	}

	o.OfferID = uint64(id)
	o.EnergyAmount = uint64(amount)
	o.PricePerUnit = uint64(price)
	o.EnergyType = model.EnergyType(energyType)
	o.CreationTime = uint64(created)
	o.ExpirationTime = uint64(expires)
	return &o, nil
}

func (s *PostgresStore) PutOffer(ctx context.Context, o *model.EnergyOffer) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO offers (offer_id, seller, energy_amount, price_per_unit, energy_type,
		                     creation_time, expiration_time, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (offer_id) DO UPDATE
		 SET energy_amount = EXCLUDED.energy_amount,
		     is_active = EXCLUDED.is_active`,
		int64(o.OfferID), o.Seller, int64(o.EnergyAmount), int64(o.PricePerUnit),
		string(o.EnergyType), int64(o.CreationTime), int64(o.ExpirationTime), o.IsActive,
	)
	return err
}

func (s *PostgresStore) GetTrade(ctx context.Context, tradeID uint64) (*model.EnergyTrade, error) {
	var t model.EnergyTrade
	var id, offerID, amount, total, tradeTime int64
	var energyType string

	err := s.pool.QueryRow(ctx,
		`SELECT trade_id, offer_id, seller, buyer, energy_amount, total_price,
		        energy_type, trade_time
		 FROM trades WHERE trade_id = $1`, int64(tradeID)).
		Scan(&id, &offerID, &t.Seller, &t.Buyer, &amount, &total, &energyType, &tradeTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trade %d: %w", tradeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trade %d: %w", tradeID, err)
	}

	t.TradeID = uint64(id)
	t.OfferID = uint64(offerID)
	t.EnergyAmount = uint64(amount)
	t.TotalPrice = uint64(total)
	t.EnergyType = model.EnergyType(energyType)
	t.TradeTime = uint64(tradeTime)
	return &t, nil
}

func (s *PostgresStore) PutTrade(ctx context.Context, t *model.EnergyTrade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (trade_id, offer_id, seller, buyer, energy_amount,
		                     total_price, energy_type, trade_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		int64(t.TradeID), int64(t.OfferID), t.Seller, t.Buyer,
		int64(t.EnergyAmount), int64(t.TotalPrice), string(t.EnergyType), int64(t.TradeTime),
	)
	return err
}

func (s *PostgresStore) GetProfile(ctx context.Context, address string) (*model.UserProfile, error) {
	var p model.UserProfile
	var sold, bought, rep int64
	var activeOffers, tradeHistory []int64

	err := s.pool.QueryRow(ctx,
		`SELECT address, total_energy_sold, total_energy_bought, reputation_score,
		        active_offers, trade_history
		 FROM user_profiles WHERE address = $1`, address).
		Scan(&p.Address, &sold, &bought, &rep, &activeOffers, &tradeHistory)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", address, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", address, err)
	}

	p.TotalEnergySold = uint64(sold)
	p.TotalEnergyBought = uint64(bought)
	p.ReputationScore = uint64(rep)
	p.ActiveOffers = toUint64s(activeOffers)
	p.TradeHistory = toUint64s(tradeHistory)
	return &p, nil
}

func (s *PostgresStore) PutProfile(ctx context.Context, p *model.UserProfile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_profiles (address, total_energy_sold, total_energy_bought,
		                            reputation_score, active_offers, trade_history)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (address) DO UPDATE
		 SET total_energy_sold = EXCLUDED.total_energy_sold,
		     total_energy_bought = EXCLUDED.total_energy_bought,
		     reputation_score = EXCLUDED.reputation_score,
		     active_offers = EXCLUDED.active_offers,
		     trade_history = EXCLUDED.trade_history`,
		p.Address, int64(p.TotalEnergySold), int64(p.TotalEnergyBought),
		int64(p.ReputationScore), toInt64s(p.ActiveOffers), toInt64s(p.TradeHistory),
	)
	return err
}

func (s *PostgresStore) GetMarketStatus(ctx context.Context) (*model.MarketStatus, error) {
	var st model.MarketStatus
	var active, trades, traded, created int64

	err := s.pool.QueryRow(ctx,
		`SELECT active_offers, completed_trades, total_energy_traded, total_offers_created
		 FROM market_status WHERE singleton`).
		Scan(&active, &trades, &traded, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("market status: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get market status: %w", err)
	}

	st.ActiveOffers = uint64(active)
	st.CompletedTrades = uint64(trades)
	st.TotalEnergyTraded = uint64(traded)
	st.TotalOffersCreated = uint64(created)
	return &st, nil
}

func (s *PostgresStore) PutMarketStatus(ctx context.Context, st *model.MarketStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO market_status (singleton, active_offers, completed_trades,
		                            total_energy_traded, total_offers_created)
		 VALUES (TRUE, $1, $2, $3, $4)
		 ON CONFLICT (singleton) DO UPDATE
		 SET active_offers = EXCLUDED.active_offers,
		     completed_trades = EXCLUDED.completed_trades,
		     total_energy_traded = EXCLUDED.total_energy_traded,
		     total_offers_created = EXCLUDED.total_offers_created`,
		int64(st.ActiveOffers), int64(st.CompletedTrades),
		int64(st.TotalEnergyTraded), int64(st.TotalOffersCreated),
	)
	return err
}

func (s *PostgresStore) OfferCount(ctx context.Context) (uint64, error) {
	return s.counter(ctx, "offer_count")
}

func (s *PostgresStore) SetOfferCount(ctx context.Context, count uint64) error {
	return s.setCounter(ctx, "offer_count", count)
}

func (s *PostgresStore) TradeCount(ctx context.Context) (uint64, error) {
	return s.counter(ctx, "trade_count")
}

func (s *PostgresStore) SetTradeCount(ctx context.Context, count uint64) error {
	return s.setCounter(ctx, "trade_count", count)
}

// ExtendTTL is a no-op: rows never expire in PostgreSQL.
func (s *PostgresStore) ExtendTTL(_ context.Context, _, _ time.Duration) error {
	return nil
}

func (s *PostgresStore) counter(ctx context.Context, name string) (uint64, error) {
	var value int64
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM counters WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %s: %w", name, err)
	}
	return uint64(value), nil
}

func (s *PostgresStore) setCounter(ctx context.Context, name string, value uint64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO counters (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`,
		name, int64(value),
	)
	return err
}

func toInt64s(in []uint64) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func toUint64s(in []int64) []uint64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = uint64(v)
	}
	return out
}
