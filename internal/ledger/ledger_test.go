package ledger_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatt/energy-engine/internal/ledger"
	"github.com/gridwatt/energy-engine/internal/model"
	"github.com/gridwatt/energy-engine/internal/store"
)

// fakeClock returns a settable timestamp so expiry can be stepped over.
type fakeClock struct {
	now uint64
}

func (c *fakeClock) Now() uint64 { return c.now }

// allowAll authorizes every identity; handler-level auth is tested in the
// market package.
type allowAll struct{}

func (allowAll) RequireAuth(context.Context, string) error { return nil }

// denyAll rejects every identity.
type denyAll struct{}

func (denyAll) RequireAuth(_ context.Context, identity string) error {
	return fmt.Errorf("%w: %s", ledger.ErrUnauthorized, identity)
}

func newTestLedger(t *testing.T) (*ledger.Ledger, *store.MemoryStore, *fakeClock) {
	t.Helper()
	ms := store.NewMemoryStore()
	clock := &fakeClock{}
	return ledger.New(ms, clock, allowAll{}), ms, clock
}

func TestCreateOffer_AssignsMonotonicIDs(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	for want := uint64(1); want <= 5; want++ {
		id, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestCreateOffer_UpdatesMarketAndProfile(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()
	clock.now = 42

	id, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergyWind, 1000)
	require.NoError(t, err)

	offer, err := l.GetOffer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", offer.Seller)
	assert.Equal(t, uint64(100), offer.EnergyAmount)
	assert.Equal(t, uint64(42), offer.CreationTime)
	assert.Equal(t, uint64(1042), offer.ExpirationTime)
	assert.True(t, offer.IsActive)

	status, err := l.GetMarketStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.ActiveOffers)
	assert.Equal(t, uint64(1), status.TotalOffersCreated)

	profile, err := l.GetUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{id}, profile.ActiveOffers)
}

func TestCreateOffer_PermitsZeroValues(t *testing.T) {
	// Positivity is deliberately unvalidated; a zero-amount offer lists.
	l, _, _ := newTestLedger(t)

	id, err := l.CreateOffer(context.Background(), "alice", 0, 0, model.EnergyOther, 0)
	require.NoError(t, err)

	offer, err := l.GetOffer(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, offer.IsActive)
	assert.Zero(t, offer.EnergyAmount)
}

// The worked scenario: create(100 kWh @ 2) at t=0, buy 40 at t=500, buy the
// remaining 60 at t=600.
func TestExecuteTrade_PartialThenFullFill(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	clock.now = 0
	offerID, err := l.CreateOffer(ctx, "A", 100, 2, model.EnergySolar, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1), offerID)

	offer, err := l.GetOffer(ctx, offerID)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), offer.ExpirationTime)

	clock.now = 500
	tradeID, err := l.ExecuteTrade(ctx, "B", offerID, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tradeID)

	trade, err := l.GetTrade(ctx, tradeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), trade.TotalPrice)
	assert.Equal(t, uint64(500), trade.TradeTime)
	assert.Equal(t, model.EnergySolar, trade.EnergyType)

	offer, err = l.GetOffer(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), offer.EnergyAmount)
	assert.True(t, offer.IsActive)

	status, err := l.GetMarketStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), status.TotalEnergyTraded)
	assert.Equal(t, uint64(1), status.ActiveOffers)

	clock.now = 600
	tradeID, err = l.ExecuteTrade(ctx, "C", offerID, 60)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tradeID)

	offer, err = l.GetOffer(ctx, offerID)
	require.NoError(t, err)
	assert.False(t, offer.IsActive)

	status, err = l.GetMarketStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), status.ActiveOffers)
	assert.Equal(t, uint64(2), status.CompletedTrades)
	assert.Equal(t, uint64(100), status.TotalEnergyTraded)
}

func TestExecuteTrade_FullFillUpdatesSellerActiveSet(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	offerID, err := l.CreateOffer(ctx, "alice", 50, 3, model.EnergyHydro, 1000)
	require.NoError(t, err)

	_, err = l.ExecuteTrade(ctx, "bob", offerID, 50)
	require.NoError(t, err)

	seller, err := l.GetUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, seller.ActiveOffers)
	assert.Equal(t, uint64(50), seller.TotalEnergySold)
	assert.Equal(t, []uint64{1}, seller.TradeHistory)

	buyer, err := l.GetUserProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), buyer.TotalEnergyBought)
	assert.Equal(t, []uint64{1}, buyer.TradeHistory)
}

func TestExecuteTrade_Expired(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	clock.now = 0
	offerID, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 100)
	require.NoError(t, err)

	// Exactly at expiration is still tradeable.
	clock.now = 100
	_, err = l.ExecuteTrade(ctx, "bob", offerID, 10)
	require.NoError(t, err)

	clock.now = 101
	_, err = l.ExecuteTrade(ctx, "bob", offerID, 10)
	require.ErrorIs(t, err, ledger.ErrOfferExpired)

	// Expiry rejection happens even though the offer is still active.
	offer, err := l.GetOffer(ctx, offerID)
	require.NoError(t, err)
	assert.True(t, offer.IsActive)
}

func TestExecuteTrade_InactiveOffer(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	offerID, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
	require.NoError(t, err)
	require.NoError(t, l.CancelOffer(ctx, "alice", offerID))

	_, err = l.ExecuteTrade(ctx, "bob", offerID, 10)
	require.ErrorIs(t, err, ledger.ErrOfferInactive)
}

func TestExecuteTrade_InsufficientEnergy(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	offerID, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
	require.NoError(t, err)

	_, err = l.ExecuteTrade(ctx, "bob", offerID, 101)
	require.ErrorIs(t, err, ledger.ErrInsufficientEnergy)

	// Nothing was committed.
	status, err := l.GetMarketStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.CompletedTrades)
	offer, err := l.GetOffer(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), offer.EnergyAmount)
}

func TestExecuteTrade_OfferNotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.ExecuteTrade(context.Background(), "bob", 99, 10)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestExecuteTrade_ZeroAmountPermitted(t *testing.T) {
	// Zero-amount trades are allowed; they mint a trade and move nothing.
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	offerID, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
	require.NoError(t, err)

	tradeID, err := l.ExecuteTrade(ctx, "bob", offerID, 0)
	require.NoError(t, err)

	trade, err := l.GetTrade(ctx, tradeID)
	require.NoError(t, err)
	assert.Zero(t, trade.TotalPrice)

	offer, err := l.GetOffer(ctx, offerID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), offer.EnergyAmount)
	assert.True(t, offer.IsActive)
}

func TestExecuteTrade_SelfTrade(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	offerID, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
	require.NoError(t, err)

	tradeID, err := l.ExecuteTrade(ctx, "alice", offerID, 30)
	require.NoError(t, err)

	profile, err := l.GetUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(30), profile.TotalEnergySold)
	assert.Equal(t, uint64(30), profile.TotalEnergyBought)
	assert.Equal(t, []uint64{tradeID}, profile.TradeHistory)
}

func TestCancelOffer(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	offerID, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
	require.NoError(t, err)

	require.NoError(t, l.CancelOffer(ctx, "alice", offerID))

	offer, err := l.GetOffer(ctx, offerID)
	require.NoError(t, err)
	assert.False(t, offer.IsActive)

	status, err := l.GetMarketStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.ActiveOffers)

	profile, err := l.GetUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, profile.ActiveOffers)
}

func TestCancelOffer_TwiceFailsAlreadyInactive(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	offerID, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
	require.NoError(t, err)

	require.NoError(t, l.CancelOffer(ctx, "alice", offerID))
	err = l.CancelOffer(ctx, "alice", offerID)
	require.ErrorIs(t, err, ledger.ErrAlreadyInactive)
}

func TestCancelOffer_NotFound(t *testing.T) {
	l, _, _ := newTestLedger(t)

	err := l.CancelOffer(context.Background(), "alice", 7)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCancelOffer_WrongSeller(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	offerID, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
	require.NoError(t, err)

	err = l.CancelOffer(ctx, "mallory", offerID)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	offer, err := l.GetOffer(ctx, offerID)
	require.NoError(t, err)
	assert.True(t, offer.IsActive)
}

func TestUpdateReputation_Bounds(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	err := l.UpdateReputation(ctx, "admin", "alice", 101)
	require.ErrorIs(t, err, ledger.ErrInvalidScore)

	require.NoError(t, l.UpdateReputation(ctx, "admin", "alice", 0))
	profile, err := l.GetUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, profile.ReputationScore)

	require.NoError(t, l.UpdateReputation(ctx, "admin", "alice", 100))
	profile, err = l.GetUserProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), profile.ReputationScore)
}

func TestGetUserProfile_DefaultIsNotPersisted(t *testing.T) {
	l, ms, _ := newTestLedger(t)
	ctx := context.Background()

	profile, err := l.GetUserProfile(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, uint64(model.DefaultReputation), profile.ReputationScore)
	assert.Empty(t, profile.ActiveOffers)
	assert.Empty(t, profile.TradeHistory)

	// The read must not have written anything back.
	_, err = ms.GetProfile(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetMarketStatus_ZeroDefault(t *testing.T) {
	l, _, _ := newTestLedger(t)

	status, err := l.GetMarketStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &model.MarketStatus{}, status)
}

func TestGetActiveOffers_OrderingAndFilters(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateOffer(ctx, "alice", 10, 1, model.EnergySolar, 1000)
	require.NoError(t, err)
	windID, err := l.CreateOffer(ctx, "bob", 20, 1, model.EnergyWind, 1000)
	require.NoError(t, err)
	_, err = l.CreateOffer(ctx, "alice", 30, 1, model.EnergySolar, 1000)
	require.NoError(t, err)

	require.NoError(t, l.CancelOffer(ctx, "bob", windID))

	active, err := l.GetActiveOffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, active)

	solar, err := l.GetOffersByType(ctx, model.EnergySolar)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, solar)

	wind, err := l.GetOffersByType(ctx, model.EnergyWind)
	require.NoError(t, err)
	assert.Empty(t, wind)
}

// active_offers must always equal the live count of active offers, and IDs
// are never reused, across an arbitrary operation sequence.
func TestMarketStatusInvariants(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	id1, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
	require.NoError(t, err)
	id2, err := l.CreateOffer(ctx, "bob", 50, 4, model.EnergyWind, 1000)
	require.NoError(t, err)

	require.NoError(t, l.CancelOffer(ctx, "alice", id1))
	_, err = l.ExecuteTrade(ctx, "carol", id2, 50) // full fill
	require.NoError(t, err)

	id3, err := l.CreateOffer(ctx, "alice", 10, 1, model.EnergyBiomass, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id3, "cancelled IDs must not be reused")

	status, err := l.GetMarketStatus(ctx)
	require.NoError(t, err)

	active, err := l.GetActiveOffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(active)), status.ActiveOffers)
	assert.Equal(t, uint64(3), status.TotalOffersCreated)
	assert.Equal(t, uint64(1), status.CompletedTrades)
	assert.Equal(t, uint64(50), status.TotalEnergyTraded)
}

func TestUnauthorizedCallerIsRejected(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New(ms, &fakeClock{}, denyAll{})
	ctx := context.Background()

	_, err := l.CreateOffer(ctx, "alice", 100, 2, model.EnergySolar, 1000)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = l.ExecuteTrade(ctx, "bob", 1, 10)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = l.CancelOffer(ctx, "alice", 1)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = l.UpdateReputation(ctx, "admin", "alice", 10)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	// Reads require no authentication.
	_, err = l.GetMarketStatus(ctx)
	require.NoError(t, err)
}
