// Package market provides the HTTP handlers for the energy trading engine:
// offer listing and cancellation, trade execution, profile and market
// queries. Handlers translate between JSON and the ledger core and map
// ledger errors onto HTTP status codes.
package market

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/gridwatt/energy-engine/internal/auth"
	"github.com/gridwatt/energy-engine/internal/ledger"
	"github.com/gridwatt/energy-engine/internal/metrics"
	"github.com/gridwatt/energy-engine/internal/model"
)

// Service exposes the ledger over HTTP.
type Service struct {
	ledger *ledger.Ledger
	tokens *auth.TokenService
	wsHub  *WSHub // optional hub for real-time broadcasts
}

// NewService creates a new market service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(l *ledger.Ledger, tokens *auth.TokenService, hub *WSHub) *Service {
	return &Service{
		ledger: l,
		tokens: tokens,
		wsHub:  hub,
	}
}

// --- Request/Response types ---

// CreateOfferRequest is the JSON body for POST /offers.
type CreateOfferRequest struct {
	Seller       string `json:"seller"`
	EnergyAmount uint64 `json:"energy_amount"`  // kWh
	PricePerUnit uint64 `json:"price_per_unit"` // token units per kWh
	EnergyType   string `json:"energy_type"`    // solar|wind|hydro|biomass|other
	ValidFor     uint64 `json:"valid_for"`      // seconds
}

// TradeExecRequest is the JSON body for POST /trades.
type TradeExecRequest struct {
	Buyer        string `json:"buyer"`
	OfferID      uint64 `json:"offer_id"`
	EnergyAmount uint64 `json:"energy_amount"`
}

// ReputationRequest is the JSON body for PUT /users/{address}/reputation.
type ReputationRequest struct {
	Score uint64 `json:"score"`
}

// TokenRequest is the JSON body for POST /auth/token.
type TokenRequest struct {
	Identity string `json:"identity"`
}

// Summary is the derived market overview returned by GET /market/summary.
type Summary struct {
	CompletedTrades   uint64            `json:"completed_trades"`
	TotalEnergyTraded uint64            `json:"total_energy_traded"` // kWh
	TotalNotional     uint64            `json:"total_notional"`      // token units
	AveragePrice      decimal.Decimal   `json:"average_price"`      // volume-weighted, per kWh
	VolumeByType      map[string]uint64 `json:"volume_by_type"`     // kWh per energy type
}

// --- Offer handlers ---

// CreateOffer handles POST /api/v1/offers.
func (s *Service) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Seller == "" {
		writeError(w, "seller is required", http.StatusBadRequest)
		return
	}
	energyType, err := model.ParseEnergyType(req.EnergyType)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	offerID, err := s.ledger.CreateOffer(ctx, req.Seller, req.EnergyAmount, req.PricePerUnit, energyType, req.ValidFor)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	metrics.OffersCreated.WithLabelValues(energyType.String()).Inc()
	s.refreshActiveOffersGauge(r)

	offer, err := s.ledger.GetOffer(ctx, offerID)
	if err != nil {
		writeError(w, "offer created but could not be read back", http.StatusInternalServerError)
		return
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         "offer_created",
			OfferID:      offerID,
			Seller:       offer.Seller,
			EnergyAmount: offer.EnergyAmount,
			PricePerUnit: offer.PricePerUnit,
			EnergyType:   offer.EnergyType.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(offer)
}

// GetOffer handles GET /api/v1/offers/{offerID}.
func (s *Service) GetOffer(w http.ResponseWriter, r *http.Request) {
	offerID, ok := parseID(w, r, "offerID")
	if !ok {
		return
	}

	offer, err := s.ledger.GetOffer(r.Context(), offerID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(offer)
}

// ListOffers handles GET /api/v1/offers.
// Returns active offer IDs in ascending order, optionally filtered by
// ?type=<energy type>.
func (s *Service) ListOffers(w http.ResponseWriter, r *http.Request) {
	var ids []uint64
	var err error

	if typeParam := r.URL.Query().Get("type"); typeParam != "" {
		energyType, parseErr := model.ParseEnergyType(typeParam)
		if parseErr != nil {
			writeError(w, parseErr.Error(), http.StatusBadRequest)
			return
		}
		ids, err = s.ledger.GetOffersByType(r.Context(), energyType)
	} else {
		ids, err = s.ledger.GetActiveOffers(r.Context())
	}
	if err != nil {
		writeError(w, "failed to list offers", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]uint64{"offer_ids": ids})
}

// CancelOffer handles DELETE /api/v1/offers/{offerID}.
// The authenticated identity is the acting seller.
func (s *Service) CancelOffer(w http.ResponseWriter, r *http.Request) {
	offerID, ok := parseID(w, r, "offerID")
	if !ok {
		return
	}

	seller, ok := auth.Identity(r.Context())
	if !ok {
		writeError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := s.ledger.CancelOffer(r.Context(), seller, offerID); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	metrics.OffersCancelled.Inc()
	s.refreshActiveOffersGauge(r)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "offer_cancelled",
			OfferID: offerID,
			Seller:  seller,
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Trade handlers ---

// ExecuteTrade handles POST /api/v1/trades.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Buyer == "" {
		writeError(w, "buyer is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tradeID, err := s.ledger.ExecuteTrade(ctx, req.Buyer, req.OfferID, req.EnergyAmount)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	trade, err := s.ledger.GetTrade(ctx, tradeID)
	if err != nil {
		writeError(w, "trade recorded but could not be read back", http.StatusInternalServerError)
		return
	}

	metrics.TradesTotal.WithLabelValues(trade.EnergyType.String()).Inc()
	metrics.EnergyTraded.WithLabelValues(trade.EnergyType.String()).Add(float64(trade.EnergyAmount))
	s.refreshActiveOffersGauge(r)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:         "trade_executed",
			TradeID:      tradeID,
			OfferID:      trade.OfferID,
			Seller:       trade.Seller,
			Buyer:        trade.Buyer,
			EnergyAmount: trade.EnergyAmount,
			TotalPrice:   trade.TotalPrice,
			EnergyType:   trade.EnergyType.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trade)
}

// GetTrade handles GET /api/v1/trades/{tradeID}.
func (s *Service) GetTrade(w http.ResponseWriter, r *http.Request) {
	tradeID, ok := parseID(w, r, "tradeID")
	if !ok {
		return
	}

	trade, err := s.ledger.GetTrade(r.Context(), tradeID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trade)
}

// --- User handlers ---

// GetUserProfile handles GET /api/v1/users/{address}.
func (s *Service) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	profile, err := s.ledger.GetUserProfile(r.Context(), address)
	if err != nil {
		writeError(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	if profile.ActiveOffers == nil {
		profile.ActiveOffers = []uint64{}
	}
	if profile.TradeHistory == nil {
		profile.TradeHistory = []uint64{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

// UpdateReputation handles PUT /api/v1/users/{address}/reputation.
// The authenticated identity is the acting caller; any authenticated
// identity may set any user's score.
func (s *Service) UpdateReputation(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	caller, ok := auth.Identity(r.Context())
	if !ok {
		writeError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req ReputationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ledger.UpdateReputation(r.Context(), caller, address, req.Score); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Market handlers ---

// GetMarketStatus handles GET /api/v1/market/status.
func (s *Service) GetMarketStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ledger.GetMarketStatus(r.Context())
	if err != nil {
		writeError(w, "failed to load market status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// GetMarketSummary handles GET /api/v1/market/summary.
// Walks the trade book and derives notional volume and the volume-weighted
// average price per kWh.
func (s *Service) GetMarketSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := s.ledger.GetMarketStatus(ctx)
	if err != nil {
		writeError(w, "failed to load market status", http.StatusInternalServerError)
		return
	}

	summary := Summary{
		CompletedTrades:   status.CompletedTrades,
		TotalEnergyTraded: status.TotalEnergyTraded,
		AveragePrice:      decimal.Zero,
		VolumeByType:      make(map[string]uint64),
	}

	// Trade IDs run 1..completed_trades with no gaps; the book is
	// append-only.
	for id := uint64(1); id <= status.CompletedTrades; id++ {
		trade, err := s.ledger.GetTrade(ctx, id)
		if err != nil {
			writeError(w, "failed to walk trade book", http.StatusInternalServerError)
			return
		}
		summary.TotalNotional += trade.TotalPrice
		summary.VolumeByType[trade.EnergyType.String()] += trade.EnergyAmount
	}

	if summary.TotalEnergyTraded > 0 {
		notional := decimal.NewFromUint64(summary.TotalNotional)
		volume := decimal.NewFromUint64(summary.TotalEnergyTraded)
		summary.AveragePrice = notional.Div(volume).Round(4)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// --- Auth handler ---

// IssueToken handles POST /api/v1/auth/token. Development stand-in for a
// wallet-signature gateway: mints a bearer token for any claimed identity.
func (s *Service) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Identity == "" {
		writeError(w, "identity is required", http.StatusBadRequest)
		return
	}

	token, err := s.tokens.Issue(req.Identity)
	if err != nil {
		writeError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// --- Helpers ---

// refreshActiveOffersGauge re-reads the market status after a mutation so
// the gauge tracks the authoritative counter, not a local delta.
func (s *Service) refreshActiveOffersGauge(r *http.Request) {
	if status, err := s.ledger.GetMarketStatus(r.Context()); err == nil {
		metrics.ActiveOffers.Set(float64(status.ActiveOffers))
	}
}

// writeLedgerError maps ledger failures onto HTTP status codes.
func (s *Service) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		if _, authenticated := auth.Identity(r.Context()); authenticated {
			status = http.StatusForbidden
		} else {
			status = http.StatusUnauthorized
		}
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidScore):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrAlreadyInactive),
		errors.Is(err, ledger.ErrOfferInactive),
		errors.Is(err, ledger.ErrOfferExpired),
		errors.Is(err, ledger.ErrInsufficientEnergy):
		status = http.StatusConflict
	}

	if status != http.StatusInternalServerError {
		metrics.RejectedOperations.WithLabelValues(reasonLabel(err)).Inc()
	}
	writeError(w, err.Error(), status)
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrAlreadyInactive):
		return "already_inactive"
	case errors.Is(err, ledger.ErrOfferInactive):
		return "offer_inactive"
	case errors.Is(err, ledger.ErrOfferExpired):
		return "offer_expired"
	case errors.Is(err, ledger.ErrInsufficientEnergy):
		return "insufficient_energy"
	case errors.Is(err, ledger.ErrInvalidScore):
		return "invalid_score"
	default:
		return "other"
	}
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, param), 10, 64)
	if err != nil {
		writeError(w, "invalid "+param, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
