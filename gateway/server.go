package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crcmarket/core/types"
	"crcmarket/gateway/middleware"
	"crcmarket/native/cycle"
	"crcmarket/native/payments"
	"crcmarket/native/token"
	"crcmarket/observability"
)

// Server exposes the sale engines over HTTP for operators and indexers.
// Every engine call runs behind one mutex, reproducing the serialized
// one-operation-at-a-time execution model the accounting core assumes.
type Server struct {
	log     *slog.Logger
	cycle   *cycle.Engine
	token   token.Token
	hub     *payments.Hub
	metrics *observability.SaleMetrics
	limit   middleware.RateLimit

	mu sync.Mutex
}

// NewServer wires the HTTP surface around a cycle engine. The hub enables
// the local-mode claim endpoint; passing nil disables it.
func NewServer(log *slog.Logger, cycleEngine *cycle.Engine, tok token.Token, hub *payments.Hub, limit middleware.RateLimit) *Server {
	return &Server{
		log:     log,
		cycle:   cycleEngine,
		token:   tok,
		hub:     hub,
		metrics: observability.Sale(),
		limit:   limit,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewRateLimiter(s.limit).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/cycle", s.handleCycleStatus)
		r.Get("/offers/{id}", s.handleOffer)
		r.Get("/accounts/{address}", s.handleAccount)
		r.Post("/offers/next", s.handleCreateNextOffer)
		r.Post("/offers/next/weights", s.handleSetWeights)
		r.Post("/offers/next/deposit", s.handleDeposit)
		r.Post("/trust/sync", s.handleSyncTrust)
		r.Post("/claims", s.handleClaim)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type offerSummary struct {
	ID          uint64   `json:"id"`
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	WindowStart int64    `json:"windowStart"`
	WindowEnd   int64    `json:"windowEnd"`
	Accepted    []string `json:"accepted"`
}

func summarize(record *cycle.OfferRecord) *offerSummary {
	accepted := make([]string, len(record.Accepted))
	for i, currency := range record.Accepted {
		accepted[i] = currency.Hex()
	}
	return &offerSummary{
		ID:          record.ID,
		Address:     record.Address.String(),
		Name:        record.Name,
		WindowStart: record.WindowStart,
		WindowEnd:   record.WindowEnd,
		Accepted:    accepted,
	}
}

func (s *Server) handleCycleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	currentID := s.cycle.CurrentOfferID()
	resp := map[string]any{
		"cycle":     s.cycle.Address().String(),
		"admin":     s.cycle.Admin().String(),
		"currentId": currentID,
		"nextId":    currentID + 1,
	}
	if record, ok, err := s.cycle.OfferRecord(currentID); err == nil && ok {
		resp["currentOffer"] = summarize(record)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid offer id"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok, err := s.cycle.OfferRecord(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("offer not found"))
		return
	}
	writeJSON(w, http.StatusOK, summarize(record))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := types.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	claimed, err := s.cycle.TotalClaimed(account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := map[string]any{
		"address":      account.String(),
		"totalClaimed": claimed.String(),
		"tokenBalance": s.token.BalanceOf(account).String(),
	}
	if current := s.cycle.CurrentOffer(); current != nil {
		if used, err := current.Usage(account); err == nil {
			resp["currentOfferUsage"] = used.String()
		}
		if limit, err := current.AccountLimit(account); err == nil {
			resp["currentOfferLimit"] = limit.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type createOfferRequest struct {
	Caller    string   `json:"caller"`
	Price     string   `json:"price"`
	BaseLimit string   `json:"baseLimit"`
	Accepted  []string `json:"accepted"`
}

func (s *Server) handleCreateNextOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := types.DecodeAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, ok := parseAmount(req.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("invalid price"))
		return
	}
	baseLimit, ok := parseAmount(req.BaseLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("invalid baseLimit"))
		return
	}
	accepted := make([]payments.CurrencyID, 0, len(req.Accepted))
	for _, raw := range req.Accepted {
		issuer, err := types.DecodeAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		accepted = append(accepted, payments.CurrencyFromAddress(issuer))
	}
	s.mu.Lock()
	created, id, err := s.cycle.CreateNextOffer(caller, price, baseLimit, accepted)
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.metrics.Offers.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{
		"receipt": uuid.NewString(),
		"offerId": id,
		"offer":   created.Address().String(),
	})
}

type setWeightsRequest struct {
	Caller   string   `json:"caller"`
	Accounts []string `json:"accounts"`
	Weights  []string `json:"weights"`
}

func (s *Server) handleSetWeights(w http.ResponseWriter, r *http.Request) {
	var req setWeightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := types.DecodeAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	accounts := make([]types.Address, 0, len(req.Accounts))
	for _, raw := range req.Accounts {
		account, err := types.DecodeAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		accounts = append(accounts, account)
	}
	weightValues := make([]*big.Int, 0, len(req.Weights))
	for _, raw := range req.Weights {
		weight, ok := parseAmount(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, errors.New("invalid weight"))
			return
		}
		weightValues = append(weightValues, weight)
	}
	s.mu.Lock()
	err = s.cycle.SetNextOfferAccountWeights(caller, accounts, weightValues)
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"receipt": uuid.NewString()})
}

type depositRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := types.DecodeAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	deposited, err := s.cycle.DepositNextOfferTokens(caller)
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.metrics.Deposits.Inc()
	writeJSON(w, http.StatusOK, map[string]string{
		"receipt":   uuid.NewString(),
		"deposited": deposited.String(),
	})
}

func (s *Server) handleSyncTrust(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	err := s.cycle.SyncOfferTrust()
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

type claimRequest struct {
	Account  string `json:"account"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// handleClaim submits an inbound claim through the payment hub on behalf of
// the account. Only available in local mode, where the daemon hosts the
// transport itself.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotImplemented, errors.New("claims not accepted by this deployment"))
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	account, err := types.DecodeAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	issuer, err := types.DecodeAddress(req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("invalid amount"))
		return
	}
	currency := payments.CurrencyFromAddress(issuer)
	s.mu.Lock()
	err = s.hub.TransferOne(account, account, s.cycle.Address(), currency, amount, nil)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, cycle.ErrSoftLocked) {
			s.metrics.SoftLocks.Inc()
		}
		s.metrics.Claims.WithLabelValues("rejected").Inc()
		s.log.Warn("claim rejected", "account", account.Hex(), "error", err.Error())
		writeError(w, statusFor(err), err)
		return
	}
	s.metrics.Claims.WithLabelValues("ok").Inc()
	s.log.Info("claim settled", "account", account.Hex(), "spend", amount.String())
	writeJSON(w, http.StatusOK, map[string]string{
		"receipt":      uuid.NewString(),
		"tokenBalance": s.token.BalanceOf(account).String(),
	})
}

func parseAmount(raw string) (*big.Int, bool) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cycle.ErrSoftLocked):
		return http.StatusForbidden
	case errors.Is(err, cycle.ErrNextOfferFunded):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
