// Package api provides the HTTP handlers for opening, resizing and closing
// positions, reading and setting the synthetic asset price, and inspecting
// custody balances.
//
// All amounts use shopspring/decimal — never float64 for money. Request
// bodies accept amounts as JSON numbers or strings.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/synthetic-ledger/internal/custody"
	"github.com/atmx/synthetic-ledger/internal/model"
	"github.com/atmx/synthetic-ledger/internal/position"
)

// CallerHeader carries the caller identity read by HeaderCaller.
const CallerHeader = "X-Caller-ID"

// CallerFunc returns the authenticated identity of the request's caller,
// or "" when there is none.
type CallerFunc func(r *http.Request) string

// HeaderCaller reads the identity from CallerHeader. The header is supplied
// by the client, so it is only trustworthy behind a proxy that
// authenticates the client and overwrites the header. Deployments without
// such a proxy must install their own CallerFunc with WithCaller.
func HeaderCaller(r *http.Request) string {
	return r.Header.Get(CallerHeader)
}

// Service exposes the position ledger over HTTP.
type Service struct {
	ledger    *position.Ledger
	custodian custody.Custodian
	faucet    custody.Faucet // optional; nil disables mint/approve endpoints
	caller    CallerFunc
}

// NewService creates a new API service that identifies callers with
// HeaderCaller. Pass nil for faucet in deployments where balances are
// managed externally.
func NewService(ledger *position.Ledger, cust custody.Custodian, faucet custody.Faucet) *Service {
	return &Service{
		ledger:    ledger,
		custodian: cust,
		faucet:    faucet,
		caller:    HeaderCaller,
	}
}

// WithCaller replaces the caller identity extractor.
func (s *Service) WithCaller(fn CallerFunc) *Service {
	if fn != nil {
		s.caller = fn
	}
	return s
}

// owner returns the {owner} path parameter if the caller is that owner.
// Positions are only ever mutated by their own owner; any other caller
// gets 403.
func (s *Service) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := chi.URLParam(r, "owner")
	caller := s.caller(r)
	if caller == "" || caller != owner {
		slog.Warn("position mutation denied", "owner", owner, "caller", caller, "path", r.URL.Path)
		writeError(w, position.ReasonUnauthorized, "unauthorized", http.StatusForbidden)
		return "", false
	}
	return owner, true
}

// Routes mounts every handler on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/positions", s.ListPositions)
	r.Get("/positions/{owner}", s.GetPosition)
	r.Get("/positions/{owner}/history", s.GetHistory)
	r.Post("/positions/{owner}/deposit", s.Deposit)
	r.Post("/positions/{owner}/increase", s.IncreasePosition)
	r.Post("/positions/{owner}/reduce", s.ReducePosition)
	r.Post("/positions/{owner}/withdraw", s.Withdraw)

	r.Get("/price", s.GetPrice)
	r.Put("/price", s.SetPrice)

	r.Get("/custody/balances/{account}", s.GetBalance)
	if s.faucet != nil {
		r.Post("/custody/mint", s.Mint)
		r.Post("/custody/approve", s.Approve)
	}
}

// --- Request/Response types ---

// DepositRequest is the JSON body for POST /positions/{owner}/deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"` // collateral to lock
	Size   decimal.Decimal `json:"size"`   // notional size
	IsLong bool            `json:"is_long"`
}

// AmountRequest is the JSON body for increase and reduce.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// WithdrawResponse is returned from POST /positions/{owner}/withdraw.
type WithdrawResponse struct {
	Owner    string          `json:"owner"`
	Payout   decimal.Decimal `json:"payout"`
	Position model.Position  `json:"position"`
}

// PriceRequest is the JSON body for PUT /price.
type PriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// PriceResponse is returned from GET /price.
type PriceResponse struct {
	SyntheticAssetPrice decimal.Decimal `json:"synthetic_asset_price"`
}

// BalanceResponse is returned from GET /custody/balances/{account}.
type BalanceResponse struct {
	Account string          `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// FaucetRequest is the JSON body for mint and approve.
type FaucetRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// ErrorResponse is the JSON body for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Position handlers ---

// ListPositions handles GET /api/v1/positions
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ledger.Positions(r.Context())
	if err != nil {
		writeError(w, "failed to list positions", "internal", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetPosition handles GET /api/v1/positions/{owner}
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	p, err := s.ledger.Position(r.Context(), owner)
	if err != nil {
		writeError(w, "failed to load position", "internal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetHistory handles GET /api/v1/positions/{owner}/history
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	events, err := s.ledger.History(r.Context(), owner)
	if err != nil {
		writeError(w, "failed to load history", "internal", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.PositionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Deposit handles POST /api/v1/positions/{owner}/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "bad_request", http.StatusBadRequest)
		return
	}

	p, err := s.ledger.Deposit(r.Context(), owner, req.Amount, req.Size, req.IsLong)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// IncreasePosition handles POST /api/v1/positions/{owner}/increase
func (s *Service) IncreasePosition(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "bad_request", http.StatusBadRequest)
		return
	}

	p, err := s.ledger.IncreasePosition(r.Context(), owner, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ReducePosition handles POST /api/v1/positions/{owner}/reduce
func (s *Service) ReducePosition(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "bad_request", http.StatusBadRequest)
		return
	}

	p, err := s.ledger.ReducePosition(r.Context(), owner, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Withdraw handles POST /api/v1/positions/{owner}/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	payout, err := s.ledger.Withdraw(ctx, owner)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	p, err := s.ledger.Position(ctx, owner)
	if err != nil {
		p = model.Closed(owner)
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{Owner: owner, Payout: payout, Position: p})
}

// --- Price handlers ---

// GetPrice handles GET /api/v1/price
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.ledger.SyntheticAssetPrice(r.Context())
	if err != nil {
		writeError(w, "failed to load price", "internal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{SyntheticAssetPrice: price})
}

// SetPrice handles PUT /api/v1/price
// The caller comes from the service's CallerFunc and must pass the
// ledger's Authorizer.
func (s *Service) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", "bad_request", http.StatusBadRequest)
		return
	}

	caller := s.caller(r)
	if err := s.ledger.SetSyntheticAssetPrice(r.Context(), caller, req.Price); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{SyntheticAssetPrice: req.Price})
}

// --- Custody handlers ---

// GetBalance handles GET /api/v1/custody/balances/{account}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	balance, err := s.custodian.BalanceOf(r.Context(), account)
	if err != nil {
		writeError(w, "failed to load balance", "internal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Balance: balance})
}

// Mint handles POST /api/v1/custody/mint (development only)
func (s *Service) Mint(w http.ResponseWriter, r *http.Request) {
	s.faucetOp(w, r, "mint", s.faucet.Mint)
}

// Approve handles POST /api/v1/custody/approve (development only)
func (s *Service) Approve(w http.ResponseWriter, r *http.Request) {
	s.faucetOp(w, r, "approve", s.faucet.Approve)
}

func (s *Service) faucetOp(w http.ResponseWriter, r *http.Request, name string, op func(ctx context.Context, account string, amount decimal.Decimal) error) {
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeError(w, "invalid request body", "bad_request", http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), req.Account, req.Amount); err != nil {
		if errors.Is(err, custody.ErrInvalidAmount) {
			writeError(w, position.ReasonInvalidAmount, "invalid_amount", http.StatusBadRequest)
			return
		}
		writeError(w, "custody "+name+" failed", "internal", http.StatusInternalServerError)
		return
	}

	slog.Info("custody faucet", "op", name, "account", req.Account, "amount", req.Amount.String())

	balance, _ := s.custodian.BalanceOf(r.Context(), req.Account)
	writeJSON(w, http.StatusOK, BalanceResponse{Account: req.Account, Balance: balance})
}

// --- Response helpers ---

// writeLedgerError maps a ledger rejection to a status code.
func writeLedgerError(w http.ResponseWriter, err error) {
	code := position.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case "invalid_amount":
		status = http.StatusBadRequest
	case "custody_failure":
		status = http.StatusPaymentRequired
	case "unauthorized":
		status = http.StatusForbidden
	case "position_open", "limit_exceeded":
		status = http.StatusConflict
	}

	reason := position.Reason(err)
	if status == http.StatusInternalServerError {
		slog.Error("ledger operation failed", "err", err)
		reason = "internal error"
	}
	writeError(w, reason, code, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message, code string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
