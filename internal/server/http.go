package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"DscLedger/internal/core"
	"DscLedger/internal/dscerr"
	"DscLedger/internal/event"
	"DscLedger/internal/ledger"
	"DscLedger/internal/observability"
	"DscLedger/internal/query"
	"DscLedger/internal/state"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server is the HTTP/JSON API. Mutations go through the engine's
// submit path and return synchronously with the operation's verdict;
// exact reads run on the core goroutine via View; history reads come
// from the projections and carry as_of_sequence.
type Server struct {
	engine  *core.Engine
	queries *query.Service
	checker *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(engine *core.Engine, queries *query.Service, checker *observability.HealthChecker, metrics *observability.Metrics) *Server {
	return &Server{
		engine:  engine,
		queries: queries,
		checker: checker,
		metrics: metrics,
		log:     observability.NewLogger("http"),
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.instrument)

	r.Get("/healthz", s.checker.LivenessHandler)
	r.Get("/readyz", s.checker.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/positions/deposit", s.handleDeposit)
		r.Post("/positions/redeem", s.handleRedeem)
		r.Post("/positions/mint", s.handleMint)
		r.Post("/positions/burn", s.handleBurn)
		r.Post("/positions/deposit-and-mint", s.handleDepositAndMint)
		r.Post("/positions/redeem-for-dsc", s.handleRedeemForDsc)
		r.Post("/liquidations", s.handleLiquidate)

		r.Get("/accounts/{account}", s.handleAccount)
		r.Get("/accounts/{account}/health", s.handleAccountHealth)
		r.Get("/accounts/{account}/history", s.handleAccountHistory)
		r.Get("/liquidations", s.handleLiquidationHistory)

		r.Get("/oracle/usd-value", s.handleUsdValue)
		r.Get("/oracle/token-amount", s.handleTokenAmount)

		r.Get("/protocol/stats", s.handleProtocolStats)
		r.Get("/integrity", s.handleIntegrity)
	})

	return r
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if s.metrics != nil {
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// --- Mutations ---

type operationRequest struct {
	OperationID string `json:"operation_id"`
	Account     string `json:"account"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`

	// Compound operations.
	DepositAmount string `json:"deposit_amount"`
	MintAmount    string `json:"mint_amount"`
	RedeemAmount  string `json:"redeem_amount"`
	BurnAmount    string `json:"burn_amount"`

	// Liquidation.
	Liquidator  string `json:"liquidator"`
	Target      string `json:"target"`
	DebtToCover string `json:"debt_to_cover"`
}

type operationResponse struct {
	Sequence  int64  `json:"sequence"`
	StateHash string `json:"state_hash"`
	Status    string `json:"status"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	req, opID, account, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	s.submit(w, r, &event.DepositCollateral{
		OperationID: opID,
		Account:     account,
		Asset:       req.Asset,
		Amount:      amount,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	req, opID, account, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	s.submit(w, r, &event.RedeemCollateral{
		OperationID: opID,
		Account:     account,
		Asset:       req.Asset,
		Amount:      amount,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	req, opID, account, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	s.submit(w, r, &event.MintDsc{
		OperationID: opID,
		Account:     account,
		Amount:      amount,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	req, opID, account, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}
	amount, ok := s.parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	s.submit(w, r, &event.BurnDsc{
		OperationID: opID,
		Account:     account,
		Amount:      amount,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Server) handleDepositAndMint(w http.ResponseWriter, r *http.Request) {
	req, opID, account, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}
	deposit, ok := s.parseAmount(w, req.DepositAmount, "deposit_amount")
	if !ok {
		return
	}
	mint, ok := s.parseAmount(w, req.MintAmount, "mint_amount")
	if !ok {
		return
	}
	s.submit(w, r, &event.DepositAndMint{
		OperationID:   opID,
		Account:       account,
		Asset:         req.Asset,
		DepositAmount: deposit,
		MintAmount:    mint,
		Timestamp:     time.Now().UTC(),
	})
}

func (s *Server) handleRedeemForDsc(w http.ResponseWriter, r *http.Request) {
	req, opID, account, ok := s.decodeOperation(w, r)
	if !ok {
		return
	}
	redeem, ok := s.parseAmount(w, req.RedeemAmount, "redeem_amount")
	if !ok {
		return
	}
	burn, ok := s.parseAmount(w, req.BurnAmount, "burn_amount")
	if !ok {
		return
	}
	s.submit(w, r, &event.RedeemForDsc{
		OperationID:  opID,
		Account:      account,
		Asset:        req.Asset,
		RedeemAmount: redeem,
		BurnAmount:   burn,
		Timestamp:    time.Now().UTC(),
	})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}

	opID, err := parseOperationID(req.OperationID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	liquidator, err := uuid.Parse(req.Liquidator)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", "liquidator: "+err.Error())
		return
	}
	target, err := uuid.Parse(req.Target)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", "target: "+err.Error())
		return
	}
	debtToCover, ok := s.parseAmount(w, req.DebtToCover, "debt_to_cover")
	if !ok {
		return
	}

	s.submit(w, r, &event.Liquidate{
		OperationID: opID,
		Liquidator:  liquidator,
		Target:      target,
		Asset:       req.Asset,
		DebtToCover: debtToCover,
		Timestamp:   time.Now().UTC(),
	})
}

func (s *Server) decodeOperation(w http.ResponseWriter, r *http.Request) (operationRequest, uuid.UUID, uuid.UUID, bool) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return req, uuid.Nil, uuid.Nil, false
	}

	opID, err := parseOperationID(req.OperationID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return req, uuid.Nil, uuid.Nil, false
	}

	account, err := uuid.Parse(req.Account)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", "account: "+err.Error())
		return req, uuid.Nil, uuid.Nil, false
	}

	return req, opID, account, true
}

// parseOperationID accepts a caller-supplied ID for idempotent retries
// and generates one when absent.
func parseOperationID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("operation_id: %w", err)
	}
	return id, nil
}

func (s *Server) parseAmount(w http.ResponseWriter, raw, field string) (*big.Int, bool) {
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "malformed_request", field+" is required")
		return nil, false
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "malformed_request", field+" is not a decimal integer")
		return nil, false
	}
	return v, true
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, evt event.Event) {
	res, err := s.engine.Submit(r.Context(), evt)
	if err != nil {
		s.writeRejection(w, err)
		return
	}

	var hash string
	_ = s.engine.View(r.Context(), func(e *core.Engine) error {
		h := e.GetStateHash()
		hash = hex.EncodeToString(h[:])
		return nil
	})

	s.writeJSON(w, http.StatusOK, operationResponse{
		Sequence:  res.Sequence,
		StateHash: hash,
		Status:    "applied",
	})
}

// --- Reads ---

type holdingResponse struct {
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
	UsdValue string `json:"usd_value"`
}

type accountResponse struct {
	Account            string            `json:"account"`
	Collateral         []holdingResponse `json:"collateral"`
	DebtMinted         string            `json:"debt_minted"`
	CollateralValueUsd string            `json:"collateral_value_usd"`
	HealthFactor       string            `json:"health_factor"`
	Status             string            `json:"status"`
	AsOfSequence       int64             `json:"as_of_sequence"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", "account: "+err.Error())
		return
	}

	var pos *state.AccountPosition
	var seq int64
	viewErr := s.engine.View(r.Context(), func(e *core.Engine) error {
		var err error
		pos, err = e.Health().Position(account)
		seq = e.GetSequence() - 1
		return err
	})
	if viewErr != nil {
		s.writeRejection(w, viewErr)
		return
	}

	resp := accountResponse{
		Account:            pos.Account.String(),
		Collateral:         make([]holdingResponse, 0, len(pos.Collateral)),
		DebtMinted:         pos.DebtMinted.String(),
		CollateralValueUsd: pos.CollateralValueUsd.String(),
		HealthFactor:       pos.HealthFactor.String(),
		Status:             pos.Status.String(),
		AsOfSequence:       seq,
	}
	for _, h := range pos.Collateral {
		resp.Collateral = append(resp.Collateral, holdingResponse{
			Asset:    h.Asset.Symbol,
			Amount:   h.Amount.String(),
			UsdValue: h.UsdValue.String(),
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Account      string `json:"account"`
	HealthFactor string `json:"health_factor"`
	Status       string `json:"status"`
	MaxMintable  string `json:"max_mintable"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

func (s *Server) handleAccountHealth(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", "account: "+err.Error())
		return
	}

	var healthFactor, maxMintable *big.Int
	var seq int64
	viewErr := s.engine.View(r.Context(), func(e *core.Engine) error {
		var err error
		healthFactor, err = e.Health().HealthFactor(account)
		if err != nil {
			return err
		}
		maxMintable, err = e.Health().MaxMintable(account)
		seq = e.GetSequence() - 1
		return err
	})
	if viewErr != nil {
		s.writeRejection(w, viewErr)
		return
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Account:      account.String(),
		HealthFactor: healthFactor.String(),
		Status:       state.StatusFor(healthFactor).String(),
		MaxMintable:  maxMintable.String(),
		AsOfSequence: seq,
	})
}

type conversionResponse struct {
	Asset  string `json:"asset"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

func (s *Server) handleUsdValue(w http.ResponseWriter, r *http.Request) {
	asset := r.URL.Query().Get("asset")
	amount, ok := s.parseAmount(w, r.URL.Query().Get("amount"), "amount")
	if !ok {
		return
	}

	var value *big.Int
	viewErr := s.engine.View(r.Context(), func(e *core.Engine) error {
		id, found := e.Registry().LookupSymbol(asset)
		if !found || !e.Registry().IsCollateral(id) {
			return dscerr.ErrUnsupportedAsset
		}
		var err error
		value, err = e.Oracle().UsdValue(id, amount)
		return err
	})
	if viewErr != nil {
		s.writeRejection(w, viewErr)
		return
	}

	s.writeJSON(w, http.StatusOK, conversionResponse{
		Asset:  asset,
		Input:  amount.String(),
		Output: value.String(),
	})
}

func (s *Server) handleTokenAmount(w http.ResponseWriter, r *http.Request) {
	asset := r.URL.Query().Get("asset")
	usd, ok := s.parseAmount(w, r.URL.Query().Get("usd"), "usd")
	if !ok {
		return
	}

	var tokens *big.Int
	viewErr := s.engine.View(r.Context(), func(e *core.Engine) error {
		id, found := e.Registry().LookupSymbol(asset)
		if !found || !e.Registry().IsCollateral(id) {
			return dscerr.ErrUnsupportedAsset
		}
		var err error
		tokens, err = e.Oracle().TokenAmountFromUsd(id, usd)
		return err
	})
	if viewErr != nil {
		s.writeRejection(w, viewErr)
		return
	}

	s.writeJSON(w, http.StatusOK, conversionResponse{
		Asset:  asset,
		Input:  usd.String(),
		Output: tokens.String(),
	})
}

type assetStats struct {
	Asset          string `json:"asset"`
	TotalDeposited string `json:"total_deposited"`
	Price          string `json:"price,omitempty"`
	FeedSequence   int64  `json:"feed_sequence,omitempty"`
}

type statsResponse struct {
	StableSupply string       `json:"stable_supply"`
	Collateral   []assetStats `json:"collateral"`
	Sequence     int64        `json:"sequence"`
	StateHash    string       `json:"state_hash"`
}

func (s *Server) handleProtocolStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	viewErr := s.engine.View(r.Context(), func(e *core.Engine) error {
		resp.StableSupply = e.Balances().GetStableSupply().String()
		resp.Sequence = e.GetSequence() - 1
		h := e.GetStateHash()
		resp.StateHash = hex.EncodeToString(h[:])

		for _, asset := range e.Registry().CollateralAssets() {
			// The external wallet runs negative as deposits accumulate;
			// its negation is the total held by the protocol.
			walletKey := ledger.NewExternalAccountKey(ledger.SubTypeExternalWallet, asset.ID)
			deposited := new(big.Int).Neg(e.Balances().GetBalance(walletKey))

			st := assetStats{
				Asset:          asset.Symbol,
				TotalDeposited: deposited.String(),
			}
			if price, ok := e.Prices().Latest(asset.ID); ok {
				st.Price = price.Price.String()
				st.FeedSequence = price.FeedSequence
			}
			resp.Collateral = append(resp.Collateral, st)
		}
		return nil
	})
	if viewErr != nil {
		s.writeRejection(w, viewErr)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccountHistory(w http.ResponseWriter, r *http.Request) {
	account, err := uuid.Parse(chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed_request", "account: "+err.Error())
		return
	}

	limit, before := paginationParams(r)
	history, err := s.queries.GetOperationHistory(r.Context(), account, limit, before)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account.String(),
		"history": history,
	})
}

func (s *Server) handleLiquidationHistory(w http.ResponseWriter, r *http.Request) {
	var account *uuid.UUID
	if raw := r.URL.Query().Get("account"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed_request", "account: "+err.Error())
			return
		}
		account = &id
	}

	limit, before := paginationParams(r)
	history, err := s.queries.GetLiquidationHistory(r.Context(), account, limit, before)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"liquidations": history,
	})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func paginationParams(r *http.Request) (int, *int64) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			before = &n
		}
	}

	return limit, before
}

// --- Responses ---

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Populated for broken_health_factor rejections.
	HealthFactor string `json:"health_factor,omitempty"`
}

// writeRejection maps taxonomy errors onto HTTP statuses. Anything
// outside the taxonomy is a server fault.
func (s *Server) writeRejection(w http.ResponseWriter, err error) {
	resp := errorResponse{
		Code:    dscerr.Code(err),
		Message: err.Error(),
	}

	var broken *dscerr.BrokenHealthFactorError
	if errors.As(err, &broken) {
		resp.HealthFactor = broken.HealthFactor.String()
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dscerr.ErrZeroAmount),
		errors.Is(err, dscerr.ErrUnsupportedAsset):
		status = http.StatusBadRequest
	case errors.Is(err, dscerr.ErrInsufficientCollateral),
		errors.Is(err, dscerr.ErrExcessBurn),
		errors.Is(err, dscerr.ErrBrokenHealthFactor),
		errors.Is(err, dscerr.ErrHealthFactorOk),
		errors.Is(err, dscerr.ErrHealthFactorNotImproved):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, dscerr.ErrStalePrice):
		status = http.StatusServiceUnavailable
	case errors.Is(err, dscerr.ErrTransferFailed),
		errors.Is(err, dscerr.ErrMintFailed):
		status = http.StatusBadGateway
	case errors.Is(err, core.ErrEngineStopped):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}

	s.writeJSON(w, status, resp)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}
