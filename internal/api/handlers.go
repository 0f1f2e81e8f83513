package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"levengine/internal/amm"
	"levengine/internal/engine"
	"levengine/internal/lending"
	"levengine/internal/oracle"
	"levengine/internal/position"
	"levengine/internal/risk"
)

// Handler exposes the engine over HTTP. Callers identify themselves
// with an X-Account-ID header; the engine itself has no notion of
// HTTP identity.
type Handler struct {
	eng       *engine.Engine
	authority uuid.UUID

	// prices is the settable feed behind the admin oracle override.
	// Nil when the deployment runs a real oracle, which disables the
	// route.
	prices *oracle.Settable

	log zerolog.Logger
}

func NewHandler(eng *engine.Engine, authority uuid.UUID, prices *oracle.Settable, log zerolog.Logger) *Handler {
	return &Handler{eng: eng, authority: authority, prices: prices, log: log}
}

// --- Request/response shapes -----------------------------------------

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type openRequest struct {
	LeverageBps       int64 `json:"leverage_bps"`
	LowerBucket       int32 `json:"lower_bucket"`
	UpperBucket       int32 `json:"upper_bucket"`
	ReferenceBucket   int32 `json:"reference_bucket"`
	MaxBucketSlippage int32 `json:"max_bucket_slippage"`
}

type closeRequest struct {
	LowerBucket int32 `json:"lower_bucket"`
	UpperBucket int32 `json:"upper_bucket"`
}

type liquidateRequest struct {
	Owner       string `json:"owner"`
	LowerBucket int32  `json:"lower_bucket"`
	UpperBucket int32  `json:"upper_bucket"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type oracleRequest struct {
	Price int64 `json:"price"`
}

type collateralRequest struct {
	Asset                string `json:"asset"`
	Oracle               string `json:"oracle"`
	MaxLTVBps            int64  `json:"max_ltv_bps"`
	LiquidationThreshold int64  `json:"liquidation_threshold_bps"`
	LiquidationPenalty   int64  `json:"liquidation_penalty_bps"`
	MinDeposit           int64  `json:"min_deposit"`
	InterestRateBps      int64  `json:"interest_rate_bps"`
	OracleMaxAgeSec      int64  `json:"oracle_max_age_sec"`
}

type collateralPatch struct {
	MaxLTVBps            *int64 `json:"max_ltv_bps,omitempty"`
	LiquidationThreshold *int64 `json:"liquidation_threshold_bps,omitempty"`
	LiquidationPenalty   *int64 `json:"liquidation_penalty_bps,omitempty"`
	MinDeposit           *int64 `json:"min_deposit,omitempty"`
	InterestRateBps      *int64 `json:"interest_rate_bps,omitempty"`
	OracleMaxAgeSec      *int64 `json:"oracle_max_age_sec,omitempty"`
	Enabled              *bool  `json:"enabled,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// --- Helpers ---------------------------------------------------------

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	h.respondJSON(w, statusFor(err), errorResponse{
		Error:   codeFor(err),
		Message: err.Error(),
	})
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, risk.ErrUnknownAsset),
		errors.Is(err, position.ErrNotFound),
		errors.Is(err, lending.ErrSupplierNotFound):
		return http.StatusNotFound
	case errors.Is(err, risk.ErrStaleOracle),
		errors.Is(err, risk.ErrPriceUnavailable),
		errors.Is(err, oracle.ErrNoFeed):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrProtocolPaused),
		errors.Is(err, engine.ErrPositionHealthy),
		errors.Is(err, engine.ErrCollateralLocked),
		errors.Is(err, position.ErrAlreadyOpen),
		errors.Is(err, position.ErrNotActive),
		errors.Is(err, lending.ErrInsufficientLiquidity):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvariantViolation):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, engine.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, engine.ErrProtocolPaused):
		return "protocol_paused"
	case errors.Is(err, engine.ErrExceedsMaxLTV):
		return "exceeds_max_ltv"
	case errors.Is(err, engine.ErrPositionHealthy):
		return "position_healthy"
	case errors.Is(err, engine.ErrCollateralLocked):
		return "collateral_locked"
	case errors.Is(err, engine.ErrInsufficientCollateral):
		return "below_min_deposit"
	case errors.Is(err, risk.ErrStaleOracle):
		return "stale_oracle"
	case errors.Is(err, risk.ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, position.ErrNotFound):
		return "position_not_found"
	case errors.Is(err, position.ErrAlreadyOpen):
		return "position_already_open"
	case errors.Is(err, position.ErrNotActive):
		return "position_not_active"
	case errors.Is(err, lending.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, lending.ErrSupplierNotFound):
		return "supplier_not_found"
	default:
		return "invalid_request"
	}
}

// accountID extracts the caller identity from X-Account-ID.
func accountID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-Account-ID")
	if raw == "" {
		return uuid.Nil, errors.New("missing X-Account-ID header")
	}
	return uuid.Parse(raw)
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// --- Pool ------------------------------------------------------------

func (h *Handler) SupplyPool(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_identity", Message: err.Error()})
		return
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}

	if err := h.eng.Supply(r.Context(), caller, req.Amount); err != nil {
		h.respondError(w, err)
		return
	}
	supplied, borrowed := h.eng.PoolState()
	h.respondJSON(w, http.StatusOK, map[string]int64{
		"total_supplied": supplied,
		"total_borrowed": borrowed,
	})
}

func (h *Handler) WithdrawPool(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_identity", Message: err.Error()})
		return
	}

	payout, err := h.eng.WithdrawSupply(r.Context(), caller)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"payout": payout})
}

func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	supplied, borrowed := h.eng.PoolState()
	h.respondJSON(w, http.StatusOK, map[string]int64{
		"total_supplied": supplied,
		"total_borrowed": borrowed,
		"available":      supplied - borrowed,
	})
}

// --- Positions -------------------------------------------------------

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_identity", Message: err.Error()})
		return
	}
	asset := mux.Vars(r)["asset"]

	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}

	if err := h.eng.Deposit(r.Context(), caller, asset, req.Amount); err != nil {
		h.respondError(w, err)
		return
	}
	view, _ := h.eng.Position(caller, asset)
	h.respondJSON(w, http.StatusCreated, view)
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_identity", Message: err.Error()})
		return
	}
	asset := mux.Vars(r)["asset"]

	var req openRequest
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}

	err = h.eng.Open(r.Context(), engine.OpenRequest{
		Owner:             caller,
		Asset:             asset,
		LeverageBps:       req.LeverageBps,
		Range:             amm.BucketRange{Lower: req.LowerBucket, Upper: req.UpperBucket},
		ReferenceBucket:   req.ReferenceBucket,
		MaxBucketSlippage: req.MaxBucketSlippage,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	view, _ := h.eng.Position(caller, asset)
	h.respondJSON(w, http.StatusOK, view)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_identity", Message: err.Error()})
		return
	}
	asset := mux.Vars(r)["asset"]

	var req closeRequest
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}

	rng := amm.BucketRange{Lower: req.LowerBucket, Upper: req.UpperBucket}
	if err := h.eng.Close(r.Context(), caller, asset, rng); err != nil {
		h.respondError(w, err)
		return
	}
	view, _ := h.eng.Position(caller, asset)
	h.respondJSON(w, http.StatusOK, view)
}

func (h *Handler) Liquidate(w http.ResponseWriter, r *http.Request) {
	keeper, err := accountID(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_identity", Message: err.Error()})
		return
	}
	asset := mux.Vars(r)["asset"]

	var req liquidateRequest
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_owner", Message: err.Error()})
		return
	}

	rng := amm.BucketRange{Lower: req.LowerBucket, Upper: req.UpperBucket}
	if err := h.eng.Liquidate(r.Context(), keeper, owner, asset, rng); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{
		"keeper_reward": h.eng.EscrowBalance(keeper, asset),
	})
}

func (h *Handler) WithdrawCollateral(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_identity", Message: err.Error()})
		return
	}
	asset := mux.Vars(r)["asset"]

	var req amountRequest
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}

	if err := h.eng.WithdrawCollateral(r.Context(), caller, asset, req.Amount); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{
		"escrow_balance": h.eng.EscrowBalance(caller, asset),
	})
}

func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_identity", Message: err.Error()})
		return
	}
	asset := mux.Vars(r)["asset"]

	view, ok := h.eng.Position(caller, asset)
	if !ok {
		h.respondError(w, position.ErrNotFound)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	caller, err := accountID(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_identity", Message: err.Error()})
		return
	}
	asset := mux.Vars(r)["asset"]

	health, err := h.eng.QueryHealth(r.Context(), caller, asset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"ltv_bps":      health.LTVBps,
		"liquidatable": health.Liquidatable,
	})
}

// --- Admin -----------------------------------------------------------

// Admin handlers act as the configured authority; AdminAuth has already
// verified the shared key by the time these run.

func (h *Handler) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}
	if err := h.eng.SetPaused(h.authority, req.Paused); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// SetOraclePrice overrides the settable price feed. Only wired in
// deployments running the in-memory oracle; a real feed leaves the
// route returning 404.
func (h *Handler) SetOraclePrice(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		h.respondJSON(w, http.StatusNotFound, errorResponse{
			Error:   "oracle_not_settable",
			Message: "this deployment runs an external oracle",
		})
		return
	}
	asset := mux.Vars(r)["asset"]

	var req oracleRequest
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}
	if req.Price <= 0 {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "bad_price",
			Message: "price must be positive",
		})
		return
	}

	h.prices.Set(asset, req.Price, time.Now())
	h.log.Info().Str("asset", asset).Int64("price", req.Price).Msg("oracle price overridden")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"asset": asset,
		"price": req.Price,
	})
}

func (h *Handler) RegisterCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}

	err := h.eng.RegisterCollateral(h.authority, risk.CollateralConfig{
		Asset:                req.Asset,
		Oracle:               req.Oracle,
		MaxLTV:               req.MaxLTVBps,
		LiquidationThreshold: req.LiquidationThreshold,
		LiquidationPenalty:   req.LiquidationPenalty,
		MinDeposit:           req.MinDeposit,
		InterestRateBps:      req.InterestRateBps,
		OracleMaxAge:         time.Duration(req.OracleMaxAgeSec) * time.Second,
		Enabled:              true,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"asset": req.Asset})
}

func (h *Handler) UpdateCollateral(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]

	var req collateralPatch
	if err := decode(r, &req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_json", Message: err.Error()})
		return
	}

	upd := risk.CollateralUpdate{
		MaxLTV:               req.MaxLTVBps,
		LiquidationThreshold: req.LiquidationThreshold,
		LiquidationPenalty:   req.LiquidationPenalty,
		MinDeposit:           req.MinDeposit,
		InterestRateBps:      req.InterestRateBps,
	}
	if req.OracleMaxAgeSec != nil {
		age := time.Duration(*req.OracleMaxAgeSec) * time.Second
		upd.OracleMaxAge = &age
	}
	if err := h.eng.UpdateCollateral(h.authority, asset, upd); err != nil {
		h.respondError(w, err)
		return
	}

	if req.Enabled != nil {
		if err := h.eng.SetCollateralEnabled(h.authority, asset, *req.Enabled); err != nil {
			h.respondError(w, err)
			return
		}
	}

	cfg, _ := h.eng.CollateralConfig(asset)
	h.respondJSON(w, http.StatusOK, cfg)
}
