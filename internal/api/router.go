package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"levengine/internal/observability"
)

// Dependencies wires the router.
type Dependencies struct {
	Handler  *Handler
	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	AdminKey string
	Logger   zerolog.Logger
}

// NewRouter builds the HTTP surface:
//
//	/api/v1/
//	  /pool
//	    GET  /                        pool totals
//	    POST /supply                  supply liquidity
//	    POST /withdraw                exit with principal + interest
//	  /positions/{asset}
//	    GET  /                        position snapshot
//	    GET  /health                  LTV at current oracle prices
//	    POST /deposit                 escrow collateral
//	    POST /open                    leveraged entry
//	    POST /close                   voluntary unwind
//	    POST /liquidate               keeper liquidation
//	    POST /collateral/withdraw     release escrow
//	  /admin  (X-Admin-Key)
//	    POST  /pause                  pause / unpause
//	    POST  /collateral             register collateral asset
//	    PATCH /collateral/{asset}     update risk parameters
//	    POST  /oracle/{asset}         override settable oracle price
//	/healthz, /readyz, /metrics
func NewRouter(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(Recovery(deps.Logger))
	router.Use(Logging(deps.Logger, deps.Metrics))

	h := deps.Handler

	apiV1 := router.PathPrefix("/api/v1").Subrouter()

	pool := apiV1.PathPrefix("/pool").Subrouter()
	pool.HandleFunc("", h.GetPool).Methods(http.MethodGet)
	pool.HandleFunc("/supply", h.SupplyPool).Methods(http.MethodPost)
	pool.HandleFunc("/withdraw", h.WithdrawPool).Methods(http.MethodPost)

	positions := apiV1.PathPrefix("/positions/{asset}").Subrouter()
	positions.HandleFunc("", h.GetPosition).Methods(http.MethodGet)
	positions.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	positions.HandleFunc("/deposit", h.Deposit).Methods(http.MethodPost)
	positions.HandleFunc("/open", h.Open).Methods(http.MethodPost)
	positions.HandleFunc("/close", h.Close).Methods(http.MethodPost)
	positions.HandleFunc("/liquidate", h.Liquidate).Methods(http.MethodPost)
	positions.HandleFunc("/collateral/withdraw", h.WithdrawCollateral).Methods(http.MethodPost)

	admin := apiV1.PathPrefix("/admin").Subrouter()
	admin.Use(AdminAuth(deps.AdminKey))
	admin.HandleFunc("/pause", h.SetPaused).Methods(http.MethodPost)
	admin.HandleFunc("/collateral", h.RegisterCollateral).Methods(http.MethodPost)
	admin.HandleFunc("/collateral/{asset}", h.UpdateCollateral).Methods(http.MethodPatch)
	admin.HandleFunc("/oracle/{asset}", h.SetOraclePrice).Methods(http.MethodPost)

	if deps.Health != nil {
		router.HandleFunc("/healthz", deps.Health.LivenessHandler).Methods(http.MethodGet)
		router.HandleFunc("/readyz", deps.Health.ReadinessHandler).Methods(http.MethodGet)
	}
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}
