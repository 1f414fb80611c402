// backend/src/handlers/router.go
package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/username/standingbank/backend/src/services"
	"golang.org/x/time/rate"
)

// RouterDeps is everything the HTTP API needs.
type RouterDeps struct {
	DB             *sql.DB
	Accounts       *services.AccountService
	StandingOrders *services.StandingOrderService
	Transfers      *services.TransferService
	Stocks         *services.StockService
	Limiter        *rate.Limiter
	AllowedOrigins []string
}

// NewRouter wires middleware and routes.
func NewRouter(deps RouterDeps) http.Handler {
	accountHandler := NewAccountHandler(deps.Accounts)
	orderHandler := NewStandingOrderHandler(deps.StandingOrders)
	transferHandler := NewTransferHandler(deps.Transfers)
	stockHandler := NewStockHandler(deps.Stocks)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(ContextualLoggerMiddleware)
	r.Use(CORSMiddleware(deps.AllowedOrigins))
	if deps.Limiter != nil {
		r.Use(RateLimitMiddleware(deps.Limiter))
	}

	r.Get("/health", healthHandler(deps.DB))

	r.Route("/api", func(r chi.Router) {
		r.Use(CallerMiddleware)

		r.Route("/standing-orders", func(r chi.Router) {
			r.Get("/", orderHandler.HandleList)
			r.Post("/", orderHandler.HandleCreate)
			r.Get("/{id}", orderHandler.HandleGet)
			r.Put("/{id}", orderHandler.HandleUpdate)
			r.Put("/{id}/toggle", orderHandler.HandleToggle)
			r.Delete("/{id}", orderHandler.HandleCancel)
		})

		r.Post("/transfers", transferHandler.HandleTransfer)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", accountHandler.HandleList)
			r.Post("/", accountHandler.HandleOpen)
			r.Get("/{id}", accountHandler.HandleGet)
			r.Get("/{id}/transactions", accountHandler.HandleTransactions)
			r.Get("/{id}/holdings", accountHandler.HandleHoldings)
			r.Post("/{id}/deposit", transferHandler.HandleDeposit)
			r.Post("/{id}/withdraw", transferHandler.HandleWithdraw)
		})

		r.Route("/stocks", func(r chi.Router) {
			r.Get("/{symbol}/quote", stockHandler.HandleQuote)
			r.Post("/buy", stockHandler.HandleBuy)
			r.Post("/sell", stockHandler.HandleSell)
		})
	})

	return r
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			sendJSONError(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	}
}
