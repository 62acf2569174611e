package router

import (
	"net/http"

	"github.com/fashraf/posmain-api/internal/handler"
	"github.com/fashraf/posmain-api/internal/order"
	"github.com/fashraf/posmain-api/internal/store"
	"github.com/fashraf/posmain-api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a Chi router with all application routes wired up.
func New(pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route for branch displays
	r.Get("/ws/branches/{bid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, w, r)
	})

	queries := store.New(pool)

	// Menu (read-only catalog for the customization screen)
	menuHandler := handler.NewMenuHandler(queries)
	r.Route("/menu-items", menuHandler.RegisterRoutes)

	r.Route("/branches/{bid}", func(r chi.Router) {
		// Tax rule configuration
		taxRuleHandler := handler.NewTaxRuleHandler(queries)
		r.Route("/tax-rules", taxRuleHandler.RegisterRoutes)

		// Checkout, order reads, and pay-later settlement
		newOrderStore := func(tx pgx.Tx) order.OrderStore {
			return store.New(tx)
		}
		orderService := order.NewService(pool, newOrderStore, queries)
		orderHandler := handler.NewOrderHandler(orderService, queries, queries, queries, hub)
		settleHandler := handler.NewSettlementHandler(pool, func(tx pgx.Tx) handler.SettlementStore {
			return store.New(tx)
		}, hub)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			r.Post("/{id}/settle", settleHandler.Settle)
		})
	})

	return r
}
