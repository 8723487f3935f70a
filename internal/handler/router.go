package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/interact-app/points-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса баллов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			r.Get("/balance", h.GetBalance)
			r.Get("/ledger", h.GetLedger)
			r.Post("/transfer", h.Transfer)

			r.Get("/rewards", h.GetRewards)
			r.Post("/rewards/{itemID}/redeem", h.Redeem)
			r.Get("/redemptions", h.GetRedemptions)
		})
	})

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(h.serviceAuth.Middleware)

		r.Post("/award", h.InternalAward)
		r.Post("/adjust", h.InternalAdjust)
		r.Post("/rewards", h.CreateReward)
		r.Patch("/rewards/{itemID}", h.UpdateReward)
		r.Patch("/redemptions/{redemptionID}", h.UpdateRedemptionStatus)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
