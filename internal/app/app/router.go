package app

import (
	"net/http"

	"backoffice/internal/app/handler"
	mw "backoffice/internal/app/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(a.logger))
	r.Use(mw.Metrics(a.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.config.Origins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Authorization", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handler.WriteResponse(w, struct {
			Status string `json:"status"`
		}{"ok"}, http.StatusOK)
	})
	r.Handle("/metrics", a.metrics.Handler())

	auth := mw.Auth(a.session)

	uh := handler.NewUserHandler(a.users, a.session)
	oh := handler.NewOrderHandler(a.orders, a.ledger)
	th := handler.NewTransactionHandler(a.ledger, a.config.Pagination.DefaultLimit, a.config.Receipts.MaxBytes)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", uh.Register)
		r.Post("/login", uh.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Get("/balance", uh.Balance)

			r.Post("/orders", oh.Create)
			r.Get("/orders", oh.List)
			r.Post("/orders/{orderID}/pay", oh.Pay)

			r.Post("/transactions/deposits", th.CreateDeposit)
			r.Post("/transactions/{id}/receipt", th.AttachReceipt)
			r.Get("/transactions", th.List)
			r.Get("/transactions/{id}", th.Get)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth, mw.Admin)

		r.Get("/transactions", th.AdminList)
		r.Get("/transactions/{id}", th.AdminGet)
		r.Post("/transactions/{id}/approve", th.Approve)
		r.Post("/transactions/{id}/reject", th.Reject)
	})

	return r
}
