// Package httpapi assembles the chi router for the public API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vesture/internal/http/handlers"
	"vesture/internal/middleware"
)

// Options carries router-level configuration.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	RateLimit      int
	CountryLookup  middleware.CountryLookup
}

// NewRouter wires every route behind the shared middleware chain. Payment
// webhooks stay outside the auth group since the gateway cannot present a
// user token.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)
	if opts.RateLimit > 0 {
		r.Use(middleware.RateLimit(opts.RateLimit, time.Minute))
	}

	r.Get("/healthz", app.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", app.Register)
		r.Post("/login", app.Login)
		r.With(middleware.AuthJWT(opts.JWTSecret)).Get("/me", app.Me)
	})

	r.Get("/plans", app.ListPlans)
	r.Get("/plans/{id}", app.GetPlan)
	r.Get("/models", app.ListModels)

	r.Post("/payments/webhook", app.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Use(middleware.Country(opts.CountryLookup))

		r.Route("/tokens", func(r chi.Router) {
			r.Get("/balance", app.TokenBalance)
			r.Post("/consume", app.ConsumeTokens)
			r.Get("/history", app.TokenHistory)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/current", app.CurrentSubscription)
			r.Post("/cancel", app.CancelSubscription)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/orders", app.CreatePaymentOrder)
			r.Get("/orders/{orderID}/status", app.PaymentOrderStatus)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", app.CreateTask)
			r.Get("/", app.ListTasks)
			r.Get("/{id}", app.GetTask)
		})

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", app.CreateBatch)
			r.Get("/{id}", app.GetBatch)
			r.Get("/{id}/download", app.DownloadBatch)
		})
	})

	return r
}
