package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformobservability "github.com/infracdo/backoffice/platform/observability"
)

// NewRouter создаёт и настраивает HTTP роутер для Transaction Service
// auth проверяет requester для /payment и /list; webhook шлюза идёт без авторизации.
// health отдаётся без middleware авторизации.
func NewRouter(handler *Handler, auth func(http.Handler) http.Handler, health http.HandlerFunc, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	// Observability: trace context + span на каждый запрос, logger с trace_id в контексте
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("transaction", logger))
	}

	router.Route("/api/transaction", func(r chi.Router) {
		r.Post("/payment/webhook", handler.PostWebhook)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/payment", handler.PostPayment)
			r.Get("/list", handler.GetList)
		})
	})

	if health != nil {
		router.Get("/health", health)
	}

	return router
}
