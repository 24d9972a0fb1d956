package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/setof-commerce/order-core/internal/httpx/middlewares"
	"github.com/setof-commerce/order-core/internal/pkg/metrics"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/checkouts", func(r chi.Router) {
		r.Post("/", handler.CreateCheckout)
		r.Get("/{id}", handler.GetCheckout)
		r.Post("/{id}/complete", handler.CompleteCheckout)
		r.Post("/{id}/expire", handler.ExpireCheckout)
		r.Post("/{id}/cancel", handler.CancelCheckout)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/{id}", handler.GetOrder)
		r.Get("/{id}/events", handler.ListOrderEvents)
		r.Post("/{id}/events", handler.RecordOrderEvent)
		r.Get("/{id}/claims", handler.ListOrderClaims)
		r.Post("/{id}/claims", handler.RequestClaim)
	})

	r.Route("/claims", func(r chi.Router) {
		r.Get("/{id}", handler.GetClaim)
		r.Post("/{id}/approve", handler.ApproveClaim)
		r.Post("/{id}/reject", handler.RejectClaim)
		r.Post("/{id}/complete", handler.CompleteClaim)
	})

	return otelhttp.NewHandler(r, "order-core")
}
