package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/provenance-system/internal/middleware"
)

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса происхождения поставок.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/session/connect", h.Connect)
		r.Post("/chat", h.Chat)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/initialize", h.Initialize)
			r.Post("/refresh", h.Refresh)

			r.Get("/batches", h.GetBatches)
			r.Post("/batches", h.RegisterBatch)
			r.Get("/batches/grouped", h.GetBatchesGrouped)
			r.Post("/batches/approve", h.ApproveBatch)
			r.Post("/batches/status", h.UpdateBatchStatus)
			r.Get("/batches/select", h.GetSelected)
			r.Post("/batches/select", h.SelectBatch)
			r.Get("/batches/{owner}/{id}", h.GetBatch)

			r.Get("/orders", h.GetOrders)
			r.Post("/orders", h.CreateOrder)
			r.Post("/orders/delivered", h.MarkOrderDelivered)

			r.Get("/feedbacks", h.GetFeedbacks)
			r.Post("/feedbacks", h.SubmitFeedback)

			r.Get("/suppliers", h.GetSuppliers)
			r.Get("/warnings", h.GetWarnings)
			r.Get("/reputation/{address}", h.GetReputation)
		})
	})

	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
