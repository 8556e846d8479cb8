package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all public endpoints. Login, health and metrics are open;
// everything under /api requires a bearer token.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(h.log, h.metrics))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/api/health", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/api/me", h.handleMe)
		r.Get("/api/stats", h.handleStats)

		r.Route("/api/requests", func(r chi.Router) {
			r.Get("/", h.handleListRequests)
			r.Post("/", h.handleCreateRequest)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetRequest)
				r.Put("/", h.handleUpdateRequest)
				r.Delete("/", h.handleDeleteRequest)
				r.Post("/approve", h.handleApprove)
				r.Post("/reject", h.handleReject)
				r.Post("/complete-quarantine", h.handleCompleteQuarantine)
				r.Post("/compliance/approve", h.handleComplianceApprove)
				r.Post("/compliance/block", h.handleComplianceBlock)
				r.Get("/history", h.handleHistory)
				r.Get("/lineage", h.handleLineage)
			})
		})

		r.Route("/api/duplicates", func(r chi.Router) {
			r.Get("/", h.handleActiveDuplicates)
			r.Get("/quarantine", h.handleQuarantineList)
			r.Get("/golden", h.handleGoldenList)
			r.Get("/groups", h.handleGroups)
			r.Get("/by-tax/{taxNumber}", h.handleGroupByTax)
			r.Get("/group/{masterId}", h.handleGroupByMaster)
			r.Post("/merge", h.handleMerge)
			r.Post("/build-master", h.handleBuildMaster)
			r.Post("/resubmit-master", h.handleResubmitMaster)
			r.Post("/recommend-fields", h.handleRecommendFields)
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
