package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"masterdata/internal/domain"
	"masterdata/internal/platform/metrics"
	dErrors "masterdata/pkg/domainerrors"
)

type contextKeyIdentity struct{}

// identityFrom retrieves the authenticated operator from the context. The
// zero Identity means the request was not authenticated.
func identityFrom(ctx context.Context) domain.Identity {
	id, ok := ctx.Value(contextKeyIdentity{}).(domain.Identity)
	if !ok {
		return domain.Identity{}
	}
	return id
}

// withIdentity stores the authenticated operator on the context. Exported to
// tests via the handlers only; production requests pass through requireAuth.
func withIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity{}, id)
}

// requireAuth verifies the bearer token and stores the operator identity on
// the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.writeError(w, r, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
			return
		}
		identity, err := h.auth.Verify(token)
		if err != nil {
			h.log.WarnContext(r.Context(), "rejected bearer token", "error", err)
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// requestLogger logs one line per served request and feeds the latency
// histogram, labeled with the chi route pattern rather than the raw path so
// metric cardinality stays bounded.
func requestLogger(log *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			m.ObserveHTTPRequest(r.Method, route, ww.Status(), started)
			log.InfoContext(r.Context(), "request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(started),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
