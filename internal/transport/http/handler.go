package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"masterdata/internal/auth"
	"masterdata/internal/dedupe"
	"masterdata/internal/domain"
	"masterdata/internal/lineage"
	"masterdata/internal/platform/metrics"
	"masterdata/internal/quality"
	"masterdata/internal/storage"
	"masterdata/internal/workflow"
	dErrors "masterdata/pkg/domainerrors"
)

// WorkflowService is the request lifecycle surface the transport needs.
type WorkflowService interface {
	Create(ctx context.Context, cmd workflow.CreateCommand) (*domain.Request, error)
	Update(ctx context.Context, cmd workflow.UpdateCommand) (*domain.Request, error)
	Approve(ctx context.Context, requestID, note string, quarantineIDs []string, by domain.Identity) (*domain.Request, error)
	Reject(ctx context.Context, requestID, reason string, by domain.Identity) (*domain.Request, error)
	CompleteQuarantine(ctx context.Context, requestID string, by domain.Identity) (*domain.Request, error)
	Delete(ctx context.Context, requestID string) error
	Get(ctx context.Context, requestID string) (*domain.Request, error)
	List(ctx context.Context, filter storage.RequestFilter) ([]*domain.Request, error)
}

// GoldenService covers compliance decisions and the golden registry view.
type GoldenService interface {
	ComplianceApprove(ctx context.Context, requestID, note string, by domain.Identity) (*domain.Request, error)
	ComplianceBlock(ctx context.Context, requestID, reason string, by domain.Identity) (*domain.Request, error)
	ListGolden(ctx context.Context) ([]*domain.Request, error)
}

// DedupeService covers duplicate resolution commands and group views.
type DedupeService interface {
	Merge(ctx context.Context, masterID string, duplicateIDs []string) (*dedupe.MergeResult, error)
	BuildMaster(ctx context.Context, cmd dedupe.BuildCommand) (*dedupe.BuildResult, error)
	ResubmitMaster(ctx context.Context, cmd dedupe.ResubmitCommand) (*dedupe.BuildResult, error)
	ActiveDuplicates(ctx context.Context) ([]*domain.Request, error)
	Quarantine(ctx context.Context) ([]*domain.Request, error)
	Groups(ctx context.Context) ([]storage.GroupSummary, error)
	ByTax(ctx context.Context, taxNumber string, includeMerged bool) ([]*domain.Request, error)
	Group(ctx context.Context, masterID string) ([]*domain.Request, error)
}

// LineageService covers audit history read models.
type LineageService interface {
	History(ctx context.Context, requestID string) ([]domain.WorkflowEvent, error)
	Lineage(ctx context.Context, requestID string) (*lineage.Trail, error)
}

// RecommendService scores duplicate groups for the field picker.
type RecommendService interface {
	Recommend(ctx context.Context, taxNumber string) (*quality.Recommendations, error)
}

// StatsService serves dashboard counters.
type StatsService interface {
	Counts(ctx context.Context) (storage.Counts, error)
	Invalidate(ctx context.Context)
}

// AuthService authenticates operators and verifies bearer tokens.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*auth.Session, error)
	Verify(tokenString string) (domain.Identity, error)
}

// Handler is the thin HTTP layer. It delegates to domain services without
// embedding business logic so transport concerns remain isolated.
type Handler struct {
	log       *slog.Logger
	validate  *validator.Validate
	metrics   *metrics.Metrics
	workflow  WorkflowService
	golden    GoldenService
	dedupe    DedupeService
	lineage   LineageService
	recommend RecommendService
	stats     StatsService
	auth      AuthService
}

func NewHandler(
	workflow WorkflowService,
	golden GoldenService,
	dedupe DedupeService,
	lineage LineageService,
	recommend RecommendService,
	stats StatsService,
	auth AuthService,
	m *metrics.Metrics,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:       log,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		metrics:   m,
		workflow:  workflow,
		golden:    golden,
		dedupe:    dedupe,
		lineage:   lineage,
		recommend: recommend,
		stats:     stats,
		auth:      auth,
	}
}

// decode parses a JSON body into dst and runs struct validation on it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("encoding response failed", "error", err)
	}
}

// writeError centralizes domain error translation to HTTP responses. Keeping
// it here ensures consistent JSON error envelopes across every handler.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(code),
		"message": dErrors.MessageOf(err),
	})
}
