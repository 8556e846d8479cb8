package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"masterdata/internal/dedupe"
	"masterdata/internal/domain"
)

func (h *Handler) handleActiveDuplicates(w http.ResponseWriter, r *http.Request) {
	records, err := h.dedupe.ActiveDuplicates(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, records)
}

func (h *Handler) handleQuarantineList(w http.ResponseWriter, r *http.Request) {
	records, err := h.dedupe.Quarantine(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, records)
}

func (h *Handler) handleGoldenList(w http.ResponseWriter, r *http.Request) {
	records, err := h.golden.ListGolden(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, records)
}

func (h *Handler) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.dedupe.Groups(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, groups)
}

func (h *Handler) handleGroupByTax(w http.ResponseWriter, r *http.Request) {
	includeMerged := r.URL.Query().Get("includeMerged") == "true"
	records, err := h.dedupe.ByTax(r.Context(), chi.URLParam(r, "taxNumber"), includeMerged)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, records)
}

func (h *Handler) handleGroupByMaster(w http.ResponseWriter, r *http.Request) {
	records, err := h.dedupe.Group(r.Context(), chi.URLParam(r, "masterId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, records)
}

type mergePayload struct {
	MasterID     string   `json:"masterId" validate:"required"`
	DuplicateIDs []string `json:"duplicateIds" validate:"required,min=1"`
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	var p mergePayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.dedupe.Merge(r.Context(), p.MasterID, p.DuplicateIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusOK, result)
}

type buildPayload struct {
	TaxNumber      string                     `json:"taxNumber" validate:"required"`
	SelectedFields map[domain.FieldKey]string `json:"selectedFields" validate:"required,min=1"`
	DuplicateIDs   []string                   `json:"duplicateIds" validate:"required,min=1"`
	QuarantineIDs  []string                   `json:"quarantineIds"`
	Contacts       []domain.Contact           `json:"contacts"`
	Documents      []domain.Document          `json:"documents"`
	ManualFields   map[domain.FieldKey]string `json:"manualFields"`
	MasterData     *domain.CompanyFields      `json:"masterData"`
	Provenance     *domain.BuildProvenance    `json:"builtFromRecords"`
	FromQuarantine bool                       `json:"fromQuarantine"`
}

func (h *Handler) handleBuildMaster(w http.ResponseWriter, r *http.Request) {
	var p buildPayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.dedupe.BuildMaster(r.Context(), dedupe.BuildCommand{
		TaxNumber:      p.TaxNumber,
		SelectedFields: p.SelectedFields,
		DuplicateIDs:   p.DuplicateIDs,
		QuarantineIDs:  p.QuarantineIDs,
		Contacts:       p.Contacts,
		Documents:      p.Documents,
		ManualFields:   p.ManualFields,
		MasterData:     p.MasterData,
		Provenance:     p.Provenance,
		FromQuarantine: p.FromQuarantine,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusCreated, result)
}

type resubmitPayload struct {
	OriginalRecordID string                     `json:"originalRecordId" validate:"required"`
	IsResubmission   bool                       `json:"isResubmission"`
	TaxNumber        string                     `json:"taxNumber" validate:"required"`
	SelectedFields   map[domain.FieldKey]string `json:"selectedFields"`
	DuplicateIDs     []string                   `json:"duplicateIds"`
	QuarantineIDs    []string                   `json:"quarantineIds"`
	Contacts         []domain.Contact           `json:"contacts"`
	Documents        []domain.Document          `json:"documents"`
	ManualFields     map[domain.FieldKey]string `json:"manualFields"`
	MasterData       *domain.CompanyFields      `json:"masterData"`
	Provenance       *domain.BuildProvenance    `json:"builtFromRecords"`
}

func (h *Handler) handleResubmitMaster(w http.ResponseWriter, r *http.Request) {
	var p resubmitPayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.dedupe.ResubmitMaster(r.Context(), dedupe.ResubmitCommand{
		OriginalRecordID: p.OriginalRecordID,
		IsResubmission:   p.IsResubmission,
		TaxNumber:        p.TaxNumber,
		SelectedFields:   p.SelectedFields,
		DuplicateIDs:     p.DuplicateIDs,
		QuarantineIDs:    p.QuarantineIDs,
		Contacts:         p.Contacts,
		Documents:        p.Documents,
		ManualFields:     p.ManualFields,
		MasterData:       p.MasterData,
		Provenance:       p.Provenance,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusOK, result)
}

type recommendPayload struct {
	TaxNumber string `json:"taxNumber" validate:"required"`
}

func (h *Handler) handleRecommendFields(w http.ResponseWriter, r *http.Request) {
	var p recommendPayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	recommendations, err := h.recommend.Recommend(r.Context(), p.TaxNumber)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, recommendations)
}
