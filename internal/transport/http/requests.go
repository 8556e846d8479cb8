package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"masterdata/internal/domain"
	"masterdata/internal/storage"
	"masterdata/internal/workflow"
	dErrors "masterdata/pkg/domainerrors"
)

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.RequestFilter{
		Status:     domain.RequestStatus(q.Get("status")),
		Origin:     domain.Origin(q.Get("origin")),
		AssignedTo: q.Get("assignedTo"),
	}
	if raw := q.Get("isGolden"); raw != "" {
		golden := raw == "true"
		filter.IsGolden = &golden
	}
	requests, err := h.workflow.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, requests)
}

type createPayload struct {
	domain.CompanyFields
	Contacts  []domain.Contact  `json:"contacts"`
	Documents []domain.Document `json:"documents"`

	Origin              domain.Origin        `json:"origin"`
	SourceSystem        string               `json:"sourceSystem"`
	Status              domain.RequestStatus `json:"status"`
	RequestType         domain.RequestType   `json:"requestType"`
	OriginalRequestType domain.RequestType   `json:"originalRequestType"`
	SourceGoldenID      string               `json:"sourceGoldenId"`
	FromQuarantine      bool                 `json:"fromQuarantine"`
	Note                string               `json:"note"`
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	if p.CompanyName == "" {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "companyName is required"))
		return
	}
	identity := identityFrom(r.Context())

	request, err := h.workflow.Create(r.Context(), workflow.CreateCommand{
		Fields:              p.CompanyFields,
		Contacts:            p.Contacts,
		Documents:           p.Documents,
		Origin:              p.Origin,
		SourceSystem:        p.SourceSystem,
		Status:              p.Status,
		CreatedBy:           identity.Username,
		SourceGoldenID:      p.SourceGoldenID,
		RequestType:         p.RequestType,
		OriginalRequestType: p.OriginalRequestType,
		FromQuarantine:      p.FromQuarantine,
		Note:                p.Note,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusCreated, request)
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, request)
}

type updatePayload struct {
	Status           *domain.RequestStatus    `json:"status"`
	AssignedTo       *string                  `json:"assignedTo"`
	ComplianceStatus *domain.ComplianceStatus `json:"complianceStatus"`
	CompanyStatus    *domain.CompanyStatus    `json:"companyStatus"`
	RejectReason     *string                  `json:"rejectReason"`
	Contacts         *[]domain.Contact        `json:"contacts"`
	Documents        *[]domain.Document       `json:"documents"`
	UpdateReason     string                   `json:"updateReason"`
	Note             string                   `json:"note"`
}

// handleUpdateRequest applies an edit. Tracked fields are diffed only when the
// body actually carries the key, so the raw body is inspected next to the
// typed payload. A submitted contacts list is reconciled against the stored
// contacts into explicit insert/update/delete operations.
func (h *Handler) handleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeBadRequest, "reading request body"))
		return
	}
	var p updatePayload
	if err := json.Unmarshal(body, &p); err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	fields := make(map[domain.FieldKey]string)
	for _, key := range domain.TrackedFields {
		value, submitted := raw[string(key)]
		if !submitted {
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, string(key)+" must be a string"))
			return
		}
		fields[key] = s
	}

	identity := identityFrom(r.Context())
	cmd := workflow.UpdateCommand{
		RequestID:        id,
		Fields:           fields,
		Status:           p.Status,
		AssignedTo:       p.AssignedTo,
		ComplianceStatus: p.ComplianceStatus,
		CompanyStatus:    p.CompanyStatus,
		RejectReason:     p.RejectReason,
		Documents:        p.Documents,
		UpdatedBy:        identity.Username,
		UpdatedByRole:    identity.Role,
		UpdateReason:     p.UpdateReason,
		Note:             p.Note,
	}

	if p.Contacts != nil {
		existing, err := h.workflow.Get(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		cmd.Contacts = reconcileContacts(existing.Contacts, *p.Contacts)
	}

	request, err := h.workflow.Update(r.Context(), cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusOK, request)
}

// reconcileContacts turns a full submitted contact list into explicit
// operations: known ids update, unknown or empty ids insert, and stored
// contacts missing from the submission are deleted.
func reconcileContacts(existing, submitted []domain.Contact) []domain.ContactChange {
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[c.ID] = true
	}

	var ops []domain.ContactChange
	seen := make(map[string]bool, len(submitted))
	for _, c := range submitted {
		if c.ID != "" && known[c.ID] {
			seen[c.ID] = true
			ops = append(ops, domain.ContactChange{Op: domain.ContactUpdate, Contact: c})
			continue
		}
		c.ID = ""
		ops = append(ops, domain.ContactChange{Op: domain.ContactInsert, Contact: c})
	}
	for _, c := range existing {
		if !seen[c.ID] {
			ops = append(ops, domain.ContactChange{Op: domain.ContactDelete, Contact: domain.Contact{ID: c.ID}})
		}
	}
	return ops
}

func (h *Handler) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.workflow.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type approvePayload struct {
	Note          string   `json:"note"`
	QuarantineIDs []string `json:"quarantineIds"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	var p approvePayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	request, err := h.workflow.Approve(r.Context(), chi.URLParam(r, "id"), p.Note, p.QuarantineIDs, identityFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusOK, request)
}

type reasonPayload struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var p reasonPayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	request, err := h.workflow.Reject(r.Context(), chi.URLParam(r, "id"), p.Reason, identityFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusOK, request)
}

func (h *Handler) handleCompleteQuarantine(w http.ResponseWriter, r *http.Request) {
	request, err := h.workflow.CompleteQuarantine(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusOK, request)
}

type notePayload struct {
	Note string `json:"note"`
}

func (h *Handler) handleComplianceApprove(w http.ResponseWriter, r *http.Request) {
	var p notePayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	request, err := h.golden.ComplianceApprove(r.Context(), chi.URLParam(r, "id"), p.Note, identityFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusOK, request)
}

func (h *Handler) handleComplianceBlock(w http.ResponseWriter, r *http.Request) {
	var p reasonPayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	request, err := h.golden.ComplianceBlock(r.Context(), chi.URLParam(r, "id"), p.Reason, identityFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stats.Invalidate(r.Context())
	h.respond(w, http.StatusOK, request)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.lineage.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, events)
}

func (h *Handler) handleLineage(w http.ResponseWriter, r *http.Request) {
	trail, err := h.lineage.Lineage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, trail)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.Counts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, counts)
}
