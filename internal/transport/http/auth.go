package httpapi

import (
	"net/http"

	"masterdata/internal/auth"
)

type loginPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var p loginPayload
	if err := h.decode(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.auth.Login(r.Context(), p.Username, p.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, session)
}

// handleMe echoes the verified identity with its permission set, so clients
// can restore a session from a stored token.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	h.respond(w, http.StatusOK, map[string]any{
		"username":    identity.Username,
		"role":        identity.Role,
		"permissions": auth.PermissionsFor(identity.Role),
	})
}
