package http

import (
	"net/http"

	"authority/internal/dto"

	"github.com/go-chi/chi/v5"
)

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	sessions, err := h.sessions.List(r.Context(), p.UserID, p.TokenID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []dto.SessionResponse{}
	}
	writeJSON(w, http.StatusOK, struct {
		Success  bool                  `json:"success"`
		Sessions []dto.SessionResponse `json:"sessions"`
	}{true, sessions})
}

func (h *handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := h.sessions.Revoke(r.Context(), p.UserID, chi.URLParam(r, "id"), p.TokenID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Session revoked"))
}

func (h *handler) revokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	n, err := h.sessions.RevokeAll(r.Context(), p.UserID, p.TokenID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		okResponse
		Revoked int `json:"revoked"`
	}{ok("Other sessions revoked"), n})
}
