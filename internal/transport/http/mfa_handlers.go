package http

import (
	"net/http"

	"authority/internal/dto"
)

func (h *handler) mfaSetup(w http.ResponseWriter, r *http.Request) {
	res, err := h.mfa.GenerateSecret(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool                  `json:"success"`
		Data    *dto.MFASetupResponse `json:"data"`
	}{true, res})
}

func (h *handler) mfaEnable(w http.ResponseWriter, r *http.Request) {
	var req dto.MFAEnableRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	codes, err := h.mfa.Enable(r.Context(), principalFrom(r.Context()).UserID, req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool                  `json:"success"`
		Message string                `json:"message"`
		Data    dto.MFAEnableResponse `json:"data"`
	}{true, "MFA enabled", dto.MFAEnableResponse{BackupCodes: codes}})
}

func (h *handler) mfaDisable(w http.ResponseWriter, r *http.Request) {
	var req dto.MFADisableRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.auth.DisableMFA(r.Context(), principalFrom(r.Context()).UserID, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("MFA disabled"))
}

func (h *handler) mfaVerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.MFALoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.auth.VerifyMFALogin(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondLogin(w, res, "Login successful")
}
