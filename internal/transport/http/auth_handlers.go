package http

import (
	"errors"
	"net/http"

	"authority/internal/domain"
	"authority/internal/dto"
	"authority/internal/httpx"
)

type loginResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message,omitempty"`
	Token       string            `json:"token,omitempty"`
	User        *dto.UserResponse `json:"user,omitempty"`
	MFARequired bool              `json:"mfaRequired,omitempty"`
	ChallengeID string            `json:"challengeId,omitempty"`
	UserID      string            `json:"userId,omitempty"`
}

// respondLogin sets cookies for a finished login, or reports the pending
// second factor without any token.
func (h *handler) respondLogin(w http.ResponseWriter, res *dto.AuthResult, message string) {
	if res.MFARequired {
		writeJSON(w, http.StatusOK, loginResponse{
			Success:     true,
			Message:     "MFA verification required",
			MFARequired: true,
			ChallengeID: res.ChallengeID,
			UserID:      res.UserID,
		})
		return
	}
	h.cookies.SetTokens(w, res.Tokens)
	out := loginResponse{Success: true, Message: message, User: res.User}
	if res.Tokens != nil {
		out.Token = res.Tokens.AccessToken
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.auth.Register(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cookies.SetTokens(w, res.Tokens)
	writeJSON(w, http.StatusCreated, loginResponse{Success: true, Message: "Registration successful", User: res.User})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), req, clientIP(r), r.UserAgent())
	if errors.Is(err, domain.ErrNotFound) {
		// unknown email and wrong password look the same to the caller
		err = domain.ErrInvalidCredentials
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondLogin(w, res, "Login successful")
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), httpx.RefreshToken(r), principalFrom(r.Context())); err != nil {
		h.log(r).Warn("logout could not drop session", "err", err)
	}
	h.cookies.ClearTokens(w)
	writeJSON(w, http.StatusOK, ok("Logged out"))
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	raw := httpx.RefreshToken(r)
	if raw == "" && r.ContentLength > 0 {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if !h.decode(w, r, &body) {
			return
		}
		raw = body.RefreshToken
	}
	if raw == "" {
		h.writeAPIError(w, errInvalidRefresh)
		return
	}
	tokens, err := h.auth.Refresh(r.Context(), raw, clientIP(r))
	if err != nil {
		if classify(err) != nil {
			h.cookies.ClearTokens(w)
			h.writeAPIError(w, errInvalidRefresh)
			return
		}
		h.writeError(w, r, err)
		return
	}
	h.cookies.SetTokens(w, tokens)
	writeJSON(w, http.StatusOK, struct {
		okResponse
		Token string `json:"token"`
	}{ok("Token refreshed"), tokens.AccessToken})
}

func (h *handler) isAuthenticated(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		UserID  string `json:"userId"`
	}{true, p.UserID.String()})
}

func (h *handler) sendVerificationOTP(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SendVerifyOTP(r.Context(), principalFrom(r.Context()).UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Verification OTP sent"))
}

func (h *handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.auth.VerifyEmail(r.Context(), principalFrom(r.Context()).UserID, req.OTP); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Email verified"))
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.auth.ForgotPassword(r.Context(), req)
	var invalid *domain.ValidationError
	if errors.As(err, &invalid) {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		// the answer stays uniform; the failure is only logged
		h.log(r).Error("forgot password", "err", err)
	}
	writeJSON(w, http.StatusOK, ok("If the email is registered, a reset code has been sent"))
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cookies.ClearTokens(w)
	writeJSON(w, http.StatusOK, ok("Password has been reset"))
}

func (h *handler) userData(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.Me(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool              `json:"success"`
		User    *dto.UserResponse `json:"user"`
	}{true, u})
}
