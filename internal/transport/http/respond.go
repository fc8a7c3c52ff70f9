package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"authority/internal/domain"
	"authority/internal/oauth"
	"authority/internal/observability/logging"
)

const maxBodyBytes = 1 << 20

// apiError is the stable error shape clients switch on.
type apiError struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	Code        string     `json:"code"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`

	status int
}

func newAPIError(status int, code, message string) *apiError {
	return &apiError{status: status, Code: code, Message: message}
}

var (
	errUnauthorized    = newAPIError(http.StatusUnauthorized, "AUTH_001", "You are not authorized to access this resource")
	errTokenExpired    = newAPIError(http.StatusUnauthorized, "AUTH_002", "Authentication token is invalid or expired")
	errInvalidRefresh  = newAPIError(http.StatusUnauthorized, "AUTH_003", "Refresh token is invalid or expired")
	errBadCredentials  = newAPIError(http.StatusUnauthorized, "AUTH_004", "Email or password is incorrect")
	errUserNotFound    = newAPIError(http.StatusNotFound, "USER_001", "User not found")
	errUserExists      = newAPIError(http.StatusBadRequest, "USER_002", "User with this email already exists")
	errAlreadyVerified = newAPIError(http.StatusBadRequest, "ACC_001", "Account is already verified")
	errLocked          = newAPIError(http.StatusLocked, "ACC_003", "Account is temporarily locked due to multiple failed login attempts")
	errInvalidOTP      = newAPIError(http.StatusBadRequest, "OTP_001", "The OTP you entered is invalid")
	errOTPExpired      = newAPIError(http.StatusBadRequest, "OTP_002", "The OTP has expired, please request a new one")
	errInvalidRequest  = newAPIError(http.StatusBadRequest, "REQ_002", "Invalid request parameters")
	errTooMany         = newAPIError(http.StatusTooManyRequests, "SEC_001", "Too many attempts, please try again later")
	errCrossOrigin     = newAPIError(http.StatusForbidden, "SEC_002", "Cross-origin request rejected")
	errSessionNotFound = newAPIError(http.StatusNotFound, "SES_001", "Session not found or already expired")
	errRevokeCurrent   = newAPIError(http.StatusBadRequest, "SES_002", "Cannot revoke the current session, log out instead")
	errInvalidMFACode  = newAPIError(http.StatusBadRequest, "MFA_001", "Invalid verification code")
	errInternal        = newAPIError(http.StatusInternalServerError, "SRV_001", "An internal server error occurred")
)

// classify maps a service error onto its HTTP status and error code.
// Unknown errors come back as nil.
func classify(err error) *apiError {
	var locked *domain.LockedError
	if errors.As(err, &locked) {
		e := *errLocked
		until := locked.Until.UTC()
		e.LockedUntil = &until
		return &e
	}
	var invalid *domain.ValidationError
	if errors.As(err, &invalid) {
		return newAPIError(http.StatusBadRequest, "REQ_001", invalid.Error())
	}
	switch {
	case errors.Is(err, domain.ErrValidationFailed):
		return errInvalidRequest
	case errors.Is(err, domain.ErrAlreadyExists):
		return errUserExists
	case errors.Is(err, domain.ErrInvalidCredentials):
		return errBadCredentials
	case errors.Is(err, domain.ErrTokenExpired):
		return errTokenExpired
	case errors.Is(err, domain.ErrInvalidToken):
		return errUnauthorized
	case errors.Is(err, domain.ErrInvalidOtp):
		return errInvalidOTP
	case errors.Is(err, domain.ErrOtpExpired):
		return errOTPExpired
	case errors.Is(err, domain.ErrInvalidCode):
		return errInvalidMFACode
	case errors.Is(err, domain.ErrCannotRevokeCurrent):
		return errRevokeCurrent
	case errors.Is(err, domain.ErrSessionNotFound):
		return errSessionNotFound
	case errors.Is(err, domain.ErrAlreadyVerified):
		return errAlreadyVerified
	case errors.Is(err, domain.ErrMfaNotSetup):
		return newAPIError(http.StatusBadRequest, "MFA_001", "MFA setup has not been started")
	case errors.Is(err, domain.ErrMfaAlreadyEnabled):
		return newAPIError(http.StatusBadRequest, "MFA_001", "MFA is already enabled")
	case errors.Is(err, domain.ErrMfaNotEnabled):
		return newAPIError(http.StatusBadRequest, "MFA_001", "MFA is not enabled")
	case errors.Is(err, domain.ErrProviderUnknown):
		return newAPIError(http.StatusNotFound, "REQ_002", "Unknown OAuth provider")
	case errors.Is(err, oauth.ErrNoVerifiedEmail):
		return newAPIError(http.StatusBadRequest, "REQ_002", "The provider did not return a verified email")
	case errors.Is(err, domain.ErrNotFound):
		return errUserNotFound
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e == nil {
		h.log(r).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		e = errInternal
	}
	h.writeAPIError(w, e)
}

func (h *handler) writeAPIError(w http.ResponseWriter, e *apiError) {
	if e.LockedUntil != nil {
		if secs := int(time.Until(*e.LockedUntil).Seconds()); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	writeJSON(w, e.status, e)
}

func (h *handler) log(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context(), h.logger)
}

// decode reads a JSON body. A malformed body is reported as REQ_002.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.writeAPIError(w, errInvalidRequest)
		return false
	}
	return true
}

type okResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func ok(message string) okResponse { return okResponse{Success: true, Message: message} }
