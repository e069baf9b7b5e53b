package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler exposes the auth flows over HTTP.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
	// baseURL prefixes reset links; empty derives it from the request.
	baseURL string
}

func NewHandler(svc *Service, baseURL string, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger, baseURL: strings.TrimRight(baseURL, "/")}
}

// Routes mounts the handlers on r, normally under /api/auth.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh-token", h.RefreshToken)
	r.Get("/validate-token", h.ValidateToken)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/reset-password", h.ResetPassword)
	r.Post("/logout", h.Logout)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
		return
	}
	resp, err := h.svc.RefreshToken(r.Context(), raw)
	if err != nil {
		h.writeError(w, r, "refresh token", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	raw, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
		return
	}
	profile, err := h.svc.ValidateToken(r.Context(), raw)
	if err != nil {
		h.writeError(w, r, "validate token", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req, h.requestBaseURL(r)); err != nil {
		h.writeError(w, r, "forgot password", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		h.writeError(w, r, "reset password", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw, ok := bearerToken(r); ok {
		h.svc.Logout(r.Context(), raw)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid payload", nil)
		return false
	}
	return true
}

// requestBaseURL prefers the configured public URL and otherwise rebuilds
// scheme and host from the request, honouring X-Forwarded-Proto.
func (h *Handler) requestBaseURL(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(p, ",")[0]))
	}
	return scheme + "://" + r.Host
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", false
	}
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		h = strings.TrimSpace(h[7:])
	}
	return h, h != ""
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warnw("request failed", "op", op, "path", r.URL.Path, "status", status, "err", err)
	} else {
		h.logger.Debugw("request rejected", "op", op, "path", r.URL.Path, "status", status, "code", code, "err", err)
	}
	var fields map[string]string
	var verr *ValidationError
	if errors.As(err, &verr) {
		fields = verr.Fields
	}
	writeError(w, status, code, msg, fields)
}

// mapError translates domain errors into status, machine code and a message
// that is safe to show to clients.
func mapError(err error) (int, string, string) {
	var rte *resetTokenError
	switch {
	case errors.As(err, new(*ValidationError)):
		return http.StatusBadRequest, "VALIDATION_ERROR", "request validation failed"
	case errors.Is(err, ErrDuplicateUsername):
		return http.StatusBadRequest, "DUPLICATE_USERNAME", "Username is already taken"
	case errors.Is(err, ErrDuplicateEmail):
		return http.StatusBadRequest, "DUPLICATE_EMAIL", "Email is already registered"
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, "USER_NOT_FOUND", "user not found"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials"
	case errors.Is(err, ErrAccountLocked):
		return http.StatusForbidden, "ACCOUNT_LOCKED", "account is locked"
	case errors.Is(err, ErrAccountDisabled):
		return http.StatusForbidden, "ACCOUNT_DISABLED", "account is disabled"
	case errors.Is(err, ErrAccountExpired):
		return http.StatusForbidden, "ACCOUNT_EXPIRED", "account has expired"
	case errors.Is(err, ErrCredentialsExpired):
		return http.StatusForbidden, "CREDENTIALS_EXPIRED", "credentials have expired"
	case errors.As(err, &rte):
		if errors.Is(rte, ErrExpiredToken) {
			return http.StatusBadRequest, "EXPIRED_TOKEN", "Token has expired"
		}
		return http.StatusBadRequest, "INVALID_TOKEN", "Invalid or expired token"
	case errors.Is(err, ErrMalformedToken):
		return http.StatusUnauthorized, "MALFORMED_TOKEN", "malformed token"
	case errors.Is(err, ErrExpiredToken), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token"
	case errors.Is(err, ErrRemoteService):
		return http.StatusServiceUnavailable, "REMOTE_SERVICE_ERROR", "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

type apiError struct {
	Status  string            `json:"status"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, fields map[string]string) {
	writeJSON(w, status, apiError{Status: "error", Code: code, Message: message, Errors: fields})
}
