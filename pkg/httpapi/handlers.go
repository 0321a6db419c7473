package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-ctap/biobridge/pkg/biotypes"
	"github.com/go-ctap/biobridge/pkg/prefs"
	"github.com/go-ctap/biobridge/pkg/restore"
	"github.com/go-ctap/biobridge/pkg/sugar"
	"github.com/go-ctap/biobridge/pkg/vault"
)

// Service is the application boundary served over HTTP. *sugar.Bridge implements it.
type Service interface {
	AuthenticateWithBiometric(ctx context.Context, prompt biotypes.PromptConfig) sugar.AuthResult
	ResetBiometricRetry(ctx context.Context)
	SetCredentials(ctx context.Context, username, password string) (vault.Metadata, error)
	CheckBiometricAvailability(ctx context.Context) biotypes.Capability
	HasBiometricCredentials(ctx context.Context) bool
	DisableBiometricLocally(ctx context.Context) error
	EnableBiometric(ctx context.Context, req sugar.EnableRequest) sugar.EnableResult
	Preferences(ctx context.Context) (prefs.Preferences, error)
	DeviceID(ctx context.Context) string
	BiometricType(ctx context.Context) string
}

var _ Service = (*sugar.Bridge)(nil)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.CheckBiometricAvailability(r.Context()))
}

func (h *Handler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var prompt biotypes.PromptConfig
	if !decodeOptional(w, r, &prompt) {
		return
	}

	res := h.service.AuthenticateWithBiometric(r.Context(), prompt)
	if res.Busy {
		respondWithJSON(w, http.StatusConflict, res)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) handleResetRetry(w http.ResponseWriter, r *http.Request) {
	h.service.ResetBiometricRetry(r.Context())
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleHasCredentials(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]bool{
		"hasCredentials": h.service.HasBiometricCredentials(r.Context()),
	})
}

func (h *Handler) handleSetCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	md, err := h.service.SetCredentials(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "storage": md})
	case errors.Is(err, vault.ErrInvalidCredential):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, restore.ErrUnavailable):
		respondWithError(w, http.StatusPreconditionFailed, "Biometric authentication not available")
	default:
		h.logger.Error("httpapi: cannot save credentials", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Could not save credentials")
	}
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DisableBiometricLocally(r.Context()); err != nil {
		h.logger.Error("httpapi: cannot disable biometric login", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Could not disable biometric login")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleEnable(w http.ResponseWriter, r *http.Request) {
	var req sugar.EnableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := h.service.EnableBiometric(r.Context(), req)
	if !res.Enrolled {
		respondWithJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Preferences(r.Context())
	if err != nil {
		h.logger.Error("httpapi: cannot read preferences", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Could not read preferences")
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDevice(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"deviceId":      h.service.DeviceID(r.Context()),
		"biometricType": h.service.BiometricType(r.Context()),
	})
}

// decodeOptional decodes a JSON body into v, accepting an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	respondWithError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Success: false, Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
