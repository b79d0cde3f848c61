package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sidecue/sidecue/internal/licensing/application"
	"github.com/sidecue/sidecue/internal/licensing/domain"
)

// LicenseHandler exposes license validation and credit gating.
type LicenseHandler struct {
	gate   *application.Service
	logger *slog.Logger
}

// NewLicenseHandler creates a new handler.
func NewLicenseHandler(gate *application.Service, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseHandler{gate: gate, logger: logger}
}

// Routes mounts the licensing endpoints.
func (h *LicenseHandler) Routes(r chi.Router) {
	r.Post("/validate-license", h.Validate)
	r.Post("/use-credit", h.UseCredit)
	r.Get("/license/playbooks", h.AllowedPlaybooks)
}

func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseKey string `json:"licenseKey"`
		DeviceID   string `json:"deviceId"`
		Version    string `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.gate.Validate(r.Context(), req.LicenseKey, req.DeviceID, req.Version)
	if err != nil {
		h.logger.Error("license validation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "validation failed")
		return
	}
	status := http.StatusOK
	if result.ReasonCode == domain.ReasonMissingKey {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

func (h *LicenseHandler) UseCredit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LicenseKey string `json:"licenseKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LicenseKey == "" {
		writeError(w, http.StatusBadRequest, "missing license key")
		return
	}

	result, err := h.gate.ConsumeCredit(r.Context(), req.LicenseKey)
	if err != nil {
		h.logger.Error("credit consumption failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to use credit")
		return
	}

	status := http.StatusOK
	switch result.ReasonCode {
	case domain.ReasonQuotaExceeded:
		status = http.StatusTooManyRequests
	case domain.ReasonInvalidKey:
		status = http.StatusUnauthorized
	case domain.ReasonUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func (h *LicenseHandler) AllowedPlaybooks(w http.ResponseWriter, r *http.Request) {
	licenseKey := r.URL.Query().Get("licenseKey")
	if licenseKey == "" {
		writeError(w, http.StatusBadRequest, "missing licenseKey parameter")
		return
	}

	playbooks, err := h.gate.PlaybooksForLicense(r.Context(), licenseKey)
	if err != nil {
		h.logger.Error("allow-list lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load playbooks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playbooks": playbooks})
}
