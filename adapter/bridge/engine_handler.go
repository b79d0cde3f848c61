package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sidecue/sidecue/internal/playbooks/domain"
	"github.com/sidecue/sidecue/internal/playbooks/engine"
)

// EngineHandler exposes trigger-engine control to the shell.
type EngineHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewEngineHandler creates a new handler.
func NewEngineHandler(eng *engine.Engine, logger *slog.Logger) *EngineHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineHandler{engine: eng, logger: logger}
}

// Routes mounts the engine endpoints.
func (h *EngineHandler) Routes(r chi.Router) {
	r.Post("/engine/load", h.LoadPlaybook)
	r.Post("/engine/unload", h.UnloadPlaybook)
	r.Get("/engine/active", h.GetActive)
	r.Post("/engine/transcript", h.ProcessTranscript)
	r.Post("/engine/contextual-response", h.ContextualResponse)
}

func (h *EngineHandler) LoadPlaybook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlaybookID string `json:"playbookId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := uuid.Parse(req.PlaybookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid playbook id")
		return
	}

	if err := h.engine.LoadPlaybook(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrPlaybookNotFound) {
			writeError(w, http.StatusNotFound, "playbook not found")
			return
		}
		h.logger.Error("failed to load playbook", "playbook_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load playbook")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loaded": true, "playbookId": id})
}

func (h *EngineHandler) UnloadPlaybook(w http.ResponseWriter, r *http.Request) {
	h.engine.UnloadPlaybook()
	writeJSON(w, http.StatusOK, map[string]any{"loaded": false})
}

func (h *EngineHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.engine.ActiveID()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "playbookId": id})
}

func (h *EngineHandler) ProcessTranscript(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Turn          string `json:"turn"`
		ScreenContent string `json:"screenContent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	suggestion, err := h.engine.ProcessTranscript(r.Context(), req.Turn, req.ScreenContent)
	if err != nil {
		h.logger.Error("transcript processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "transcript processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestion": suggestion})
}

func (h *EngineHandler) ContextualResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt  string   `json:"prompt"`
		History []string `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response": h.engine.GenerateContextualResponse(req.Prompt, req.History),
	})
}
