package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sidecue/sidecue/internal/playbooks/application"
	"github.com/sidecue/sidecue/internal/playbooks/domain"
)

// PlaybookHandler exposes playbook, prompt, document, and collection
// CRUD to the shell.
type PlaybookHandler struct {
	service *application.Service
	logger  *slog.Logger
}

// NewPlaybookHandler creates a new handler.
func NewPlaybookHandler(service *application.Service, logger *slog.Logger) *PlaybookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybookHandler{service: service, logger: logger}
}

// Routes mounts the playbook endpoints.
func (h *PlaybookHandler) Routes(r chi.Router) {
	r.Get("/playbooks", h.List)
	r.Get("/playbooks/templates", h.Templates)
	r.Get("/playbooks/suggested", h.Suggested)
	r.Post("/playbooks", h.Create)
	r.Get("/playbooks/{playbookID}", h.Get)
	r.Patch("/playbooks/{playbookID}", h.Update)
	r.Delete("/playbooks/{playbookID}", h.Delete)
	r.Post("/playbooks/{playbookID}/prompts", h.AddPrompt)
	r.Patch("/prompts/{promptID}", h.UpdatePrompt)
	r.Delete("/prompts/{promptID}", h.DeletePrompt)
	r.Post("/playbooks/{playbookID}/documents", h.AddDocument)
	r.Delete("/documents/{documentID}", h.DeleteDocument)
	r.Get("/collection", h.Collection)
	r.Post("/collection/{playbookID}", h.AddToCollection)
	r.Delete("/collection/{playbookID}", h.RemoveFromCollection)
	r.Post("/collection/{playbookID}/favorite", h.ToggleFavorite)
}

func pathID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func (h *PlaybookHandler) List(w http.ResponseWriter, r *http.Request) {
	if category := r.URL.Query().Get("category"); category != "" {
		playbooks, err := h.service.GetByCategory(r.Context(), category)
		if err != nil {
			h.fail(w, "failed to list playbooks", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"playbooks": playbooks})
		return
	}

	playbooks, err := h.service.GetAllPlaybooks(r.Context())
	if err != nil {
		h.fail(w, "failed to list playbooks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playbooks": playbooks})
}

func (h *PlaybookHandler) Templates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.GetTemplates(r.Context())
	if err != nil {
		h.fail(w, "failed to load templates", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playbooks": templates})
}

func (h *PlaybookHandler) Suggested(w http.ResponseWriter, r *http.Request) {
	playbooks, err := h.service.GetSuggestedPlaybooks(r.Context(), r.URL.Query().Get("text"))
	if err != nil {
		h.fail(w, "failed to load suggestions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playbooks": playbooks})
}

func (h *PlaybookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "playbookID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid playbook id")
		return
	}
	detail, err := h.service.GetPlaybookWithPrompts(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to load playbook", err)
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, "playbook not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *PlaybookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Icon        string `json:"icon"`
		IsPremium   bool   `json:"isPremium"`
		Prompts     []struct {
			TriggerType  string `json:"triggerType"`
			TriggerValue string `json:"triggerValue"`
			PromptText   string `json:"promptText"`
			Priority     int    `json:"priority"`
			OrderIndex   int    `json:"orderIndex"`
		} `json:"prompts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	input := application.CreatePlaybookInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Icon:        req.Icon,
		IsPremium:   req.IsPremium,
	}
	for _, p := range req.Prompts {
		input.Prompts = append(input.Prompts, application.PromptInput{
			TriggerType:  domain.TriggerType(p.TriggerType),
			TriggerValue: p.TriggerValue,
			PromptText:   p.PromptText,
			Priority:     p.Priority,
			OrderIndex:   p.OrderIndex,
		})
	}

	playbook, err := h.service.CreatePlaybook(r.Context(), input)
	if err != nil {
		h.fail(w, "failed to create playbook", err)
		return
	}
	writeJSON(w, http.StatusCreated, playbook)
}

func (h *PlaybookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "playbookID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid playbook id")
		return
	}
	var patch struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Category    *string `json:"category"`
		Icon        *string `json:"icon"`
		IsPremium   *bool   `json:"isPremium"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.UpdatePlaybook(r.Context(), id, domain.PlaybookPatch{
		Name:        patch.Name,
		Description: patch.Description,
		Category:    patch.Category,
		Icon:        patch.Icon,
		IsPremium:   patch.IsPremium,
	})
	if err != nil {
		h.fail(w, "failed to update playbook", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (h *PlaybookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "playbookID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid playbook id")
		return
	}
	if err := h.service.DeletePlaybook(r.Context(), id); err != nil {
		h.fail(w, "failed to delete playbook", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *PlaybookHandler) AddPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "playbookID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid playbook id")
		return
	}
	var req struct {
		TriggerType  string `json:"triggerType"`
		TriggerValue string `json:"triggerValue"`
		PromptText   string `json:"promptText"`
		Priority     int    `json:"priority"`
		OrderIndex   int    `json:"orderIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prompt, err := h.service.AddPrompt(r.Context(), id, application.PromptInput{
		TriggerType:  domain.TriggerType(req.TriggerType),
		TriggerValue: req.TriggerValue,
		PromptText:   req.PromptText,
		Priority:     req.Priority,
		OrderIndex:   req.OrderIndex,
	})
	if err != nil {
		h.fail(w, "failed to add prompt", err)
		return
	}
	writeJSON(w, http.StatusCreated, prompt)
}

func (h *PlaybookHandler) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "promptID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid prompt id")
		return
	}
	var patch struct {
		TriggerValue *string `json:"triggerValue"`
		PromptText   *string `json:"promptText"`
		Priority     *int    `json:"priority"`
		OrderIndex   *int    `json:"orderIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.service.UpdatePrompt(r.Context(), id, domain.PromptPatch{
		TriggerValue: patch.TriggerValue,
		PromptText:   patch.PromptText,
		Priority:     patch.Priority,
		OrderIndex:   patch.OrderIndex,
	})
	if err != nil {
		h.fail(w, "failed to update prompt", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (h *PlaybookHandler) DeletePrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "promptID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid prompt id")
		return
	}
	if err := h.service.DeletePrompt(r.Context(), id); err != nil {
		h.fail(w, "failed to delete prompt", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *PlaybookHandler) AddDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "playbookID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid playbook id")
		return
	}
	var req struct {
		FileName      string `json:"fileName"`
		FileURL       string `json:"fileUrl"`
		FileType      string `json:"fileType"`
		ProcessedText string `json:"processedText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	document := &domain.Document{
		PlaybookID:    id,
		FileName:      req.FileName,
		FileURL:       req.FileURL,
		FileType:      req.FileType,
		ProcessedText: req.ProcessedText,
	}
	if err := h.service.AddDocument(r.Context(), document); err != nil {
		h.fail(w, "failed to add document", err)
		return
	}
	writeJSON(w, http.StatusCreated, document)
}

func (h *PlaybookHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "documentID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	if err := h.service.DeleteDocument(r.Context(), id); err != nil {
		h.fail(w, "failed to delete document", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *PlaybookHandler) Collection(w http.ResponseWriter, r *http.Request) {
	memberships, err := h.service.GetUserPlaybooks(r.Context())
	if err != nil {
		h.fail(w, "failed to load collection", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playbooks": memberships})
}

func (h *PlaybookHandler) AddToCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "playbookID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid playbook id")
		return
	}
	membership, err := h.service.AddToCollection(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to add to collection", err)
		return
	}
	writeJSON(w, http.StatusOK, membership)
}

func (h *PlaybookHandler) RemoveFromCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "playbookID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid playbook id")
		return
	}
	if err := h.service.RemoveFromCollection(r.Context(), id); err != nil {
		h.fail(w, "failed to remove from collection", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (h *PlaybookHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "playbookID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid playbook id")
		return
	}
	if err := h.service.ToggleFavorite(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrUserPlaybookNotFound) {
			writeError(w, http.StatusNotFound, "playbook not in collection")
			return
		}
		h.fail(w, "failed to toggle favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"toggled": true})
}

func (h *PlaybookHandler) fail(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, "error", err)
	writeError(w, http.StatusInternalServerError, message)
}
