// Package engine implements passive trigger matching over live
// transcript turns for the currently loaded playbook.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sidecue/sidecue/internal/identity"
	"github.com/sidecue/sidecue/internal/llm"
	"github.com/sidecue/sidecue/internal/playbooks/domain"
)

const (
	defaultWindowSize = 10
	defaultCooldown   = 5 * time.Second
	historyTail       = 5
)

// Suggestion is one emitted piece of guidance.
type Suggestion struct {
	PromptText   string             `json:"promptText"`
	TriggerValue string             `json:"triggerValue"`
	TriggerType  domain.TriggerType `json:"triggerType"`
	Priority     int                `json:"priority"`
	PlaybookName string             `json:"playbookName"`
}

// ContextualResponse is the composed prompt for an on-demand request.
type ContextualResponse struct {
	EnhancedPrompt string `json:"enhancedPrompt"`
	OriginalPrompt string `json:"originalPrompt"`
	PlaybookName   string `json:"playbookName"`
	Priority       int    `json:"priority"`
}

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	WindowSize int
	Cooldown   time.Duration
	Clock      func() time.Time
}

type activePlaybook struct {
	playbook  domain.Playbook
	prompts   []domain.Prompt
	documents []domain.Document
}

// Engine holds at most one active playbook and a bounded rolling window
// of transcript turns. Matching is keyword-first; context-type prompts
// are only consulted when a classifier is configured and no keyword
// matched. State is owned by a single engine instance per client.
type Engine struct {
	repo       domain.Repository
	session    identity.SessionFunc
	classifier llm.Provider
	logger     *slog.Logger

	windowSize int
	cooldown   time.Duration
	clock      func() time.Time

	mu          sync.Mutex
	active      *activePlaybook
	window      []string
	lastTrigger time.Time
}

// New creates an engine. classifier may be nil; the engine then degrades
// to keyword-only matching.
func New(repo domain.Repository, session identity.SessionFunc, classifier llm.Provider, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if session == nil {
		session = func() identity.Session { return identity.Anonymous() }
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		repo:       repo,
		session:    session,
		classifier: classifier,
		logger:     logger,
		windowSize: cfg.WindowSize,
		cooldown:   cfg.Cooldown,
		clock:      cfg.Clock,
	}
}

// LoadPlaybook makes the playbook active, replacing any previous one.
// The rolling window is always cleared so no conversational state leaks
// across a switch.
func (e *Engine) LoadPlaybook(ctx context.Context, playbookID uuid.UUID) error {
	playbook, err := e.repo.GetByID(ctx, playbookID)
	if err != nil {
		return fmt.Errorf("loading playbook: %w", err)
	}
	if playbook == nil {
		return domain.ErrPlaybookNotFound
	}

	prompts, err := e.repo.PromptsByPlaybook(ctx, playbookID)
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}
	documents, err := e.repo.DocumentsByPlaybook(ctx, playbookID)
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}

	e.mu.Lock()
	e.active = &activePlaybook{playbook: *playbook, prompts: prompts, documents: documents}
	e.window = nil
	e.mu.Unlock()

	e.logger.Info("loaded playbook", "playbook_id", playbookID, "name", playbook.Name, "prompts", len(prompts))
	return nil
}

// UnloadPlaybook deactivates the current playbook and clears the window.
func (e *Engine) UnloadPlaybook() {
	e.mu.Lock()
	e.active = nil
	e.window = nil
	e.mu.Unlock()
	e.logger.Info("unloaded active playbook")
}

// ActiveID returns the active playbook id, if any.
func (e *Engine) ActiveID() (uuid.UUID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return uuid.Nil, false
	}
	return e.active.playbook.ID, true
}

// Window returns a copy of the rolling context window, oldest first.
func (e *Engine) Window() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.window))
	copy(out, e.window)
	return out
}

// ClearWindow empties the rolling context window.
func (e *Engine) ClearWindow() {
	e.mu.Lock()
	e.window = nil
	e.mu.Unlock()
}

// ProcessTranscript ingests one transcript turn and returns a suggestion
// when a trigger fires outside the cooldown window. screenContent is
// accepted for interface parity with the capture layer and is not
// consulted for matching.
func (e *Engine) ProcessTranscript(ctx context.Context, turn string, screenContent string) (*Suggestion, error) {
	e.mu.Lock()
	e.window = append(e.window, turn)
	if len(e.window) > e.windowSize {
		e.window = e.window[1:]
	}
	active := e.active
	e.mu.Unlock()

	if active == nil {
		return nil, nil
	}

	matched := matchKeywordPrompts(active.prompts, turn)
	if len(matched) == 0 {
		matched = e.matchContextPrompts(ctx, active.prompts, turn)
	}
	if len(matched) == 0 {
		return nil, nil
	}

	top := highestPriority(matched)

	e.mu.Lock()
	now := e.clock()
	if now.Sub(e.lastTrigger) < e.cooldown {
		e.mu.Unlock()
		return nil, nil
	}
	e.lastTrigger = now
	e.mu.Unlock()

	// Counter writes are best effort; a storage failure never blocks
	// the suggestion.
	userID := e.session().EffectiveUserID()
	if err := e.repo.IncrementUsage(ctx, userID, active.playbook.ID); err != nil {
		e.logger.Warn("failed to record playbook usage", "playbook_id", active.playbook.ID, "error", err)
	}

	return &Suggestion{
		PromptText:   top.PromptText,
		TriggerValue: top.TriggerValue,
		TriggerType:  top.TriggerType,
		Priority:     top.Priority,
		PlaybookName: active.playbook.Name,
	}, nil
}

// matchKeywordPrompts returns keyword prompts whose trigger value occurs
// in the turn, case-insensitive. The match is a plain substring check,
// so "sale" also fires inside "resale".
func matchKeywordPrompts(prompts []domain.Prompt, turn string) []domain.Prompt {
	turnLower := strings.ToLower(turn)
	var matched []domain.Prompt
	for _, p := range prompts {
		if p.TriggerType != domain.TriggerKeyword || p.TriggerValue == "" {
			continue
		}
		if strings.Contains(turnLower, strings.ToLower(p.TriggerValue)) {
			matched = append(matched, p)
		}
	}
	return matched
}

// matchContextPrompts asks the classifier a yes/no question per
// context-type prompt. A failed classification counts as a non-match
// and never aborts the remaining prompts.
func (e *Engine) matchContextPrompts(ctx context.Context, prompts []domain.Prompt, turn string) []domain.Prompt {
	if e.classifier == nil {
		return nil
	}
	var matched []domain.Prompt
	for _, p := range prompts {
		if p.TriggerType != domain.TriggerContext {
			continue
		}
		detected, err := e.detectContext(ctx, turn, p.TriggerValue)
		if err != nil {
			e.logger.Warn("context detection failed", "context", p.TriggerValue, "error", err)
			continue
		}
		if detected {
			matched = append(matched, p)
		}
	}
	return matched
}

func (e *Engine) detectContext(ctx context.Context, turn, contextType string) (bool, error) {
	question := fmt.Sprintf("Analyze this transcript and determine if it contains a %q.\nTranscript: %q\n\nRespond with YES or NO only.", contextType, turn)
	answer, err := e.classifier.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: question}})
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(strings.TrimSpace(answer)), "yes"), nil
}

// highestPriority picks the matched prompt with the highest priority.
// Ties go to the earliest prompt in playbook order, which keeps the
// result deterministic.
func highestPriority(prompts []domain.Prompt) domain.Prompt {
	top := prompts[0]
	for _, p := range prompts[1:] {
		if p.Priority > top.Priority {
			top = p
		}
	}
	return top
}

// GenerateContextualResponse composes an enhanced prompt for an
// on-demand request using the active playbook's best manual prompt,
// loosely relevant document text, and the tail of the conversation.
// Returns nil when no playbook is loaded or it has no manual prompt.
func (e *Engine) GenerateContextualResponse(userPrompt string, history []string) *ContextualResponse {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()

	if active == nil {
		return nil
	}

	var best *domain.Prompt
	for i := range active.prompts {
		p := &active.prompts[i]
		if !p.IsManual() {
			continue
		}
		if best == nil || p.Priority > best.Priority {
			best = p
		}
	}
	if best == nil {
		return nil
	}

	var b strings.Builder
	b.WriteString(best.PromptText)
	b.WriteString("\n\n")
	if ragContext := relevantDocText(active.documents, userPrompt); ragContext != "" {
		b.WriteString("Document Context:\n")
		b.WriteString(ragContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Recent conversation:\n")
	if len(history) > historyTail {
		history = history[len(history)-historyTail:]
	}
	b.WriteString(strings.Join(history, "\n"))
	b.WriteString("\n\nUser Request: ")
	b.WriteString(userPrompt)
	b.WriteString("\n\nProvide a concise, actionable response that aligns with the playbook guidance.")

	return &ContextualResponse{
		EnhancedPrompt: b.String(),
		OriginalPrompt: best.PromptText,
		PlaybookName:   active.playbook.Name,
		Priority:       best.Priority,
	}
}

// relevantDocText returns extracted text of every document sharing at
// least one query token, joined by blank lines. Documents without
// extracted text contribute their file name as a placeholder.
func relevantDocText(documents []domain.Document, query string) string {
	if len(documents) == 0 {
		return ""
	}
	tokens := strings.Fields(strings.ToLower(query))

	var parts []string
	for _, doc := range documents {
		docText := doc.ProcessedText
		if docText == "" {
			docText = doc.FileName
		}
		docLower := strings.ToLower(docText)
		for _, token := range tokens {
			if strings.Contains(docLower, token) {
				if doc.ProcessedText != "" {
					parts = append(parts, doc.ProcessedText)
				} else {
					parts = append(parts, "["+doc.FileName+"]")
				}
				break
			}
		}
	}
	return strings.Join(parts, "\n\n")
}
