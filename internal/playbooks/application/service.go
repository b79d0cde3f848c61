package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sidecue/sidecue/internal/identity"
	"github.com/sidecue/sidecue/internal/playbooks/domain"
)

// Service orchestrates playbook CRUD and per-user collections. All
// storage goes through the repository façade; the service never knows
// which backend served a call.
type Service struct {
	repo    domain.Repository
	session identity.SessionFunc
	logger  *slog.Logger

	mu              sync.Mutex
	cachedTemplates []domain.Playbook
}

// NewService creates a new playbook service.
func NewService(repo domain.Repository, session identity.SessionFunc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if session == nil {
		session = func() identity.Session { return identity.Anonymous() }
	}
	return &Service{repo: repo, session: session, logger: logger}
}

// PlaybookDetail is a playbook with its prompts and documents attached.
type PlaybookDetail struct {
	domain.Playbook
	Prompts   []domain.Prompt
	Documents []domain.Document
}

// PromptInput describes one prompt of a new playbook.
type PromptInput struct {
	TriggerType  domain.TriggerType
	TriggerValue string
	PromptText   string
	Priority     int
	OrderIndex   int
}

// CreatePlaybookInput describes a user-created playbook.
type CreatePlaybookInput struct {
	Name        string
	Description string
	Category    string
	Icon        string
	IsPremium   bool
	Prompts     []PromptInput
}

// GetAllPlaybooks returns every playbook, newest first.
func (s *Service) GetAllPlaybooks(ctx context.Context) ([]domain.Playbook, error) {
	return s.repo.GetAll(ctx)
}

// GetTemplates returns the system playbooks. When the backend is
// unreachable the last successfully synced list is served instead of
// failing the operation.
func (s *Service) GetTemplates(ctx context.Context) ([]domain.Playbook, error) {
	templates, err := s.repo.GetTemplates(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			s.mu.Lock()
			cached := s.cachedTemplates
			s.mu.Unlock()
			if cached != nil {
				s.logger.Warn("template sync unavailable, serving cached copy", "error", err)
				return cached, nil
			}
			s.logger.Warn("template sync unavailable, no cached copy", "error", err)
			return []domain.Playbook{}, nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.cachedTemplates = templates
	s.mu.Unlock()
	return templates, nil
}

// GetByCategory returns playbooks in a category, newest first.
func (s *Service) GetByCategory(ctx context.Context, category string) ([]domain.Playbook, error) {
	return s.repo.GetByCategory(ctx, category)
}

// GetPlaybookWithPrompts loads a playbook and its satellite rows.
// Returns nil when the playbook does not exist.
func (s *Service) GetPlaybookWithPrompts(ctx context.Context, id uuid.UUID) (*PlaybookDetail, error) {
	playbook, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if playbook == nil {
		return nil, nil
	}

	prompts, err := s.repo.PromptsByPlaybook(ctx, id)
	if err != nil {
		return nil, err
	}
	documents, err := s.repo.DocumentsByPlaybook(ctx, id)
	if err != nil {
		return nil, err
	}

	return &PlaybookDetail{Playbook: *playbook, Prompts: prompts, Documents: documents}, nil
}

// CreatePlaybook creates a user playbook with its nested prompts. The
// creator is stamped from the current session.
func (s *Service) CreatePlaybook(ctx context.Context, input CreatePlaybookInput) (*domain.Playbook, error) {
	playbook := domain.NewPlaybook(input.Name)
	playbook.Description = input.Description
	playbook.Category = input.Category
	playbook.Icon = input.Icon
	playbook.IsPremium = input.IsPremium
	playbook.IsTemplate = false
	playbook.CreatedBy = s.session().EffectiveUserID()

	if err := s.repo.Create(ctx, playbook); err != nil {
		return nil, err
	}

	for _, in := range input.Prompts {
		prompt := &domain.Prompt{
			PlaybookID:   playbook.ID,
			TriggerType:  in.TriggerType,
			TriggerValue: in.TriggerValue,
			PromptText:   in.PromptText,
			Priority:     in.Priority,
			OrderIndex:   in.OrderIndex,
		}
		if err := s.repo.AddPrompt(ctx, prompt); err != nil {
			return nil, err
		}
	}

	return playbook, nil
}

// UpdatePlaybook applies a partial update.
func (s *Service) UpdatePlaybook(ctx context.Context, id uuid.UUID, patch domain.PlaybookPatch) error {
	return s.repo.Update(ctx, id, patch)
}

// DeletePlaybook removes the playbook and everything attached to it.
func (s *Service) DeletePlaybook(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// AddPrompt attaches a prompt to a playbook.
func (s *Service) AddPrompt(ctx context.Context, playbookID uuid.UUID, input PromptInput) (*domain.Prompt, error) {
	prompt := &domain.Prompt{
		PlaybookID:   playbookID,
		TriggerType:  input.TriggerType,
		TriggerValue: input.TriggerValue,
		PromptText:   input.PromptText,
		Priority:     input.Priority,
		OrderIndex:   input.OrderIndex,
	}
	if err := s.repo.AddPrompt(ctx, prompt); err != nil {
		return nil, err
	}
	return prompt, nil
}

// UpdatePrompt applies a partial update to a prompt.
func (s *Service) UpdatePrompt(ctx context.Context, promptID uuid.UUID, patch domain.PromptPatch) error {
	return s.repo.UpdatePrompt(ctx, promptID, patch)
}

// DeletePrompt removes a prompt.
func (s *Service) DeletePrompt(ctx context.Context, promptID uuid.UUID) error {
	return s.repo.DeletePrompt(ctx, promptID)
}

// AddDocument attaches a document to a playbook.
func (s *Service) AddDocument(ctx context.Context, document *domain.Document) error {
	return s.repo.AddDocument(ctx, document)
}

// DeleteDocument removes a document.
func (s *Service) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return s.repo.DeleteDocument(ctx, documentID)
}

// GetUserPlaybooks returns the current user's collection.
func (s *Service) GetUserPlaybooks(ctx context.Context) ([]domain.UserPlaybook, error) {
	return s.repo.UserPlaybooks(ctx, s.session().EffectiveUserID())
}

// AddToCollection upserts the membership row and counts the add as a use.
func (s *Service) AddToCollection(ctx context.Context, playbookID uuid.UUID) (*domain.UserPlaybook, error) {
	userID := s.session().EffectiveUserID()
	up, err := s.repo.AddUserPlaybook(ctx, userID, playbookID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.IncrementUsage(ctx, userID, playbookID); err != nil {
		s.logger.Warn("failed to count playbook use", "playbook_id", playbookID, "error", err)
	}
	return up, nil
}

// RemoveFromCollection drops the membership row.
func (s *Service) RemoveFromCollection(ctx context.Context, playbookID uuid.UUID) error {
	return s.repo.RemoveUserPlaybook(ctx, s.session().EffectiveUserID(), playbookID)
}

// ToggleFavorite flips the favorite flag, adding the playbook to the
// collection first when needed.
func (s *Service) ToggleFavorite(ctx context.Context, playbookID uuid.UUID) error {
	userID := s.session().EffectiveUserID()

	memberships, err := s.repo.UserPlaybooks(ctx, userID)
	if err != nil {
		return err
	}
	for _, up := range memberships {
		if up.PlaybookID == playbookID {
			next := !up.IsFavorite
			return s.repo.UpdateUserPlaybook(ctx, userID, playbookID, domain.UserPlaybookPatch{IsFavorite: &next})
		}
	}

	if _, err := s.AddToCollection(ctx, playbookID); err != nil {
		return err
	}
	fav := true
	return s.repo.UpdateUserPlaybook(ctx, userID, playbookID, domain.UserPlaybookPatch{IsFavorite: &fav})
}

// IncrementUsage counts one use of a playbook for the current user.
func (s *Service) IncrementUsage(ctx context.Context, playbookID uuid.UUID) error {
	return s.repo.IncrementUsage(ctx, s.session().EffectiveUserID(), playbookID)
}

// GetSuggestedPlaybooks picks a category from conversation keywords and
// returns its playbooks.
func (s *Service) GetSuggestedPlaybooks(ctx context.Context, conversationText string) ([]domain.Playbook, error) {
	return s.repo.GetByCategory(ctx, suggestCategory(conversationText))
}

func suggestCategory(conversationText string) string {
	text := strings.ToLower(conversationText)
	contains := func(keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("sale", "demo", "feature"):
		return "sales"
	case contains("interview", "coding", "algorithm"):
		return "interview"
	case contains("meeting", "action item"):
		return "meeting"
	case contains("support", "troubleshoot", "issue"):
		return "support"
	default:
		return "generic"
	}
}
