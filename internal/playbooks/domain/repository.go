package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the storage contract for playbooks and their satellite
// entities. Lookups by id return nil, nil when no row matches; absence is
// never an error. Delete cascades atomically to prompts, documents, and
// user playbook rows.
type Repository interface {
	// Playbooks
	GetByID(ctx context.Context, id uuid.UUID) (*Playbook, error)
	GetAll(ctx context.Context) ([]Playbook, error)
	GetByCategory(ctx context.Context, category string) ([]Playbook, error)
	// GetTemplates returns system playbooks grouped by category, newest
	// first within each category.
	GetTemplates(ctx context.Context) ([]Playbook, error)
	Create(ctx context.Context, playbook *Playbook) error
	Update(ctx context.Context, id uuid.UUID, patch PlaybookPatch) error
	// Delete removes the playbook and everything attached to it in one
	// atomic unit. Partial cascades must not be observable.
	Delete(ctx context.Context, id uuid.UUID) error

	// Prompts, ordered by order_index ascending then priority descending.
	PromptsByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]Prompt, error)
	AddPrompt(ctx context.Context, prompt *Prompt) error
	UpdatePrompt(ctx context.Context, promptID uuid.UUID, patch PromptPatch) error
	DeletePrompt(ctx context.Context, promptID uuid.UUID) error

	// Documents, newest first.
	DocumentsByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]Document, error)
	AddDocument(ctx context.Context, document *Document) error
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error

	// User playbooks, favorites first, then by usage, then by recency.
	UserPlaybooks(ctx context.Context, userID string) ([]UserPlaybook, error)
	// AddUserPlaybook upserts the (user, playbook) membership and returns
	// the resulting row; it never duplicates an existing pair.
	AddUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID) (*UserPlaybook, error)
	UpdateUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID, patch UserPlaybookPatch) error
	RemoveUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID) error
	// IncrementUsage bumps the usage counter and stamps last_used.
	IncrementUsage(ctx context.Context, userID string, playbookID uuid.UUID) error
}
