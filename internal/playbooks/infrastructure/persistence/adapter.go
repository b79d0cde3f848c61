package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/sidecue/sidecue/internal/identity"
	"github.com/sidecue/sidecue/internal/playbooks/domain"
)

// Adapter is the uniform storage façade. Every call resolves a backend
// from the current auth session: a logged-in online session selects the
// remote store, anything else the embedded store. The choice is never
// cached, so the first call after a sign-out silently lands on the
// embedded backend.
type Adapter struct {
	local   domain.Repository
	remote  domain.Repository
	session identity.SessionFunc
}

// NewAdapter creates the façade. remote may be nil when the client has no
// remote store configured; all traffic then stays local.
func NewAdapter(local, remote domain.Repository, session identity.SessionFunc) *Adapter {
	if session == nil {
		session = func() identity.Session { return identity.Anonymous() }
	}
	return &Adapter{local: local, remote: remote, session: session}
}

// backend resolves the repository for one call.
func (a *Adapter) backend() domain.Repository {
	if a.remote != nil && a.session().LoggedIn {
		return a.remote
	}
	return a.local
}

func (a *Adapter) GetByID(ctx context.Context, id uuid.UUID) (*domain.Playbook, error) {
	return a.backend().GetByID(ctx, id)
}

func (a *Adapter) GetAll(ctx context.Context) ([]domain.Playbook, error) {
	return a.backend().GetAll(ctx)
}

func (a *Adapter) GetByCategory(ctx context.Context, category string) ([]domain.Playbook, error) {
	return a.backend().GetByCategory(ctx, category)
}

func (a *Adapter) GetTemplates(ctx context.Context) ([]domain.Playbook, error) {
	return a.backend().GetTemplates(ctx)
}

func (a *Adapter) Create(ctx context.Context, playbook *domain.Playbook) error {
	return a.backend().Create(ctx, playbook)
}

func (a *Adapter) Update(ctx context.Context, id uuid.UUID, patch domain.PlaybookPatch) error {
	return a.backend().Update(ctx, id, patch)
}

func (a *Adapter) Delete(ctx context.Context, id uuid.UUID) error {
	return a.backend().Delete(ctx, id)
}

func (a *Adapter) PromptsByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]domain.Prompt, error) {
	return a.backend().PromptsByPlaybook(ctx, playbookID)
}

func (a *Adapter) AddPrompt(ctx context.Context, prompt *domain.Prompt) error {
	return a.backend().AddPrompt(ctx, prompt)
}

func (a *Adapter) UpdatePrompt(ctx context.Context, promptID uuid.UUID, patch domain.PromptPatch) error {
	return a.backend().UpdatePrompt(ctx, promptID, patch)
}

func (a *Adapter) DeletePrompt(ctx context.Context, promptID uuid.UUID) error {
	return a.backend().DeletePrompt(ctx, promptID)
}

func (a *Adapter) DocumentsByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]domain.Document, error) {
	return a.backend().DocumentsByPlaybook(ctx, playbookID)
}

func (a *Adapter) AddDocument(ctx context.Context, document *domain.Document) error {
	return a.backend().AddDocument(ctx, document)
}

func (a *Adapter) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return a.backend().DeleteDocument(ctx, documentID)
}

func (a *Adapter) UserPlaybooks(ctx context.Context, userID string) ([]domain.UserPlaybook, error) {
	return a.backend().UserPlaybooks(ctx, userID)
}

func (a *Adapter) AddUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID) (*domain.UserPlaybook, error) {
	return a.backend().AddUserPlaybook(ctx, userID, playbookID)
}

func (a *Adapter) UpdateUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID, patch domain.UserPlaybookPatch) error {
	return a.backend().UpdateUserPlaybook(ctx, userID, playbookID, patch)
}

func (a *Adapter) RemoveUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID) error {
	return a.backend().RemoveUserPlaybook(ctx, userID, playbookID)
}

func (a *Adapter) IncrementUsage(ctx context.Context, userID string, playbookID uuid.UUID) error {
	return a.backend().IncrementUsage(ctx, userID, playbookID)
}

var _ domain.Repository = (*Adapter)(nil)
