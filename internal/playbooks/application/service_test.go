package application

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/sidecue/sidecue/internal/identity"
	"github.com/sidecue/sidecue/internal/playbooks/domain"
	"github.com/sidecue/sidecue/internal/playbooks/infrastructure/persistence"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/migrations"
)

func newTestService(t *testing.T, session identity.SessionFunc) (*Service, domain.Repository) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))

	repo := persistence.NewSQLiteRepository(db)
	return NewService(repo, session, nil), repo
}

func loggedInAs(userID string) identity.SessionFunc {
	return func() identity.Session {
		return identity.Session{UserID: userID, LoggedIn: true}
	}
}

func TestService_CreatePlaybook_StampsCreatorAndPrompts(t *testing.T) {
	svc, repo := newTestService(t, loggedInAs("user-7"))

	created, err := svc.CreatePlaybook(context.Background(), CreatePlaybookInput{
		Name:     "Renewal Calls",
		Category: "sales",
		Prompts: []PromptInput{
			{TriggerType: domain.TriggerKeyword, TriggerValue: "renewal", PromptText: "Review contract terms.", Priority: 5, OrderIndex: 1},
			{TriggerType: domain.TriggerManual, PromptText: "Summarize the account history.", OrderIndex: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "user-7", created.CreatedBy)
	assert.False(t, created.IsTemplate)

	prompts, err := repo.PromptsByPlaybook(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	assert.Equal(t, "renewal", prompts[0].TriggerValue)
	assert.True(t, prompts[1].IsManual())
}

func TestService_CreatePlaybook_AnonymousCreatorIsLocal(t *testing.T) {
	svc, _ := newTestService(t, nil)

	created, err := svc.CreatePlaybook(context.Background(), CreatePlaybookInput{Name: "Scratch"})
	require.NoError(t, err)
	assert.Equal(t, identity.LocalUserID, created.CreatedBy)
}

func TestService_AddToCollection_CountsUse(t *testing.T) {
	svc, repo := newTestService(t, loggedInAs("user-7"))
	p := domain.NewPlaybook("Sales Demo")
	require.NoError(t, repo.Create(context.Background(), p))

	up, err := svc.AddToCollection(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, up)

	memberships, err := svc.GetUserPlaybooks(context.Background())
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, 1, memberships[0].UsageCount)
}

func TestService_ToggleFavorite_AutoAdds(t *testing.T) {
	svc, repo := newTestService(t, loggedInAs("user-7"))
	p := domain.NewPlaybook("Sales Demo")
	require.NoError(t, repo.Create(context.Background(), p))

	// Not in the collection yet: toggling adds it as a favorite.
	require.NoError(t, svc.ToggleFavorite(context.Background(), p.ID))
	memberships, err := svc.GetUserPlaybooks(context.Background())
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.True(t, memberships[0].IsFavorite)

	// Toggling again flips it off without duplicating the row.
	require.NoError(t, svc.ToggleFavorite(context.Background(), p.ID))
	memberships, err = svc.GetUserPlaybooks(context.Background())
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.False(t, memberships[0].IsFavorite)
}

// unavailableRepo fails GetTemplates after a configurable number of
// successful calls.
type unavailableRepo struct {
	domain.Repository
	templates []domain.Playbook
	failAfter int
	calls     int
}

func (r *unavailableRepo) GetTemplates(ctx context.Context) ([]domain.Playbook, error) {
	r.calls++
	if r.calls > r.failAfter {
		return nil, fmt.Errorf("template sync: %w", domain.ErrStorageUnavailable)
	}
	return r.templates, nil
}

func TestService_GetTemplates_ServesCachedOnOutage(t *testing.T) {
	templates := []domain.Playbook{*domain.NewPlaybook("Sales Demo"), *domain.NewPlaybook("General Meeting")}
	repo := &unavailableRepo{templates: templates, failAfter: 1}
	svc := NewService(repo, nil, nil)

	got, err := svc.GetTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	// The backend is now down; the previously synced list is served.
	got, err = svc.GetTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, templates, got)
}

func TestService_GetTemplates_OutageWithoutCacheIsEmpty(t *testing.T) {
	repo := &unavailableRepo{failAfter: 0}
	svc := NewService(repo, nil, nil)

	got, err := svc.GetTemplates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggestCategory(t *testing.T) {
	cases := map[string]string{
		"let me show you this feature in the demo": "sales",
		"walk me through the algorithm":            "interview",
		"let's capture that action item":           "meeting",
		"I have an issue with my account":          "support",
		"nice weather today":                       "generic",
	}
	for text, want := range cases {
		assert.Equal(t, want, suggestCategory(text), "text: %s", text)
	}
}

func TestSeedDefaultPlaybooks_Idempotent(t *testing.T) {
	_, repo := newTestService(t, nil)

	require.NoError(t, SeedDefaultPlaybooks(context.Background(), repo, nil))
	require.NoError(t, SeedDefaultPlaybooks(context.Background(), repo, nil))

	templates, err := repo.GetTemplates(context.Background())
	require.NoError(t, err)
	assert.Len(t, templates, 6)

	// Every seeded template carries its prompts.
	for _, tmpl := range templates {
		prompts, err := repo.PromptsByPlaybook(context.Background(), tmpl.ID)
		require.NoError(t, err)
		assert.Len(t, prompts, 3, "playbook %s", tmpl.Name)
	}
}
