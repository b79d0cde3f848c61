package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/sidecue/sidecue/internal/playbooks/domain"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/migrations"
)

func setupPlaybookTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))
	return db
}

func createPlaybook(t *testing.T, repo *SQLiteRepository, name, category string, template bool) *domain.Playbook {
	t.Helper()
	p := domain.NewPlaybook(name)
	p.Category = category
	p.IsTemplate = template
	p.Description = "playbook for " + name
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupPlaybookTestDB(t))

	p := domain.NewPlaybook("Sales Demo")
	p.Description = "pitches and sales conversations"
	p.Category = "sales"
	p.Icon = "coins"
	p.IsPremium = true
	p.IsTemplate = false
	p.CreatedBy = "user-1"
	require.NoError(t, repo.Create(context.Background(), p))

	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Description, got.Description)
	assert.Equal(t, p.Category, got.Category)
	assert.Equal(t, p.Icon, got.Icon)
	assert.Equal(t, p.IsPremium, got.IsPremium)
	assert.Equal(t, p.IsTemplate, got.IsTemplate)
	assert.Equal(t, p.CreatedBy, got.CreatedBy)
	assert.NotZero(t, got.CreatedAt)
	assert.NotZero(t, got.UpdatedAt)
}

func TestSQLiteRepository_GetByID_AbsentIsNil(t *testing.T) {
	repo := NewSQLiteRepository(setupPlaybookTestDB(t))

	got, err := repo.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLiteRepository_Update_Patch(t *testing.T) {
	repo := NewSQLiteRepository(setupPlaybookTestDB(t))
	p := createPlaybook(t, repo, "Sales Demo", "sales", true)

	name := "Enterprise Demo"
	premium := true
	require.NoError(t, repo.Update(context.Background(), p.ID, domain.PlaybookPatch{
		Name:      &name,
		IsPremium: &premium,
	}))

	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Enterprise Demo", got.Name)
	assert.True(t, got.IsPremium)
	// Untouched fields survive the patch.
	assert.Equal(t, p.Description, got.Description)
	assert.Equal(t, "sales", got.Category)
}

func TestSQLiteRepository_PromptOrdering(t *testing.T) {
	repo := NewSQLiteRepository(setupPlaybookTestDB(t))
	p := createPlaybook(t, repo, "Sales Demo", "sales", true)

	add := func(order, priority int, value string) {
		require.NoError(t, repo.AddPrompt(context.Background(), &domain.Prompt{
			PlaybookID:   p.ID,
			TriggerType:  domain.TriggerKeyword,
			TriggerValue: value,
			PromptText:   "guidance for " + value,
			Priority:     priority,
			OrderIndex:   order,
		}))
	}
	add(2, 5, "pricing")
	add(1, 3, "objection")
	add(1, 9, "feature")

	prompts, err := repo.PromptsByPlaybook(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, prompts, 3)
	// order_index ascending, priority descending within the same index.
	assert.Equal(t, "feature", prompts[0].TriggerValue)
	assert.Equal(t, "objection", prompts[1].TriggerValue)
	assert.Equal(t, "pricing", prompts[2].TriggerValue)
}

func TestSQLiteRepository_TemplatesGroupedByCategory(t *testing.T) {
	repo := NewSQLiteRepository(setupPlaybookTestDB(t))
	createPlaybook(t, repo, "Customer Support", "support", true)
	createPlaybook(t, repo, "Sales Demo", "sales", true)
	createPlaybook(t, repo, "My Custom", "sales", false)

	templates, err := repo.GetTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "Sales Demo", templates[0].Name)
	assert.Equal(t, "Customer Support", templates[1].Name)
}

func TestSQLiteRepository_CascadeDelete(t *testing.T) {
	db := setupPlaybookTestDB(t)
	repo := NewSQLiteRepository(db)
	p := createPlaybook(t, repo, "Sales Demo", "sales", true)

	require.NoError(t, repo.AddPrompt(context.Background(), &domain.Prompt{
		PlaybookID: p.ID, TriggerType: domain.TriggerKeyword, TriggerValue: "pricing", PromptText: "talk value",
	}))
	require.NoError(t, repo.AddDocument(context.Background(), &domain.Document{
		PlaybookID: p.ID, FileName: "pricing.pdf", FileURL: "file:///pricing.pdf",
	}))
	_, err := repo.AddUserPlaybook(context.Background(), "user-1", p.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(context.Background(), p.ID))

	got, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, table := range []string{"playbook_prompts", "playbook_documents", "user_playbooks"} {
		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
		assert.Zero(t, count, "table %s not emptied by cascade", table)
	}
}

func TestSQLiteRepository_CascadeDeleteRollsBackOnFailure(t *testing.T) {
	db := setupPlaybookTestDB(t)
	repo := NewSQLiteRepository(db)
	p := createPlaybook(t, repo, "Sales Demo", "sales", true)

	require.NoError(t, repo.AddPrompt(context.Background(), &domain.Prompt{
		PlaybookID: p.ID, TriggerType: domain.TriggerKeyword, TriggerValue: "pricing", PromptText: "talk value",
	}))
	require.NoError(t, repo.AddDocument(context.Background(), &domain.Document{
		PlaybookID: p.ID, FileName: "pricing.pdf", FileURL: "file:///pricing.pdf",
	}))
	_, err := repo.AddUserPlaybook(context.Background(), "user-1", p.ID)
	require.NoError(t, err)

	// Abort the last statement of the cascade. The child-row deletes
	// that already ran inside the transaction must be rolled back.
	_, err = db.Exec(`CREATE TRIGGER refuse_playbook_delete BEFORE DELETE ON playbooks
		BEGIN SELECT RAISE(ABORT, 'delete refused'); END`)
	require.NoError(t, err)

	require.Error(t, repo.Delete(context.Background(), p.ID))

	for _, table := range []string{"playbooks", "playbook_prompts", "playbook_documents", "user_playbooks"} {
		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&count))
		assert.Equal(t, 1, count, "table %s must survive the failed cascade intact", table)
	}
}

func TestSQLiteRepository_UserPlaybookUpsert(t *testing.T) {
	db := setupPlaybookTestDB(t)
	repo := NewSQLiteRepository(db)
	p := createPlaybook(t, repo, "Sales Demo", "sales", true)

	first, err := repo.AddUserPlaybook(context.Background(), "user-1", p.ID)
	require.NoError(t, err)
	second, err := repo.AddUserPlaybook(context.Background(), "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM user_playbooks").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLiteRepository_UserPlaybookOrdering(t *testing.T) {
	repo := NewSQLiteRepository(setupPlaybookTestDB(t))
	a := createPlaybook(t, repo, "A", "sales", true)
	b := createPlaybook(t, repo, "B", "sales", true)
	c := createPlaybook(t, repo, "C", "sales", true)

	for _, p := range []*domain.Playbook{a, b, c} {
		_, err := repo.AddUserPlaybook(context.Background(), "user-1", p.ID)
		require.NoError(t, err)
	}
	// b gets used twice, c is a favorite.
	require.NoError(t, repo.IncrementUsage(context.Background(), "user-1", b.ID))
	require.NoError(t, repo.IncrementUsage(context.Background(), "user-1", b.ID))
	fav := true
	require.NoError(t, repo.UpdateUserPlaybook(context.Background(), "user-1", c.ID, domain.UserPlaybookPatch{IsFavorite: &fav}))

	memberships, err := repo.UserPlaybooks(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, memberships, 3)
	assert.Equal(t, c.ID, memberships[0].PlaybookID, "favorite sorts first")
	assert.Equal(t, b.ID, memberships[1].PlaybookID, "then highest usage")
	assert.Equal(t, a.ID, memberships[2].PlaybookID)
	assert.Equal(t, 2, memberships[1].UsageCount)
}

func TestSQLiteRepository_UpdateUserPlaybook_AbsentRow(t *testing.T) {
	repo := NewSQLiteRepository(setupPlaybookTestDB(t))
	fav := true
	err := repo.UpdateUserPlaybook(context.Background(), "user-1", uuid.New(), domain.UserPlaybookPatch{IsFavorite: &fav})
	require.ErrorIs(t, err, domain.ErrUserPlaybookNotFound)
}
