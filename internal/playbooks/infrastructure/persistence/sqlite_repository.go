package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sidecue/sidecue/internal/playbooks/domain"
)

// SQLiteRepository implements domain.Repository against the embedded
// store. Sensitive fields are kept in clear text locally; timestamps are
// stamped with the local wall clock in unix seconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) now() int64 {
	return time.Now().Unix()
}

// GetByID returns the playbook, or nil when no row matches.
func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Playbook, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, category, icon, is_premium, is_template, created_by, created_at, updated_at
		FROM playbooks WHERE id = ?
	`, id.String())
	return scanPlaybookRow(row.Scan)
}

// GetAll returns every playbook, newest first.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]domain.Playbook, error) {
	return r.queryPlaybooks(ctx, `
		SELECT id, name, description, category, icon, is_premium, is_template, created_by, created_at, updated_at
		FROM playbooks ORDER BY created_at DESC
	`)
}

// GetByCategory returns playbooks in a category, newest first.
func (r *SQLiteRepository) GetByCategory(ctx context.Context, category string) ([]domain.Playbook, error) {
	return r.queryPlaybooks(ctx, `
		SELECT id, name, description, category, icon, is_premium, is_template, created_by, created_at, updated_at
		FROM playbooks WHERE category = ? ORDER BY created_at DESC
	`, category)
}

// GetTemplates returns system playbooks grouped by category, newest first
// within each category.
func (r *SQLiteRepository) GetTemplates(ctx context.Context) ([]domain.Playbook, error) {
	return r.queryPlaybooks(ctx, `
		SELECT id, name, description, category, icon, is_premium, is_template, created_by, created_at, updated_at
		FROM playbooks WHERE is_template = 1 ORDER BY category ASC, created_at DESC
	`)
}

// Create inserts a playbook, stamping both timestamps locally.
func (r *SQLiteRepository) Create(ctx context.Context, p *domain.Playbook) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := r.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playbooks (id, name, description, category, icon, is_premium, is_template, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID.String(), p.Name, nullable(p.Description), nullable(p.Category), nullable(p.Icon),
		boolToInt(p.IsPremium), boolToInt(p.IsTemplate), nullable(p.CreatedBy), now, now)
	if err != nil {
		return fmt.Errorf("insert playbook: %w", err)
	}
	return nil
}

// Update applies a patch, stamping updated_at locally.
func (r *SQLiteRepository) Update(ctx context.Context, id uuid.UUID, patch domain.PlaybookPatch) error {
	sets := []string{}
	args := []any{}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *patch.Icon)
	}
	if patch.IsPremium != nil {
		sets = append(sets, "is_premium = ?")
		args = append(args, boolToInt(*patch.IsPremium))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now(), id.String())

	query := "UPDATE playbooks SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update playbook: %w", err)
	}
	return nil
}

// Delete removes the playbook and all attached rows in one transaction.
func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cascade delete: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM playbook_prompts WHERE playbook_id = ?",
		"DELETE FROM playbook_documents WHERE playbook_id = ?",
		"DELETE FROM user_playbooks WHERE playbook_id = ?",
		"DELETE FROM playbooks WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id.String()); err != nil {
			return fmt.Errorf("cascade delete playbook: %w", err)
		}
	}

	return tx.Commit()
}

// PromptsByPlaybook returns prompts ordered by display order, ties broken
// by importance.
func (r *SQLiteRepository) PromptsByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]domain.Prompt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, playbook_id, trigger_type, trigger_value, prompt_text, priority, order_index
		FROM playbook_prompts WHERE playbook_id = ?
		ORDER BY order_index ASC, priority DESC
	`, playbookID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prompts := make([]domain.Prompt, 0)
	for rows.Next() {
		var (
			p                       domain.Prompt
			idStr, pbStr            string
			triggerType, triggerVal sql.NullString
		)
		if err := rows.Scan(&idStr, &pbStr, &triggerType, &triggerVal, &p.PromptText, &p.Priority, &p.OrderIndex); err != nil {
			return nil, err
		}
		p.ID, _ = uuid.Parse(idStr)
		p.PlaybookID, _ = uuid.Parse(pbStr)
		p.TriggerType = domain.TriggerType(triggerType.String)
		p.TriggerValue = triggerVal.String
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// AddPrompt inserts a prompt.
func (r *SQLiteRepository) AddPrompt(ctx context.Context, p *domain.Prompt) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playbook_prompts (id, playbook_id, trigger_type, trigger_value, prompt_text, priority, order_index)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID.String(), p.PlaybookID.String(), nullable(string(p.TriggerType)), nullable(p.TriggerValue),
		p.PromptText, p.Priority, p.OrderIndex)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	return nil
}

// UpdatePrompt applies a patch to a prompt.
func (r *SQLiteRepository) UpdatePrompt(ctx context.Context, promptID uuid.UUID, patch domain.PromptPatch) error {
	if patch.IsZero() {
		return nil
	}
	sets := []string{}
	args := []any{}
	if patch.TriggerType != nil {
		sets = append(sets, "trigger_type = ?")
		args = append(args, string(*patch.TriggerType))
	}
	if patch.TriggerValue != nil {
		sets = append(sets, "trigger_value = ?")
		args = append(args, *patch.TriggerValue)
	}
	if patch.PromptText != nil {
		sets = append(sets, "prompt_text = ?")
		args = append(args, *patch.PromptText)
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *patch.Priority)
	}
	if patch.OrderIndex != nil {
		sets = append(sets, "order_index = ?")
		args = append(args, *patch.OrderIndex)
	}
	args = append(args, promptID.String())

	query := "UPDATE playbook_prompts SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	return nil
}

// DeletePrompt removes a single prompt.
func (r *SQLiteRepository) DeletePrompt(ctx context.Context, promptID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM playbook_prompts WHERE id = ?", promptID.String())
	return err
}

// DocumentsByPlaybook returns documents newest first.
func (r *SQLiteRepository) DocumentsByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, playbook_id, file_name, file_url, file_type, processed_text, uploaded_at
		FROM playbook_documents WHERE playbook_id = ?
		ORDER BY uploaded_at DESC
	`, playbookID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		var (
			d                       domain.Document
			idStr, pbStr            string
			fileType, processedText sql.NullString
		)
		if err := rows.Scan(&idStr, &pbStr, &d.FileName, &d.FileURL, &fileType, &processedText, &d.UploadedAt); err != nil {
			return nil, err
		}
		d.ID, _ = uuid.Parse(idStr)
		d.PlaybookID, _ = uuid.Parse(pbStr)
		d.FileType = fileType.String
		d.ProcessedText = processedText.String
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// AddDocument inserts a document, stamping uploaded_at locally.
func (r *SQLiteRepository) AddDocument(ctx context.Context, d *domain.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.UploadedAt = r.now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playbook_documents (id, playbook_id, file_name, file_url, file_type, processed_text, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID.String(), d.PlaybookID.String(), d.FileName, d.FileURL,
		nullable(d.FileType), nullable(d.ProcessedText), d.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// DeleteDocument removes a single document.
func (r *SQLiteRepository) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM playbook_documents WHERE id = ?", documentID.String())
	return err
}

// UserPlaybooks returns the user's collection, favorites first, then by
// descending usage, then by recency.
func (r *SQLiteRepository) UserPlaybooks(ctx context.Context, userID string) ([]domain.UserPlaybook, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, playbook_id, is_favorite, customizations, last_used, usage_count
		FROM user_playbooks WHERE user_id = ?
		ORDER BY is_favorite DESC, usage_count DESC, last_used DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memberships := make([]domain.UserPlaybook, 0)
	for rows.Next() {
		up, err := scanUserPlaybook(rows.Scan)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, *up)
	}
	return memberships, rows.Err()
}

// AddUserPlaybook upserts the membership row; an existing pair is
// returned untouched, never duplicated.
func (r *SQLiteRepository) AddUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID) (*domain.UserPlaybook, error) {
	existing, err := r.getUserPlaybook(ctx, userID, playbookID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	up := &domain.UserPlaybook{
		ID:         uuid.New(),
		UserID:     userID,
		PlaybookID: playbookID,
		LastUsed:   r.now(),
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_playbooks (id, user_id, playbook_id, is_favorite, customizations, last_used, usage_count)
		VALUES (?, ?, ?, 0, NULL, ?, 0)
	`, up.ID.String(), userID, playbookID.String(), up.LastUsed)
	if err != nil {
		return nil, fmt.Errorf("insert user playbook: %w", err)
	}
	return up, nil
}

// UpdateUserPlaybook applies a patch to the membership row.
func (r *SQLiteRepository) UpdateUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID, patch domain.UserPlaybookPatch) error {
	if patch.IsZero() {
		return nil
	}
	sets := []string{}
	args := []any{}
	if patch.IsFavorite != nil {
		sets = append(sets, "is_favorite = ?")
		args = append(args, boolToInt(*patch.IsFavorite))
	}
	if patch.Customizations != nil {
		sets = append(sets, "customizations = ?")
		args = append(args, *patch.Customizations)
	}
	args = append(args, userID, playbookID.String())

	query := "UPDATE user_playbooks SET " + strings.Join(sets, ", ") + " WHERE user_id = ? AND playbook_id = ?"
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user playbook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrUserPlaybookNotFound
	}
	return nil
}

// RemoveUserPlaybook deletes the membership row if present.
func (r *SQLiteRepository) RemoveUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM user_playbooks WHERE user_id = ? AND playbook_id = ?",
		userID, playbookID.String())
	return err
}

// IncrementUsage bumps the usage counter and stamps last_used.
func (r *SQLiteRepository) IncrementUsage(ctx context.Context, userID string, playbookID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_playbooks SET usage_count = usage_count + 1, last_used = ?
		WHERE user_id = ? AND playbook_id = ?
	`, r.now(), userID, playbookID.String())
	return err
}

func (r *SQLiteRepository) getUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID) (*domain.UserPlaybook, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, playbook_id, is_favorite, customizations, last_used, usage_count
		FROM user_playbooks WHERE user_id = ? AND playbook_id = ?
	`, userID, playbookID.String())
	up, err := scanUserPlaybook(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return up, nil
}

func (r *SQLiteRepository) queryPlaybooks(ctx context.Context, query string, args ...any) ([]domain.Playbook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	playbooks := make([]domain.Playbook, 0)
	for rows.Next() {
		p, err := scanPlaybookRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		playbooks = append(playbooks, *p)
	}
	return playbooks, rows.Err()
}

func scanPlaybookRow(scan func(dest ...any) error) (*domain.Playbook, error) {
	var (
		p                                 domain.Playbook
		idStr                             string
		isPremium, isTemplate             int
		description, category, icon, user sql.NullString
	)
	err := scan(&idStr, &p.Name, &description, &category, &icon, &isPremium, &isTemplate, &user, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.ID, _ = uuid.Parse(idStr)
	p.Description = description.String
	p.Category = category.String
	p.Icon = icon.String
	p.CreatedBy = user.String
	p.IsPremium = isPremium == 1
	p.IsTemplate = isTemplate == 1
	return &p, nil
}

func scanUserPlaybook(scan func(dest ...any) error) (*domain.UserPlaybook, error) {
	var (
		up             domain.UserPlaybook
		idStr, pbStr   string
		isFavorite     int
		customizations sql.NullString
		lastUsed       sql.NullInt64
	)
	err := scan(&idStr, &up.UserID, &pbStr, &isFavorite, &customizations, &lastUsed, &up.UsageCount)
	if err != nil {
		return nil, err
	}
	up.ID, _ = uuid.Parse(idStr)
	up.PlaybookID, _ = uuid.Parse(pbStr)
	up.IsFavorite = isFavorite == 1
	up.Customizations = customizations.String
	up.LastUsed = lastUsed.Int64
	return &up, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
