package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sidecue/sidecue/internal/playbooks/domain"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/crypto"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/database"
)

// PostgresRepository implements domain.Repository against the remote
// document store. Writes stamp timestamps with server time; the declared
// sensitive fields (playbook description, document processed_text, prompt
// prompt_text) pass through the field codec so they are encrypted at rest
// and plaintext at the call site.
type PostgresRepository struct {
	conn  database.Connection
	codec *crypto.FieldCodec
}

// NewPostgresRepository creates a new repository. A nil codec stores
// sensitive fields in clear text (tests only).
func NewPostgresRepository(conn database.Connection, codec *crypto.FieldCodec) *PostgresRepository {
	return &PostgresRepository{conn: conn, codec: codec}
}

// remapErr tags unreachable-backend failures so callers can fall back to
// cached data instead of failing the operation.
func remapErr(err error) error {
	if err == nil {
		return nil
	}
	if database.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return err
}

// GetByID returns the playbook, or nil when no row matches.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Playbook, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(category, ''), COALESCE(icon, ''),
		       is_premium, is_template, COALESCE(created_by, ''), created_at, updated_at
		FROM playbooks WHERE id = $1
	`, id)
	p, err := r.scanPlaybook(row.Scan)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, remapErr(err)
	}
	return p, nil
}

// GetAll returns every playbook, newest first.
func (r *PostgresRepository) GetAll(ctx context.Context) ([]domain.Playbook, error) {
	return r.queryPlaybooks(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(category, ''), COALESCE(icon, ''),
		       is_premium, is_template, COALESCE(created_by, ''), created_at, updated_at
		FROM playbooks ORDER BY created_at DESC
	`)
}

// GetByCategory returns playbooks in a category, newest first.
func (r *PostgresRepository) GetByCategory(ctx context.Context, category string) ([]domain.Playbook, error) {
	return r.queryPlaybooks(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(category, ''), COALESCE(icon, ''),
		       is_premium, is_template, COALESCE(created_by, ''), created_at, updated_at
		FROM playbooks WHERE category = $1 ORDER BY created_at DESC
	`, category)
}

// GetTemplates returns system playbooks grouped by category, newest first
// within each category.
func (r *PostgresRepository) GetTemplates(ctx context.Context) ([]domain.Playbook, error) {
	return r.queryPlaybooks(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(category, ''), COALESCE(icon, ''),
		       is_premium, is_template, COALESCE(created_by, ''), created_at, updated_at
		FROM playbooks WHERE is_template ORDER BY category ASC, created_at DESC
	`)
}

// Create inserts a playbook. Timestamps come back from the server clock
// so local and remote rows carry the same unit.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Playbook) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	description, err := r.codec.EncodeField(p.Description)
	if err != nil {
		return err
	}

	row := r.conn.QueryRow(ctx, `
		INSERT INTO playbooks (id, name, description, category, icon, is_premium, is_template, created_by, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''),
		        EXTRACT(EPOCH FROM now())::BIGINT, EXTRACT(EPOCH FROM now())::BIGINT)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, description, p.Category, p.Icon, p.IsPremium, p.IsTemplate, p.CreatedBy)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return remapErr(fmt.Errorf("insert playbook: %w", err))
	}
	return nil
}

// Update applies a patch, stamping updated_at with server time.
func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, patch domain.PlaybookPatch) error {
	sets := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Name != nil {
		sets = append(sets, "name = "+arg(*patch.Name))
	}
	if patch.Description != nil {
		description, err := r.codec.EncodeField(*patch.Description)
		if err != nil {
			return err
		}
		sets = append(sets, "description = "+arg(description))
	}
	if patch.Category != nil {
		sets = append(sets, "category = "+arg(*patch.Category))
	}
	if patch.Icon != nil {
		sets = append(sets, "icon = "+arg(*patch.Icon))
	}
	if patch.IsPremium != nil {
		sets = append(sets, "is_premium = "+arg(*patch.IsPremium))
	}
	sets = append(sets, "updated_at = EXTRACT(EPOCH FROM now())::BIGINT")

	query := "UPDATE playbooks SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(id)
	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return remapErr(fmt.Errorf("update playbook: %w", err))
	}
	return nil
}

// Delete removes the playbook and all attached rows in one transaction,
// mirroring the embedded backend's all-or-nothing cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return remapErr(fmt.Errorf("begin cascade delete: %w", err))
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		"DELETE FROM playbook_prompts WHERE playbook_id = $1",
		"DELETE FROM playbook_documents WHERE playbook_id = $1",
		"DELETE FROM user_playbooks WHERE playbook_id = $1",
		"DELETE FROM playbooks WHERE id = $1",
	} {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return remapErr(fmt.Errorf("cascade delete playbook: %w", err))
		}
	}

	return remapErr(tx.Commit(ctx))
}

// PromptsByPlaybook returns prompts ordered by display order, ties broken
// by importance, prompt text decrypted.
func (r *PostgresRepository) PromptsByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]domain.Prompt, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, playbook_id, COALESCE(trigger_type, ''), COALESCE(trigger_value, ''), prompt_text, priority, order_index
		FROM playbook_prompts WHERE playbook_id = $1
		ORDER BY order_index ASC, priority DESC
	`, playbookID)
	if err != nil {
		return nil, remapErr(err)
	}
	defer rows.Close()

	prompts := make([]domain.Prompt, 0)
	for rows.Next() {
		var (
			p           domain.Prompt
			triggerType string
		)
		if err := rows.Scan(&p.ID, &p.PlaybookID, &triggerType, &p.TriggerValue, &p.PromptText, &p.Priority, &p.OrderIndex); err != nil {
			return nil, err
		}
		p.TriggerType = domain.TriggerType(triggerType)
		if p.PromptText, err = r.codec.DecodeField(p.PromptText); err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// AddPrompt inserts a prompt with encrypted prompt text.
func (r *PostgresRepository) AddPrompt(ctx context.Context, p *domain.Prompt) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	promptText, err := r.codec.EncodeField(p.PromptText)
	if err != nil {
		return err
	}
	_, err = r.conn.Exec(ctx, `
		INSERT INTO playbook_prompts (id, playbook_id, trigger_type, trigger_value, prompt_text, priority, order_index)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)
	`, p.ID, p.PlaybookID, string(p.TriggerType), p.TriggerValue, promptText, p.Priority, p.OrderIndex)
	if err != nil {
		return remapErr(fmt.Errorf("insert prompt: %w", err))
	}
	return nil
}

// UpdatePrompt applies a patch to a prompt.
func (r *PostgresRepository) UpdatePrompt(ctx context.Context, promptID uuid.UUID, patch domain.PromptPatch) error {
	if patch.IsZero() {
		return nil
	}
	sets := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.TriggerType != nil {
		sets = append(sets, "trigger_type = "+arg(string(*patch.TriggerType)))
	}
	if patch.TriggerValue != nil {
		sets = append(sets, "trigger_value = "+arg(*patch.TriggerValue))
	}
	if patch.PromptText != nil {
		promptText, err := r.codec.EncodeField(*patch.PromptText)
		if err != nil {
			return err
		}
		sets = append(sets, "prompt_text = "+arg(promptText))
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = "+arg(*patch.Priority))
	}
	if patch.OrderIndex != nil {
		sets = append(sets, "order_index = "+arg(*patch.OrderIndex))
	}

	query := "UPDATE playbook_prompts SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(promptID)
	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return remapErr(fmt.Errorf("update prompt: %w", err))
	}
	return nil
}

// DeletePrompt removes a single prompt.
func (r *PostgresRepository) DeletePrompt(ctx context.Context, promptID uuid.UUID) error {
	_, err := r.conn.Exec(ctx, "DELETE FROM playbook_prompts WHERE id = $1", promptID)
	return remapErr(err)
}

// DocumentsByPlaybook returns documents newest first, extracted text
// decrypted.
func (r *PostgresRepository) DocumentsByPlaybook(ctx context.Context, playbookID uuid.UUID) ([]domain.Document, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, playbook_id, file_name, file_url, COALESCE(file_type, ''), COALESCE(processed_text, ''), uploaded_at
		FROM playbook_documents WHERE playbook_id = $1
		ORDER BY uploaded_at DESC
	`, playbookID)
	if err != nil {
		return nil, remapErr(err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.PlaybookID, &d.FileName, &d.FileURL, &d.FileType, &d.ProcessedText, &d.UploadedAt); err != nil {
			return nil, err
		}
		if d.ProcessedText, err = r.codec.DecodeField(d.ProcessedText); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// AddDocument inserts a document with encrypted extracted text,
// stamping uploaded_at with server time.
func (r *PostgresRepository) AddDocument(ctx context.Context, d *domain.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	processedText, err := r.codec.EncodeField(d.ProcessedText)
	if err != nil {
		return err
	}
	row := r.conn.QueryRow(ctx, `
		INSERT INTO playbook_documents (id, playbook_id, file_name, file_url, file_type, processed_text, uploaded_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), EXTRACT(EPOCH FROM now())::BIGINT)
		RETURNING uploaded_at
	`, d.ID, d.PlaybookID, d.FileName, d.FileURL, d.FileType, processedText)
	if err := row.Scan(&d.UploadedAt); err != nil {
		return remapErr(fmt.Errorf("insert document: %w", err))
	}
	return nil
}

// DeleteDocument removes a single document.
func (r *PostgresRepository) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.conn.Exec(ctx, "DELETE FROM playbook_documents WHERE id = $1", documentID)
	return remapErr(err)
}

// UserPlaybooks returns the user's collection, favorites first, then by
// descending usage, then by recency.
func (r *PostgresRepository) UserPlaybooks(ctx context.Context, userID string) ([]domain.UserPlaybook, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, playbook_id, is_favorite, COALESCE(customizations, ''), COALESCE(last_used, 0), usage_count
		FROM user_playbooks WHERE user_id = $1
		ORDER BY is_favorite DESC, usage_count DESC, last_used DESC
	`, userID)
	if err != nil {
		return nil, remapErr(err)
	}
	defer rows.Close()

	memberships := make([]domain.UserPlaybook, 0)
	for rows.Next() {
		var up domain.UserPlaybook
		if err := rows.Scan(&up.ID, &up.UserID, &up.PlaybookID, &up.IsFavorite, &up.Customizations, &up.LastUsed, &up.UsageCount); err != nil {
			return nil, err
		}
		memberships = append(memberships, up)
	}
	return memberships, rows.Err()
}

// AddUserPlaybook upserts the membership row; the conflict clause keeps
// an existing (user, playbook) pair intact instead of duplicating it.
func (r *PostgresRepository) AddUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID) (*domain.UserPlaybook, error) {
	up := &domain.UserPlaybook{
		ID:         uuid.New(),
		UserID:     userID,
		PlaybookID: playbookID,
	}
	row := r.conn.QueryRow(ctx, `
		INSERT INTO user_playbooks (id, user_id, playbook_id, is_favorite, customizations, last_used, usage_count)
		VALUES ($1, $2, $3, FALSE, NULL, EXTRACT(EPOCH FROM now())::BIGINT, 0)
		ON CONFLICT (user_id, playbook_id) DO UPDATE SET user_id = user_playbooks.user_id
		RETURNING id, is_favorite, COALESCE(customizations, ''), COALESCE(last_used, 0), usage_count
	`, up.ID, userID, playbookID)
	if err := row.Scan(&up.ID, &up.IsFavorite, &up.Customizations, &up.LastUsed, &up.UsageCount); err != nil {
		return nil, remapErr(fmt.Errorf("upsert user playbook: %w", err))
	}
	return up, nil
}

// UpdateUserPlaybook applies a patch to the membership row.
func (r *PostgresRepository) UpdateUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID, patch domain.UserPlaybookPatch) error {
	if patch.IsZero() {
		return nil
	}
	sets := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.IsFavorite != nil {
		sets = append(sets, "is_favorite = "+arg(*patch.IsFavorite))
	}
	if patch.Customizations != nil {
		sets = append(sets, "customizations = "+arg(*patch.Customizations))
	}

	query := "UPDATE user_playbooks SET " + strings.Join(sets, ", ") +
		" WHERE user_id = " + arg(userID) + " AND playbook_id = " + arg(playbookID)
	result, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return remapErr(fmt.Errorf("update user playbook: %w", err))
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
func (r *PostgresRepository) RemoveUserPlaybook(ctx context.Context, userID string, playbookID uuid.UUID) error {
	_, err := r.conn.Exec(ctx,
		"DELETE FROM user_playbooks WHERE user_id = $1 AND playbook_id = $2",
		userID, playbookID)
	return remapErr(err)
}

// IncrementUsage bumps the usage counter and stamps last_used with
// server time.
func (r *PostgresRepository) IncrementUsage(ctx context.Context, userID string, playbookID uuid.UUID) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE user_playbooks
		SET usage_count = usage_count + 1, last_used = EXTRACT(EPOCH FROM now())::BIGINT
		WHERE user_id = $1 AND playbook_id = $2
	`, userID, playbookID)
	return remapErr(err)
}

func (r *PostgresRepository) queryPlaybooks(ctx context.Context, query string, args ...any) ([]domain.Playbook, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, remapErr(err)
	}
	defer rows.Close()

	playbooks := make([]domain.Playbook, 0)
	for rows.Next() {
		p, err := r.scanPlaybook(rows.Scan)
		if err != nil {
			return nil, err
		}
		playbooks = append(playbooks, *p)
	}
	return playbooks, rows.Err()
}

func (r *PostgresRepository) scanPlaybook(scan func(dest ...any) error) (*domain.Playbook, error) {
	var p domain.Playbook
	err := scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Icon, &p.IsPremium, &p.IsTemplate, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Description, err = r.codec.DecodeField(p.Description); err != nil {
		return nil, err
	}
	return &p, nil
}
