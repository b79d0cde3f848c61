package domain

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType classifies how a prompt is activated.
type TriggerType string

const (
	// TriggerKeyword matches when the trigger value appears in a
	// transcript turn (case-insensitive substring).
	TriggerKeyword TriggerType = "keyword"
	// TriggerContext matches when an LLM classifier affirms the
	// transcript exhibits the labelled context.
	TriggerContext TriggerType = "context"
	// TriggerManual is never matched passively; it backs on-demand
	// contextual response generation only.
	TriggerManual TriggerType = "manual"
)

// Playbook is a named set of trigger rules plus optional reference
// documents. Templates are system-provided; custom playbooks belong to
// the user who created them.
type Playbook struct {
	ID          uuid.UUID
	Name        string
	Description string
	Category    string
	Icon        string
	IsPremium   bool
	IsTemplate  bool
	CreatedBy   string
	CreatedAt   int64
	UpdatedAt   int64
}

// NewPlaybook creates a playbook with a fresh id and local timestamps.
func NewPlaybook(name string) *Playbook {
	now := time.Now().Unix()
	return &Playbook{
		ID:         uuid.New(),
		Name:       name,
		IsTemplate: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Prompt is one trigger→guidance rule inside a playbook.
type Prompt struct {
	ID           uuid.UUID
	PlaybookID   uuid.UUID
	TriggerType  TriggerType
	TriggerValue string
	PromptText   string
	Priority     int
	OrderIndex   int
}

// IsManual reports whether the prompt only serves on-demand generation.
func (p Prompt) IsManual() bool {
	return p.TriggerType == TriggerManual
}

// Document is a reference file attached to exactly one playbook. The
// extracted ProcessedText feeds keyword-overlap retrieval.
type Document struct {
	ID            uuid.UUID
	PlaybookID    uuid.UUID
	FileName      string
	FileURL       string
	FileType      string
	ProcessedText string
	UploadedAt    int64
}

// UserPlaybook is a user's personal relationship to a playbook:
// favorite flag, customizations, and usage tracking. One row per
// (user, playbook) pair, upserted on first use.
type UserPlaybook struct {
	ID             uuid.UUID
	UserID         string
	PlaybookID     uuid.UUID
	IsFavorite     bool
	Customizations string
	LastUsed       int64
	UsageCount     int
}
