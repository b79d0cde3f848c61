package domain

// Patch structs enumerate the optional fields of a partial update. A nil
// pointer leaves the column untouched; each set field maps to exactly one
// backend update expression.

// PlaybookPatch is a partial update to a playbook.
type PlaybookPatch struct {
	Name        *string
	Description *string
	Category    *string
	Icon        *string
	IsPremium   *bool
}

// IsZero reports whether no field is set.
func (p PlaybookPatch) IsZero() bool {
	return p.Name == nil && p.Description == nil && p.Category == nil &&
		p.Icon == nil && p.IsPremium == nil
}

// PromptPatch is a partial update to a prompt.
type PromptPatch struct {
	TriggerType  *TriggerType
	TriggerValue *string
	PromptText   *string
	Priority     *int
	OrderIndex   *int
}

// IsZero reports whether no field is set.
func (p PromptPatch) IsZero() bool {
	return p.TriggerType == nil && p.TriggerValue == nil &&
		p.PromptText == nil && p.Priority == nil && p.OrderIndex == nil
}

// UserPlaybookPatch is a partial update to a user's playbook membership.
type UserPlaybookPatch struct {
	IsFavorite     *bool
	Customizations *string
}

// IsZero reports whether no field is set.
func (p UserPlaybookPatch) IsZero() bool {
	return p.IsFavorite == nil && p.Customizations == nil
}
