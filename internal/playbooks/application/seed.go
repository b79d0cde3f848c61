package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sidecue/sidecue/internal/playbooks/domain"
)

type seedPlaybook struct {
	name        string
	description string
	category    string
	icon        string
	prompts     []PromptInput
}

var defaultPlaybooks = []seedPlaybook{
	{
		name:        "Sales Demo",
		description: "Product pitches, feature explanations, and sales conversations",
		category:    "sales",
		icon:        "💰",
		prompts: []PromptInput{
			{TriggerType: domain.TriggerKeyword, TriggerValue: "objection", PromptText: "Help address this objection professionally. First acknowledge the concern, then provide a clear, solution-focused response.", Priority: 10, OrderIndex: 1},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "pricing", PromptText: "Address pricing questions by highlighting value and ROI. Provide specific pricing information if available, or offer to schedule a detailed pricing discussion.", Priority: 9, OrderIndex: 2},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "feature", PromptText: "Explain how this feature solves a specific customer problem. Use concrete examples and benefits.", Priority: 8, OrderIndex: 3},
		},
	},
	{
		name:        "Objection Handler",
		description: "Common objections and professional rebuttals",
		category:    "sales",
		icon:        "🛡️",
		prompts: []PromptInput{
			{TriggerType: domain.TriggerKeyword, TriggerValue: "too expensive", PromptText: "Address cost concerns by focusing on ROI and long-term value. Provide specific cost-benefit analysis or offer flexible payment options.", Priority: 10, OrderIndex: 1},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "need to think", PromptText: "Gently probe what specific concerns need to be addressed. Offer additional information or resources to help with decision-making.", Priority: 8, OrderIndex: 2},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "competitor", PromptText: "Highlight our unique differentiators. Focus on specific advantages without disparaging competitors.", Priority: 7, OrderIndex: 3},
		},
	},
	{
		name:        "Technical Interview",
		description: "Coding help, algorithm explanations, technical support",
		category:    "interview",
		icon:        "💻",
		prompts: []PromptInput{
			{TriggerType: domain.TriggerKeyword, TriggerValue: "algorithm", PromptText: "Explain the algorithm step by step, discuss time/space complexity, and provide example implementations.", Priority: 10, OrderIndex: 1},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "code review", PromptText: "Review the code for correctness, efficiency, and best practices. Suggest improvements constructively.", Priority: 9, OrderIndex: 2},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "technical question", PromptText: "Provide a clear, concise technical explanation with relevant examples and context.", Priority: 8, OrderIndex: 3},
		},
	},
	{
		name:        "Behavioral Interview",
		description: "STAR method responses and behavioral questions",
		category:    "interview",
		icon:        "⭐",
		prompts: []PromptInput{
			{TriggerType: domain.TriggerKeyword, TriggerValue: "tell me about", PromptText: "Help structure a STAR (Situation, Task, Action, Result) response. Identify the situation, your role, actions taken, and outcomes achieved.", Priority: 10, OrderIndex: 1},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "challenge", PromptText: "Frame the challenge clearly, explain your approach to solving it, and highlight the positive outcome and lessons learned.", Priority: 9, OrderIndex: 2},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "weakness", PromptText: "Select a genuine weakness that shows self-awareness. Explain steps taken to address it and demonstrate growth.", Priority: 8, OrderIndex: 3},
		},
	},
	{
		name:        "Customer Support",
		description: "Troubleshooting, empathy responses, problem resolution",
		category:    "support",
		icon:        "🎧",
		prompts: []PromptInput{
			{TriggerType: domain.TriggerKeyword, TriggerValue: "issue", PromptText: "Acknowledge the issue with empathy. Provide step-by-step troubleshooting guidance and offer escalation if needed.", Priority: 10, OrderIndex: 1},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "complaint", PromptText: "Listen actively, validate concerns, apologize if appropriate, and provide a clear resolution path.", Priority: 9, OrderIndex: 2},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "how to", PromptText: "Provide clear, concise instructions. Break down complex steps into smaller, manageable actions.", Priority: 8, OrderIndex: 3},
		},
	},
	{
		name:        "General Meeting",
		description: "Note-taking, action items, and meeting summaries",
		category:    "meeting",
		icon:        "📝",
		prompts: []PromptInput{
			{TriggerType: domain.TriggerKeyword, TriggerValue: "action item", PromptText: "Capture the action item with owner, deadline, and specific deliverable. Set reminders for follow-up.", Priority: 10, OrderIndex: 1},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "decision", PromptText: "Document the decision clearly, including rationale and stakeholders involved.", Priority: 9, OrderIndex: 2},
			{TriggerType: domain.TriggerKeyword, TriggerValue: "summary", PromptText: "Create a concise meeting summary with key points, decisions, and next steps.", Priority: 8, OrderIndex: 3},
		},
	},
}

// SeedDefaultPlaybooks inserts the bundled system templates. The seed is
// idempotent: when any template already exists it does nothing.
func SeedDefaultPlaybooks(ctx context.Context, repo domain.Repository, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	existing, err := repo.GetTemplates(ctx)
	if err != nil {
		return fmt.Errorf("checking existing templates: %w", err)
	}
	if len(existing) > 0 {
		logger.Debug("default playbooks already present, skipping seed")
		return nil
	}

	for _, seed := range defaultPlaybooks {
		playbook := domain.NewPlaybook(seed.name)
		playbook.Description = seed.description
		playbook.Category = seed.category
		playbook.Icon = seed.icon
		playbook.IsTemplate = true

		if err := repo.Create(ctx, playbook); err != nil {
			return fmt.Errorf("seeding playbook %q: %w", seed.name, err)
		}
		for _, in := range seed.prompts {
			prompt := &domain.Prompt{
				PlaybookID:   playbook.ID,
				TriggerType:  in.TriggerType,
				TriggerValue: in.TriggerValue,
				PromptText:   in.PromptText,
				Priority:     in.Priority,
				OrderIndex:   in.OrderIndex,
			}
			if err := repo.AddPrompt(ctx, prompt); err != nil {
				return fmt.Errorf("seeding prompts for %q: %w", seed.name, err)
			}
		}
		logger.Info("seeded playbook", "name", seed.name)
	}
	return nil
}
