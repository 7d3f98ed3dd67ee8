package catalog

import "github.com/aimessenger/aimessenger/internal/provider"

// seedModels is the static persona set available before any configuration.
func seedModels() []AIModel {
	return []AIModel{
		{
			ID:          "nova",
			Name:        "Nova",
			Avatar:      "https://api.dicebear.com/7.x/avataaars/svg?seed=Nova",
			Personality: "You are Nova, a friendly and upbeat assistant. Keep answers clear and practical, and ask a short follow-up question when the request is ambiguous.",
			Provider:    provider.OpenRouter,
			APIModel:    "openai/gpt-4o-mini",
			IsOnline:    true,
			Status:      "Ready to chat",
		},
		{
			ID:          "sage",
			Name:        "Sage",
			Avatar:      "https://api.dicebear.com/7.x/avataaars/svg?seed=Sage",
			Personality: "You are Sage, a careful analyst. Think step by step, state your assumptions, and prefer depth over speed.",
			Provider:    provider.OpenRouter,
			APIModel:    "anthropic/claude-3.5-sonnet",
			IsOnline:    true,
			Status:      "Ready to chat",
		},
		{
			ID:          "echo",
			Name:        "Echo",
			Avatar:      "https://api.dicebear.com/7.x/avataaars/svg?seed=Echo",
			Personality: "You are Echo, a private assistant running entirely on the user's own machine. Never suggest cloud services when a local option exists.",
			Provider:    provider.LMStudio,
			IsOnline:    true,
			Status:      "Running locally",
		},
		{
			ID:          "flow",
			Name:        "Flow",
			Avatar:      "https://api.dicebear.com/7.x/avataaars/svg?seed=Flow",
			Personality: "You are Flow, an automation specialist wired into the user's n8n workflows. Answer with the result of the workflow run.",
			Provider:    provider.N8N,
			IsOnline:    true,
			Status:      "Workflow ready",
		},
	}
}
