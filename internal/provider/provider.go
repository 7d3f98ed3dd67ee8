package provider

import (
	"context"
	"fmt"
	"net/http"
)

// Provider ids for the three supported backends.
const (
	OpenRouter = "openrouter"
	N8N        = "n8n"
	LMStudio   = "lmstudio"
)

// Turn roles in the normalized chat form.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a normalized chat turn passed to any provider.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is one inference backend. Chat sends a full turn sequence and
// returns the assistant reply. Probe performs a minimal reachability check
// without producing a completion.
type Provider interface {
	ID() string
	Chat(ctx context.Context, turns []Turn) (string, error)
	Probe(ctx context.Context) error
}

// ModelLister is implemented by providers that expose a live model catalog.
// Only OpenRouter does.
type ModelLister interface {
	ListModels(ctx context.Context) ([]CatalogModel, error)
}

// CatalogModel is one entry from a provider's model listing.
type CatalogModel struct {
	ID            string
	Name          string
	Description   string
	ContextLength int
	Pricing       *Pricing
	TopProvider   string
}

// Pricing is the per-token cost reported by the catalog, in USD.
type Pricing struct {
	Prompt     float64
	Completion float64
}

// Config carries the credentials a provider is bound to at resolve time.
// Callers build it from the current settings snapshot, so an in-flight
// resolve always sees the values that were configured when the call fired.
type Config struct {
	OpenRouterAPIKey string
	N8NWebhookURL    string
	LMStudioURL      string
	Model            string // provider-specific model id, optional
}

// Known reports whether id names a registered provider.
func Known(id string) bool {
	switch id {
	case OpenRouter, N8N, LMStudio:
		return true
	}
	return false
}

// Registry resolves provider ids to configured provider clients.
// It is pure lookup: no state beyond the shared HTTP client.
type Registry struct {
	client *http.Client
}

// NewRegistry creates a provider registry. All resolved providers share one
// HTTP client; per-call deadlines come from the caller's context.
func NewRegistry() *Registry {
	return &Registry{client: &http.Client{}}
}

// Resolve returns the provider for id bound to the given credentials.
func (r *Registry) Resolve(id string, cfg Config) (Provider, error) {
	switch id {
	case OpenRouter:
		return newOpenRouter(cfg.OpenRouterAPIKey, cfg.Model, r.client), nil
	case LMStudio:
		return newLMStudio(cfg.LMStudioURL, cfg.Model, r.client), nil
	case N8N:
		return newN8N(cfg.N8NWebhookURL, r.client), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
}
