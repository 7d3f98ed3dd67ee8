package catalog

import (
	"context"
	"fmt"
	"log"

	"github.com/aimessenger/aimessenger/internal/provider"
)

// FetchProviderCatalog refreshes the OpenRouter persona entries from the
// provider's live model listing, using the key configured right now.
//
// On success the provider's non-custom entries are replaced by the fetched
// set; entries the user edited keep their name, avatar and personality.
// On failure the prior entries stay untouched and only the catalog error
// state is set.
func (c *Catalog) FetchProviderCatalog(ctx context.Context) error {
	lister := c.lister
	if lister == nil {
		cfg := c.settings.Get()
		p, err := c.registry.Resolve(provider.OpenRouter, cfg.ProviderConfig())
		if err != nil {
			return err
		}
		var ok bool
		lister, ok = p.(provider.ModelLister)
		if !ok {
			return fmt.Errorf("provider %s has no model catalog", p.ID())
		}
	}

	fetched, err := lister.ListModels(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
		log.Printf("[Catalog] Refresh failed: %v", err)
		return err
	}

	c.mu.Lock()
	c.lastError = ""

	// Drop stale provider entries, keeping custom and edited ones
	keep := c.order[:0]
	fetchedIDs := make(map[string]bool, len(fetched))
	for _, fm := range fetched {
		fetchedIDs[fm.ID] = true
	}
	for _, id := range c.order {
		m := c.models[id]
		if m.Provider == provider.OpenRouter && !m.Custom && !m.edited && !fetchedIDs[id] && !isSeed(id) {
			delete(c.models, id)
			continue
		}
		keep = append(keep, id)
	}
	c.order = keep

	for _, fm := range fetched {
		if existing, ok := c.models[fm.ID]; ok {
			// Refresh provider-owned fields, preserve user customizations
			existing.Pricing = pricingFrom(fm.Pricing)
			existing.TopProvider = fm.TopProvider
			if !existing.edited {
				existing.Name = fm.Name
			}
			continue
		}
		c.add(AIModel{
			ID:          fm.ID,
			Name:        fm.Name,
			Avatar:      "https://api.dicebear.com/7.x/avataaars/svg?seed=" + fm.ID,
			Personality: fm.Description,
			Provider:    provider.OpenRouter,
			APIModel:    fm.ID,
			IsOnline:    true,
			Status:      "Ready to chat",
			Pricing:     pricingFrom(fm.Pricing),
			TopProvider: fm.TopProvider,
		})
	}
	count := len(c.order)
	c.mu.Unlock()

	log.Printf("[Catalog] Refreshed OpenRouter catalog: %d personas total", count)
	c.publish()
	return nil
}

func pricingFrom(p *provider.Pricing) *Pricing {
	if p == nil {
		return nil
	}
	return &Pricing{
		PromptCostPerToken:     p.Prompt,
		CompletionCostPerToken: p.Completion,
	}
}

// isSeed reports whether the id belongs to the static seed set.
func isSeed(id string) bool {
	for _, m := range seedModels() {
		if m.ID == id {
			return true
		}
	}
	return false
}
