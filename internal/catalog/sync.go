package catalog

import (
	"context"
	"fmt"
	"log"

	"github.com/aimessenger/aimessenger/internal/remote"
)

// LoadUserModels merges the identity's remotely stored custom personas into
// the catalog. The merge is additive: remote entries never delete
// locally-created personas that have not been synced yet.
func (c *Catalog) LoadUserModels(ctx context.Context, userID string) error {
	if c.remote == nil {
		return nil
	}

	rows, err := c.remote.GetCustomModels(ctx, userID)
	if err != nil {
		return fmt.Errorf("load custom personas: %w", err)
	}

	c.mu.Lock()
	added := 0
	for _, row := range rows {
		if existing, ok := c.models[row.ID]; ok {
			// Remote copy wins for synced personas (last write wins)
			existing.Name = row.Name
			existing.Avatar = row.Avatar
			existing.Personality = row.Personality
			existing.Provider = row.Provider
			existing.APIModel = row.APIModel
			continue
		}
		c.add(AIModel{
			ID:          row.ID,
			Name:        row.Name,
			Avatar:      row.Avatar,
			Personality: row.Personality,
			Provider:    row.Provider,
			APIModel:    row.APIModel,
			IsOnline:    true,
			Status:      "Ready to chat",
			Custom:      true,
		})
		added++
	}
	c.mu.Unlock()

	log.Printf("[Catalog] Merged %d remote personas for %s (%d new)", len(rows), userID, added)
	c.publish()
	return nil
}

// SaveUserModels upserts the identity's custom personas to the remote
// store. Best effort: a failure leaves local state authoritative.
func (c *Catalog) SaveUserModels(ctx context.Context, userID string) error {
	if c.remote == nil {
		return nil
	}

	c.mu.RLock()
	rows := make([]remote.ModelRow, 0)
	for _, id := range c.order {
		m := c.models[id]
		if !m.Custom {
			continue
		}
		rows = append(rows, remote.ModelRow{
			ID:          m.ID,
			UserID:      userID,
			Name:        m.Name,
			Avatar:      m.Avatar,
			Personality: m.Personality,
			Provider:    m.Provider,
			APIModel:    m.APIModel,
		})
	}
	c.mu.RUnlock()

	if err := c.remote.UpsertCustomModels(ctx, rows); err != nil {
		log.Printf("[Catalog] Remote persona save failed for %s: %v", userID, err)
		return fmt.Errorf("save custom personas: %w", err)
	}
	return nil
}
