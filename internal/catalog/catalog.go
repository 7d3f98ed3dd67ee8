// Package catalog owns the set of selectable AI personas. Entries come from
// a static seed set, the OpenRouter live catalog, and user-created custom
// personas mirrored to the remote store.
package catalog

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aimessenger/aimessenger/internal/event"
	"github.com/aimessenger/aimessenger/internal/provider"
	"github.com/aimessenger/aimessenger/internal/remote"
	"github.com/aimessenger/aimessenger/internal/settings"
	"github.com/aimessenger/aimessenger/internal/storage"
)

// ErrNotFound is returned when a persona id is not in the catalog.
var ErrNotFound = errors.New("model not found")

// Pricing is the optional per-token cost of a hosted persona, in USD.
type Pricing struct {
	PromptCostPerToken     float64 `json:"promptCostPerToken"`
	CompletionCostPerToken float64 `json:"completionCostPerToken"`
}

// AIModel is one persona: a named, provider-bound chat identity.
type AIModel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar"`
	Personality string    `json:"personality"`
	Provider    string    `json:"provider"`
	APIModel    string    `json:"apiModel,omitempty"`
	IsOnline    bool      `json:"isOnline"`
	Status      string    `json:"status"`
	LastSeen    time.Time `json:"lastSeen,omitempty"`
	Pricing     *Pricing  `json:"pricing,omitempty"`
	TopProvider string    `json:"topProvider,omitempty"`
	Custom      bool      `json:"custom"`
	edited      bool      // user touched name/avatar/personality
}

// Patch is a partial persona edit.
type Patch struct {
	Name        *string `json:"name,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
	Personality *string `json:"personality,omitempty"`
	APIModel    *string `json:"apiModel,omitempty"`
}

// Catalog is the persona store.
type Catalog struct {
	mu          sync.RWMutex
	models      map[string]*AIModel
	order       []string
	lastError   string
	initialized bool

	settings *settings.Store
	registry *provider.Registry
	remote   remote.Client
	bus      *event.Bus

	// lister overrides the OpenRouter catalog source; nil means resolve
	// through the registry with current credentials
	lister provider.ModelLister
}

// New creates an empty catalog. remoteClient may be nil.
func New(settingsStore *settings.Store, registry *provider.Registry, remoteClient remote.Client, bus *event.Bus) *Catalog {
	return &Catalog{
		models:   make(map[string]*AIModel),
		settings: settingsStore,
		registry: registry,
		remote:   remoteClient,
		bus:      bus,
	}
}

// Initialize populates the catalog with the seed personas and any custom
// personas cached locally. Idempotent: re-invocation never duplicates.
func (c *Catalog) Initialize() {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return
	}
	c.initialized = true
	for _, m := range seedModels() {
		c.add(m)
	}
	c.mu.Unlock()

	cached, err := storage.GetCustomModels()
	if err != nil {
		log.Printf("[Catalog] Failed to load cached custom personas: %v", err)
	}
	c.mu.Lock()
	for _, row := range cached {
		if _, ok := c.models[row.ID]; ok {
			continue
		}
		c.add(customFromStorage(row))
	}
	count := len(c.order)
	c.mu.Unlock()

	log.Printf("[Catalog] Initialized with %d personas", count)
	c.publish()
}

// List returns all personas in stable insertion order.
func (c *Catalog) List() []AIModel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AIModel, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.models[id])
	}
	return out
}

// Get returns one persona by id.
func (c *Catalog) Get(id string) (AIModel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[id]
	if !ok {
		return AIModel{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *m, nil
}

// Error returns the catalog-level error from the last failed refresh, or "".
func (c *Catalog) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Update applies a user edit to one persona.
func (c *Catalog) Update(modelID string, p Patch) (AIModel, error) {
	c.mu.Lock()
	m, ok := c.models[modelID]
	if !ok {
		c.mu.Unlock()
		return AIModel{}, fmt.Errorf("%w: %s", ErrNotFound, modelID)
	}
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Avatar != nil {
		m.Avatar = *p.Avatar
	}
	if p.Personality != nil {
		m.Personality = *p.Personality
	}
	if p.APIModel != nil {
		m.APIModel = *p.APIModel
	}
	m.edited = true
	out := *m
	c.mu.Unlock()

	if out.Custom {
		c.cacheCustom(out)
	}
	c.publish()
	return out, nil
}

// CreateCustom adds a user-created persona bound to providerID.
func (c *Catalog) CreateCustom(name, avatar, personality, providerID, apiModel string) (AIModel, error) {
	if !provider.Known(providerID) {
		return AIModel{}, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, providerID)
	}

	m := AIModel{
		ID:          "custom-" + uuid.New().String(),
		Name:        name,
		Avatar:      avatar,
		Personality: personality,
		Provider:    providerID,
		APIModel:    apiModel,
		IsOnline:    true,
		Status:      "Ready to chat",
		Custom:      true,
	}

	c.mu.Lock()
	c.add(m)
	c.mu.Unlock()

	c.cacheCustom(m)
	c.publish()
	return m, nil
}

// SetProviderPresence marks every persona of a provider online or offline.
// The health monitor drives this from chat connectivity.
func (c *Catalog) SetProviderPresence(providerID string, online bool) {
	c.mu.Lock()
	changed := false
	for _, m := range c.models {
		if m.Provider != providerID || m.IsOnline == online {
			continue
		}
		m.IsOnline = online
		if online {
			m.Status = "Ready to chat"
		} else {
			m.Status = "Offline"
			m.LastSeen = time.Now()
		}
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.publish()
	}
}

// add inserts preserving order. Caller holds the lock.
func (c *Catalog) add(m AIModel) {
	if _, ok := c.models[m.ID]; !ok {
		c.order = append(c.order, m.ID)
	}
	c.models[m.ID] = &m
}

func (c *Catalog) cacheCustom(m AIModel) {
	err := storage.SaveCustomModel(&storage.CustomModel{
		ID:          m.ID,
		Name:        m.Name,
		Avatar:      m.Avatar,
		Personality: m.Personality,
		Provider:    m.Provider,
		APIModel:    m.APIModel,
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		log.Printf("[Catalog] Failed to cache custom persona %s: %v", m.ID, err)
	}
}

func (c *Catalog) publish() {
	if c.bus != nil {
		c.bus.Publish(event.New(event.TypeCatalogUpdated, nil))
	}
}

func customFromStorage(row storage.CustomModel) AIModel {
	return AIModel{
		ID:          row.ID,
		Name:        row.Name,
		Avatar:      row.Avatar,
		Personality: row.Personality,
		Provider:    row.Provider,
		APIModel:    row.APIModel,
		IsOnline:    true,
		Status:      "Ready to chat",
		Custom:      true,
	}
}
