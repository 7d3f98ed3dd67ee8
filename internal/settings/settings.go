package settings

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/aimessenger/aimessenger/internal/event"
	"github.com/aimessenger/aimessenger/internal/provider"
	"github.com/aimessenger/aimessenger/internal/remote"
)

// DefaultSearchURL is the fallback search engine used when none is set.
const DefaultSearchURL = "https://search.brainstormnodes.org/"

// APISettings is the single per-user provider configuration.
type APISettings struct {
	Provider             string `toml:"provider" json:"provider"`
	OpenRouterAPIKey     string `toml:"openrouter_api_key" json:"openrouterApiKey"`
	N8NWebhookURL        string `toml:"n8n_webhook_url" json:"n8nWebhookUrl"`
	LMStudioURL          string `toml:"lmstudio_url" json:"lmstudioUrl"`
	OpenAIAPIKey         string `toml:"openai_api_key" json:"openaiApiKey"`
	ImageGenerationModel string `toml:"image_generation_model" json:"imageGenerationModel"`
	OCRModel             string `toml:"ocr_model" json:"ocrModel"`
	SearchURL            string `toml:"search_url" json:"searchUrl"`
}

// Defaults returns the settings applied before any user configuration.
func Defaults() APISettings {
	return APISettings{
		Provider:             provider.OpenRouter,
		LMStudioURL:          provider.DefaultLMStudioURL,
		ImageGenerationModel: "default",
		OCRModel:             "default",
		SearchURL:            DefaultSearchURL,
	}
}

// Patch is a partial settings update. Nil fields are left untouched.
type Patch struct {
	Provider             *string `json:"provider,omitempty"`
	OpenRouterAPIKey     *string `json:"openrouterApiKey,omitempty"`
	N8NWebhookURL        *string `json:"n8nWebhookUrl,omitempty"`
	LMStudioURL          *string `json:"lmstudioUrl,omitempty"`
	OpenAIAPIKey         *string `json:"openaiApiKey,omitempty"`
	ImageGenerationModel *string `json:"imageGenerationModel,omitempty"`
	OCRModel             *string `json:"ocrModel,omitempty"`
	SearchURL            *string `json:"searchUrl,omitempty"`
}

// Store owns the in-memory settings snapshot and bridges it with the remote
// row and an optional local TOML mirror. Local edits apply immediately;
// the remote copy is an asynchronous mirror, never a gate.
type Store struct {
	mu        sync.RWMutex
	current   APISettings
	loadedFor string // identity whose remote row was already applied this session
	remote    remote.Client
	bus       *event.Bus
	path      string
	watcher   *fileWatcher
}

// NewStore creates a settings store with defaults applied.
// remoteClient may be nil for local-only operation.
func NewStore(remoteClient remote.Client, bus *event.Bus) *Store {
	return &Store{
		current: Defaults(),
		remote:  remoteClient,
		bus:     bus,
	}
}

// Get returns the current settings snapshot. Dependents call this at the
// moment they fire a network request, not when the request was scheduled,
// so an edit that lands before a call fires takes effect for that call.
func (s *Store) Get() APISettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update merges a partial edit into memory immediately. No network call
// happens here; dependents pick up the new snapshot on their next read.
func (s *Store) Update(p Patch) APISettings {
	s.mu.Lock()
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&s.current.Provider, p.Provider)
	apply(&s.current.OpenRouterAPIKey, p.OpenRouterAPIKey)
	apply(&s.current.N8NWebhookURL, p.N8NWebhookURL)
	apply(&s.current.LMStudioURL, p.LMStudioURL)
	apply(&s.current.OpenAIAPIKey, p.OpenAIAPIKey)
	apply(&s.current.ImageGenerationModel, p.ImageGenerationModel)
	apply(&s.current.OCRModel, p.OCRModel)
	apply(&s.current.SearchURL, p.SearchURL)
	snapshot := s.current
	path := s.path
	s.mu.Unlock()

	if path != "" {
		if err := saveLocal(path, snapshot); err != nil {
			log.Printf("[Settings] Failed to write local mirror: %v", err)
		}
	}
	if s.bus != nil {
		s.bus.Publish(event.New(event.TypeSettingsUpdated, snapshot))
	}
	return snapshot
}

// LoadFromRemote fetches the persisted row for userID and replaces the
// in-memory snapshot. The fetch happens once per identity per session:
// repeat calls for an identity already applied are no-ops, so a background
// refresh can never clobber fields the user is editing.
//
// A missing row keeps the in-memory defaults. A network or auth failure
// leaves existing state untouched and returns a recoverable error.
func (s *Store) LoadFromRemote(ctx context.Context, userID string) error {
	if s.remote == nil {
		return nil
	}

	s.mu.RLock()
	already := s.loadedFor == userID
	s.mu.RUnlock()
	if already {
		return nil
	}

	row, err := s.remote.GetSettings(ctx, userID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	s.loadedFor = userID
	if row != nil {
		s.current = fromRow(*row)
	}
	snapshot := s.current
	s.mu.Unlock()

	if row == nil {
		log.Printf("[Settings] No remote row for %s, keeping defaults", userID)
	} else {
		log.Printf("[Settings] Loaded remote settings for %s", userID)
	}
	if s.bus != nil {
		s.bus.Publish(event.New(event.TypeSettingsUpdated, snapshot))
	}
	return nil
}

// SaveToRemote upserts the current snapshot for userID. Best effort: a
// failure is reported but the local update that already happened stands.
func (s *Store) SaveToRemote(ctx context.Context, userID string) error {
	if s.remote == nil {
		return nil
	}

	snapshot := s.Get()
	if err := s.remote.UpsertSettings(ctx, toRow(userID, snapshot)); err != nil {
		log.Printf("[Settings] Remote save failed for %s: %v", userID, err)
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ResetSession forgets the applied identity so the next login fetches the
// remote row again.
func (s *Store) ResetSession() {
	s.mu.Lock()
	s.loadedFor = ""
	s.mu.Unlock()
}

// ProviderConfig binds the snapshot's credentials for a provider resolve.
// The model id is left for the caller, it is a persona-level choice.
func (s APISettings) ProviderConfig() provider.Config {
	return provider.Config{
		OpenRouterAPIKey: s.OpenRouterAPIKey,
		N8NWebhookURL:    s.N8NWebhookURL,
		LMStudioURL:      s.LMStudioURL,
	}
}

func fromRow(row remote.SettingsRow) APISettings {
	out := Defaults()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Provider, row.Provider)
	set(&out.OpenRouterAPIKey, row.OpenRouterAPIKey)
	set(&out.N8NWebhookURL, row.N8NWebhookURL)
	set(&out.LMStudioURL, row.LMStudioURL)
	set(&out.OpenAIAPIKey, row.OpenAIAPIKey)
	set(&out.ImageGenerationModel, row.ImageGenerationModel)
	set(&out.OCRModel, row.OCRModel)
	set(&out.SearchURL, row.SearchURL)
	return out
}

func toRow(userID string, s APISettings) remote.SettingsRow {
	return remote.SettingsRow{
		UserID:               userID,
		Provider:             s.Provider,
		OpenRouterAPIKey:     s.OpenRouterAPIKey,
		N8NWebhookURL:        s.N8NWebhookURL,
		LMStudioURL:          s.LMStudioURL,
		OpenAIAPIKey:         s.OpenAIAPIKey,
		ImageGenerationModel: s.ImageGenerationModel,
		OCRModel:             s.OCRModel,
		SearchURL:            s.SearchURL,
	}
}
