// Package health tracks provider reachability per capability. Each
// capability runs its own little state machine:
//
//	unknown -> checking -> {connected | disconnected | not_configured}
//
// with connected/disconnected re-entering checking on the next probe.
package health

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/aimessenger/aimessenger/internal/event"
	"github.com/aimessenger/aimessenger/internal/provider"
	"github.com/aimessenger/aimessenger/internal/settings"
)

// Capability is one independently monitored provider capability.
type Capability string

const (
	CapabilityChat  Capability = "chat"
	CapabilityImage Capability = "image"
	CapabilityOCR   Capability = "ocr"
)

// Status values of the per-capability state machine.
type Status string

const (
	StatusUnknown       Status = "unknown"
	StatusChecking      Status = "checking"
	StatusConnected     Status = "connected"
	StatusDisconnected  Status = "disconnected"
	StatusNotConfigured Status = "not_configured"
)

// ConnectionStatus is the externally visible state of one capability.
type ConnectionStatus struct {
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// Change is the payload published on health.changed events.
type Change struct {
	Capability Capability       `json:"capability"`
	Status     ConnectionStatus `json:"status"`
}

const (
	defaultProbeTimeout = 10 * time.Second
	defaultPollInterval = 30 * time.Second
	openAIBaseURL       = "https://api.openai.com/v1"
)

// Monitor owns the three capability state machines. Probes read the
// settings snapshot at the moment they fire, never a cached copy.
type Monitor struct {
	mu       sync.Mutex
	statuses map[Capability]ConnectionStatus
	inflight map[Capability]bool

	settings *settings.Store
	registry *provider.Registry
	bus      *event.Bus

	probeTimeout time.Duration
	pollInterval time.Duration
	openAIURL    string
	client       *http.Client

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor with all capabilities in the unknown state.
func NewMonitor(settingsStore *settings.Store, registry *provider.Registry, bus *event.Bus) *Monitor {
	m := &Monitor{
		statuses:     make(map[Capability]ConnectionStatus),
		inflight:     make(map[Capability]bool),
		settings:     settingsStore,
		registry:     registry,
		bus:          bus,
		probeTimeout: defaultProbeTimeout,
		pollInterval: defaultPollInterval,
		openAIURL:    openAIBaseURL,
		client:       &http.Client{},
		stopChan:     make(chan struct{}),
	}
	for _, c := range []Capability{CapabilityChat, CapabilityImage, CapabilityOCR} {
		m.statuses[c] = ConnectionStatus{Status: StatusUnknown}
	}
	return m
}

// Status returns the current state of a capability.
func (m *Monitor) Status(cap Capability) ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[cap]
}

// Probe triggers a reachability check for one capability. If a probe for
// that capability is already in flight this is a no-op. Missing credentials
// resolve to not_configured immediately, without any network call.
func (m *Monitor) Probe(cap Capability) {
	cfg := m.settings.Get()

	m.mu.Lock()
	if m.inflight[cap] {
		m.mu.Unlock()
		return
	}
	if !credentialPresent(cap, cfg) {
		st := ConnectionStatus{Status: StatusNotConfigured, LastChecked: m.statuses[cap].LastChecked}
		m.statuses[cap] = st
		m.mu.Unlock()
		m.publish(cap, st)
		return
	}
	m.inflight[cap] = true
	checking := ConnectionStatus{Status: StatusChecking, LastChecked: m.statuses[cap].LastChecked}
	m.statuses[cap] = checking
	m.mu.Unlock()

	m.publish(cap, checking)
	go m.run(cap)
}

// Start begins the periodic chat probe. Image and OCR probe on demand only.
func (m *Monitor) Start() {
	m.Probe(CapabilityChat)

	go func() {
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopChan:
				return
			case <-ticker.C:
				if credentialPresent(CapabilityChat, m.settings.Get()) {
					m.Probe(CapabilityChat)
				}
			}
		}
	}()
}

// Stop halts the periodic probe.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) run(cap Capability) {
	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	defer cancel()

	// Read-at-call-time: the snapshot may differ from the one that passed
	// the credential gate, and that is the intended behavior.
	cfg := m.settings.Get()
	err := m.probe(ctx, cap, cfg)

	st := ConnectionStatus{LastChecked: time.Now()}
	var cfgErr *provider.ConfigError
	switch {
	case err == nil:
		st.Status = StatusConnected
	case errors.As(err, &cfgErr):
		st.Status = StatusNotConfigured
	default:
		st.Status = StatusDisconnected
		st.Error = err.Error()
	}

	m.mu.Lock()
	m.inflight[cap] = false
	m.statuses[cap] = st
	m.mu.Unlock()

	if st.Status == StatusDisconnected {
		log.Printf("[Health] %s probe failed: %s", cap, st.Error)
	}
	m.publish(cap, st)
}

func (m *Monitor) probe(ctx context.Context, cap Capability, cfg settings.APISettings) error {
	switch cap {
	case CapabilityChat:
		p, err := m.registry.Resolve(cfg.Provider, cfg.ProviderConfig())
		if err != nil {
			return err
		}
		return p.Probe(ctx)
	default:
		// Image and OCR both ride on the OpenAI key
		return m.probeOpenAI(ctx, cfg.OpenAIAPIKey)
	}
}

// probeOpenAI performs a lightweight authenticated models call.
func (m *Monitor) probeOpenAI(ctx context.Context, apiKey string) error {
	if apiKey == "" {
		return &provider.ConfigError{Provider: "openai", Field: "API key"}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", m.openAIURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return &provider.NetworkError{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &provider.AuthError{Provider: "openai", Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return &provider.ResponseError{Provider: "openai", Detail: resp.Status}
	}
	return nil
}

func (m *Monitor) publish(cap Capability, st ConnectionStatus) {
	if m.bus != nil {
		m.bus.Publish(event.New(event.TypeHealthChanged, Change{Capability: cap, Status: st}))
	}
}

// credentialPresent reports whether the capability's required credential is
// set for the active provider.
func credentialPresent(cap Capability, cfg settings.APISettings) bool {
	if cap == CapabilityImage || cap == CapabilityOCR {
		return cfg.OpenAIAPIKey != ""
	}
	switch cfg.Provider {
	case provider.OpenRouter:
		return cfg.OpenRouterAPIKey != ""
	case provider.LMStudio:
		return cfg.LMStudioURL != ""
	case provider.N8N:
		return cfg.N8NWebhookURL != ""
	default:
		// Unknown provider resolves to an error at probe time
		return true
	}
}
