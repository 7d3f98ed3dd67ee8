// Package remote talks to the hosted persistence service: a row store keyed
// by user identity, reached over its REST interface. Settings and custom
// personas are mirrored there so a user gets the same setup on every device.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SettingsRow is the persisted api_settings row for one user.
type SettingsRow struct {
	UserID               string `json:"user_id"`
	Provider             string `json:"provider,omitempty"`
	OpenRouterAPIKey     string `json:"openrouter_api_key,omitempty"`
	N8NWebhookURL        string `json:"n8n_webhook_url,omitempty"`
	LMStudioURL          string `json:"lmstudio_url,omitempty"`
	OpenAIAPIKey         string `json:"openai_api_key,omitempty"`
	ImageGenerationModel string `json:"image_generation_model,omitempty"`
	OCRModel             string `json:"ocr_model,omitempty"`
	SearchURL            string `json:"search_url,omitempty"`
	UpdatedAt            string `json:"updated_at,omitempty"`
}

// ModelRow is one persisted custom persona.
type ModelRow struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar,omitempty"`
	Personality string `json:"personality,omitempty"`
	Provider    string `json:"provider"`
	APIModel    string `json:"api_model,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Client is the remote persistence interface. All failures are recoverable;
// callers degrade to local-only operation.
type Client interface {
	GetSettings(ctx context.Context, userID string) (*SettingsRow, error)
	UpsertSettings(ctx context.Context, row SettingsRow) error
	GetCustomModels(ctx context.Context, userID string) ([]ModelRow, error)
	UpsertCustomModels(ctx context.Context, rows []ModelRow) error
}

// HTTPClient speaks the service's PostgREST-style REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a client for the given project URL and anon key.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// GetSettings fetches the settings row for userID. A missing row is not an
// error: it returns (nil, nil).
func (c *HTTPClient) GetSettings(ctx context.Context, userID string) (*SettingsRow, error) {
	var rows []SettingsRow
	err := c.get(ctx, "api_settings", userID, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpsertSettings writes the settings row, merging on user_id.
func (c *HTTPClient) UpsertSettings(ctx context.Context, row SettingsRow) error {
	row.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return c.upsert(ctx, "api_settings", "user_id", []SettingsRow{row})
}

// GetCustomModels fetches all custom personas stored for userID.
func (c *HTTPClient) GetCustomModels(ctx context.Context, userID string) ([]ModelRow, error) {
	var rows []ModelRow
	if err := c.get(ctx, "custom_models", userID, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertCustomModels writes custom personas, merging on id.
func (c *HTTPClient) UpsertCustomModels(ctx context.Context, rows []ModelRow) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for i := range rows {
		rows[i].UpdatedAt = now
	}
	return c.upsert(ctx, "custom_models", "id", rows)
}

func (c *HTTPClient) get(ctx context.Context, table, userID string, out interface{}) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?select=*&user_id=eq.%s",
		c.baseURL, table, url.QueryEscape(userID))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote fetch %s: %w", table, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote fetch %s: %w", table, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote fetch %s: HTTP %d", table, resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}

func (c *HTTPClient) upsert(ctx context.Context, table, conflictCol string, rows interface{}) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=%s", c.baseURL, table, conflictCol)

	body, err := json.Marshal(rows)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote upsert %s: %w", table, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("remote upsert %s: HTTP %d", table, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
