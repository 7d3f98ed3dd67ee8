package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

const (
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "openai/gpt-4o-mini"
)

// openRouterProvider talks to the hosted OpenRouter API. It is the only
// provider with a model catalog.
type openRouterProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func newOpenRouter(apiKey, model string, client *http.Client) *openRouterProvider {
	if model == "" {
		model = openRouterDefaultModel
	}
	return &openRouterProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: openRouterBaseURL,
		client:  client,
	}
}

func (p *openRouterProvider) ID() string {
	return OpenRouter
}

// Chat sends a chat completion request.
func (p *openRouterProvider) Chat(ctx context.Context, turns []Turn) (string, error) {
	if p.apiKey == "" {
		return "", &ConfigError{Provider: OpenRouter, Field: "API key"}
	}

	reqBody := map[string]interface{}{
		"model":    p.model,
		"messages": turns,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("X-Title", "AI Messenger")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &NetworkError{Provider: OpenRouter, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Provider: OpenRouter, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(OpenRouter, resp.StatusCode, respBody)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &ResponseError{Provider: OpenRouter, Detail: "invalid JSON"}
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", &ResponseError{Provider: OpenRouter, Detail: "empty completion"}
	}

	return result.Choices[0].Message.Content, nil
}

// Probe performs a lightweight authenticated call against the models
// endpoint. Success means the key is valid and the API is reachable.
func (p *openRouterProvider) Probe(ctx context.Context) error {
	if p.apiKey == "" {
		return &ConfigError{Provider: OpenRouter, Field: "API key"}
	}
	_, err := p.fetchModels(ctx)
	return err
}

// ListModels fetches the live model catalog.
func (p *openRouterProvider) ListModels(ctx context.Context) ([]CatalogModel, error) {
	if p.apiKey == "" {
		return nil, &ConfigError{Provider: OpenRouter, Field: "API key"}
	}
	return p.fetchModels(ctx)
}

func (p *openRouterProvider) fetchModels(ctx context.Context) ([]CatalogModel, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Provider: OpenRouter, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Provider: OpenRouter, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(OpenRouter, resp.StatusCode, respBody)
	}

	var result openRouterModelsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ResponseError{Provider: OpenRouter, Detail: "invalid JSON"}
	}

	models := make([]CatalogModel, 0, len(result.Data))
	for _, m := range result.Data {
		cm := CatalogModel{
			ID:            m.ID,
			Name:          m.Name,
			Description:   m.Description,
			ContextLength: m.ContextLength,
			TopProvider:   m.TopProvider.Name,
		}
		// Pricing comes back as decimal strings
		prompt, perr := strconv.ParseFloat(m.Pricing.Prompt, 64)
		completion, cerr := strconv.ParseFloat(m.Pricing.Completion, 64)
		if perr == nil && cerr == nil {
			cm.Pricing = &Pricing{Prompt: prompt, Completion: completion}
		}
		models = append(models, cm)
	}
	return models, nil
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openRouterModelsResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Description   string `json:"description"`
		ContextLength int    `json:"context_length"`
		Pricing       struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		} `json:"pricing"`
		TopProvider struct {
			Name string `json:"name"`
		} `json:"top_provider"`
	} `json:"data"`
}
