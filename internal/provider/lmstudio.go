package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// DefaultLMStudioURL is the local inference server's usual listen address.
const DefaultLMStudioURL = "http://localhost:1234/v1"

const lmStudioDefaultModel = "local-model"

// lmStudioProvider talks to a local LM Studio server over its
// OpenAI-compatible API. No API key is involved.
type lmStudioProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

func newLMStudio(baseURL, model string, client *http.Client) *lmStudioProvider {
	if model == "" {
		model = lmStudioDefaultModel
	}
	return &lmStudioProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

func (p *lmStudioProvider) ID() string {
	return LMStudio
}

// Chat sends a chat completion request to the local server.
func (p *lmStudioProvider) Chat(ctx context.Context, turns []Turn) (string, error) {
	if p.baseURL == "" {
		return "", &ConfigError{Provider: LMStudio, Field: "server URL"}
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

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &NetworkError{Provider: LMStudio, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Provider: LMStudio, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(LMStudio, resp.StatusCode, respBody)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &ResponseError{Provider: LMStudio, Detail: "invalid JSON"}
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", &ResponseError{Provider: LMStudio, Detail: "empty completion"}
	}

	return result.Choices[0].Message.Content, nil
}

// Probe checks the server answers on its models endpoint.
func (p *lmStudioProvider) Probe(ctx context.Context) error {
	if p.baseURL == "" {
		return &ConfigError{Provider: LMStudio, Field: "server URL"}
	}

	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/models", nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &NetworkError{Provider: LMStudio, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError(LMStudio, resp.StatusCode, nil)
	}
	return nil
}
