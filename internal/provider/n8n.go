package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// n8nProvider talks to a single configured n8n webhook. The workflow behind
// the webhook owns the actual inference; we just post the turn sequence and
// pull a text reply out of whatever shape the workflow returns.
type n8nProvider struct {
	webhookURL string
	client     *http.Client
}

func newN8N(webhookURL string, client *http.Client) *n8nProvider {
	return &n8nProvider{webhookURL: webhookURL, client: client}
}

func (p *n8nProvider) ID() string {
	return N8N
}

// Chat posts the conversation to the webhook. The last user turn is passed
// separately as chatInput because that is what n8n chat-trigger workflows
// read by default.
func (p *n8nProvider) Chat(ctx context.Context, turns []Turn) (string, error) {
	if p.webhookURL == "" {
		return "", &ConfigError{Provider: N8N, Field: "webhook URL"}
	}

	var lastUser, system string
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			lastUser = t.Content
		case RoleSystem:
			system = t.Content
		}
	}

	reqBody := map[string]interface{}{
		"chatInput":    lastUser,
		"systemPrompt": system,
		"history":      turns,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &NetworkError{Provider: N8N, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Provider: N8N, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(N8N, resp.StatusCode, respBody)
	}

	reply, ok := parseWebhookReply(respBody)
	if !ok {
		return "", &ResponseError{Provider: N8N, Detail: "no text field in workflow response"}
	}
	return reply, nil
}

// Probe sends a HEAD request to the webhook. Workflows are not triggered by
// HEAD, so any HTTP answer at all counts as reachable.
func (p *n8nProvider) Probe(ctx context.Context) error {
	if p.webhookURL == "" {
		return &ConfigError{Provider: N8N, Field: "webhook URL"}
	}

	req, err := http.NewRequestWithContext(ctx, "HEAD", p.webhookURL, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &NetworkError{Provider: N8N, Err: err}
	}
	resp.Body.Close()
	return nil
}

// parseWebhookReply extracts a text reply from the workflow response.
// Workflows are free-form, so several common shapes are accepted: a bare
// string, an object with one of the usual keys, or an array of such objects.
func parseWebhookReply(body []byte) (string, bool) {
	var asString string
	if err := json.Unmarshal(body, &asString); err == nil && asString != "" {
		return asString, true
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(body, &asObject); err == nil {
		if reply, ok := replyFromObject(asObject); ok {
			return reply, true
		}
	}

	var asArray []map[string]interface{}
	if err := json.Unmarshal(body, &asArray); err == nil && len(asArray) > 0 {
		if reply, ok := replyFromObject(asArray[0]); ok {
			return reply, true
		}
	}

	return "", false
}

func replyFromObject(obj map[string]interface{}) (string, bool) {
	for _, key := range []string{"output", "response", "reply", "text", "message"} {
		if v, ok := obj[key].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
